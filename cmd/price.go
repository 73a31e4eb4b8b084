package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/iesdispatch/config"
	"github.com/kilianp07/iesdispatch/core/market"
	"github.com/kilianp07/iesdispatch/core/model"
	"github.com/kilianp07/iesdispatch/infra/dataset"
	"github.com/kilianp07/iesdispatch/infra/logger"
)

var (
	priceLabels model.CaseLabels
	priceLoads  string
	priceDB     string
)

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Print clearing prices of a price stack for the given loads",
	RunE:  runPrice,
}

func init() {
	priceCmd.Flags().StringVar(&priceLabels.State, "state", "", "state label")
	priceCmd.Flags().StringVar(&priceLabels.Strategy, "strategy", "", "strategy label")
	priceCmd.Flags().StringVar(&priceLabels.PriceStructure, "structure", "", "price structure label")
	priceCmd.Flags().IntVar(&priceLabels.Year, "year", 0, "year label")
	priceCmd.Flags().StringVar(&priceLoads, "load", "", "comma separated loads")
	priceCmd.Flags().StringVar(&priceDB, "db", "", "dataset database overriding dataset.path")
	_ = priceCmd.MarkFlagRequired("load")
	rootCmd.AddCommand(priceCmd)
}

func runPrice(cmd *cobra.Command, args []string) error {
	loads, err := parseLoads(priceLoads)
	if err != nil {
		return err
	}
	path, overflow, err := datasetPath(priceDB)
	if err != nil {
		return err
	}
	db, err := dataset.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	defer db.Close()

	ds := market.NewDataset(db, overflow, logger.New("dataset"))
	if err := ds.Load(cmd.Context()); err != nil {
		return err
	}
	stack, err := ds.Stack(priceLabels)
	if err != nil {
		return err
	}
	ids := stack.IDs()
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "load\tprice\tmarginal")
	for _, l := range loads {
		p, i, err := stack.ClearingPrice(l)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%g\t%g\t%s\n", l, p, ids[i])
	}
	return tw.Flush()
}

func parseLoads(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", f, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one load is required")
	}
	return out, nil
}

// datasetPath returns override when set, the configured dataset otherwise.
func datasetPath(override string) (string, float64, error) {
	if override != "" {
		return override, 0, nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "", 0, fmt.Errorf("load config: %w", err)
	}
	if cfg.Dataset.Path == "" {
		return "", 0, errors.New("no dataset configured, pass --db")
	}
	return cfg.Dataset.Path, cfg.Dataset.OverflowPrice, nil
}
