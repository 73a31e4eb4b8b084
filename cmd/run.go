package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/iesdispatch/app"
	"github.com/kilianp07/iesdispatch/config"
	"github.com/kilianp07/iesdispatch/core/dispatch"
	"github.com/kilianp07/iesdispatch/core/metrics"
	"github.com/kilianp07/iesdispatch/pkg/export"
)

var (
	runCase   string
	runSeries string
	runOut    string
	runDump   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch the configured case over its whole horizon",
	RunE:  runDispatch,
}

func init() {
	runCmd.Flags().StringVar(&runCase, "case", "", "case file overriding case.path")
	runCmd.Flags().StringVar(&runSeries, "series", "", "series CSV overriding case.series_csv")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "write the schedule to a .csv or .json file")
	runCmd.Flags().BoolVar(&runDump, "dump", false, "print the model listing when a window fails")
	rootCmd.AddCommand(runCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	if runOut != "" {
		if _, err := exporterFor(runOut); err != nil {
			return err
		}
	}
	mutate := func(cfg *config.Config) error {
		if runCase != "" {
			cfg.Case.Path = runCase
		}
		if runSeries != "" {
			cfg.Case.SeriesCSV = runSeries
		}
		return nil
	}
	return withService(mutate, func(ctx context.Context, cfg *config.Config, svc *app.Service) error {
		c, err := cfg.Case.Load()
		if err != nil {
			return err
		}
		act, rec, runErr := svc.RunCase(ctx, c)
		printRun(cmd.OutOrStdout(), rec)
		if runErr != nil {
			var se *dispatch.SolveError
			if runDump && errors.As(runErr, &se) {
				fmt.Fprintln(cmd.ErrOrStderr(), se.Dump)
			}
			return runErr
		}
		if runOut == "" {
			return nil
		}
		return writeSchedule(runOut, dispatch.ScheduleFromActivity(rec.RunID, c, act))
	})
}

func printRun(w io.Writer, rec metrics.RunRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", rec.RunID)
	fmt.Fprintf(tw, "case\t%s\n", rec.Case)
	fmt.Fprintf(tw, "status\t%s\n", rec.Status)
	fmt.Fprintf(tw, "objective\t%.6g\n", rec.Objective)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "start\tlength\tstatus\tobjective\tvariables\tconstraints\tduration")
	for _, wr := range rec.Windows {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%.6g\t%d\t%d\t%s\n",
			wr.Start, wr.Length, wr.Status, wr.Objective, wr.Variables, wr.Constraints, wr.Duration)
	}
	_ = tw.Flush()
}

type exporter func(io.Writer, metrics.Schedule) error

func exporterFor(path string) (exporter, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return export.WriteCSV, nil
	case ".json":
		return export.WriteJSON, nil
	default:
		return nil, fmt.Errorf("unsupported schedule format: %s", ext)
	}
}

func writeSchedule(path string, s metrics.Schedule) error {
	write, err := exporterFor(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, s); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
