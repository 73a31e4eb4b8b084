package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/iesdispatch/app"
	"github.com/kilianp07/iesdispatch/infra/dataset"
)

var (
	importCSV string
	importDB  string
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Price stack dataset commands",
}

var datasetImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import price stack entries from a CSV file",
	RunE:  runDatasetImport,
}

func init() {
	datasetImportCmd.Flags().StringVar(&importCSV, "csv", "", "CSV file with state,strategy,price_structure,year,component,capacity,marginal_cost")
	datasetImportCmd.Flags().StringVar(&importDB, "db", "", "dataset database overriding dataset.path")
	_ = datasetImportCmd.MarkFlagRequired("csv")
	datasetCmd.AddCommand(datasetImportCmd)
	rootCmd.AddCommand(datasetCmd)
}

func runDatasetImport(cmd *cobra.Command, args []string) error {
	path, _, err := datasetPath(importDB)
	if err != nil {
		return err
	}
	db, err := dataset.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := app.ImportCSV(cmd.Context(), db, importCSV); err != nil {
		return err
	}
	n, err := db.Count(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s now holds %d stack entries\n", path, n)
	return nil
}
