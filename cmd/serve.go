package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/iesdispatch/app"
	"github.com/kilianp07/iesdispatch/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve metrics, run logs and MQTT run requests until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(nil, func(ctx context.Context, _ *config.Config, svc *app.Service) error {
			return svc.Serve(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
