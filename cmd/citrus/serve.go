package main

import (
	"github.com/spf13/cobra"

	"github.com/citrusbot/citrus/internal/logging"
	"github.com/citrusbot/citrus/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the registry HTTP API",
	Long: `Serves the JSON API for tracked-channel and webhook management and
the public channel-request intake. Does not poll by itself; pair it with
"citrus check" under cron, or POST /api/check to trigger a cycle manually.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	appStore, rds, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	checker := buildChecker(cfg, appStore)
	srv := server.New(appStore, cfg, buildProviders(cfg), checker, rds, logging.L())
	return srv.ListenAndServe(ctx)
}
