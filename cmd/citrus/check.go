package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/citrusbot/citrus/internal/cache"
	"github.com/citrusbot/citrus/internal/logging"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one polling cycle over all tracked channels",
	Long: `Queries the live status of every tracked channel, persists state
transitions, and posts a Discord notification for each channel that went
live. Intended to be invoked from cron at a fixed interval.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
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
	report, err := checker.RunExclusive(ctx, rds)
	if err != nil {
		if errors.Is(err, cache.ErrLocked) {
			// The previous cycle is still running; the next cron slot will
			// pick the work up.
			return nil
		}
		return err
	}

	l := logging.L()
	l.Info().
		Int("went_live", report.WentLive).
		Int("delivered", report.Delivered).
		Msg("check finished")
	return nil
}
