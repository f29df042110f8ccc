package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Billhebert/projeto-sass-sub006/internal/config"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle for every sync-enabled account and exit",
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Logger = config.InitLogger(cfg.LogLevel)

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	results, err := rt.engine.SyncAll(cmd.Context())
	if err != nil {
		return err
	}

	failed := 0
	for accountID, syncErr := range results {
		if syncErr != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", accountID, syncErr)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", accountID)
	}

	if failed > 0 {
		return fmt.Errorf("sync all: %d of %d accounts failed", failed, len(results))
	}
	return nil
}
