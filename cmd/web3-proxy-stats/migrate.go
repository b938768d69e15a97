package main

import (
	"github.com/spf13/cobra"

	"github.com/julioAk47/web3-proxy/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if err := database.Migrate(cmd.Context(), cfg.PostgresDSN); err != nil {
			return err
		}
		logger.Info().Msg("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
