package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/julioAk47/web3-proxy/internal/database"
	"github.com/julioAk47/web3-proxy/internal/seeder"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert a demo owner, an admin delegate and one RPC key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		pool, err := database.Connect(cmd.Context(), cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		res, err := seeder.Seed(cmd.Context(), pool, logger)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Owner:    user %d, bearer %s\n", res.OwnerID, seeder.OwnerBearer)
		fmt.Fprintf(out, "Delegate: user %d, bearer %s\n", res.DelegateID, seeder.DelegateBearer)
		fmt.Fprintf(out, "RPC key:  id %d, %s\n", res.Key.ID, res.Key.Display())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
