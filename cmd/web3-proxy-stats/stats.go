package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/julioAk47/web3-proxy/internal/auth"
	"github.com/julioAk47/web3-proxy/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Run a usage stats query and print the JSON envelope",
	Long: `Run a usage stats query without going through HTTP.

Examples:
  web3-proxy-stats stats
  web3-proxy-stats stats --user-id=7 --param chain_id=1
  web3-proxy-stats stats --user-id=7 --detailed --param query_window_seconds=3600`,
	RunE: runStats,
}

var (
	statsUserID   uint64
	statsDetailed bool
	statsParams   map[string]string
)

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().Uint64Var(&statsUserID, "user-id", 0, "user to query as (0 = anonymous)")
	statsCmd.Flags().BoolVar(&statsDetailed, "detailed", false, "break results down by method")
	statsCmd.Flags().StringToStringVar(&statsParams, "param", nil, "query parameter, e.g. --param chain_id=1")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	req := stats.Request{
		Caller:      auth.Authenticated(statsUserID),
		Granularity: stats.Aggregated,
		Params:      statsParams,
	}
	if statsDetailed {
		req.Granularity = stats.Detailed
	}
	if req.Params == nil {
		req.Params = map[string]string{}
	}

	env, err := a.stats.Query(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("%s: %w", stats.KindOf(err), err)
	}

	out, err := env.JSON()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
