package kzcmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/kzmapvote/kzmapvote/mvpool"
	"github.com/kzmapvote/kzmapvote/mvstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newFetchPoolCmd(log *slog.Logger, v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use: "fetch-pool",

		Short: "Fetch the map pool and print it, saving it to --db-path if set",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadAppConfig(v)
			if err != nil {
				return err
			}

			var store mvstore.PoolStore
			if cfg.DBPath != "" {
				s, err := openStore(ctx, log, cfg.DBPath)
				if err != nil {
					return err
				}
				defer closeStore(log, s)
				store = s
			}

			cache := mvpool.NewCache(log.With("sys", "pool"), newPoolClient(log, cfg, newHTTPClient()), store)
			if err := cache.Refresh(ctx); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "WORKSHOP ID\tNAME\tTIER")
			for _, m := range cache.Snapshot() {
				fmt.Fprintf(tw, "%d\t%s\t%d\n", m.WorkshopID, m.Name, m.Tier)
			}
			return tw.Flush()
		},
	}
}
