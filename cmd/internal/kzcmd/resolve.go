package kzcmd

import (
	"fmt"
	"log/slog"

	"github.com/kzmapvote/kzmapvote/mvpool"
	"github.com/kzmapvote/kzmapvote/mvworkshop"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newResolveCmd(log *slog.Logger, v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use: "resolve MAP_NAME|WORKSHOP_ID",

		Short: "Resolve nomination input the way the nominate command would",

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(v)
			if err != nil {
				return err
			}

			client := newHTTPClient()
			cache := mvpool.NewCache(log.With("sys", "pool"), newPoolClient(log, cfg, client), nil)
			r := mvworkshop.NewResolver(
				log.With("sys", "resolver"),
				newSteamClient(log, cfg, client),
				cache,
				cfg.RequiredPrefix,
			)

			m, err := r.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", m.Name, m.WorkshopID, m.DisplayName())
			return nil
		},
	}
}
