// Package kzcmd contains the cobra commands of the kzmapvote binary.
package kzcmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd returns the root kzmapvote command.
// If level is not nil, the --log-level flag sets it before any subcommand runs.
func NewRootCmd(log *slog.Logger, level *slog.LevelVar) *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use: "kzmapvote SUBCOMMAND",

		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},

		SilenceUsage: true,

		Long: `kzmapvote runs rock-the-vote map voting for a KZ game server.

The game server host forwards player commands and map events to the
HTTP bridge started by the run subcommand, and serves a callback URL
that receives chat notices, vote menu updates, and map changes.

Every flag may also be set in a config file (--config) using the flag
name as the key, or through an environment variable such as
KZMAPVOTE_STEAM_API_KEY.
`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindViper(v, cmd); err != nil {
				return err
			}

			if level != nil {
				if err := level.UnmarshalText([]byte(v.GetString(logLevelFlag))); err != nil {
					return fmt.Errorf("invalid --%s: %w", logLevelFlag, err)
				}
			}
			return nil
		},
	}

	addConfigFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newRunCmd(log, v),

		newFetchPoolCmd(log, v),
		newResolveCmd(log, v),
	)

	return rootCmd
}
