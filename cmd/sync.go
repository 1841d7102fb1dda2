package cmd

import (
	"context"
	"fmt"

	"github.com/iksnae/cursor-history/internal"
	"github.com/iksnae/cursor-history/internal/history"
	"github.com/spf13/cobra"
)

var (
	syncLimit  int
	syncSource string
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Index recent sessions from the sources",
	Long: `Add the most recent sessions from each source to the local index.
Sessions already indexed are left untouched, so nicknames and tags survive.
Sessions that cannot be read are logged and skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, mgr *history.Manager) error {
			var added int
			err := internal.ShowProgress(ctx, cmd.ErrOrStderr(), "Syncing sessions", func() error {
				var err error
				added, err = mgr.SyncSessions(ctx, history.SyncOptions{Limit: syncLimit, Source: syncSource})
				return err
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"added": added})
			}
			internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Sync complete: %d new session(s) indexed", added))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().IntVarP(&syncLimit, "limit", "n", 0, "Sessions to consider per source (0 for sync_limit)")
	syncCmd.Flags().StringVar(&syncSource, "source", "", "Only sync this source")
}
