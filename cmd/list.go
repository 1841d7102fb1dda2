package cmd

import (
	"context"

	"github.com/iksnae/cursor-history/internal/history"
	"github.com/spf13/cobra"
)

var (
	listProject    string
	listTag        string
	listTaggedOnly bool
	listSort       string
	listLimit      int
	listSource     string
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed sessions",
	Long: `List sessions from the local index.

A tag filter takes precedence over a project filter. Sessions that have not
been synced yet do not appear; run 'cursor-history sync' first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, mgr *history.Manager) error {
			rows, err := mgr.ListSessions(ctx, history.ListOptions{
				ProjectPath: listProject,
				Tag:         listTag,
				TaggedOnly:  listTaggedOnly,
				SortBy:      listSort,
				Limit:       listLimit,
				Source:      listSource,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			renderSessions(cmd.OutOrStdout(), "Indexed", rows)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listProject, "project", "", "Only sessions for this project path")
	listCmd.Flags().StringVar(&listTag, "tag", "", "Only sessions carrying this tag")
	listCmd.Flags().BoolVar(&listTaggedOnly, "tagged", false, "Only sessions with at least one tag")
	listCmd.Flags().StringVar(&listSort, "sort", history.SortNewest, "Sort order (newest, oldest, most_messages)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Maximum number of sessions (0 for all)")
	listCmd.Flags().StringVar(&listSource, "source", "", "Only sessions from this source")
}
