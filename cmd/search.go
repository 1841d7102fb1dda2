package cmd

import (
	"context"
	"strings"

	"github.com/iksnae/cursor-history/internal/history"
	"github.com/spf13/cobra"
)

var (
	searchProject       string
	searchTaggedOnly    bool
	searchLimit         int
	searchCaseSensitive bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed sessions",
	Long: `Search nicknames, first-message previews, tags and project names of
indexed sessions. Matching is a case-insensitive substring match unless
--case-sensitive is given. Results are ordered newest first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return withManager(cmd, func(ctx context.Context, mgr *history.Manager) error {
			rows, err := mgr.SearchSessions(ctx, query, history.SearchOptions{
				ProjectPath:   searchProject,
				TaggedOnly:    searchTaggedOnly,
				Limit:         searchLimit,
				CaseSensitive: searchCaseSensitive,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			renderSessions(cmd.OutOrStdout(), "Matches for \""+query+"\"", rows)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchProject, "project", "", "Only sessions for this project path")
	searchCmd.Flags().BoolVar(&searchTaggedOnly, "tagged", false, "Only sessions with at least one tag")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum number of results (0 for all)")
	searchCmd.Flags().BoolVar(&searchCaseSensitive, "case-sensitive", false, "Match case exactly")
}
