package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/iksnae/cursor-history/internal/history"
	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index and source statistics",
	Long: `Show counts from the local index alongside a bounded sample of the
session sources. Source figures are approximate once a source holds more
sessions than stats_sample.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, mgr *history.Manager) error {
			stats, err := mgr.GetStats(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), stats)
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(w, headerStyle.Render("📊 Statistics"))
			_, _ = fmt.Fprintln(w)

			tw := newTable(w)
			row := func(label string, n int) {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t\n", titleStyle.Render(label), countStyle.Render(humanize.Comma(int64(n))))
			}
			row("Indexed sessions", stats.TotalSessions)
			row("With project", stats.WithProject)
			row("With nickname", stats.WithNickname)
			row("Tagged", stats.Tagged)
			row("Projects", stats.DistinctProjects)
			row("Tags", stats.DistinctTags)
			row("Messages", stats.TotalMessages)

			sources := make([]string, 0, len(stats.SourceCounts))
			for name := range stats.SourceCounts {
				sources = append(sources, name)
			}
			sort.Strings(sources)
			for _, name := range sources {
				row(fmt.Sprintf("In source %s", name), stats.SourceCounts[name])
			}

			unsynced := humanize.Comma(int64(stats.Unsynced))
			if stats.Sampled {
				unsynced = "≥ " + unsynced
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t\n", titleStyle.Render("Not yet synced"), countStyle.Render(unsynced))
			if err := tw.Flush(); err != nil {
				return err
			}

			if stats.Sampled {
				_, _ = fmt.Fprintln(w)
				_, _ = fmt.Fprintln(w, idStyle.Render("💡 Source counts were capped by stats_sample"))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
