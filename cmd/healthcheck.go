package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/cursor-history/internal"
	"github.com/iksnae/cursor-history/internal/config"
	"github.com/iksnae/cursor-history/internal/index"
	"github.com/spf13/cobra"
)

var (
	healthcheckDetails bool
)

var (
	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that session stores and the index are reachable",
	Long: `Check the health of cursor-history by verifying:
  • Storage path detection for every configured source
  • Store discovery and read-only access
  • Session counts per store (bounded by stats_sample)
  • Index access and migrations

This command is useful for debugging storage issues.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			cfg = config.Default()
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		w := cmd.OutOrStdout()

		_, _ = fmt.Fprintln(w, sectionStyle.Render("🔍 Cursor History Health Check"))
		_, _ = fmt.Fprintln(w)

		sources := cfg.Sources
		if storagePath != "" {
			sources = []config.SourceConfig{{Name: config.DefaultSourceName, BasePath: storagePath}}
		}

		seen := make(map[string]bool)
		for _, src := range sources {
			checkSource(ctx, w, src, seen)
		}
		total := len(seen)

		internal.PrintInfo(w, "Checking index...")
		indexOK := checkIndex(ctx, w)
		_, _ = fmt.Fprintln(w)

		_, _ = fmt.Fprintln(w, sectionStyle.Render("📊 Summary"))
		_, _ = fmt.Fprintln(w)
		switch {
		case total > 0 && indexOK:
			_, _ = fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("✅ Health check passed: %d session(s) readable", total)))
			return nil
		case indexOK:
			_, _ = fmt.Fprintln(w, warnStyle.Render("⚠️  Storage available but no sessions found"))
			return nil
		default:
			_, _ = fmt.Fprintln(w, failStyle.Render("❌ Health check failed"))
			return fmt.Errorf("health check failed: index unavailable")
		}
	},
}

// checkSource reports one configured source. Readable session ids are added
// to seen, so an id held by several stores is counted once.
func checkSource(ctx context.Context, w io.Writer, src config.SourceConfig, seen map[string]bool) {
	internal.PrintInfo(w, fmt.Sprintf("Checking source %q...", src.Name))

	paths, err := internal.GetStoragePaths(config.ExpandPath(src.BasePath))
	if err != nil {
		internal.PrintError(w, fmt.Sprintf("Failed to resolve storage paths: %v", err))
		_, _ = fmt.Fprintln(w)
		return
	}
	if healthcheckDetails {
		_, _ = fmt.Fprintf(w, "   Base path: %s\n", paths.BasePath)
	}

	locations, err := paths.DiscoverStores()
	if err != nil {
		internal.PrintError(w, fmt.Sprintf("Failed to scan for stores: %v", err))
		_, _ = fmt.Fprintln(w)
		return
	}
	if len(locations) == 0 {
		internal.PrintWarning(w, "No state.vscdb stores found")
		_, _ = fmt.Fprintln(w)
		return
	}
	_, _ = fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("✅ Found %d store(s)", len(locations))))

	count := 0
	for _, loc := range locations {
		store, err := internal.OpenStorage(ctx, loc, cfg.RetryPolicy())
		if err != nil {
			internal.PrintWarning(w, fmt.Sprintf("Cannot open %s: %v", loc.Path, err))
			continue
		}
		ids, err := store.ListIDs(ctx, cfg.StatsSample)
		_ = store.Close()
		if err != nil {
			internal.PrintWarning(w, fmt.Sprintf("Cannot read %s: %v", loc.Path, err))
			continue
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				count++
			}
		}
		if healthcheckDetails {
			_, _ = fmt.Fprintf(w, "   %s [%s] %d session(s)", loc.Path, store.Table(), len(ids))
			if loc.WorkspaceFolder != "" {
				_, _ = fmt.Fprintf(w, " → %s", loc.WorkspaceFolder)
			}
			_, _ = fmt.Fprintln(w)
		}
	}
	_, _ = fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("✅ %d session(s) readable", count)))
	_, _ = fmt.Fprintln(w)
}

func checkIndex(ctx context.Context, w io.Writer) bool {
	idx, err := index.Open(ctx, cfg.IndexPath)
	if err != nil {
		internal.PrintError(w, fmt.Sprintf("Failed to open index: %v", err))
		return false
	}
	defer func() { _ = idx.Close() }()

	stats, err := idx.Stats(ctx)
	if err != nil {
		internal.PrintError(w, fmt.Sprintf("Failed to read index: %v", err))
		return false
	}
	_, _ = fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("✅ Index ready (%d session(s) indexed)", stats.TotalSessions)))
	if healthcheckDetails {
		_, _ = fmt.Fprintf(w, "   Path: %s\n", idx.Path())
	}
	return true
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckDetails, "details", "d", false, "Show detailed diagnostic information")
}
