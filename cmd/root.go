package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/iksnae/cursor-history/internal"
	"github.com/iksnae/cursor-history/internal/config"
	"github.com/iksnae/cursor-history/internal/history"
	"github.com/iksnae/cursor-history/internal/index"
	"github.com/spf13/cobra"
)

var (
	verbose     bool
	configPath  string
	storagePath string
	jsonOutput  bool
	version     string = "dev"
	commit      string = "unknown"
	date        string = "unknown"

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cursor-history",
	Short: "Browse, tag and search Cursor IDE chat history",
	Long: `A CLI for reading chat sessions stored by Cursor IDE.

Sessions are read straight from Cursor's state.vscdb stores, which are never
modified. Nicknames, tags and derived facts such as the project a session
touched live in a separate local index.

Quick Start:
  cursor-history sync                      # Index recent sessions
  cursor-history list --sort newest        # List indexed sessions
  cursor-history show <id|nickname>        # View a conversation
  cursor-history tag add <id> backend      # Tag a session
  cursor-history search "auth middleware"  # Search the index`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		internal.SetVerbose(verbose)

		path := configPath
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				return err
			}
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
		internal.SetupLogging(cfg.LogFile)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/cursor-history/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storagePath, "storage", "", "Custom storage location (path to database file or Cursor User directory)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// openManager builds a Manager from the loaded config. --storage replaces
// the base path of the configured sources with a single source.
func openManager(ctx context.Context) (*history.Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	sources := cfg.Sources
	if storagePath != "" {
		name := config.DefaultSourceName
		if len(sources) > 0 {
			name = sources[0].Name
		}
		sources = []config.SourceConfig{{Name: name, BasePath: storagePath}}
	}

	policy := cfg.RetryPolicy()
	var backends []history.Backend
	closeAll := func() {
		for _, b := range backends {
			_ = b.Source.Close()
		}
	}

	for _, src := range sources {
		paths, err := internal.GetStoragePaths(config.ExpandPath(src.BasePath))
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		locations, err := paths.DiscoverStores()
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		agg, err := internal.OpenAggregatedStorage(ctx, locations, policy)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		backends = append(backends, history.Backend{Name: src.Name, Source: agg})
	}

	idx, err := index.Open(ctx, cfg.IndexPath)
	if err != nil {
		closeAll()
		return nil, err
	}

	mgr, err := history.NewManager(idx, history.Options{
		AutoSync:      cfg.AutoSyncEnabled(),
		StatsSample:   cfg.StatsSample,
		PreviewLength: cfg.PreviewLength,
		SyncLimit:     cfg.SyncLimit,
	}, backends...)
	if err != nil {
		closeAll()
		_ = idx.Close()
		return nil, err
	}
	return mgr, nil
}

// withManager runs fn against a freshly opened Manager and closes it after
func withManager(cmd *cobra.Command, fn func(ctx context.Context, mgr *history.Manager) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	mgr, err := openManager(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			internal.LogWarn("Failed to close: %v", err)
		}
	}()
	return fn(ctx, mgr)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
