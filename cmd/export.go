package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/iksnae/cursor-history/internal"
	"github.com/iksnae/cursor-history/internal/export"
	"github.com/iksnae/cursor-history/internal/history"
	"github.com/spf13/cobra"
)

var (
	exportFormat  string
	exportOutput  string
	exportNoTools bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <session-id|nickname>",
	Short: "Export a session to a file",
	Long: `Export a chat session with its messages (jsonl, md, yaml, json).

Without --out the export is written to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(exportFormat)
		if err != nil {
			return err
		}

		return withManager(cmd, func(ctx context.Context, mgr *history.Manager) error {
			session, err := mgr.GetSession(ctx, args[0], history.GetOptions{
				IncludeMessages: true,
				Parse:           internal.ParseOptions{ExcludeTools: exportNoTools},
			})
			if err != nil {
				return err
			}

			if exportOutput == "" {
				return exporter.Export(session, cmd.OutOrStdout())
			}

			file, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", exportOutput, err)
			}
			if err := exporter.Export(session, file); err != nil {
				_ = file.Close()
				return fmt.Errorf("failed to export session %s: %w", session.SessionID, err)
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("failed to close file %s: %w", exportOutput, err)
			}

			internal.PrintSuccess(cmd.ErrOrStderr(), fmt.Sprintf("Exported %d message(s) to %s", len(session.Messages), exportOutput))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "md", "Export format (jsonl, md, yaml, json)")
	exportCmd.Flags().StringVarP(&exportOutput, "out", "o", "", "Output file (default stdout)")
	exportCmd.Flags().BoolVar(&exportNoTools, "no-tools", false, "Drop tool metadata from messages")
}
