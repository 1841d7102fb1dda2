package cmd

import (
	"context"
	"fmt"

	"github.com/iksnae/cursor-history/internal"
	"github.com/iksnae/cursor-history/internal/history"
	"github.com/spf13/cobra"
)

// tagCmd groups the tag subcommands
var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Add or remove session tags",
}

var tagAddCmd = &cobra.Command{
	Use:   "add <session-id|nickname> <tag>",
	Short: "Tag a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, mgr *history.Manager) error {
			id, err := mgr.ResolveID(ctx, args[0])
			if err != nil {
				return err
			}
			if err := mgr.AddTag(ctx, id, args[1]); err != nil {
				return err
			}
			internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Tagged %s with %q", id, args[1]))
			return nil
		})
	},
}

var tagRemoveCmd = &cobra.Command{
	Use:     "remove <session-id|nickname> <tag>",
	Aliases: []string{"rm"},
	Short:   "Remove a tag from a session",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, mgr *history.Manager) error {
			id, err := mgr.ResolveID(ctx, args[0])
			if err != nil {
				return err
			}
			if err := mgr.RemoveTag(ctx, id, args[1]); err != nil {
				return err
			}
			internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Removed %q from %s", args[1], id))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(tagCmd)
	tagCmd.AddCommand(tagAddCmd, tagRemoveCmd)
}
