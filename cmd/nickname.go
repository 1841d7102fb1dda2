package cmd

import (
	"context"
	"fmt"

	"github.com/iksnae/cursor-history/internal"
	"github.com/iksnae/cursor-history/internal/history"
	"github.com/spf13/cobra"
)

// nicknameCmd represents the nickname command
var nicknameCmd = &cobra.Command{
	Use:   "nickname <session-id> [name]",
	Short: "Set or clear a session nickname",
	Long: `Give a session a unique nickname that can be used in place of its id.
Omit the name to clear the current nickname.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		return withManager(cmd, func(ctx context.Context, mgr *history.Manager) error {
			id, err := mgr.ResolveID(ctx, args[0])
			if err != nil {
				return err
			}
			if err := mgr.SetNickname(ctx, id, name); err != nil {
				return err
			}

			if name == "" {
				internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Cleared nickname of %s", id))
			} else {
				internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s is now known as %q", id, name))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(nicknameCmd)
}
