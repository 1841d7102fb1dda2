package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/iksnae/cursor-history/internal/history"
	"github.com/spf13/cobra"
)

// projectsCmd represents the projects command
var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects with session counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, mgr *history.Manager) error {
			projects, err := mgr.GetProjects(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), projects)
			}

			w := cmd.OutOrStdout()
			if len(projects) == 0 {
				_, _ = fmt.Fprintln(w, headerStyle.Render("📁 No projects indexed"))
				return nil
			}
			_, _ = fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("📁 %d project(s)", len(projects))))
			_, _ = fmt.Fprintln(w)

			tw := newTable(w)
			_, _ = fmt.Fprintln(tw, titleStyle.Render("Project")+"\t"+titleStyle.Render("Sessions")+"\t"+titleStyle.Render("Path")+"\t")
			for _, p := range projects {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t\n",
					projectStyle.Render(p.Name),
					countStyle.Render(strconv.Itoa(p.Count)),
					dateStyle.Render(p.Path),
				)
			}
			return tw.Flush()
		})
	},
}

// tagsCmd represents the tags command
var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List tags with session counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, mgr *history.Manager) error {
			tags, err := mgr.GetTags(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), tags)
			}

			w := cmd.OutOrStdout()
			if len(tags) == 0 {
				_, _ = fmt.Fprintln(w, headerStyle.Render("🏷  No tags yet"))
				return nil
			}
			tw := newTable(w)
			_, _ = fmt.Fprintln(tw, titleStyle.Render("Tag")+"\t"+titleStyle.Render("Sessions")+"\t")
			for _, tc := range tags {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t\n", tagStyle.Render(tc.Tag), countStyle.Render(strconv.Itoa(tc.Count)))
			}
			return tw.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd, tagsCmd)
}
