package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/iksnae/cursor-history/internal/index"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	projectStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)

	tagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	nameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
)

const placeholder = "—"

// relativeDate renders recent dates as "3 hours ago" and older ones as a date
func relativeDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return placeholder
	}
	if time.Since(*t) < 30*24*time.Hour {
		return humanize.Time(*t)
	}
	return t.Format("2006-01-02")
}

// truncate shortens s to width runes, marking the cut with "..."
func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

// displayName picks the most human label for a session
func displayName(m *index.SessionMetadata) string {
	switch {
	case m.Nickname != "":
		return m.Nickname
	case m.Title != "":
		return m.Title
	case m.FirstMessagePreview != "":
		return m.FirstMessagePreview
	default:
		return "Untitled"
	}
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
}

// renderSessions prints sessions as an aligned table
func renderSessions(w io.Writer, heading string, rows []*index.SessionMetadata) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, headerStyle.Render("📋 No sessions found"))
		return
	}

	_, _ = fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("📋 %s: %d session(s)", heading, len(rows))))
	_, _ = fmt.Fprintln(w)

	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, titleStyle.Render("ID")+"\t"+titleStyle.Render("Name")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Created")+"\t"+titleStyle.Render("Project")+"\t"+titleStyle.Render("Tags")+"\t")

	for _, m := range rows {
		project := dateStyle.Render(placeholder)
		if m.HasProject {
			project = projectStyle.Render(truncate(m.ProjectName, 25))
		}
		tags := ""
		if len(m.Tags) > 0 {
			tags = tagStyle.Render(strings.Join(m.Tags, ","))
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			idStyle.Render(m.SessionID),
			nameStyle.Render(truncate(displayName(m), 50)),
			countStyle.Render(strconv.Itoa(m.MessageCount)),
			dateStyle.Render(relativeDate(m.CreatedAt)),
			project,
			tags,
		)
	}
	_ = tw.Flush()
}
