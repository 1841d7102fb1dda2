package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/cursor-history/internal"
	"github.com/iksnae/cursor-history/internal/history"
	"github.com/spf13/cobra"
)

var (
	showLimit     int
	showMaxLength int
	showNoTools   bool
)

var (
	// Styles for show command
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	toolMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				Padding(0, 1)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <session-id|nickname>",
	Short: "Show messages for a specific session",
	Long: `Display a chat session with its decoded messages.

The session is looked up by nickname first, then by id. Sessions missing
from the index are synced on demand when auto_sync is enabled.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, mgr *history.Manager) error {
			session, err := mgr.GetSession(ctx, args[0], history.GetOptions{
				IncludeMessages: true,
				Parse: internal.ParseOptions{
					MaxContentLength: showMaxLength,
					ExcludeTools:     showNoTools,
				},
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), session)
			}

			w := cmd.OutOrStdout()
			displaySessionHeader(w, session)

			messages := session.Messages
			total := len(messages)
			if showLimit > 0 && showLimit < total {
				messages = messages[:showLimit]
			}
			for i, msg := range messages {
				displayMessage(w, i+1, msg, total)
			}

			if showLimit > 0 && showLimit < total {
				_, _ = fmt.Fprintln(w)
				_, _ = fmt.Fprintln(w, lipgloss.NewStyle().
					Foreground(lipgloss.Color("243")).
					Italic(true).
					Render(fmt.Sprintf("... (%d more message(s))", total-showLimit)))
			}
			return nil
		})
	},
}

func displaySessionHeader(w io.Writer, session *history.Session) {
	_, _ = fmt.Fprintln(w, sessionHeaderStyle.Render(fmt.Sprintf("💬 %s", displayName(&session.SessionMetadata))))

	metaParts := []string{fmt.Sprintf("ID: %s", session.SessionID)}
	if session.CreatedAt != nil {
		metaParts = append(metaParts, fmt.Sprintf("Created: %s", relativeDate(session.CreatedAt)))
	}
	metaParts = append(metaParts, fmt.Sprintf("Messages: %d", len(session.Messages)))
	if session.HasProject {
		metaParts = append(metaParts, fmt.Sprintf("Project: %s", session.ProjectPath))
	}
	if len(session.Tags) > 0 {
		metaParts = append(metaParts, fmt.Sprintf("Tags: %s", strings.Join(session.Tags, ", ")))
	}

	_, _ = fmt.Fprintln(w, sessionMetaStyle.Render(strings.Join(metaParts, " • ")))
	_, _ = fmt.Fprintln(w)
}

func displayMessage(w io.Writer, index int, msg internal.Message, total int) {
	var actorStyle lipgloss.Style
	var actorLabel string

	switch msg.Role {
	case internal.RoleUser:
		actorStyle = userMessageStyle
		actorLabel = "👤 User"
	case internal.RoleAssistant:
		actorStyle = assistantMessageStyle
		actorLabel = "🤖 Assistant"
	default:
		actorStyle = toolMessageStyle
		actorLabel = "🔧 Tool"
		if msg.ToolInfo != nil {
			actorLabel = fmt.Sprintf("🔧 %s", msg.ToolInfo.Name)
		}
	}

	header := actorStyle.Render(actorLabel) + " " + timestampStyle.Render(fmt.Sprintf("[%d/%d]", index, total))
	if msg.Timestamp != nil {
		header += " " + timestampStyle.Render(msg.Timestamp.Format("2006-01-02 15:04:05"))
	}
	_, _ = fmt.Fprintln(w, header)

	content := strings.TrimSpace(msg.Content)
	if content != "" {
		_, _ = fmt.Fprintln(w, messageContentStyle.Render(wrapText(content, 80)))
	} else {
		_, _ = fmt.Fprintln(w, messageContentStyle.Foreground(lipgloss.Color("240")).Render("(empty message)"))
	}
	_, _ = fmt.Fprintln(w)
}

// wrapText wraps lines longer than width at word boundaries. Fenced code is
// left alone.
func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string
	inCode := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCode = !inCode
		}
		if inCode || len([]rune(line)) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		currentLine := ""
		for _, word := range strings.Fields(line) {
			switch {
			case currentLine == "":
				currentLine = word
			case len([]rune(currentLine))+len([]rune(word))+1 > width:
				wrapped = append(wrapped, currentLine)
				currentLine = word
			default:
				currentLine += " " + word
			}
		}
		if currentLine != "" {
			wrapped = append(wrapped, currentLine)
		}
	}

	return strings.Join(wrapped, "\n")
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&showLimit, "limit", "n", 0, "Limit number of messages to show")
	showCmd.Flags().IntVar(&showMaxLength, "max-length", 0, "Truncate message content to this many characters (0 for no limit)")
	showCmd.Flags().BoolVar(&showNoTools, "no-tools", false, "Drop tool metadata from messages")
}
