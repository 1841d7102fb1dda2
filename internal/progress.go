package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ShowProgress runs fn while drawing a spinner on w. When w is not a
// terminal the message is logged and fn runs without decoration.
func ShowProgress(ctx context.Context, w io.Writer, message string, fn func() error) error {
	if !isTerminal(w) {
		LogInfo("%s", message)
		return fn()
	}

	done := make(chan error, 1)
	spinnerDone := make(chan struct{})
	stop := make(chan struct{})

	go func() {
		defer close(spinnerDone)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			case <-ticker.C:
				frame := spinnerFrames[i%len(spinnerFrames)]
				_, _ = fmt.Fprintf(w, "\r%s %s", progressStyle.Render(frame), message)
			}
		}
	}()

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		close(stop)
		<-spinnerDone
		if err != nil {
			_, _ = fmt.Fprintf(w, "\r%s %s\n", errorStyle.Render("✗"), message)
			return err
		}
		_, _ = fmt.Fprintf(w, "\r%s %s\n", successStyle.Render("✓"), message)
		return nil
	case <-ctx.Done():
		close(stop)
		<-spinnerDone
		return ctx.Err()
	}
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	printMarked(w, successStyle.Render("✓"), "", message)
}

// PrintError prints an error message
func PrintError(w io.Writer, message string) {
	printMarked(w, errorStyle.Render("✗"), "", message)
}

// PrintInfo prints an info message
func PrintInfo(w io.Writer, message string) {
	printMarked(w, progressStyle.Render("ℹ"), "", message)
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, message string) {
	printMarked(w, warningStyle.Render("⚠"), "WARNING: ", message)
}

func printMarked(w io.Writer, mark, plainPrefix, message string) {
	if isTerminal(w) {
		_, _ = fmt.Fprintf(w, "%s %s\n", mark, message)
		return
	}
	_, _ = fmt.Fprintf(w, "%s%s\n", plainPrefix, message)
}
