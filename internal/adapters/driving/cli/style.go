package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// palette mirrors the colours of the interactive theme.
var (
	colorPrimary   = lipgloss.Color("#7C3AED")
	colorSecondary = lipgloss.Color("#06B6D4")
	colorMuted     = lipgloss.Color("#6C7086")
	colorSuccess   = lipgloss.Color("#A6E3A1")
	colorWarning   = lipgloss.Color("#F9E2AF")
	colorError     = lipgloss.Color("#F38BA8")
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	accentStyle  = lipgloss.NewStyle().Foreground(colorSecondary)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorError)
)

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// paint renders s with style when the command writes to a terminal.
// Redirected output and tests get plain text.
func paint(cmd *cobra.Command, style lipgloss.Style, s string) string {
	if !isTerminal(cmd.OutOrStdout()) {
		return s
	}
	return style.Render(s)
}

// paintErr is paint for the error stream.
func paintErr(cmd *cobra.Command, style lipgloss.Style, s string) string {
	if !isTerminal(cmd.ErrOrStderr()) {
		return s
	}
	return style.Render(s)
}
