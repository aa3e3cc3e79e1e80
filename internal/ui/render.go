package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/treykane/sshkit/internal/model"
)

var (
	accentMain    = lipgloss.Color("39")
	accentDetail  = lipgloss.Color("69")
	accentStatus  = lipgloss.Color("205")
	accentWarn    = lipgloss.Color("214")
	accentConfirm = lipgloss.Color("196")
	accentHelp    = lipgloss.Color("244")
)

func (m modelUI) effectiveWidth() int {
	if m.width <= 0 {
		return 100
	}
	return m.width
}

func (m modelUI) renderPanel(title, body string, width int, accent lipgloss.Color) string {
	if width < 24 {
		width = 24
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(title)
	content := strings.TrimSuffix(body, "\n")
	panel := strings.TrimSpace(header + "\n" + content)
	return lipgloss.NewStyle().
		Width(width).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(panel)
}

// cursorList renders items with a ">" marker on the selected row.
func cursorList(items []string, sel int, empty string) string {
	if len(items) == 0 {
		return "  " + empty + "\n"
	}
	var b strings.Builder
	for i, it := range items {
		cursor := " "
		if i == sel {
			cursor = ">"
		}
		b.WriteString(fmt.Sprintf("%s %d. %s\n", cursor, i+1, it))
	}
	return b.String()
}

func keyRow(k model.KeyPair) string {
	flags := ""
	if !k.HasPrivateKey {
		flags += " [no private key]"
	}
	if k.HasPassphrase {
		flags += " [passphrase]"
	}
	if k.LoadedInAgent {
		flags += " [agent]"
	}
	return fmt.Sprintf("%-28s %s", k.Label(), flags)
}

func keyRows(pairs []model.KeyPair) []string {
	out := make([]string, 0, len(pairs))
	for _, k := range pairs {
		out = append(out, keyRow(k))
	}
	return out
}

func hostRow(h model.HostEntry) string {
	user := h.User
	if user == "" {
		user = "-"
	}
	return fmt.Sprintf("%-20s %-24s %-12s %d", h.Alias, h.DisplayTarget(), user, h.EffectivePort())
}

func hostRows(hosts []model.HostEntry) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, hostRow(h))
	}
	return out
}

func severityColor(s model.Severity) lipgloss.Color {
	switch s {
	case model.SeverityHigh:
		return lipgloss.Color("196")
	case model.SeverityMedium:
		return lipgloss.Color("214")
	default:
		return lipgloss.Color("244")
	}
}

func findingRows(findings []model.SecurityFinding) string {
	if len(findings) == 0 {
		return "  No findings. Permissions and key strength look good.\n"
	}
	var b strings.Builder
	for _, f := range findings {
		sev := lipgloss.NewStyle().Foreground(severityColor(f.Severity)).Render(fmt.Sprintf("%-6s", f.Severity))
		b.WriteString(fmt.Sprintf("  %s %-22s %s (is %s, want %s)\n", sev, f.Kind, f.Subject, f.Observed, f.Expected))
	}
	return b.String()
}
