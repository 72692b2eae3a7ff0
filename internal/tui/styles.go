package tui

import "github.com/charmbracelet/lipgloss"

var (
	// TitleStyle styles the board title.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))

	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)

	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	statusStyles = map[string]lipgloss.Style{
		StatusOK:          green,
		StatusInstalled:   green,
		StatusReinstalled: green,
		StatusChecking:    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		StatusMissing:     yellow,
		StatusOutdated:    yellow,
		StatusError:       lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		StatusPending:     lipgloss.NewStyle().Faint(true),
	}

	// activeStatuses mark rows that have not finished yet.
	activeStatuses = map[string]bool{
		StatusPending:  true,
		StatusChecking: true,
	}
)

// StatusStyle returns the style for a row status; unknown statuses are unstyled.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
