package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/strrl/agent-activity/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("63"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229"))

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Underline(true)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

var statusColors = map[models.SessionStatus]lipgloss.Color{
	models.StatusRunning:   lipgloss.Color("42"),
	models.StatusIdle:      lipgloss.Color("250"),
	models.StatusPaused:    lipgloss.Color("214"),
	models.StatusCompleted: lipgloss.Color("39"),
	models.StatusError:     lipgloss.Color("203"),
}

func statusStyle(s models.SessionStatus) lipgloss.Style {
	color, ok := statusColors[s]
	if !ok {
		color = lipgloss.Color("240")
	}
	return lipgloss.NewStyle().Foreground(color)
}
