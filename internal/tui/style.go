package tui

import "github.com/charmbracelet/lipgloss"

const accent = lipgloss.Color("#f56a96")

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#15202b")).
			Background(accent).
			Padding(0, 1)

	editHeaderStyle = lipgloss.NewStyle().
			Foreground(accent).
			Padding(0, 1)

	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#15202b")).
			Background(accent).
			Padding(0, 3)

	disabledButtonStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#A49FA5")).
				Background(lipgloss.Color("#3c3c3c")).
				Padding(0, 3)

	statusMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#f56a96", Dark: "#f23a74"}).
				Render

	completeMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#56FF4E")).
				Render

	errorMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FF0000")).
				Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)
)
