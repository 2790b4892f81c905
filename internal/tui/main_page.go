package tui

import (
	"fmt"
	"strings"

	"github.com/brizzai/plaid-link/internal/apispec"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mark3labs/mcp-go/mcp"
)

// MainPageKeyMap holds key bindings for the main page actions
type MainPageKeyMap struct {
	open key.Binding
	quit key.Binding
}

func newMainPageKeyMap() *MainPageKeyMap {
	return &MainPageKeyMap{
		open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Open Tools Editor"),
		),
		quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("ctrl+c/q", "Quit"),
		),
	}
}

// MainPageModel is the landing page of the tools editor. It summarizes the
// current adjustments.
type MainPageModel struct {
	keys       *MainPageKeyMap
	width      int
	height     int
	tools      []mcp.Tool
	enabled    map[string]bool
	overrides  int
	exportPath string
}

// OpenListItemMsg is sent when the user chooses to open the tools list
type OpenListItemMsg struct{}

// NewMainPageModel creates a new main page model
func NewMainPageModel(tools []mcp.Tool, adjuster *apispec.Adjuster, exportPath string) MainPageModel {
	m := MainPageModel{
		keys:       newMainPageKeyMap(),
		tools:      tools,
		enabled:    make(map[string]bool, len(tools)),
		exportPath: exportPath,
	}
	for _, tool := range tools {
		m.enabled[tool.Name] = adjuster.Enabled(tool.Name)
		if adjuster.Description(tool.Name, "") != "" {
			m.overrides++
		}
	}
	return m
}

// Init initializes the model
func (m MainPageModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the main page
func (m MainPageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.open):
			return m, func() tea.Msg {
				return OpenListItemMsg{}
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

// View renders the main page
func (m MainPageModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	centered := lipgloss.NewStyle().
		Width(m.width - 4).
		Align(lipgloss.Center)

	title := titleStyle.Render("MCP Tools Manager")

	enabled := 0
	for _, on := range m.enabled {
		if on {
			enabled++
		}
	}
	description := centered.Padding(1, 0).Render(fmt.Sprintf(
		"Choose which link tools the MCP server exposes and how they are described.\n\n"+
			"%d of %s enabled, %s overridden.\nAdjustments are written to %s.",
		enabled, pluralize(len(m.tools), "tool"), pluralize(m.overrides, "description"), m.exportPath,
	))

	listStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(accent).
		Padding(1, 1).
		Width(m.width - 10).
		Align(lipgloss.Left)

	var content strings.Builder
	for _, tool := range m.tools {
		mark := "[x]"
		if !m.enabled[tool.Name] {
			mark = "[ ]"
		}
		content.WriteString(fmt.Sprintf("%s %s\n", mark, tool.Name))
	}
	toolList := listStyle.Render(strings.TrimRight(content.String(), "\n"))

	instruction := centered.
		Foreground(accent).
		Padding(1, 0).
		Render("Press ENTER to open the tools editor")

	help := centered.
		Foreground(lipgloss.AdaptiveColor{Light: "#626262", Dark: "#A49FA5"}).
		Render("Press q or Ctrl+C to quit")

	return docStyle.Render(lipgloss.JoinVertical(
		lipgloss.Center,
		"",
		title,
		description,
		toolList,
		instruction,
		help,
	))
}

// pluralize returns count followed by noun, pluralized when needed
func pluralize(count int, noun string) string {
	if count == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", count, noun)
}
