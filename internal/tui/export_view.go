package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brizzai/plaid-link/internal/apispec"
	"github.com/brizzai/plaid-link/internal/tui/models"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"
)

// ExportView handles prompting for a filename and exporting the adjustments
type ExportView struct {
	tools        []*models.ToolItem
	textInput    textinput.Model
	err          error
	width        int
	height       int
	exportStatus string
	Success      bool
}

// NewExportView creates a new export view, prefilled with defaultPath
func NewExportView(tools []*models.ToolItem, defaultPath string) ExportView {
	ti := textinput.New()
	ti.Placeholder = "adjustments.yaml"
	ti.SetValue(defaultPath)
	ti.Focus()
	ti.Width = 40

	return ExportView{
		tools:     tools,
		textInput: ti,
	}
}

// Init initializes the export view
func (m ExportView) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the export view
func (m ExportView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			// Return to the tools list
			return m, func() tea.Msg { return BackToMainMsg{} }
		case "enter":
			// Process export
			if m.textInput.Value() == "" {
				m.exportStatus = "Please enter a filename"
				return m, nil
			}

			filename := m.textInput.Value()
			if !strings.HasSuffix(filename, ".yaml") && !strings.HasSuffix(filename, ".yml") {
				filename += ".yaml"
			}

			err := ExportAdjustmentsToYamlFile(m.tools, filename)
			if err != nil {
				m.err = err
				m.exportStatus = fmt.Sprintf("Error exporting: %v", err)
				return m, nil
			}

			if _, err := os.Stat(filename); os.IsNotExist(err) {
				m.exportStatus = fmt.Sprintf("Error: File %s was not created", filename)
				return m, nil
			}

			m.Success = true
			m.exportStatus = completeMessageStyle(fmt.Sprintf("Successfully exported to %s", filename))
			// Wait for 1 second, then exit the application
			return m, tea.Tick(time.Second*1, func(time.Time) tea.Msg {
				return ExportedMsg{Path: filename}
			})
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// View renders the export view
func (m ExportView) View() string {
	var sb strings.Builder

	// Calculate vertical centering
	verticalPadding := (m.height - 6) / 2
	for i := 0; i < verticalPadding; i++ {
		sb.WriteString("\n")
	}

	title := titleStyle.Render("Export Tool Adjustments")
	sb.WriteString(centerText(title, m.width))
	sb.WriteString("\n\n")

	prompt := "Enter filename to export adjustments:"
	sb.WriteString(centerText(prompt, m.width))
	sb.WriteString("\n")

	input := m.textInput.View()
	sb.WriteString(centerText(input, m.width))
	sb.WriteString("\n\n")

	if m.exportStatus != "" {
		sb.WriteString(centerText(m.exportStatus, m.width))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(centerText("(esc) Back to tools | (enter) Export", m.width))

	return sb.String()
}

// BackToMainMsg signals to go back to the tools list
type BackToMainMsg struct{}

// ExportedMsg is sent once the adjustments file has been written.
type ExportedMsg struct {
	Path string
}

// ErrNoToolsSelected is returned when every tool is marked as removed.
var ErrNoToolsSelected = errors.New("at least one tool must stay enabled")

// BuildAdjustments converts the edited tools into adjustments. The tool
// selection is left empty when nothing was removed, so tools added later are
// exposed too.
func BuildAdjustments(tools []*models.ToolItem) (apispec.Adjustments, error) {
	var out apispec.Adjustments
	var enabled []string
	for _, item := range tools {
		if item.NewDescription != "" {
			out.Descriptions = append(out.Descriptions, apispec.ToolDescription{
				Tool:        item.Tool.Name,
				Description: item.NewDescription,
			})
		}
		if !item.IsRemoved {
			enabled = append(enabled, item.Tool.Name)
		}
	}
	if len(tools) > 0 && len(enabled) == 0 {
		return apispec.Adjustments{}, ErrNoToolsSelected
	}
	if len(enabled) < len(tools) {
		out.Tools = enabled
	}
	return out, nil
}

// ExportAdjustmentsToYamlFile writes the adjustments for tools to filename.
func ExportAdjustmentsToYamlFile(tools []*models.ToolItem, filename string) error {
	adjustments, err := BuildAdjustments(tools)
	if err != nil {
		return err
	}

	yamlData, err := yaml.Marshal(adjustments)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, yamlData, 0o644)
}

// Helper function to center text horizontally
func centerText(text string, width int) string {
	if width <= len(text) {
		return text
	}

	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}
