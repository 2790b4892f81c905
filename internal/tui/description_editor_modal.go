package tui

import (
	"fmt"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
)

// descriptionLimit keeps tool descriptions within what MCP clients show.
const descriptionLimit = 1024

// DescriptionEditorModal is a textarea for rewriting a tool description.
// ctrl+r restores the description the tool ships with.
type DescriptionEditorModal struct {
	textarea textarea.Model
	original string
}

// NewEditModal opens the editor on current. original is the shipped
// description.
func NewEditModal(current, original string) DescriptionEditorModal {
	ti := textarea.New()
	ti.Placeholder = "Describe what the tool does..."
	ti.CharLimit = descriptionLimit
	ti.SetWidth(80)
	ti.SetValue(current)
	ti.Focus()

	return DescriptionEditorModal{
		textarea: ti,
		original: original,
	}
}

// Init returns the initial command for the modal (textarea blink).
func (m DescriptionEditorModal) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles key events for the modal.
func (m DescriptionEditorModal) Update(msg tea.Msg) (DescriptionEditorModal, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyEsc:
			if m.textarea.Focused() {
				m.textarea.Blur()
			}
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyCtrlR:
			m.textarea.SetValue(m.original)
			return m, nil
		default:
			if !m.textarea.Focused() {
				cmd = m.textarea.Focus()
				cmds = append(cmds, cmd)
			}
		}
	}

	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// Description returns the current value of the textarea.
func (m DescriptionEditorModal) Description() string {
	return m.textarea.Value()
}

// Length counts the characters of the description the way CharLimit does.
func (m DescriptionEditorModal) Length() int {
	return utf8.RuneCountInString(m.textarea.Value())
}

// View renders the modal UI.
func (m DescriptionEditorModal) View(title string) string {
	return fmt.Sprintf(
		"%s\n\n%s\n\n%s",
		editHeaderStyle.Render(title),
		m.textarea.View(),
		fmt.Sprintf("(ctrl+s to save, ctrl+r to restore the original) %d/%d", m.Length(), descriptionLimit),
	) + "\n\n"
}
