package tui

import (
	"fmt"

	"github.com/brizzai/plaid-link/internal/apispec"
	"github.com/brizzai/plaid-link/internal/tui/models"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/mark3labs/mcp-go/mcp"

	tea "github.com/charmbracelet/bubbletea"
)

// listKeyMap holds key bindings for the list actions.
type listKeyMap struct {
	editDescription key.Binding
	save            key.Binding
	finish          key.Binding
	quit            key.Binding
}

type DoneMsg struct {
	Tools []*models.ToolItem
}

// newListKeyMap creates a new listKeyMap with default bindings.
func newListKeyMap() *listKeyMap {
	return &listKeyMap{
		editDescription: key.NewBinding(
			key.WithKeys("E", "e"),
			key.WithHelp("E", "Edit Description"),
		),
		save: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "Save"),
		),
		finish: key.NewBinding(
			key.WithKeys("F", "f"),
			key.WithHelp("F", "Finish"),
		),
		quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "Quit"),
		),
	}
}

// ListItemModel lists the tools. Each tool can be disabled or get a new
// description in the edit modal.
type ListItemModel struct {
	list      list.Model
	keys      *listKeyMap
	editing   bool
	editIndex int
	editModal DescriptionEditorModal // Holds the edit modal when editing
}

// Init returns the initial command for the list model.
func (m ListItemModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the list and modal, including editing logic.
func (m ListItemModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.editing {
		return m.handleEditModeUpdate(msg)
	}
	return m.handleListModeUpdate(msg)
}

// handleEditModeUpdate handles messages when in edit mode
func (m ListItemModel) handleEditModeUpdate(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.save) {
			m.editing = false
			item := m.list.Items()[m.editIndex].(models.ToolItem)
			newDescription := m.editModal.Description()
			if newDescription == item.Tool.Description {
				newDescription = ""
			}
			if newDescription != item.NewDescription {
				m.list.SetItem(m.editIndex, item.UpdatedDescription(newDescription))
				return m, m.list.NewStatusMessage(statusMessageStyle("Updated description for " + item.Title()))
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
	}
	var cmd tea.Cmd
	m.editModal, cmd = m.editModal.Update(msg)
	return m, cmd
}

// handleListModeUpdate handles messages when in list mode
func (m ListItemModel) handleListModeUpdate(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.editDescription):
			idx := m.list.GlobalIndex()
			item, ok := m.list.SelectedItem().(models.ToolItem)
			if ok {
				if item.IsRemoved {
					return m, m.list.NewStatusMessage(statusMessageStyle("Can't edit removed tools"))
				}
				m.editing = true
				m.editIndex = idx
				// Create the modal with the current description as initial value
				m.editModal = NewEditModal(item.Description(), item.Tool.Description)
				return m, nil
			}
		case key.Matches(msg, m.keys.finish):
			return m, func() tea.Msg {
				return DoneMsg{Tools: m.GetToolUpdates()}
			}
		}
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	m.list.Title = listTitle(m.list.Items())
	return m, cmd
}

// listTitle shows how many tools stay enabled.
func listTitle(items []list.Item) string {
	enabled := 0
	for _, item := range items {
		if !item.(models.ToolItem).IsRemoved {
			enabled++
		}
	}
	return titleStyle.Render(fmt.Sprintf("MCP tools editor (%d/%d enabled)", enabled, len(items)))
}

// View renders either the list or the modal
func (m ListItemModel) View() string {
	if m.editing {
		return docStyle.Render(m.editModal.View(m.list.Items()[m.editIndex].(models.ToolItem).Title()))
	}
	return docStyle.Render(m.list.View())
}

// NewListItemModel creates a TUI model for a list of tools
func NewListItemModel(tools []mcp.Tool, adjuster *apispec.Adjuster) ListItemModel {
	listKeys := newListKeyMap()

	items := make([]list.Item, len(tools))
	for i, tool := range tools {
		items[i] = models.ToolItem{
			Tool:           tool,
			NewDescription: adjuster.Description(tool.Name, ""),
			IsRemoved:      !adjuster.Enabled(tool.Name),
		}
	}
	delegateKeyMap := newDelegateKeyMap()
	delegate := newItemDelegate(delegateKeyMap)

	l := list.New(items, delegate, 0, 0)

	l.Title = listTitle(items)
	l.SetShowFilter(true)
	l.SetStatusBarItemName("tool", "tools")

	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{
			listKeys.editDescription,
			listKeys.finish,
			listKeys.quit,
		}
	}
	return ListItemModel{list: l, keys: listKeys, editIndex: -1}
}

// GetToolUpdates returns every tool with its pending changes, ignoring the
// active filter.
func (m ListItemModel) GetToolUpdates() []*models.ToolItem {
	items := m.list.Items()
	result := make([]*models.ToolItem, len(items))
	for i, item := range items {
		toolItem := item.(models.ToolItem)
		result[i] = &toolItem
	}
	return result
}
