package tui

import (
	"github.com/brizzai/plaid-link/internal/tui/models"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

// newItemDelegate renders tools and handles the per-tool keys.
func newItemDelegate(keys *delegateKeyMap) list.DefaultDelegate {
	d := list.NewDefaultDelegate()

	d.UpdateFunc = func(msg tea.Msg, m *list.Model) tea.Cmd {
		item, ok := m.SelectedItem().(models.ToolItem)
		if !ok {
			return nil
		}
		keyMsg, ok := msg.(tea.KeyMsg)
		if !ok {
			return nil
		}

		index := m.GlobalIndex()
		switch {
		case key.Matches(keyMsg, keys.toggle):
			updated := item.ToggleRemoved()
			m.SetItem(index, updated)
			if updated.IsRemoved {
				return m.NewStatusMessage(statusMessageStyle("Disabled " + item.Title()))
			}
			return m.NewStatusMessage(statusMessageStyle("Enabled " + item.Title()))
		case key.Matches(keyMsg, keys.reset):
			if item.NewDescription == "" {
				return nil
			}
			m.SetItem(index, item.UpdatedDescription(""))
			return m.NewStatusMessage(statusMessageStyle("Restored the description of " + item.Title()))
		}
		return nil
	}

	help := []key.Binding{keys.toggle, keys.reset}

	d.ShortHelpFunc = func() []key.Binding {
		return help
	}

	d.FullHelpFunc = func() [][]key.Binding {
		return [][]key.Binding{help}
	}

	return d
}

// delegateKeyMap holds key bindings for list item actions.
type delegateKeyMap struct {
	toggle key.Binding
	reset  key.Binding
}

// newDelegateKeyMap creates a new delegateKeyMap with default bindings.
func newDelegateKeyMap() *delegateKeyMap {
	return &delegateKeyMap{
		toggle: key.NewBinding(
			key.WithKeys("x", "backspace"),
			key.WithHelp("x", "Enable/disable tool"),
		),
		reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Restore description"),
		),
	}
}
