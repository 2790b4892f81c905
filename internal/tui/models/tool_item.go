package models

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolItem wraps an MCP tool for display in the list
// Implements list.Item
type ToolItem struct {
	Tool           mcp.Tool
	NewDescription string
	IsRemoved      bool
}

func (i ToolItem) Title() string {
	return i.Tool.Name
}

func (i ToolItem) Description() string {
	if i.IsRemoved {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Render("[Removed]")
	}
	if i.NewDescription != "" {
		return i.NewDescription
	}
	return i.Tool.Description
}

func (i ToolItem) UpdatedDescription(newDescription string) ToolItem {
	i.NewDescription = newDescription
	return i
}

func (i ToolItem) ToggleRemoved() ToolItem {
	i.IsRemoved = !i.IsRemoved
	return i
}

func (i ToolItem) FilterValue() string {
	return i.Tool.Name + " " + i.Tool.Description
}
