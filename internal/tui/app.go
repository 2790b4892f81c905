package tui

import (
	"github.com/brizzai/plaid-link/internal/apispec"
	"github.com/brizzai/plaid-link/internal/tui/models"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mark3labs/mcp-go/mcp"
)

type page int

const (
	pageMain page = iota
	pageList
	pageExport
)

// AppModel is the tools editor: a landing page, the tools list and the
// export prompt.
type AppModel struct {
	mainPage   MainPageModel
	listView   ListItemModel
	exportView ExportView
	exportPath string
	size       tea.WindowSizeMsg
	page       page
}

// NewAppModel creates the editor for tools, starting from the current
// adjustments. Exports default to exportPath.
func NewAppModel(tools []mcp.Tool, adjuster *apispec.Adjuster, exportPath string) AppModel {
	return AppModel{
		mainPage:   NewMainPageModel(tools, adjuster, exportPath),
		listView:   NewListItemModel(tools, adjuster),
		exportPath: exportPath,
		page:       pageMain,
	}
}

func (m AppModel) Init() tea.Cmd {
	return tea.Batch(
		m.mainPage.Init(),
		m.listView.Init(),
	)
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case OpenListItemMsg:
		m.page = pageList
		return m, m.listView.Init()

	case DoneMsg:
		m.page = pageExport
		m.exportView = NewExportView(msg.Tools, m.exportPath)
		// The export view is created late and has not seen the window size.
		m.exportView.width, m.exportView.height = m.size.Width, m.size.Height
		return m, m.exportView.Init()

	case BackToMainMsg:
		m.page = pageList
		return m, nil

	case ExportedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "esc" && m.page == pageList && !m.listView.editing {
			m.page = pageMain
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.size = msg
		var mainCmd, listCmd, exportCmd tea.Cmd
		m.mainPage, mainCmd = updateAs[MainPageModel](m.mainPage, msg)
		m.listView, listCmd = updateAs[ListItemModel](m.listView, msg)
		m.exportView, exportCmd = updateAs[ExportView](m.exportView, msg)
		return m, tea.Batch(mainCmd, listCmd, exportCmd)
	}

	var cmd tea.Cmd
	switch m.page {
	case pageMain:
		m.mainPage, cmd = updateAs[MainPageModel](m.mainPage, msg)
	case pageList:
		m.listView, cmd = updateAs[ListItemModel](m.listView, msg)
	case pageExport:
		m.exportView, cmd = updateAs[ExportView](m.exportView, msg)
	}
	return m, cmd
}

// updateAs runs a page's Update and restores its concrete type.
func updateAs[M tea.Model](model M, msg tea.Msg) (M, tea.Cmd) {
	next, cmd := model.Update(msg)
	return next.(M), cmd
}

func (m AppModel) View() string {
	switch m.page {
	case pageMain:
		return m.mainPage.View()
	case pageExport:
		return m.exportView.View()
	default:
		return m.listView.View()
	}
}

// GetToolUpdates delegates to the list view
func (m AppModel) GetToolUpdates() []*models.ToolItem {
	return m.listView.GetToolUpdates()
}

// IsFinished reports whether the adjustments were exported.
func (m AppModel) IsFinished() bool {
	return m.exportView.Success
}
