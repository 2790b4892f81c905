package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/brizzai/plaid-link/internal/link"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Controller is the part of a link.Flow the link page drives.
type Controller interface {
	Start(ctx context.Context) error
	Cancel()
	Wait(ctx context.Context) (link.Result, error)
	State() link.State
}

// StateFeed buffers flow state changes for the link page. Pass Observe to
// link.WithObserver.
type StateFeed chan link.State

// NewStateFeed creates an empty StateFeed.
func NewStateFeed() StateFeed {
	return make(StateFeed, 16)
}

// Observe queues s without blocking the flow. Changes are dropped when the
// page falls behind; the page re-reads the state after every step.
func (f StateFeed) Observe(s link.State) {
	select {
	case f <- s:
	default:
	}
}

type linkKeyMap struct {
	link   key.Binding
	cancel key.Binding
	quit   key.Binding
}

func (k linkKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.link, k.cancel, k.quit}
}

func (k linkKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func newLinkKeyMap() linkKeyMap {
	return linkKeyMap{
		link: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Link account"),
		),
		cancel: key.NewBinding(
			key.WithKeys("c", "esc"),
			key.WithHelp("c", "Cancel"),
		),
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "Quit"),
		),
	}
}

type (
	stateMsg   link.State
	startedMsg struct{ err error }
	resultMsg  struct {
		res link.Result
		err error
	}
)

// LinkOptions configures the link page.
type LinkOptions struct {
	Title string
	// Update marks an update mode session for an existing item.
	Update bool
}

// LinkModel is the view-controller for one link session. The trigger is
// disabled while a handshake is in flight.
type LinkModel struct {
	ctx      context.Context
	ctrl     Controller
	states   <-chan link.State
	opts     LinkOptions
	keys     linkKeyMap
	help     help.Model
	spinner  spinner.Model
	state    link.State
	starting bool
	status   string
	errText  string
	result   *link.Result
}

// NewLinkModel creates the link page. states may be nil.
func NewLinkModel(ctx context.Context, ctrl Controller, states <-chan link.State, opts LinkOptions) LinkModel {
	if opts.Title == "" {
		opts.Title = "Plaid Link"
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accent)
	return LinkModel{
		ctx:     ctx,
		ctrl:    ctrl,
		states:  states,
		opts:    opts,
		keys:    newLinkKeyMap(),
		help:    help.New(),
		spinner: s,
		state:   ctrl.State(),
	}
}

func (m LinkModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.nextState())
}

func (m LinkModel) nextState() tea.Cmd {
	if m.states == nil {
		return nil
	}
	states := m.states
	return func() tea.Msg {
		return stateMsg(<-states)
	}
}

func (m LinkModel) start() tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: m.ctrl.Start(m.ctx)}
	}
}

func (m LinkModel) wait() tea.Cmd {
	return func() tea.Msg {
		res, err := m.ctrl.Wait(m.ctx)
		return resultMsg{res: res, err: err}
	}
}

// Busy reports whether the trigger is disabled.
func (m LinkModel) Busy() bool {
	return m.starting || m.state.Busy()
}

func (m LinkModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			m.ctrl.Cancel()
			return m, tea.Quit
		case key.Matches(msg, m.keys.cancel):
			if m.Busy() {
				m.ctrl.Cancel()
			}
			return m, nil
		case key.Matches(msg, m.keys.link):
			if m.Busy() {
				return m, nil
			}
			m.starting = true
			m.status = ""
			m.errText = ""
			m.result = nil
			return m, m.start()
		}

	case stateMsg:
		m.state = link.State(msg)
		return m, m.nextState()

	case startedMsg:
		m.starting = false
		m.state = m.ctrl.State()
		switch {
		case msg.err == nil:
			m.status = "Complete the connection in your browser."
			return m, m.wait()
		case errors.Is(msg.err, link.ErrInFlight):
			return m, nil
		case errors.Is(msg.err, link.ErrCancelled):
			m.status = "Cancelled."
		default:
			m.errText = userMessage(msg.err)
		}
		return m, nil

	case resultMsg:
		m.state = m.ctrl.State()
		if msg.err != nil {
			m.errText = userMessage(msg.err)
			return m, nil
		}
		res := msg.res
		m.result = &res
		m.status, m.errText = describeResult(res)
		if res.State == link.StateLinked {
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m LinkModel) View() string {
	title := titleStyle.Render(m.opts.Title)

	label := "Link account"
	if m.opts.Update {
		label = "Update account"
	}
	button := buttonStyle.Render(label)
	if m.Busy() {
		button = disabledButtonStyle.Render(label)
	}

	var progress string
	if m.Busy() {
		progress = fmt.Sprintf("%s %s", m.spinner.View(), stateText(m.state))
	}

	var message string
	switch {
	case m.errText != "":
		message = errorMessageStyle(m.errText)
	case m.result != nil && m.result.State == link.StateLinked:
		message = completeMessageStyle(m.status)
	case m.status != "":
		message = statusMessageStyle(m.status)
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		"",
		button,
		"",
		progress,
		message,
		"",
		m.help.View(m.keys),
	)
	return docStyle.Render(content)
}

// Result is the outcome of the last finished session, or nil.
func (m LinkModel) Result() *link.Result {
	return m.result
}

func stateText(s link.State) string {
	switch s {
	case link.StateRequesting:
		return "Requesting link token..."
	case link.StateWidgetOpen:
		return "Waiting for Plaid Link..."
	case link.StateExchanging:
		return "Saving account..."
	}
	return s.String()
}

func describeResult(res link.Result) (status, errText string) {
	switch res.State {
	case link.StateLinked:
		if res.Exchange == nil {
			return "Account linked.", ""
		}
		if res.Exchange.InstitutionName != "" {
			return fmt.Sprintf("Linked %s (item %s).", res.Exchange.InstitutionName, res.Exchange.ItemID), ""
		}
		return fmt.Sprintf("Linked item %s.", res.Exchange.ItemID), ""
	case link.StateExited:
		if res.Err != nil {
			return "", userMessage(res.Err)
		}
		return "Link closed without connecting an account.", ""
	case link.StateFailed:
		return "", userMessage(res.Err)
	}
	if errors.Is(res.Err, link.ErrCancelled) {
		return "Cancelled.", ""
	}
	return "", ""
}

func userMessage(err error) string {
	var lerr *link.Error
	if errors.As(err, &lerr) {
		return lerr.UserMessage()
	}
	if err == nil {
		return "Something went wrong."
	}
	return err.Error()
}

// RunLink runs the link page until the account is linked or the user quits.
func RunLink(ctx context.Context, ctrl Controller, states <-chan link.State, opts LinkOptions) (*link.Result, error) {
	final, err := tea.NewProgram(NewLinkModel(ctx, ctrl, states, opts), tea.WithContext(ctx)).Run()
	if err != nil {
		return nil, err
	}
	return final.(LinkModel).Result(), nil
}
