// Package link drives the Plaid Link handshake: request a link token, open
// the widget with it, and hand the resulting public token back to the
// backend for exchange.
package link

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brizzai/plaid-link/internal/logger"
	"go.uber.org/zap"
)

// State is the observable state of a Flow.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateWidgetOpen
	StateExchanging
	StateLinked
	StateFailed
	StateExited
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateRequesting: "requesting",
	StateWidgetOpen: "widget_open",
	StateExchanging: "exchanging",
	StateLinked:     "linked",
	StateFailed:     "failed",
	StateExited:     "exited",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Busy reports whether a handshake is in flight.
func (s State) Busy() bool {
	return s == StateRequesting || s == StateWidgetOpen || s == StateExchanging
}

// Backend is the server side of the handshake.
type Backend interface {
	CreateLinkToken(ctx context.Context, req TokenRequest) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string, metadata SuccessMetadata) (*ExchangeResult, error)
}

// Result is the outcome of one handshake.
type Result struct {
	State    State
	Exchange *ExchangeResult
	Err      error
}

// DefaultTimeout bounds each backend call.
const DefaultTimeout = 15 * time.Second

// Option configures a Flow.
type Option func(*Flow)

// WithTimeout bounds each backend call by d.
func WithTimeout(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithReporter sets where failures are reported.
func WithReporter(r Reporter) Option {
	return func(f *Flow) {
		if r != nil {
			f.reporter = r
		}
	}
}

// WithObserver registers fn to be called on every state change. fn may be
// called from any goroutine.
func WithObserver(fn func(State)) Option {
	return func(f *Flow) {
		if fn != nil {
			f.observers = append(f.observers, fn)
		}
	}
}

// WithTokenRequest sets the link token request, e.g. update mode for an item.
func WithTokenRequest(req TokenRequest) Option {
	return func(f *Flow) {
		f.tokenRequest = req
	}
}

// Flow runs one handshake at a time.
type Flow struct {
	backend      Backend
	widgets      WidgetFactory
	reporter     Reporter
	timeout      time.Duration
	tokenRequest TokenRequest
	observers    []func(State)

	mu      sync.Mutex
	state   State
	session uint64
	ctx     context.Context
	cancel  context.CancelFunc
	widget  Widget
	done    chan struct{}
	result  Result
}

// NewFlow creates a Flow.
func NewFlow(backend Backend, widgets WidgetFactory, opts ...Option) *Flow {
	f := &Flow{
		backend:  backend,
		widgets:  widgets,
		reporter: LogReporter{},
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Start requests a link token and opens the widget with it. It returns once
// the widget is open; the rest of the handshake is driven by widget
// callbacks and can be awaited with Wait. Start returns ErrInFlight without
// issuing a request while another handshake is running.
func (f *Flow) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.state.Busy() {
		f.mu.Unlock()
		return ErrInFlight
	}
	f.session++
	session := f.session
	sessCtx, cancel := context.WithCancel(context.Background())
	f.ctx = sessCtx
	f.cancel = cancel
	f.done = make(chan struct{})
	f.result = Result{}
	f.widget = nil
	f.state = StateRequesting
	f.mu.Unlock()
	f.notify(StateRequesting)

	stop := context.AfterFunc(ctx, cancel)
	token, err := f.requestToken(sessCtx)
	stop()

	if err != nil || token == "" {
		if sessCtx.Err() != nil && !isTimeout(err) {
			logger.Info("Link handshake cancelled")
			f.finish(session, Result{State: StateIdle, Err: ErrCancelled})
			return ErrCancelled
		}
		if errors.Is(err, ErrMalformedResponse) {
			return f.fail(session, newError(KindMissingToken, err))
		}
		if err != nil {
			return f.fail(session, newError(KindHandshake, err))
		}
		return f.fail(session, &Error{Kind: KindMissingToken, Err: errors.New("response has no link_token")})
	}

	f.mu.Lock()
	if f.session != session || f.state != StateRequesting {
		f.mu.Unlock()
		return ErrCancelled
	}
	if sessCtx.Err() != nil {
		// Cancel leaves a session that is still requesting to Start.
		f.mu.Unlock()
		logger.Info("Link handshake cancelled")
		f.finish(session, Result{State: StateIdle, Err: ErrCancelled})
		return ErrCancelled
	}
	f.state = StateWidgetOpen
	f.mu.Unlock()
	f.notify(StateWidgetOpen)

	// The factory may call back into the flow, so it runs unlocked.
	widget, err := f.widgets(f.widgetConfig(session, token))
	if err != nil {
		return f.fail(session, newError(KindWidget, err))
	}

	f.mu.Lock()
	if f.session != session || f.state != StateWidgetOpen {
		endErr := ErrCancelled
		if f.session == session {
			endErr = f.result.Err
		}
		f.mu.Unlock()
		if err := widget.Close(); err != nil {
			logger.Warn("Failed to close widget", zap.Error(err))
		}
		return endErr
	}
	f.widget = widget
	f.mu.Unlock()

	if err := widget.Open(); err != nil {
		return f.fail(session, newError(KindWidget, err))
	}
	logger.Info("Link widget opened")
	return nil
}

// Cancel aborts the running handshake. A cancelled handshake never opens the
// widget. It is a no-op when nothing is in flight.
func (f *Flow) Cancel() {
	f.mu.Lock()
	if !f.state.Busy() {
		f.mu.Unlock()
		return
	}
	session := f.session
	if f.cancel != nil {
		f.cancel()
	}
	requesting := f.state == StateRequesting
	f.mu.Unlock()

	// A request in flight resolves itself through Start.
	if requesting {
		return
	}
	logger.Info("Link session cancelled")
	f.finish(session, Result{State: StateIdle, Err: ErrCancelled})
}

// Wait blocks until the current handshake ends or ctx is done.
func (f *Flow) Wait(ctx context.Context) (Result, error) {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()
	if done == nil {
		return Result{State: StateIdle}, nil
	}
	select {
	case <-done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (f *Flow) requestToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.backend.CreateLinkToken(ctx, f.tokenRequest)
}

func (f *Flow) widgetConfig(session uint64, token string) WidgetConfig {
	return WidgetConfig{
		Token: token,
		OnLoad: func() {
			logger.Debug("Link widget loaded")
		},
		OnSuccess: func(publicToken string, metadata SuccessMetadata) {
			f.onSuccess(session, publicToken, metadata)
		},
		OnExit: func(werr *WidgetError, metadata ExitMetadata) {
			f.onExit(session, werr, metadata)
		},
	}
}

func (f *Flow) onSuccess(session uint64, publicToken string, metadata SuccessMetadata) {
	f.mu.Lock()
	if f.session != session || f.state != StateWidgetOpen {
		f.mu.Unlock()
		logger.Debug("Ignoring stale widget success", zap.Uint64("session", session))
		return
	}
	f.state = StateExchanging
	f.mu.Unlock()
	f.notify(StateExchanging)

	go f.exchange(session, publicToken, metadata)
}

func (f *Flow) exchange(session uint64, publicToken string, metadata SuccessMetadata) {
	f.mu.Lock()
	sessCtx := f.ctx
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(sessCtx, f.timeout)
	defer cancel()

	logger.Debug("Exchanging public token", logger.Token("public_token", publicToken))
	res, err := f.backend.ExchangePublicToken(ctx, publicToken, metadata)
	if err != nil {
		if sessCtx.Err() != nil && !isTimeout(err) {
			f.finish(session, Result{State: StateIdle, Err: ErrCancelled})
			return
		}
		_ = f.fail(session, newError(KindExchange, err))
		return
	}
	if f.finish(session, Result{State: StateLinked, Exchange: res}) {
		logger.Info("Account linked", zap.String("item_id", res.ItemID))
	}
}

func (f *Flow) onExit(session uint64, werr *WidgetError, metadata ExitMetadata) {
	f.mu.Lock()
	if f.session != session || f.state != StateWidgetOpen {
		f.mu.Unlock()
		logger.Debug("Ignoring stale widget exit", zap.Uint64("session", session))
		return
	}
	f.mu.Unlock()

	if werr != nil {
		e := newError(KindWidget, werr)
		e.Exit = &metadata
		_ = f.fail(session, e)
		return
	}
	logger.Info("Link widget closed by user",
		zap.String("status", metadata.Status),
		zap.String("link_session_id", metadata.LinkSessionID),
	)
	f.finish(session, Result{State: StateExited})
}

// fail ends the session with err and reports it. It returns err for
// convenience.
func (f *Flow) fail(session uint64, err *Error) error {
	f.end(session, Result{State: StateFailed, Err: err}, err)
	return err
}

// finish ends session with res. It reports whether this call ended it.
func (f *Flow) finish(session uint64, res Result) bool {
	return f.end(session, res, nil)
}

func (f *Flow) end(session uint64, res Result, report *Error) bool {
	f.mu.Lock()
	if f.session != session || !f.state.Busy() {
		f.mu.Unlock()
		return false
	}
	f.state = res.State
	f.result = res
	widget := f.widget
	f.widget = nil
	if f.cancel != nil {
		f.cancel()
	}
	done := f.done
	f.mu.Unlock()

	if widget != nil {
		if err := widget.Close(); err != nil {
			logger.Warn("Failed to close widget", zap.Error(err))
		}
	}
	if report != nil {
		f.reporter.Report(report)
	}
	f.notify(res.State)
	close(done)
	return true
}

func (f *Flow) notify(state State) {
	for _, fn := range f.observers {
		fn(state)
	}
}
