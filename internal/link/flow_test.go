package link

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu        sync.Mutex
	requests  []TokenRequest
	exchanges []string

	token       string
	tokenErr    error
	exchangeErr error
	// started is signalled when CreateLinkToken is entered.
	started chan struct{}
	// release blocks CreateLinkToken until closed.
	release chan struct{}
	// waitCtx makes CreateLinkToken block until its context is done.
	waitCtx bool
	// exchangeWaitCtx does the same for ExchangePublicToken.
	exchangeWaitCtx bool
	// onRequest runs inside CreateLinkToken before it returns.
	onRequest func()
}

func (b *fakeBackend) CreateLinkToken(ctx context.Context, req TokenRequest) (string, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.waitCtx {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if b.release != nil {
		<-b.release
	}
	if b.onRequest != nil {
		b.onRequest()
	}
	return b.token, b.tokenErr
}

func (b *fakeBackend) ExchangePublicToken(ctx context.Context, publicToken string, md SuccessMetadata) (*ExchangeResult, error) {
	b.mu.Lock()
	b.exchanges = append(b.exchanges, publicToken)
	b.mu.Unlock()
	if b.exchangeWaitCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if b.exchangeErr != nil {
		return nil, b.exchangeErr
	}
	res := &ExchangeResult{ItemID: "item-" + publicToken}
	if md.Institution != nil {
		res.InstitutionName = md.Institution.Name
	}
	return res, nil
}

func (b *fakeBackend) requestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func (b *fakeBackend) exchangeTokens() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.exchanges...)
}

type fakeWidget struct {
	mu      sync.Mutex
	configs []WidgetConfig
	opened  int
	closed  int
	openErr error
}

func (w *fakeWidget) factory(cfg WidgetConfig) (Widget, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.configs = append(w.configs, cfg)
	return w, nil
}

func (w *fakeWidget) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opened++
	return w.openErr
}

func (w *fakeWidget) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return nil
}

func (w *fakeWidget) openCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opened
}

func (w *fakeWidget) lastConfig(t *testing.T) WidgetConfig {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	require.NotEmpty(t, w.configs)
	return w.configs[len(w.configs)-1]
}

type recordingReporter struct {
	mu     sync.Mutex
	errors []*Error
}

func (r *recordingReporter) Report(err *Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recordingReporter) reported() []*Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Error(nil), r.errors...)
}

func waitResult(t *testing.T, f *Flow) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := f.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestStartPassesTokenToWidget(t *testing.T) {
	backend := &fakeBackend{token: "link-sandbox-abc"}
	widget := &fakeWidget{}
	f := NewFlow(backend, widget.factory)

	require.NoError(t, f.Start(context.Background()))

	assert.Equal(t, "link-sandbox-abc", widget.lastConfig(t).Token)
	assert.Equal(t, 1, widget.openCount())
	assert.Equal(t, StateWidgetOpen, f.State())
	assert.Equal(t, 1, backend.requestCount())
}

func TestStartSendsTokenRequest(t *testing.T) {
	backend := &fakeBackend{token: "link-sandbox-abc"}
	widget := &fakeWidget{}
	f := NewFlow(backend, widget.factory, WithTokenRequest(TokenRequest{ItemID: "item-1"}))

	require.NoError(t, f.Start(context.Background()))
	require.Len(t, backend.requests, 1)
	assert.Equal(t, TokenRequest{ItemID: "item-1"}, backend.requests[0])
}

func TestHandshakeFailureNeverOpensWidget(t *testing.T) {
	tests := []struct {
		name     string
		backend  *fakeBackend
		wantKind Kind
	}{
		{
			name:     "request error",
			backend:  &fakeBackend{tokenErr: errors.New("connection refused")},
			wantKind: KindHandshake,
		},
		{
			name:     "missing token",
			backend:  &fakeBackend{token: ""},
			wantKind: KindMissingToken,
		},
		{
			name:     "malformed response",
			backend:  &fakeBackend{tokenErr: ErrMalformedResponse},
			wantKind: KindMissingToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			widget := &fakeWidget{}
			reporter := &recordingReporter{}
			f := NewFlow(tt.backend, widget.factory, WithReporter(reporter))

			err := f.Start(context.Background())
			var linkErr *Error
			require.ErrorAs(t, err, &linkErr)
			assert.Equal(t, tt.wantKind, linkErr.Kind)
			assert.False(t, linkErr.Timeout)
			assert.NotEmpty(t, linkErr.UserMessage())

			assert.Zero(t, widget.openCount())
			assert.Empty(t, widget.configs)
			assert.Equal(t, StateFailed, f.State())
			assert.Len(t, reporter.reported(), 1)
		})
	}
}

func TestWidgetSuccessExchangesOnce(t *testing.T) {
	backend := &fakeBackend{token: "link-token"}
	widget := &fakeWidget{}
	f := NewFlow(backend, widget.factory)

	require.NoError(t, f.Start(context.Background()))
	cfg := widget.lastConfig(t)
	md := SuccessMetadata{Institution: &Institution{ID: "ins_1", Name: "First Bank"}}
	cfg.OnSuccess("public-sandbox-1", md)
	cfg.OnSuccess("public-sandbox-1", md)

	res := waitResult(t, f)
	assert.Equal(t, StateLinked, res.State)
	require.NotNil(t, res.Exchange)
	assert.Equal(t, "item-public-sandbox-1", res.Exchange.ItemID)
	assert.Equal(t, "First Bank", res.Exchange.InstitutionName)
	assert.Equal(t, []string{"public-sandbox-1"}, backend.exchangeTokens())
	assert.Equal(t, 1, widget.closed)
}

func TestExchangeFailureIsReported(t *testing.T) {
	backend := &fakeBackend{token: "link-token", exchangeErr: errors.New("status 500")}
	widget := &fakeWidget{}
	reporter := &recordingReporter{}
	f := NewFlow(backend, widget.factory, WithReporter(reporter))

	require.NoError(t, f.Start(context.Background()))
	widget.lastConfig(t).OnSuccess("public-1", SuccessMetadata{})

	res := waitResult(t, f)
	assert.Equal(t, StateFailed, res.State)
	reported := reporter.reported()
	require.Len(t, reported, 1)
	assert.Equal(t, KindExchange, reported[0].Kind)
	assert.Equal(t, res.Err, reported[0])
}

func TestWidgetExitErrorReportedOnce(t *testing.T) {
	backend := &fakeBackend{token: "link-token"}
	widget := &fakeWidget{}
	reporter := &recordingReporter{}
	f := NewFlow(backend, widget.factory, WithReporter(reporter))

	require.NoError(t, f.Start(context.Background()))
	cfg := widget.lastConfig(t)
	werr := &WidgetError{ErrorType: "ITEM_ERROR", ErrorCode: "INVALID_CREDENTIALS", ErrorMessage: "bad creds", DisplayMessage: "Check your password."}
	md := ExitMetadata{Status: "requires_credentials", LinkSessionID: "sess-1"}
	cfg.OnExit(werr, md)
	cfg.OnExit(werr, md)

	res := waitResult(t, f)
	assert.Equal(t, StateFailed, res.State)
	reported := reporter.reported()
	require.Len(t, reported, 1)
	assert.Equal(t, KindWidget, reported[0].Kind)
	assert.ErrorIs(t, reported[0], werr)
	require.NotNil(t, reported[0].Exit)
	assert.Equal(t, "sess-1", reported[0].Exit.LinkSessionID)
	assert.Equal(t, "Check your password.", reported[0].UserMessage())
	assert.Empty(t, backend.exchangeTokens())
}

func TestWidgetExitWithoutErrorIsNotReported(t *testing.T) {
	backend := &fakeBackend{token: "link-token"}
	widget := &fakeWidget{}
	reporter := &recordingReporter{}
	f := NewFlow(backend, widget.factory, WithReporter(reporter))

	require.NoError(t, f.Start(context.Background()))
	widget.lastConfig(t).OnExit(nil, ExitMetadata{Status: "institution_not_found"})

	res := waitResult(t, f)
	assert.Equal(t, StateExited, res.State)
	assert.NoError(t, res.Err)
	assert.Empty(t, reporter.reported())
}

func TestDoubleStartIssuesOneRequest(t *testing.T) {
	backend := &fakeBackend{
		token:   "link-token",
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	widget := &fakeWidget{}
	f := NewFlow(backend, widget.factory)

	errCh := make(chan error, 1)
	go func() { errCh <- f.Start(context.Background()) }()
	<-backend.started

	assert.True(t, f.State().Busy())
	assert.ErrorIs(t, f.Start(context.Background()), ErrInFlight)

	close(backend.release)
	require.NoError(t, <-errCh)
	assert.Equal(t, 1, backend.requestCount())
	assert.Equal(t, 1, widget.openCount())

	assert.ErrorIs(t, f.Start(context.Background()), ErrInFlight)
}

func TestStartAgainAfterFinish(t *testing.T) {
	backend := &fakeBackend{token: "link-token"}
	widget := &fakeWidget{}
	f := NewFlow(backend, widget.factory)

	require.NoError(t, f.Start(context.Background()))
	widget.lastConfig(t).OnExit(nil, ExitMetadata{})
	waitResult(t, f)

	require.NoError(t, f.Start(context.Background()))
	assert.Equal(t, 2, backend.requestCount())
}

func TestHandshakeTimeout(t *testing.T) {
	backend := &fakeBackend{waitCtx: true}
	widget := &fakeWidget{}
	reporter := &recordingReporter{}
	f := NewFlow(backend, widget.factory, WithTimeout(20*time.Millisecond), WithReporter(reporter))

	err := f.Start(context.Background())
	var linkErr *Error
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, KindHandshake, linkErr.Kind)
	assert.True(t, linkErr.Timeout)
	assert.Zero(t, widget.openCount())
	assert.Len(t, reporter.reported(), 1)
}

func TestExchangeTimeout(t *testing.T) {
	backend := &fakeBackend{token: "link-token", exchangeWaitCtx: true}
	widget := &fakeWidget{}
	reporter := &recordingReporter{}
	f := NewFlow(backend, widget.factory, WithTimeout(30*time.Millisecond), WithReporter(reporter))

	require.NoError(t, f.Start(context.Background()))
	widget.lastConfig(t).OnSuccess("public-1", SuccessMetadata{})

	res := waitResult(t, f)
	assert.Equal(t, StateFailed, res.State)
	reported := reporter.reported()
	require.Len(t, reported, 1)
	assert.Equal(t, KindExchange, reported[0].Kind)
	assert.True(t, reported[0].Timeout)
	assert.Equal(t, res.Err, reported[0])
	assert.Equal(t, []string{"public-1"}, backend.exchangeTokens())
}

func TestCancelAsTokenArrives(t *testing.T) {
	backend := &fakeBackend{token: "link-token"}
	widget := &fakeWidget{}
	reporter := &recordingReporter{}
	f := NewFlow(backend, widget.factory, WithReporter(reporter))
	// The request succeeds, but the user has already cancelled.
	backend.onRequest = f.Cancel

	assert.ErrorIs(t, f.Start(context.Background()), ErrCancelled)
	assert.Empty(t, widget.configs)
	assert.Zero(t, widget.openCount())
	assert.Empty(t, reporter.reported())
	assert.Equal(t, StateIdle, f.State())

	res := waitResult(t, f)
	assert.ErrorIs(t, res.Err, ErrCancelled)
}

func TestWidgetExitDuringInit(t *testing.T) {
	backend := &fakeBackend{token: "link-token"}
	widget := &fakeWidget{}
	reporter := &recordingReporter{}
	factory := func(cfg WidgetConfig) (Widget, error) {
		cfg.OnExit(&WidgetError{ErrorCode: "INTERNAL_SERVER_ERROR", ErrorMessage: "init failed"}, ExitMetadata{Status: "requires_credentials"})
		return widget.factory(cfg)
	}
	f := NewFlow(backend, factory, WithReporter(reporter))

	err := f.Start(context.Background())
	var linkErr *Error
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, KindWidget, linkErr.Kind)
	assert.Zero(t, widget.openCount())
	assert.Equal(t, 1, widget.closed)
	assert.Len(t, reporter.reported(), 1)
	assert.Equal(t, StateFailed, f.State())
}

func TestCancelDuringHandshake(t *testing.T) {
	backend := &fakeBackend{waitCtx: true, started: make(chan struct{}, 1)}
	widget := &fakeWidget{}
	reporter := &recordingReporter{}
	f := NewFlow(backend, widget.factory, WithReporter(reporter))

	errCh := make(chan error, 1)
	go func() { errCh <- f.Start(context.Background()) }()
	<-backend.started
	f.Cancel()

	assert.ErrorIs(t, <-errCh, ErrCancelled)
	assert.Zero(t, widget.openCount())
	assert.Empty(t, reporter.reported())
	assert.Equal(t, StateIdle, f.State())
}

func TestCallerContextCancelsHandshake(t *testing.T) {
	backend := &fakeBackend{waitCtx: true, started: make(chan struct{}, 1)}
	widget := &fakeWidget{}
	f := NewFlow(backend, widget.factory)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.Start(ctx) }()
	<-backend.started
	cancel()

	assert.ErrorIs(t, <-errCh, ErrCancelled)
	assert.Zero(t, widget.openCount())
}

func TestCancelClosesOpenWidget(t *testing.T) {
	backend := &fakeBackend{token: "link-token"}
	widget := &fakeWidget{}
	f := NewFlow(backend, widget.factory)

	require.NoError(t, f.Start(context.Background()))
	f.Cancel()

	res := waitResult(t, f)
	assert.ErrorIs(t, res.Err, ErrCancelled)
	assert.Equal(t, 1, widget.closed)

	// Late callbacks from the closed widget are ignored.
	widget.lastConfig(t).OnSuccess("public-late", SuccessMetadata{})
	assert.Empty(t, backend.exchangeTokens())
}

func TestWidgetOpenFailure(t *testing.T) {
	backend := &fakeBackend{token: "link-token"}
	widget := &fakeWidget{openErr: errors.New("no browser")}
	reporter := &recordingReporter{}
	f := NewFlow(backend, widget.factory, WithReporter(reporter))

	err := f.Start(context.Background())
	var linkErr *Error
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, KindWidget, linkErr.Kind)
	assert.Len(t, reporter.reported(), 1)
}

func TestObserverSeesStates(t *testing.T) {
	var mu sync.Mutex
	var states []State
	backend := &fakeBackend{token: "link-token"}
	widget := &fakeWidget{}
	f := NewFlow(backend, widget.factory, WithObserver(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	}))

	require.NoError(t, f.Start(context.Background()))
	widget.lastConfig(t).OnSuccess("public-1", SuccessMetadata{})
	waitResult(t, f)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateRequesting, StateWidgetOpen, StateExchanging, StateLinked}, states)
}

func TestWaitWithoutSession(t *testing.T) {
	f := NewFlow(&fakeBackend{}, (&fakeWidget{}).factory)
	res, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, res.State)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "widget_open", StateWidgetOpen.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.False(t, StateLinked.Busy())
	assert.True(t, StateExchanging.Busy())
}
