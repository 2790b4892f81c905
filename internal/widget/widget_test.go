package widget

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brizzai/plaid-link/internal/config"
	"github.com/brizzai/plaid-link/internal/link"
	"github.com/brizzai/plaid-link/internal/plaid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callbacks struct {
	mu        sync.Mutex
	loaded    int
	successes []string
	exits     []*link.WidgetError
	success   link.SuccessMetadata
	exit      link.ExitMetadata
	fired     chan struct{}
}

func newCallbacks() *callbacks {
	return &callbacks{fired: make(chan struct{}, 4)}
}

func (c *callbacks) config(token string) link.WidgetConfig {
	return link.WidgetConfig{
		Token: token,
		OnLoad: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.loaded++
		},
		OnSuccess: func(publicToken string, md link.SuccessMetadata) {
			c.mu.Lock()
			c.successes = append(c.successes, publicToken)
			c.success = md
			c.mu.Unlock()
			c.fired <- struct{}{}
		},
		OnExit: func(err *link.WidgetError, md link.ExitMetadata) {
			c.mu.Lock()
			c.exits = append(c.exits, err)
			c.exit = md
			c.mu.Unlock()
			c.fired <- struct{}{}
		},
	}
}

func (c *callbacks) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked")
	}
}

func openBrowser(t *testing.T, cb *callbacks) (*Browser, string) {
	t.Helper()
	var opened string
	factory := NewBrowserFactory(BrowserOptions{
		Title:   "Test Link",
		OpenURL: func(url string) error { opened = url; return nil },
	})
	w, err := factory(cb.config("link-sandbox-abc123"))
	require.NoError(t, err)
	require.NoError(t, w.Open())
	t.Cleanup(func() { _ = w.Close() })
	b := w.(*Browser)
	assert.Equal(t, b.URL(), opened)
	return b, opened
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestBrowserFactoryRequiresToken(t *testing.T) {
	_, err := NewBrowserFactory(BrowserOptions{})(link.WidgetConfig{})
	assert.Error(t, err)
}

func TestBrowserServesPageWithToken(t *testing.T) {
	cb := newCallbacks()
	_, url := openBrowser(t, cb)

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "link-initialize.js")
	assert.Contains(t, string(body), "<title>Test Link</title>")
	// The token is rendered as a JS string literal.
	assert.Contains(t, string(body), `"link-sandbox-abc123"`)
}

func TestBrowserRelaysSuccess(t *testing.T) {
	cb := newCallbacks()
	_, url := openBrowser(t, cb)

	resp := post(t, url+"load", `{}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = post(t, url+"success", `{"public_token":"public-sandbox-1","metadata":{"institution":{"institution_id":"ins_1","name":"First Bank"},"link_session_id":"s1"}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	cb.wait(t)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	assert.Equal(t, 1, cb.loaded)
	assert.Equal(t, []string{"public-sandbox-1"}, cb.successes)
	require.NotNil(t, cb.success.Institution)
	assert.Equal(t, "First Bank", cb.success.Institution.Name)
}

func TestBrowserRelaysExitOnce(t *testing.T) {
	cb := newCallbacks()
	_, url := openBrowser(t, cb)

	resp := post(t, url+"exit", `{"error":{"error_type":"ITEM_ERROR","error_code":"ITEM_LOCKED","error_message":"locked"},"metadata":{"status":"requires_credentials"}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	cb.wait(t)

	resp = post(t, url+"success", `{"public_token":"public-late"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	require.Len(t, cb.exits, 1)
	require.NotNil(t, cb.exits[0])
	assert.Equal(t, "ITEM_LOCKED", cb.exits[0].ErrorCode)
	assert.Equal(t, "requires_credentials", cb.exit.Status)
	assert.Empty(t, cb.successes)
}

func TestBrowserRejectsBadPayload(t *testing.T) {
	cb := newCallbacks()
	_, url := openBrowser(t, cb)

	resp := post(t, url+"success", `{"metadata":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = post(t, url+"exit", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBrowserCloseStopsServer(t *testing.T) {
	cb := newCallbacks()
	b, url := openBrowser(t, cb)
	require.NoError(t, b.Close())

	client := &http.Client{Timeout: time.Second}
	_, err := client.Post(url+"exit", "application/json", bytes.NewReader([]byte(`{}`)))
	assert.Error(t, err)
}

func TestBrowserOpenFailureStillServes(t *testing.T) {
	cb := newCallbacks()
	factory := NewBrowserFactory(BrowserOptions{OpenURL: func(string) error { return errors.New("no display") }})
	w, err := factory(cb.config("link-token"))
	require.NoError(t, err)
	require.NoError(t, w.Open())
	defer w.Close()

	resp, err := http.Get(w.(*Browser).URL())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type fakeCreator struct {
	token       string
	err         error
	institution string
	products    []string
}

func (f *fakeCreator) SandboxPublicTokenCreate(_ context.Context, institutionID string, products []string) (string, error) {
	f.institution = institutionID
	f.products = products
	return f.token, f.err
}

func TestSandboxSuccess(t *testing.T) {
	creator := &fakeCreator{token: "public-sandbox-xyz"}
	factory, err := NewSandboxFactory(SandboxOptions{Client: creator})
	require.NoError(t, err)

	cb := newCallbacks()
	w, err := factory(cb.config("link-token"))
	require.NoError(t, err)
	require.NoError(t, w.Open())
	cb.wait(t)
	require.NoError(t, w.Close())

	cb.mu.Lock()
	defer cb.mu.Unlock()
	assert.Equal(t, []string{"public-sandbox-xyz"}, cb.successes)
	assert.Equal(t, 1, cb.loaded)
	assert.Equal(t, DefaultSandboxInstitution, creator.institution)
	assert.Equal(t, []string{"transactions"}, creator.products)
	assert.NotEmpty(t, cb.success.LinkSessionID)
}

func TestSandboxError(t *testing.T) {
	creator := &fakeCreator{err: &plaid.Error{ErrorType: "INVALID_INPUT", ErrorCode: "INVALID_INSTITUTION", ErrorMessage: "bad institution"}}
	factory, err := NewSandboxFactory(SandboxOptions{Client: creator, InstitutionID: "ins_bad"})
	require.NoError(t, err)

	cb := newCallbacks()
	w, err := factory(cb.config("link-token"))
	require.NoError(t, err)
	require.NoError(t, w.Open())
	cb.wait(t)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	require.Len(t, cb.exits, 1)
	assert.Equal(t, "INVALID_INSTITUTION", cb.exits[0].ErrorCode)
	assert.Equal(t, "sandbox_error", cb.exit.Status)
}

func TestSandboxFactoryNeedsClient(t *testing.T) {
	_, err := NewSandboxFactory(SandboxOptions{})
	assert.Error(t, err)
}

func TestNewFactory(t *testing.T) {
	cfg := config.Default()

	cfg.Client.Widget = KindBrowser
	f, err := NewFactory(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, f)

	cfg.Client.Widget = KindSandbox
	_, err = NewFactory(cfg, nil)
	assert.Error(t, err)
	f, err = NewFactory(cfg, &fakeCreator{})
	require.NoError(t, err)
	assert.NotNil(t, f)

	cfg.Client.Widget = "iframe"
	_, err = NewFactory(cfg, nil)
	assert.Error(t, err)
}

func TestFlowWithSandboxWidget(t *testing.T) {
	factory, err := NewSandboxFactory(SandboxOptions{Client: &fakeCreator{token: "public-sandbox-1"}})
	require.NoError(t, err)
	backend := &stubBackend{}
	f := link.NewFlow(backend, factory)

	require.NoError(t, f.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, link.StateLinked, res.State)
	assert.Equal(t, "public-sandbox-1", backend.exchanged)
}

type stubBackend struct {
	exchanged string
}

func (s *stubBackend) CreateLinkToken(context.Context, link.TokenRequest) (string, error) {
	return "link-sandbox-1", nil
}

func (s *stubBackend) ExchangePublicToken(_ context.Context, publicToken string, _ link.SuccessMetadata) (*link.ExchangeResult, error) {
	s.exchanged = publicToken
	return &link.ExchangeResult{ItemID: "item-1"}, nil
}
