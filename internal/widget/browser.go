// Package widget provides the Plaid Link widgets the link flow can open.
package widget

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/brizzai/plaid-link/internal/link"
	"github.com/brizzai/plaid-link/internal/logger"
	"go.uber.org/zap"
)

const (
	loadPath    = "/load"
	successPath = "/success"
	exitPath    = "/exit"
)

//go:embed page.html
var pageHTML string

var pageTemplate = template.Must(template.New("page").Parse(pageHTML))

// BrowserOptions configures the browser widget.
type BrowserOptions struct {
	// Port is the loopback port of the callback server; 0 picks a free one.
	Port int
	// Title is shown on the page.
	Title string
	// OpenURL opens the page. Defaults to OpenBrowser.
	OpenURL func(url string) error
}

// Browser hosts Plaid Link on a loopback page in the system browser and
// relays the page's callbacks to the flow.
type Browser struct {
	cfg  link.WidgetConfig
	opts BrowserOptions

	mu       sync.Mutex
	server   *http.Server
	url      string
	finished bool
}

// NewBrowserFactory returns a factory for browser widgets.
func NewBrowserFactory(opts BrowserOptions) link.WidgetFactory {
	if opts.Title == "" {
		opts.Title = "Link your account"
	}
	if opts.OpenURL == nil {
		opts.OpenURL = OpenBrowser
	}
	return func(cfg link.WidgetConfig) (link.Widget, error) {
		if cfg.Token == "" {
			return nil, errors.New("widget: link token is required")
		}
		return &Browser{cfg: cfg, opts: opts}, nil
	}
}

// Open starts the callback server and opens the page.
func (b *Browser) Open() error {
	b.mu.Lock()
	if b.server != nil {
		b.mu.Unlock()
		return errors.New("widget: already open")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", b.handlePage)
	mux.HandleFunc("POST "+loadPath, b.handleLoad)
	mux.HandleFunc("POST "+successPath, b.handleSuccess)
	mux.HandleFunc("POST "+exitPath, b.handleExit)

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", b.opts.Port))
	if err != nil {
		b.mu.Unlock()
		logger.Error("Could not listen for widget callbacks", zap.Int("port", b.opts.Port), zap.Error(err))
		return fmt.Errorf("widget: listen: %w", err)
	}
	b.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	b.url = "http://" + listener.Addr().String() + "/"
	server := b.server
	url := b.url
	b.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Widget server error", zap.Error(err))
		}
	}()

	logger.Info("Link page ready", zap.String("url", url))
	if err := b.opts.OpenURL(url); err != nil {
		// The page can still be opened by hand.
		logger.Warn("Failed to open browser automatically", zap.String("url", url), zap.Error(err))
	}
	return nil
}

// URL is the address of the page once the widget is open.
func (b *Browser) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url
}

// Close stops the callback server.
func (b *Browser) Close() error {
	b.mu.Lock()
	server := b.server
	b.finished = true
	b.mu.Unlock()
	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("widget: shutdown: %w", err)
	}
	logger.Debug("Widget server stopped")
	return nil
}

func (b *Browser) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	data := struct {
		Title string
		Token string
	}{Title: b.opts.Title, Token: b.cfg.Token}
	if err := pageTemplate.Execute(w, data); err != nil {
		logger.Error("Error rendering link page", zap.Error(err))
	}
}

func (b *Browser) handleLoad(w http.ResponseWriter, r *http.Request) {
	if b.cfg.OnLoad != nil {
		b.cfg.OnLoad()
	}
	w.WriteHeader(http.StatusNoContent)
}

type successPayload struct {
	PublicToken string               `json:"public_token"`
	Metadata    link.SuccessMetadata `json:"metadata"`
}

type exitPayload struct {
	Error    *link.WidgetError `json:"error"`
	Metadata link.ExitMetadata `json:"metadata"`
}

func (b *Browser) handleSuccess(w http.ResponseWriter, r *http.Request) {
	var payload successPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.PublicToken == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if !b.claim() {
		http.Error(w, "Session already finished", http.StatusConflict)
		return
	}
	writeStatus(w, "received")
	// Callbacks may close this widget, which waits for handlers to return.
	go b.cfg.OnSuccess(payload.PublicToken, payload.Metadata)
}

func (b *Browser) handleExit(w http.ResponseWriter, r *http.Request) {
	var payload exitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if !b.claim() {
		http.Error(w, "Session already finished", http.StatusConflict)
		return
	}
	writeStatus(w, "received")
	go b.cfg.OnExit(payload.Error, payload.Metadata)
}

// claim marks the session finished. Only the first terminal callback wins.
func (b *Browser) claim() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return false
	}
	b.finished = true
	return true
}

func writeStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// OpenBrowser opens url in the default browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}
