// Package handler provides the HTTP routes of the link backend.
package handler

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"

	"github.com/brizzai/plaid-link/internal/apispec"
	"github.com/brizzai/plaid-link/internal/auth"
	"github.com/brizzai/plaid-link/internal/auth/middleware"
	"github.com/brizzai/plaid-link/internal/config"
	"github.com/brizzai/plaid-link/internal/linkservice"
	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/brizzai/plaid-link/internal/plaid"
	"github.com/brizzai/plaid-link/internal/store"
	"github.com/brizzai/plaid-link/internal/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

//go:embed index.html
var indexHTML string

var indexPage = template.Must(template.New("index").Parse(indexHTML))

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the link API, the web page and the operational endpoints.
type Handler struct {
	cfg  *config.ServerConfig
	svc  *linkservice.Service
	auth *auth.Authenticator
	spec *apispec.Spec
}

// NewHandler creates a new HTTP handler.
func NewHandler(cfg *config.ServerConfig, svc *linkservice.Service, authn *auth.Authenticator, spec *apispec.Spec) *Handler {
	return &Handler{cfg: cfg, svc: svc, auth: authn, spec: spec}
}

// CreateHTTPHandler builds the route table with its middleware stack. API
// routes run behind session authentication and, when enabled, OpenAPI
// request validation.
func (h *Handler) CreateHTTPHandler() http.Handler {
	mux := http.NewServeMux()

	h.auth.RegisterRoutes(mux)
	if h.auth.Service != nil {
		logger.Info("Registered authentication routes")
	} else {
		logger.Info("Running without authentication")
	}

	mux.Handle("POST /create_link_token", h.protect(h.handleCreateLinkToken))
	mux.Handle("POST /create_update_token", h.protect(h.handleCreateUpdateToken))
	mux.Handle("POST /exchange_public_token", h.protect(h.handleExchangePublicToken))
	mux.Handle("GET /items", h.protect(h.handleListItems))
	mux.Handle("DELETE /items/{id}", h.protect(h.handleRemoveItem))
	// Plaid calls the webhook without a session.
	mux.Handle("POST /webhook", h.validate(http.HandlerFunc(h.handleWebhook)))

	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /openapi.yaml", handleOpenAPI)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.CORSWithOrigins(h.cfg.AllowOrigins)(LoggingMiddleware(mux))
}

func (h *Handler) protect(fn http.HandlerFunc) http.Handler {
	return h.auth.Wrap(h.validate(fn))
}

func (h *Handler) validate(next http.Handler) http.Handler {
	if h.cfg.ValidateRequests && h.spec != nil {
		return h.spec.Validator(next)
	}
	return next
}

func (h *Handler) handleCreateLinkToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	var req linkservice.CreateLinkTokenRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	token, err := h.svc.CreateLinkToken(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, token)
}

type updateTokenRequest struct {
	ItemID string `json:"item_id"`
}

type updateTokenResponse struct {
	UpdateToken string `json:"update_token"`
	Expiration  string `json:"expiration,omitempty"`
}

func (h *Handler) handleCreateUpdateToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	var req updateTokenRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	token, err := h.svc.CreateUpdateToken(r.Context(), userID, req.ItemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, updateTokenResponse{UpdateToken: token.LinkToken, Expiration: token.Expiration})
}

func (h *Handler) handleExchangePublicToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	var req linkservice.ExchangeRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	result, err := h.svc.ExchangePublicToken(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, result)
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListItems(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []store.Item{}
	}
	utils.WriteJSON(w, map[string]any{"items": items})
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.RemoveItem(r.Context(), userID, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var hook linkservice.Webhook
	if !decodeBody(w, r, &hook, false) {
		return
	}
	updated, err := h.svc.HandleWebhook(r.Context(), hook)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, map[string]bool{"updated": updated})
}

func (h *Handler) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage.Execute(w, struct{ Title string }{Title: h.cfg.Name}); err != nil {
		logger.Error("Failed to render index page", zap.Error(err))
	}
}

func handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	if _, err := w.Write(apispec.Raw()); err != nil {
		logger.Debug("Failed to write OpenAPI document", zap.Error(err))
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, map[string]string{"status": "ok"})
}

func sessionUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok || user.ID == "" {
		utils.WriteError(w, "unauthorized", "No session user", http.StatusUnauthorized)
		return "", false
	}
	return user.ID, true
}

// decodeBody decodes a JSON body into v. An empty body is accepted only
// when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	if errors.Is(err, io.EOF) {
		err = errors.New("request body is required")
	}
	utils.WriteError(w, "invalid_request", err.Error(), http.StatusBadRequest)
	return false
}

// writeServiceError maps service and Plaid errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	var perr *plaid.Error
	switch {
	case errors.Is(err, linkservice.ErrInvalidRequest):
		utils.WriteError(w, "invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, linkservice.ErrClientAccessToken):
		utils.WriteError(w, "access_token_rejected", err.Error(), http.StatusForbidden)
	case errors.Is(err, linkservice.ErrItemNotFound):
		utils.WriteError(w, "item_not_found", err.Error(), http.StatusNotFound)
	case errors.As(err, &perr):
		message := perr.DisplayMessage
		if message == "" {
			message = perr.ErrorMessage
		}
		utils.WriteError(w, perr.ErrorCode, message, http.StatusBadGateway)
	case errors.Is(err, context.DeadlineExceeded):
		utils.WriteError(w, "timeout", "Upstream request timed out", http.StatusGatewayTimeout)
	default:
		logger.Error("Request failed", zap.Error(err))
		utils.WriteError(w, "internal_error", "Internal server error", http.StatusInternalServerError)
	}
}
