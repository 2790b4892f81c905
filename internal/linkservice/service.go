// Package linkservice is the server side of the link handshake: it issues
// link tokens, exchanges public tokens and keeps the resulting access
// tokens bound to the user that linked them.
package linkservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/brizzai/plaid-link/internal/config"
	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/brizzai/plaid-link/internal/metrics"
	"github.com/brizzai/plaid-link/internal/plaid"
	"github.com/brizzai/plaid-link/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	// ErrInvalidRequest is returned for malformed input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrItemNotFound is returned when the item does not exist or belongs to
	// another user.
	ErrItemNotFound = errors.New("item not found")
	// ErrClientAccessToken is returned when a client sends an access token
	// and the server does not accept them.
	ErrClientAccessToken = errors.New("access_token is not accepted from clients; send item_id instead")
)

// PlaidAPI is the subset of the Plaid client the service needs.
type PlaidAPI interface {
	LinkTokenCreate(ctx context.Context, req *plaid.LinkTokenCreateRequest) (*plaid.LinkTokenCreateResponse, error)
	ItemPublicTokenExchange(ctx context.Context, publicToken string) (*plaid.ItemPublicTokenExchangeResponse, error)
	ItemRemove(ctx context.Context, accessToken string) error
}

// ItemStore persists linked items.
type ItemStore interface {
	SaveItem(ctx context.Context, in store.Item) (store.Item, error)
	GetItem(ctx context.Context, userID, id string) (store.Item, error)
	ListItems(ctx context.Context, userID string) ([]store.Item, error)
	DeleteItem(ctx context.Context, userID, id string) error
	SetItemStatus(ctx context.Context, plaidItemID, status string) error
}

// Link token modes.
const (
	ModeCreate = "create"
	ModeUpdate = "update"
)

// CreateLinkTokenRequest is the body of /create_link_token. ItemID requests
// update mode for a stored item.
type CreateLinkTokenRequest struct {
	ItemID      string `json:"item_id,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

// LinkToken is an issued link token.
type LinkToken struct {
	LinkToken  string `json:"link_token"`
	Expiration string `json:"expiration,omitempty"`
	Mode       string `json:"mode"`
}

// Institution is the institution reported by the widget.
type Institution struct {
	ID   string `json:"institution_id"`
	Name string `json:"name"`
}

// ExchangeRequest is the body of /exchange_public_token.
type ExchangeRequest struct {
	PublicToken string       `json:"public_token"`
	Institution *Institution `json:"institution,omitempty"`
}

// ExchangeResult never carries the access token.
type ExchangeResult struct {
	ItemID          string `json:"item_id"`
	InstitutionName string `json:"institution_name,omitempty"`
}

// Service implements the link backend.
type Service struct {
	plaid PlaidAPI
	items ItemStore
	cfg   config.LinkConfig
}

// New creates a Service.
func New(api PlaidAPI, items ItemStore, cfg config.LinkConfig) *Service {
	return &Service{plaid: api, items: items, cfg: cfg}
}

// CreateLinkToken issues a link token for userID. Without an item it is a
// new link; with req.ItemID it is update mode for an item the user owns.
func (s *Service) CreateLinkToken(ctx context.Context, userID string, req CreateLinkTokenRequest) (*LinkToken, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidRequest)
	}
	if req.ItemID != "" && req.AccessToken != "" {
		return nil, fmt.Errorf("%w: send either item_id or access_token", ErrInvalidRequest)
	}

	accessToken := ""
	switch {
	case req.ItemID != "":
		item, err := s.lookupItem(ctx, userID, req.ItemID)
		if err != nil {
			return nil, err
		}
		accessToken = item.AccessToken
	case req.AccessToken != "":
		if !s.cfg.AllowClientAccessToken {
			logger.Warn("Rejected client supplied access token", zap.String("user_id", userID))
			return nil, ErrClientAccessToken
		}
		accessToken = req.AccessToken
	}
	return s.createToken(ctx, userID, accessToken)
}

// CreateUpdateToken issues an update mode link token for one of the user's
// items.
func (s *Service) CreateUpdateToken(ctx context.Context, userID, itemID string) (*LinkToken, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, fmt.Errorf("%w: item_id is required", ErrInvalidRequest)
	}
	return s.CreateLinkToken(ctx, userID, CreateLinkTokenRequest{ItemID: itemID})
}

func (s *Service) createToken(ctx context.Context, userID, accessToken string) (*LinkToken, error) {
	req := &plaid.LinkTokenCreateRequest{
		ClientName:   s.cfg.ClientName,
		Language:     s.cfg.Language,
		CountryCodes: s.cfg.CountryCodes,
		User:         plaid.LinkTokenUser{ClientUserID: userID},
		RedirectURI:  s.cfg.RedirectURI,
		Webhook:      s.cfg.WebhookURL,
	}
	mode := ModeCreate
	if accessToken != "" {
		mode = ModeUpdate
		req.AccessToken = accessToken
		req.Products = s.cfg.UpdateProduct
	} else {
		req.Products = s.cfg.Products
	}

	resp, err := s.plaid.LinkTokenCreate(ctx, req)
	metrics.LinkTokenRequests.WithLabelValues(mode, metrics.Status(err)).Inc()
	if err != nil {
		logger.Error("Error creating link token", zap.String("mode", mode), zap.Error(err))
		return nil, err
	}
	logger.Info("Link token created",
		zap.String("mode", mode),
		zap.String("user_id", userID),
		zap.String("expiration", resp.Expiration),
	)
	return &LinkToken{LinkToken: resp.LinkToken, Expiration: resp.Expiration, Mode: mode}, nil
}

// ExchangePublicToken swaps a public token for an access token and stores
// it for userID.
func (s *Service) ExchangePublicToken(ctx context.Context, userID string, req ExchangeRequest) (*ExchangeResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.PublicToken) == "" {
		return nil, fmt.Errorf("%w: public_token is required", ErrInvalidRequest)
	}

	resp, err := s.plaid.ItemPublicTokenExchange(ctx, req.PublicToken)
	metrics.TokenExchanges.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		logger.Error("Error exchanging public token", logger.Token("public_token", req.PublicToken), zap.Error(err))
		return nil, err
	}

	in := store.Item{
		UserID:      userID,
		PlaidItemID: resp.ItemID,
		AccessToken: resp.AccessToken,
	}
	if req.Institution != nil {
		in.InstitutionID = req.Institution.ID
		in.InstitutionName = req.Institution.Name
	}
	item, err := s.items.SaveItem(ctx, in)
	if errors.Is(err, store.ErrItemOwnership) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("save item: %w", err)
	}
	logger.Info("Public token exchanged",
		zap.String("user_id", userID),
		zap.String("item_id", item.PlaidItemID),
		logger.Token("access_token", resp.AccessToken),
	)
	return &ExchangeResult{ItemID: item.PlaidItemID, InstitutionName: item.InstitutionName}, nil
}

// ListItems returns the user's items.
func (s *Service) ListItems(ctx context.Context, userID string) ([]store.Item, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidRequest)
	}
	return s.items.ListItems(ctx, userID)
}

// RemoveItem invalidates the item's access token at Plaid and deletes it.
func (s *Service) RemoveItem(ctx context.Context, userID, id string) error {
	item, err := s.lookupItem(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.plaid.ItemRemove(ctx, item.AccessToken); err != nil {
		var perr *plaid.Error
		// An item Plaid no longer knows about can still be forgotten locally.
		if !errors.As(err, &perr) || perr.ErrorCode != plaid.CodeItemNotFound {
			return err
		}
		logger.Warn("Item already removed at Plaid", zap.String("item_id", item.PlaidItemID))
	}
	if err := s.items.DeleteItem(ctx, userID, item.ID); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	logger.Info("Item removed", zap.String("user_id", userID), zap.String("item_id", item.PlaidItemID))
	return nil
}

func (s *Service) lookupItem(ctx context.Context, userID, id string) (store.Item, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(id) == "" {
		return store.Item{}, fmt.Errorf("%w: missing user or item", ErrInvalidRequest)
	}
	item, err := s.items.GetItem(ctx, userID, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Item{}, ErrItemNotFound
	}
	if err != nil {
		return store.Item{}, err
	}
	return item, nil
}

func newModuleService(api *plaid.Client, items *store.Store, cfg *config.Config) *Service {
	return New(api, items, cfg.Link)
}

// Module provides the link service
var Module = fx.Module("linkservice",
	fx.Provide(newModuleService),
)
