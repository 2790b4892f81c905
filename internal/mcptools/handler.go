package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brizzai/plaid-link/internal/linkservice"
	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/brizzai/plaid-link/internal/plaid"
	"github.com/brizzai/plaid-link/internal/store"
	"github.com/brizzai/plaid-link/internal/txsync"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// ToolFunc runs one tool with its decoded arguments. The result is returned
// to the caller as JSON text.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// Handler runs tool calls against the link service as a single user.
type Handler struct {
	userID string
	svc    *linkservice.Service
	syncer *txsync.Syncer
}

// NewHandler creates a new tool handler.
func NewHandler(userID string, svc *linkservice.Service, syncer *txsync.Syncer) *Handler {
	return &Handler{userID: userID, svc: svc, syncer: syncer}
}

// Funcs maps tool names to their implementations.
func (h *Handler) Funcs() map[string]ToolFunc {
	return map[string]ToolFunc{
		"create_link_token":     h.createLinkToken,
		"create_update_token":   h.createUpdateToken,
		"exchange_public_token": h.exchangePublicToken,
		"list_items":            h.listItems,
		"remove_item":           h.removeItem,
		syncToolName:            h.syncTransactions,
	}
}

// CreateHandler wraps fn as an MCP tool handler. Failures are returned as
// tool errors so the model can see them.
func (h *Handler) CreateHandler(tool mcp.Tool, fn ToolFunc) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger.Debug("Tool called", zap.String("tool", tool.Name), zap.String("user", h.userID))

		result, err := fn(ctx, request.GetArguments())
		if err != nil {
			logger.Warn("Tool failed", zap.String("tool", tool.Name), zap.Error(err))
			return mcp.NewToolResultError(errorMessage(err)), nil
		}

		body, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode result for tool %s: %w", tool.Name, err)
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

func (h *Handler) createLinkToken(ctx context.Context, args map[string]any) (any, error) {
	return h.svc.CreateLinkToken(ctx, h.userID, linkservice.CreateLinkTokenRequest{
		ItemID:      stringArg(args, "item_id"),
		AccessToken: stringArg(args, "access_token"),
	})
}

func (h *Handler) createUpdateToken(ctx context.Context, args map[string]any) (any, error) {
	token, err := h.svc.CreateUpdateToken(ctx, h.userID, stringArg(args, "item_id"))
	if err != nil {
		return nil, err
	}
	return map[string]string{"update_token": token.LinkToken, "expiration": token.Expiration}, nil
}

func (h *Handler) exchangePublicToken(ctx context.Context, args map[string]any) (any, error) {
	req := linkservice.ExchangeRequest{PublicToken: stringArg(args, "public_token")}
	if raw, ok := args["institution"]; ok && raw != nil {
		var inst linkservice.Institution
		if err := remarshal(raw, &inst); err != nil {
			return nil, fmt.Errorf("%w: institution: %v", linkservice.ErrInvalidRequest, err)
		}
		req.Institution = &inst
	}
	return h.svc.ExchangePublicToken(ctx, h.userID, req)
}

func (h *Handler) listItems(ctx context.Context, _ map[string]any) (any, error) {
	items, err := h.svc.ListItems(ctx, h.userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []store.Item{}
	}
	return map[string]any{"items": items}, nil
}

func (h *Handler) removeItem(ctx context.Context, args map[string]any) (any, error) {
	id := stringArg(args, "id")
	if err := h.svc.RemoveItem(ctx, h.userID, id); err != nil {
		return nil, err
	}
	return map[string]string{"removed": id}, nil
}

func (h *Handler) syncTransactions(ctx context.Context, args map[string]any) (any, error) {
	opts := txsync.Options{
		UserID: h.userID,
		ItemID: stringArg(args, "item_id"),
	}
	if days, ok := args["days"].(float64); ok {
		opts.Days = int(days)
	}
	if products, ok := args["products"].([]any); ok {
		for _, p := range products {
			if name, ok := p.(string); ok {
				opts.Products = append(opts.Products, name)
			}
		}
	}
	return h.syncer.Sync(ctx, opts)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// errorMessage renders err for the tool caller. Plaid errors carry a
// message meant for end users.
func errorMessage(err error) string {
	var perr *plaid.Error
	if errors.As(err, &perr) {
		msg := perr.DisplayMessage
		if msg == "" {
			msg = perr.ErrorMessage
		}
		return fmt.Sprintf("Plaid error %s: %s", perr.ErrorCode, msg)
	}
	return err.Error()
}
