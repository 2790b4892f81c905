package linkservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/brizzai/plaid-link/internal/store"
	"go.uber.org/zap"
)

// Webhook is the part of a Plaid webhook body the service acts on.
type Webhook struct {
	WebhookType string        `json:"webhook_type"`
	WebhookCode string        `json:"webhook_code"`
	ItemID      string        `json:"item_id"`
	Error       *WebhookError `json:"error,omitempty"`
}

// WebhookError is the error attached to ITEM ERROR webhooks.
type WebhookError struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// HandleWebhook updates item status from ITEM webhooks. Other webhook types
// are acknowledged and ignored. It reports whether the webhook changed an
// item.
func (s *Service) HandleWebhook(ctx context.Context, hook Webhook) (bool, error) {
	if hook.WebhookType == "" || hook.WebhookCode == "" {
		return false, fmt.Errorf("%w: webhook_type and webhook_code are required", ErrInvalidRequest)
	}
	if hook.WebhookType != "ITEM" {
		logger.Debug("Ignoring webhook", zap.String("type", hook.WebhookType), zap.String("code", hook.WebhookCode))
		return false, nil
	}

	var status string
	switch hook.WebhookCode {
	case "LOGIN_REPAIRED":
		status = store.StatusHealthy
	case "PENDING_EXPIRATION", "PENDING_DISCONNECT":
		status = store.StatusPendingExpiration
	case "ERROR":
		if hook.Error == nil || hook.Error.ErrorCode != "ITEM_LOGIN_REQUIRED" {
			logger.Warn("Item error webhook", zap.String("item_id", hook.ItemID), zap.Any("error", hook.Error))
			return false, nil
		}
		status = store.StatusLoginRequired
	default:
		logger.Debug("Ignoring item webhook", zap.String("code", hook.WebhookCode))
		return false, nil
	}
	if hook.ItemID == "" {
		return false, fmt.Errorf("%w: item_id is required", ErrInvalidRequest)
	}

	err := s.items.SetItemStatus(ctx, hook.ItemID, status)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("Webhook for unknown item", zap.String("item_id", hook.ItemID))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	logger.Info("Item status updated",
		zap.String("item_id", hook.ItemID),
		zap.String("code", hook.WebhookCode),
		zap.String("status", status),
	)
	return true, nil
}
