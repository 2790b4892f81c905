// Package store persists linked items and imported transactions in SQLite
// through bun.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brizzai/plaid-link/internal/config"
	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a record does not exist for the caller.
	ErrNotFound = errors.New("store: not found")
	// ErrItemOwnership is returned when a Plaid item is already linked by
	// another user.
	ErrItemOwnership = errors.New("store: item belongs to another user")
)

// Item statuses, driven by Plaid ITEM webhooks.
const (
	StatusHealthy           = "healthy"
	StatusLoginRequired     = "login_required"
	StatusPendingExpiration = "pending_expiration"
)

// Item is a linked Plaid item. AccessToken never leaves the server.
type Item struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	PlaidItemID     string    `json:"item_id"`
	AccessToken     string    `json:"-"`
	InstitutionID   string    `json:"institution_id,omitempty"`
	InstitutionName string    `json:"institution_name,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Store wraps the bun database.
type Store struct {
	db *bun.DB
}

// Open connects to the SQLite database at cfg.DSN and creates the schema.
func Open(ctx context.Context, cfg *config.StorageConfig) (*Store, error) {
	if cfg == nil || strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("store: dsn is required")
	}
	sqlDB, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	s := New(bun.NewDB(sqlDB, sqlitedialect.New()))
	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	logger.Debug("Store opened", zap.String("dsn", cfg.DSN))
	return s, nil
}

// New wraps an existing bun database.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	models := []interface{}{
		(*itemRecord)(nil),
		(*importRecord)(nil),
		(*transactionRecord)(nil),
		(*transactionHistoryRecord)(nil),
		(*creditLiabilityRecord)(nil),
		(*creditLiabilityHistoryRecord)(nil),
		(*creditAPRRecord)(nil),
		(*creditAPRHistoryRecord)(nil),
		(*recurringStreamRecord)(nil),
		(*recurringTransactionRecord)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("store: create table: %w", err)
		}
	}

	indexes := []*bun.CreateIndexQuery{
		s.db.NewCreateIndex().Model((*itemRecord)(nil)).Index("idx_plaid_items_user").Column("user_id").IfNotExists(),
		s.db.NewCreateIndex().Model((*transactionRecord)(nil)).Index("idx_plaid_transactions_id").Column("transaction_id").Unique().IfNotExists(),
		s.db.NewCreateIndex().Model((*transactionRecord)(nil)).Index("idx_plaid_transactions_item").Column("item_id").IfNotExists(),
		s.db.NewCreateIndex().Model((*transactionHistoryRecord)(nil)).Index("idx_plaid_transactions_history_id").Column("transaction_id").IfNotExists(),
		s.db.NewCreateIndex().Model((*creditLiabilityRecord)(nil)).Index("idx_plaid_liabilities_credit_account").Column("account_id").Unique().IfNotExists(),
		s.db.NewCreateIndex().Model((*creditAPRRecord)(nil)).Index("idx_plaid_liabilities_credit_apr_account").Column("account_id").IfNotExists(),
		s.db.NewCreateIndex().Model((*recurringStreamRecord)(nil)).Index("idx_plaid_recurring_streams_item").Column("item_id").IfNotExists(),
	}
	for _, q := range indexes {
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("store: create index: %w", err)
		}
	}
	return nil
}

// SaveItem stores the result of a public token exchange. Re-linking an item
// already owned by the same user refreshes its access token; an item owned
// by someone else is rejected.
func (s *Store) SaveItem(ctx context.Context, in Item) (Item, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return Item{}, fmt.Errorf("store: user id is required")
	}
	if strings.TrimSpace(in.PlaidItemID) == "" || in.AccessToken == "" {
		return Item{}, fmt.Errorf("store: item id and access token are required")
	}

	var out Item
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		var existing itemRecord
		err := tx.NewSelect().Model(&existing).Where("plaid_item_id = ?", in.PlaidItemID).Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			rec := &itemRecord{
				ID:              uuid.NewString(),
				UserID:          in.UserID,
				PlaidItemID:     in.PlaidItemID,
				AccessToken:     in.AccessToken,
				InstitutionID:   in.InstitutionID,
				InstitutionName: in.InstitutionName,
				Status:          StatusHealthy,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if _, err := tx.NewInsert().Model(rec).Exec(ctx); err != nil {
				return err
			}
			out = rec.toDomain()
			return nil
		case err != nil:
			return err
		}

		if existing.UserID != in.UserID {
			return ErrItemOwnership
		}
		existing.AccessToken = in.AccessToken
		if in.InstitutionID != "" {
			existing.InstitutionID = in.InstitutionID
		}
		if in.InstitutionName != "" {
			existing.InstitutionName = in.InstitutionName
		}
		existing.Status = StatusHealthy
		existing.UpdatedAt = now
		if _, err := tx.NewUpdate().Model(&existing).WherePK().Exec(ctx); err != nil {
			return err
		}
		out = existing.toDomain()
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	return out, nil
}

// GetItem returns the item owned by userID whose id or Plaid item id is id.
func (s *Store) GetItem(ctx context.Context, userID, id string) (Item, error) {
	var rec itemRecord
	err := s.db.NewSelect().Model(&rec).
		Where("user_id = ?", userID).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("id = ?", id).WhereOr("plaid_item_id = ?", id)
		}).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, err
	}
	return rec.toDomain(), nil
}

// ListItems returns the items of userID, or every item when userID is empty.
func (s *Store) ListItems(ctx context.Context, userID string) ([]Item, error) {
	var records []itemRecord
	q := s.db.NewSelect().Model(&records).Order("created_at ASC")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(records))
	for _, rec := range records {
		items = append(items, rec.toDomain())
	}
	return items, nil
}

// DeleteItem removes an item owned by userID. Imported transactions stay.
func (s *Store) DeleteItem(ctx context.Context, userID, id string) error {
	res, err := s.db.NewDelete().Model((*itemRecord)(nil)).
		Where("user_id = ?", userID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetItemStatus updates the status of the item with the given Plaid item id.
func (s *Store) SetItemStatus(ctx context.Context, plaidItemID, status string) error {
	res, err := s.db.NewUpdate().Model((*itemRecord)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("plaid_item_id = ?", plaidItemID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r itemRecord) toDomain() Item {
	return Item{
		ID:              r.ID,
		UserID:          r.UserID,
		PlaidItemID:     r.PlaidItemID,
		AccessToken:     r.AccessToken,
		InstitutionID:   r.InstitutionID,
		InstitutionName: r.InstitutionName,
		Status:          r.Status,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func newModuleStore(lc fx.Lifecycle, cfg *config.Config) (*Store, error) {
	s, err := Open(context.Background(), &cfg.Storage)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return s.Close()
		},
	})
	return s, nil
}

// Module provides the item store
var Module = fx.Module("store",
	fx.Provide(newModuleStore),
)
