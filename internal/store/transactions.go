package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Transaction is an imported Plaid transaction.
type Transaction struct {
	TransactionID        string
	AccountID            string
	Amount               float64
	ISOCurrencyCode      *string
	Date                 string
	AuthorizedDate       *string
	Name                 string
	MerchantName         *string
	PaymentChannel       string
	Pending              bool
	PendingTransactionID *string
	Category             string
	CategoryID           *string
	PFCPrimary           *string
	PFCDetailed          *string
	PFCConfidence        *string
	LocationCity         *string
	LocationRegion       *string
	LocationCountry      *string
	LocationLat          *float64
	LocationLon          *float64
	Website              *string
}

// Import kinds.
const (
	KindTransactions = "transactions"
	KindLiabilities  = "liabilities"
	KindRecurring    = "recurring"
)

// ImportResult summarizes one import.
type ImportResult struct {
	ImportID string `json:"import_id"`
	Inserted int    `json:"inserted"`
	Replaced int    `json:"replaced"`
}

// HistoryEntry is a superseded version of a transaction.
type HistoryEntry struct {
	Transaction
	ImportID     string
	SupersededBy string
}

// ImportTransactions records an import for itemID and writes txns in a single
// database transaction. A transaction that already exists is copied to the
// history table, tagged with the new import, before being replaced. Any
// failure rolls back the whole import.
func (s *Store) ImportTransactions(ctx context.Context, itemID, description string, txns []Transaction) (ImportResult, error) {
	if itemID == "" {
		return ImportResult{}, fmt.Errorf("store: item id is required")
	}

	result := ImportResult{ImportID: uuid.NewString()}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		imp := &importRecord{
			ID:               result.ImportID,
			ItemID:           itemID,
			Kind:             KindTransactions,
			Description:      description,
			TransactionCount: len(txns),
			StartedAt:        time.Now().UTC(),
		}
		if _, err := tx.NewInsert().Model(imp).Exec(ctx); err != nil {
			return fmt.Errorf("insert import: %w", err)
		}

		for _, t := range txns {
			if t.TransactionID == "" {
				return fmt.Errorf("transaction without id in import")
			}

			var existing transactionRecord
			err := tx.NewSelect().Model(&existing).Where("transaction_id = ?", t.TransactionID).Scan(ctx)
			switch {
			case err == nil:
				hist := &transactionHistoryRecord{
					TransactionColumns: existing.TransactionColumns,
					SupersededBy:       result.ImportID,
				}
				if _, err := tx.NewInsert().Model(hist).Exec(ctx); err != nil {
					return fmt.Errorf("archive transaction %s: %w", t.TransactionID, err)
				}
				if _, err := tx.NewDelete().Model((*transactionRecord)(nil)).
					Where("transaction_id = ?", t.TransactionID).
					Exec(ctx); err != nil {
					return fmt.Errorf("delete transaction %s: %w", t.TransactionID, err)
				}
				result.Replaced++
			case errors.Is(err, sql.ErrNoRows):
				result.Inserted++
			default:
				return err
			}

			rec := &transactionRecord{TransactionColumns: toFields(itemID, result.ImportID, t)}
			if _, err := tx.NewInsert().Model(rec).Exec(ctx); err != nil {
				return fmt.Errorf("insert transaction %s: %w", t.TransactionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("store: import transactions: %w", err)
	}
	return result, nil
}

// CountTransactions returns the number of current transactions of an item.
func (s *Store) CountTransactions(ctx context.Context, itemID string) (int, error) {
	return s.db.NewSelect().Model((*transactionRecord)(nil)).Where("item_id = ?", itemID).Count(ctx)
}

// GetTransaction returns the current version of a transaction.
func (s *Store) GetTransaction(ctx context.Context, transactionID string) (Transaction, string, error) {
	var rec transactionRecord
	err := s.db.NewSelect().Model(&rec).Where("transaction_id = ?", transactionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, "", ErrNotFound
	}
	if err != nil {
		return Transaction{}, "", err
	}
	return fromFields(rec.TransactionColumns), rec.ImportID, nil
}

// TransactionHistory returns superseded versions of a transaction, oldest
// first.
func (s *Store) TransactionHistory(ctx context.Context, transactionID string) ([]HistoryEntry, error) {
	var records []transactionHistoryRecord
	err := s.db.NewSelect().Model(&records).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, HistoryEntry{
			Transaction:  fromFields(rec.TransactionColumns),
			ImportID:     rec.ImportID,
			SupersededBy: rec.SupersededBy,
		})
	}
	return out, nil
}

func toFields(itemID, importID string, t Transaction) TransactionColumns {
	return TransactionColumns{
		TransactionID:        t.TransactionID,
		ItemID:               itemID,
		AccountID:            t.AccountID,
		Amount:               t.Amount,
		ISOCurrencyCode:      t.ISOCurrencyCode,
		Date:                 t.Date,
		AuthorizedDate:       t.AuthorizedDate,
		Name:                 t.Name,
		MerchantName:         t.MerchantName,
		PaymentChannel:       t.PaymentChannel,
		Pending:              t.Pending,
		PendingTransactionID: t.PendingTransactionID,
		Category:             t.Category,
		CategoryID:           t.CategoryID,
		PFCPrimary:           t.PFCPrimary,
		PFCDetailed:          t.PFCDetailed,
		PFCConfidence:        t.PFCConfidence,
		LocationCity:         t.LocationCity,
		LocationRegion:       t.LocationRegion,
		LocationCountry:      t.LocationCountry,
		LocationLat:          t.LocationLat,
		LocationLon:          t.LocationLon,
		Website:              t.Website,
		ImportID:             importID,
	}
}

func fromFields(f TransactionColumns) Transaction {
	return Transaction{
		TransactionID:        f.TransactionID,
		AccountID:            f.AccountID,
		Amount:               f.Amount,
		ISOCurrencyCode:      f.ISOCurrencyCode,
		Date:                 f.Date,
		AuthorizedDate:       f.AuthorizedDate,
		Name:                 f.Name,
		MerchantName:         f.MerchantName,
		PaymentChannel:       f.PaymentChannel,
		Pending:              f.Pending,
		PendingTransactionID: f.PendingTransactionID,
		Category:             f.Category,
		CategoryID:           f.CategoryID,
		PFCPrimary:           f.PFCPrimary,
		PFCDetailed:          f.PFCDetailed,
		PFCConfidence:        f.PFCConfidence,
		LocationCity:         f.LocationCity,
		LocationRegion:       f.LocationRegion,
		LocationCountry:      f.LocationCountry,
		LocationLat:          f.LocationLat,
		LocationLon:          f.LocationLon,
		Website:              f.Website,
	}
}
