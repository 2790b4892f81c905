package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Stream directions.
const (
	Inflow  = "inflow"
	Outflow = "outflow"
)

// RecurringStream is a recurring inflow or outflow detected by Plaid.
type RecurringStream struct {
	StreamID                 string
	AccountID                string
	Direction                string
	CategoryID               *string
	Description              string
	MerchantName             *string
	FirstDate                string
	LastDate                 string
	Frequency                string
	AverageAmount            float64
	LastAmount               float64
	ISOCurrencyCode          *string
	IsActive                 bool
	Status                   string
	IsUserModified           bool
	LastUserModifiedDatetime *string
	PFCPrimary               *string
	PFCDetailed              *string
	PFCConfidence            *string
	TransactionIDs           []string
}

// ImportRecurring records a recurring streams import for itemID. A stream
// keeps a single row holding its latest state; transaction ids are only ever
// added to it. Any failure rolls back the whole import.
func (s *Store) ImportRecurring(ctx context.Context, itemID, description string, streams []RecurringStream) (ImportResult, error) {
	if itemID == "" {
		return ImportResult{}, fmt.Errorf("store: item id is required")
	}

	result := ImportResult{ImportID: uuid.NewString()}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		imp := &importRecord{
			ID:               result.ImportID,
			ItemID:           itemID,
			Kind:             KindRecurring,
			Description:      description,
			TransactionCount: len(streams),
			StartedAt:        now,
		}
		if _, err := tx.NewInsert().Model(imp).Exec(ctx); err != nil {
			return fmt.Errorf("insert import: %w", err)
		}

		for _, st := range streams {
			if st.StreamID == "" {
				return fmt.Errorf("recurring stream without id in import")
			}
			if st.Direction != Inflow && st.Direction != Outflow {
				return fmt.Errorf("recurring stream %s: unknown direction %q", st.StreamID, st.Direction)
			}

			rec := streamRecord(itemID, result.ImportID, st)
			rec.UpdatedAt = now
			res, err := tx.NewUpdate().Model(rec).WherePK().Exec(ctx)
			if err != nil {
				return fmt.Errorf("update stream %s: %w", st.StreamID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				result.Replaced++
			} else {
				if _, err := tx.NewInsert().Model(rec).Exec(ctx); err != nil {
					return fmt.Errorf("insert stream %s: %w", st.StreamID, err)
				}
				result.Inserted++
			}

			if len(st.TransactionIDs) == 0 {
				continue
			}
			links := make([]recurringTransactionRecord, 0, len(st.TransactionIDs))
			for _, id := range st.TransactionIDs {
				links = append(links, recurringTransactionRecord{StreamID: st.StreamID, TransactionID: id})
			}
			if _, err := tx.NewInsert().Model(&links).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
				return fmt.Errorf("link transactions of stream %s: %w", st.StreamID, err)
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("store: import recurring streams: %w", err)
	}
	return result, nil
}

// ListRecurringStreams returns the streams of an item, inflows first.
func (s *Store) ListRecurringStreams(ctx context.Context, itemID string) ([]RecurringStream, error) {
	var records []recurringStreamRecord
	err := s.db.NewSelect().Model(&records).
		Where("item_id = ?", itemID).
		Order("direction ASC", "stream_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]RecurringStream, 0, len(records))
	for _, rec := range records {
		var links []recurringTransactionRecord
		err := s.db.NewSelect().Model(&links).
			Where("stream_id = ?", rec.StreamID).
			Order("transaction_id ASC").
			Scan(ctx)
		if err != nil {
			return nil, err
		}
		st := fromStreamRecord(rec)
		for _, link := range links {
			st.TransactionIDs = append(st.TransactionIDs, link.TransactionID)
		}
		out = append(out, st)
	}
	return out, nil
}

func streamRecord(itemID, importID string, st RecurringStream) *recurringStreamRecord {
	return &recurringStreamRecord{
		StreamID:                 st.StreamID,
		ItemID:                   itemID,
		AccountID:                st.AccountID,
		Direction:                st.Direction,
		CategoryID:               st.CategoryID,
		Description:              st.Description,
		MerchantName:             st.MerchantName,
		FirstDate:                st.FirstDate,
		LastDate:                 st.LastDate,
		Frequency:                st.Frequency,
		AverageAmount:            st.AverageAmount,
		LastAmount:               st.LastAmount,
		ISOCurrencyCode:          st.ISOCurrencyCode,
		IsActive:                 st.IsActive,
		Status:                   st.Status,
		IsUserModified:           st.IsUserModified,
		LastUserModifiedDatetime: st.LastUserModifiedDatetime,
		PFCPrimary:               st.PFCPrimary,
		PFCDetailed:              st.PFCDetailed,
		PFCConfidence:            st.PFCConfidence,
		ImportID:                 importID,
	}
}

func fromStreamRecord(rec recurringStreamRecord) RecurringStream {
	return RecurringStream{
		StreamID:                 rec.StreamID,
		AccountID:                rec.AccountID,
		Direction:                rec.Direction,
		CategoryID:               rec.CategoryID,
		Description:              rec.Description,
		MerchantName:             rec.MerchantName,
		FirstDate:                rec.FirstDate,
		LastDate:                 rec.LastDate,
		Frequency:                rec.Frequency,
		AverageAmount:            rec.AverageAmount,
		LastAmount:               rec.LastAmount,
		ISOCurrencyCode:          rec.ISOCurrencyCode,
		IsActive:                 rec.IsActive,
		Status:                   rec.Status,
		IsUserModified:           rec.IsUserModified,
		LastUserModifiedDatetime: rec.LastUserModifiedDatetime,
		PFCPrimary:               rec.PFCPrimary,
		PFCDetailed:              rec.PFCDetailed,
		PFCConfidence:            rec.PFCConfidence,
	}
}
