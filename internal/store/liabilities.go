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

// CreditLiability is the imported liability of one credit card account.
type CreditLiability struct {
	AccountID              string
	IsOverdue              *bool
	LastPaymentAmount      *float64
	LastPaymentDate        *string
	LastStatementIssueDate *string
	LastStatementBalance   *float64
	MinimumPaymentAmount   *float64
	NextPaymentDueDate     *string
	APRs                   []APR
}

// APR is one interest rate of a credit card.
type APR struct {
	Type                 string
	Percentage           float64
	BalanceSubjectToAPR  *float64
	InterestChargeAmount *float64
}

// CreditLiabilityHistoryEntry is a superseded version of a credit liability.
type CreditLiabilityHistoryEntry struct {
	CreditLiability
	ImportID     string
	SupersededBy string
}

// ImportLiabilities records a liabilities import for itemID. A card that
// already exists is copied to the history tables, APRs included, before
// being replaced. Any failure rolls back the whole import.
func (s *Store) ImportLiabilities(ctx context.Context, itemID, description string, credits []CreditLiability) (ImportResult, error) {
	if itemID == "" {
		return ImportResult{}, fmt.Errorf("store: item id is required")
	}

	result := ImportResult{ImportID: uuid.NewString()}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		imp := &importRecord{
			ID:               result.ImportID,
			ItemID:           itemID,
			Kind:             KindLiabilities,
			Description:      description,
			TransactionCount: len(credits),
			StartedAt:        time.Now().UTC(),
		}
		if _, err := tx.NewInsert().Model(imp).Exec(ctx); err != nil {
			return fmt.Errorf("insert import: %w", err)
		}

		for _, c := range credits {
			if c.AccountID == "" {
				return fmt.Errorf("credit liability without account id in import")
			}
			replaced, err := archiveCredit(ctx, tx, c.AccountID, result.ImportID)
			if err != nil {
				return err
			}
			if replaced {
				result.Replaced++
			} else {
				result.Inserted++
			}

			rec := &creditLiabilityRecord{CreditColumns: creditColumns(itemID, result.ImportID, c)}
			if _, err := tx.NewInsert().Model(rec).Exec(ctx); err != nil {
				return fmt.Errorf("insert credit liability %s: %w", c.AccountID, err)
			}
			if len(c.APRs) == 0 {
				continue
			}
			aprs := make([]creditAPRRecord, 0, len(c.APRs))
			for _, apr := range c.APRs {
				aprs = append(aprs, creditAPRRecord{APRColumns: aprColumns(c.AccountID, result.ImportID, apr)})
			}
			if _, err := tx.NewInsert().Model(&aprs).Exec(ctx); err != nil {
				return fmt.Errorf("insert aprs of %s: %w", c.AccountID, err)
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("store: import liabilities: %w", err)
	}
	return result, nil
}

// archiveCredit moves the current card and its APRs to history. It reports
// whether there was anything to move.
func archiveCredit(ctx context.Context, tx bun.Tx, accountID, importID string) (bool, error) {
	var existing creditLiabilityRecord
	err := tx.NewSelect().Model(&existing).Where("account_id = ?", accountID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	hist := &creditLiabilityHistoryRecord{CreditColumns: existing.CreditColumns, SupersededBy: importID}
	if _, err := tx.NewInsert().Model(hist).Exec(ctx); err != nil {
		return false, fmt.Errorf("archive credit liability %s: %w", accountID, err)
	}

	var aprs []creditAPRRecord
	if err := tx.NewSelect().Model(&aprs).Where("account_id = ?", accountID).Order("id ASC").Scan(ctx); err != nil {
		return false, err
	}
	if len(aprs) > 0 {
		archived := make([]creditAPRHistoryRecord, 0, len(aprs))
		for _, apr := range aprs {
			archived = append(archived, creditAPRHistoryRecord{APRColumns: apr.APRColumns, SupersededBy: importID})
		}
		if _, err := tx.NewInsert().Model(&archived).Exec(ctx); err != nil {
			return false, fmt.Errorf("archive aprs of %s: %w", accountID, err)
		}
	}

	if _, err := tx.NewDelete().Model((*creditAPRRecord)(nil)).Where("account_id = ?", accountID).Exec(ctx); err != nil {
		return false, fmt.Errorf("delete aprs of %s: %w", accountID, err)
	}
	if _, err := tx.NewDelete().Model((*creditLiabilityRecord)(nil)).Where("account_id = ?", accountID).Exec(ctx); err != nil {
		return false, fmt.Errorf("delete credit liability %s: %w", accountID, err)
	}
	return true, nil
}

// GetCreditLiability returns the current liability of a card and the import
// that wrote it.
func (s *Store) GetCreditLiability(ctx context.Context, accountID string) (CreditLiability, string, error) {
	var rec creditLiabilityRecord
	err := s.db.NewSelect().Model(&rec).Where("account_id = ?", accountID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return CreditLiability{}, "", ErrNotFound
	}
	if err != nil {
		return CreditLiability{}, "", err
	}

	var aprs []creditAPRRecord
	if err := s.db.NewSelect().Model(&aprs).Where("account_id = ?", accountID).Order("id ASC").Scan(ctx); err != nil {
		return CreditLiability{}, "", err
	}
	out := fromCreditColumns(rec.CreditColumns)
	for _, apr := range aprs {
		out.APRs = append(out.APRs, fromAPRColumns(apr.APRColumns))
	}
	return out, rec.ImportID, nil
}

// CreditLiabilityHistory returns superseded versions of a card, oldest first.
func (s *Store) CreditLiabilityHistory(ctx context.Context, accountID string) ([]CreditLiabilityHistoryEntry, error) {
	var records []creditLiabilityHistoryRecord
	if err := s.db.NewSelect().Model(&records).Where("account_id = ?", accountID).Order("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	var aprs []creditAPRHistoryRecord
	if err := s.db.NewSelect().Model(&aprs).Where("account_id = ?", accountID).Order("id ASC").Scan(ctx); err != nil {
		return nil, err
	}

	out := make([]CreditLiabilityHistoryEntry, 0, len(records))
	for _, rec := range records {
		entry := CreditLiabilityHistoryEntry{
			CreditLiability: fromCreditColumns(rec.CreditColumns),
			ImportID:        rec.ImportID,
			SupersededBy:    rec.SupersededBy,
		}
		for _, apr := range aprs {
			if apr.SupersededBy == rec.SupersededBy {
				entry.APRs = append(entry.APRs, fromAPRColumns(apr.APRColumns))
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func creditColumns(itemID, importID string, c CreditLiability) CreditColumns {
	return CreditColumns{
		AccountID:              c.AccountID,
		ItemID:                 itemID,
		IsOverdue:              c.IsOverdue,
		LastPaymentAmount:      c.LastPaymentAmount,
		LastPaymentDate:        c.LastPaymentDate,
		LastStatementIssueDate: c.LastStatementIssueDate,
		LastStatementBalance:   c.LastStatementBalance,
		MinimumPaymentAmount:   c.MinimumPaymentAmount,
		NextPaymentDueDate:     c.NextPaymentDueDate,
		ImportID:               importID,
	}
}

func fromCreditColumns(f CreditColumns) CreditLiability {
	return CreditLiability{
		AccountID:              f.AccountID,
		IsOverdue:              f.IsOverdue,
		LastPaymentAmount:      f.LastPaymentAmount,
		LastPaymentDate:        f.LastPaymentDate,
		LastStatementIssueDate: f.LastStatementIssueDate,
		LastStatementBalance:   f.LastStatementBalance,
		MinimumPaymentAmount:   f.MinimumPaymentAmount,
		NextPaymentDueDate:     f.NextPaymentDueDate,
	}
}

func aprColumns(accountID, importID string, apr APR) APRColumns {
	return APRColumns{
		AccountID:            accountID,
		APRType:              apr.Type,
		APRPercentage:        apr.Percentage,
		BalanceSubjectToAPR:  apr.BalanceSubjectToAPR,
		InterestChargeAmount: apr.InterestChargeAmount,
		ImportID:             importID,
	}
}

func fromAPRColumns(f APRColumns) APR {
	return APR{
		Type:                 f.APRType,
		Percentage:           f.APRPercentage,
		BalanceSubjectToAPR:  f.BalanceSubjectToAPR,
		InterestChargeAmount: f.InterestChargeAmount,
	}
}
