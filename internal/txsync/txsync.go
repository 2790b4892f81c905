// Package txsync imports Plaid transactions, liabilities and recurring
// streams for linked items into the store.
package txsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/brizzai/plaid-link/internal/config"
	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/brizzai/plaid-link/internal/metrics"
	"github.com/brizzai/plaid-link/internal/plaid"
	"github.com/brizzai/plaid-link/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// maxPages guards against a total that never converges.
const maxPages = 1000

// ErrNoItems is returned when there is nothing to sync.
var ErrNoItems = errors.New("no linked items to sync")

// Products a sync can fetch.
const (
	ProductTransactions = "transactions"
	ProductLiabilities  = "liabilities"
	ProductRecurring    = "recurring"
)

// Products lists every product a sync can fetch.
var Products = []string{ProductTransactions, ProductLiabilities, ProductRecurring}

// API is the part of the Plaid API the syncer calls.
type API interface {
	TransactionsGet(ctx context.Context, req *plaid.TransactionsGetRequest) (*plaid.TransactionsGetResponse, error)
	LiabilitiesGet(ctx context.Context, accessToken string) (*plaid.LiabilitiesGetResponse, error)
	TransactionsRecurringGet(ctx context.Context, accessToken string) (*plaid.TransactionsRecurringGetResponse, error)
}

// Store persists items and imports.
type Store interface {
	ListItems(ctx context.Context, userID string) ([]store.Item, error)
	ImportTransactions(ctx context.Context, itemID, description string, txns []store.Transaction) (store.ImportResult, error)
	ImportLiabilities(ctx context.Context, itemID, description string, credits []store.CreditLiability) (store.ImportResult, error)
	ImportRecurring(ctx context.Context, itemID, description string, streams []store.RecurringStream) (store.ImportResult, error)
	SetItemStatus(ctx context.Context, plaidItemID, status string) error
}

// Options select what to sync.
type Options struct {
	// UserID limits the sync to one user's items. Empty syncs every item.
	UserID string
	// ItemID limits the sync to one item, by local or Plaid id.
	ItemID string
	// Days overrides the configured look-back window.
	Days int
	// Products overrides the configured products.
	Products []string
	// Out receives the fetched transactions as JSON when set.
	Out io.Writer
}

// ItemReport is the outcome of syncing one item.
type ItemReport struct {
	ItemID          string              `json:"item_id"`
	InstitutionName string              `json:"institution_name,omitempty"`
	Fetched         int                 `json:"fetched"`
	Import          *store.ImportResult `json:"import,omitempty"`
	Liabilities     *store.ImportResult `json:"liabilities,omitempty"`
	Recurring       *store.ImportResult `json:"recurring,omitempty"`
	// Skipped lists products the item does not support.
	Skipped []string `json:"skipped,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Report summarizes a sync run.
type Report struct {
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	Products  []string     `json:"products"`
	Items     []ItemReport `json:"items"`
}

// Failed counts the items that could not be synced.
func (r *Report) Failed() int {
	n := 0
	for _, item := range r.Items {
		if item.Error != "" {
			n++
		}
	}
	return n
}

// Syncer fetches transactions for stored items and imports them.
type Syncer struct {
	api   API
	store Store
	cfg   config.SyncConfig
	now   func() time.Time
}

// New creates a Syncer.
func New(api API, st Store, cfg config.SyncConfig) *Syncer {
	return &Syncer{api: api, store: st, cfg: cfg, now: time.Now}
}

// Sync fetches the selected products for every selected item and imports
// them. Transactions cover the last N days. Items and products are
// independent: a failure is recorded in the report and the run moves on.
func (s *Syncer) Sync(ctx context.Context, opts Options) (*Report, error) {
	products, err := s.products(opts)
	if err != nil {
		return nil, err
	}
	items, err := s.selectItems(ctx, opts)
	if err != nil {
		return nil, err
	}

	days := opts.Days
	if days <= 0 {
		days = s.cfg.Days
	}
	if days <= 0 {
		days = 30
	}
	end := s.now().UTC()
	report := &Report{
		StartDate: end.AddDate(0, 0, -days).Format(dateLayout),
		EndDate:   end.Format(dateLayout),
		Products:  products,
	}

	var fetchedAll []plaid.Transaction
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		ir := ItemReport{ItemID: item.PlaidItemID, InstitutionName: item.InstitutionName}

		var failures []string
	itemProducts:
		for _, product := range products {
			var err error
			switch product {
			case ProductTransactions:
				var txns []plaid.Transaction
				txns, err = s.syncTransactions(ctx, item, report, &ir)
				fetchedAll = append(fetchedAll, txns...)
			case ProductLiabilities:
				err = s.syncLiabilities(ctx, item, &ir)
			case ProductRecurring:
				err = s.syncRecurring(ctx, item, &ir)
			}
			switch {
			case err == nil:
			case plaid.Unsupported(err):
				logger.Info("Product not available for item",
					zap.String("item_id", item.PlaidItemID),
					zap.String("product", product),
				)
				ir.Skipped = append(ir.Skipped, product)
			default:
				failures = append(failures, product+": "+err.Error())
				if s.markItem(ctx, item, product, err) {
					// Every other product fails the same way until the user logs in again.
					break itemProducts
				}
			}
		}
		ir.Error = strings.Join(failures, "; ")
		report.Items = append(report.Items, ir)
	}

	if opts.Out != nil {
		if fetchedAll == nil {
			fetchedAll = []plaid.Transaction{}
		}
		enc := json.NewEncoder(opts.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(fetchedAll); err != nil {
			return report, fmt.Errorf("write transactions: %w", err)
		}
	}
	return report, nil
}

func (s *Syncer) products(opts Options) ([]string, error) {
	products := opts.Products
	if len(products) == 0 {
		products = s.cfg.Products
	}
	if len(products) == 0 {
		return []string{ProductTransactions}, nil
	}
	var out []string
	for _, p := range products {
		p = strings.ToLower(strings.TrimSpace(p))
		if !slices.Contains(Products, p) {
			return nil, fmt.Errorf("unknown sync product %q (want one of %s)", p, strings.Join(Products, ", "))
		}
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Syncer) syncTransactions(ctx context.Context, item store.Item, report *Report, ir *ItemReport) ([]plaid.Transaction, error) {
	txns, err := s.fetch(ctx, item, report.StartDate, report.EndDate)
	if err != nil {
		return nil, err
	}
	ir.Fetched = len(txns)

	converted := make([]store.Transaction, 0, len(txns))
	for _, t := range txns {
		converted = append(converted, ToStoreTransaction(t))
	}
	desc := fmt.Sprintf("transactions/get %s..%s", report.StartDate, report.EndDate)
	result, err := s.store.ImportTransactions(ctx, item.PlaidItemID, desc, converted)
	if err != nil {
		return txns, err
	}
	metrics.ImportedTransactions.WithLabelValues("inserted").Add(float64(result.Inserted))
	metrics.ImportedTransactions.WithLabelValues("replaced").Add(float64(result.Replaced))
	logger.Info("Transactions imported",
		zap.String("item_id", item.PlaidItemID),
		zap.String("import_id", result.ImportID),
		zap.Int("inserted", result.Inserted),
		zap.Int("replaced", result.Replaced),
	)
	ir.Import = &result
	return txns, nil
}

func (s *Syncer) syncLiabilities(ctx context.Context, item store.Item, ir *ItemReport) error {
	resp, err := s.api.LiabilitiesGet(ctx, item.AccessToken)
	if err != nil {
		return err
	}
	credits := make([]store.CreditLiability, 0, len(resp.Liabilities.Credit))
	for _, c := range resp.Liabilities.Credit {
		credits = append(credits, ToStoreCreditLiability(c))
	}
	desc := fmt.Sprintf("liabilities/get %s", s.now().UTC().Format(time.RFC3339))
	result, err := s.store.ImportLiabilities(ctx, item.PlaidItemID, desc, credits)
	if err != nil {
		return err
	}
	logger.Info("Liabilities imported",
		zap.String("item_id", item.PlaidItemID),
		zap.String("import_id", result.ImportID),
		zap.Int("cards", len(credits)),
	)
	ir.Liabilities = &result
	return nil
}

func (s *Syncer) syncRecurring(ctx context.Context, item store.Item, ir *ItemReport) error {
	resp, err := s.api.TransactionsRecurringGet(ctx, item.AccessToken)
	if err != nil {
		return err
	}
	streams := make([]store.RecurringStream, 0, len(resp.InflowStreams)+len(resp.OutflowStreams))
	for _, st := range resp.InflowStreams {
		streams = append(streams, ToStoreRecurringStream(st, store.Inflow))
	}
	for _, st := range resp.OutflowStreams {
		streams = append(streams, ToStoreRecurringStream(st, store.Outflow))
	}
	desc := fmt.Sprintf("transactions/recurring/get %s", resp.UpdatedDatetime)
	result, err := s.store.ImportRecurring(ctx, item.PlaidItemID, desc, streams)
	if err != nil {
		return err
	}
	logger.Info("Recurring streams imported",
		zap.String("item_id", item.PlaidItemID),
		zap.String("import_id", result.ImportID),
		zap.Int("streams", len(streams)),
	)
	ir.Recurring = &result
	return nil
}

func (s *Syncer) selectItems(ctx context.Context, opts Options) ([]store.Item, error) {
	items, err := s.store.ListItems(ctx, opts.UserID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if opts.ItemID != "" {
		var selected []store.Item
		for _, item := range items {
			if item.ID == opts.ItemID || item.PlaidItemID == opts.ItemID {
				selected = append(selected, item)
			}
		}
		items = selected
	}
	if s.cfg.ItemLimit > 0 && len(items) > s.cfg.ItemLimit {
		items = items[:s.cfg.ItemLimit]
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	return items, nil
}

// fetch pages through /transactions/get until the reported total is read.
func (s *Syncer) fetch(ctx context.Context, item store.Item, start, end string) ([]plaid.Transaction, error) {
	pageSize := s.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	var all []plaid.Transaction
	for page := 0; page < maxPages; page++ {
		resp, err := s.api.TransactionsGet(ctx, &plaid.TransactionsGetRequest{
			AccessToken: item.AccessToken,
			StartDate:   start,
			EndDate:     end,
			Options:     &plaid.TransactionsGetOptions{Count: pageSize, Offset: len(all)},
		})
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Transactions...)
		logger.Debug("Fetched transactions page",
			zap.String("item_id", item.PlaidItemID),
			zap.Int("page", page),
			zap.Int("count", len(resp.Transactions)),
			zap.Int("total", resp.TotalTransactions),
		)
		if len(all) >= resp.TotalTransactions || len(resp.Transactions) == 0 {
			return all, nil
		}
	}
	return nil, fmt.Errorf("transactions for item %s did not converge after %d pages", item.PlaidItemID, maxPages)
}

// markItem records a login problem reported by Plaid on the item. It
// reports whether the item was marked.
func (s *Syncer) markItem(ctx context.Context, item store.Item, product string, err error) bool {
	var perr *plaid.Error
	if !errors.As(err, &perr) || perr.ErrorCode != plaid.CodeItemLoginRequired {
		logger.Error("Sync failed",
			zap.String("item_id", item.PlaidItemID),
			zap.String("product", product),
			zap.Error(err),
		)
		return false
	}
	logger.Warn("Item needs a login update", zap.String("item_id", item.PlaidItemID))
	if err := s.store.SetItemStatus(ctx, item.PlaidItemID, store.StatusLoginRequired); err != nil {
		logger.Error("Failed to update item status", zap.String("item_id", item.PlaidItemID), zap.Error(err))
	}
	return true
}

// ToStoreTransaction flattens a Plaid transaction into its stored form.
// Legacy categories are joined with commas.
func ToStoreTransaction(t plaid.Transaction) store.Transaction {
	out := store.Transaction{
		TransactionID:        t.TransactionID,
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
		Category:             strings.Join(t.Category, ","),
		CategoryID:           t.CategoryID,
		LocationCity:         t.Location.City,
		LocationRegion:       t.Location.Region,
		LocationCountry:      t.Location.Country,
		LocationLat:          t.Location.Lat,
		LocationLon:          t.Location.Lon,
		Website:              t.Website,
	}
	if out.ISOCurrencyCode == nil {
		out.ISOCurrencyCode = t.UnofficialCurrencyCode
	}
	if pfc := t.PersonalFinanceCategory; pfc != nil {
		out.PFCPrimary = &pfc.Primary
		out.PFCDetailed = &pfc.Detailed
		out.PFCConfidence = &pfc.ConfidenceLevel
	}
	return out
}

// ToStoreCreditLiability converts a Plaid credit card liability.
func ToStoreCreditLiability(c plaid.CreditCardLiability) store.CreditLiability {
	out := store.CreditLiability{
		AccountID:              c.AccountID,
		IsOverdue:              c.IsOverdue,
		LastPaymentAmount:      c.LastPaymentAmount,
		LastPaymentDate:        c.LastPaymentDate,
		LastStatementIssueDate: c.LastStatementIssueDate,
		LastStatementBalance:   c.LastStatementBalance,
		MinimumPaymentAmount:   c.MinimumPaymentAmount,
		NextPaymentDueDate:     c.NextPaymentDueDate,
	}
	for _, apr := range c.APRs {
		out.APRs = append(out.APRs, store.APR{
			Type:                 apr.APRType,
			Percentage:           apr.APRPercentage,
			BalanceSubjectToAPR:  apr.BalanceSubjectToAPR,
			InterestChargeAmount: apr.InterestChargeAmount,
		})
	}
	return out
}

// ToStoreRecurringStream converts a Plaid stream flowing in direction.
func ToStoreRecurringStream(st plaid.RecurringStream, direction string) store.RecurringStream {
	out := store.RecurringStream{
		StreamID:                 st.StreamID,
		AccountID:                st.AccountID,
		Direction:                direction,
		CategoryID:               st.CategoryID,
		Description:              st.Description,
		MerchantName:             st.MerchantName,
		FirstDate:                st.FirstDate,
		LastDate:                 st.LastDate,
		Frequency:                st.Frequency,
		AverageAmount:            st.AverageAmount.Amount,
		LastAmount:               st.LastAmount.Amount,
		ISOCurrencyCode:          st.AverageAmount.ISOCurrencyCode,
		IsActive:                 st.IsActive,
		Status:                   st.Status,
		IsUserModified:           st.IsUserModified,
		LastUserModifiedDatetime: st.LastUserModifiedDatetime,
		TransactionIDs:           st.TransactionIDs,
	}
	if out.ISOCurrencyCode == nil {
		out.ISOCurrencyCode = st.AverageAmount.UnofficialCurrencyCode
	}
	if pfc := st.PersonalFinanceCategory; pfc != nil {
		out.PFCPrimary = &pfc.Primary
		out.PFCDetailed = &pfc.Detailed
		out.PFCConfidence = &pfc.ConfidenceLevel
	}
	return out
}

func newModuleSyncer(api *plaid.Client, st *store.Store, cfg *config.Config) *Syncer {
	return New(api, st, cfg.Sync)
}

// Module provides the transaction syncer
var Module = fx.Module("txsync",
	fx.Provide(newModuleSyncer),
)
