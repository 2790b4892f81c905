package txsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brizzai/plaid-link/internal/config"
	"github.com/brizzai/plaid-link/internal/plaid"
	"github.com/brizzai/plaid-link/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu           sync.Mutex
	txns         map[string][]plaid.Transaction // by access token
	errs         map[string]error
	calls        []plaid.TransactionsGetRequest
	liabilities  map[string][]plaid.CreditCardLiability
	recurring    map[string]*plaid.TransactionsRecurringGetResponse
	productErrs  map[string]error // fail a product for every item
	productCalls []string
}

func (f *fakeAPI) LiabilitiesGet(_ context.Context, accessToken string) (*plaid.LiabilitiesGetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.productCalls = append(f.productCalls, ProductLiabilities)
	if err := f.errs[accessToken]; err != nil {
		return nil, err
	}
	if err := f.productErrs[ProductLiabilities]; err != nil {
		return nil, err
	}
	return &plaid.LiabilitiesGetResponse{Liabilities: plaid.Liabilities{Credit: f.liabilities[accessToken]}}, nil
}

func (f *fakeAPI) TransactionsRecurringGet(_ context.Context, accessToken string) (*plaid.TransactionsRecurringGetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.productCalls = append(f.productCalls, ProductRecurring)
	if err := f.errs[accessToken]; err != nil {
		return nil, err
	}
	if err := f.productErrs[ProductRecurring]; err != nil {
		return nil, err
	}
	if resp := f.recurring[accessToken]; resp != nil {
		return resp, nil
	}
	return &plaid.TransactionsRecurringGetResponse{}, nil
}

func (f *fakeAPI) TransactionsGet(_ context.Context, req *plaid.TransactionsGetRequest) (*plaid.TransactionsGetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, *req)
	if err := f.errs[req.AccessToken]; err != nil {
		return nil, err
	}
	all := f.txns[req.AccessToken]
	start := min(req.Options.Offset, len(all))
	end := min(start+req.Options.Count, len(all))
	return &plaid.TransactionsGetResponse{
		Transactions:      all[start:end],
		TotalTransactions: len(all),
	}, nil
}

func txn(id string, amount float64) plaid.Transaction {
	return plaid.Transaction{
		TransactionID: id,
		AccountID:     "acc-1",
		Amount:        amount,
		Date:          "2024-01-02",
		Name:          "Coffee " + id,
		Category:      []string{"Food and Drink", "Coffee"},
	}
}

var dbCounter int64

func newTestSyncer(t *testing.T, api *fakeAPI, cfg config.SyncConfig) (*Syncer, *store.Store) {
	t.Helper()
	n := atomic.AddInt64(&dbCounter, 1)
	st, err := store.Open(context.Background(), &config.StorageConfig{
		DSN: fmt.Sprintf("file:txsync-test-%d?mode=memory&cache=shared", n),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	s := New(api, st, cfg)
	s.now = func() time.Time { return time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC) }
	return s, st
}

func saveItem(t *testing.T, st *store.Store, user, itemID, token string) {
	t.Helper()
	_, err := st.SaveItem(context.Background(), store.Item{
		UserID:          user,
		PlaidItemID:     itemID,
		AccessToken:     token,
		InstitutionName: "Bank " + itemID,
	})
	require.NoError(t, err)
}

func TestSyncPagesAndImports(t *testing.T) {
	api := &fakeAPI{txns: map[string][]plaid.Transaction{
		"access-a": {txn("t1", 1), txn("t2", 2), txn("t3", 3), txn("t4", 4), txn("t5", 5)},
	}}
	s, st := newTestSyncer(t, api, config.SyncConfig{Days: 30, PageSize: 2})
	saveItem(t, st, "u1", "item-a", "access-a")

	report, err := s.Sync(context.Background(), Options{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01", report.StartDate)
	assert.Equal(t, "2024-01-31", report.EndDate)
	require.Len(t, report.Items, 1)
	assert.Equal(t, 5, report.Items[0].Fetched)
	require.NotNil(t, report.Items[0].Import)
	assert.Equal(t, 5, report.Items[0].Import.Inserted)
	assert.Zero(t, report.Failed())

	var offsets []int
	for _, call := range api.calls {
		offsets = append(offsets, call.Options.Offset)
		assert.Equal(t, "2024-01-01", call.StartDate)
	}
	if diff := cmp.Diff([]int{0, 2, 4}, offsets); diff != "" {
		t.Errorf("page offsets mismatch (-want +got):\n%s", diff)
	}

	count, err := st.CountTransactions(context.Background(), "item-a")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	got, _, err := st.GetTransaction(context.Background(), "t2")
	require.NoError(t, err)
	assert.Equal(t, "Food and Drink,Coffee", got.Category)
}

func TestSyncAgainMovesRowsToHistory(t *testing.T) {
	api := &fakeAPI{txns: map[string][]plaid.Transaction{"access-a": {txn("t1", 1), txn("t2", 2)}}}
	s, st := newTestSyncer(t, api, config.SyncConfig{PageSize: 100})
	saveItem(t, st, "u1", "item-a", "access-a")

	_, err := s.Sync(context.Background(), Options{UserID: "u1"})
	require.NoError(t, err)
	report, err := s.Sync(context.Background(), Options{UserID: "u1"})
	require.NoError(t, err)

	require.NotNil(t, report.Items[0].Import)
	assert.Equal(t, 0, report.Items[0].Import.Inserted)
	assert.Equal(t, 2, report.Items[0].Import.Replaced)

	history, err := st.TransactionHistory(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, report.Items[0].Import.ImportID, history[0].SupersededBy)

	count, err := st.CountTransactions(context.Background(), "item-a")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSyncContinuesPastFailingItem(t *testing.T) {
	api := &fakeAPI{
		txns: map[string][]plaid.Transaction{"access-b": {txn("t1", 1)}},
		errs: map[string]error{"access-a": &plaid.Error{ErrorCode: plaid.CodeItemLoginRequired, ErrorMessage: "login required"}},
	}
	s, st := newTestSyncer(t, api, config.SyncConfig{})
	saveItem(t, st, "u1", "item-a", "access-a")
	saveItem(t, st, "u1", "item-b", "access-b")

	report, err := s.Sync(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, report.Items, 2)
	assert.Equal(t, 1, report.Failed())

	byID := map[string]ItemReport{}
	for _, ir := range report.Items {
		byID[ir.ItemID] = ir
	}
	assert.Contains(t, byID["item-a"].Error, "login required")
	assert.Nil(t, byID["item-a"].Import)
	assert.Equal(t, 1, byID["item-b"].Fetched)

	item, err := st.GetItem(context.Background(), "u1", "item-a")
	require.NoError(t, err)
	assert.Equal(t, store.StatusLoginRequired, item.Status)
}

func TestSyncRollsBackBadImport(t *testing.T) {
	api := &fakeAPI{txns: map[string][]plaid.Transaction{"access-a": {txn("t1", 1), txn("", 2)}}}
	s, st := newTestSyncer(t, api, config.SyncConfig{})
	saveItem(t, st, "u1", "item-a", "access-a")

	report, err := s.Sync(context.Background(), Options{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())

	count, err := st.CountTransactions(context.Background(), "item-a")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSyncSelection(t *testing.T) {
	api := &fakeAPI{txns: map[string][]plaid.Transaction{}}
	s, st := newTestSyncer(t, api, config.SyncConfig{})

	_, err := s.Sync(context.Background(), Options{UserID: "u1"})
	assert.ErrorIs(t, err, ErrNoItems)

	saveItem(t, st, "u1", "item-a", "access-a")
	saveItem(t, st, "u2", "item-b", "access-b")

	report, err := s.Sync(context.Background(), Options{ItemID: "item-b"})
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, "item-b", report.Items[0].ItemID)

	_, err = s.Sync(context.Background(), Options{UserID: "u1", ItemID: "item-b"})
	assert.ErrorIs(t, err, ErrNoItems, "other users' items are never selected")

	s.cfg.ItemLimit = 1
	report, err = s.Sync(context.Background(), Options{})
	require.NoError(t, err)
	assert.Len(t, report.Items, 1)
}

func TestSyncWritesJSON(t *testing.T) {
	api := &fakeAPI{txns: map[string][]plaid.Transaction{"access-a": {txn("t1", 1)}}}
	s, st := newTestSyncer(t, api, config.SyncConfig{})
	saveItem(t, st, "u1", "item-a", "access-a")

	var out bytes.Buffer
	_, err := s.Sync(context.Background(), Options{UserID: "u1", Days: 7, Out: &out})
	require.NoError(t, err)

	var written []plaid.Transaction
	require.NoError(t, json.Unmarshal(out.Bytes(), &written))
	require.Len(t, written, 1)
	assert.Equal(t, "t1", written[0].TransactionID)
	assert.Equal(t, "2024-01-24", api.calls[0].StartDate)
}

func TestSyncLiabilitiesAndRecurring(t *testing.T) {
	balance := 410.5
	api := &fakeAPI{
		txns: map[string][]plaid.Transaction{"access-a": {txn("t1", 1)}},
		liabilities: map[string][]plaid.CreditCardLiability{"access-a": {{
			AccountID:            "card-1",
			LastStatementBalance: &balance,
			APRs:                 []plaid.APR{{APRType: "purchase_apr", APRPercentage: 19.99}},
		}}},
		recurring: map[string]*plaid.TransactionsRecurringGetResponse{"access-a": {
			InflowStreams:  []plaid.RecurringStream{{StreamID: "s-pay", AccountID: "acc-1", Description: "Payroll", TransactionIDs: []string{"t1"}}},
			OutflowStreams: []plaid.RecurringStream{{StreamID: "s-rent", AccountID: "acc-1", Description: "Rent"}},
		}},
	}
	s, st := newTestSyncer(t, api, config.SyncConfig{Products: []string{"transactions", "liabilities", "recurring"}})
	saveItem(t, st, "u1", "item-a", "access-a")

	report, err := s.Sync(context.Background(), Options{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"transactions", "liabilities", "recurring"}, report.Products)
	require.Len(t, report.Items, 1)
	ir := report.Items[0]
	assert.Empty(t, ir.Error)
	require.NotNil(t, ir.Import)
	require.NotNil(t, ir.Liabilities)
	assert.Equal(t, 1, ir.Liabilities.Inserted)
	require.NotNil(t, ir.Recurring)
	assert.Equal(t, 2, ir.Recurring.Inserted)

	card, _, err := st.GetCreditLiability(context.Background(), "card-1")
	require.NoError(t, err)
	require.NotNil(t, card.LastStatementBalance)
	assert.Equal(t, 410.5, *card.LastStatementBalance)
	require.Len(t, card.APRs, 1)
	assert.Equal(t, "purchase_apr", card.APRs[0].Type)

	streams, err := st.ListRecurringStreams(context.Background(), "item-a")
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Equal(t, store.Inflow, streams[0].Direction)
	assert.Equal(t, []string{"t1"}, streams[0].TransactionIDs)
	assert.Equal(t, store.Outflow, streams[1].Direction)

	// Syncing again archives the card.
	report, err = s.Sync(context.Background(), Options{UserID: "u1", Products: []string{"liabilities"}})
	require.NoError(t, err)
	assert.Nil(t, report.Items[0].Import)
	assert.Equal(t, 1, report.Items[0].Liabilities.Replaced)
	history, err := st.CreditLiabilityHistory(context.Background(), "card-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSyncSkipsUnsupportedProducts(t *testing.T) {
	api := &fakeAPI{
		txns:        map[string][]plaid.Transaction{"access-a": {txn("t1", 1)}},
		productErrs: map[string]error{ProductLiabilities: &plaid.Error{ErrorCode: plaid.CodeNoLiabilityAccounts}},
	}
	s, st := newTestSyncer(t, api, config.SyncConfig{})
	saveItem(t, st, "u1", "item-a", "access-a")

	report, err := s.Sync(context.Background(), Options{Products: []string{"Liabilities", "transactions", "liabilities"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"liabilities", "transactions"}, report.Products)
	assert.Zero(t, report.Failed())
	assert.Equal(t, []string{"liabilities"}, report.Items[0].Skipped)
	assert.Equal(t, 1, report.Items[0].Fetched)
}

func TestSyncProductFailureKeepsOtherProducts(t *testing.T) {
	api := &fakeAPI{
		txns:        map[string][]plaid.Transaction{"access-a": {txn("t1", 1)}},
		productErrs: map[string]error{ProductRecurring: &plaid.Error{ErrorCode: plaid.CodeProductNotReady, ErrorMessage: "not ready"}},
	}
	s, st := newTestSyncer(t, api, config.SyncConfig{})
	saveItem(t, st, "u1", "item-a", "access-a")

	report, err := s.Sync(context.Background(), Options{Products: []string{"recurring", "transactions"}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())
	assert.Contains(t, report.Items[0].Error, "recurring: ")
	require.NotNil(t, report.Items[0].Import, "transactions are imported after recurring failed")

	item, err := st.GetItem(context.Background(), "u1", "item-a")
	require.NoError(t, err)
	assert.Equal(t, store.StatusHealthy, item.Status)
}

func TestSyncLoginRequiredStopsItem(t *testing.T) {
	api := &fakeAPI{errs: map[string]error{"access-a": &plaid.Error{ErrorCode: plaid.CodeItemLoginRequired, ErrorMessage: "login required"}}}
	s, st := newTestSyncer(t, api, config.SyncConfig{})
	saveItem(t, st, "u1", "item-a", "access-a")

	report, err := s.Sync(context.Background(), Options{Products: Products})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())
	assert.Len(t, api.calls, 1)
	assert.Empty(t, api.productCalls, "no further products are fetched for the item")
}

func TestSyncRejectsUnknownProduct(t *testing.T) {
	s, _ := newTestSyncer(t, &fakeAPI{}, config.SyncConfig{})
	_, err := s.Sync(context.Background(), Options{Products: []string{"investments"}})
	assert.ErrorContains(t, err, "unknown sync product")
}

func TestToStoreRecurringStream(t *testing.T) {
	cad := "CAD"
	in := plaid.RecurringStream{
		StreamID:                "s-pay",
		AccountID:               "acc-1",
		AverageAmount:           plaid.StreamAmount{Amount: -2500, UnofficialCurrencyCode: &cad},
		LastAmount:              plaid.StreamAmount{Amount: -2400},
		PersonalFinanceCategory: &plaid.PersonalFinanceCategory{Primary: "INCOME", Detailed: "INCOME_WAGES"},
	}
	got := ToStoreRecurringStream(in, store.Inflow)
	assert.Equal(t, store.Inflow, got.Direction)
	assert.Equal(t, -2500.0, got.AverageAmount)
	assert.Equal(t, -2400.0, got.LastAmount)
	require.NotNil(t, got.ISOCurrencyCode)
	assert.Equal(t, "CAD", *got.ISOCurrencyCode)
	require.NotNil(t, got.PFCDetailed)
	assert.Equal(t, "INCOME_WAGES", *got.PFCDetailed)
}

func TestToStoreTransaction(t *testing.T) {
	usd := "USD"
	city := "Toronto"
	in := txn("t1", 4.5)
	in.UnofficialCurrencyCode = &usd
	in.Location.City = &city
	in.PersonalFinanceCategory = &plaid.PersonalFinanceCategory{Primary: "FOOD_AND_DRINK", Detailed: "FOOD_AND_DRINK_COFFEE", ConfidenceLevel: "HIGH"}

	got := ToStoreTransaction(in)
	assert.Equal(t, "t1", got.TransactionID)
	assert.Equal(t, 4.5, got.Amount)
	assert.Equal(t, "Food and Drink,Coffee", got.Category)
	require.NotNil(t, got.ISOCurrencyCode)
	assert.Equal(t, "USD", *got.ISOCurrencyCode)
	require.NotNil(t, got.LocationCity)
	assert.Equal(t, "Toronto", *got.LocationCity)
	require.NotNil(t, got.PFCDetailed)
	assert.Equal(t, "FOOD_AND_DRINK_COFFEE", *got.PFCDetailed)
}
