package store

import (
	"time"

	"github.com/uptrace/bun"
)

type itemRecord struct {
	bun.BaseModel `bun:"table:plaid_items,alias:pi"`

	ID              string    `bun:"id,pk"`
	UserID          string    `bun:"user_id,notnull"`
	PlaidItemID     string    `bun:"plaid_item_id,notnull,unique"`
	AccessToken     string    `bun:"access_token,notnull"`
	InstitutionID   string    `bun:"institution_id"`
	InstitutionName string    `bun:"institution_name"`
	Status          string    `bun:"status,notnull,default:'healthy'"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type importRecord struct {
	bun.BaseModel `bun:"table:transaction_imports,alias:ti"`

	ID               string    `bun:"id,pk"`
	ItemID           string    `bun:"item_id,notnull"`
	Kind             string    `bun:"kind,notnull,default:'transactions'"`
	Description      string    `bun:"description"`
	TransactionCount int       `bun:"transaction_count,notnull"`
	StartedAt        time.Time `bun:"started_at,nullzero,notnull,default:current_timestamp"`
}

type transactionRecord struct {
	bun.BaseModel `bun:"table:plaid_transactions,alias:pt"`

	TransactionColumns
}

type transactionHistoryRecord struct {
	bun.BaseModel `bun:"table:plaid_transactions_history,alias:pth"`

	ID int64 `bun:"id,pk,autoincrement"`
	TransactionColumns
	SupersededBy string `bun:"superseded_by,notnull"`
}

// TransactionColumns is the column set shared by the current and history
// tables, embedded so both stay in step.
type TransactionColumns struct {
	TransactionID        string   `bun:"transaction_id,notnull"`
	ItemID               string   `bun:"item_id,notnull"`
	AccountID            string   `bun:"account_id,notnull"`
	Amount               float64  `bun:"amount,notnull"`
	ISOCurrencyCode      *string  `bun:"iso_currency_code"`
	Date                 string   `bun:"date,notnull"`
	AuthorizedDate       *string  `bun:"authorized_date"`
	Name                 string   `bun:"name,notnull"`
	MerchantName         *string  `bun:"merchant_name"`
	PaymentChannel       string   `bun:"payment_channel"`
	Pending              bool     `bun:"pending,notnull"`
	PendingTransactionID *string  `bun:"pending_transaction_id"`
	Category             string   `bun:"category"`
	CategoryID           *string  `bun:"category_id"`
	PFCPrimary           *string  `bun:"personal_finance_category_primary"`
	PFCDetailed          *string  `bun:"personal_finance_category_detailed"`
	PFCConfidence        *string  `bun:"personal_finance_category_confidence_level"`
	LocationCity         *string  `bun:"location_city"`
	LocationRegion       *string  `bun:"location_region"`
	LocationCountry      *string  `bun:"location_country"`
	LocationLat          *float64 `bun:"location_lat"`
	LocationLon          *float64 `bun:"location_lon"`
	Website              *string  `bun:"website"`
	ImportID             string   `bun:"import_id,notnull"`
}

type creditLiabilityRecord struct {
	bun.BaseModel `bun:"table:plaid_liabilities_credit,alias:plc"`

	CreditColumns
}

type creditLiabilityHistoryRecord struct {
	bun.BaseModel `bun:"table:plaid_liabilities_credit_history,alias:plch"`

	ID int64 `bun:"id,pk,autoincrement"`
	CreditColumns
	SupersededBy string `bun:"superseded_by,notnull"`
}

type CreditColumns struct {
	AccountID              string   `bun:"account_id,notnull"`
	ItemID                 string   `bun:"item_id,notnull"`
	IsOverdue              *bool    `bun:"is_overdue"`
	LastPaymentAmount      *float64 `bun:"last_payment_amount"`
	LastPaymentDate        *string  `bun:"last_payment_date"`
	LastStatementIssueDate *string  `bun:"last_statement_issue_date"`
	LastStatementBalance   *float64 `bun:"last_statement_balance"`
	MinimumPaymentAmount   *float64 `bun:"minimum_payment_amount"`
	NextPaymentDueDate     *string  `bun:"next_payment_due_date"`
	ImportID               string   `bun:"import_id,notnull"`
}

type creditAPRRecord struct {
	bun.BaseModel `bun:"table:plaid_liabilities_credit_apr,alias:plca"`

	ID int64 `bun:"id,pk,autoincrement"`
	APRColumns
}

type creditAPRHistoryRecord struct {
	bun.BaseModel `bun:"table:plaid_liabilities_credit_apr_history,alias:plcah"`

	ID int64 `bun:"id,pk,autoincrement"`
	APRColumns
	SupersededBy string `bun:"superseded_by,notnull"`
}

type APRColumns struct {
	AccountID            string   `bun:"account_id,notnull"`
	APRType              string   `bun:"apr_type,notnull"`
	APRPercentage        float64  `bun:"apr_percentage,notnull"`
	BalanceSubjectToAPR  *float64 `bun:"balance_subject_to_apr"`
	InterestChargeAmount *float64 `bun:"interest_charge_amount"`
	ImportID             string   `bun:"import_id,notnull"`
}

type recurringStreamRecord struct {
	bun.BaseModel `bun:"table:plaid_recurring_streams,alias:prs"`

	StreamID                 string    `bun:"stream_id,pk"`
	ItemID                   string    `bun:"item_id,notnull"`
	AccountID                string    `bun:"account_id,notnull"`
	Direction                string    `bun:"direction,notnull"`
	CategoryID               *string   `bun:"category_id"`
	Description              string    `bun:"description"`
	MerchantName             *string   `bun:"merchant_name"`
	FirstDate                string    `bun:"first_date"`
	LastDate                 string    `bun:"last_date"`
	Frequency                string    `bun:"frequency"`
	AverageAmount            float64   `bun:"average_amount"`
	LastAmount               float64   `bun:"last_amount"`
	ISOCurrencyCode          *string   `bun:"iso_currency_code"`
	IsActive                 bool      `bun:"is_active,notnull"`
	Status                   string    `bun:"status"`
	IsUserModified           bool      `bun:"is_user_modified,notnull"`
	LastUserModifiedDatetime *string   `bun:"last_user_modified_datetime"`
	PFCPrimary               *string   `bun:"personal_finance_category_primary"`
	PFCDetailed              *string   `bun:"personal_finance_category_detailed"`
	PFCConfidence            *string   `bun:"personal_finance_category_confidence_level"`
	ImportID                 string    `bun:"import_id,notnull"`
	UpdatedAt                time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type recurringTransactionRecord struct {
	bun.BaseModel `bun:"table:plaid_recurring_transactions,alias:prt"`

	StreamID      string `bun:"stream_id,pk"`
	TransactionID string `bun:"transaction_id,pk"`
}
