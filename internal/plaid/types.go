package plaid

import (
	"encoding/json"
	"errors"
	"fmt"
)

// LinkTokenUser identifies the end user of a Link session.
type LinkTokenUser struct {
	ClientUserID string `json:"client_user_id"`
}

// LinkTokenCreateRequest is the body of /link/token/create. Setting
// AccessToken creates an update-mode token for an existing item.
type LinkTokenCreateRequest struct {
	ClientName   string        `json:"client_name"`
	Language     string        `json:"language"`
	CountryCodes []string      `json:"country_codes"`
	User         LinkTokenUser `json:"user"`
	Products     []string      `json:"products,omitempty"`
	AccessToken  string        `json:"access_token,omitempty"`
	RedirectURI  string        `json:"redirect_uri,omitempty"`
	Webhook      string        `json:"webhook,omitempty"`
}

type LinkTokenCreateResponse struct {
	LinkToken  string `json:"link_token"`
	Expiration string `json:"expiration"`
	RequestID  string `json:"request_id"`
}

type ItemPublicTokenExchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	RequestID   string `json:"request_id"`
}

type Item struct {
	ItemID        string `json:"item_id"`
	InstitutionID string `json:"institution_id"`
}

type Account struct {
	AccountID    string `json:"account_id"`
	Name         string `json:"name"`
	OfficialName string `json:"official_name"`
	Mask         string `json:"mask"`
	Type         string `json:"type"`
	Subtype      string `json:"subtype"`
}

type PersonalFinanceCategory struct {
	Primary         string `json:"primary"`
	Detailed        string `json:"detailed"`
	ConfidenceLevel string `json:"confidence_level"`
}

type Location struct {
	Address     *string  `json:"address"`
	City        *string  `json:"city"`
	Region      *string  `json:"region"`
	PostalCode  *string  `json:"postal_code"`
	Country     *string  `json:"country"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	StoreNumber *string  `json:"store_number"`
}

// Transaction is the subset of Plaid's transaction object that is persisted.
type Transaction struct {
	TransactionID           string                   `json:"transaction_id"`
	AccountID               string                   `json:"account_id"`
	Amount                  float64                  `json:"amount"`
	ISOCurrencyCode         *string                  `json:"iso_currency_code"`
	UnofficialCurrencyCode  *string                  `json:"unofficial_currency_code"`
	Date                    string                   `json:"date"`
	AuthorizedDate          *string                  `json:"authorized_date"`
	Name                    string                   `json:"name"`
	MerchantName            *string                  `json:"merchant_name"`
	PaymentChannel          string                   `json:"payment_channel"`
	Pending                 bool                     `json:"pending"`
	PendingTransactionID    *string                  `json:"pending_transaction_id"`
	Category                []string                 `json:"category"`
	CategoryID              *string                  `json:"category_id"`
	PersonalFinanceCategory *PersonalFinanceCategory `json:"personal_finance_category"`
	Location                Location                 `json:"location"`
	Website                 *string                  `json:"website"`
	LogoURL                 *string                  `json:"logo_url"`
}

type TransactionsGetOptions struct {
	Count      int      `json:"count,omitempty"`
	Offset     int      `json:"offset"`
	AccountIDs []string `json:"account_ids,omitempty"`
}

// TransactionsGetRequest dates are YYYY-MM-DD.
type TransactionsGetRequest struct {
	AccessToken string                  `json:"access_token"`
	StartDate   string                  `json:"start_date"`
	EndDate     string                  `json:"end_date"`
	Options     *TransactionsGetOptions `json:"options,omitempty"`
}

type TransactionsGetResponse struct {
	Accounts          []Account     `json:"accounts"`
	Transactions      []Transaction `json:"transactions"`
	TotalTransactions int           `json:"total_transactions"`
	Item              Item          `json:"item"`
	RequestID         string        `json:"request_id"`
}

// APR is one interest rate of a credit card.
type APR struct {
	APRPercentage        float64  `json:"apr_percentage"`
	APRType              string   `json:"apr_type"`
	BalanceSubjectToAPR  *float64 `json:"balance_subject_to_apr"`
	InterestChargeAmount *float64 `json:"interest_charge_amount"`
}

// CreditCardLiability is the liability of one credit card account.
type CreditCardLiability struct {
	AccountID              string   `json:"account_id"`
	APRs                   []APR    `json:"aprs"`
	IsOverdue              *bool    `json:"is_overdue"`
	LastPaymentAmount      *float64 `json:"last_payment_amount"`
	LastPaymentDate        *string  `json:"last_payment_date"`
	LastStatementIssueDate *string  `json:"last_statement_issue_date"`
	LastStatementBalance   *float64 `json:"last_statement_balance"`
	MinimumPaymentAmount   *float64 `json:"minimum_payment_amount"`
	NextPaymentDueDate     *string  `json:"next_payment_due_date"`
}

// Liabilities keeps the raw mortgage and student loan objects; only credit
// cards are imported.
type Liabilities struct {
	Credit   []CreditCardLiability `json:"credit"`
	Mortgage json.RawMessage       `json:"mortgage,omitempty"`
	Student  json.RawMessage       `json:"student,omitempty"`
}

type LiabilitiesGetResponse struct {
	Accounts    []Account   `json:"accounts"`
	Liabilities Liabilities `json:"liabilities"`
	Item        Item        `json:"item"`
	RequestID   string      `json:"request_id"`
}

type StreamAmount struct {
	Amount                 float64 `json:"amount"`
	ISOCurrencyCode        *string `json:"iso_currency_code"`
	UnofficialCurrencyCode *string `json:"unofficial_currency_code"`
}

// RecurringStream is a series of related transactions Plaid detected as
// recurring.
type RecurringStream struct {
	StreamID                 string                   `json:"stream_id"`
	AccountID                string                   `json:"account_id"`
	CategoryID               *string                  `json:"category_id"`
	Description              string                   `json:"description"`
	MerchantName             *string                  `json:"merchant_name"`
	FirstDate                string                   `json:"first_date"`
	LastDate                 string                   `json:"last_date"`
	Frequency                string                   `json:"frequency"`
	TransactionIDs           []string                 `json:"transaction_ids"`
	AverageAmount            StreamAmount             `json:"average_amount"`
	LastAmount               StreamAmount             `json:"last_amount"`
	IsActive                 bool                     `json:"is_active"`
	Status                   string                   `json:"status"`
	IsUserModified           bool                     `json:"is_user_modified"`
	LastUserModifiedDatetime *string                  `json:"last_user_modified_datetime"`
	PersonalFinanceCategory  *PersonalFinanceCategory `json:"personal_finance_category"`
}

type TransactionsRecurringGetResponse struct {
	InflowStreams   []RecurringStream `json:"inflow_streams"`
	OutflowStreams  []RecurringStream `json:"outflow_streams"`
	UpdatedDatetime string            `json:"updated_datetime"`
	RequestID       string            `json:"request_id"`
}

type SandboxPublicTokenCreateRequest struct {
	InstitutionID   string   `json:"institution_id"`
	InitialProducts []string `json:"initial_products"`
}

type SandboxPublicTokenCreateResponse struct {
	PublicToken string `json:"public_token"`
	RequestID   string `json:"request_id"`
}

// Error is the error object Plaid returns with non-2xx responses.
type Error struct {
	StatusCode     int    `json:"-"`
	ErrorType      string `json:"error_type"`
	ErrorCode      string `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	RequestID      string `json:"request_id"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("plaid %s/%s (status %d): %s", e.ErrorType, e.ErrorCode, e.StatusCode, e.ErrorMessage)
}

// Code values callers branch on.
const (
	CodeItemLoginRequired  = "ITEM_LOGIN_REQUIRED"
	CodeInvalidPublicToken = "INVALID_PUBLIC_TOKEN"
	CodeInvalidAccessToken = "INVALID_ACCESS_TOKEN"
	CodeProductNotReady    = "PRODUCT_NOT_READY"
	CodeItemNotFound       = "ITEM_NOT_FOUND"
	// The item has no accounts or institution support for a product.
	CodeNoLiabilityAccounts  = "NO_LIABILITY_ACCOUNTS"
	CodeProductsNotSupported = "PRODUCTS_NOT_SUPPORTED"
)

// Unsupported reports whether err says the item can't serve the product
// requested, as opposed to a failed call.
func Unsupported(err error) bool {
	var perr *Error
	if !errors.As(err, &perr) {
		return false
	}
	return perr.ErrorCode == CodeNoLiabilityAccounts || perr.ErrorCode == CodeProductsNotSupported
}

func parseError(status int, body []byte) error {
	perr := &Error{StatusCode: status}
	if err := json.Unmarshal(body, perr); err != nil || perr.ErrorCode == "" {
		return &Error{
			StatusCode:   status,
			ErrorType:    "API_ERROR",
			ErrorCode:    "UNKNOWN",
			ErrorMessage: string(body),
		}
	}
	return perr
}
