package link

// Institution identifies the financial institution picked in the widget.
type Institution struct {
	ID   string `json:"institution_id"`
	Name string `json:"name"`
}

// Account is an account selected in the widget.
type Account struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Mask    string `json:"mask,omitempty"`
	Type    string `json:"type,omitempty"`
	Subtype string `json:"subtype,omitempty"`
}

// SuccessMetadata accompanies a public token.
type SuccessMetadata struct {
	Institution   *Institution `json:"institution,omitempty"`
	Accounts      []Account    `json:"accounts,omitempty"`
	LinkSessionID string       `json:"link_session_id,omitempty"`
}

// ExitMetadata describes how a widget session ended. It is only logged.
type ExitMetadata struct {
	Institution   *Institution `json:"institution,omitempty"`
	Status        string       `json:"status,omitempty"`
	LinkSessionID string       `json:"link_session_id,omitempty"`
	RequestID     string       `json:"request_id,omitempty"`
}

// WidgetConfig is what a widget is initialized with.
type WidgetConfig struct {
	Token     string
	OnLoad    func()
	OnSuccess func(publicToken string, metadata SuccessMetadata)
	OnExit    func(err *WidgetError, metadata ExitMetadata)
}

// Widget is an initialized vendor widget.
type Widget interface {
	Open() error
	Close() error
}

// WidgetFactory initializes a widget.
type WidgetFactory func(cfg WidgetConfig) (Widget, error)

// TokenRequest selects the link token to request. An empty request asks for
// a new link; ItemID asks for update mode of a stored item.
type TokenRequest struct {
	ItemID string `json:"item_id,omitempty"`
	// AccessToken is the legacy update mode request. Servers reject it
	// unless configured otherwise.
	AccessToken string `json:"access_token,omitempty"`
}

// ExchangeResult is the backend's answer to a public token exchange.
type ExchangeResult struct {
	ItemID          string `json:"item_id"`
	InstitutionName string `json:"institution_name,omitempty"`
}
