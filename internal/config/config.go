package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Version returns the build version.
func Version() string {
	return version
}

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("plaid-link version %s, commit %s, built at %s", version, commit, date)
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Plaid   PlaidConfig   `mapstructure:"plaid" yaml:"plaid"`
	Link    LinkConfig    `mapstructure:"link" yaml:"link"`
	Client  ClientConfig  `mapstructure:"client" yaml:"client"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	MCP     MCPConfig     `mapstructure:"mcp" yaml:"mcp"`
	OAuth   *OAuthConfig  `mapstructure:"oauth" yaml:"oauth,omitempty"`
}

// AuthType represents the type of authentication to use
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeAPIKey AuthType = "api_key"
	AuthTypePlaid  AuthType = "plaid"
)

// EndpointConfig describes a remote HTTP endpoint and how to authenticate to it.
type EndpointConfig struct {
	BaseURL    string            `json:"base_url" mapstructure:"base_url" yaml:"base_url"`
	AuthType   AuthType          `json:"auth_type" mapstructure:"auth_type" yaml:"auth_type"`
	AuthConfig map[string]string `json:"auth_config" mapstructure:"auth_config" yaml:"auth_config,omitempty"`
	Headers    map[string]string `json:"headers" mapstructure:"headers" yaml:"headers,omitempty"`
	Timeout    time.Duration     `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port" yaml:"port"`
	Host string `mapstructure:"host" yaml:"host"`
	Name string `mapstructure:"name" yaml:"name"`
	// ValidateRequests enables OpenAPI request validation on the API routes.
	ValidateRequests bool     `mapstructure:"validate_requests" yaml:"validate_requests"`
	// AllowOrigins lists origins allowed to call the API from a browser. "*"
	// allows any; empty allows only the server's own origin.
	AllowOrigins     []string `mapstructure:"allow_origins" yaml:"allow_origins"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level" yaml:"level"`
	Format            string `mapstructure:"format" yaml:"format"`
	Color             bool   `mapstructure:"color" yaml:"color"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace" yaml:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path" yaml:"output_path"`
	AppendToFile      bool   `mapstructure:"append_to_file" yaml:"append_to_file"`
	DisableConsole    bool   `mapstructure:"disable_console" yaml:"disable_console"`
}

// PlaidConfig holds the Plaid API credentials. Secrets are expected from the
// environment (PLAID_LINK_PLAID_CLIENT_ID / PLAID_LINK_PLAID_SECRET).
type PlaidConfig struct {
	ClientID    string        `mapstructure:"client_id" yaml:"client_id"`
	Secret      string        `mapstructure:"secret" yaml:"secret"`
	Environment string        `mapstructure:"environment" yaml:"environment"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url,omitempty"` // overrides environment
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LinkConfig controls how link tokens are created.
type LinkConfig struct {
	ClientName    string   `mapstructure:"client_name" yaml:"client_name"`
	Language      string   `mapstructure:"language" yaml:"language"`
	CountryCodes  []string `mapstructure:"country_codes" yaml:"country_codes"`
	Products      []string `mapstructure:"products" yaml:"products"`
	UpdateProduct []string `mapstructure:"update_products" yaml:"update_products"`
	RedirectURI   string   `mapstructure:"redirect_uri" yaml:"redirect_uri,omitempty"`
	WebhookURL    string   `mapstructure:"webhook" yaml:"webhook,omitempty"`
	// DefaultUserID is the session user when OAuth is disabled.
	DefaultUserID string `mapstructure:"default_user_id" yaml:"default_user_id"`
	// AllowClientAccessToken accepts the legacy access_token field on
	// /create_link_token. Off by default: clients should send item_id.
	AllowClientAccessToken bool `mapstructure:"allow_client_access_token" yaml:"allow_client_access_token"`
}

// ClientConfig configures the link flow client (the `link` command).
type ClientConfig struct {
	Backend EndpointConfig `mapstructure:"backend" yaml:"backend"`
	// Widget is "browser" or "sandbox".
	Widget             string `mapstructure:"widget" yaml:"widget"`
	SandboxInstitution string `mapstructure:"sandbox_institution" yaml:"sandbox_institution"`
	CallbackPort       int    `mapstructure:"callback_port" yaml:"callback_port"`
	ItemID             string `mapstructure:"item_id" yaml:"item_id,omitempty"`
}

type StorageConfig struct {
	DSN   string `mapstructure:"dsn" yaml:"dsn"`
	Debug bool   `mapstructure:"debug" yaml:"debug"`
}

type SyncConfig struct {
	Days      int `mapstructure:"days" yaml:"days"`
	PageSize  int `mapstructure:"page_size" yaml:"page_size"`
	ItemLimit int `mapstructure:"item_limit" yaml:"item_limit"`
	// Products fetched per item: transactions, liabilities, recurring.
	Products []string `mapstructure:"products" yaml:"products"`
}

// MCPConfig configures the stdio MCP server.
type MCPConfig struct {
	// AdjustmentsFile is a YAML file that selects tools and overrides
	// their descriptions.
	AdjustmentsFile string `mapstructure:"adjustments_file" yaml:"adjustments_file,omitempty"`
}

type OAuthConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Provider     string   `mapstructure:"provider" yaml:"provider"` // github, google
	ClientID     string   `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" yaml:"client_secret"`
	Scopes       []string `mapstructure:"scopes" yaml:"scopes"`
	BaseURL      string   `mapstructure:"base_url" yaml:"base_url"`
}

// Default returns the configuration used when no file overrides a key.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             5000,
			Host:             "127.0.0.1",
			Name:             "plaid-link",
			ValidateRequests: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Plaid: PlaidConfig{
			Environment: "sandbox",
			Timeout:     30 * time.Second,
		},
		Link: LinkConfig{
			ClientName:    "plaid-link",
			Language:      "en",
			CountryCodes:  []string{"CA"},
			Products:      []string{"auth", "transactions", "liabilities"},
			UpdateProduct: []string{"transactions", "assets", "liabilities"},
			DefaultUserID: "local-user",
		},
		Client: ClientConfig{
			Backend: EndpointConfig{
				BaseURL:  "http://127.0.0.1:5000",
				AuthType: AuthTypeNone,
				Timeout:  15 * time.Second,
			},
			Widget:             "browser",
			SandboxInstitution: "ins_109508",
			CallbackPort:       19331,
		},
		Storage: StorageConfig{
			DSN: "file:plaid-link.db?_foreign_keys=on",
		},
		Sync: SyncConfig{
			Days:     30,
			PageSize: 100,
			Products: []string{"transactions", "liabilities", "recurring"},
		},
	}
}

// InitFlags initializes command line flags (without parsing)
func InitFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to the config file")
	fs.String("plaid-env", "", "Plaid environment (sandbox|development|production)")
	fs.String("backend-url", "", "Base URL of the link backend")
	fs.String("widget", "", "Link widget (browser|sandbox)")
	fs.String("dsn", "", "SQLite DSN for the item store")
	fs.String("adjustments-file", "", "MCP tool adjustments file")
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.name", def.Server.Name)
	v.SetDefault("server.validate_requests", def.Server.ValidateRequests)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("plaid.environment", def.Plaid.Environment)
	v.SetDefault("plaid.timeout", def.Plaid.Timeout)
	v.SetDefault("plaid.client_id", "")
	v.SetDefault("plaid.secret", "")
	v.SetDefault("link.client_name", def.Link.ClientName)
	v.SetDefault("link.language", def.Link.Language)
	v.SetDefault("link.country_codes", def.Link.CountryCodes)
	v.SetDefault("link.products", def.Link.Products)
	v.SetDefault("link.update_products", def.Link.UpdateProduct)
	v.SetDefault("link.default_user_id", def.Link.DefaultUserID)
	v.SetDefault("link.allow_client_access_token", false)
	v.SetDefault("client.backend.base_url", def.Client.Backend.BaseURL)
	v.SetDefault("client.backend.auth_type", string(def.Client.Backend.AuthType))
	v.SetDefault("client.backend.timeout", def.Client.Backend.Timeout)
	v.SetDefault("client.widget", def.Client.Widget)
	v.SetDefault("client.sandbox_institution", def.Client.SandboxInstitution)
	v.SetDefault("client.callback_port", def.Client.CallbackPort)
	v.SetDefault("storage.dsn", def.Storage.DSN)
	v.SetDefault("sync.days", def.Sync.Days)
	v.SetDefault("sync.page_size", def.Sync.PageSize)
	v.SetDefault("sync.products", def.Sync.Products)
}

// Load reads configuration from the config file, the environment and the
// given flag set (which may be nil).
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PLAID_LINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, err
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/plaid-link")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and environment still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	//Loading additionals config files
	if _, err := os.Stat("/config/config.yaml"); err == nil {
		v.SetConfigFile("/config/config.yaml")
		if err := v.MergeInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if env := v.GetString("plaid-env"); env != "" {
		config.Plaid.Environment = env
	}
	if backendURL := v.GetString("backend-url"); backendURL != "" {
		config.Client.Backend.BaseURL = backendURL
	}
	if widget := v.GetString("widget"); widget != "" {
		config.Client.Widget = widget
	}
	if dsn := v.GetString("dsn"); dsn != "" {
		config.Storage.DSN = dsn
	}
	if adjustments := v.GetString("adjustments-file"); adjustments != "" {
		config.MCP.AdjustmentsFile = adjustments
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the settings that every command relies on.
func (c *Config) Validate() error {
	switch c.Client.Widget {
	case "browser", "sandbox":
	default:
		return fmt.Errorf("client.widget must be browser or sandbox, got %q", c.Client.Widget)
	}

	if c.Client.Backend.Timeout <= 0 {
		return fmt.Errorf("client.backend.timeout must be positive, please adjust the config or PLAID_LINK_CLIENT_BACKEND_TIMEOUT environment variable")
	}

	// If OAuth is enabled, the provider and base url are mandatory
	if c.OAuth != nil && c.OAuth.Enabled {
		if c.OAuth.BaseURL == "" {
			return fmt.Errorf("oauth.base_url is required, please adjust the config or PLAID_LINK_OAUTH_BASE_URL environment variable")
		}
		if c.OAuth.Provider == "" {
			return fmt.Errorf("oauth.provider is required when oauth is enabled")
		}
	}
	return nil
}

// RequirePlaid reports whether Plaid credentials are present. Commands that
// talk to Plaid call it before building a client.
func (c *Config) RequirePlaid() error {
	if c.Plaid.ClientID == "" || c.Plaid.Secret == "" {
		return fmt.Errorf("plaid credentials are required, please set PLAID_LINK_PLAID_CLIENT_ID and PLAID_LINK_PLAID_SECRET")
	}
	return nil
}
