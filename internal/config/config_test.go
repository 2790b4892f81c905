package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8088
plaid:
  environment: development
link:
  country_codes: [US, CA]
  products: [transactions]
client:
  backend:
    timeout: 3s
`)
	t.Setenv("PLAID_LINK_CONFIG", path)
	t.Setenv("PLAID_LINK_PLAID_SECRET", "from-env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	InitFlags(fs)
	require.NoError(t, fs.Parse([]string{"--widget", "sandbox"}))

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "default kept for unset keys")
	assert.Equal(t, "development", cfg.Plaid.Environment)
	assert.Equal(t, "from-env", cfg.Plaid.Secret)
	assert.Equal(t, []string{"US", "CA"}, cfg.Link.CountryCodes)
	assert.Equal(t, []string{"transactions"}, cfg.Link.Products)
	assert.Equal(t, 3*time.Second, cfg.Client.Backend.Timeout)
	assert.Equal(t, "sandbox", cfg.Client.Widget)
	assert.False(t, cfg.Link.AllowClientAccessToken)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Link, cfg.Link)
	assert.Equal(t, "browser", cfg.Client.Widget)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown widget",
			mutate:  func(c *Config) { c.Client.Widget = "iframe" },
			wantErr: "client.widget",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Client.Backend.Timeout = 0 },
			wantErr: "timeout",
		},
		{
			name: "oauth without base url",
			mutate: func(c *Config) {
				c.OAuth = &OAuthConfig{Enabled: true, Provider: "github"}
			},
			wantErr: "oauth.base_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequirePlaid(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.RequirePlaid())

	cfg.Plaid.ClientID = "id"
	cfg.Plaid.Secret = "secret"
	assert.NoError(t, cfg.RequirePlaid())
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefault(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "link")
	assert.NotContains(t, string(data), "secret: x")

	err = WriteDefault(path, false)
	assert.ErrorIs(t, err, ErrConfigExists)
	assert.NoError(t, WriteDefault(path, true))

	t.Setenv("PLAID_LINK_CONFIG", path)
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Client.Backend.Timeout, cfg.Client.Backend.Timeout)
}

func TestMarshal_DropsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Plaid.Secret = "super-secret"
	cfg.OAuth = &OAuthConfig{Enabled: true, ClientSecret: "oauth-secret"}

	data, err := Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret")
	assert.NotContains(t, string(data), "oauth-secret")
	assert.Equal(t, "super-secret", cfg.Plaid.Secret, "input is not mutated")
	assert.Equal(t, "oauth-secret", cfg.OAuth.ClientSecret)
}
