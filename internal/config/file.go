package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by WriteDefault when the target file exists and
// overwriting was not requested.
var ErrConfigExists = fmt.Errorf("config file already exists")

// Marshal renders cfg as YAML. Plaid secrets are never written out; they are
// expected from the environment.
func Marshal(cfg *Config) ([]byte, error) {
	out := *cfg
	out.Plaid.ClientID = ""
	out.Plaid.Secret = ""
	if out.OAuth != nil {
		oauth := *out.OAuth
		oauth.ClientSecret = ""
		out.OAuth = &oauth
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	data, err := Marshal(Default())
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, data, 0o600)
}
