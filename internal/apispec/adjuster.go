package apispec

import (
	"errors"
	"os"

	"github.com/brizzai/plaid-link/internal/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ToolDescription overrides the description of one tool.
type ToolDescription struct {
	Tool        string `yaml:"tool"`
	Description string `yaml:"description"`
}

// Adjustments is the YAML shape of an adjustments file.
type Adjustments struct {
	Descriptions []ToolDescription `yaml:"descriptions,omitempty"`
	// Tools selects the exposed tools. Empty means all of them.
	Tools []string `yaml:"tools,omitempty"`
}

// Adjuster filters tools and overrides their descriptions.
type Adjuster struct {
	adjustments *Adjustments
}

// NewAdjuster returns an Adjuster that keeps every tool unchanged.
func NewAdjuster() *Adjuster {
	return &Adjuster{adjustments: &Adjustments{}}
}

// Load reads adjustments from a YAML file. An empty path or a missing file
// leaves the adjuster unchanged.
func (a *Adjuster) Load(filePath string) error {
	if filePath == "" {
		return nil
	}

	logger.Info("Loading tool adjustments", zap.String("file", filePath))
	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("Adjustments file not found", zap.String("file", filePath))
		return nil
	}
	if err != nil {
		return err
	}

	var adjustments Adjustments
	if err := yaml.Unmarshal(data, &adjustments); err != nil {
		return err
	}
	a.adjustments = &adjustments
	return nil
}

// Enabled reports whether the named tool is selected.
func (a *Adjuster) Enabled(tool string) bool {
	if a == nil || a.adjustments == nil || len(a.adjustments.Tools) == 0 {
		return true
	}
	for _, name := range a.adjustments.Tools {
		if name == tool {
			return true
		}
	}
	return false
}

// Description returns the override for tool, or original when there is none.
func (a *Adjuster) Description(tool, original string) string {
	if a == nil || a.adjustments == nil {
		return original
	}
	for _, desc := range a.adjustments.Descriptions {
		if desc.Tool == tool {
			return desc.Description
		}
	}
	return original
}
