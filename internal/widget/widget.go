package widget

import (
	"fmt"

	"github.com/brizzai/plaid-link/internal/config"
	"github.com/brizzai/plaid-link/internal/link"
)

const (
	KindBrowser = "browser"
	KindSandbox = "sandbox"
)

// NewFactory picks the widget configured in cfg.Client.Widget. client is
// only used by the sandbox widget and may be nil otherwise.
func NewFactory(cfg *config.Config, client PublicTokenCreator) (link.WidgetFactory, error) {
	switch cfg.Client.Widget {
	case KindBrowser, "":
		return NewBrowserFactory(BrowserOptions{
			Port:  cfg.Client.CallbackPort,
			Title: cfg.Link.ClientName,
		}), nil
	case KindSandbox:
		return NewSandboxFactory(SandboxOptions{
			Client:        client,
			InstitutionID: cfg.Client.SandboxInstitution,
			Products:      cfg.Link.Products,
		})
	default:
		return nil, fmt.Errorf("widget: unknown widget %q", cfg.Client.Widget)
	}
}
