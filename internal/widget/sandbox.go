package widget

import (
	"context"
	"errors"
	"sync"

	"github.com/brizzai/plaid-link/internal/link"
	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/brizzai/plaid-link/internal/plaid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSandboxInstitution is a sandbox institution that supports the
// default products.
const DefaultSandboxInstitution = "ins_109508"

// PublicTokenCreator creates sandbox public tokens.
type PublicTokenCreator interface {
	SandboxPublicTokenCreate(ctx context.Context, institutionID string, products []string) (string, error)
}

// SandboxOptions configures the sandbox widget.
type SandboxOptions struct {
	Client        PublicTokenCreator
	InstitutionID string
	Products      []string
}

// Sandbox completes a link without UI by asking the Plaid sandbox for a
// public token.
type Sandbox struct {
	cfg  link.WidgetConfig
	opts SandboxOptions

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSandboxFactory returns a factory for sandbox widgets.
func NewSandboxFactory(opts SandboxOptions) (link.WidgetFactory, error) {
	if opts.Client == nil {
		return nil, errors.New("widget: sandbox widget needs a plaid client")
	}
	if opts.InstitutionID == "" {
		opts.InstitutionID = DefaultSandboxInstitution
	}
	if len(opts.Products) == 0 {
		opts.Products = []string{"transactions"}
	}
	return func(cfg link.WidgetConfig) (link.Widget, error) {
		return &Sandbox{cfg: cfg, opts: opts}, nil
	}, nil
}

// Open starts the sandbox session. Callbacks are delivered asynchronously.
func (s *Sandbox) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("widget: already open")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	return nil
}

func (s *Sandbox) run(ctx context.Context) {
	defer close(s.done)
	if s.cfg.OnLoad != nil {
		s.cfg.OnLoad()
	}
	sessionID := uuid.NewString()
	logger.Debug("Sandbox link session started",
		zap.String("institution_id", s.opts.InstitutionID),
		zap.String("link_session_id", sessionID),
	)

	publicToken, err := s.opts.Client.SandboxPublicTokenCreate(ctx, s.opts.InstitutionID, s.opts.Products)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.cfg.OnExit(toWidgetError(err), link.ExitMetadata{
			Institution:   &link.Institution{ID: s.opts.InstitutionID},
			Status:        "sandbox_error",
			LinkSessionID: sessionID,
		})
		return
	}
	s.cfg.OnSuccess(publicToken, link.SuccessMetadata{
		Institution:   &link.Institution{ID: s.opts.InstitutionID},
		LinkSessionID: sessionID,
	})
}

// Close abandons a session that has not finished yet.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func toWidgetError(err error) *link.WidgetError {
	var perr *plaid.Error
	if errors.As(err, &perr) {
		return &link.WidgetError{
			ErrorType:      perr.ErrorType,
			ErrorCode:      perr.ErrorCode,
			ErrorMessage:   perr.ErrorMessage,
			DisplayMessage: perr.DisplayMessage,
		}
	}
	return &link.WidgetError{
		ErrorType:    "API_ERROR",
		ErrorCode:    "INTERNAL_SERVER_ERROR",
		ErrorMessage: err.Error(),
	}
}
