package link

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a flow failure.
type Kind string

const (
	// KindHandshake is a failed link token request (network or non-2xx).
	KindHandshake Kind = "handshake"
	// KindMissingToken is a handshake response without a usable link token.
	KindMissingToken Kind = "missing_token"
	// KindExchange is a failed public token exchange.
	KindExchange Kind = "exchange"
	// KindWidget is an error reported by the widget, or a widget that could
	// not be opened.
	KindWidget Kind = "widget"
)

var (
	// ErrInFlight is returned by Start while a handshake is already running.
	ErrInFlight = errors.New("link: handshake already in progress")
	// ErrCancelled is returned when the handshake is cancelled before the
	// widget opened.
	ErrCancelled = errors.New("link: cancelled")
	// ErrMalformedResponse marks a backend response that could not be decoded.
	ErrMalformedResponse = errors.New("link: malformed backend response")
)

// Error is a failure of one step of the flow.
type Error struct {
	Kind    Kind
	Timeout bool
	Err     error
	// Exit is set for widget errors.
	Exit *ExitMetadata
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("link %s: timed out: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("link %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown to the person linking an account.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindHandshake:
		if e.Timeout {
			return "The server took too long to start the link session. Please try again."
		}
		return "Could not start the link session. Please try again."
	case KindMissingToken:
		return "The server did not return a valid link session."
	case KindExchange:
		if e.Timeout {
			return "Your account was connected but the server took too long to confirm it."
		}
		return "Your account was connected but the server could not save it."
	case KindWidget:
		var werr *WidgetError
		if errors.As(e.Err, &werr) && werr.DisplayMessage != "" {
			return werr.DisplayMessage
		}
		return "The link session ended with an error."
	}
	return "Something went wrong."
}

// WidgetError is the error the widget passes to its exit callback.
type WidgetError struct {
	ErrorType      string `json:"error_type"`
	ErrorCode      string `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
	DisplayMessage string `json:"display_message,omitempty"`
}

func (e *WidgetError) Error() string {
	if e.ErrorCode == "" {
		return e.ErrorMessage
	}
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.ErrorMessage)
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Timeout: isTimeout(err), Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
