package link

import (
	"strconv"

	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/brizzai/plaid-link/internal/metrics"
	"go.uber.org/zap"
)

// Reporter receives every flow failure exactly once.
type Reporter interface {
	Report(err *Error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(err *Error)

func (fn ReporterFunc) Report(err *Error) {
	fn(err)
}

// LogReporter logs failures and counts them.
type LogReporter struct{}

func (LogReporter) Report(err *Error) {
	metrics.FlowErrors.WithLabelValues(string(err.Kind), strconv.FormatBool(err.Timeout)).Inc()

	fields := []zap.Field{
		zap.String("kind", string(err.Kind)),
		zap.Bool("timeout", err.Timeout),
		zap.String("user_message", err.UserMessage()),
		zap.Error(err.Err),
	}
	if err.Exit != nil {
		fields = append(fields,
			zap.String("status", err.Exit.Status),
			zap.String("link_session_id", err.Exit.LinkSessionID),
			zap.String("request_id", err.Exit.RequestID),
		)
	}
	logger.Error("Link flow failed", fields...)
}

// Reporters fans a failure out to several reporters.
type Reporters []Reporter

func (rs Reporters) Report(err *Error) {
	for _, r := range rs {
		r.Report(err)
	}
}
