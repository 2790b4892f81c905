package apispec

import (
	"net/http"

	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/brizzai/plaid-link/internal/utils"
	"github.com/getkin/kin-openapi/openapi3filter"
	"go.uber.org/zap"
)

// Validator rejects requests to documented routes whose parameters or body
// do not match the document. Undocumented routes pass through untouched.
func (s *Spec) Validator(next http.Handler) http.Handler {
	opts := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := s.router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options:    opts,
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			logger.Debug("Request failed validation",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			utils.WriteError(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}
