// Package middleware carries the HTTP middleware for the listing API.
package middleware

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/jobkeep/internal/errors"
	"github.com/3leaps/jobkeep/internal/observability"
)

// Recovery converts handler panics into the standard JSON 500 envelope
// instead of tearing down the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				observability.CLILogger.Error("handler panic",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec))
				apperrors.RespondWithError(w, apperrors.CodeInternal, fmt.Sprintf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
