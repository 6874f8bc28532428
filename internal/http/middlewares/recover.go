package middlewares

import (
	"net/http"
	"runtime/debug"

	"github.com/dropDatabas3/snsoauth/internal/http/errors"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
	"go.uber.org/zap"
)

// WithRecover captura panics, los loguea con stack y responde 500.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.From(r.Context()).Error("panic recovered",
						zap.Any("panic", rec),
						zap.ByteString("stack", debug.Stack()),
					)
					errors.WriteError(w, errors.ErrInternalServerError.WithDetail("panic recovered"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
