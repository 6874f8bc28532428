package middlewares

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/metrics"
)

// WithMetrics registra latencia, status e in-flight por método y path normalizado.
func WithMetrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := metrics.NormalizePath(r.URL.Path)
			metrics.InflightAdd(r.Method, path, 1)
			defer metrics.InflightAdd(r.Method, path, -1)

			start := time.Now()
			rec := recorderFor(w)
			next.ServeHTTP(rec, r)
			metrics.ObserveHTTP(r.Method, path, rec.status, time.Since(start))
		})
	}
}
