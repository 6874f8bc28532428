package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/dropDatabas3/snsoauth/internal/http/errors"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
	"github.com/dropDatabas3/snsoauth/internal/rate"
)

// RateKeyFunc construye la key de rate limit para un request.
type RateKeyFunc func(r *http.Request) string

// RateLimitConfig configura WithRateLimit.
type RateLimitConfig struct {
	Limiter   rate.Limiter
	KeyFunc   RateKeyFunc // default: IPPathRateKey
	Whitelist []string    // IPs exentas
}

// WithRateLimit aplica rate limiting por key. Si el limiter falla se deja
// pasar el request (fail open) y se loguea.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = IPPathRateKey
	}
	whitelist := make(map[string]struct{}, len(cfg.Whitelist))
	for _, ip := range cfg.Whitelist {
		whitelist[strings.TrimSpace(ip)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := whitelist[clientIP(r)]; ok {
				next.ServeHTTP(w, r)
				return
			}

			res, err := cfg.Limiter.Allow(r.Context(), keyFunc(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if res.WindowTTL > 0 {
				w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(res.WindowTTL.Seconds())))
			}
			if !res.Allowed {
				secs := int(res.RetryAfter.Seconds())
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				errors.WriteError(w, errors.ErrRateLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPOnlyRateKey limita por IP.
func IPOnlyRateKey(r *http.Request) string {
	return "ip:" + clientIP(r)
}

// IPPathRateKey limita por IP y path.
func IPPathRateKey(r *http.Request) string {
	return "ip:" + clientIP(r) + ":" + r.URL.Path
}

// ClientRateKey limita por client_id (form o basic auth) y cae a IP.
func ClientRateKey(r *http.Request) string {
	if id, _, ok := r.BasicAuth(); ok && id != "" {
		return "client:" + id
	}
	if id := r.URL.Query().Get("client_id"); id != "" {
		return "client:" + id
	}
	return IPPathRateKey(r)
}

// clientIP usa el primer X-Forwarded-For si existe.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
