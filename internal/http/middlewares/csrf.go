package middlewares

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/snsoauth/internal/http/errors"
	tokens "github.com/dropDatabas3/snsoauth/internal/security/token"
)

// CSRFConfig configura el middleware CSRF.
type CSRFConfig struct {
	HeaderName string // Default: "X-CSRF-Token"
	CookieName string // Default: "csrf_token"
	FormField  string // Default: "csrf_token"
}

// WithCSRF aplica double-submit para requests basados en cookie:
//   - Authorization: Bearer saltea el check.
//   - Métodos inseguros requieren header (o campo de form) igual a la cookie.
func WithCSRF(cfg CSRFConfig) Middleware {
	headerName := strings.TrimSpace(cfg.HeaderName)
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = "csrf_token"
	}
	formField := strings.TrimSpace(cfg.FormField)
	if formField == "" {
		formField = "csrf_token"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isUnsafe(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if ah := strings.TrimSpace(r.Header.Get("Authorization")); strings.HasPrefix(strings.ToLower(ah), "bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			sent := strings.TrimSpace(r.Header.Get(headerName))
			if sent == "" {
				sent = strings.TrimSpace(r.PostFormValue(formField))
			}
			ck, _ := r.Cookie(cookieName)
			if sent == "" || ck == nil || strings.TrimSpace(ck.Value) == "" || !tokens.Equal(sent, ck.Value) {
				errors.WriteError(w, errors.New(http.StatusForbidden, "INVALID_CSRF_TOKEN", "CSRF token missing or mismatch"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isUnsafe(m string) bool {
	switch strings.ToUpper(m) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
