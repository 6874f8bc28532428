// Package router arma el árbol de rutas chi con sus cadenas de middlewares.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/snsoauth/internal/http/controllers/health"
	oauthctrl "github.com/dropDatabas3/snsoauth/internal/http/controllers/oauth"
	sessionctrl "github.com/dropDatabas3/snsoauth/internal/http/controllers/session"
	mw "github.com/dropDatabas3/snsoauth/internal/http/middlewares"
	"github.com/dropDatabas3/snsoauth/internal/rate"
)

// Deps contiene las dependencias del router.
type Deps struct {
	OAuth   *oauthctrl.Controllers
	Session *sessionctrl.Controllers
	Health  *health.HealthController
	Metrics http.Handler // opcional: /metrics

	// Limiter opcional para token endpoints y login.
	Limiter rate.Limiter
	// TokenParamStyle: query | header | body | auto.
	TokenParamStyle string
	CSRFCookieName  string
}

// New crea el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.WithRequestID())

	// Infra: sin logging (health checks muy frecuentes).
	r.Group(func(r chi.Router) {
		r.Use(mw.WithRecover())
		if d.Health != nil {
			r.Get("/readyz", d.Health.Readyz)
		}
		if d.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", d.Metrics)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.WithLogging(), mw.WithMetrics(), mw.WithRecover(), mw.WithSecurityHeaders())
		RegisterOAuthRoutes(r, d)
		RegisterSessionRoutes(r, d)
	})
	return r
}

// RegisterOAuthRoutes registra los endpoints OAuth2 SNS.
func RegisterOAuthRoutes(r chi.Router, d Deps) {
	c := d.OAuth
	if c == nil {
		return
	}

	// Token endpoints: no-store + rate limit por IP/path.
	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore(), rateLimit(d.Limiter))
		r.HandleFunc("/oauth2/token", c.Token.Token)
		r.HandleFunc("/oauth2/sns/access_token", c.Token.AccessToken)
		r.HandleFunc("/oauth2/sns/refresh_token", c.Token.RefreshToken)
	})

	// Authorize: vista HTML propia (CSP de la vista).
	r.HandleFunc("/oauth2/sns/authorize", c.Authorize.Authorize)

	// Recursos protegidos por bearer.
	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore(), mw.WithBearer(d.TokenParamStyle))
		r.HandleFunc("/oauth2/sns/auth", c.Resource.Auth)
		r.HandleFunc("/oauth2/sns/userinfo", c.Resource.UserInfo)
		r.HandleFunc("/oauth2/auth", c.Resource.ClientAuth)
	})
}

// RegisterSessionRoutes registra login/logout del resource owner.
func RegisterSessionRoutes(r chi.Router, d Deps) {
	c := d.Session
	if c == nil {
		return
	}
	r.With(rateLimit(d.Limiter)).HandleFunc("/oauth2/sns/login", c.Login.Login)
	r.With(mw.WithCSRF(mw.CSRFConfig{CookieName: d.CSRFCookieName})).HandleFunc("/oauth2/sns/logout", c.Logout.Logout)
}

func rateLimit(l rate.Limiter) func(http.Handler) http.Handler {
	return mw.WithRateLimit(mw.RateLimitConfig{Limiter: l, KeyFunc: mw.IPPathRateKey})
}
