// Package session contiene los controllers de login y logout del resource owner.
// Es el colaborador mínimo que deja una sesión para /oauth2/sns/authorize.
package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/dropDatabas3/snsoauth/internal/session"
)

// Sessions crea y destruye sesiones.
type Sessions interface {
	Login(ctx context.Context, w http.ResponseWriter, userID string) (*session.Session, error)
	Logout(w http.ResponseWriter, r *http.Request) error
}

// Config configura el cookie de double-submit CSRF que acompaña a la sesión.
type Config struct {
	CSRFCookieName string // Default: "csrf_token"
	Secure         bool
}

// Deps contiene las dependencias de los controllers de sesión.
type Deps struct {
	Users    repository.UserRepository
	Sessions Sessions
	Config   Config
}

// Controllers agrupa los controllers del dominio session.
type Controllers struct {
	Login  *LoginController
	Logout *LogoutController
}

// NewControllers crea el agregador.
func NewControllers(d Deps) *Controllers {
	if d.Config.CSRFCookieName == "" {
		d.Config.CSRFCookieName = "csrf_token"
	}
	return &Controllers{
		Login:  NewLoginController(d.Users, d.Sessions, d.Config),
		Logout: NewLogoutController(d.Sessions, d.Config),
	}
}

// localReturnTo acepta solo paths relativos al mismo origen.
func localReturnTo(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") || strings.HasPrefix(s, "/\\") {
		return "", false
	}
	return s, true
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
