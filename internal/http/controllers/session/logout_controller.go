package session

import (
	"net/http"

	"github.com/dropDatabas3/snsoauth/internal/audit"
	httperrors "github.com/dropDatabas3/snsoauth/internal/http/errors"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
)

// LogoutController handles POST /oauth2/sns/logout. El check CSRF lo hace
// el middleware WithCSRF.
type LogoutController struct {
	sessions Sessions
	cfg      Config
}

// NewLogoutController crea el controller.
func NewLogoutController(s Sessions, cfg Config) *LogoutController {
	return &LogoutController{sessions: s, cfg: cfg}
}

// Logout destruye la sesión y expira los cookies.
func (c *LogoutController) Logout(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("LogoutController.Logout"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	if err := c.sessions.Logout(w, r); err != nil {
		log.Error("session logout failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable)
		return
	}
	audit.Log(r.Context(), audit.EventLogout)
	http.SetCookie(w, &http.Cookie{Name: c.cfg.CSRFCookieName, Value: "", Path: "/", MaxAge: -1, Secure: c.cfg.Secure})

	noStore(w)
	if to, ok := localReturnTo(r.URL.Query().Get("return_to")); ok {
		http.Redirect(w, r, to, http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
