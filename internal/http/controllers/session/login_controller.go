package session

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/dropDatabas3/snsoauth/internal/audit"
	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	httperrors "github.com/dropDatabas3/snsoauth/internal/http/errors"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
	"github.com/dropDatabas3/snsoauth/internal/security/password"
	tokens "github.com/dropDatabas3/snsoauth/internal/security/token"
	"github.com/dropDatabas3/snsoauth/internal/util"
	"go.uber.org/zap"
)

// LoginRequest es el cuerpo de POST /oauth2/sns/login (JSON o form).
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	ReturnTo string `json:"return_to"`
}

// LoginController handles POST /oauth2/sns/login.
type LoginController struct {
	users    repository.UserRepository
	sessions Sessions
	cfg      Config
}

// NewLoginController crea el controller.
func NewLoginController(users repository.UserRepository, s Sessions, cfg Config) *LoginController {
	return &LoginController{users: users, sessions: s, cfg: cfg}
}

// Login autentica username/password, crea la sesión y setea el cookie CSRF.
// Con return_to local responde 302; si no, 204.
func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LoginController.Login"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 32<<10)
	req, err := decodeLogin(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httperrors.WriteError(w, httperrors.ErrBodyTooLarge)
			return
		}
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid request body"))
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("username is required"))
		return
	}
	if req.Password == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("password is required"))
		return
	}

	u, err := c.users.GetByUsername(ctx, req.Username)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		audit.Log(ctx, audit.EventLoginFailed, zap.String("username", util.MaskIdentifier(req.Username)))
		httperrors.WriteError(w, httperrors.ErrInvalidCredentials)
		return
	case err != nil:
		log.Error("user lookup failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithDetail("user store not available"))
		return
	}
	if !password.Verify(req.Password, u.PasswordHash) {
		audit.Log(ctx, audit.EventLoginFailed, logger.UserID(u.ID))
		httperrors.WriteError(w, httperrors.ErrInvalidCredentials)
		return
	}

	if _, err := c.sessions.Login(ctx, w, u.ID); err != nil {
		log.Error("session create failed", logger.UserID(u.ID), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}
	csrfToken, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		log.Error("csrf token generation failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.CSRFCookieName,
		Value:    csrfToken,
		Path:     "/",
		Secure:   c.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	noStore(w)
	audit.Log(ctx, audit.EventLoginSucceeded, logger.UserID(u.ID))
	if to, ok := localReturnTo(req.ReturnTo); ok {
		http.Redirect(w, r, to, http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeLogin(r *http.Request) (LoginRequest, error) {
	var req LoginRequest
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Username = r.PostForm.Get("username")
	req.Password = r.PostForm.Get("password")
	req.ReturnTo = r.PostForm.Get("return_to")
	if req.ReturnTo == "" {
		req.ReturnTo = r.URL.Query().Get("return_to")
	}
	return req, nil
}
