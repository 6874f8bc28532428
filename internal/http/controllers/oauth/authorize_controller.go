package oauth

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/dropDatabas3/snsoauth/internal/http/response"
	"github.com/dropDatabas3/snsoauth/internal/oauth/grant"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
	"github.com/dropDatabas3/snsoauth/internal/session"
)

// AuthorizeController atiende /oauth2/sns/authorize: GET muestra el consent
// (o emite el code si no hace falta), POST confirma.
type AuthorizeController struct {
	grants   Grants
	out      *response.Builder
	sessions Sessions
}

// NewAuthorizeController crea el controller.
func NewAuthorizeController(g Grants, b *response.Builder, s Sessions) *AuthorizeController {
	return &AuthorizeController{grants: g, out: b, sessions: s}
}

// Authorize handles GET|POST /oauth2/sns/authorize.
func (c *AuthorizeController) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.authorize"))

	var params url.Values
	switch r.Method {
	case http.MethodGet:
		params = r.URL.Query()
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			log.Warn("failed to parse form", logger.Err(err))
			c.out.Write(w, r, grant.RejectView(&grant.Problem{
				Code:        grant.ErrInvalidRequest,
				Description: "invalid form data",
				Status:      http.StatusBadRequest,
			}))
			return
		}
		params = r.Form
	default:
		methodNotAllowed(w, "GET, POST")
		return
	}

	req, problem := grant.ParseAuthorizeRequest(r.Method, params)
	if problem != nil {
		c.out.Write(w, r, grant.RejectView(problem))
		return
	}
	req.RequestURL = returnTo(r, req)

	if c.sessions != nil {
		sess, err := c.sessions.Current(r)
		switch {
		case err == nil:
			req.SubjectID = sess.UserID
			req.SessionID = sess.ID
		case errors.Is(err, session.ErrNoSession):
		default:
			log.Error("session lookup failed", logger.Err(err))
			c.out.Write(w, r, grant.Reject(grant.ServerError()))
			return
		}
	}

	out, err := c.grants.Authorize(ctx, req)
	if err != nil {
		log.Error("authorize failed",
			logger.ClientID(req.ClientID),
			logger.ResponseType(req.ResponseType),
			logger.Err(err),
		)
	}
	c.out.Write(w, r, out)
}

// returnTo es la URL a la que vuelve el login. La confirmación (POST) vuelve
// al GET equivalente, sin authorized ni csrf_token.
func returnTo(r *http.Request, req grant.AuthorizeRequest) string {
	if r.Method == http.MethodGet {
		return r.URL.RequestURI()
	}
	q := url.Values{}
	for k, v := range map[string]string{
		"response_type": req.ResponseType,
		"client_id":     req.ClientID,
		"redirect_uri":  req.RedirectURI,
		"scope":         req.Scope,
		"state":         req.State,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	return r.URL.Path + "?" + q.Encode()
}
