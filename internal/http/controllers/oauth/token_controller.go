package oauth

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/snsoauth/internal/http/response"
	"github.com/dropDatabas3/snsoauth/internal/oauth/grant"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
)

// TokenController atiende los tres token endpoints.
type TokenController struct {
	grants Grants
	out    *response.Builder
}

// NewTokenController crea el controller.
func NewTokenController(g Grants, b *response.Builder) *TokenController {
	return &TokenController{grants: g, out: b}
}

// Token handles POST /oauth2/token (client_credentials).
func (c *TokenController) Token(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, "oauth.token", c.grants.ClientCredentials)
}

// AccessToken handles POST /oauth2/sns/access_token (authorization_code, password).
func (c *TokenController) AccessToken(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, "oauth.access_token", c.grants.AccessToken)
}

// RefreshToken handles POST /oauth2/sns/refresh_token.
func (c *TokenController) RefreshToken(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, "oauth.refresh_token", c.grants.RefreshToken)
}

type tokenFlow func(context.Context, grant.TokenRequest) (grant.Outcome, error)

func (c *TokenController) serve(w http.ResponseWriter, r *http.Request, op string, run tokenFlow) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op(op))

	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		log.Warn("failed to parse form", logger.Err(err))
		c.out.Write(w, r, grant.Reject(&grant.Problem{
			Code:        grant.ErrInvalidRequest,
			Description: "invalid form data",
			Status:      http.StatusBadRequest,
		}))
		return
	}

	basicID, basicSecret, _ := r.BasicAuth()
	req, problem := grant.ParseTokenRequest(r.PostForm, basicID, basicSecret)
	if problem != nil {
		c.out.Write(w, r, grant.Reject(problem))
		return
	}

	out, err := run(ctx, req)
	if err != nil {
		log.Error("token grant failed",
			logger.GrantType(req.GrantType),
			logger.ClientID(req.ClientID),
			logger.Err(err),
		)
	}
	c.out.Write(w, r, out)
}
