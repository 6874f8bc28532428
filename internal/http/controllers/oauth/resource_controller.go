package oauth

import (
	"net/http"
	"strings"

	mw "github.com/dropDatabas3/snsoauth/internal/http/middlewares"
	"github.com/dropDatabas3/snsoauth/internal/http/response"
	"github.com/dropDatabas3/snsoauth/internal/oauth/grant"
	"github.com/dropDatabas3/snsoauth/internal/oauth/scope"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
)

// ResourceController atiende los endpoints protegidos por bearer.
type ResourceController struct {
	grants Grants
	out    *response.Builder
}

// NewResourceController crea el controller.
func NewResourceController(g Grants, b *response.Builder) *ResourceController {
	return &ResourceController{grants: g, out: b}
}

// Auth handles GET /oauth2/sns/auth.
func (c *ResourceController) Auth(w http.ResponseWriter, r *http.Request) {
	req := resourceRequest(r, grant.ResourceSubject, "")
	out, err := c.grants.Auth(r.Context(), req)
	c.write(w, r, "oauth.sns_auth", out, err)
}

// ClientAuth handles GET /oauth2/auth (tokens de client_credentials).
func (c *ResourceController) ClientAuth(w http.ResponseWriter, r *http.Request) {
	req := resourceRequest(r, grant.ResourceClient, "")
	out, err := c.grants.Auth(r.Context(), req)
	c.write(w, r, "oauth.client_auth", out, err)
}

// UserInfo handles GET /oauth2/sns/userinfo.
func (c *ResourceController) UserInfo(w http.ResponseWriter, r *http.Request) {
	req := resourceRequest(r, grant.ResourceSubject, scope.UserInfo)
	out, err := c.grants.UserInfo(r.Context(), req)
	c.write(w, r, "oauth.userinfo", out, err)
}

func (c *ResourceController) write(w http.ResponseWriter, r *http.Request, op string, out grant.Outcome, err error) {
	if err != nil {
		logger.From(r.Context()).Error("resource check failed",
			logger.Layer("controller"), logger.Op(op), logger.Err(err))
	}
	c.out.Write(w, r, out)
}

// resourceRequest toma el bearer de WithBearer; sin middleware cae a la query.
func resourceRequest(r *http.Request, kind grant.ResourceKind, required string) grant.ResourceRequest {
	b, ok := mw.GetBearer(r.Context())
	if !ok {
		q := r.URL.Query()
		b = mw.Bearer{
			AccessToken: strings.TrimSpace(q.Get("access_token")),
			OpenID:      strings.TrimSpace(q.Get("openid")),
		}
	}
	return grant.ResourceRequest{
		Kind:          kind,
		AccessToken:   b.AccessToken,
		OpenID:        b.OpenID,
		RequiredScope: required,
	}
}
