// Package oauth contiene los controllers HTTP de los endpoints OAuth2 SNS.
// Cada controller parsea el request, delega en el Dispatcher y entrega el
// Outcome al Response Builder.
package oauth

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/snsoauth/internal/http/response"
	"github.com/dropDatabas3/snsoauth/internal/oauth/grant"
	"github.com/dropDatabas3/snsoauth/internal/session"
)

// Grants es la parte del Dispatcher que consumen los controllers.
type Grants interface {
	ClientCredentials(ctx context.Context, req grant.TokenRequest) (grant.Outcome, error)
	AccessToken(ctx context.Context, req grant.TokenRequest) (grant.Outcome, error)
	RefreshToken(ctx context.Context, req grant.TokenRequest) (grant.Outcome, error)
	Authorize(ctx context.Context, req grant.AuthorizeRequest) (grant.Outcome, error)
	Auth(ctx context.Context, req grant.ResourceRequest) (grant.Outcome, error)
	UserInfo(ctx context.Context, req grant.ResourceRequest) (grant.Outcome, error)
}

// Sessions resuelve la sesión del resource owner.
type Sessions interface {
	Current(r *http.Request) (*session.Session, error)
}

// Deps agrupa las dependencias de los controllers OAuth.
type Deps struct {
	Grants   Grants
	Builder  *response.Builder
	Sessions Sessions
}

// Controllers agrupa todos los controllers del dominio oauth.
type Controllers struct {
	Token     *TokenController
	Authorize *AuthorizeController
	Resource  *ResourceController
}

// NewControllers crea el agregador de controllers oauth.
func NewControllers(d Deps) *Controllers {
	if d.Builder == nil {
		d.Builder = response.New(nil)
	}
	return &Controllers{
		Token:     NewTokenController(d.Grants, d.Builder),
		Authorize: NewAuthorizeController(d.Grants, d.Builder, d.Sessions),
		Resource:  NewResourceController(d.Grants, d.Builder),
	}
}

const maxFormBytes = 64 << 10

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	response.WriteProblem(w, &grant.Problem{
		Code:        grant.ErrInvalidRequest,
		Description: "method not allowed",
		Status:      http.StatusMethodNotAllowed,
	})
}
