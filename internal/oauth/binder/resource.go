package binder

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/dropDatabas3/snsoauth/internal/oauth/scope"
	tokens "github.com/dropDatabas3/snsoauth/internal/security/token"
)

// ResourceBinder valida un bearer token presentado a un resource server.
type ResourceBinder struct {
	b     *Binders
	token *repository.AccessToken
}

// BindResource resuelve el registro del access token.
func (b *Binders) BindResource(ctx context.Context, accessToken string) (*ResourceBinder, error) {
	rb := &ResourceBinder{b: b}
	if accessToken == "" {
		return rb, nil
	}
	t, err := b.Store.Tokens().GetByAccessHash(ctx, tokens.SHA256Base64URL(accessToken))
	switch {
	case err == nil:
		rb.token = t
	case !repository.IsNotFound(err):
		return nil, fmt.Errorf("lookup access token: %w", err)
	}
	return rb, nil
}

// CheckToken: el token existe.
func (rb *ResourceBinder) CheckToken() bool { return rb.token != nil }

// CheckSubject: el token fue emitido para openID.
func (rb *ResourceBinder) CheckSubject(openID string) bool {
	return rb.token != nil && rb.token.OpenID != "" && tokens.Equal(rb.token.OpenID, openID)
}

// CheckClientToken: el token es de client_credentials (sin subject).
func (rb *ResourceBinder) CheckClientToken() bool {
	return rb.token != nil && rb.token.SubjectID == ""
}

func (rb *ResourceBinder) CheckNotExpired() bool {
	return rb.token != nil && !rb.token.AccessExpired(rb.b.now())
}

// CheckScope: el scope del token cubre required.
func (rb *ResourceBinder) CheckScope(required string) bool {
	return rb.token != nil && scope.Satisfies(rb.token.Scope, required)
}

// Token devuelve el registro resuelto.
func (rb *ResourceBinder) Token() *repository.AccessToken { return rb.token }
