package binder

import (
	"context"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	tokens "github.com/dropDatabas3/snsoauth/internal/security/token"
)

// ClientBinder resuelve un client por id+secret.
type ClientBinder struct {
	b      *Binders
	client *repository.Client
	secret string
}

// BindClient resuelve el client. Un id desconocido no es error.
func (b *Binders) BindClient(ctx context.Context, clientID, secret string) (*ClientBinder, error) {
	c, err := lookupClient(ctx, b.Store.Clients(), clientID)
	if err != nil {
		return nil, err
	}
	return &ClientBinder{b: b, client: c, secret: secret}, nil
}

// CheckClientID reporta si el client existe.
func (cb *ClientBinder) CheckClientID() bool { return cb.client != nil }

// CheckClientSecret compara el secret en tiempo constante.
func (cb *ClientBinder) CheckClientSecret() bool {
	return cb.client != nil && cb.secret != "" && tokens.Equal(cb.client.Secret, cb.secret)
}

// Client devuelve el client resuelto (nil si no existe).
func (cb *ClientBinder) Client() *repository.Client { return cb.client }

// IssueToken emite (o reemplaza) el access token del client, sin subject ni refresh token.
func (cb *ClientBinder) IssueToken(ctx context.Context) (*Issued, error) {
	return cb.b.saveToken(ctx, cb.client.ID, "", "", "", false)
}
