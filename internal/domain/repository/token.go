package repository

import (
	"context"
	"time"
)

// AccessToken es el par access/refresh emitido a un client.
// SubjectID y OpenID están vacíos en client_credentials.
type AccessToken struct {
	ID               string
	AccessHash       string
	RefreshHash      string
	ClientID         string
	SubjectID        string
	OpenID           string
	Scope            string
	IssuedAt         time.Time
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AccessExpired indica si el access token expiró en now.
func (t *AccessToken) AccessExpired(now time.Time) bool {
	return t == nil || !now.Before(t.AccessExpiresAt)
}

// RefreshExpired indica si el refresh token expiró en now.
func (t *AccessToken) RefreshExpired(now time.Time) bool {
	return t == nil || t.RefreshHash == "" || !now.Before(t.RefreshExpiresAt)
}

// RotateInput describe una rotación de refresh token.
type RotateInput struct {
	ClientID         string
	OldRefreshHash   string
	NewAccessHash    string
	NewRefreshHash   string
	IssuedAt         time.Time
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time

	// KeepPrevious deja el access token anterior válido hasta su expiración.
	// Si es false, el registro se reemplaza y el access token anterior deja de validar.
	KeepPrevious bool
}

// TokenRepository define operaciones sobre access/refresh tokens.
type TokenRepository interface {
	// Save guarda el registro vivo del par client+subject, reemplazando el anterior.
	Save(ctx context.Context, tok AccessToken) (*AccessToken, error)

	// GetByAccessHash retorna ErrNotFound si no existe.
	GetByAccessHash(ctx context.Context, accessHash string) (*AccessToken, error)

	// GetByRefreshHash retorna ErrNotFound si no existe.
	GetByRefreshHash(ctx context.Context, refreshHash string) (*AccessToken, error)

	// Rotate hace compare-and-swap sobre OldRefreshHash. Si otro request ya
	// rotó ese refresh token retorna ErrNotFound.
	Rotate(ctx context.Context, in RotateInput) (*AccessToken, error)
}
