package repository

import (
	"context"
	"time"
)

// AuthorizationCode es un code emitido por el authorize endpoint.
type AuthorizationCode struct {
	CodeHash    string
	ClientID    string
	SubjectID   string
	RedirectURI string
	Scope       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
}

// Consumed indica si el code ya fue canjeado.
func (c *AuthorizationCode) Consumed() bool { return c != nil && c.ConsumedAt != nil }

// Expired indica si el code expiró en el instante now.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return c == nil || !now.Before(c.ExpiresAt)
}

// CodeRepository define operaciones sobre authorization codes.
type CodeRepository interface {
	// Save guarda un code nuevo; reemplaza codes previos del mismo client+subject
	// ("create or update").
	Save(ctx context.Context, code AuthorizationCode) error

	// GetByHash retorna ErrNotFound si no existe.
	GetByHash(ctx context.Context, codeHash string) (*AuthorizationCode, error)

	// Consume marca el code como canjeado de forma atómica.
	// Solo un caller gana; el resto recibe ErrConsumed (o ErrNotFound si fue reemplazado).
	Consume(ctx context.Context, codeHash string, at time.Time) (*AuthorizationCode, error)
}
