package repository

import (
	"context"
	"time"
)

// Authorization es la relación client ↔ resource owner.
// OpenID es el identificador opaco que ve el client en lugar del user ID.
type Authorization struct {
	ClientID    string
	UserID      string
	OpenID      string
	Scope       string // último scope consentido
	Consented   bool
	ConsentedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AuthorizationRepository define operaciones sobre autorizaciones.
type AuthorizationRepository interface {
	// Get retorna ErrNotFound si el user nunca autorizó al client.
	Get(ctx context.Context, clientID, userID string) (*Authorization, error)

	// Ensure resuelve la relación o la crea con un OpenID nuevo (sin consentimiento).
	Ensure(ctx context.Context, clientID, userID, openID string) (*Authorization, error)

	// MarkConsented registra el consentimiento explícito del user para el scope.
	// Si el consentimiento vigente ya es uno de covered, se conserva tal cual:
	// la decisión se toma dentro del store, nunca sobre una lectura previa.
	MarkConsented(ctx context.Context, clientID, userID, scope string, covered []string, at time.Time) error
}
