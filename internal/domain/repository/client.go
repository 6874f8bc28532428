package repository

import (
	"context"
	"time"
)

// Client representa una aplicación cliente registrada.
type Client struct {
	ID        string // client_id público, inmutable
	Secret    string
	Title     string
	IconURL   string
	Domain    string // dominio permitido para redirect_uri (opcional)
	CreatedAt time.Time
}

// ClientInput contiene los datos para registrar un client.
type ClientInput struct {
	ID      string // vacío => se genera
	Secret  string // vacío => se genera
	Title   string
	IconURL string
	Domain  string
}

// ClientRepository define operaciones sobre clients.
type ClientRepository interface {
	// Get obtiene un client por client_id. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, clientID string) (*Client, error)

	// Create registra un client. Retorna ErrConflict si el ID ya existe.
	Create(ctx context.Context, in ClientInput) (*Client, error)

	// UpdateSecret rota el secret de un client.
	UpdateSecret(ctx context.Context, clientID, secret string) error
}
