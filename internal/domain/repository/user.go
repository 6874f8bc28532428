package repository

import (
	"context"
	"time"
)

// User representa un resource owner.
type User struct {
	ID           string
	Username     string
	PasswordHash string // PHC argon2id
	Nickname     string
	AvatarURL    string
	Email        string
	CreatedAt    time.Time
}

// CreateUserInput contiene los datos para crear un usuario.
// PasswordHash ya debe venir hasheado (security/password).
type CreateUserInput struct {
	ID           string
	Username     string
	PasswordHash string
	Nickname     string
	AvatarURL    string
	Email        string
}

// UserRepository define operaciones sobre usuarios.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUsername retorna ErrNotFound si no existe.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Create retorna ErrConflict si el username ya existe.
	Create(ctx context.Context, in CreateUserInput) (*User, error)
}
