package repository

import "context"

// CredentialStore agrupa los repositorios que consume el core OAuth.
type CredentialStore interface {
	Clients() ClientRepository
	Users() UserRepository
	Authorizations() AuthorizationRepository
	Codes() CodeRepository
	Tokens() TokenRepository

	// Driver retorna el nombre del backend ("memory", "postgres", "redis").
	Driver() string

	// Ping verifica conectividad con el backend.
	Ping(ctx context.Context) error

	// Close libera recursos.
	Close() error
}
