// Package memory implementa el CredentialStore en memoria.
//
// Los registros viven en un arena indexado por IDs estables (uuid). Los índices
// secundarios (hash → id, client+subject → id) se protegen con un mutex; las
// transiciones de estado (consumo de code, rotación de refresh) son
// compare-and-swap atómicos sobre el registro, sin tomar el mutex.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
)

// Store es un CredentialStore en memoria, seguro para uso concurrente.
type Store struct {
	mu sync.RWMutex

	clients map[string]*repository.Client

	users       map[string]*repository.User
	usersByName map[string]string

	authz         map[string]*repository.Authorization // pairKey → authz
	authzByOpenID map[string]string                    // openid → pairKey

	codes      map[string]*codeRecord // id → record
	codeByHash map[string]string
	codeByPair map[string]string

	tokens         map[string]*tokenRecord // id → record
	tokenByAccess  map[string]string
	tokenByRefresh map[string]string
	tokenByPair    map[string]string

	now func() time.Time
}

var _ repository.CredentialStore = (*Store)(nil)

// New crea un store vacío.
func New() *Store {
	return &Store{
		clients:        make(map[string]*repository.Client),
		users:          make(map[string]*repository.User),
		usersByName:    make(map[string]string),
		authz:          make(map[string]*repository.Authorization),
		authzByOpenID:  make(map[string]string),
		codes:          make(map[string]*codeRecord),
		codeByHash:     make(map[string]string),
		codeByPair:     make(map[string]string),
		tokens:         make(map[string]*tokenRecord),
		tokenByAccess:  make(map[string]string),
		tokenByRefresh: make(map[string]string),
		tokenByPair:    make(map[string]string),
		now:            time.Now,
	}
}

func (s *Store) Clients() repository.ClientRepository               { return clientRepo{s} }
func (s *Store) Users() repository.UserRepository                   { return userRepo{s} }
func (s *Store) Authorizations() repository.AuthorizationRepository { return authzRepo{s} }
func (s *Store) Codes() repository.CodeRepository                   { return codeRepo{s} }
func (s *Store) Tokens() repository.TokenRepository                 { return tokenRepo{s} }

func (s *Store) Driver() string { return "memory" }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

// PurgeExpired elimina codes y tokens expirados antes de now. Retorna cuántos registros borró.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.codes {
		if rec.code.Expired(now) {
			s.dropCodeLocked(id)
			n++
		}
	}
	for id, rec := range s.tokens {
		t := rec.state.Load()
		if t.AccessExpired(now) && t.RefreshExpired(now) {
			s.dropTokenLocked(id)
			n++
		}
	}
	return n, ctx.Err()
}

func pairKey(clientID, subjectID string) string {
	return clientID + "\x00" + subjectID
}
