// Package binder resuelve, una vez por request, los registros que necesita
// cada flujo OAuth y expone predicados Check… más una única mutación
// (Issue / Refresh). El dispatcher solo encadena guards sobre estos predicados.
//
// Los errores retornados por Bind… y por las mutaciones son fallas internas
// (store caído). Un client/code/token inexistente NO es error: se refleja en
// el Check… correspondiente.
package binder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	tokens "github.com/dropDatabas3/snsoauth/internal/security/token"
)

// ErrRaceLost indica que otro request consumió el code o rotó el refresh token
// entre el Check y la mutación.
var ErrRaceLost = errors.New("binder: concurrent redemption lost")

// TTLs de los artefactos emitidos.
type TTLs struct {
	Access  time.Duration
	Refresh time.Duration
	Code    time.Duration
}

// RefreshPolicy decide qué pasa con el par anterior al refrescar.
type RefreshPolicy struct {
	// RotateRefreshToken emite un refresh token nuevo (con expiración nueva).
	RotateRefreshToken bool
	// RevokePrevious invalida el access token anterior de inmediato.
	RevokePrevious bool
}

// Binders crea bindings sobre un CredentialStore.
type Binders struct {
	Store   repository.CredentialStore
	TTL     TTLs
	Refresh RefreshPolicy
	Now     func() time.Time
}

// New crea Binders con reloj real.
func New(store repository.CredentialStore, ttl TTLs, refresh RefreshPolicy) *Binders {
	return &Binders{Store: store, TTL: ttl, Refresh: refresh, Now: time.Now}
}

func (b *Binders) now() time.Time {
	if b.Now == nil {
		return time.Now().UTC()
	}
	return b.Now().UTC()
}

// Issued es el resultado de emitir o refrescar un token.
// Los valores crudos solo existen aquí.
type Issued struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // segundos
	Scope        string
	OpenID       string
}

func lookupClient(ctx context.Context, clients repository.ClientRepository, id string) (*repository.Client, error) {
	if id == "" {
		return nil, nil
	}
	c, err := clients.Get(ctx, id)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup client: %w", err)
	}
	return c, nil
}

// saveToken emite un par nuevo para client+subject y lo guarda como registro vivo.
func (b *Binders) saveToken(ctx context.Context, clientID, subjectID, openID, scope string, withRefresh bool) (*Issued, error) {
	pair, err := tokens.GeneratePair()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	now := b.now()
	rec := repository.AccessToken{
		AccessHash:      pair.AccessHash,
		ClientID:        clientID,
		SubjectID:       subjectID,
		OpenID:          openID,
		Scope:           scope,
		IssuedAt:        now,
		AccessExpiresAt: now.Add(b.TTL.Access),
	}
	if withRefresh {
		rec.RefreshHash = pair.RefreshHash
		rec.RefreshExpiresAt = now.Add(b.TTL.Refresh)
	}
	if _, err := b.Store.Tokens().Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	out := &Issued{
		AccessToken: pair.Access,
		ExpiresIn:   int64(b.TTL.Access / time.Second),
		Scope:       scope,
		OpenID:      openID,
	}
	if withRefresh {
		out.RefreshToken = pair.Refresh
	}
	return out, nil
}

// ensureOpenID resuelve (o crea) la relación client+user y devuelve su openid.
func (b *Binders) ensureOpenID(ctx context.Context, clientID, userID string) (*repository.Authorization, error) {
	a, err := b.Store.Authorizations().Get(ctx, clientID, userID)
	if err == nil {
		return a, nil
	}
	if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("lookup authorization: %w", err)
	}
	openID, err := tokens.GenerateOpenID()
	if err != nil {
		return nil, fmt.Errorf("generate openid: %w", err)
	}
	a, err = b.Store.Authorizations().Ensure(ctx, clientID, userID, openID)
	if err != nil {
		return nil, fmt.Errorf("ensure authorization: %w", err)
	}
	return a, nil
}
