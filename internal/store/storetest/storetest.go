// Package storetest contiene la suite de conformidad que todo CredentialStore
// debe pasar (memory, pg, redis).
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	tokens "github.com/dropDatabas3/snsoauth/internal/security/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory crea un store vacío para un subtest.
type Factory func(t *testing.T) repository.CredentialStore

// Run ejecuta la suite completa.
func Run(t *testing.T, newStore Factory) {
	t.Run("Clients", func(t *testing.T) { testClients(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Authorizations", func(t *testing.T) { testAuthorizations(t, newStore(t)) })
	t.Run("ConsentNeverNarrows", func(t *testing.T) { testConsentRace(t, newStore(t)) })
	t.Run("CodeSingleUse", func(t *testing.T) { testCodeSingleUse(t, newStore(t)) })
	t.Run("CodeConcurrentConsume", func(t *testing.T) { testCodeConcurrentConsume(t, newStore(t)) })
	t.Run("CodeReplacedPerPair", func(t *testing.T) { testCodeReplaced(t, newStore(t)) })
	t.Run("TokenSaveReplaces", func(t *testing.T) { testTokenSaveReplaces(t, newStore(t)) })
	t.Run("TokenRotateRevoke", func(t *testing.T) { testTokenRotate(t, newStore(t), false) })
	t.Run("TokenRotateKeepPrevious", func(t *testing.T) { testTokenRotate(t, newStore(t), true) })
	t.Run("TokenRotateWrongClient", func(t *testing.T) { testTokenRotateWrongClient(t, newStore(t)) })
	t.Run("TokenConcurrentRotate", func(t *testing.T) { testTokenConcurrentRotate(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Ping(context.Background()))
		assert.NotEmpty(t, s.Driver())
	})
}

func ts() time.Time { return time.Now().UTC().Truncate(time.Second) }

func testClients(t *testing.T, s repository.CredentialStore) {
	ctx := context.Background()

	_, err := s.Clients().Get(ctx, "nope")
	require.ErrorIs(t, err, repository.ErrNotFound)

	c, err := s.Clients().Create(ctx, repository.ClientInput{ID: "app1", Secret: "s1", Title: "App", Domain: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, "app1", c.ID)

	_, err = s.Clients().Create(ctx, repository.ClientInput{ID: "app1", Secret: "x"})
	require.ErrorIs(t, err, repository.ErrConflict)

	gen, err := s.Clients().Create(ctx, repository.ClientInput{Title: "Generated"})
	require.NoError(t, err)
	assert.NotEmpty(t, gen.ID)
	assert.NotEmpty(t, gen.Secret)

	require.NoError(t, s.Clients().UpdateSecret(ctx, "app1", "s2"))
	got, err := s.Clients().Get(ctx, "app1")
	require.NoError(t, err)
	assert.Equal(t, "s2", got.Secret)
	assert.Equal(t, "App", got.Title)
	assert.Equal(t, "example.com", got.Domain)

	require.ErrorIs(t, s.Clients().UpdateSecret(ctx, "nope", "x"), repository.ErrNotFound)
}

func testUsers(t *testing.T, s repository.CredentialStore) {
	ctx := context.Background()

	u, err := s.Users().Create(ctx, repository.CreateUserInput{Username: "alice", PasswordHash: "$argon2id$x", Nickname: "Alice"})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)

	_, err = s.Users().Create(ctx, repository.CreateUserInput{Username: "alice", PasswordHash: "$argon2id$y"})
	require.ErrorIs(t, err, repository.ErrConflict)

	byName, err := s.Users().GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byID, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", byID.Nickname)

	_, err = s.Users().GetByUsername(ctx, "bob")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func testAuthorizations(t *testing.T, s repository.CredentialStore) {
	ctx := context.Background()

	_, err := s.Authorizations().Get(ctx, "app", "u1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	a, err := s.Authorizations().Ensure(ctx, "app", "u1", "oid-1")
	require.NoError(t, err)
	assert.Equal(t, "oid-1", a.OpenID)
	assert.False(t, a.Consented)

	// Ensure es idempotente: conserva el primer openid.
	again, err := s.Authorizations().Ensure(ctx, "app", "u1", "oid-2")
	require.NoError(t, err)
	assert.Equal(t, "oid-1", again.OpenID)

	// un scope angosto primero, después uno más amplio lo reemplaza
	require.NoError(t, s.Authorizations().MarkConsented(ctx, "app", "u1", "snsapi_base", []string{"snsapi_base", "snsapi_userinfo"}, ts()))
	got, err := s.Authorizations().Get(ctx, "app", "u1")
	require.NoError(t, err)
	assert.True(t, got.Consented)
	assert.Equal(t, "snsapi_base", got.Scope)

	require.NoError(t, s.Authorizations().MarkConsented(ctx, "app", "u1", "snsapi_userinfo", []string{"snsapi_userinfo"}, ts()))
	got, err = s.Authorizations().Get(ctx, "app", "u1")
	require.NoError(t, err)
	assert.Equal(t, "snsapi_userinfo", got.Scope)
	require.NotNil(t, got.ConsentedAt)

	// un consentimiento cubierto nunca achica el vigente
	require.NoError(t, s.Authorizations().MarkConsented(ctx, "app", "u1", "snsapi_base", []string{"snsapi_base", "snsapi_userinfo"}, ts()))
	got, err = s.Authorizations().Get(ctx, "app", "u1")
	require.NoError(t, err)
	assert.Equal(t, "snsapi_userinfo", got.Scope)

	require.ErrorIs(t, s.Authorizations().MarkConsented(ctx, "app", "u9", "snsapi_base", nil, ts()), repository.ErrNotFound)
}

func testConsentRace(t *testing.T, s repository.CredentialStore) {
	ctx := context.Background()
	_, err := s.Authorizations().Ensure(ctx, "app", "u2", "oid-race")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Authorizations().MarkConsented(ctx, "app", "u2", "snsapi_userinfo", []string{"snsapi_userinfo"}, ts()))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Authorizations().MarkConsented(ctx, "app", "u2", "snsapi_base", []string{"snsapi_base", "snsapi_userinfo"}, ts()))
		}()
	}
	wg.Wait()

	got, err := s.Authorizations().Get(ctx, "app", "u2")
	require.NoError(t, err)
	assert.Equal(t, "snsapi_userinfo", got.Scope)
}

func newCode(client, subject string) (string, repository.AuthorizationCode) {
	raw, _ := tokens.GenerateOpaqueToken(tokens.CodeBytes)
	now := ts()
	return raw, repository.AuthorizationCode{
		CodeHash:    tokens.SHA256Base64URL(raw),
		ClientID:    client,
		SubjectID:   subject,
		RedirectURI: "https://client.example.com/cb",
		Scope:       "snsapi_base",
		IssuedAt:    now,
		ExpiresAt:   now.Add(10 * time.Minute),
	}
}

func testCodeSingleUse(t *testing.T, s repository.CredentialStore) {
	ctx := context.Background()
	_, c := newCode("app", "u1")
	require.NoError(t, s.Codes().Save(ctx, c))

	got, err := s.Codes().GetByHash(ctx, c.CodeHash)
	require.NoError(t, err)
	assert.False(t, got.Consumed())
	assert.Equal(t, c.RedirectURI, got.RedirectURI)

	consumed, err := s.Codes().Consume(ctx, c.CodeHash, ts())
	require.NoError(t, err)
	assert.True(t, consumed.Consumed())
	assert.Equal(t, "u1", consumed.SubjectID)

	_, err = s.Codes().Consume(ctx, c.CodeHash, ts())
	require.ErrorIs(t, err, repository.ErrConsumed)

	after, err := s.Codes().GetByHash(ctx, c.CodeHash)
	require.NoError(t, err)
	assert.True(t, after.Consumed())

	_, err = s.Codes().Consume(ctx, "missing", ts())
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func testCodeConcurrentConsume(t *testing.T, s repository.CredentialStore) {
	ctx := context.Background()
	_, c := newCode("app", "u1")
	require.NoError(t, s.Codes().Save(ctx, c))

	const n = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := s.Codes().Consume(ctx, c.CodeHash, ts()); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, repository.ErrConsumed)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func testCodeReplaced(t *testing.T, s repository.CredentialStore) {
	ctx := context.Background()
	_, first := newCode("app", "u1")
	_, second := newCode("app", "u1")
	_, other := newCode("app", "u2")
	require.NoError(t, s.Codes().Save(ctx, first))
	require.NoError(t, s.Codes().Save(ctx, other))
	require.NoError(t, s.Codes().Save(ctx, second))

	_, err := s.Codes().GetByHash(ctx, first.CodeHash)
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Codes().GetByHash(ctx, second.CodeHash)
	require.NoError(t, err)
	_, err = s.Codes().GetByHash(ctx, other.CodeHash)
	require.NoError(t, err)
}

func newToken(t *testing.T, client, subject string) (tokens.Pair, repository.AccessToken) {
	p, err := tokens.GeneratePair()
	require.NoError(t, err)
	now := ts()
	return p, repository.AccessToken{
		AccessHash:       p.AccessHash,
		RefreshHash:      p.RefreshHash,
		ClientID:         client,
		SubjectID:        subject,
		OpenID:           "oid-" + subject,
		Scope:            "snsapi_base",
		IssuedAt:         now,
		AccessExpiresAt:  now.Add(time.Hour),
		RefreshExpiresAt: now.Add(24 * time.Hour),
	}
}

func testTokenSaveReplaces(t *testing.T, s repository.CredentialStore) {
	ctx := context.Background()
	_, first := newToken(t, "app", "u1")
	_, second := newToken(t, "app", "u1")

	saved, err := s.Tokens().Save(ctx, first)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	got, err := s.Tokens().GetByAccessHash(ctx, first.AccessHash)
	require.NoError(t, err)
	assert.Equal(t, "oid-u1", got.OpenID)

	_, err = s.Tokens().Save(ctx, second)
	require.NoError(t, err)

	_, err = s.Tokens().GetByAccessHash(ctx, first.AccessHash)
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Tokens().GetByRefreshHash(ctx, first.RefreshHash)
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Tokens().GetByRefreshHash(ctx, second.RefreshHash)
	require.NoError(t, err)

	// client_credentials: sin subject
	cc := repository.AccessToken{
		AccessHash:      tokens.SHA256Base64URL("cc-token"),
		ClientID:        "app",
		Scope:           "",
		IssuedAt:        ts(),
		AccessExpiresAt: ts().Add(time.Hour),
	}
	_, err = s.Tokens().Save(ctx, cc)
	require.NoError(t, err)
	gotCC, err := s.Tokens().GetByAccessHash(ctx, cc.AccessHash)
	require.NoError(t, err)
	assert.Empty(t, gotCC.SubjectID)
	assert.Empty(t, gotCC.RefreshHash)
}

func testTokenRotate(t *testing.T, s repository.CredentialStore, keepPrevious bool) {
	ctx := context.Background()
	_, old := newToken(t, "app", "u1")
	_, err := s.Tokens().Save(ctx, old)
	require.NoError(t, err)

	next, err := tokens.GeneratePair()
	require.NoError(t, err)
	now := ts()
	rotated, err := s.Tokens().Rotate(ctx, repository.RotateInput{
		ClientID:         "app",
		OldRefreshHash:   old.RefreshHash,
		NewAccessHash:    next.AccessHash,
		NewRefreshHash:   next.RefreshHash,
		IssuedAt:         now,
		AccessExpiresAt:  now.Add(2 * time.Hour),
		RefreshExpiresAt: now.Add(48 * time.Hour),
		KeepPrevious:     keepPrevious,
	})
	require.NoError(t, err)
	assert.Equal(t, next.AccessHash, rotated.AccessHash)
	assert.Equal(t, "u1", rotated.SubjectID)
	assert.Equal(t, "oid-u1", rotated.OpenID)
	assert.Equal(t, "snsapi_base", rotated.Scope)

	_, err = s.Tokens().GetByAccessHash(ctx, next.AccessHash)
	require.NoError(t, err)

	// El refresh anterior siempre queda retirado.
	_, err = s.Tokens().GetByRefreshHash(ctx, old.RefreshHash)
	require.ErrorIs(t, err, repository.ErrNotFound)

	prev, err := s.Tokens().GetByAccessHash(ctx, old.AccessHash)
	if keepPrevious {
		require.NoError(t, err)
		assert.Empty(t, prev.RefreshHash)
	} else {
		require.ErrorIs(t, err, repository.ErrNotFound)
	}
}

func testTokenRotateWrongClient(t *testing.T, s repository.CredentialStore) {
	ctx := context.Background()
	_, old := newToken(t, "app", "u1")
	_, err := s.Tokens().Save(ctx, old)
	require.NoError(t, err)

	next, _ := tokens.GeneratePair()
	_, err = s.Tokens().Rotate(ctx, repository.RotateInput{
		ClientID:         "other",
		OldRefreshHash:   old.RefreshHash,
		NewAccessHash:    next.AccessHash,
		NewRefreshHash:   next.RefreshHash,
		IssuedAt:         ts(),
		AccessExpiresAt:  ts().Add(time.Hour),
		RefreshExpiresAt: ts().Add(time.Hour),
	})
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.Tokens().GetByRefreshHash(ctx, old.RefreshHash)
	require.NoError(t, err)
}

func testTokenConcurrentRotate(t *testing.T, s repository.CredentialStore) {
	ctx := context.Background()
	_, old := newToken(t, "app", "u1")
	_, err := s.Tokens().Save(ctx, old)
	require.NoError(t, err)

	const n = 12
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		next, err := tokens.GeneratePair()
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Tokens().Rotate(ctx, repository.RotateInput{
				ClientID:         "app",
				OldRefreshHash:   old.RefreshHash,
				NewAccessHash:    next.AccessHash,
				NewRefreshHash:   next.RefreshHash,
				IssuedAt:         ts(),
				AccessExpiresAt:  ts().Add(time.Hour),
				RefreshExpiresAt: ts().Add(time.Hour),
			})
			if err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, repository.ErrNotFound)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
