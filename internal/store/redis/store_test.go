package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/dropDatabas3/snsoauth/internal/store/storetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client, "test"), mr
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.CredentialStore {
		s, _ := newTestStore(t)
		return s
	})
}

func TestCodeExpiresWithTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Codes().Save(ctx, repository.AuthorizationCode{
		CodeHash: "h1", ClientID: "app", SubjectID: "u1",
		IssuedAt: now, ExpiresAt: now.Add(10 * time.Minute),
	}))
	assert.True(t, mr.Exists("test:code:h1"))

	mr.FastForward(11 * time.Minute)
	_, err := s.Codes().GetByHash(ctx, "h1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestConsumeKeepsTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Codes().Save(ctx, repository.AuthorizationCode{
		CodeHash: "h1", ClientID: "app", SubjectID: "u1",
		IssuedAt: now, ExpiresAt: now.Add(10 * time.Minute),
	}))
	_, err := s.Codes().Consume(ctx, "h1", now)
	require.NoError(t, err)
	assert.Greater(t, mr.TTL("test:code:h1"), time.Duration(0))
}

func TestPing_Unavailable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()
	err := s.Ping(context.Background())
	assert.ErrorIs(t, err, repository.ErrUnavailable)
}
