// Package pg implementa el CredentialStore sobre PostgreSQL (pgx).
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config contiene el DSN y el tuning del pool.
type Config struct {
	DSN             string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
}

type Store struct{ pool *pgxpool.Pool }

var _ repository.CredentialStore = (*Store)(nil)

// New abre el pool y verifica la conexión.
func New(ctx context.Context, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	// MinConns hace las veces de "idle conns" en pgxpool
	if cfg.MinConns > 0 {
		pcfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.ConnMaxLifetime
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 10
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool expone el pool interno (migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Clients() repository.ClientRepository               { return clientRepo{s.pool} }
func (s *Store) Users() repository.UserRepository                   { return userRepo{s.pool} }
func (s *Store) Authorizations() repository.AuthorizationRepository { return authzRepo{s.pool} }
func (s *Store) Codes() repository.CodeRepository                   { return codeRepo{s.pool} }
func (s *Store) Tokens() repository.TokenRepository                 { return tokenRepo{s.pool} }

func (s *Store) Driver() string { return "postgres" }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return nil
}

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// PurgeExpired borra codes y tokens vencidos.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	ct1, err := s.pool.Exec(ctx, `DELETE FROM oauth_code WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("pg: purge codes: %w", err)
	}
	ct2, err := s.pool.Exec(ctx, `
		DELETE FROM oauth_token
		WHERE access_expires_at <= $1
		  AND (refresh_hash IS NULL OR refresh_expires_at IS NULL OR refresh_expires_at <= $1)`, now)
	if err != nil {
		return ct1.RowsAffected(), fmt.Errorf("pg: purge tokens: %w", err)
	}
	return ct1.RowsAffected() + ct2.RowsAffected(), nil
}

// mapErr traduce errores de pgx a los sentinels del repositorio.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repository.ErrConflict
	}
	return fmt.Errorf("pg: %s: %w", op, err)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
