// Package redis implementa el CredentialStore sobre Redis.
//
// Layout de keys (prefijo configurable, default "snsoauth"):
//
//	client:{id}                     JSON
//	user:{id}                       JSON
//	user_by_name:{username}         id
//	authz:{client}:{user}           JSON
//	authz_openid:{openid}           key de authz
//	code:{hash}                     JSON, TTL = expiración del code
//	code_pair:{client}:{subject}    hash del code vigente
//	token:{id}                      JSON, TTL = max(access, refresh)
//	token_access:{hash}             id
//	token_refresh:{hash}            id
//	token_pair:{client}:{subject}   id del registro vivo
//
// Consumo de codes, rotación de refresh y reemplazos por par corren como
// scripts Lua (atómicos del lado del servidor).
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix es el prefijo de keys por defecto.
const DefaultPrefix = "snsoauth"

// Config configura la conexión.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Prefix       string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Store es un CredentialStore respaldado por Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ repository.CredentialStore = (*Store)(nil)

// New conecta a Redis y verifica la conexión.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis store: addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis store: ping: %w", err)
	}
	return NewWithClient(rdb, cfg.Prefix), nil
}

// NewWithClient usa un cliente ya configurado (tests con miniredis).
func NewWithClient(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Clients() repository.ClientRepository               { return clientRepo{s} }
func (s *Store) Users() repository.UserRepository                   { return userRepo{s} }
func (s *Store) Authorizations() repository.AuthorizationRepository { return authzRepo{s} }
func (s *Store) Codes() repository.CodeRepository                   { return codeRepo{s} }
func (s *Store) Tokens() repository.TokenRepository                 { return tokenRepo{s} }

func (s *Store) Driver() string { return "redis" }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

// ttlUntil devuelve el TTL en ms hasta t (mínimo 1s para no crear keys ya vencidas).
func ttlUntil(t time.Time) int64 {
	d := time.Until(t)
	if d < time.Second {
		d = time.Second
	}
	return d.Milliseconds()
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
