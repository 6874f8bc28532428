// Package store abre el CredentialStore configurado.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/dropDatabas3/snsoauth/internal/store/memory"
	"github.com/dropDatabas3/snsoauth/internal/store/pg"
	redisstore "github.com/dropDatabas3/snsoauth/internal/store/redis"
)

// Config selecciona el backend.
type Config struct {
	Driver string // memory | postgres | redis
	DSN    string

	Postgres struct {
		MaxConns        int
		MinConns        int
		ConnMaxLifetime time.Duration
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}
}

// Open devuelve el CredentialStore para cfg.Driver.
func Open(ctx context.Context, cfg Config) (repository.CredentialStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory", "mem":
		return memory.New(), nil
	case "postgres", "pg", "postgresql":
		return pg.New(ctx, pg.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
	case "redis":
		return redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}

// Purger es implementado por los backends que necesitan limpieza activa
// de codes y tokens vencidos (redis expira solo vía TTL).
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
