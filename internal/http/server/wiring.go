// Package server cablea config, stores y controllers en un http.Handler y
// maneja el ciclo de vida del http.Server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/snsoauth/internal/cache"
	"github.com/dropDatabas3/snsoauth/internal/config"
	"github.com/dropDatabas3/snsoauth/internal/csrf"
	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/dropDatabas3/snsoauth/internal/http/controllers/health"
	oauthctrl "github.com/dropDatabas3/snsoauth/internal/http/controllers/oauth"
	sessionctrl "github.com/dropDatabas3/snsoauth/internal/http/controllers/session"
	"github.com/dropDatabas3/snsoauth/internal/http/response"
	"github.com/dropDatabas3/snsoauth/internal/http/router"
	"github.com/dropDatabas3/snsoauth/internal/metrics"
	"github.com/dropDatabas3/snsoauth/internal/oauth/binder"
	"github.com/dropDatabas3/snsoauth/internal/oauth/grant"
	"github.com/dropDatabas3/snsoauth/internal/oauth/scope"
	"github.com/dropDatabas3/snsoauth/internal/oauth/userinfo"
	"github.com/dropDatabas3/snsoauth/internal/rate"
	"github.com/dropDatabas3/snsoauth/internal/session"
	"github.com/dropDatabas3/snsoauth/internal/store"
)

const authorizePath = "/oauth2/sns/authorize"

// Options permite inyectar colaboradores ya construidos (tests, seeding).
// Los nil se construyen desde la config.
type Options struct {
	Store    repository.CredentialStore
	Cache    cache.Client
	Registry *prometheus.Registry
	UserInfo userinfo.Adapter
}

// App es el servidor ya cableado.
type App struct {
	Handler    http.Handler
	Store      repository.CredentialStore
	Cache      cache.Client
	Dispatcher *grant.Dispatcher

	closers []func() error
}

// Close libera store, cache y clientes redis en orden inverso.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build arma el App completo para cfg.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	app := &App{}
	fail := func(err error) (*App, error) {
		_ = app.Close()
		return nil, err
	}

	// 1. Credential store
	app.Store = opts.Store
	if app.Store == nil {
		s, err := store.Open(ctx, storeConfig(cfg))
		if err != nil {
			return fail(fmt.Errorf("open store: %w", err))
		}
		app.Store = s
		app.closers = append(app.closers, s.Close)
	}

	// 2. Cache (sesiones + anti-forgery)
	app.Cache = opts.Cache
	if app.Cache == nil {
		c, err := cache.New(cache.Config{
			Driver:   cfg.Cache.Kind,
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return fail(fmt.Errorf("open cache: %w", err))
		}
		app.Cache = c
		app.closers = append(app.closers, c.Close)
	}

	// 3. Core OAuth
	policy, err := scope.ParsePolicy(cfg.OAuth.ConsentPolicy)
	if err != nil {
		return fail(err)
	}
	forgery, err := csrf.NewManager(app.Cache, cfg.CSRF.Secret, cfg.CSRF.TTL.D())
	if err != nil {
		return fail(err)
	}
	adapter := opts.UserInfo
	if adapter == nil {
		adapter = userinfo.NewRepositoryAdapter(app.Store.Users())
	}
	binders := binder.New(app.Store,
		binder.TTLs{
			Access:  cfg.OAuth.AccessTokenTTL.D(),
			Refresh: cfg.OAuth.RefreshTokenTTL.D(),
			Code:    cfg.OAuth.CodeTTL.D(),
		},
		binder.RefreshPolicy{
			RotateRefreshToken: *cfg.OAuth.RotateRefreshToken,
			RevokePrevious:     *cfg.OAuth.RevokeOnRefresh,
		},
	)
	app.Dispatcher = grant.New(grant.Deps{
		Binders:  binders,
		Forgery:  forgery,
		UserInfo: adapter,
		Recorder: metrics.GrantRecorder{},
		Config: grant.Config{
			ConsentPolicy:         policy,
			EnforceRedirectDomain: cfg.OAuth.EnforceRedirectDomain,
			LoginURL:              cfg.OAuth.LoginURL,
		},
	})

	// 4. Metrics
	metricsCfg := metrics.Config{}
	if opts.Registry != nil {
		metricsCfg = metrics.Config{Registry: opts.Registry, Gatherer: opts.Registry}
	}
	metricsHandler, err := metrics.Register(metricsCfg)
	if err != nil {
		return fail(fmt.Errorf("register metrics: %w", err))
	}

	// 5. Rate limiter
	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		if strings.EqualFold(cfg.Cache.Kind, "redis") {
			rc := rdb.NewClient(&rdb.Options{
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
			})
			app.closers = append(app.closers, rc.Close)
			limiter = rate.NewRedisLimiter(rc, "rl:", cfg.Rate.MaxRequests, cfg.Rate.Window.D())
		} else {
			limiter = rate.NewMemoryLimiter(cfg.Rate.MaxRequests, cfg.Rate.Window.D())
		}
	}

	// 6. HTTP
	views, err := response.LoadViews(cfg.OAuth.ConsentTemplate, authorizePath)
	if err != nil {
		return fail(err)
	}
	sessions := session.NewManager(app.Cache, session.Config{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL.D(),
		Secure:     cfg.Session.Secure,
		SameSite:   cfg.Session.SameSite,
		Domain:     cfg.Session.Domain,
	})

	app.Handler = router.New(router.Deps{
		OAuth: oauthctrl.NewControllers(oauthctrl.Deps{
			Grants:   app.Dispatcher,
			Builder:  response.New(views),
			Sessions: sessions,
		}),
		Session: sessionctrl.NewControllers(sessionctrl.Deps{
			Users:    app.Store.Users(),
			Sessions: sessions,
			Config:   sessionctrl.Config{CSRFCookieName: csrfCookie, Secure: cfg.Session.Secure},
		}),
		Health: health.NewHealthController(health.Deps{
			Checks: []health.Check{
				{Name: "store:" + app.Store.Driver(), Critical: true, Ping: app.Store.Ping},
				{Name: "cache:" + cfg.Cache.Kind, Critical: true, Ping: app.Cache.Ping},
			},
			Version: cfg.App.Name,
		}),
		Metrics:         metricsHandler,
		Limiter:         limiter,
		TokenParamStyle: cfg.OAuth.TokenParamStyle,
		CSRFCookieName:  csrfCookie,
	})
	return app, nil
}

const csrfCookie = "csrf_token"

func storeConfig(cfg *config.Config) store.Config {
	sc := store.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN}
	sc.Postgres.MaxConns = cfg.Storage.Postgres.MaxConns
	sc.Postgres.MinConns = cfg.Storage.Postgres.MinConns
	sc.Postgres.ConnMaxLifetime = cfg.Storage.Postgres.ConnMaxLifetime.D()
	sc.Redis.Addr = cfg.Storage.Redis.Addr
	sc.Redis.Password = cfg.Storage.Redis.Password
	sc.Redis.DB = cfg.Storage.Redis.DB
	sc.Redis.Prefix = cfg.Storage.Redis.Prefix
	return sc
}

// OpenStore abre solo el credential store (CLI: migrate, seeding).
func OpenStore(ctx context.Context, cfg *config.Config) (repository.CredentialStore, error) {
	return store.Open(ctx, storeConfig(cfg))
}
