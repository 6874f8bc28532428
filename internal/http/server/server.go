package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/snsoauth/internal/config"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
	"github.com/dropDatabas3/snsoauth/internal/store"
)

// NewHTTPServer crea el http.Server con los timeouts de la config.
func NewHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h,
		ReadTimeout:       cfg.Server.ReadTimeout.D(),
		WriteTimeout:      cfg.Server.WriteTimeout.D(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout.D(),
		IdleTimeout:       cfg.Server.IdleTimeout.D(),
	}
}

// Run sirve app hasta que ctx se cancela; después hace shutdown ordenado.
// En paralelo purga codes y tokens vencidos si el store lo necesita.
func Run(ctx context.Context, cfg *config.Config, app *App) error {
	log := logger.L().With(logger.Component("server"))
	srv := NewHTTPServer(cfg, app.Handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", logger.String("addr", srv.Addr), logger.Driver(app.Store.Driver()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.D())
		defer cancel()
		log.Info("http server shutting down")
		return srv.Shutdown(sctx)
	})
	if p, ok := app.Store.(store.Purger); ok && cfg.Storage.PurgeInterval > 0 {
		g.Go(func() error {
			purgeLoop(gctx, p, cfg.Storage.PurgeInterval.D())
			return nil
		})
	}
	return g.Wait()
}

func purgeLoop(ctx context.Context, p store.Purger, every time.Duration) {
	log := logger.L().With(logger.Component("purge"))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := p.PurgeExpired(ctx, now)
			if err != nil {
				log.Warn("purge expired failed", logger.Err(err))
				continue
			}
			if n > 0 {
				log.Debug("purged expired records", logger.Int("count", int(n)))
			}
		}
	}
}
