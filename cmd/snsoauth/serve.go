package main

import (
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/snsoauth/internal/config"
	"github.com/dropDatabas3/snsoauth/internal/http/server"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
)

func newServeCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := conf()
			ctx, stop := signalContext()
			defer stop()

			app, err := server.Build(ctx, cfg, server.Options{})
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.L().Warn("cleanup failed", logger.Err(err))
				}
			}()
			return server.Run(ctx, cfg, app)
		},
	}
}
