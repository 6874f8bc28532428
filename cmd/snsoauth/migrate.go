package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/snsoauth/internal/config"
	"github.com/dropDatabas3/snsoauth/internal/http/server"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
	"github.com/dropDatabas3/snsoauth/internal/store/pg"
	migrations "github.com/dropDatabas3/snsoauth/migrations/postgres"
)

func newMigrateCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones embebidas (storage.driver=postgres)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := conf()
			ctx, stop := signalContext()
			defer stop()

			st, err := server.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			pgs, ok := st.(*pg.Store)
			if !ok {
				return fmt.Errorf("migrate: storage driver %q has no migrations", st.Driver())
			}
			res, err := pg.NewMigrator(migrations.FS, migrations.Dir).Run(ctx, pgs.Pool())
			if err != nil {
				return err
			}
			logger.L().Info("migrations applied",
				logger.Any("applied", res.Applied),
				logger.Int("skipped", len(res.Skipped)),
				logger.Duration(res.Duration),
			)
			return nil
		},
	}
}
