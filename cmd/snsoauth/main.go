package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/snsoauth/internal/config"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath = envOr("SNSOAUTH_CONFIG", "")
		cfg        *config.Config
	)

	root := &cobra.Command{
		Use:           "snsoauth",
		Short:         "Servidor de autorización OAuth2 SNS",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env es opcional
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}
			cfg = c
			logger.Init(logger.Config{Env: c.App.Env, Level: c.Log.Level, ServiceName: c.App.Name})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "path al config.yaml (env SNSOAUTH_CONFIG)")

	conf := func() *config.Config { return cfg }
	root.AddCommand(
		newServeCmd(conf),
		newMigrateCmd(conf),
		newClientCmd(conf),
		newUserCmd(conf),
	)
	return root
}

// signalContext se cancela con SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
