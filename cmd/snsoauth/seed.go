package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/snsoauth/internal/config"
	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/dropDatabas3/snsoauth/internal/http/server"
	"github.com/dropDatabas3/snsoauth/internal/security/password"
	tokens "github.com/dropDatabas3/snsoauth/internal/security/token"
)

func newClientCmd(conf func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "client", Short: "Administra clients"}

	var in repository.ClientInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Registra un client (imprime client_id y client_secret)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			st, err := server.OpenStore(ctx, conf())
			if err != nil {
				return err
			}
			defer st.Close()

			c, err := st.Clients().Create(ctx, in)
			if err != nil {
				return fmt.Errorf("create client: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "client_id=%s\nclient_secret=%s\n", c.ID, c.Secret)
			return nil
		},
	}
	create.Flags().StringVar(&in.ID, "id", "", "client_id (vacío => generado)")
	create.Flags().StringVar(&in.Secret, "secret", "", "client_secret (vacío => generado)")
	create.Flags().StringVar(&in.Title, "title", "", "nombre visible en el consentimiento")
	create.Flags().StringVar(&in.IconURL, "icon", "", "URL del ícono")
	create.Flags().StringVar(&in.Domain, "domain", "", "dominio permitido para redirect_uri")
	cmd.AddCommand(create)

	var secret string
	rotate := &cobra.Command{
		Use:   "rotate-secret <client_id>",
		Short: "Rota el client_secret (imprime el nuevo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			st, err := server.OpenStore(ctx, conf())
			if err != nil {
				return err
			}
			defer st.Close()

			sec, err := rotateSecret(ctx, st.Clients(), args[0], secret)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "client_id=%s\nclient_secret=%s\n", args[0], sec)
			return nil
		},
	}
	rotate.Flags().StringVar(&secret, "secret", "", "nuevo client_secret (vacío => generado)")
	cmd.AddCommand(rotate)
	return cmd
}

// rotateSecret reemplaza el secret de clientID. Vacío => genera uno nuevo.
func rotateSecret(ctx context.Context, clients repository.ClientRepository, clientID, secret string) (string, error) {
	if secret == "" {
		sec, err := tokens.GenerateOpaqueToken(tokens.SecretBytes)
		if err != nil {
			return "", fmt.Errorf("generate secret: %w", err)
		}
		secret = sec
	}
	if err := clients.UpdateSecret(ctx, clientID, secret); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("client %q not found", clientID)
		}
		return "", fmt.Errorf("rotate secret: %w", err)
	}
	return secret, nil
}

func newUserCmd(conf func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Administra resource owners"}

	var (
		in    repository.CreateUserInput
		plain string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Crea un usuario con password argon2id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Username == "" || plain == "" {
				return fmt.Errorf("--username y --password son requeridos")
			}
			hash, err := password.Hash(password.Default, plain)
			if err != nil {
				return err
			}
			in.PasswordHash = hash
			if in.ID == "" {
				in.ID = uuid.NewString()
			}

			ctx, stop := signalContext()
			defer stop()
			st, err := server.OpenStore(ctx, conf())
			if err != nil {
				return err
			}
			defer st.Close()

			u, err := st.Users().Create(ctx, in)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user_id=%s\n", u.ID)
			return nil
		},
	}
	create.Flags().StringVar(&in.ID, "id", "", "user id (vacío => uuid)")
	create.Flags().StringVar(&in.Username, "username", "", "username")
	create.Flags().StringVar(&plain, "password", "", "password en claro")
	create.Flags().StringVar(&in.Nickname, "nickname", "", "nickname")
	create.Flags().StringVar(&in.AvatarURL, "avatar", "", "URL del avatar")
	create.Flags().StringVar(&in.Email, "email", "", "email")
	cmd.AddCommand(create)
	return cmd
}
