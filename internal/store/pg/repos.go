package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	tokens "github.com/dropDatabas3/snsoauth/internal/security/token"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ==================================================================================
// Clients
// ==================================================================================

type clientRepo struct{ pool *pgxpool.Pool }

func (r clientRepo) Get(ctx context.Context, clientID string) (*repository.Client, error) {
	var c repository.Client
	err := r.pool.QueryRow(ctx, `
		SELECT id, secret, title, icon_url, domain, created_at
		FROM oauth_client WHERE id = $1`, clientID).
		Scan(&c.ID, &c.Secret, &c.Title, &c.IconURL, &c.Domain, &c.CreatedAt)
	if err != nil {
		return nil, mapErr("get client", err)
	}
	return &c, nil
}

func (r clientRepo) Create(ctx context.Context, in repository.ClientInput) (*repository.Client, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Secret == "" {
		sec, err := tokens.GenerateOpaqueToken(tokens.SecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
		in.Secret = sec
	}
	c := repository.Client{ID: in.ID, Secret: in.Secret, Title: in.Title, IconURL: in.IconURL, Domain: in.Domain}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO oauth_client (id, secret, title, icon_url, domain)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`, c.ID, c.Secret, c.Title, c.IconURL, c.Domain).Scan(&c.CreatedAt)
	if err != nil {
		return nil, mapErr("create client", err)
	}
	return &c, nil
}

func (r clientRepo) UpdateSecret(ctx context.Context, clientID, secret string) error {
	if secret == "" {
		return repository.ErrInvalidInput
	}
	ct, err := r.pool.Exec(ctx, `UPDATE oauth_client SET secret = $2 WHERE id = $1`, clientID, secret)
	if err != nil {
		return mapErr("update client secret", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ==================================================================================
// Users
// ==================================================================================

type userRepo struct{ pool *pgxpool.Pool }

const userCols = `id, username, password_hash, nickname, avatar_url, email, created_at`

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Nickname, &u.AvatarURL, &u.Email, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM oauth_user WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("get user", err)
	}
	return u, nil
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM oauth_user WHERE username = $1`, username))
	if err != nil {
		return nil, mapErr("get user by username", err)
	}
	return u, nil
}

func (r userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	if in.Username == "" || in.PasswordHash == "" {
		return nil, repository.ErrInvalidInput
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	u, err := scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO oauth_user (id, username, password_hash, nickname, avatar_url, email)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userCols,
		in.ID, in.Username, in.PasswordHash, in.Nickname, in.AvatarURL, in.Email))
	if err != nil {
		return nil, mapErr("create user", err)
	}
	return u, nil
}

// ==================================================================================
// Authorizations
// ==================================================================================

type authzRepo struct{ pool *pgxpool.Pool }

const authzCols = `client_id, user_id, openid, scope, consented, consented_at, created_at, updated_at`

func scanAuthz(row pgx.Row) (*repository.Authorization, error) {
	var a repository.Authorization
	if err := row.Scan(&a.ClientID, &a.UserID, &a.OpenID, &a.Scope, &a.Consented, &a.ConsentedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r authzRepo) Get(ctx context.Context, clientID, userID string) (*repository.Authorization, error) {
	a, err := scanAuthz(r.pool.QueryRow(ctx,
		`SELECT `+authzCols+` FROM oauth_authorization WHERE client_id = $1 AND user_id = $2`, clientID, userID))
	if err != nil {
		return nil, mapErr("get authorization", err)
	}
	return a, nil
}

func (r authzRepo) Ensure(ctx context.Context, clientID, userID, openID string) (*repository.Authorization, error) {
	if clientID == "" || userID == "" || openID == "" {
		return nil, repository.ErrInvalidInput
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO oauth_authorization (client_id, user_id, openid)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_id, user_id) DO NOTHING`, clientID, userID, openID)
	if err != nil {
		return nil, mapErr("ensure authorization", err)
	}
	return r.Get(ctx, clientID, userID)
}

func (r authzRepo) MarkConsented(ctx context.Context, clientID, userID, scope string, covered []string, at time.Time) error {
	if covered == nil {
		covered = []string{}
	}
	// Todas las expresiones del SET leen la fila previa.
	ct, err := r.pool.Exec(ctx, `
		UPDATE oauth_authorization
		SET scope        = CASE WHEN consented AND scope = ANY($5::text[]) THEN scope ELSE $3 END,
		    consented_at = CASE WHEN consented AND scope = ANY($5::text[]) THEN consented_at ELSE $4 END,
		    updated_at   = CASE WHEN consented AND scope = ANY($5::text[]) THEN updated_at ELSE $4 END,
		    consented    = true
		WHERE client_id = $1 AND user_id = $2`, clientID, userID, scope, at, covered)
	if err != nil {
		return mapErr("mark consent", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ==================================================================================
// Authorization codes
// ==================================================================================

type codeRepo struct{ pool *pgxpool.Pool }

const codeCols = `code_hash, client_id, subject_id, redirect_uri, scope, issued_at, expires_at, consumed_at`

func scanCode(row pgx.Row) (*repository.AuthorizationCode, error) {
	var c repository.AuthorizationCode
	if err := row.Scan(&c.CodeHash, &c.ClientID, &c.SubjectID, &c.RedirectURI, &c.Scope, &c.IssuedAt, &c.ExpiresAt, &c.ConsumedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r codeRepo) Save(ctx context.Context, code repository.AuthorizationCode) error {
	if code.CodeHash == "" || code.ClientID == "" || code.SubjectID == "" {
		return repository.ErrInvalidInput
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM oauth_code WHERE client_id = $1 AND subject_id = $2`,
			code.ClientID, code.SubjectID); err != nil {
			return mapErr("replace code", err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO oauth_code (code_hash, client_id, subject_id, redirect_uri, scope, issued_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			code.CodeHash, code.ClientID, code.SubjectID, code.RedirectURI, code.Scope, code.IssuedAt, code.ExpiresAt)
		return mapErr("insert code", err)
	})
}

func (r codeRepo) GetByHash(ctx context.Context, codeHash string) (*repository.AuthorizationCode, error) {
	c, err := scanCode(r.pool.QueryRow(ctx, `SELECT `+codeCols+` FROM oauth_code WHERE code_hash = $1`, codeHash))
	if err != nil {
		return nil, mapErr("get code", err)
	}
	return c, nil
}

func (r codeRepo) Consume(ctx context.Context, codeHash string, at time.Time) (*repository.AuthorizationCode, error) {
	c, err := scanCode(r.pool.QueryRow(ctx, `
		UPDATE oauth_code SET consumed_at = $2
		WHERE code_hash = $1 AND consumed_at IS NULL
		RETURNING `+codeCols, codeHash, at))
	if err == nil {
		return c, nil
	}
	if err = mapErr("consume code", err); !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	// Sin filas: distinguir "ya consumido" de "no existe".
	if _, gerr := r.GetByHash(ctx, codeHash); gerr == nil {
		return nil, repository.ErrConsumed
	}
	return nil, repository.ErrNotFound
}

// ==================================================================================
// Tokens
// ==================================================================================

type tokenRepo struct{ pool *pgxpool.Pool }

const tokenCols = `id::text, access_hash, COALESCE(refresh_hash, ''), client_id, subject_id, openid, scope,
	issued_at, access_expires_at, COALESCE(refresh_expires_at, 'epoch'::timestamptz)`

func scanToken(row pgx.Row) (*repository.AccessToken, error) {
	var t repository.AccessToken
	if err := row.Scan(&t.ID, &t.AccessHash, &t.RefreshHash, &t.ClientID, &t.SubjectID, &t.OpenID, &t.Scope,
		&t.IssuedAt, &t.AccessExpiresAt, &t.RefreshExpiresAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r tokenRepo) Save(ctx context.Context, tok repository.AccessToken) (*repository.AccessToken, error) {
	if tok.AccessHash == "" || tok.ClientID == "" {
		return nil, repository.ErrInvalidInput
	}
	out, err := scanToken(r.pool.QueryRow(ctx, `
		INSERT INTO oauth_token (id, access_hash, refresh_hash, client_id, subject_id, openid, scope,
			live, issued_at, access_expires_at, refresh_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8, $9, $10)
		ON CONFLICT (client_id, subject_id) WHERE live DO UPDATE SET
			id = EXCLUDED.id,
			access_hash = EXCLUDED.access_hash,
			refresh_hash = EXCLUDED.refresh_hash,
			openid = EXCLUDED.openid,
			scope = EXCLUDED.scope,
			issued_at = EXCLUDED.issued_at,
			access_expires_at = EXCLUDED.access_expires_at,
			refresh_expires_at = EXCLUDED.refresh_expires_at
		RETURNING `+tokenCols,
		uuid.NewString(), tok.AccessHash, nullIfEmpty(tok.RefreshHash), tok.ClientID, tok.SubjectID, tok.OpenID, tok.Scope,
		tok.IssuedAt, tok.AccessExpiresAt, nullTime(tok.RefreshExpiresAt)))
	if err != nil {
		return nil, mapErr("save token", err)
	}
	return out, nil
}

func (r tokenRepo) GetByAccessHash(ctx context.Context, accessHash string) (*repository.AccessToken, error) {
	t, err := scanToken(r.pool.QueryRow(ctx, `SELECT `+tokenCols+` FROM oauth_token WHERE access_hash = $1`, accessHash))
	if err != nil {
		return nil, mapErr("get token by access", err)
	}
	return t, nil
}

func (r tokenRepo) GetByRefreshHash(ctx context.Context, refreshHash string) (*repository.AccessToken, error) {
	t, err := scanToken(r.pool.QueryRow(ctx, `SELECT `+tokenCols+` FROM oauth_token WHERE refresh_hash = $1`, refreshHash))
	if err != nil {
		return nil, mapErr("get token by refresh", err)
	}
	return t, nil
}

func (r tokenRepo) Rotate(ctx context.Context, in repository.RotateInput) (*repository.AccessToken, error) {
	if in.OldRefreshHash == "" || in.NewAccessHash == "" || in.NewRefreshHash == "" {
		return nil, repository.ErrInvalidInput
	}

	if !in.KeepPrevious {
		out, err := scanToken(r.pool.QueryRow(ctx, `
			UPDATE oauth_token SET
				access_hash = $3, refresh_hash = $4, issued_at = $5,
				access_expires_at = $6, refresh_expires_at = $7
			WHERE refresh_hash = $1 AND client_id = $2
			RETURNING `+tokenCols,
			in.OldRefreshHash, in.ClientID, in.NewAccessHash, in.NewRefreshHash,
			in.IssuedAt, in.AccessExpiresAt, in.RefreshExpiresAt))
		if err != nil {
			return nil, mapErr("rotate token", err)
		}
		return out, nil
	}

	var out *repository.AccessToken
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var subjectID, openID, scope string
		// El UPDATE toma el lock de la fila; un rotador concurrente no encuentra el refresh.
		err := tx.QueryRow(ctx, `
			UPDATE oauth_token SET refresh_hash = NULL, live = false
			WHERE refresh_hash = $1 AND client_id = $2
			RETURNING subject_id, openid, scope`, in.OldRefreshHash, in.ClientID).
			Scan(&subjectID, &openID, &scope)
		if err != nil {
			return mapErr("retire token", err)
		}
		out, err = scanToken(tx.QueryRow(ctx, `
			INSERT INTO oauth_token (id, access_hash, refresh_hash, client_id, subject_id, openid, scope,
				live, issued_at, access_expires_at, refresh_expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8, $9, $10)
			RETURNING `+tokenCols,
			uuid.NewString(), in.NewAccessHash, in.NewRefreshHash, in.ClientID, subjectID, openID, scope,
			in.IssuedAt, in.AccessExpiresAt, in.RefreshExpiresAt))
		return mapErr("insert rotated token", err)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
