package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	tokens "github.com/dropDatabas3/snsoauth/internal/security/token"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// getJSON lee una key y decodifica su JSON. redis.Nil => repository.ErrNotFound.
func (s *Store) getJSON(ctx context.Context, key string, dst any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("redis decode %s: %w", key, err)
	}
	return nil
}

// ==================================================================================
// Clients
// ==================================================================================

type clientRepo struct{ s *Store }

func (r clientRepo) Get(ctx context.Context, clientID string) (*repository.Client, error) {
	var rec clientRecord
	if err := r.s.getJSON(ctx, r.s.key("client", clientID), &rec); err != nil {
		return nil, err
	}
	return rec.domain(), nil
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
	rec := clientRecord{
		ID: in.ID, Secret: in.Secret, Title: in.Title, IconURL: in.IconURL, Domain: in.Domain,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	ok, err := r.s.client.SetNX(ctx, r.s.key("client", in.ID), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis create client: %w", err)
	}
	if !ok {
		return nil, repository.ErrConflict
	}
	return rec.domain(), nil
}

func (r clientRepo) UpdateSecret(ctx context.Context, clientID, secret string) error {
	if secret == "" {
		return repository.ErrInvalidInput
	}
	key := r.s.key("client", clientID)
	return r.s.client.Watch(ctx, func(tx *redis.Tx) error {
		var rec clientRecord
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return repository.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		rec.Secret = secret
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}, key)
}

// ==================================================================================
// Users
// ==================================================================================

type userRepo struct{ s *Store }

func (r userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	var rec userRecord
	if err := r.s.getJSON(ctx, r.s.key("user", id), &rec); err != nil {
		return nil, err
	}
	return rec.domain(), nil
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	id, err := r.s.client.Get(ctx, r.s.key("user_by_name", username)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get user by name: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	if in.Username == "" || in.PasswordHash == "" {
		return nil, repository.ErrInvalidInput
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	rec := userRecord{
		ID: in.ID, Username: in.Username, PasswordHash: in.PasswordHash,
		Nickname: in.Nickname, AvatarURL: in.AvatarURL, Email: in.Email,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	keys := []string{r.s.key("user", in.ID), r.s.key("user_by_name", in.Username)}
	n, err := createUserScript.Run(ctx, r.s.client, keys, data, in.ID).Int()
	if err != nil {
		return nil, fmt.Errorf("redis create user: %w", err)
	}
	if n == 0 {
		return nil, repository.ErrConflict
	}
	return rec.domain(), nil
}

// ==================================================================================
// Authorizations
// ==================================================================================

type authzRepo struct{ s *Store }

func (r authzRepo) authzKey(clientID, userID string) string {
	return r.s.key("authz", clientID, userID)
}

func (r authzRepo) Get(ctx context.Context, clientID, userID string) (*repository.Authorization, error) {
	var rec authzRecord
	if err := r.s.getJSON(ctx, r.authzKey(clientID, userID), &rec); err != nil {
		return nil, err
	}
	return rec.domain(), nil
}

func (r authzRepo) Ensure(ctx context.Context, clientID, userID, openID string) (*repository.Authorization, error) {
	if clientID == "" || userID == "" || openID == "" {
		return nil, repository.ErrInvalidInput
	}
	now := time.Now().UTC()
	data, err := json.Marshal(authzRecord{
		ClientID: clientID, UserID: userID, OpenID: openID, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	keys := []string{r.authzKey(clientID, userID), r.s.key("authz_openid", openID)}
	res, err := ensureAuthzScript.Run(ctx, r.s.client, keys, data).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ensure authz: %w", err)
	}
	out, ok := res.(string)
	if !ok {
		return nil, repository.ErrConflict
	}
	var rec authzRecord
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		return nil, fmt.Errorf("redis decode authz: %w", err)
	}
	return rec.domain(), nil
}

func (r authzRepo) MarkConsented(ctx context.Context, clientID, userID, scope string, covered []string, at time.Time) error {
	args := make([]any, 0, 2+len(covered))
	args = append(args, scope, stamp(at))
	for _, c := range covered {
		args = append(args, c)
	}
	n, err := consentScript.Run(ctx, r.s.client, []string{r.authzKey(clientID, userID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("redis mark consent: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ==================================================================================
// Authorization codes
// ==================================================================================

type codeRepo struct{ s *Store }

func (r codeRepo) Save(ctx context.Context, code repository.AuthorizationCode) error {
	if code.CodeHash == "" || code.ClientID == "" || code.SubjectID == "" {
		return repository.ErrInvalidInput
	}
	rec := codeRecord{
		CodeHash: code.CodeHash, ClientID: code.ClientID, SubjectID: code.SubjectID,
		RedirectURI: code.RedirectURI, Scope: code.Scope, IssuedAt: code.IssuedAt, ExpiresAt: code.ExpiresAt,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	keys := []string{r.s.key("code", code.CodeHash), r.s.key("code_pair", code.ClientID, code.SubjectID)}
	n, err := saveCodeScript.Run(ctx, r.s.client, keys, data, code.CodeHash, ttlUntil(code.ExpiresAt), r.s.key("code")+":").Int()
	if err != nil {
		return fmt.Errorf("redis save code: %w", err)
	}
	if n == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (r codeRepo) GetByHash(ctx context.Context, codeHash string) (*repository.AuthorizationCode, error) {
	var rec codeRecord
	if err := r.s.getJSON(ctx, r.s.key("code", codeHash), &rec); err != nil {
		return nil, err
	}
	return rec.domain(), nil
}

func (r codeRepo) Consume(ctx context.Context, codeHash string, at time.Time) (*repository.AuthorizationCode, error) {
	res, err := consumeCodeScript.Run(ctx, r.s.client, []string{r.s.key("code", codeHash)}, stamp(at)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis consume code: %w", err)
	}
	switch v := res.(type) {
	case string:
		var rec codeRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("redis decode code: %w", err)
		}
		return rec.domain(), nil
	case int64:
		if v < 0 {
			return nil, repository.ErrConsumed
		}
	}
	return nil, repository.ErrNotFound
}

// ==================================================================================
// Tokens
// ==================================================================================

type tokenRepo struct{ s *Store }

func (r tokenRepo) Save(ctx context.Context, tok repository.AccessToken) (*repository.AccessToken, error) {
	if tok.AccessHash == "" || tok.ClientID == "" {
		return nil, repository.ErrInvalidInput
	}
	tok.ID = uuid.NewString()
	rec := toTokenRecord(tok)
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	hasRefresh := "0"
	if tok.RefreshHash != "" {
		hasRefresh = "1"
	}
	keys := []string{
		r.s.key("token", tok.ID),
		r.s.key("token_access", tok.AccessHash),
		r.s.key("token_refresh", tok.RefreshHash),
		r.s.key("token_pair", tok.ClientID, tok.SubjectID),
	}
	n, err := saveTokenScript.Run(ctx, r.s.client, keys, data, tok.ID, ttlUntil(rec.expiry()), hasRefresh, r.s.prefix).Int()
	if err != nil {
		return nil, fmt.Errorf("redis save token: %w", err)
	}
	if n == 0 {
		return nil, repository.ErrConflict
	}
	return rec.domain(), nil
}

func (r tokenRepo) byIndex(ctx context.Context, index, hash string) (*tokenRecord, error) {
	id, err := r.s.client.Get(ctx, r.s.key(index, hash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", index, err)
	}
	var rec tokenRecord
	if err := r.s.getJSON(ctx, r.s.key("token", id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r tokenRepo) GetByAccessHash(ctx context.Context, accessHash string) (*repository.AccessToken, error) {
	rec, err := r.byIndex(ctx, "token_access", accessHash)
	if err != nil {
		return nil, err
	}
	if rec.AccessHash != accessHash {
		return nil, repository.ErrNotFound
	}
	return rec.domain(), nil
}

func (r tokenRepo) GetByRefreshHash(ctx context.Context, refreshHash string) (*repository.AccessToken, error) {
	rec, err := r.byIndex(ctx, "token_refresh", refreshHash)
	if err != nil {
		return nil, err
	}
	if rec.RefreshHash != refreshHash {
		return nil, repository.ErrNotFound
	}
	return rec.domain(), nil
}

func (r tokenRepo) Rotate(ctx context.Context, in repository.RotateInput) (*repository.AccessToken, error) {
	if in.OldRefreshHash == "" || in.NewAccessHash == "" || in.NewRefreshHash == "" {
		return nil, repository.ErrInvalidInput
	}
	keep := "0"
	if in.KeepPrevious {
		keep = "1"
	}
	exp := in.RefreshExpiresAt
	if in.AccessExpiresAt.After(exp) {
		exp = in.AccessExpiresAt
	}
	res, err := rotateTokenScript.Run(ctx, r.s.client,
		[]string{r.s.key("token_refresh", in.OldRefreshHash)},
		r.s.prefix, in.OldRefreshHash, in.ClientID, in.NewAccessHash, in.NewRefreshHash,
		stamp(in.IssuedAt), stamp(in.AccessExpiresAt), stamp(in.RefreshExpiresAt),
		keep, uuid.NewString(), ttlUntil(exp),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis rotate token: %w", err)
	}
	var rec tokenRecord
	if err := json.Unmarshal([]byte(res), &rec); err != nil {
		return nil, fmt.Errorf("redis decode token: %w", err)
	}
	return rec.domain(), nil
}
