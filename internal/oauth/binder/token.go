package binder

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/dropDatabas3/snsoauth/internal/oauth/scope"
	"github.com/dropDatabas3/snsoauth/internal/security/password"
	tokens "github.com/dropDatabas3/snsoauth/internal/security/token"
)

// TokenBinder cubre los canjes del token endpoint de usuario:
// authorization_code, password y refresh_token. Cada Bind… resuelve solo lo
// que su flujo necesita; los Check… que no aplican devuelven false.
type TokenBinder struct {
	b      *Binders
	client *repository.Client
	secret string

	// authorization_code
	code *repository.AuthorizationCode

	// password
	user      *repository.User
	plainPass string
	userOK    *bool

	// refresh_token
	refreshRaw string
	refresh    *repository.AccessToken
}

// BindCode resuelve client + code (por hash).
func (b *Binders) BindCode(ctx context.Context, clientID, secret, code string) (*TokenBinder, error) {
	tb, err := b.bindTokenClient(ctx, clientID, secret)
	if err != nil || code == "" {
		return tb, err
	}
	c, err := b.Store.Codes().GetByHash(ctx, tokens.SHA256Base64URL(code))
	switch {
	case err == nil:
		tb.code = c
	case !repository.IsNotFound(err):
		return nil, fmt.Errorf("lookup code: %w", err)
	}
	return tb, nil
}

// BindPassword resuelve client + user por username. La verificación del
// password se hace recién en CheckUser.
func (b *Binders) BindPassword(ctx context.Context, clientID, secret, username, plain string) (*TokenBinder, error) {
	tb, err := b.bindTokenClient(ctx, clientID, secret)
	if err != nil || username == "" {
		return tb, err
	}
	u, err := b.Store.Users().GetByUsername(ctx, username)
	switch {
	case err == nil:
		tb.user = u
		tb.plainPass = plain
	case !repository.IsNotFound(err):
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return tb, nil
}

// BindRefresh resuelve client + registro del refresh token.
func (b *Binders) BindRefresh(ctx context.Context, clientID, secret, refreshToken string) (*TokenBinder, error) {
	tb, err := b.bindTokenClient(ctx, clientID, secret)
	if err != nil || refreshToken == "" {
		return tb, err
	}
	t, err := b.Store.Tokens().GetByRefreshHash(ctx, tokens.SHA256Base64URL(refreshToken))
	switch {
	case err == nil:
		tb.refresh = t
		tb.refreshRaw = refreshToken
	case !repository.IsNotFound(err):
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	return tb, nil
}

func (b *Binders) bindTokenClient(ctx context.Context, clientID, secret string) (*TokenBinder, error) {
	c, err := lookupClient(ctx, b.Store.Clients(), clientID)
	if err != nil {
		return nil, err
	}
	return &TokenBinder{b: b, client: c, secret: secret}, nil
}

// ====================================================================================
// Guards
// ====================================================================================

func (tb *TokenBinder) CheckClientID() bool { return tb.client != nil }

func (tb *TokenBinder) CheckClientSecret() bool {
	return tb.client != nil && tb.secret != "" && tokens.Equal(tb.client.Secret, tb.secret)
}

// CheckCode: el code existe, pertenece al client, no expiró y no fue canjeado.
func (tb *TokenBinder) CheckCode() bool {
	c := tb.code
	return c != nil && tb.client != nil &&
		c.ClientID == tb.client.ID &&
		!c.Consumed() &&
		!c.Expired(tb.b.now())
}

// CheckRedirectURI compara exacto contra el redirect_uri del code.
func (tb *TokenBinder) CheckRedirectURI(redirectURI string) bool {
	return tb.code != nil && tb.code.RedirectURI == redirectURI
}

// CheckUser verifica username + password (argon2id). El resultado se memoiza.
func (tb *TokenBinder) CheckUser() bool {
	if tb.userOK != nil {
		return *tb.userOK
	}
	ok := tb.user != nil && tb.plainPass != "" && password.Verify(tb.plainPass, tb.user.PasswordHash)
	tb.userOK = &ok
	return ok
}

// CheckRefreshToken: el refresh token existe y pertenece al client.
func (tb *TokenBinder) CheckRefreshToken() bool {
	return tb.refresh != nil && tb.client != nil && tb.refresh.ClientID == tb.client.ID
}

func (tb *TokenBinder) CheckRefreshNotExpired() bool {
	return tb.refresh != nil && !tb.refresh.RefreshExpired(tb.b.now())
}

// ====================================================================================
// Mutations
// ====================================================================================

// RedeemCode consume el code (una sola vez) y emite un token para su subject y scope.
// Si otro request lo consumió primero retorna ErrRaceLost.
func (tb *TokenBinder) RedeemCode(ctx context.Context) (*Issued, error) {
	c, err := tb.b.Store.Codes().Consume(ctx, tb.code.CodeHash, tb.b.now())
	if errors.Is(err, repository.ErrConsumed) || repository.IsNotFound(err) {
		return nil, ErrRaceLost
	}
	if err != nil {
		return nil, fmt.Errorf("consume code: %w", err)
	}
	a, err := tb.b.ensureOpenID(ctx, c.ClientID, c.SubjectID)
	if err != nil {
		return nil, err
	}
	return tb.b.saveToken(ctx, c.ClientID, c.SubjectID, a.OpenID, c.Scope, true)
}

// IssueForUser emite un token para el user autenticado por password.
func (tb *TokenBinder) IssueForUser(ctx context.Context, s string) (*Issued, error) {
	a, err := tb.b.ensureOpenID(ctx, tb.client.ID, tb.user.ID)
	if err != nil {
		return nil, err
	}
	return tb.b.saveToken(ctx, tb.client.ID, tb.user.ID, a.OpenID, scope.Normalize(s), true)
}

// Refresh rota el par según la RefreshPolicy. Si el refresh token ya fue
// rotado por otro request retorna ErrRaceLost.
func (tb *TokenBinder) Refresh(ctx context.Context) (*Issued, error) {
	pair, err := tokens.GeneratePair()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	now := tb.b.now()
	in := repository.RotateInput{
		ClientID:         tb.client.ID,
		OldRefreshHash:   tb.refresh.RefreshHash,
		NewAccessHash:    pair.AccessHash,
		NewRefreshHash:   pair.RefreshHash,
		IssuedAt:         now,
		AccessExpiresAt:  now.Add(tb.b.TTL.Access),
		RefreshExpiresAt: now.Add(tb.b.TTL.Refresh),
		KeepPrevious:     !tb.b.Refresh.RevokePrevious,
	}
	refreshRaw := pair.Refresh
	if !tb.b.Refresh.RotateRefreshToken {
		in.NewRefreshHash = tb.refresh.RefreshHash
		in.RefreshExpiresAt = tb.refresh.RefreshExpiresAt
		refreshRaw = tb.refreshRaw
	}
	t, err := tb.b.Store.Tokens().Rotate(ctx, in)
	if repository.IsNotFound(err) {
		return nil, ErrRaceLost
	}
	if err != nil {
		return nil, fmt.Errorf("rotate token: %w", err)
	}
	return &Issued{
		AccessToken:  pair.Access,
		RefreshToken: refreshRaw,
		ExpiresIn:    int64(tb.b.TTL.Access.Seconds()),
		Scope:        t.Scope,
		OpenID:       t.OpenID,
	}, nil
}
