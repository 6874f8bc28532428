package grant

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/oauth/binder"
)

// RefreshToken: POST /oauth2/sns/refresh_token.
//
//	client desconocido                → invalid_client 400
//	otro grant_type                   → unsupported_grant_type 400
//	refresh inexistente/ajeno/rotado  → invalid_token 400
//	refresh expirado                  → expired_token 400
//
// El endpoint no exige client_secret.
func (d *Dispatcher) RefreshToken(ctx context.Context, req TokenRequest) (Outcome, error) {
	const flow = FlowRefresh
	start := time.Now()
	done := func(o Outcome) (Outcome, error) { return d.finish(ctx, flow, start, o) }

	tb, err := d.binders.BindRefresh(ctx, req.ClientID, req.ClientSecret, req.RefreshToken)
	if err != nil {
		return d.fail(ctx, flow, err)
	}
	if !tb.CheckClientID() {
		return done(Reject(badRequest(ErrInvalidClient, "")))
	}
	if req.GrantType != GrantRefreshToken {
		return done(Reject(badRequest(ErrUnsupportedGrantType, "")))
	}
	if req.RefreshToken == "" {
		return done(Reject(badRequest(ErrInvalidRequest, "missing refresh_token parameter")))
	}
	if !tb.CheckRefreshToken() {
		return done(Reject(badRequest(ErrInvalidToken, "")))
	}
	if !tb.CheckRefreshNotExpired() {
		return done(Reject(badRequest(ErrExpiredToken, "")))
	}

	iss, err := tb.Refresh(ctx)
	if errors.Is(err, binder.ErrRaceLost) {
		return done(Reject(badRequest(ErrInvalidToken, "")))
	}
	if err != nil {
		return d.fail(ctx, flow, err)
	}
	return done(tokenOutcome(iss))
}
