package grant

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/oauth/binder"
	"github.com/dropDatabas3/snsoauth/internal/oauth/scope"
)

// AccessToken: POST /oauth2/sns/access_token. Primero se decide por grant_type;
// los grant types que el endpoint no atiende se rechazan sin mirar el client.
func (d *Dispatcher) AccessToken(ctx context.Context, req TokenRequest) (Outcome, error) {
	switch req.GrantType {
	case GrantAuthorizationCode:
		return d.exchangeCode(ctx, req)
	case GrantPassword:
		return d.exchangePassword(ctx, req)
	default:
		return d.finish(ctx, FlowAccessToken, time.Now(), Reject(badRequest(ErrUnsupportedGrantType, "")))
	}
}

// exchangeCode:
//
//	client desconocido             → invalid_client 400
//	secret incorrecto              → unauthorized_client 401
//	code inválido/ajeno/usado      → invalid_grant 400
//	redirect_uri distinto          → redirect_uri_mismatch 400
//	carrera de canje perdida       → invalid_grant 400
func (d *Dispatcher) exchangeCode(ctx context.Context, req TokenRequest) (Outcome, error) {
	const flow = FlowAuthorizationCode
	start := time.Now()
	done := func(o Outcome) (Outcome, error) { return d.finish(ctx, flow, start, o) }

	if req.Code == "" {
		return done(Reject(badRequest(ErrInvalidRequest, "missing code parameter")))
	}
	if req.RedirectURI == "" {
		return done(Reject(badRequest(ErrInvalidRequest, "missing redirect_uri parameter")))
	}

	tb, err := d.binders.BindCode(ctx, req.ClientID, req.ClientSecret, req.Code)
	if err != nil {
		return d.fail(ctx, flow, err)
	}
	if !tb.CheckClientID() {
		return done(Reject(badRequest(ErrInvalidClient, "")))
	}
	if !tb.CheckClientSecret() {
		return done(Reject(unauthorized(ErrUnauthorizedClient, "")))
	}
	if !tb.CheckCode() {
		return done(Reject(badRequest(ErrInvalidGrant, "")))
	}
	if !tb.CheckRedirectURI(req.RedirectURI) {
		return done(Reject(badRequest(ErrRedirectURIMismatch, "")))
	}

	iss, err := tb.RedeemCode(ctx)
	if errors.Is(err, binder.ErrRaceLost) {
		return done(Reject(badRequest(ErrInvalidGrant, "")))
	}
	if err != nil {
		return d.fail(ctx, flow, err)
	}
	return done(tokenOutcome(iss))
}

// exchangePassword:
//
//	scope inválido        → invalid_scope 400
//	client desconocido    → invalid_client 400
//	secret incorrecto     → unauthorized_client 401
//	credenciales inválidas→ invalid_user 400
func (d *Dispatcher) exchangePassword(ctx context.Context, req TokenRequest) (Outcome, error) {
	const flow = FlowPassword
	start := time.Now()
	done := func(o Outcome) (Outcome, error) { return d.finish(ctx, flow, start, o) }

	if req.Username == "" || req.Password == "" {
		return done(Reject(badRequest(ErrInvalidRequest, "missing username or password parameter")))
	}
	if !scope.Verified(req.Scope) {
		return done(Reject(badRequest(ErrInvalidScope, "")))
	}

	tb, err := d.binders.BindPassword(ctx, req.ClientID, req.ClientSecret, req.Username, req.Password)
	if err != nil {
		return d.fail(ctx, flow, err)
	}
	if !tb.CheckClientID() {
		return done(Reject(badRequest(ErrInvalidClient, "")))
	}
	if !tb.CheckClientSecret() {
		return done(Reject(unauthorized(ErrUnauthorizedClient, "")))
	}
	if !tb.CheckUser() {
		return done(Reject(badRequest(ErrInvalidUser, "")))
	}

	iss, err := tb.IssueForUser(ctx, req.Scope)
	if err != nil {
		return d.fail(ctx, flow, err)
	}
	return done(tokenOutcome(iss))
}
