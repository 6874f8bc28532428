package grant

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
)

// checkResource corre los guards del bearer. Devuelve el registro del token si
// pasa; si no, el Outcome de rechazo.
//
//	access_token ausente         → invalid_request 400
//	openid ausente (sujeto)      → invalid_user 401
//	token desconocido / ajeno    → invalid_token 401
//	expirado                     → expired_token 401
//	scope insuficiente           → insufficient_scope 401
func (d *Dispatcher) checkResource(ctx context.Context, req ResourceRequest) (*repository.AccessToken, *Outcome, error) {
	reject := func(p *Problem) (*repository.AccessToken, *Outcome, error) {
		o := Reject(p)
		return nil, &o, nil
	}
	if req.AccessToken == "" {
		return reject(badRequest(ErrInvalidRequest, "missing access_token"))
	}
	if req.Kind == ResourceSubject && req.OpenID == "" {
		return reject(unauthorized(ErrInvalidUser, "missing openid"))
	}

	rb, err := d.binders.BindResource(ctx, req.AccessToken)
	if err != nil {
		return nil, nil, err
	}
	if !rb.CheckToken() {
		return reject(unauthorized(ErrInvalidToken, ""))
	}
	switch req.Kind {
	case ResourceSubject:
		if !rb.CheckSubject(req.OpenID) {
			return reject(unauthorized(ErrInvalidToken, ""))
		}
	case ResourceClient:
		if !rb.CheckClientToken() {
			return reject(unauthorized(ErrInvalidToken, ""))
		}
	}
	if !rb.CheckNotExpired() {
		return reject(unauthorized(ErrExpiredToken, ""))
	}
	if !rb.CheckScope(req.RequiredScope) {
		return reject(unauthorized(ErrInsufficientScope, ""))
	}
	return rb.Token(), nil, nil
}

// Auth: GET /oauth2/sns/auth y /oauth2/auth. Éxito => 200 {"error":"ok"}.
func (d *Dispatcher) Auth(ctx context.Context, req ResourceRequest) (Outcome, error) {
	start := time.Now()
	_, rejected, err := d.checkResource(ctx, req)
	if err != nil {
		return d.fail(ctx, FlowResource, err)
	}
	if rejected != nil {
		return d.finish(ctx, FlowResource, start, *rejected)
	}
	return d.finish(ctx, FlowResource, start, Outcome{Kind: KindOK, Status: http.StatusOK})
}

// UserInfo: GET /oauth2/sns/userinfo. Cualquier falla del adapter => invalid_user 400.
func (d *Dispatcher) UserInfo(ctx context.Context, req ResourceRequest) (Outcome, error) {
	start := time.Now()
	tok, rejected, err := d.checkResource(ctx, req)
	if err != nil {
		return d.fail(ctx, FlowResource, err)
	}
	if rejected != nil {
		return d.finish(ctx, FlowResource, start, *rejected)
	}

	p, err := d.userinfo.UserInfo(ctx, tok.SubjectID)
	if err != nil {
		logger.From(ctx).Warn("userinfo adapter failed",
			logger.ClientID(tok.ClientID), logger.OpenID(tok.OpenID), logger.Err(err))
		return d.finish(ctx, FlowResource, start, Reject(badRequest(ErrInvalidUser, "")))
	}
	p.OpenID = tok.OpenID
	return d.finish(ctx, FlowResource, start, Outcome{Kind: KindProfile, Status: http.StatusOK, Profile: p})
}
