package grant

import (
	"context"
	"time"
)

// ClientCredentials: POST /oauth2/token.
//
//	client desconocido  → invalid_client 400
//	secret incorrecto   → unauthorized_client 401
//	otro grant_type     → unsupported_grant_type 400
//	ok                  → access token sin subject ni refresh token
func (d *Dispatcher) ClientCredentials(ctx context.Context, req TokenRequest) (Outcome, error) {
	const flow = FlowClientCredentials
	start := time.Now()

	cb, err := d.binders.BindClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return d.fail(ctx, flow, err)
	}
	if !cb.CheckClientID() {
		return d.finish(ctx, flow, start, Reject(badRequest(ErrInvalidClient, "")))
	}
	if !cb.CheckClientSecret() {
		return d.finish(ctx, flow, start, Reject(unauthorized(ErrUnauthorizedClient, "")))
	}
	if req.GrantType != GrantClientCredentials {
		return d.finish(ctx, flow, start, Reject(badRequest(ErrUnsupportedGrantType, "")))
	}

	iss, err := cb.IssueToken(ctx)
	if err != nil {
		return d.fail(ctx, flow, err)
	}
	return d.finish(ctx, flow, start, tokenOutcome(iss))
}
