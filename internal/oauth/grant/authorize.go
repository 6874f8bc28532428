package grant

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/oauth/scope"
)

// Authorize: GET|POST /oauth2/sns/authorize.
//
// Los errores se muestran como vista (Interactive) y nunca se redirigen: el
// redirect_uri no está registrado, solo se conoce el dominio del client.
func (d *Dispatcher) Authorize(ctx context.Context, req AuthorizeRequest) (Outcome, error) {
	const flow = FlowAuthorize
	start := time.Now()
	done := func(o Outcome) (Outcome, error) { return d.finish(ctx, flow, start, o) }

	if req.RedirectURI == "" {
		return done(RejectView(badRequest(ErrInvalidRedirectURI, "")))
	}
	if req.SubjectID == "" {
		return done(d.loginRequired(req))
	}

	ab, err := d.binders.BindAuthz(ctx, req.ClientID, req.SubjectID)
	if err != nil {
		return d.fail(ctx, flow, err)
	}
	if !ab.CheckClientID() {
		return done(RejectView(badRequest(ErrInvalidClient, "")))
	}
	if d.cfg.EnforceRedirectDomain && !ab.CheckRedirectDomain(req.RedirectURI) {
		return done(RejectView(badRequest(ErrInvalidRedirectURI, "redirect_uri outside client domain")))
	}
	if !scope.Verified(req.Scope) {
		return done(RejectView(badRequest(ErrInvalidScope, "")))
	}
	if req.ResponseType != ResponseCode {
		return done(RejectView(badRequest(ErrUnsupportedResponseType, "")))
	}
	s := scope.Normalize(req.Scope)

	if req.IsConfirmation() {
		ok, err := d.forgery.Verify(ctx, req.SessionID, req.CSRFToken)
		if err != nil {
			return d.fail(ctx, flow, err)
		}
		if !ok {
			// terminal: JSON, sin vista ni redirect
			return done(Reject(badRequest(ErrInvalidRequest, "invalid csrf_token")))
		}
		if !req.Authorized {
			return done(redirectOutcome(req.RedirectURI, stateOnly(req.State)))
		}
		if err := ab.Consent(ctx, s); err != nil {
			return d.fail(ctx, flow, err)
		}
		return d.issueCode(ctx, flow, start, ab, req, s)
	}

	if d.cfg.ConsentPolicy.NeedsPrompt(s, ab.Consented(s)) {
		tok, err := d.forgery.Issue(ctx, req.SessionID)
		if err != nil {
			return d.fail(ctx, flow, err)
		}
		c := ab.Client()
		return done(Outcome{
			Kind:   KindConsent,
			Status: http.StatusOK,
			Consent: &Consent{
				ClientID:     c.ID,
				ClientTitle:  c.Title,
				ClientIcon:   c.IconURL,
				ClientDomain: c.Domain,
				ResponseType: req.ResponseType,
				RedirectURI:  req.RedirectURI,
				Scope:        s,
				State:        req.State,
				CSRFToken:    tok,
			},
		})
	}
	return d.issueCode(ctx, flow, start, ab, req, s)
}

type codeIssuer interface {
	IssueCode(ctx context.Context, redirectURI, s string) (string, error)
}

func (d *Dispatcher) issueCode(ctx context.Context, flow string, start time.Time, ab codeIssuer, req AuthorizeRequest, s string) (Outcome, error) {
	code, err := ab.IssueCode(ctx, req.RedirectURI, s)
	if err != nil {
		return d.fail(ctx, flow, err)
	}
	params := stateOnly(req.State)
	params.Set("code", code)
	return d.finish(ctx, flow, start, redirectOutcome(req.RedirectURI, params))
}

func (d *Dispatcher) loginRequired(req AuthorizeRequest) Outcome {
	if d.cfg.LoginURL == "" {
		return RejectView(unauthorized(ErrLoginRequired, ""))
	}
	params := url.Values{}
	if req.RequestURL != "" {
		params.Set("return_to", req.RequestURL)
	}
	return redirectOutcome(d.cfg.LoginURL, params)
}

func stateOnly(state string) url.Values {
	v := url.Values{}
	if state != "" {
		v.Set("state", state)
	}
	return v
}
