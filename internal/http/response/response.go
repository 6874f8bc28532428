// Package response serializa un grant.Outcome. No decide nada: el status, el
// cuerpo y el destino del redirect ya vienen en el Outcome.
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/dropDatabas3/snsoauth/internal/oauth/grant"
	"github.com/dropDatabas3/snsoauth/internal/observability/logger"
)

// TokenType de todos los tokens emitidos.
const TokenType = "bearer"

// viewCSP permite estilos inline e íconos remotos; nada de scripts.
// form-action también aplica al redirect que sigue al submit, por eso la vista
// de consentimiento suma el origen del redirect_uri.
func viewCSP(formOrigins ...string) string {
	action := "'self'"
	for _, o := range formOrigins {
		if o != "" {
			action += " " + o
		}
	}
	return "default-src 'none'; img-src https: data:; style-src 'unsafe-inline'; form-action " + action + "; frame-ancestors 'none'; base-uri 'none'"
}

// origin devuelve scheme://host de raw, o "" si no es una URL absoluta.
func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	if strings.ContainsAny(u.Host, " ;,'") {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + u.Host
}

type tokenBody struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	OpenID       string `json:"openid,omitempty"`
}

// Builder escribe outcomes sobre http.ResponseWriter.
type Builder struct {
	Views *Views
}

// New crea un Builder. Sin views usa las embebidas, posteando a /oauth2/sns/authorize.
func New(views *Views) *Builder {
	if views == nil {
		views = MustLoadDefaultViews("/oauth2/sns/authorize")
	}
	return &Builder{Views: views}
}

// Write serializa out.
func (b *Builder) Write(w http.ResponseWriter, r *http.Request, out grant.Outcome) {
	switch out.Kind {
	case grant.KindToken:
		t := out.Token
		WriteJSON(w, out.Status, tokenBody{
			AccessToken:  t.AccessToken,
			TokenType:    TokenType,
			ExpiresIn:    t.ExpiresIn,
			RefreshToken: t.RefreshToken,
			Scope:        t.Scope,
			OpenID:       t.OpenID,
		})
	case grant.KindRedirect:
		loc, err := Location(out.Redirect.Target, out.Redirect.Params)
		if err != nil {
			logger.From(r.Context()).Error("build redirect location", logger.Err(err))
			WriteProblem(w, grant.ServerError())
			return
		}
		noStore(w)
		w.Header().Set("Location", loc)
		w.WriteHeader(out.Status)
	case grant.KindConsent:
		c := out.Consent
		b.render(w, r, out.Status, b.Views.consent, viewCSP(origin(c.RedirectURI)), consentData{Consent: *c, Action: b.Views.Action})
	case grant.KindOK:
		WriteJSON(w, out.Status, map[string]string{"error": "ok"})
	case grant.KindProfile:
		WriteJSON(w, out.Status, out.Profile)
	default:
		if out.Interactive && !wantsJSON(r) {
			b.render(w, r, out.Status, b.Views.errView, viewCSP(), out.Problem)
			return
		}
		WriteProblem(w, out.Problem)
	}
}

type consentData struct {
	grant.Consent
	Action string
}

func (b *Builder) render(w http.ResponseWriter, r *http.Request, status int, tpl *template.Template, csp string, data any) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		logger.From(r.Context()).Error("render view", logger.Err(err))
		WriteProblem(w, grant.ServerError())
		return
	}
	noStore(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", csp)
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// WriteProblem escribe {error, error_description?} con el status del Problem.
func WriteProblem(w http.ResponseWriter, p *grant.Problem) {
	if p == nil {
		p = grant.ServerError()
	}
	WriteJSON(w, p.Status, p)
}

// WriteJSON escribe v como JSON con los headers anti-cache de RFC 6749 §5.1.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	noStore(w)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// Location agrega params a la query de target, conservando la query existente.
func Location(target string, params url.Values) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("response: invalid redirect target: %w", err)
	}
	if len(params) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	for k, vs := range params {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func wantsJSON(r *http.Request) bool {
	accept := strings.ToLower(r.Header.Get("Accept"))
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
