package grant

import (
	"net/http"
	"net/url"

	"github.com/dropDatabas3/snsoauth/internal/oauth/binder"
	"github.com/dropDatabas3/snsoauth/internal/oauth/userinfo"
)

// Kind clasifica un Outcome para el Response Builder.
type Kind uint8

const (
	KindProblem Kind = iota
	KindToken
	KindRedirect
	KindConsent
	KindOK
	KindProfile
)

func (k Kind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindRedirect:
		return "redirect"
	case KindConsent:
		return "consent"
	case KindOK:
		return "ok"
	case KindProfile:
		return "profile"
	default:
		return "problem"
	}
}

// Redirect es un 302 hacia Target con Params agregados a su query.
type Redirect struct {
	Target string
	Params url.Values
}

// Consent son los datos de la vista de consentimiento (PENDING_CONSENT).
type Consent struct {
	ClientID     string
	ClientTitle  string
	ClientIcon   string
	ClientDomain string
	ResponseType string
	RedirectURI  string
	Scope        string
	State        string
	CSRFToken    string
}

// Outcome es la decisión del Dispatcher. El Response Builder solo la serializa.
type Outcome struct {
	Kind   Kind
	Status int

	Problem *Problem
	// Interactive: el problema se muestra como vista de error (authorize
	// endpoint) y nunca se redirige al client.
	Interactive bool

	Token    *binder.Issued
	Redirect *Redirect
	Consent  *Consent
	Profile  *userinfo.Profile
}

// Reject envuelve un Problem como respuesta JSON.
func Reject(p *Problem) Outcome {
	return Outcome{Kind: KindProblem, Status: p.Status, Problem: p}
}

// RejectView envuelve un Problem como vista de error del authorize endpoint.
func RejectView(p *Problem) Outcome {
	return Outcome{Kind: KindProblem, Status: p.Status, Problem: p, Interactive: true}
}

func tokenOutcome(iss *binder.Issued) Outcome {
	return Outcome{Kind: KindToken, Status: http.StatusOK, Token: iss}
}

func redirectOutcome(target string, params url.Values) Outcome {
	return Outcome{Kind: KindRedirect, Status: http.StatusFound, Redirect: &Redirect{Target: target, Params: params}}
}

// result es la etiqueta de métricas del outcome.
func (o Outcome) result() string {
	if o.Problem != nil {
		return o.Problem.Code
	}
	return o.Kind.String()
}
