// Package scope valida el scope pedido contra el conjunto cerrado de capacidades
// y decide cuándo hace falta consentimiento interactivo.
package scope

import (
	"fmt"
	"strings"
)

// Scopes soportados.
const (
	Base     = "snsapi_base"     // openid silencioso
	UserInfo = "snsapi_userinfo" // perfil completo, requiere consentimiento
)

var known = map[string]int{
	Base:     1,
	UserInfo: 2,
}

// Normalize trimea y pasa a minúsculas.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Verified reporta si s es un miembro no vacío del conjunto cerrado.
// Sin semántica de unión: "snsapi_base snsapi_userinfo" es inválido.
func Verified(s string) bool {
	_, ok := known[Normalize(s)]
	return ok
}

// RequiresConsent reporta si el scope requiere consentimiento explícito del usuario.
func RequiresConsent(s string) bool {
	return Normalize(s) == UserInfo
}

// Satisfies reporta si un token con scope granted alcanza para un recurso que
// requiere required. snsapi_userinfo cubre snsapi_base. required vacío siempre pasa.
func Satisfies(granted, required string) bool {
	if strings.TrimSpace(required) == "" {
		return true
	}
	g, ok := known[Normalize(granted)]
	if !ok {
		return false
	}
	r, ok := known[Normalize(required)]
	if !ok {
		return false
	}
	return g >= r
}

// Covering devuelve los scopes que satisfacen required, del más angosto al más amplio.
func Covering(required string) []string {
	r, ok := known[Normalize(required)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(known))
	for _, s := range []string{Base, UserInfo} {
		if known[s] >= r {
			out = append(out, s)
		}
	}
	return out
}

// ====================================================================================
// Consent policy
// ====================================================================================

// Policy decide si el GET del authorize endpoint debe mostrar la vista de consentimiento.
type Policy string

const (
	// ScopeOrPrior: se omite el prompt si el scope no lo requiere O si ya hay consentimiento.
	ScopeOrPrior Policy = "scope_or_prior"
	// ScopeOnly: se omite solo si el scope no lo requiere.
	ScopeOnly Policy = "scope_only"
	// PriorOnly: se omite solo si ya hay consentimiento registrado.
	PriorOnly Policy = "prior_only"
)

// ParsePolicy valida el nombre de la política. Vacío => ScopeOrPrior.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(Normalize(s)); p {
	case "":
		return ScopeOrPrior, nil
	case ScopeOrPrior, ScopeOnly, PriorOnly:
		return p, nil
	default:
		return "", fmt.Errorf("scope: unknown consent policy %q", s)
	}
}

// NeedsPrompt reporta si hay que renderizar la vista de consentimiento.
func (p Policy) NeedsPrompt(s string, consented bool) bool {
	requires := RequiresConsent(s)
	switch p {
	case ScopeOnly:
		return requires
	case PriorOnly:
		return !consented
	default:
		return requires && !consented
	}
}
