package binder

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/dropDatabas3/snsoauth/internal/oauth/scope"
	tokens "github.com/dropDatabas3/snsoauth/internal/security/token"
)

// AuthzBinder resuelve client + resource owner y la relación entre ambos.
type AuthzBinder struct {
	b      *Binders
	client *repository.Client
	userID string
	authz  *repository.Authorization
}

// BindAuthz resuelve el client y, si existe, resuelve o crea la autorización.
func (b *Binders) BindAuthz(ctx context.Context, clientID, userID string) (*AuthzBinder, error) {
	c, err := lookupClient(ctx, b.Store.Clients(), clientID)
	if err != nil {
		return nil, err
	}
	ab := &AuthzBinder{b: b, client: c, userID: userID}
	if c == nil || userID == "" {
		return ab, nil
	}
	if ab.authz, err = b.ensureOpenID(ctx, c.ID, userID); err != nil {
		return nil, err
	}
	return ab, nil
}

func (ab *AuthzBinder) CheckClientID() bool { return ab.client != nil }

func (ab *AuthzBinder) Client() *repository.Client { return ab.client }

// OpenID del user para este client.
func (ab *AuthzBinder) OpenID() string {
	if ab.authz == nil {
		return ""
	}
	return ab.authz.OpenID
}

// Consented reporta si ya hay consentimiento registrado que cubra s.
func (ab *AuthzBinder) Consented(s string) bool {
	return ab.authz != nil && ab.authz.Consented && scope.Satisfies(ab.authz.Scope, s)
}

// CheckRedirectDomain verifica que el host de redirectURI sea el dominio del
// client o un subdominio. Un client sin dominio acepta cualquier destino absoluto.
func (ab *AuthzBinder) CheckRedirectDomain(redirectURI string) bool {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return false
	}
	if ab.client == nil || ab.client.Domain == "" {
		return true
	}
	host := strings.ToLower(u.Hostname())
	domain := strings.ToLower(strings.TrimPrefix(ab.client.Domain, "."))
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// Consent registra el consentimiento del user para el scope.
// Un consentimiento vigente más amplio se conserva; el store lo decide atómicamente.
func (ab *AuthzBinder) Consent(ctx context.Context, s string) error {
	if ab.Consented(s) {
		return nil
	}
	s = scope.Normalize(s)
	now := ab.b.now()
	if err := ab.b.Store.Authorizations().MarkConsented(ctx, ab.client.ID, ab.userID, s, scope.Covering(s), now); err != nil {
		return fmt.Errorf("mark consent: %w", err)
	}
	ab.authz.Consented = true
	ab.authz.Scope = s
	ab.authz.ConsentedAt = &now
	return nil
}

// IssueCode crea (o reemplaza) el authorization code del par client+user.
func (ab *AuthzBinder) IssueCode(ctx context.Context, redirectURI, s string) (string, error) {
	raw, err := tokens.GenerateOpaqueToken(tokens.CodeBytes)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	now := ab.b.now()
	err = ab.b.Store.Codes().Save(ctx, repository.AuthorizationCode{
		CodeHash:    tokens.SHA256Base64URL(raw),
		ClientID:    ab.client.ID,
		SubjectID:   ab.userID,
		RedirectURI: redirectURI,
		Scope:       scope.Normalize(s),
		IssuedAt:    now,
		ExpiresAt:   now.Add(ab.b.TTL.Code),
	})
	if err != nil {
		return "", fmt.Errorf("save code: %w", err)
	}
	return raw, nil
}
