package grant

import (
	"net/http"
	"net/url"
	"strings"
)

// Grant types.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantPassword          = "password"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
)

// Response types.
const (
	ResponseCode  = "code"
	ResponseToken = "token"
)

// TokenRequest es un request ya parseado de cualquiera de los token endpoints.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	Username     string
	Password     string
	RefreshToken string
	Scope        string
}

// ParseTokenRequest aplica la etapa de parseo común a los token endpoints.
// Las credenciales del client salen del form o, si faltan, de HTTP Basic.
// Los parámetros propios de cada grant se validan después, en el Dispatcher.
func ParseTokenRequest(form url.Values, basicID, basicSecret string) (TokenRequest, *Problem) {
	req := TokenRequest{
		GrantType:    strings.TrimSpace(form.Get("grant_type")),
		ClientID:     strings.TrimSpace(form.Get("client_id")),
		ClientSecret: form.Get("client_secret"),
		Code:         form.Get("code"),
		RedirectURI:  form.Get("redirect_uri"),
		Username:     form.Get("username"),
		Password:     form.Get("password"),
		RefreshToken: form.Get("refresh_token"),
		Scope:        form.Get("scope"),
	}
	if req.ClientID == "" {
		req.ClientID = basicID
	}
	if req.ClientSecret == "" {
		req.ClientSecret = basicSecret
	}

	if req.GrantType == "" {
		return req, badRequest(ErrInvalidRequest, "missing grant_type parameter")
	}
	switch req.GrantType {
	case GrantAuthorizationCode, GrantPassword, GrantRefreshToken, GrantClientCredentials:
	default:
		return req, badRequest(ErrInvalidGrant, "malformed grant_type")
	}
	if req.ClientID == "" {
		return req, badRequest(ErrInvalidRequest, "missing client_id parameter")
	}
	return req, nil
}

// AuthorizeRequest es un request al authorize endpoint. SubjectID, SessionID y
// RequestURL los completa el controller a partir de la sesión.
type AuthorizeRequest struct {
	Method       string
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string
	Authorized   bool
	CSRFToken    string

	SubjectID  string
	SessionID  string
	RequestURL string
}

// ParseAuthorizeRequest aplica la etapa de parseo del authorize endpoint.
func ParseAuthorizeRequest(method string, params url.Values) (AuthorizeRequest, *Problem) {
	req := AuthorizeRequest{
		Method:       method,
		ResponseType: strings.ToLower(strings.TrimSpace(params.Get("response_type"))),
		ClientID:     strings.TrimSpace(params.Get("client_id")),
		RedirectURI:  strings.TrimSpace(params.Get("redirect_uri")),
		Scope:        params.Get("scope"),
		State:        params.Get("state"),
		Authorized:   parseBool(params.Get("authorized")),
		CSRFToken:    params.Get("csrf_token"),
	}
	if req.ResponseType == "" {
		return req, badRequest(ErrInvalidRequest, "missing response_type parameter")
	}
	if req.ClientID == "" {
		return req, badRequest(ErrInvalidRequest, "missing client_id parameter")
	}
	if req.ResponseType != ResponseCode && req.ResponseType != ResponseToken {
		return req, badRequest(ErrUnsupportedResponseType, "")
	}
	return req, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// IsConfirmation reporta si el request es la confirmación (POST) del consentimiento.
func (r AuthorizeRequest) IsConfirmation() bool { return r.Method == http.MethodPost }

// ResourceKind selecciona qué tipo de token acepta un recurso.
type ResourceKind uint8

const (
	// ResourceSubject: token de usuario + openid (rutas /oauth2/sns/*).
	ResourceSubject ResourceKind = iota
	// ResourceClient: token de client_credentials (/oauth2/auth).
	ResourceClient
)

// ResourceRequest es un bearer presentado a un resource server.
type ResourceRequest struct {
	Kind          ResourceKind
	AccessToken   string
	OpenID        string
	RequiredScope string
}
