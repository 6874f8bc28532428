package grant

import "net/http"

// Códigos de error OAuth2 (RFC 6749 §5.2 / RFC 6750 §3.1 + extensiones SNS).
const (
	ErrInvalidRequest          = "invalid_request"
	ErrInvalidClient           = "invalid_client"
	ErrUnauthorizedClient      = "unauthorized_client"
	ErrUnsupportedGrantType    = "unsupported_grant_type"
	ErrInvalidGrant            = "invalid_grant"
	ErrInvalidScope            = "invalid_scope"
	ErrUnsupportedResponseType = "unsupported_response_type"
	ErrInvalidToken            = "invalid_token"
	ErrExpiredToken            = "expired_token"
	ErrInsufficientScope       = "insufficient_scope"
	ErrInvalidRedirectURI      = "invalid_redirect_uri"
	ErrRedirectURIMismatch     = "redirect_uri_mismatch"
	ErrInvalidUser             = "invalid_user"
	ErrLoginRequired           = "login_required"
	ErrServerError             = "server_error"
)

// Problem es el rechazo de un guard: código OAuth + status HTTP.
type Problem struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Status      int    `json:"-"`
}

func (p *Problem) Error() string {
	if p.Description == "" {
		return p.Code
	}
	return p.Code + ": " + p.Description
}

func badRequest(code, desc string) *Problem {
	return &Problem{Code: code, Description: desc, Status: http.StatusBadRequest}
}

func unauthorized(code, desc string) *Problem {
	return &Problem{Code: code, Description: desc, Status: http.StatusUnauthorized}
}

// ServerError es el problema genérico para fallas internas; nunca lleva detalle.
func ServerError() *Problem {
	return &Problem{Code: ErrServerError, Status: http.StatusInternalServerError}
}
