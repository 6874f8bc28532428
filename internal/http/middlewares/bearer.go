package middlewares

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/snsoauth/internal/http/response"
	"github.com/dropDatabas3/snsoauth/internal/oauth/grant"
)

// Estilos de transporte del access token.
const (
	TokenInQuery  = "query"
	TokenInHeader = "header"
	TokenInBody   = "body"
	TokenAuto     = "auto"
)

const maxBearerBody = 64 << 10

// WithBearer extrae access_token (según style) y openid y los deja en el
// contexto. Sin token responde invalid_request 400.
func WithBearer(style string) Middleware {
	style = strings.ToLower(strings.TrimSpace(style))
	if style == "" {
		style = TokenInQuery
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if style == TokenInBody || style == TokenAuto {
				r.Body = http.MaxBytesReader(w, r.Body, maxBearerBody)
				_ = r.ParseForm()
			}
			b := Bearer{
				AccessToken: bearerToken(r, style),
				OpenID:      strings.TrimSpace(r.URL.Query().Get("openid")),
			}
			if b.OpenID == "" && r.PostForm != nil {
				b.OpenID = strings.TrimSpace(r.PostForm.Get("openid"))
			}
			if b.AccessToken == "" {
				response.WriteProblem(w, &grant.Problem{
					Code:        grant.ErrInvalidRequest,
					Description: "access_token is required",
					Status:      http.StatusBadRequest,
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(setBearer(r.Context(), b)))
		})
	}
}

func bearerToken(r *http.Request, style string) string {
	switch style {
	case TokenInHeader:
		return fromAuthorization(r)
	case TokenInBody:
		if r.PostForm == nil {
			return ""
		}
		return strings.TrimSpace(r.PostForm.Get("access_token"))
	case TokenAuto:
		if t := fromAuthorization(r); t != "" {
			return t
		}
		if t := strings.TrimSpace(r.URL.Query().Get("access_token")); t != "" {
			return t
		}
		if r.PostForm != nil {
			return strings.TrimSpace(r.PostForm.Get("access_token"))
		}
		return ""
	default:
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
}

func fromAuthorization(r *http.Request) string {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(ah) < 7 || !strings.EqualFold(ah[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(ah[7:])
}
