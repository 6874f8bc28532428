// Package csrf emite y valida tokens anti-forgery de un solo uso para la
// confirmación de consentimiento.
//
// El token es un JWT HS256 con claims {sid, jti, exp}. El jti se registra en
// cache al emitir y se consume (Take) al validar: un token solo valida una vez
// y solo para la sesión que lo pidió.
package csrf

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/cache"
	tokens "github.com/dropDatabas3/snsoauth/internal/security/token"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken cubre token ausente, mal firmado, expirado, de otra sesión o ya usado.
var ErrInvalidToken = errors.New("csrf: invalid token")

const purpose = "oauth_consent"

type claims struct {
	SessionID string `json:"sid"`
	Purpose   string `json:"pur"`
	jwt.RegisteredClaims
}

// Manager emite y valida tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	cache  cache.Client
	now    func() time.Time
}

// NewManager crea un Manager. Con secret vacío se genera uno aleatorio
// (los tokens no sobreviven a un reinicio).
func NewManager(c cache.Client, secret string, ttl time.Duration) (*Manager, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("csrf: generate secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Manager{secret: key, ttl: ttl, cache: c, now: time.Now}, nil
}

func jtiKey(jti string) string { return "csrf:" + jti }

// Issue emite un token bindeado a sessionID.
func (m *Manager) Issue(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrInvalidToken
	}
	jti, err := tokens.GenerateOpaqueToken(16)
	if err != nil {
		return "", fmt.Errorf("csrf: generate jti: %w", err)
	}
	now := m.now()
	tk := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SessionID: sessionID,
		Purpose:   purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	signed, err := tk.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("csrf: sign: %w", err)
	}
	if err := m.cache.Set(ctx, jtiKey(jti), sessionID, m.ttl); err != nil {
		return "", fmt.Errorf("csrf: store jti: %w", err)
	}
	return signed, nil
}

// Validate verifica firma, expiración, binding a sessionID y lo consume.
// Errores de infraestructura (cache caída) se devuelven envueltos, no como ErrInvalidToken.
func (m *Manager) Validate(ctx context.Context, sessionID, token string) error {
	if token == "" || sessionID == "" {
		return ErrInvalidToken
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return ErrInvalidToken
	}
	if c.Purpose != purpose || c.ID == "" || !tokens.Equal(c.SessionID, sessionID) {
		return ErrInvalidToken
	}
	bound, err := m.cache.Take(ctx, jtiKey(c.ID))
	if cache.IsNotFound(err) {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("csrf: consume jti: %w", err)
	}
	if !tokens.Equal(bound, sessionID) {
		return ErrInvalidToken
	}
	return nil
}

// Verify es Validate con el rechazo como bool: (false, nil) para un token
// inválido, error solo para fallas de infraestructura.
func (m *Manager) Verify(ctx context.Context, sessionID, token string) (bool, error) {
	err := m.Validate(ctx, sessionID, token)
	if errors.Is(err, ErrInvalidToken) {
		return false, nil
	}
	return err == nil, err
}
