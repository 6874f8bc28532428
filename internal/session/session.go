// Package session implementa sesiones de resource owner sobre cache.Client.
//
// Cookie "sid" (opaca) → key "sess:" + SHA256(sid) → payload JSON.
// El valor crudo nunca se persiste.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/cache"
	tokens "github.com/dropDatabas3/snsoauth/internal/security/token"
)

// ErrNoSession indica que el request no trae una sesión válida.
var ErrNoSession = errors.New("session: no active session")

// Payload es lo que se guarda por sesión.
type Payload struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session es una sesión resuelta para el request actual.
// ID es el hash del sid: estable, no secreto, apto para bindear tokens anti-forgery.
type Session struct {
	ID     string
	UserID string
}

// Config configura cookie y TTL.
type Config struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
	SameSite   string // lax | strict | none
	Domain     string
}

// Manager crea, resuelve y destruye sesiones.
type Manager struct {
	cache cache.Client
	cfg   Config
	now   func() time.Time
}

// NewManager crea un Manager.
func NewManager(c cache.Client, cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "sid"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &Manager{cache: c, cfg: cfg, now: time.Now}
}

func storeKey(hashedID string) string { return "sess:" + hashedID }

// Login crea una sesión para userID y setea la cookie.
func (m *Manager) Login(ctx context.Context, w http.ResponseWriter, userID string) (*Session, error) {
	raw, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, fmt.Errorf("session: generate id: %w", err)
	}
	now := m.now().UTC()
	payload, err := json.Marshal(Payload{UserID: userID, CreatedAt: now, ExpiresAt: now.Add(m.cfg.TTL)})
	if err != nil {
		return nil, err
	}
	id := tokens.SHA256Base64URL(raw)
	if err := m.cache.Set(ctx, storeKey(id), string(payload), m.cfg.TTL); err != nil {
		return nil, fmt.Errorf("session: store: %w", err)
	}
	http.SetCookie(w, m.cookie(raw, int(m.cfg.TTL.Seconds())))
	return &Session{ID: id, UserID: userID}, nil
}

// Current resuelve la sesión del request. Retorna ErrNoSession si no hay o expiró.
func (m *Manager) Current(r *http.Request) (*Session, error) {
	ck, err := r.Cookie(m.cfg.CookieName)
	if err != nil || strings.TrimSpace(ck.Value) == "" {
		return nil, ErrNoSession
	}
	id := tokens.SHA256Base64URL(ck.Value)
	raw, err := m.cache.Get(r.Context(), storeKey(id))
	if cache.IsNotFound(err) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.UserID == "" {
		return nil, ErrNoSession
	}
	if !m.now().Before(p.ExpiresAt) {
		return nil, ErrNoSession
	}
	return &Session{ID: id, UserID: p.UserID}, nil
}

// Subject devuelve el user id de la sesión actual.
func (m *Manager) Subject(r *http.Request) (string, error) {
	s, err := m.Current(r)
	if err != nil {
		return "", err
	}
	return s.UserID, nil
}

// Logout destruye la sesión (si existe) y expira la cookie.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	if ck, err := r.Cookie(m.cfg.CookieName); err == nil && ck.Value != "" {
		if err := m.cache.Delete(r.Context(), storeKey(tokens.SHA256Base64URL(ck.Value))); err != nil {
			return fmt.Errorf("session: delete: %w", err)
		}
	}
	http.SetCookie(w, m.cookie("", -1))
	return nil
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     "/",
		Domain:   m.cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: parseSameSite(m.cfg.SameSite),
	}
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
