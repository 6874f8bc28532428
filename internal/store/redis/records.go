package redis

import (
	"time"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
)

// Los timestamps viajan como strings RFC3339 para que los scripts Lua
// (cjson) puedan reescribir el JSON sin perder precisión.

type clientRecord struct {
	ID        string    `json:"id"`
	Secret    string    `json:"secret"`
	Title     string    `json:"title,omitempty"`
	IconURL   string    `json:"icon_url,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (r clientRecord) domain() *repository.Client {
	return &repository.Client{ID: r.ID, Secret: r.Secret, Title: r.Title, IconURL: r.IconURL, Domain: r.Domain, CreatedAt: r.CreatedAt}
}

type userRecord struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Nickname     string    `json:"nickname,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	Email        string    `json:"email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r userRecord) domain() *repository.User {
	return &repository.User{
		ID: r.ID, Username: r.Username, PasswordHash: r.PasswordHash,
		Nickname: r.Nickname, AvatarURL: r.AvatarURL, Email: r.Email, CreatedAt: r.CreatedAt,
	}
}

type authzRecord struct {
	ClientID    string     `json:"client_id"`
	UserID      string     `json:"user_id"`
	OpenID      string     `json:"openid"`
	Scope       string     `json:"scope,omitempty"`
	Consented   bool       `json:"consented"`
	ConsentedAt *time.Time `json:"consented_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (r authzRecord) domain() *repository.Authorization {
	return &repository.Authorization{
		ClientID: r.ClientID, UserID: r.UserID, OpenID: r.OpenID, Scope: r.Scope,
		Consented: r.Consented, ConsentedAt: r.ConsentedAt, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type codeRecord struct {
	CodeHash    string     `json:"code_hash"`
	ClientID    string     `json:"client_id"`
	SubjectID   string     `json:"subject_id"`
	RedirectURI string     `json:"redirect_uri"`
	Scope       string     `json:"scope"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ConsumedAt  *time.Time `json:"consumed_at,omitempty"`
}

func (r codeRecord) domain() *repository.AuthorizationCode {
	return &repository.AuthorizationCode{
		CodeHash: r.CodeHash, ClientID: r.ClientID, SubjectID: r.SubjectID, RedirectURI: r.RedirectURI,
		Scope: r.Scope, IssuedAt: r.IssuedAt, ExpiresAt: r.ExpiresAt, ConsumedAt: r.ConsumedAt,
	}
}

type tokenRecord struct {
	ID               string    `json:"id"`
	AccessHash       string    `json:"access_hash"`
	RefreshHash      string    `json:"refresh_hash"`
	ClientID         string    `json:"client_id"`
	SubjectID        string    `json:"subject_id"`
	OpenID           string    `json:"openid"`
	Scope            string    `json:"scope"`
	IssuedAt         time.Time `json:"issued_at"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func toTokenRecord(t repository.AccessToken) tokenRecord {
	return tokenRecord{
		ID: t.ID, AccessHash: t.AccessHash, RefreshHash: t.RefreshHash, ClientID: t.ClientID,
		SubjectID: t.SubjectID, OpenID: t.OpenID, Scope: t.Scope, IssuedAt: t.IssuedAt,
		AccessExpiresAt: t.AccessExpiresAt, RefreshExpiresAt: t.RefreshExpiresAt,
	}
}

func (r tokenRecord) domain() *repository.AccessToken {
	return &repository.AccessToken{
		ID: r.ID, AccessHash: r.AccessHash, RefreshHash: r.RefreshHash, ClientID: r.ClientID,
		SubjectID: r.SubjectID, OpenID: r.OpenID, Scope: r.Scope, IssuedAt: r.IssuedAt,
		AccessExpiresAt: r.AccessExpiresAt, RefreshExpiresAt: r.RefreshExpiresAt,
	}
}

// expiry es el instante en que el registro deja de servir para cualquier uso.
func (r tokenRecord) expiry() time.Time {
	if r.RefreshHash != "" && r.RefreshExpiresAt.After(r.AccessExpiresAt) {
		return r.RefreshExpiresAt
	}
	return r.AccessExpiresAt
}
