// Package userinfo resuelve el perfil que ve un client con scope snsapi_userinfo.
package userinfo

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
)

// ErrNoSubject se retorna si el token no tiene resource owner.
var ErrNoSubject = errors.New("userinfo: token without subject")

// Profile es el cuerpo JSON de /oauth2/sns/userinfo.
type Profile struct {
	OpenID    string `json:"openid"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Adapter resuelve el perfil de un user. OpenID lo completa el caller.
type Adapter interface {
	UserInfo(ctx context.Context, userID string) (*Profile, error)
}

// RepositoryAdapter lee el perfil del UserRepository.
type RepositoryAdapter struct {
	Users repository.UserRepository
}

func NewRepositoryAdapter(users repository.UserRepository) *RepositoryAdapter {
	return &RepositoryAdapter{Users: users}
}

func (a *RepositoryAdapter) UserInfo(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, ErrNoSubject
	}
	u, err := a.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	return &Profile{Nickname: u.Nickname, AvatarURL: u.AvatarURL, Email: u.Email}, nil
}
