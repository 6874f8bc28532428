package memory

import (
	"context"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/google/uuid"
)

type userRepo struct{ s *Store }

func (r userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.usersByName[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r.s.users[id]
	return &cp, nil
}

func (r userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	if in.Username == "" || in.PasswordHash == "" {
		return nil, repository.ErrInvalidInput
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.usersByName[in.Username]; ok {
		return nil, repository.ErrConflict
	}
	if _, ok := r.s.users[in.ID]; ok {
		return nil, repository.ErrConflict
	}
	u := &repository.User{
		ID:           in.ID,
		Username:     in.Username,
		PasswordHash: in.PasswordHash,
		Nickname:     in.Nickname,
		AvatarURL:    in.AvatarURL,
		Email:        in.Email,
		CreatedAt:    r.s.now(),
	}
	r.s.users[u.ID] = u
	r.s.usersByName[u.Username] = u.ID
	cp := *u
	return &cp, nil
}
