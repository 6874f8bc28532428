package memory

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	tokens "github.com/dropDatabas3/snsoauth/internal/security/token"
	"github.com/google/uuid"
)

type clientRepo struct{ s *Store }

func (r clientRepo) Get(ctx context.Context, clientID string) (*repository.Client, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.clients[clientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r clientRepo) Create(ctx context.Context, in repository.ClientInput) (*repository.Client, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Secret == "" {
		sec, err := tokens.GenerateOpaqueToken(tokens.SecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
		in.Secret = sec
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.clients[in.ID]; ok {
		return nil, repository.ErrConflict
	}
	c := &repository.Client{
		ID:        in.ID,
		Secret:    in.Secret,
		Title:     in.Title,
		IconURL:   in.IconURL,
		Domain:    in.Domain,
		CreatedAt: r.s.now(),
	}
	r.s.clients[c.ID] = c
	cp := *c
	return &cp, nil
}

func (r clientRepo) UpdateSecret(ctx context.Context, clientID, secret string) error {
	if secret == "" {
		return repository.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clients[clientID]
	if !ok {
		return repository.ErrNotFound
	}
	c.Secret = secret
	return nil
}
