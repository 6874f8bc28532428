package memory

import (
	"context"
	"slices"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
)

type authzRepo struct{ s *Store }

func (r authzRepo) Get(ctx context.Context, clientID, userID string) (*repository.Authorization, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.authz[pairKey(clientID, userID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyAuthz(a), nil
}

func (r authzRepo) Ensure(ctx context.Context, clientID, userID, openID string) (*repository.Authorization, error) {
	if clientID == "" || userID == "" || openID == "" {
		return nil, repository.ErrInvalidInput
	}
	key := pairKey(clientID, userID)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.authz[key]; ok {
		return copyAuthz(a), nil
	}
	if _, taken := r.s.authzByOpenID[openID]; taken {
		return nil, repository.ErrConflict
	}
	now := r.s.now()
	a := &repository.Authorization{
		ClientID:  clientID,
		UserID:    userID,
		OpenID:    openID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.authz[key] = a
	r.s.authzByOpenID[openID] = key
	return copyAuthz(a), nil
}

func (r authzRepo) MarkConsented(ctx context.Context, clientID, userID, scope string, covered []string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.authz[pairKey(clientID, userID)]
	if !ok {
		return repository.ErrNotFound
	}
	if a.Consented && slices.Contains(covered, a.Scope) {
		return nil
	}
	a.Consented = true
	a.Scope = scope
	a.ConsentedAt = &at
	a.UpdatedAt = at
	return nil
}

func copyAuthz(a *repository.Authorization) *repository.Authorization {
	cp := *a
	if a.ConsentedAt != nil {
		t := *a.ConsentedAt
		cp.ConsentedAt = &t
	}
	return &cp
}
