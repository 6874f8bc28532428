package memory

import (
	"context"
	"sync/atomic"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/google/uuid"
)

// tokenRecord guarda un snapshot inmutable; cada mutación publica un snapshot
// nuevo con CompareAndSwap.
type tokenRecord struct {
	state atomic.Pointer[repository.AccessToken]
}

func newTokenRecord(t repository.AccessToken) *tokenRecord {
	rec := &tokenRecord{}
	rec.state.Store(&t)
	return rec
}

type tokenRepo struct{ s *Store }

func (r tokenRepo) Save(ctx context.Context, tok repository.AccessToken) (*repository.AccessToken, error) {
	if tok.AccessHash == "" || tok.ClientID == "" {
		return nil, repository.ErrInvalidInput
	}
	tok.ID = uuid.NewString()
	pair := pairKey(tok.ClientID, tok.SubjectID)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, dup := r.s.tokenByAccess[tok.AccessHash]; dup {
		return nil, repository.ErrConflict
	}
	if prev, ok := r.s.tokenByPair[pair]; ok {
		r.s.dropTokenLocked(prev)
	}
	r.s.tokens[tok.ID] = newTokenRecord(tok)
	r.s.tokenByAccess[tok.AccessHash] = tok.ID
	if tok.RefreshHash != "" {
		r.s.tokenByRefresh[tok.RefreshHash] = tok.ID
	}
	r.s.tokenByPair[pair] = tok.ID
	out := tok
	return &out, nil
}

func (r tokenRepo) GetByAccessHash(ctx context.Context, accessHash string) (*repository.AccessToken, error) {
	t := r.s.lookupToken(r.s.tokenByAccess, accessHash)
	if t == nil || t.AccessHash != accessHash {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (r tokenRepo) GetByRefreshHash(ctx context.Context, refreshHash string) (*repository.AccessToken, error) {
	t := r.s.lookupToken(r.s.tokenByRefresh, refreshHash)
	if t == nil || t.RefreshHash != refreshHash {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (r tokenRepo) Rotate(ctx context.Context, in repository.RotateInput) (*repository.AccessToken, error) {
	if in.OldRefreshHash == "" || in.NewAccessHash == "" || in.NewRefreshHash == "" {
		return nil, repository.ErrInvalidInput
	}

	r.s.mu.RLock()
	id, ok := r.s.tokenByRefresh[in.OldRefreshHash]
	rec := r.s.tokens[id]
	r.s.mu.RUnlock()
	if !ok || rec == nil {
		return nil, repository.ErrNotFound
	}

	cur := rec.state.Load()
	if cur.RefreshHash != in.OldRefreshHash || cur.ClientID != in.ClientID {
		return nil, repository.ErrNotFound
	}

	next := *cur
	next.AccessHash = in.NewAccessHash
	next.RefreshHash = in.NewRefreshHash
	next.IssuedAt = in.IssuedAt
	next.AccessExpiresAt = in.AccessExpiresAt
	next.RefreshExpiresAt = in.RefreshExpiresAt

	if !in.KeepPrevious {
		if !rec.state.CompareAndSwap(cur, &next) {
			return nil, repository.ErrNotFound
		}
		r.s.mu.Lock()
		if r.s.tokens[id] != rec {
			// reemplazado por un Save concurrente
			r.s.mu.Unlock()
			return nil, repository.ErrNotFound
		}
		delete(r.s.tokenByAccess, cur.AccessHash)
		delete(r.s.tokenByRefresh, cur.RefreshHash)
		r.s.tokenByAccess[next.AccessHash] = id
		r.s.tokenByRefresh[next.RefreshHash] = id
		r.s.mu.Unlock()
		out := next
		return &out, nil
	}

	// El registro anterior queda solo con su access token hasta que expire.
	retired := *cur
	retired.RefreshHash = ""
	if !rec.state.CompareAndSwap(cur, &retired) {
		return nil, repository.ErrNotFound
	}
	next.ID = uuid.NewString()

	r.s.mu.Lock()
	delete(r.s.tokenByRefresh, cur.RefreshHash)
	r.s.tokens[next.ID] = newTokenRecord(next)
	r.s.tokenByAccess[next.AccessHash] = next.ID
	r.s.tokenByRefresh[next.RefreshHash] = next.ID
	r.s.tokenByPair[pairKey(next.ClientID, next.SubjectID)] = next.ID
	r.s.mu.Unlock()

	out := next
	return &out, nil
}

func (s *Store) lookupToken(index map[string]string, hash string) *repository.AccessToken {
	s.mu.RLock()
	id, ok := index[hash]
	rec := s.tokens[id]
	s.mu.RUnlock()
	if !ok || rec == nil {
		return nil
	}
	cp := *rec.state.Load()
	return &cp
}

func (s *Store) dropTokenLocked(id string) {
	rec, ok := s.tokens[id]
	if !ok {
		return
	}
	t := rec.state.Load()
	delete(s.tokens, id)
	if s.tokenByAccess[t.AccessHash] == id {
		delete(s.tokenByAccess, t.AccessHash)
	}
	if t.RefreshHash != "" && s.tokenByRefresh[t.RefreshHash] == id {
		delete(s.tokenByRefresh, t.RefreshHash)
	}
	pair := pairKey(t.ClientID, t.SubjectID)
	if s.tokenByPair[pair] == id {
		delete(s.tokenByPair, pair)
	}
}
