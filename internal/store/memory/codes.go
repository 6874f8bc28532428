package memory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/google/uuid"
)

// codeRecord es inmutable salvo por consumedAt, que pasa de nil a un valor
// una única vez (CAS).
type codeRecord struct {
	code       repository.AuthorizationCode
	consumedAt atomic.Pointer[time.Time]
}

func (rec *codeRecord) snapshot() *repository.AuthorizationCode {
	cp := rec.code
	if at := rec.consumedAt.Load(); at != nil {
		t := *at
		cp.ConsumedAt = &t
	}
	return &cp
}

type codeRepo struct{ s *Store }

func (r codeRepo) Save(ctx context.Context, code repository.AuthorizationCode) error {
	if code.CodeHash == "" || code.ClientID == "" || code.SubjectID == "" {
		return repository.ErrInvalidInput
	}
	code.ConsumedAt = nil
	rec := &codeRecord{code: code}
	id := uuid.NewString()
	pair := pairKey(code.ClientID, code.SubjectID)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, dup := r.s.codeByHash[code.CodeHash]; dup {
		return repository.ErrConflict
	}
	if prev, ok := r.s.codeByPair[pair]; ok {
		r.s.dropCodeLocked(prev)
	}
	r.s.codes[id] = rec
	r.s.codeByHash[code.CodeHash] = id
	r.s.codeByPair[pair] = id
	return nil
}

func (r codeRepo) GetByHash(ctx context.Context, codeHash string) (*repository.AuthorizationCode, error) {
	rec := r.s.lookupCode(codeHash)
	if rec == nil {
		return nil, repository.ErrNotFound
	}
	return rec.snapshot(), nil
}

func (r codeRepo) Consume(ctx context.Context, codeHash string, at time.Time) (*repository.AuthorizationCode, error) {
	rec := r.s.lookupCode(codeHash)
	if rec == nil {
		return nil, repository.ErrNotFound
	}
	if !rec.consumedAt.CompareAndSwap(nil, &at) {
		return nil, repository.ErrConsumed
	}
	return rec.snapshot(), nil
}

func (s *Store) lookupCode(hash string) *codeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codeByHash[hash]
	if !ok {
		return nil
	}
	return s.codes[id]
}

func (s *Store) dropCodeLocked(id string) {
	rec, ok := s.codes[id]
	if !ok {
		return
	}
	delete(s.codes, id)
	delete(s.codeByHash, rec.code.CodeHash)
	pair := pairKey(rec.code.ClientID, rec.code.SubjectID)
	if s.codeByPair[pair] == id {
		delete(s.codeByPair, pair)
	}
}
