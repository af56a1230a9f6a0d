package refreshtokens

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/cateringhub/backoffice/internal/server/models"
	"github.com/google/uuid"
)

// MemoryStore holds refresh tokens in process memory. One mutex guards the
// map, so Consume is an atomic check-and-delete.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
	seq    uint64
	now    func() time.Time
}

type memoryToken struct {
	models.RefreshToken
	seq uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]memoryToken), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, t *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[t.TokenHash]; ok {
		return common.ErrorAlreadyExists
	}
	t.ID = uuid.NewString()
	t.CreatedAt = s.now()
	s.seq++
	s.tokens[t.TokenHash] = memoryToken{RefreshToken: *t, seq: s.seq}
	return nil
}

func (s *MemoryStore) Find(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenHash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := t.RefreshToken
	return &out, nil
}

func (s *MemoryStore) Consume(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenHash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(s.tokens, tokenHash)
	out := t.RefreshToken
	return &out, nil
}

func (s *MemoryStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, tokenHash)
	return nil
}

func (s *MemoryStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	return s.deleteWhere(func(t memoryToken) bool { return t.UserID == userID }), nil
}

func (s *MemoryStore) TrimUser(_ context.Context, userID string, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mine []memoryToken
	for _, t := range s.tokens {
		if t.UserID == userID {
			mine = append(mine, t)
		}
	}
	if len(mine) <= keep {
		return 0, nil
	}
	// newest first
	sort.Slice(mine, func(i, j int) bool { return mine[i].seq > mine[j].seq })
	for _, t := range mine[keep:] {
		delete(s.tokens, t.TokenHash)
	}
	return int64(len(mine) - keep), nil
}

func (s *MemoryStore) CountByUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) FindExpired(_ context.Context, asOf time.Time) ([]models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.RefreshToken, 0)
	for _, t := range s.tokens {
		if t.Expired(asOf) {
			out = append(out, t.RefreshToken)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, asOf time.Time) (int64, error) {
	return s.deleteWhere(func(t memoryToken) bool { return t.Expired(asOf) }), nil
}

func (s *MemoryStore) deleteWhere(match func(memoryToken) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for h, t := range s.tokens {
		if match(t) {
			delete(s.tokens, h)
			n++
		}
	}
	return n
}
