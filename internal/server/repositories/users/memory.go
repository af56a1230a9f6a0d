package users

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/cateringhub/backoffice/internal/server/models"
	"github.com/google/uuid"
)

// MemoryStore keeps users in process memory, keyed by id.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]models.User)}
}

func (s *MemoryStore) Create(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return nil, common.ErrorAlreadyExists
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	s.users[user.ID] = *user
	return user, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (s *MemoryStore) UpdatePassword(_ context.Context, id string, oldHash, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || u.PasswordHash != oldHash {
		return common.ErrorNotFound
	}
	u.PasswordHash = newHash
	s.users[id] = u
	return nil
}

func (s *MemoryStore) SetDisabled(_ context.Context, id string, disabled bool) error {
	return s.update(id, func(u *models.User) { u.Disabled = disabled })
}

func (s *MemoryStore) update(id string, fn func(*models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(&u)
	s.users[id] = u
	return nil
}
