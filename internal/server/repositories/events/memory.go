package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/cateringhub/backoffice/internal/server/models"
	"github.com/google/uuid"
)

type MemoryStore struct {
	mu          sync.Mutex
	events      map[string]models.RecurringEvent
	occurrences map[string]map[int64]models.EventOccurrence
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:      make(map[string]models.RecurringEvent),
		occurrences: make(map[string]map[int64]models.EventOccurrence),
	}
}

func (s *MemoryStore) Create(_ context.Context, e *models.RecurringEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = uuid.NewString()
	s.events[e.ID] = *e
	return nil
}

func (s *MemoryStore) ListDue(_ context.Context, horizon time.Time) ([]models.RecurringEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.RecurringEvent, 0)
	for _, e := range s.events {
		if !e.NextOccurrence.Before(horizon) {
			continue
		}
		if e.Until != nil && e.NextOccurrence.After(*e.Until) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextOccurrence.Equal(out[j].NextOccurrence) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextOccurrence.Before(out[j].NextOccurrence)
	})
	return out, nil
}

func (s *MemoryStore) AddOccurrence(_ context.Context, eventID string, startsAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return false, common.ErrorNotFound
	}
	byStart, ok := s.occurrences[eventID]
	if !ok {
		byStart = make(map[int64]models.EventOccurrence)
		s.occurrences[eventID] = byStart
	}
	key := startsAt.UnixNano()
	if _, dup := byStart[key]; dup {
		return false, nil
	}
	byStart[key] = models.EventOccurrence{ID: uuid.NewString(), EventID: eventID, StartsAt: startsAt}
	return true, nil
}

func (s *MemoryStore) Advance(_ context.Context, eventID string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return common.ErrorNotFound
	}
	e.NextOccurrence = next
	s.events[eventID] = e
	return nil
}

func (s *MemoryStore) ListOccurrences(_ context.Context, eventID string) ([]models.EventOccurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.EventOccurrence, 0, len(s.occurrences[eventID]))
	for _, o := range s.occurrences[eventID] {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}
