// Package events stores recurring catering events and their materialized
// occurrences.
package events

import (
	"context"
	"time"

	"github.com/cateringhub/backoffice/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, e *models.RecurringEvent) error
	// ListDue returns events whose next occurrence is before horizon and
	// not past their Until bound.
	ListDue(ctx context.Context, horizon time.Time) ([]models.RecurringEvent, error)
	// AddOccurrence records an occurrence. It reports false when the
	// occurrence already exists.
	AddOccurrence(ctx context.Context, eventID string, startsAt time.Time) (bool, error)
	// Advance moves the event's next occurrence forward.
	Advance(ctx context.Context, eventID string, next time.Time) error
	ListOccurrences(ctx context.Context, eventID string) ([]models.EventOccurrence, error)
}
