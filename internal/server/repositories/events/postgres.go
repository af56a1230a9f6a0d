package events

import (
	"context"
	"fmt"
	"time"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/cateringhub/backoffice/internal/dbx"
	"github.com/cateringhub/backoffice/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, e *models.RecurringEvent) error {
	query := `
		INSERT INTO recurring_events (title, frequency, interval_count, anchor_at, next_occurrence, until)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query, e.Title, e.Frequency, e.Interval, e.AnchorAt, e.NextOccurrence, e.Until).Scan(&e.ID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListDue(ctx context.Context, horizon time.Time) ([]models.RecurringEvent, error) {
	query := `
		SELECT id, title, frequency, interval_count, anchor_at, next_occurrence, until
		FROM recurring_events
		WHERE next_occurrence < $1
		  AND (until IS NULL OR next_occurrence <= until)
		ORDER BY next_occurrence, id
	`
	evs, err := dbx.Select[models.RecurringEvent](ctx, r.db, query, horizon)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return evs, nil
}

func (r *PostgresRepository) AddOccurrence(ctx context.Context, eventID string, startsAt time.Time) (bool, error) {
	query := `
		INSERT INTO event_occurrences (event_id, starts_at)
		VALUES ($1, $2)
		ON CONFLICT (event_id, starts_at) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, eventID, startsAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) Advance(ctx context.Context, eventID string, next time.Time) error {
	query := `
		UPDATE recurring_events SET next_occurrence = $2
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, eventID, next)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("db error: %w", err)
	} else if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListOccurrences(ctx context.Context, eventID string) ([]models.EventOccurrence, error) {
	query := `
		SELECT id, event_id, starts_at
		FROM event_occurrences
		WHERE event_id = $1
		ORDER BY starts_at
	`
	occ, err := dbx.Select[models.EventOccurrence](ctx, r.db, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return occ, nil
}
