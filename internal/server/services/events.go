package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cateringhub/backoffice/internal/dbx"
	"github.com/cateringhub/backoffice/internal/logging"
	"github.com/cateringhub/backoffice/internal/server/config"
	"github.com/cateringhub/backoffice/internal/server/models"
	"github.com/cateringhub/backoffice/internal/server/repositories/repomanager"
)

// MaxOccurrencesPerRun bounds how many occurrences one event may
// materialize in a single run.
const MaxOccurrencesPerRun = 366

// EventService materializes occurrences of recurring events up to a horizon.
type EventService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	horizon     time.Duration
	log         logging.Logger
}

func NewEventService(tx dbx.Transactor, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *EventService {
	return &EventService{
		tx:          tx,
		repomanager: m,
		horizon:     cfg.EventsHorizon,
		log:         log.With("module", "events"),
	}
}

// Create stores a new recurring event.
func (s *EventService) Create(ctx context.Context, e *models.RecurringEvent) error {
	switch e.Frequency {
	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly:
	default:
		return fmt.Errorf("unknown frequency %q", e.Frequency)
	}
	if e.Interval < 1 {
		e.Interval = 1
	}
	if e.AnchorAt.IsZero() {
		e.AnchorAt = e.NextOccurrence
	}
	return s.repomanager.Events(s.tx.Conn()).Create(ctx, e)
}

// GenerateOccurrences creates the occurrences of every due event that start
// before now+horizon and returns how many were added. Each event is handled
// in its own transaction; a failing event does not stop the others. Running
// it twice adds nothing the second time.
func (s *EventService) GenerateOccurrences(ctx context.Context, now time.Time) (int, error) {
	horizon := now.Add(s.horizon)

	due, err := s.repomanager.Events(s.tx.Conn()).ListDue(ctx, horizon)
	if err != nil {
		return 0, fmt.Errorf("list due events: %w", err)
	}

	var (
		total int
		errs  []error
	)
	for _, e := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := s.generate(ctx, e, horizon)
		if err != nil {
			s.log.Error(ctx, "event generation failed", "event_id", e.ID, "error", err)
			errs = append(errs, fmt.Errorf("event %s: %w", e.ID, err))
			continue
		}
		total += n
	}

	s.log.Info(ctx, "event occurrences generated", "events", len(due), "generated", total)
	return total, errors.Join(errs...)
}

func (s *EventService) generate(ctx context.Context, e models.RecurringEvent, horizon time.Time) (int, error) {
	added := 0
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Events(tx)
		added = 0

		cur := e.NextOccurrence
		for i := 0; i < MaxOccurrencesPerRun && cur.Before(horizon); i++ {
			if e.Until != nil && cur.After(*e.Until) {
				break
			}
			inserted, err := repo.AddOccurrence(ctx, e.ID, cur)
			if err != nil {
				return err
			}
			if inserted {
				added++
			}
			cur = e.Advance(cur)
		}
		return repo.Advance(ctx, e.ID, cur)
	})
	return added, err
}
