package report

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-ledger-cache/internal/logging"
)

// Publisher queues a request for a worker.
type Publisher interface {
	Publish(ctx context.Context, v any) error
}

// UserLister lists every user id.
type UserLister interface {
	UserIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Scheduler fans a month out into one queued request per user.
type Scheduler struct {
	users     UserLister
	publisher Publisher
	now       func() time.Time
	logger    *slog.Logger

	mu   sync.Mutex
	last string
}

func NewScheduler(users UserLister, publisher Publisher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		users:     users,
		publisher: publisher,
		now:       time.Now,
		logger:    logging.Component(logger, logging.ComponentReport),
	}
}

// EnqueueMonth publishes a request for every user and returns how many were
// queued. Publishing continues past failures; their errors are joined.
func (s *Scheduler) EnqueueMonth(ctx context.Context, year int, month time.Month) (int, error) {
	ids, err := s.users.UserIDs(ctx)
	if err != nil {
		return 0, err
	}

	var (
		queued int
		errs   []error
	)
	for _, id := range ids {
		req := Request{UserID: id, Year: year, Month: month, RequestedAt: s.now().UTC()}
		if err := s.publisher.Publish(ctx, req); err != nil {
			s.logger.ErrorContext(ctx, "report request not queued", logging.FieldUserID, id, logging.Err(err))
			errs = append(errs, err)
			continue
		}
		queued++
	}

	s.logger.InfoContext(ctx, "monthly reports queued",
		logging.FieldYear, year,
		logging.FieldMonth, int(month),
		logging.FieldCount, queued,
	)
	return queued, errors.Join(errs...)
}

// Tick queues the previous month's reports on the first day of a month,
// once per period.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (bool, error) {
	if now.Day() != 1 {
		return false, nil
	}
	year, month := PreviousMonth(now)
	period := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")

	s.mu.Lock()
	if s.last == period {
		s.mu.Unlock()
		return false, nil
	}
	s.last = period
	s.mu.Unlock()

	queued, err := s.EnqueueMonth(ctx, year, month)
	if err != nil && queued == 0 {
		s.mu.Lock()
		s.last = ""
		s.mu.Unlock()
	}
	return true, err
}

// PreviousMonth returns the calendar month before now.
func PreviousMonth(now time.Time) (int, time.Month) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prev := first.AddDate(0, -1, 0)
	return prev.Year(), prev.Month()
}
