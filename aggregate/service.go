// Package aggregate serves system and per-user income/expense totals through
// the cache layer. Reads are read-through with an all-or-nothing hit policy
// over each income/expense pair; writes elsewhere call InvalidateAll once
// their database transaction has committed.
package aggregate

import (
	"context"
	"log/slog"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-ledger-cache/cache"
	"github.com/goliatone/go-ledger-cache/internal/logging"
	"github.com/goliatone/go-ledger-cache/model"
)

// Querier computes the totals from the source of truth.
type Querier interface {
	SystemTotal(ctx context.Context, typ model.TransactionType) (decimal.Decimal, error)
	UserTotal(ctx context.Context, userID uuid.UUID, typ model.TransactionType) (decimal.Decimal, error)
}

// UserLookup tells whether a user exists.
type UserLookup interface {
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service is stateless apart from its collaborators and safe for concurrent use.
type Service struct {
	queries Querier
	cache   *cache.Layer
	ttl     time.Duration
	users   UserLookup
	flight  *singleflight.Group
	logger  *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithTTL overrides the layer's default TTL for cached totals.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// WithSingleFlight collapses concurrent misses for the same pair into one
// computation.
func WithSingleFlight() Option {
	return func(s *Service) {
		s.flight = &singleflight.Group{}
	}
}

// WithUserLookup makes GetUserTotals report NotFound for unknown users
// instead of a zero pair.
func WithUserLookup(users UserLookup) Option {
	return func(s *Service) {
		s.users = users
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService wires the query layer and the cache layer.
func NewService(queries Querier, layer *cache.Layer, opts ...Option) *Service {
	s := &Service{
		queries: queries,
		cache:   layer,
		logger:  logging.Component(nil, logging.ComponentAggregate),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetSystemTotals returns the income and expense sums over every transaction.
func (s *Service) GetSystemTotals(ctx context.Context) (model.Totals, error) {
	incomeKey, expenseKey := SystemKey(model.Income), SystemKey(model.Expense)

	return s.readThrough(ctx, incomeKey, expenseKey, func(ctx context.Context, typ model.TransactionType) (decimal.Decimal, error) {
		return s.queries.SystemTotal(ctx, typ)
	})
}

// GetUserTotals returns the income and expense sums over one user's
// transactions.
func (s *Service) GetUserTotals(ctx context.Context, userID uuid.UUID) (model.Totals, error) {
	incomeKey, expenseKey := UserKey(userID, model.Income), UserKey(userID, model.Expense)

	if totals, ok := s.cachedPair(ctx, incomeKey, expenseKey); ok {
		return totals, nil
	}

	if s.users != nil {
		exists, err := s.users.UserExists(ctx, userID)
		if err != nil {
			return model.Totals{}, err
		}
		if !exists {
			return model.Totals{}, errors.New("user not found", errors.CategoryNotFound).
				WithTextCode("USER_NOT_FOUND").
				WithMetadata(map[string]any{logging.FieldUserID: userID.String()})
		}
	}

	return s.readThrough(ctx, incomeKey, expenseKey, func(ctx context.Context, typ model.TransactionType) (decimal.Decimal, error) {
		return s.queries.UserTotal(ctx, userID, typ)
	})
}

// InvalidateUser drops every cached total of the user. The income and
// expense keys are deleted by name first so a slow pattern sweep cannot
// leave them behind.
func (s *Service) InvalidateUser(ctx context.Context, userID uuid.UUID) {
	s.cache.Delete(ctx, UserKey(userID, model.Income), UserKey(userID, model.Expense))
	s.cache.DeleteByPattern(ctx, UserPattern(userID))
	s.logger.DebugContext(ctx, "user totals invalidated", logging.FieldUserID, userID)
}

// InvalidateSystem drops both system totals.
func (s *Service) InvalidateSystem(ctx context.Context) {
	s.cache.Delete(ctx, SystemKey(model.Income), SystemKey(model.Expense))
	s.logger.DebugContext(ctx, "system totals invalidated")
}

// InvalidateAll drops the system totals and the totals of every given user.
// Transaction writes call it after their commit.
func (s *Service) InvalidateAll(ctx context.Context, userIDs ...uuid.UUID) {
	s.InvalidateSystem(ctx)
	for _, id := range userIDs {
		if id == uuid.Nil {
			continue
		}
		s.InvalidateUser(ctx, id)
	}
}

type sumFn func(ctx context.Context, typ model.TransactionType) (decimal.Decimal, error)

func (s *Service) readThrough(ctx context.Context, incomeKey, expenseKey string, sum sumFn) (model.Totals, error) {
	if totals, ok := s.cachedPair(ctx, incomeKey, expenseKey); ok {
		return totals, nil
	}

	load := func(ctx context.Context) (model.Totals, error) {
		totals, err := s.compute(ctx, sum)
		if err != nil {
			return model.Totals{}, err
		}
		s.store(ctx, incomeKey, totals.Income)
		s.store(ctx, expenseKey, totals.Expense)
		return totals, nil
	}

	if s.flight == nil {
		return load(ctx)
	}

	// The shared computation outlives any one caller; each caller still
	// honours its own context while waiting.
	shared := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(incomeKey, func() (any, error) {
		return load(shared)
	})
	select {
	case <-ctx.Done():
		return model.Totals{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.Totals{}, res.Err
		}
		return res.Val.(model.Totals), nil
	}
}

// cachedPair returns the pair only when both halves are cached and valid.
func (s *Service) cachedPair(ctx context.Context, incomeKey, expenseKey string) (model.Totals, bool) {
	income, ok := s.cachedAmount(ctx, incomeKey)
	if !ok {
		s.logger.DebugContext(ctx, "totals cache miss", logging.FieldKey, incomeKey)
		return model.Totals{}, false
	}
	expense, ok := s.cachedAmount(ctx, expenseKey)
	if !ok {
		s.logger.DebugContext(ctx, "totals cache partial hit, recomputing pair", logging.FieldKey, expenseKey)
		return model.Totals{}, false
	}
	return model.NewTotals(income, expense), true
}

func (s *Service) cachedAmount(ctx context.Context, key string) (decimal.Decimal, bool) {
	raw, ok := cache.GetValue[string](ctx, s.cache, key)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "ignoring malformed cached total", logging.FieldKey, key, logging.Err(err))
		return decimal.Zero, false
	}
	return d, true
}

func (s *Service) compute(ctx context.Context, sum sumFn) (model.Totals, error) {
	var income, expense decimal.Decimal

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		income, err = sum(gctx, model.Income)
		return err
	})
	g.Go(func() error {
		var err error
		expense, err = sum(gctx, model.Expense)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Totals{}, err
	}
	return model.NewTotals(income, expense), nil
}

func (s *Service) store(ctx context.Context, key string, amount decimal.Decimal) {
	cache.SetValue(ctx, s.cache, key, amount.StringFixed(model.MoneyPlaces), s.ttl)
}
