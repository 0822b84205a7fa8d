// Package ledger is the write side of the ledger. Every mutation runs in one
// database transaction, keeps the daily record totals in step with their
// transactions and invalidates the cached aggregates after commit.
package ledger

import (
	"context"
	"log/slog"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-cache/internal/logging"
	"github.com/goliatone/go-ledger-cache/internal/storage"
	"github.com/goliatone/go-ledger-cache/model"
	"github.com/goliatone/go-ledger-cache/query"
)

// Invalidator drops cached aggregates. aggregate.Service implements it.
type Invalidator interface {
	InvalidateAll(ctx context.Context, userIDs ...uuid.UUID)
}

// Service applies ledger mutations.
type Service struct {
	db      *bun.DB
	users   repository.Repository[*model.User]
	queries *query.Queries
	totals  Invalidator
	now     func() time.Time
	logger  *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the ledger. users is usually the cached user repository.
func NewService(db *bun.DB, users repository.Repository[*model.User], totals Invalidator, opts ...Option) *Service {
	s := &Service{
		db:      db,
		users:   users,
		queries: query.New(db),
		totals:  totals,
		now:     time.Now,
		logger:  logging.Component(nil, logging.ComponentLedger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUser registers a user. A taken username is a conflict.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*model.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	u := &model.User{
		ID:        uuid.New(),
		Username:  in.Username,
		Email:     in.Email,
		CreatedAt: s.now().UTC(),
	}
	created, err := s.users.Create(ctx, u)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("username already taken", TextCodeUsernameTaken, in.Username)
		}
		return nil, storeFailure(err, "create user")
	}

	s.logger.InfoContext(ctx, "user created", logging.FieldOperation, logging.OpCreate, logging.FieldUserID, created.ID)
	return created, nil
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id.String())
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, userNotFound(id.String())
		}
		return nil, storeFailure(err, "get user")
	}
	return u, nil
}

// GetUserByUsername loads a user by username.
func (s *Service) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := s.users.GetByIdentifier(ctx, username)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, userNotFound(username)
		}
		return nil, storeFailure(err, "get user")
	}
	return u, nil
}

// DeleteUser removes the user with their records and transactions.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, u); err != nil {
		return storeFailure(err, "delete user")
	}

	s.totals.InvalidateAll(ctx, id)
	s.logger.InfoContext(ctx, "user deleted", logging.FieldOperation, logging.OpDelete, logging.FieldUserID, id)
	return nil
}

// RecordTransaction files a transaction under the user's daily record for
// its date, creating the record on first use.
func (s *Service) RecordTransaction(ctx context.Context, in NewTransaction) (*model.Transaction, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, in.UserID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &model.Transaction{
		ID:        uuid.New(),
		Type:      in.Type,
		Category:  in.Category,
		Amount:    model.RoundMoney(in.Amount),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := storage.InTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		rec, err := dailyRecordFor(ctx, tx, in.UserID, in.Date, now)
		if err != nil {
			return err
		}
		t.DailyRecordID = rec.ID
		t.Date = rec.Date

		if _, err := tx.NewInsert().Model(t).Exec(ctx); err != nil {
			return storeFailure(err, "insert transaction")
		}
		if err := refreshTotals(ctx, tx, now, rec.ID); err != nil {
			return err
		}
		t.DailyRecord, err = reloadRecord(ctx, tx, rec.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.totals.InvalidateAll(ctx, in.UserID)
	s.logger.InfoContext(ctx, "transaction recorded",
		logging.FieldOperation, logging.OpCreate,
		logging.FieldTxID, t.ID,
		logging.FieldUserID, in.UserID,
		logging.FieldRecordID, t.DailyRecordID,
	)
	return t, nil
}

// UpdateTransaction changes a transaction. A new date moves it to the user's
// record for that day; both records are refreshed.
func (s *Service) UpdateTransaction(ctx context.Context, id uuid.UUID, in TransactionUpdate) (*model.Transaction, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var (
		t      *model.Transaction
		userID uuid.UUID
	)
	now := s.now().UTC()

	err := storage.InTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		var err error
		t, err = s.loadTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		userID = t.DailyRecord.UserID
		touched := []uuid.UUID{t.DailyRecordID}

		if in.Date != nil && !model.DateOf(*in.Date).Equal(t.Date) {
			rec, err := dailyRecordFor(ctx, tx, userID, *in.Date, now)
			if err != nil {
				return err
			}
			t.DailyRecordID = rec.ID
			t.Date = rec.Date
			touched = append(touched, rec.ID)
		}
		if in.Type != nil {
			t.Type = *in.Type
		}
		if in.Category != nil {
			t.Category = *in.Category
		}
		if in.Amount != nil {
			t.Amount = model.RoundMoney(*in.Amount)
		}
		t.UpdatedAt = now

		_, err = tx.NewUpdate().
			Model(t).
			Column("daily_record_id", "type", "category", "amount", "date", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return storeFailure(err, "update transaction")
		}
		if err := refreshTotals(ctx, tx, now, touched...); err != nil {
			return err
		}
		t.DailyRecord, err = reloadRecord(ctx, tx, t.DailyRecordID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.totals.InvalidateAll(ctx, userID)
	s.logger.InfoContext(ctx, "transaction updated",
		logging.FieldOperation, logging.OpUpdate,
		logging.FieldTxID, id,
		logging.FieldUserID, userID,
	)
	return t, nil
}

// DeleteTransaction removes a transaction and refreshes its record.
func (s *Service) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	var userID uuid.UUID
	now := s.now().UTC()

	err := storage.InTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		t, err := s.loadTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		userID = t.DailyRecord.UserID

		if _, err := tx.NewDelete().TableExpr("transactions").Where("id = ?", id).Exec(ctx); err != nil {
			return storeFailure(err, "delete transaction")
		}
		return refreshTotals(ctx, tx, now, t.DailyRecordID)
	})
	if err != nil {
		return err
	}

	s.totals.InvalidateAll(ctx, userID)
	s.logger.InfoContext(ctx, "transaction deleted",
		logging.FieldOperation, logging.OpDelete,
		logging.FieldTxID, id,
		logging.FieldUserID, userID,
	)
	return nil
}

// ReconcileUser recomputes every daily record of the user from its
// transactions and returns how many records were refreshed.
func (s *Service) ReconcileUser(ctx context.Context, userID uuid.UUID) (int, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return 0, err
	}

	var n int
	now := s.now().UTC()
	err := storage.InTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		var ids []uuid.UUID
		err := tx.NewSelect().
			Model((*model.DailyRecord)(nil)).
			Column("dr.id").
			Where("dr.user_id = ?", userID).
			Scan(ctx, &ids)
		if err != nil {
			return storeFailure(err, "list daily records")
		}
		n = len(ids)
		return refreshTotals(ctx, tx, now, ids...)
	})
	if err != nil {
		return 0, err
	}

	s.totals.InvalidateAll(ctx, userID)
	s.logger.InfoContext(ctx, "daily records reconciled", logging.FieldUserID, userID, logging.FieldCount, n)
	return n, nil
}

func (s *Service) ensureUser(ctx context.Context, id uuid.UUID) error {
	ok, err := s.queries.UserExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return userNotFound(id.String())
	}
	return nil
}

func (s *Service) loadTransaction(ctx context.Context, tx bun.Tx, id uuid.UUID) (*model.Transaction, error) {
	t, err := s.queries.WithTx(tx).TransactionByID(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, transactionNotFound(id.String())
		}
		return nil, err
	}
	if t.DailyRecord == nil {
		return nil, transactionNotFound(id.String())
	}
	return t, nil
}
