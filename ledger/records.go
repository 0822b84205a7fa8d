package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-cache/model"
)

// dailyRecordFor returns the user's record for date, inserting an empty one
// when the day has none. The unique (user_id, date) index settles races.
func dailyRecordFor(ctx context.Context, tx bun.IDB, userID uuid.UUID, date time.Time, now time.Time) (*model.DailyRecord, error) {
	day := model.DateOf(date)

	fresh := &model.DailyRecord{
		ID:           uuid.New(),
		UserID:       userID,
		Date:         day,
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := tx.NewInsert().
		Model(fresh).
		On("CONFLICT (user_id, date) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, storeFailure(err, "create daily record")
	}

	rec := new(model.DailyRecord)
	err = tx.NewSelect().
		Model(rec).
		Where("dr.user_id = ?", userID).
		Where("dr.date = ?", day).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, storeFailure(err, "load daily record")
	}
	rec.Normalize()
	return rec, nil
}

// refreshTotals recomputes the denormalised totals of the given records from
// their transactions.
func refreshTotals(ctx context.Context, tx bun.IDB, now time.Time, recordIDs ...uuid.UUID) error {
	if len(recordIDs) == 0 {
		return nil
	}
	_, err := tx.NewUpdate().
		Table("daily_records").
		Set("total_income = (SELECT COALESCE(SUM(t.amount), 0) FROM transactions AS t WHERE t.daily_record_id = daily_records.id AND t.type = ?)", model.Income).
		Set("total_expense = (SELECT COALESCE(SUM(t.amount), 0) FROM transactions AS t WHERE t.daily_record_id = daily_records.id AND t.type = ?)", model.Expense).
		Set("updated_at = ?", now).
		Where("id IN (?)", bun.In(recordIDs)).
		Exec(ctx)
	if err != nil {
		return storeFailure(err, "refresh daily totals")
	}
	return nil
}

func reloadRecord(ctx context.Context, tx bun.IDB, id uuid.UUID) (*model.DailyRecord, error) {
	rec := new(model.DailyRecord)
	if err := tx.NewSelect().Model(rec).Where("dr.id = ?", id).Scan(ctx); err != nil {
		return nil, storeFailure(err, "reload daily record")
	}
	rec.Normalize()
	return rec, nil
}
