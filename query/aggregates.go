package query

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/goliatone/go-ledger-cache/model"
)

// SystemTotal sums every transaction of typ. No rows sum to zero.
func (q *Queries) SystemTotal(ctx context.Context, typ model.TransactionType) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.db.NewSelect().
		TableExpr("transactions AS t").
		ColumnExpr("COALESCE(SUM(t.amount), 0)").
		Where("t.type = ?", typ).
		Scan(ctx, &total)
	if err != nil {
		return decimal.Zero, wrap(err, "system total")
	}
	return model.RoundMoney(total), nil
}

// UserTotal sums the user's transactions of typ across all their daily records.
func (q *Queries) UserTotal(ctx context.Context, userID uuid.UUID, typ model.TransactionType) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.db.NewSelect().
		TableExpr("transactions AS t").
		Join("JOIN daily_records AS dr ON dr.id = t.daily_record_id").
		ColumnExpr("COALESCE(SUM(t.amount), 0)").
		Where("dr.user_id = ?", userID).
		Where("t.type = ?", typ).
		Scan(ctx, &total)
	if err != nil {
		return decimal.Zero, wrap(err, "user total")
	}
	return model.RoundMoney(total), nil
}

// MonthlyTransactionTotals sums the user's transactions dated in the given
// month. Unlike MonthlySummary it reads the transactions themselves.
func (q *Queries) MonthlyTransactionTotals(ctx context.Context, userID uuid.UUID, year int, month time.Month) (model.Totals, error) {
	start, next := model.MonthRange(year, month)

	var income, expense decimal.Decimal
	err := q.db.NewSelect().
		TableExpr("transactions AS t").
		Join("JOIN daily_records AS dr ON dr.id = t.daily_record_id").
		ColumnExpr("COALESCE(SUM(CASE WHEN t.type = ? THEN t.amount ELSE 0 END), 0)", model.Income).
		ColumnExpr("COALESCE(SUM(CASE WHEN t.type = ? THEN t.amount ELSE 0 END), 0)", model.Expense).
		Where("dr.user_id = ?", userID).
		Where("t.date >= ?", start).
		Where("t.date < ?", next).
		Scan(ctx, &income, &expense)
	if err != nil {
		return model.Totals{}, wrap(err, "monthly transaction totals")
	}
	return model.NewTotals(income, expense), nil
}

// CategoryBreakdown counts and sums transactions per category, most used first.
func (q *Queries) CategoryBreakdown(ctx context.Context) ([]model.CategoryStat, error) {
	var rows []model.CategoryStat
	err := q.db.NewSelect().
		TableExpr("transactions AS t").
		ColumnExpr("t.category AS category").
		ColumnExpr("COUNT(t.id) AS transaction_count").
		ColumnExpr("COALESCE(SUM(t.amount), 0) AS total").
		GroupExpr("t.category").
		OrderExpr("transaction_count DESC, t.category ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, wrap(err, "category breakdown")
	}
	for i := range rows {
		rows[i].Total = model.RoundMoney(rows[i].Total)
	}
	return rows, nil
}

// Stats reports row counts and system totals.
func (q *Queries) Stats(ctx context.Context) (model.DatabaseStats, error) {
	var stats model.DatabaseStats
	var err error

	if stats.Users, err = q.db.NewSelect().Model((*model.User)(nil)).Count(ctx); err != nil {
		return stats, wrap(err, "count users")
	}
	if stats.DailyRecords, err = q.db.NewSelect().Model((*model.DailyRecord)(nil)).Count(ctx); err != nil {
		return stats, wrap(err, "count daily records")
	}
	if stats.Transactions, err = q.db.NewSelect().Model((*model.Transaction)(nil)).Count(ctx); err != nil {
		return stats, wrap(err, "count transactions")
	}

	stats.AvgTransactionsPerUser = decimal.Zero
	if stats.Users > 0 {
		stats.AvgTransactionsPerUser = decimal.NewFromInt(int64(stats.Transactions)).
			Div(decimal.NewFromInt(int64(stats.Users))).
			Round(2)
	}

	income, err := q.SystemTotal(ctx, model.Income)
	if err != nil {
		return stats, err
	}
	expense, err := q.SystemTotal(ctx, model.Expense)
	if err != nil {
		return stats, err
	}
	stats.Totals = model.NewTotals(income, expense)
	stats.Net = stats.Totals.Net()
	return stats, nil
}

// UserExists reports whether a user with id exists.
func (q *Queries) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := q.db.NewSelect().Model((*model.User)(nil)).Where("u.id = ?", id).Exists(ctx)
	if err != nil {
		return false, wrap(err, "user exists")
	}
	return ok, nil
}

// DailyRecordExists reports whether a daily record with id exists.
func (q *Queries) DailyRecordExists(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := q.db.NewSelect().Model((*model.DailyRecord)(nil)).Where("dr.id = ?", id).Exists(ctx)
	if err != nil {
		return false, wrap(err, "daily record exists")
	}
	return ok, nil
}

// DailyRecordByID loads one daily record. A missing record is NotFound.
func (q *Queries) DailyRecordByID(ctx context.Context, id uuid.UUID) (*model.DailyRecord, error) {
	rec := new(model.DailyRecord)
	if err := q.db.NewSelect().Model(rec).Where("dr.id = ?", id).Scan(ctx); err != nil {
		return nil, wrap(err, "daily record")
	}
	rec.Normalize()
	return rec, nil
}

// TransactionByID loads one transaction with its parent record. A missing
// transaction is NotFound.
func (q *Queries) TransactionByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	tx := new(model.Transaction)
	err := q.db.NewSelect().
		Model(tx).
		Relation("DailyRecord").
		Where("t.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, wrap(err, "transaction")
	}
	tx.Normalize()
	return tx, nil
}

// UserIDs lists every user id, oldest account first.
func (q *Queries) UserIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := q.db.NewSelect().
		Model((*model.User)(nil)).
		Column("u.id").
		Order("u.created_at ASC", "u.username ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, wrap(err, "user ids")
	}
	return ids, nil
}
