// Package query holds the fixed aggregate reads the ledger serves. Every
// operation is a pure function of its arguments; none of them consult the
// cache.
package query

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-cache/model"
)

// TextCodeQueryFailure tags errors raised by the persistence store.
const TextCodeQueryFailure = "QUERY_FAILURE"

// Queries runs the ledger reads against a bun database or transaction.
type Queries struct {
	db bun.IDB
}

// New returns Queries bound to db.
func New(db bun.IDB) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q that runs inside tx.
func (q *Queries) WithTx(tx bun.IDB) *Queries {
	return &Queries{db: tx}
}

// DailyRecordsForUserInRange returns the user's records with start <= date <= end,
// oldest first.
func (q *Queries) DailyRecordsForUserInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]model.DailyRecord, error) {
	var records []model.DailyRecord
	err := q.db.NewSelect().
		Model(&records).
		Relation("User").
		Where("dr.user_id = ?", userID).
		Where("dr.date >= ?", model.DateOf(start)).
		Where("dr.date <= ?", model.DateOf(end)).
		Order("dr.date ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrap(err, "daily records for user in range")
	}
	return normalizeRecords(records), nil
}

// DailyRecordsOnDate returns every user's record for date.
func (q *Queries) DailyRecordsOnDate(ctx context.Context, date time.Time) ([]model.DailyRecord, error) {
	var records []model.DailyRecord
	err := q.db.NewSelect().
		Model(&records).
		Relation("User").
		Where("dr.date = ?", model.DateOf(date)).
		Order("dr.user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrap(err, "daily records on date")
	}
	return normalizeRecords(records), nil
}

// MonthlySummary sums the denormalised totals of the user's records in the
// given month.
func (q *Queries) MonthlySummary(ctx context.Context, userID uuid.UUID, year int, month time.Month) (model.Totals, error) {
	start, next := model.MonthRange(year, month)

	var income, expense decimal.Decimal
	err := q.db.NewSelect().
		TableExpr("daily_records AS dr").
		ColumnExpr("COALESCE(SUM(dr.total_income), 0)").
		ColumnExpr("COALESCE(SUM(dr.total_expense), 0)").
		Where("dr.user_id = ?", userID).
		Where("dr.date >= ?", start).
		Where("dr.date < ?", next).
		Scan(ctx, &income, &expense)
	if err != nil {
		return model.Totals{}, wrap(err, "monthly summary")
	}
	return model.NewTotals(income, expense), nil
}

// TransactionsForDailyRecord returns the record's transactions, optionally
// restricted to one type.
func (q *Queries) TransactionsForDailyRecord(ctx context.Context, recordID uuid.UUID, typ *model.TransactionType) ([]model.Transaction, error) {
	var txs []model.Transaction
	sel := q.db.NewSelect().
		Model(&txs).
		Where("t.daily_record_id = ?", recordID)
	if typ != nil {
		sel = sel.Where("t.type = ?", *typ)
	}

	if err := sel.Order("t.created_at ASC", "t.id ASC").Scan(ctx); err != nil {
		return nil, wrap(err, "transactions for daily record")
	}
	return normalizeTransactions(txs), nil
}

// TransactionsByTypeAndCategory matches transactions of typ whose category
// equals category, ignoring case when caseInsensitive is set. The parent
// record and its user are loaded with each row.
func (q *Queries) TransactionsByTypeAndCategory(ctx context.Context, typ model.TransactionType, category string, caseInsensitive bool) ([]model.Transaction, error) {
	var txs []model.Transaction
	sel := q.db.NewSelect().
		Model(&txs).
		Relation("DailyRecord").
		Relation("DailyRecord.User").
		Where("t.type = ?", typ)
	if caseInsensitive {
		sel = sel.Where("lower(t.category) = lower(?)", category)
	} else {
		sel = sel.Where("t.category = ?", category)
	}

	if err := sel.Order("t.date ASC", "t.created_at ASC").Scan(ctx); err != nil {
		return nil, wrap(err, "transactions by type and category")
	}
	return normalizeTransactions(txs), nil
}

// TransactionsInDateRange returns every transaction with start <= date <= end.
func (q *Queries) TransactionsInDateRange(ctx context.Context, start, end time.Time) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := q.db.NewSelect().
		Model(&txs).
		Where("t.date >= ?", model.DateOf(start)).
		Where("t.date <= ?", model.DateOf(end)).
		Order("t.date ASC", "t.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrap(err, "transactions in date range")
	}
	return normalizeTransactions(txs), nil
}

// UserTransactionSummary groups the user's transactions in range by type and
// category, largest total first.
func (q *Queries) UserTransactionSummary(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]model.CategorySummary, error) {
	recordIDs := q.db.NewSelect().
		Model((*model.DailyRecord)(nil)).
		Column("dr.id").
		Where("dr.user_id = ?", userID).
		Where("dr.date >= ?", model.DateOf(start)).
		Where("dr.date <= ?", model.DateOf(end))

	var rows []model.CategorySummary
	err := q.db.NewSelect().
		TableExpr("transactions AS t").
		ColumnExpr("t.type AS type").
		ColumnExpr("t.category AS category").
		ColumnExpr("SUM(t.amount) AS total_amount").
		ColumnExpr("COUNT(t.id) AS transaction_count").
		Where("t.daily_record_id IN (?)", recordIDs).
		GroupExpr("t.type, t.category").
		OrderExpr("total_amount DESC, t.type ASC, t.category ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, wrap(err, "user transaction summary")
	}

	for i := range rows {
		rows[i].TotalAmount = model.RoundMoney(rows[i].TotalAmount)
	}
	return rows, nil
}

func normalizeRecords(records []model.DailyRecord) []model.DailyRecord {
	for i := range records {
		records[i].Normalize()
	}
	return records
}

func normalizeTransactions(txs []model.Transaction) []model.Transaction {
	for i := range txs {
		txs[i].Normalize()
	}
	return txs
}

// wrap turns a driver error into a QueryFailure. A missing row becomes
// NotFound.
func wrap(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(err, errors.CategoryNotFound, op+": not found").
			WithTextCode("NOT_FOUND")
	}
	return errors.Wrap(err, errors.CategoryExternal, "query "+op).
		WithTextCode(TextCodeQueryFailure)
}
