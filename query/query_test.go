package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/goliatone/go-ledger-cache/model"
	"github.com/goliatone/go-ledger-cache/pkg/testsupport"
	"github.com/goliatone/go-ledger-cache/query"
)

func setup(t *testing.T) (*query.Queries, *testsupport.Seeded) {
	t.Helper()
	db := testsupport.NewDB(t)
	seeded := testsupport.LoadSeed(t, db, testsupport.DefaultSeed(t))
	return query.New(db), seeded
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDailyRecordsForUserInRange(t *testing.T) {
	q, seeded := setup(t)
	alice := seeded.User(t, "alice")
	ctx := context.Background()

	tests := []struct {
		name      string
		start     string
		end       string
		wantDates []string
	}{
		{"inclusive bounds", "2024-03-01", "2024-03-15", []string{"2024-03-01", "2024-03-15"}},
		{"whole range", "2024-01-01", "2024-12-31", []string{"2024-03-01", "2024-03-15", "2024-04-02"}},
		{"single day", "2024-04-02", "2024-04-02", []string{"2024-04-02"}},
		{"no rows", "2025-01-01", "2025-01-31", nil},
		{"inverted range", "2024-04-30", "2024-03-01", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := q.DailyRecordsForUserInRange(ctx, alice.ID, date(tt.start), date(tt.end))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(records) != len(tt.wantDates) {
				t.Fatalf("expected %d records, got %d", len(tt.wantDates), len(records))
			}
			for i, want := range tt.wantDates {
				if got := records[i].Date.Format(model.DateLayout); got != want {
					t.Errorf("record %d: expected date %s, got %s", i, want, got)
				}
				if records[i].User == nil || records[i].User.Username != "alice" {
					t.Errorf("record %d: expected user to be loaded", i)
				}
			}
		})
	}
}

func TestDailyRecordsOnDate(t *testing.T) {
	q, _ := setup(t)

	records, err := q.DailyRecordsOnDate(context.Background(), date("2024-03-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected one record per user, got %d", len(records))
	}
	for _, r := range records {
		if !r.Date.Equal(date("2024-03-01")) {
			t.Errorf("unexpected date %v", r.Date)
		}
	}
}

func TestMonthlySummary_SumsDailyRecordTotals(t *testing.T) {
	q, seeded := setup(t)
	ctx := context.Background()

	tests := []struct {
		user    string
		month   time.Month
		income  string
		expense string
	}{
		{"alice", time.March, "100.00", "62.50"},
		{"alice", time.April, "40.00", "0.00"},
		{"alice", time.May, "0.00", "0.00"},
		{"bob", time.March, "200.00", "30.25"},
	}

	for _, tt := range tests {
		t.Run(tt.user+"-"+tt.month.String(), func(t *testing.T) {
			u := seeded.User(t, tt.user)
			totals, err := q.MonthlySummary(ctx, u.ID, 2024, tt.month)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := model.NewTotals(dec(tt.income), dec(tt.expense))
			if !totals.Equal(want) {
				t.Errorf("expected %s/%s, got %s/%s", want.Income, want.Expense, totals.Income, totals.Expense)
			}

			var sumIncome, sumExpense decimal.Decimal
			start, next := model.MonthRange(2024, tt.month)
			for _, r := range seeded.DailyRecords {
				if r.UserID == u.ID && !r.Date.Before(start) && r.Date.Before(next) {
					sumIncome = sumIncome.Add(r.TotalIncome)
					sumExpense = sumExpense.Add(r.TotalExpense)
				}
			}
			if !totals.Income.Equal(sumIncome) || !totals.Expense.Equal(sumExpense) {
				t.Errorf("summary does not match daily records: %s/%s vs %s/%s", totals.Income, totals.Expense, sumIncome, sumExpense)
			}
		})
	}
}

func TestTransactionsForDailyRecord(t *testing.T) {
	q, seeded := setup(t)
	rec := seeded.Record(t, "alice", "2024-03-01")
	ctx := context.Background()

	all, err := q.TransactionsForDailyRecord(ctx, rec.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(all))
	}

	income := model.Income
	onlyIncome, err := q.TransactionsForDailyRecord(ctx, rec.ID, &income)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(onlyIncome) != 1 || onlyIncome[0].Category != "salary" {
		t.Errorf("expected the salary transaction, got %+v", onlyIncome)
	}

	none, err := q.TransactionsForDailyRecord(ctx, uuid.New(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no transactions for unknown record, got %d", len(none))
	}
}

func TestTransactionsByTypeAndCategory(t *testing.T) {
	q, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		name            string
		typ             model.TransactionType
		category        string
		caseInsensitive bool
		want            int
	}{
		{"exact", model.Expense, "food", false, 2},
		{"case insensitive", model.Expense, "TRANSPORT", true, 1},
		{"case sensitive miss", model.Expense, "transport", false, 0},
		{"type filter", model.Income, "food", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, err := q.TransactionsByTypeAndCategory(ctx, tt.typ, tt.category, tt.caseInsensitive)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(txs) != tt.want {
				t.Fatalf("expected %d transactions, got %d", tt.want, len(txs))
			}
			for _, tx := range txs {
				if tx.DailyRecord == nil || tx.DailyRecord.User == nil {
					t.Errorf("expected daily record and user to be loaded for %s", tx.ID)
				}
			}
		})
	}
}

func TestTransactionsInDateRange(t *testing.T) {
	q, _ := setup(t)

	txs, err := q.TransactionsInDateRange(context.Background(), date("2024-03-01"), date("2024-03-15"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 4 {
		t.Fatalf("expected 4 transactions, got %d", len(txs))
	}
	for i := 1; i < len(txs); i++ {
		if txs[i].Date.Before(txs[i-1].Date) {
			t.Errorf("transactions not ordered by date: %v before %v", txs[i-1].Date, txs[i].Date)
		}
	}
}

func TestUserTransactionSummary_SingleDayScenario(t *testing.T) {
	q, seeded := setup(t)
	alice := seeded.User(t, "alice")

	rows, err := q.UserTransactionSummary(context.Background(), alice.ID, date("2024-03-01"), date("2024-03-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []model.CategorySummary{
		{Type: model.Income, Category: "salary", TotalAmount: dec("100.00"), Count: 1},
		{Type: model.Expense, Category: "food", TotalAmount: dec("50.00"), Count: 1},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d groups, got %d: %+v", len(want), len(rows), rows)
	}
	for i := range want {
		got := rows[i]
		if got.Type != want[i].Type || got.Category != want[i].Category || got.Count != want[i].Count || !got.TotalAmount.Equal(want[i].TotalAmount) {
			t.Errorf("group %d: expected %+v, got %+v", i, want[i], got)
		}
	}
}

func TestUserTransactionSummary_ExcludesOtherUsers(t *testing.T) {
	q, seeded := setup(t)
	bob := seeded.User(t, "bob")

	rows, err := q.UserTransactionSummary(context.Background(), bob.ID, date("2024-03-01"), date("2024-03-31"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 groups for bob, got %+v", rows)
	}
	if rows[0].Category != "salary" || !rows[0].TotalAmount.Equal(dec("200")) {
		t.Errorf("expected salary 200 first, got %+v", rows[0])
	}
}

func TestSystemAndUserTotals(t *testing.T) {
	q, seeded := setup(t)
	ctx := context.Background()

	income, err := q.SystemTotal(ctx, model.Income)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !income.Equal(dec("340.00")) {
		t.Errorf("expected system income 340.00, got %s", income)
	}

	expense, err := q.UserTotal(ctx, seeded.User(t, "alice").ID, model.Expense)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !expense.Equal(dec("62.50")) {
		t.Errorf("expected alice expense 62.50, got %s", expense)
	}

	zero, err := q.UserTotal(ctx, uuid.New(), model.Income)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !zero.IsZero() {
		t.Errorf("expected zero for unknown user, got %s", zero)
	}
}

func TestMonthlyTransactionTotals(t *testing.T) {
	q, seeded := setup(t)

	totals, err := q.MonthlyTransactionTotals(context.Background(), seeded.User(t, "alice").ID, 2024, time.March)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !totals.Equal(model.NewTotals(dec("100"), dec("62.5"))) {
		t.Errorf("unexpected totals %+v", totals)
	}
	if !totals.Net().Equal(dec("37.5")) {
		t.Errorf("expected net 37.50, got %s", totals.Net())
	}
}

func TestCategoryBreakdownAndStats(t *testing.T) {
	q, _ := setup(t)
	ctx := context.Background()

	breakdown, err := q.CategoryBreakdown(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(breakdown) != 4 {
		t.Fatalf("expected 4 categories, got %+v", breakdown)
	}
	if breakdown[0].Category != "food" || breakdown[0].Count != 2 {
		t.Errorf("expected food with 2 transactions first, got %+v", breakdown[0])
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Users != 2 || stats.DailyRecords != 5 || stats.Transactions != 6 {
		t.Errorf("unexpected counts %+v", stats)
	}
	if !stats.AvgTransactionsPerUser.Equal(dec("3")) {
		t.Errorf("expected 3 transactions per user, got %s", stats.AvgTransactionsPerUser)
	}
	if !stats.Net.Equal(dec("247.25")) {
		t.Errorf("expected net 247.25, got %s", stats.Net)
	}
}

func TestLookups(t *testing.T) {
	q, seeded := setup(t)
	ctx := context.Background()

	ok, err := q.UserExists(ctx, seeded.User(t, "bob").ID)
	if err != nil || !ok {
		t.Errorf("expected bob to exist, got %v, %v", ok, err)
	}
	ok, err = q.DailyRecordExists(ctx, uuid.New())
	if err != nil || ok {
		t.Errorf("expected unknown record to be absent, got %v, %v", ok, err)
	}

	want := seeded.Transactions[0]
	got, err := q.TransactionByID(ctx, want.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DailyRecord == nil || got.DailyRecord.ID != want.DailyRecordID {
		t.Errorf("expected parent record to be loaded")
	}

	_, err = q.TransactionByID(ctx, uuid.New())
	if !errors.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}

	ids, err := q.UserIDs(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 user ids, got %d", len(ids))
	}
}

func TestQueryFailureIsExternal(t *testing.T) {
	db := testsupport.NewDB(t)
	q := query.New(db)
	db.Close()

	_, err := q.SystemTotal(context.Background(), model.Income)
	if err == nil {
		t.Fatal("expected error from closed database")
	}
	if !errors.IsCategory(err, errors.CategoryExternal) {
		t.Errorf("expected external category, got %v", err)
	}
}
