package model

import (
	"github.com/shopspring/decimal"
)

// Totals is an income/expense pair.
type Totals struct {
	Income  decimal.Decimal `json:"total_income"`
	Expense decimal.Decimal `json:"total_expense"`
}

// NewTotals builds a Totals with both amounts rounded to cents.
func NewTotals(income, expense decimal.Decimal) Totals {
	return Totals{Income: RoundMoney(income), Expense: RoundMoney(expense)}
}

// Net is income minus expense.
func (t Totals) Net() decimal.Decimal {
	return t.Income.Sub(t.Expense)
}

// Equal compares both amounts numerically.
func (t Totals) Equal(other Totals) bool {
	return t.Income.Equal(other.Income) && t.Expense.Equal(other.Expense)
}

// Amount returns the side of the pair matching typ.
func (t Totals) Amount(typ TransactionType) decimal.Decimal {
	if typ == Expense {
		return t.Expense
	}
	return t.Income
}

// CategorySummary is one (type, category) group of a user's transactions.
type CategorySummary struct {
	Type        TransactionType `bun:"type" json:"type"`
	Category    string          `bun:"category" json:"category"`
	TotalAmount decimal.Decimal `bun:"total_amount" json:"total_amount"`
	Count       int64           `bun:"transaction_count" json:"count"`
}

// CategoryStat is the system wide count and sum for one category.
type CategoryStat struct {
	Category string          `bun:"category" json:"category"`
	Count    int64           `bun:"transaction_count" json:"count"`
	Total    decimal.Decimal `bun:"total" json:"total"`
}

// DatabaseStats mirrors the operational stats report.
type DatabaseStats struct {
	Users                  int             `json:"total_users"`
	DailyRecords           int             `json:"total_daily_records"`
	Transactions           int             `json:"total_transactions"`
	AvgTransactionsPerUser decimal.Decimal `json:"avg_transactions_per_user"`
	Totals                 Totals          `json:"totals"`
	Net                    decimal.Decimal `json:"net_balance"`
}
