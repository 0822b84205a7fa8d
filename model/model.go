// Package model holds the ledger entities persisted by the storage layer and
// the aggregate shapes returned by the query layer.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// TransactionType distinguishes money coming in from money going out.
type TransactionType string

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// TransactionTypes lists every valid TransactionType.
func TransactionTypes() []TransactionType {
	return []TransactionType{Income, Expense}
}

func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether t is income or expense.
func (t TransactionType) IsValid() bool {
	switch t {
	case Income, Expense:
		return true
	default:
		return false
	}
}

// User owns zero or more daily records.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u" json:"-" msgpack:"-"`

	ID        uuid.UUID `bun:"id,pk" json:"id"`
	Username  string    `bun:"username,notnull,unique" json:"username"`
	Email     string    `bun:"email,notnull" json:"email"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// DailyRecord is the per user, per calendar day roll up of transactions.
// TotalIncome and TotalExpense are derived from the child transactions and
// refreshed by the ledger whenever one of them changes.
type DailyRecord struct {
	bun.BaseModel `bun:"table:daily_records,alias:dr" json:"-"`

	ID           uuid.UUID       `bun:"id,pk" json:"id"`
	UserID       uuid.UUID       `bun:"user_id,notnull" json:"user_id"`
	User         *User           `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Date         time.Time       `bun:"date,notnull" json:"date"`
	TotalIncome  decimal.Decimal `bun:"total_income,notnull" json:"total_income"`
	TotalExpense decimal.Decimal `bun:"total_expense,notnull" json:"total_expense"`
	CreatedAt    time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt    time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

// Transaction is a single income or expense event.
type Transaction struct {
	bun.BaseModel `bun:"table:transactions,alias:t" json:"-"`

	ID            uuid.UUID       `bun:"id,pk" json:"id"`
	DailyRecordID uuid.UUID       `bun:"daily_record_id,notnull" json:"daily_record_id"`
	DailyRecord   *DailyRecord    `bun:"rel:belongs-to,join:daily_record_id=id" json:"daily_record,omitempty"`
	Type          TransactionType `bun:"type,notnull" json:"type"`
	Category      string          `bun:"category,notnull" json:"category"`
	Amount        decimal.Decimal `bun:"amount,notnull" json:"amount"`
	Date          time.Time       `bun:"date,notnull" json:"date"`
	CreatedAt     time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

// Normalize rounds money fields and dates to their canonical form after a
// read, since SQLite hands back sums and decimals as floats.
func (r *DailyRecord) Normalize() {
	r.Date = DateOf(r.Date)
	r.TotalIncome = RoundMoney(r.TotalIncome)
	r.TotalExpense = RoundMoney(r.TotalExpense)
	if r.User != nil && r.User.ID == uuid.Nil {
		r.User = nil
	}
}

// Normalize rounds money fields and dates to their canonical form.
func (t *Transaction) Normalize() {
	t.Date = DateOf(t.Date)
	t.Amount = RoundMoney(t.Amount)
	if t.DailyRecord != nil {
		if t.DailyRecord.ID == uuid.Nil {
			t.DailyRecord = nil
		} else {
			t.DailyRecord.Normalize()
		}
	}
}
