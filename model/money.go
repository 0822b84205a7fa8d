package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fraction digits kept for every amount.
const MoneyPlaces = 2

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// RoundMoney rounds d half away from zero to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// ParseAmount parses a decimal string. Both "12.34" and "12,34" are accepted.
// It does not check the sign; validation does that.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return RoundMoney(d), nil
}

// NewDate returns UTC midnight of the given calendar day.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates t to its calendar day in UTC. The wall clock date of t is
// kept, not the UTC instant, so 23:30 local time stays on the same day.
func DateOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string into a UTC date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// MonthRange returns the first day of the month and the first day of the
// following month.
func MonthRange(year int, month time.Month) (time.Time, time.Time) {
	start := NewDate(year, month, 1)
	return start, start.AddDate(0, 1, 0)
}
