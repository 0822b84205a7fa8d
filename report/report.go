// Package report builds and dispatches the monthly income/expense report.
// Figures come straight from the query layer, never from the cache.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-ledger-cache/internal/logging"
	"github.com/goliatone/go-ledger-cache/model"
)

// DefaultCurrency labels report amounts when none is configured.
const DefaultCurrency = "VND"

// Request asks for one user's report for one month.
type Request struct {
	UserID      uuid.UUID  `json:"user_id"`
	Year        int        `json:"year"`
	Month       time.Month `json:"month"`
	RequestedAt time.Time  `json:"requested_at"`
}

func (r Request) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.By(func(v any) error {
			if id, _ := v.(uuid.UUID); id == uuid.Nil {
				return validation.NewError("validation_required", "cannot be blank")
			}
			return nil
		})),
		validation.Field(&r.Year, validation.Required, validation.Min(1970), validation.Max(9999)),
		validation.Field(&r.Month, validation.Required, validation.Min(time.January), validation.Max(time.December)),
	)
	if err != nil {
		return errors.FromOzzoValidation(err, "invalid report request")
	}
	return nil
}

// MonthlyTotals sums a user's transactions for a month.
type MonthlyTotals interface {
	MonthlyTransactionTotals(ctx context.Context, userID uuid.UUID, year int, month time.Month) (model.Totals, error)
}

// Users resolves the report recipient.
type Users interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Message is a rendered notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers a rendered report.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Report is one user's figures for one month.
type Report struct {
	User     *model.User
	Year     int
	Month    time.Month
	Totals   model.Totals
	Currency string
}

// Period renders the month as "March 2024".
func (r Report) Period() string {
	return fmt.Sprintf("%s %d", r.Month, r.Year)
}

// Message renders the notification for the report.
func (r Report) Message() Message {
	var b strings.Builder
	b.WriteString("Hello,\n\n")
	fmt.Fprintf(&b, "Here is your financial report for %s:\n", r.Period())
	fmt.Fprintf(&b, "- Total Income: %s %s\n", r.Totals.Income.StringFixed(model.MoneyPlaces), r.Currency)
	fmt.Fprintf(&b, "- Total Expense: %s %s\n", r.Totals.Expense.StringFixed(model.MoneyPlaces), r.Currency)
	fmt.Fprintf(&b, "- Net Balance: %s %s\n\n", r.Totals.Net().StringFixed(model.MoneyPlaces), r.Currency)
	b.WriteString("Thank you for using our service!")

	return Message{
		To:      r.User.Email,
		Subject: "Monthly Financial Report - " + r.Period(),
		Body:    b.String(),
	}
}

// Job builds and sends monthly reports.
type Job struct {
	totals   MonthlyTotals
	users    Users
	notifier Notifier
	currency string
	logger   *slog.Logger
}

// JobOption customises a Job.
type JobOption func(*Job)

func WithCurrency(currency string) JobOption {
	return func(j *Job) {
		if currency != "" {
			j.currency = currency
		}
	}
}

func WithLogger(logger *slog.Logger) JobOption {
	return func(j *Job) {
		if logger != nil {
			j.logger = logger
		}
	}
}

func NewJob(totals MonthlyTotals, users Users, notifier Notifier, opts ...JobOption) *Job {
	j := &Job{
		totals:   totals,
		users:    users,
		notifier: notifier,
		currency: DefaultCurrency,
		logger:   logging.Component(nil, logging.ComponentReport),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run computes the report for req and hands it to the notifier.
func (j *Job) Run(ctx context.Context, req Request) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := j.users.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	totals, err := j.totals.MonthlyTransactionTotals(ctx, req.UserID, req.Year, req.Month)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		User:     user,
		Year:     req.Year,
		Month:    req.Month,
		Totals:   totals,
		Currency: j.currency,
	}
	if err := j.notifier.Notify(ctx, rep.Message()); err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "send monthly report").
			WithTextCode("REPORT_DELIVERY_FAILED")
	}

	j.logger.InfoContext(ctx, "monthly report sent",
		logging.FieldUserID, req.UserID,
		logging.FieldYear, req.Year,
		logging.FieldMonth, int(req.Month),
	)
	return rep, nil
}

// Handle decodes a queued request and runs it. Undecodable bodies are
// reported as bad input so the consumer drops them.
func (j *Job) Handle(ctx context.Context, body []byte) error {
	req, err := DecodeRequest(body)
	if err != nil {
		return err
	}
	_, err = j.Run(ctx, req)
	return err
}
