package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/gomail.v2"

	"github.com/goliatone/go-ledger-cache/internal/logging"
	"github.com/goliatone/go-ledger-cache/model"
	"github.com/goliatone/go-ledger-cache/pkg/testsupport"
	"github.com/goliatone/go-ledger-cache/query"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

type mapUsers map[uuid.UUID]*model.User

func (m mapUsers) GetUser(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, errors.New("user not found", errors.CategoryNotFound)
	}
	return u, nil
}

func seededJob(t *testing.T, notifier Notifier) (*Job, *testsupport.Seeded) {
	t.Helper()
	db := testsupport.NewDB(t)
	seeded := testsupport.LoadSeed(t, db, testsupport.DefaultSeed(t))

	users := mapUsers{}
	for _, u := range seeded.Users {
		users[u.ID] = u
	}
	return NewJob(query.New(db), users, notifier, WithLogger(logging.Discard())), seeded
}

func TestJobRun(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	job, seeded := seededJob(t, notifier)
	alice := seeded.User(t, "alice")

	rep, err := job.Run(ctx, Request{UserID: alice.ID, Year: 2024, Month: time.March})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	want := model.NewTotals(decimal.RequireFromString("100.00"), decimal.RequireFromString("62.50"))
	if !rep.Totals.Equal(want) {
		t.Errorf("expected %+v, got %+v", want, rep.Totals)
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.messages))
	}

	msg := notifier.messages[0]
	if msg.To != alice.Email {
		t.Errorf("expected recipient %s, got %s", alice.Email, msg.To)
	}
	if msg.Subject != "Monthly Financial Report - March 2024" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	testsupport.CompareWithGolden(t, testsupport.GoldenPath("monthly_report.txt"), []byte(msg.Body))
}

func TestJobRun_EmptyMonth(t *testing.T) {
	notifier := &recordingNotifier{}
	job, seeded := seededJob(t, notifier)

	rep, err := job.Run(context.Background(), Request{UserID: seeded.User(t, "bob").ID, Year: 2023, Month: time.December})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !rep.Totals.Income.IsZero() || !rep.Totals.Expense.IsZero() {
		t.Errorf("expected zero totals, got %+v", rep.Totals)
	}
	if !strings.Contains(notifier.messages[0].Body, "Net Balance: 0.00 VND") {
		t.Errorf("unexpected body %q", notifier.messages[0].Body)
	}
}

func TestJobRun_Errors(t *testing.T) {
	tests := []struct {
		name     string
		req      func(s *testsupport.Seeded) Request
		notifier *recordingNotifier
		cat      errors.Category
	}{
		{
			name:     "invalid month",
			req:      func(s *testsupport.Seeded) Request { return Request{UserID: uuid.New(), Year: 2024, Month: 13} },
			notifier: &recordingNotifier{},
			cat:      errors.CategoryValidation,
		},
		{
			name:     "missing user id",
			req:      func(s *testsupport.Seeded) Request { return Request{Year: 2024, Month: time.March} },
			notifier: &recordingNotifier{},
			cat:      errors.CategoryValidation,
		},
		{
			name:     "unknown user",
			req:      func(s *testsupport.Seeded) Request { return Request{UserID: uuid.New(), Year: 2024, Month: time.March} },
			notifier: &recordingNotifier{},
			cat:      errors.CategoryNotFound,
		},
		{
			name: "delivery failure",
			req: func(s *testsupport.Seeded) Request {
				return Request{UserID: s.Users["alice"].ID, Year: 2024, Month: time.March}
			},
			notifier: &recordingNotifier{err: fmt.Errorf("dial smtp: connection refused")},
			cat:      errors.CategoryExternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, seeded := seededJob(t, tt.notifier)
			_, err := job.Run(context.Background(), tt.req(seeded))
			if !errors.HasCategory(err, tt.cat) {
				t.Fatalf("expected %s error, got %v", tt.cat, err)
			}
		})
	}
}

func TestJobHandle(t *testing.T) {
	notifier := &recordingNotifier{}
	job, seeded := seededJob(t, notifier)

	body, err := json.Marshal(Request{UserID: seeded.User(t, "bob").ID, Year: 2024, Month: time.March})
	if err != nil {
		t.Fatal(err)
	}
	if err := job.Handle(context.Background(), body); err != nil {
		t.Fatalf("Handle() failed: %v", err)
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0].Body, "Total Income: 200.00 VND") {
		t.Errorf("unexpected notifications %+v", notifier.messages)
	}

	err = job.Handle(context.Background(), []byte("{not json"))
	if !errors.HasCategory(err, errors.CategoryBadInput) {
		t.Errorf("expected bad input for malformed body, got %v", err)
	}
}

func TestWithCurrency(t *testing.T) {
	rep := Report{
		User:     &model.User{Email: "a@example.com"},
		Year:     2024,
		Month:    time.February,
		Totals:   model.NewTotals(decimal.RequireFromString("10"), decimal.RequireFromString("12.5")),
		Currency: "EUR",
	}
	msg := rep.Message()
	if !strings.Contains(msg.Body, "Net Balance: -2.50 EUR") {
		t.Errorf("unexpected body %q", msg.Body)
	}
	if msg.Subject != "Monthly Financial Report - February 2024" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}

	job := NewJob(nil, nil, nil, WithCurrency("EUR"))
	if job.currency != "EUR" {
		t.Errorf("expected EUR, got %s", job.currency)
	}
}

type fakeSender struct {
	sent []*gomail.Message
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return nil
}

func TestMailNotifier(t *testing.T) {
	s := &fakeSender{}
	n := &MailNotifier{sender: s, from: "noreply@financialapp.com"}

	err := n.Notify(context.Background(), Message{To: "alice@example.com", Subject: "Monthly Financial Report - March 2024", Body: "Hello"})
	if err != nil {
		t.Fatalf("Notify() failed: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(s.sent))
	}

	m := s.sent[0]
	if got := m.GetHeader("To"); len(got) != 1 || got[0] != "alice@example.com" {
		t.Errorf("unexpected To header %v", got)
	}
	if got := m.GetHeader("From"); len(got) != 1 || got[0] != "noreply@financialapp.com" {
		t.Errorf("unexpected From header %v", got)
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Hello") {
		t.Errorf("body missing from message: %s", buf.String())
	}

	err = n.Notify(context.Background(), Message{Subject: "x"})
	if !errors.IsValidation(err) {
		t.Errorf("expected validation error for missing recipient, got %v", err)
	}
}

func TestMailConfigValidate(t *testing.T) {
	if err := DefaultMailConfig().Validate(); err != nil {
		t.Errorf("disabled config should validate: %v", err)
	}
	cfg := DefaultMailConfig()
	cfg.Host = "smtp.example.com"
	cfg.Port = 0
	if err := cfg.Validate(); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}
