package di

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/shopspring/decimal"

	"github.com/goliatone/go-ledger-cache/ledger"
	"github.com/goliatone/go-ledger-cache/model"
	"github.com/goliatone/go-ledger-cache/pkg/testsupport"
	"github.com/goliatone/go-ledger-cache/report"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []report.Message
}

func (n *recordingNotifier) Notify(_ context.Context, msg report.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seededContainer(t *testing.T) (*Container, *testsupport.Seeded) {
	t.Helper()
	container := newTestContainer(t, testConfig())
	return container, testsupport.LoadSeed(t, container.DB(), testsupport.DefaultSeed(t))
}

func TestEndToEndLedgerFlow(t *testing.T) {
	container, seeded := seededContainer(t)
	alice := seeded.User(t, "alice")
	ctx := context.Background()
	counter := testsupport.NewQueryCounter(container.DB())

	system, err := container.Totals().GetSystemTotals(ctx)
	if err != nil {
		t.Fatalf("GetSystemTotals() failed: %v", err)
	}
	if !system.Equal(model.NewTotals(money("340"), money("92.75"))) {
		t.Errorf("unexpected system totals %+v", system)
	}

	counter.Reset()
	if _, err := container.Totals().GetSystemTotals(ctx); err != nil {
		t.Fatal(err)
	}
	if got := counter.Count(); got != 0 {
		t.Errorf("second read should be served from cache, ran %d queries", got)
	}

	_, err = container.Ledger().RecordTransaction(ctx, ledger.NewTransaction{
		UserID:   alice.ID,
		Date:     model.NewDate(2024, time.March, 1),
		Type:     model.Income,
		Category: "bonus",
		Amount:   money("50"),
	})
	if err != nil {
		t.Fatalf("RecordTransaction() failed: %v", err)
	}

	system, err = container.Totals().GetSystemTotals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !system.Income.Equal(money("390")) {
		t.Errorf("expected system income 390 after write, got %s", system.Income)
	}

	user, err := container.Totals().GetUserTotals(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !user.Equal(model.NewTotals(money("190"), money("62.50"))) {
		t.Errorf("unexpected user totals %+v", user)
	}
}

func TestCacheEvictionFlow(t *testing.T) {
	container, seeded := seededContainer(t)
	bob := seeded.User(t, "bob")
	ctx := context.Background()

	if _, err := container.Ledger().GetUser(ctx, bob.ID); err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if _, err := container.Totals().GetUserTotals(ctx, bob.ID); err != nil {
		t.Fatalf("GetUserTotals() failed: %v", err)
	}

	if err := container.Ledger().DeleteUser(ctx, bob.ID); err != nil {
		t.Fatalf("DeleteUser() failed: %v", err)
	}

	if _, err := container.Ledger().GetUser(ctx, bob.ID); !errors.IsNotFound(err) {
		t.Errorf("cached user should be evicted on delete, got %v", err)
	}
	if _, err := container.Totals().GetUserTotals(ctx, bob.ID); !errors.IsNotFound(err) {
		t.Errorf("totals of a deleted user should be NotFound, got %v", err)
	}

	system, err := container.Totals().GetSystemTotals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !system.Equal(model.NewTotals(money("140"), money("62.50"))) {
		t.Errorf("system totals should drop bob's rows, got %+v", system)
	}
}

func TestSingleFlightFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.SingleFlight = true
	container := newTestContainer(t, cfg)
	testsupport.LoadSeed(t, container.DB(), testsupport.DefaultSeed(t))
	counter := testsupport.NewQueryCounter(container.DB())

	const readers = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := container.Totals().GetSystemTotals(context.Background()); err != nil {
				t.Errorf("GetSystemTotals() failed: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	// late readers may hit the cache, early ones share one computation
	if got := counter.CountMatching("SUM("); got > 2*readers || got < 2 {
		t.Errorf("unexpected number of sum queries: %d", got)
	}
}

func TestReportJobFromContainer(t *testing.T) {
	container, seeded := seededContainer(t)
	alice := seeded.User(t, "alice")
	notifier := &recordingNotifier{}

	rep, err := container.ReportJob(notifier).Run(context.Background(), report.Request{
		UserID: alice.ID,
		Year:   2024,
		Month:  time.March,
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if rep.Currency != report.DefaultCurrency {
		t.Errorf("expected %s, got %s", report.DefaultCurrency, rep.Currency)
	}
	if len(notifier.messages) != 1 || notifier.messages[0].To != alice.Email {
		t.Errorf("unexpected notifications %+v", notifier.messages)
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	requests []report.Request
}

func (p *recordingPublisher) Publish(_ context.Context, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, v.(report.Request))
	return nil
}

func TestSchedulerFromContainer(t *testing.T) {
	container, _ := seededContainer(t)
	pub := &recordingPublisher{}

	ran, err := container.Scheduler(pub).Tick(context.Background(), time.Date(2024, 4, 1, 6, 0, 0, 0, time.UTC))
	if !ran || err != nil {
		t.Fatalf("Tick() = %v, %v", ran, err)
	}
	if len(pub.requests) != 2 {
		t.Fatalf("expected one request per user, got %d", len(pub.requests))
	}
	for _, req := range pub.requests {
		if req.Year != 2024 || req.Month != time.March {
			t.Errorf("unexpected period %d-%s", req.Year, req.Month)
		}
	}
}

func TestErrorPropagation(t *testing.T) {
	container, _ := seededContainer(t)
	ctx := context.Background()

	if err := container.DB().Close(); err != nil {
		t.Fatal(err)
	}

	_, err := container.Totals().GetSystemTotals(ctx)
	if !errors.HasCategory(err, errors.CategoryExternal) {
		t.Errorf("expected external error from a closed database, got %v", err)
	}
}
