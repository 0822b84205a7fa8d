package report

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-ledger-cache/internal/logging"
)

type recordingPublisher struct {
	mu       sync.Mutex
	requests []Request
	failFor  map[uuid.UUID]bool
}

func (p *recordingPublisher) Publish(_ context.Context, v any) error {
	req := v.(Request)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[req.UserID] {
		return errors.New("broker unavailable", errors.CategoryExternal)
	}
	p.requests = append(p.requests, req)
	return nil
}

type staticUsers struct {
	ids []uuid.UUID
	err error
}

func (s staticUsers) UserIDs(context.Context) ([]uuid.UUID, error) {
	return s.ids, s.err
}

func TestPreviousMonth(t *testing.T) {
	tests := []struct {
		now       time.Time
		wantYear  int
		wantMonth time.Month
	}{
		{time.Date(2024, 4, 1, 0, 5, 0, 0, time.UTC), 2024, time.March},
		{time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), 2023, time.December},
		{time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC), 2024, time.February},
	}
	for _, tt := range tests {
		t.Run(tt.now.Format(time.DateOnly), func(t *testing.T) {
			y, m := PreviousMonth(tt.now)
			if y != tt.wantYear || m != tt.wantMonth {
				t.Errorf("PreviousMonth(%s) = %d-%s, want %d-%s", tt.now, y, m, tt.wantYear, tt.wantMonth)
			}
		})
	}
}

func TestEnqueueMonth(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	pub := &recordingPublisher{failFor: map[uuid.UUID]bool{ids[1]: true}}
	s := NewScheduler(staticUsers{ids: ids}, pub, logging.Discard())

	n, err := s.EnqueueMonth(context.Background(), 2024, time.March)
	if n != 2 {
		t.Errorf("expected 2 queued, got %d", n)
	}
	if !errors.HasCategory(err, errors.CategoryExternal) {
		t.Errorf("expected joined publish error, got %v", err)
	}
	for _, req := range pub.requests {
		if req.Year != 2024 || req.Month != time.March || req.RequestedAt.IsZero() {
			t.Errorf("unexpected request %+v", req)
		}
		if err := req.Validate(); err != nil {
			t.Errorf("queued request is invalid: %v", err)
		}
	}

	body, err := json.Marshal(pub.requests[0])
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeRequest(body)
	if err != nil {
		t.Fatalf("DecodeRequest() failed: %v", err)
	}
	if decoded.UserID != pub.requests[0].UserID || decoded.Month != time.March {
		t.Errorf("decoded %+v", decoded)
	}
}

func TestTick(t *testing.T) {
	ctx := context.Background()
	ids := []uuid.UUID{uuid.New()}
	pub := &recordingPublisher{}
	s := NewScheduler(staticUsers{ids: ids}, pub, logging.Discard())

	ran, err := s.Tick(ctx, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC))
	if ran || err != nil {
		t.Fatalf("tick outside the first day should not run: ran=%v err=%v", ran, err)
	}

	first := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if ran, err := s.Tick(ctx, first); !ran || err != nil {
		t.Fatalf("first tick should run: ran=%v err=%v", ran, err)
	}
	if ran, _ := s.Tick(ctx, first.Add(time.Hour)); ran {
		t.Error("second tick on the same day should not run")
	}
	if len(pub.requests) != 1 || pub.requests[0].Month != time.March {
		t.Errorf("unexpected requests %+v", pub.requests)
	}

	if ran, _ := s.Tick(ctx, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)); !ran {
		t.Error("next month's first day should run")
	}
}

func TestTick_RetriesAfterListingFailure(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	s := NewScheduler(staticUsers{err: errors.New("db down", errors.CategoryExternal)}, pub, logging.Discard())

	first := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.Tick(ctx, first); err == nil {
		t.Fatal("expected listing error")
	}

	s.users = staticUsers{ids: []uuid.UUID{uuid.New()}}
	if ran, err := s.Tick(ctx, first.Add(time.Minute)); !ran || err != nil {
		t.Fatalf("tick should retry after a failed listing: ran=%v err=%v", ran, err)
	}
	if len(pub.requests) != 1 {
		t.Errorf("expected one queued request, got %d", len(pub.requests))
	}
}
