package di

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-ledger-cache/aggregate"
	"github.com/goliatone/go-ledger-cache/cache"
	"github.com/goliatone/go-ledger-cache/internal/logging"
	"github.com/goliatone/go-ledger-cache/ledger"
	"github.com/goliatone/go-ledger-cache/model"
	"github.com/goliatone/go-ledger-cache/pkg/testsupport"
	"github.com/goliatone/go-ledger-cache/query"
)

// TestConcurrentReadWrite interleaves cached reads with ledger writes and
// checks that the totals settle on the database values.
func TestConcurrentReadWrite(t *testing.T) {
	container, seeded := seededContainer(t)
	alice := seeded.User(t, "alice")
	ctx := context.Background()

	const writers = 5
	const readers = 10

	var wg sync.WaitGroup
	errs := make(chan error, writers+readers*10)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := container.Ledger().RecordTransaction(ctx, ledger.NewTransaction{
				UserID:   alice.ID,
				Date:     model.NewDate(2024, time.May, 1+i),
				Type:     model.Expense,
				Category: "coffee",
				Amount:   money("2.50"),
			})
			if err != nil {
				errs <- err
			}
		}(i)
	}
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := container.Totals().GetUserTotals(ctx, alice.ID); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}

	// a read that raced the last invalidation may have stored a stale pair
	container.Totals().InvalidateAll(ctx, alice.ID)

	got, err := container.Totals().GetUserTotals(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if want := model.NewTotals(money("140"), money("75")); !got.Equal(want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestTTLExpiryIntegration(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.DefaultTTL = 50 * time.Millisecond
	container := newTestContainer(t, cfg)
	seeded := testsupport.LoadSeed(t, container.DB(), testsupport.DefaultSeed(t))
	alice := seeded.User(t, "alice")
	ctx := context.Background()

	if _, err := container.Totals().GetUserTotals(ctx, alice.ID); err != nil {
		t.Fatal(err)
	}

	// write behind the ledger's back so only expiry can surface it
	_, err := container.DB().NewUpdate().
		TableExpr("transactions").
		Set("amount = ?", money("300")).
		Where("category = ?", "salary").
		Where("daily_record_id = ?", seeded.Record(t, "alice", "2024-03-01").ID).
		Exec(ctx)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(120 * time.Millisecond)

	got, err := container.Totals().GetUserTotals(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Income.Equal(money("340")) {
		t.Errorf("expected expired entry to be recomputed to 340, got %s", got.Income)
	}
}

func BenchmarkKeySerializationPerformance(b *testing.B) {
	keys := cache.NewDefaultKeySerializer()
	id := uuid.New()

	b.Run("system", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = keys.SerializeKey("system", "totals", model.Income)
		}
	})
	b.Run("user", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = keys.SerializeKey("user", id, "totals", model.Expense)
		}
	})
	b.Run("struct", func(b *testing.B) {
		arg := struct {
			UserID uuid.UUID
			Month  time.Month
		}{id, time.March}
		for i := 0; i < b.N; i++ {
			_ = keys.SerializeKey("report", arg)
		}
	})
}

func BenchmarkCachedVsUncachedTotals(b *testing.B) {
	db := testsupport.NewDB(b)
	seeded := testsupport.LoadSeed(b, db, testsupport.DefaultSeed(b))
	alice := seeded.User(b, "alice")
	ctx := context.Background()
	queries := query.New(db)

	b.Run("uncached", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := queries.UserTotal(ctx, alice.ID, model.Income); err != nil {
				b.Fatal(err)
			}
			if _, err := queries.UserTotal(ctx, alice.ID, model.Expense); err != nil {
				b.Fatal(err)
			}
		}
	})

	backend, err := cache.NewBackend(cache.DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	layer := cache.NewLayer(backend, cache.WithLogger(logging.Discard()))
	defer layer.Close()
	totals := aggregate.NewService(queries, layer, aggregate.WithLogger(logging.Discard()))

	b.Run("cached", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := totals.GetUserTotals(ctx, alice.ID); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkConcurrentCacheAccess(b *testing.B) {
	backend, err := cache.NewBackend(cache.DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	layer := cache.NewLayer(backend, cache.WithLogger(logging.Discard()))
	defer layer.Close()
	ctx := context.Background()

	ids := make([]uuid.UUID, 64)
	for i := range ids {
		ids[i] = uuid.New()
		cache.SetValue(ctx, layer, aggregate.UserKey(ids[i], model.Income), fmt.Sprintf("%d.00", i), time.Minute)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			cache.GetValue[string](ctx, layer, aggregate.UserKey(ids[i%len(ids)], model.Income))
			i++
		}
	})
}
