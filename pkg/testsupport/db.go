package testsupport

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-cache/internal/storage"
)

// NewDB opens a private in-memory SQLite database with the ledger schema
// applied. The database is closed when the test ends.
func NewDB(t testing.TB) *bun.DB {
	t.Helper()

	cfg := storage.Config{
		Driver:       storage.DriverSQLite,
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		AutoMigrate:  true,
	}

	db, err := storage.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// QueryCounter is a bun query hook recording every SELECT statement.
type QueryCounter struct {
	mu      sync.Mutex
	queries []string
}

var _ bun.QueryHook = (*QueryCounter)(nil)

// NewQueryCounter installs a counter on db.
func NewQueryCounter(db *bun.DB) *QueryCounter {
	c := &QueryCounter{}
	db.AddQueryHook(c)
	return c
}

func (c *QueryCounter) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (c *QueryCounter) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if event.Operation() != "SELECT" {
		return
	}
	c.mu.Lock()
	c.queries = append(c.queries, event.Query)
	c.mu.Unlock()
}

// Count returns the number of SELECT statements seen since the last Reset.
func (c *QueryCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

// CountMatching returns how many recorded statements contain substr,
// compared case-insensitively.
func (c *QueryCounter) CountMatching(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	needle := strings.ToLower(substr)
	for _, q := range c.queries {
		if strings.Contains(strings.ToLower(q), needle) {
			n++
		}
	}
	return n
}

// Queries returns a copy of the recorded statements.
func (c *QueryCounter) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

// Reset forgets every recorded statement.
func (c *QueryCounter) Reset() {
	c.mu.Lock()
	c.queries = nil
	c.mu.Unlock()
}
