package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-ledger-cache/internal/cacheinfra"
)

// ErrMiss is returned by a Backend when a key is absent or expired.
var ErrMiss = cacheinfra.ErrMiss

// Backend is the raw key-value store behind a Layer. Implementations report
// failures as errors; the Layer decides what to do with them.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
	Close() error
}

var (
	_ Backend = (*cacheinfra.MemoryBackend)(nil)
	_ Backend = (*cacheinfra.RedisBackend)(nil)
)
