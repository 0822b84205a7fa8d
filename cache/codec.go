package cache

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-ledger-cache/internal/logging"
)

// FetchFn loads a value from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// GetValue reads and decodes the msgpack value under key. A value that does
// not decode into T counts as a miss.
func GetValue[T any](ctx context.Context, l *Layer, key string) (T, bool) {
	var zero T

	raw, ok := l.Get(ctx, key)
	if !ok {
		return zero, false
	}

	var v T
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		l.logger.WarnContext(ctx, "discarding undecodable cache entry", logging.FieldKey, key, logging.Err(err))
		return zero, false
	}
	return v, true
}

// SetValue encodes v with msgpack and stores it under key.
func SetValue[T any](ctx context.Context, l *Layer, key string, v T, ttl time.Duration) bool {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		l.logger.WarnContext(ctx, "cache value not encodable", logging.FieldKey, key, logging.Err(err))
		return false
	}
	return l.Set(ctx, key, raw, ttl)
}

// GetOrFetch returns the cached value under key, or calls fetch and caches
// its result. Errors from fetch are returned and nothing is cached.
func GetOrFetch[T any](ctx context.Context, l *Layer, key string, ttl time.Duration, fetch FetchFn[T]) (T, error) {
	if v, ok := GetValue[T](ctx, l, key); ok {
		return v, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	SetValue(ctx, l, key, v, ttl)
	return v, nil
}
