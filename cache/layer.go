package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-ledger-cache/internal/logging"
)

// Layer is the fail-open front of a Backend. Reads that fail are misses and
// writes that fail are dropped; both are logged and never surface to the
// caller. The Layer holds no state of its own and is safe for concurrent use.
type Layer struct {
	backend    Backend
	defaultTTL time.Duration
	opTimeout  time.Duration
	logger     *slog.Logger
}

// LayerOption customises a Layer.
type LayerOption func(*Layer)

// WithDefaultTTL sets the TTL used when Set is given a non-positive one.
func WithDefaultTTL(ttl time.Duration) LayerOption {
	return func(l *Layer) {
		if ttl > 0 {
			l.defaultTTL = ttl
		}
	}
}

// WithOpTimeout bounds every backend call. Zero disables the bound.
func WithOpTimeout(d time.Duration) LayerOption {
	return func(l *Layer) {
		if d >= 0 {
			l.opTimeout = d
		}
	}
}

// WithLogger sets the logger used for swallowed failures.
func WithLogger(logger *slog.Logger) LayerOption {
	return func(l *Layer) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLayer wraps backend. A nil backend yields a Layer that always misses.
func NewLayer(backend Backend, opts ...LayerOption) *Layer {
	l := &Layer{
		backend:    backend,
		defaultTTL: DefaultTTL,
		opTimeout:  DefaultOpTimeout,
		logger:     logging.Component(nil, logging.ComponentCache),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewLayerFromConfig builds the configured backend and wraps it.
func NewLayerFromConfig(cfg Config, logger *slog.Logger) (*Layer, error) {
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	return NewLayer(backend,
		WithDefaultTTL(cfg.DefaultTTL),
		WithOpTimeout(cfg.OpTimeout),
		WithLogger(logging.Component(logger, logging.ComponentCache)),
	), nil
}

// DefaultTTL returns the TTL applied when none is given.
func (l *Layer) DefaultTTL() time.Duration {
	return l.defaultTTL
}

// Get returns the value under key. ok is false on a miss or on any failure.
func (l *Layer) Get(ctx context.Context, key string) (value []byte, ok bool) {
	if l.backend == nil {
		return nil, false
	}

	ctx, cancel := l.bound(ctx)
	defer cancel()

	value, err := l.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			l.unavailable(ctx, logging.OpGet, err, logging.FieldKey, key)
		}
		return nil, false
	}
	return value, true
}

// Set stores value under key for ttl, or the default TTL when ttl <= 0. It
// reports whether the write reached the backend.
func (l *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if l.backend == nil {
		return false
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}

	ctx, cancel := l.bound(ctx)
	defer cancel()

	if err := l.backend.Set(ctx, key, value, ttl); err != nil {
		l.unavailable(ctx, logging.OpSet, err, logging.FieldKey, key)
		return false
	}
	return true
}

// Delete removes keys. Absent keys are not an error.
func (l *Layer) Delete(ctx context.Context, keys ...string) bool {
	if l.backend == nil {
		return false
	}
	if len(keys) == 0 {
		return true
	}

	ctx, cancel := l.bound(ctx)
	defer cancel()

	if err := l.backend.Delete(ctx, keys...); err != nil {
		l.unavailable(ctx, logging.OpDelete, err, logging.FieldKey, keys)
		return false
	}
	return true
}

// DeleteByPattern removes every key matching the glob pattern.
func (l *Layer) DeleteByPattern(ctx context.Context, pattern string) bool {
	if l.backend == nil {
		return false
	}

	ctx, cancel := l.bound(ctx)
	defer cancel()

	n, err := l.backend.DeleteByPattern(ctx, pattern)
	if err != nil {
		l.unavailable(ctx, logging.OpInvalidate, err, logging.FieldPattern, pattern)
		return false
	}
	l.logger.DebugContext(ctx, "cache keys invalidated", logging.FieldPattern, pattern, logging.FieldCount, n)
	return true
}

// Close releases the backend.
func (l *Layer) Close() error {
	if l.backend == nil {
		return nil
	}
	return l.backend.Close()
}

func (l *Layer) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.opTimeout)
}

func (l *Layer) unavailable(ctx context.Context, op string, err error, args ...any) {
	args = append(args, logging.FieldOperation, op, logging.Err(err))
	l.logger.WarnContext(ctx, "cache unavailable, continuing without it", args...)
}
