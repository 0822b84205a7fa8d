package repositorycache

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-cache/cache"
	"github.com/goliatone/go-ledger-cache/internal/logging"
)

var _ repository.Repository[any] = (*CachedRepository[any])(nil)

const namespacePrefix = "repo"

// CachedRepository decorates a base repository. GetByID and GetByIdentifier
// calls without criteria are read through the cache layer; every write that
// can change a cached record drops that record's keys.
type CachedRepository[T any] struct {
	base      repository.Repository[T]
	layer     *cache.Layer
	keys      cache.KeySerializer
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
}

// Option customises a CachedRepository.
type Option[T any] func(*CachedRepository[T])

// WithNamespace overrides the key namespace derived from the record type.
func WithNamespace[T any](namespace string) Option[T] {
	return func(c *CachedRepository[T]) {
		if namespace != "" {
			c.namespace = namespace
		}
	}
}

// WithTTL sets the TTL of cached records. Zero uses the layer default.
func WithTTL[T any](ttl time.Duration) Option[T] {
	return func(c *CachedRepository[T]) {
		c.ttl = ttl
	}
}

// WithKeySerializer replaces the default key serializer.
func WithKeySerializer[T any](keys cache.KeySerializer) Option[T] {
	return func(c *CachedRepository[T]) {
		if keys != nil {
			c.keys = keys
		}
	}
}

// WithLogger sets the logger used for invalidation traces.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(c *CachedRepository[T]) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New wraps base. Keys live under repo:<snake_case type name>.
func New[T any](base repository.Repository[T], layer *cache.Layer, opts ...Option[T]) *CachedRepository[T] {
	c := &CachedRepository[T]{
		base:      base,
		layer:     layer,
		keys:      cache.NewDefaultKeySerializer(),
		namespace: defaultNamespace[T](),
		logger:    logging.Component(nil, logging.ComponentRepoCache),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Namespace returns the prefix shared by every key of this repository.
func (c *CachedRepository[T]) Namespace() string {
	return c.namespace
}

// IDKey is the cache key of the record with the given id.
func (c *CachedRepository[T]) IDKey(id string) string {
	return c.keys.SerializeKey(c.namespace, "id", id)
}

// IdentifierKey is the cache key of the record with the given identifier value.
func (c *CachedRepository[T]) IdentifierKey(identifier string) string {
	return c.keys.SerializeKey(c.namespace, "identifier", identifier)
}

// Invalidate drops the cached entries of record. Callers writing through
// the *Tx methods call it again once their transaction has committed.
func (c *CachedRepository[T]) Invalidate(ctx context.Context, record T) {
	keys := make([]string, 0, 2)
	if id := c.recordID(record); id != "" {
		keys = append(keys, c.IDKey(id))
	}
	if identifier := c.recordIdentifier(record); identifier != "" {
		keys = append(keys, c.IdentifierKey(identifier))
	}
	if len(keys) == 0 {
		c.InvalidateAll(ctx)
		return
	}
	c.layer.Delete(ctx, keys...)
	c.logger.DebugContext(ctx, "repository keys invalidated", logging.FieldOperation, logging.OpInvalidate, logging.FieldKey, strings.Join(keys, ","))
}

// InvalidateAll drops every cached entry of this repository.
func (c *CachedRepository[T]) InvalidateAll(ctx context.Context) {
	pattern := c.namespace + cache.KeySeparator + "*"
	c.layer.DeleteByPattern(ctx, pattern)
	c.logger.DebugContext(ctx, "repository namespace invalidated", logging.FieldOperation, logging.OpInvalidate, logging.FieldPattern, pattern)
}

// GetByID reads through the cache when no criteria are given.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	if len(criteria) > 0 {
		return c.base.GetByID(ctx, id, criteria...)
	}
	return cache.GetOrFetch(ctx, c.layer, c.IDKey(id), c.ttl, func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id)
	})
}

// GetByIdentifier reads through the cache when no criteria are given.
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	if len(criteria) > 0 {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	}
	return cache.GetOrFetch(ctx, c.layer, c.IdentifierKey(identifier), c.ttl, func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier)
	})
}

func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.Get(ctx, criteria...)
}

func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.List(ctx, criteria...)
}

func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.Count(ctx, criteria...)
}

// Create and its variants never make a cached entry stale: failed lookups
// are not cached.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	return c.base.Create(ctx, record, criteria...)
}

func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	return c.base.CreateTx(ctx, tx, record, criteria...)
}

func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return c.base.CreateMany(ctx, records, criteria...)
}

func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return c.base.CreateManyTx(ctx, tx, records, criteria...)
}

func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	return c.base.GetOrCreate(ctx, record)
}

func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	return c.base.GetOrCreateTx(ctx, tx, record)
}

// Update invalidates both the submitted and the stored version, since the
// identifier may have changed.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	c.invalidateStored(ctx, record)
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.Invalidate(ctx, result)
	}
	return result, err
}

func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	c.invalidateStored(ctx, record)
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.Invalidate(ctx, result)
	}
	return result, err
}

func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.InvalidateAll(ctx)
	}
	return result, err
}

func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.InvalidateAll(ctx)
	}
	return result, err
}

func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	c.invalidateStored(ctx, record)
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.Invalidate(ctx, result)
	}
	return result, err
}

func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	c.invalidateStored(ctx, record)
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.Invalidate(ctx, result)
	}
	return result, err
}

func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.InvalidateAll(ctx)
	}
	return result, err
}

func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.InvalidateAll(ctx)
	}
	return result, err
}

func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.Invalidate(ctx, record)
	}
	return err
}

func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	if err == nil {
		c.Invalidate(ctx, record)
	}
	return err
}

// DeleteMany cannot tell which records went away, so the whole namespace
// is dropped.
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.InvalidateAll(ctx)
	}
	return err
}

func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.InvalidateAll(ctx)
	}
	return err
}

func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.InvalidateAll(ctx)
	}
	return err
}

func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.InvalidateAll(ctx)
	}
	return err
}

func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	if err == nil {
		c.Invalidate(ctx, record)
	}
	return err
}

func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.Invalidate(ctx, record)
	}
	return err
}

// Reads inside a transaction bypass the cache so uncommitted rows are never
// cached.
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

// invalidateStored drops the keys of the currently cached version of
// record, which may carry an identifier the update is about to replace.
func (c *CachedRepository[T]) invalidateStored(ctx context.Context, record T) {
	id := c.recordID(record)
	if id == "" {
		return
	}
	if stored, ok := cache.GetValue[T](ctx, c.layer, c.IDKey(id)); ok {
		c.Invalidate(ctx, stored)
	}
}

func (c *CachedRepository[T]) recordID(record T) string {
	h := c.base.Handlers()
	if h.GetID == nil || isNil(record) {
		return ""
	}
	id := h.GetID(record)
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// recordIdentifier reads the value of the identifier column through the
// record's bun tags.
func (c *CachedRepository[T]) recordIdentifier(record T) string {
	h := c.base.Handlers()
	if h.GetIdentifier == nil || isNil(record) {
		return ""
	}
	column := h.GetIdentifier()
	if column == "" {
		return ""
	}

	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return ""
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("bun"), ",")
		if name == "" {
			name = snakeCase(field.Name)
		}
		if name == column {
			return fmt.Sprintf("%v", v.Field(i).Interface())
		}
	}
	return ""
}

func defaultNamespace[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := snakeCase(t.Name())
	if name == "" {
		name = "record"
	}
	return namespacePrefix + cache.KeySeparator + name
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
