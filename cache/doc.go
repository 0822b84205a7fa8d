// Package cache is the key-value layer in front of the ledger's aggregate
// queries.
//
// A Backend stores raw bytes: an in-process sturdyc client or redis. A Layer
// wraps a Backend and makes every operation fail-open. A failed or slow Get
// reads as a miss and a failed Set or Delete is logged and dropped, so callers
// always fall back to the source of truth. Each backend call is bounded by
// the configured operation timeout.
//
// Typed values go through GetValue, SetValue and GetOrFetch, which encode
// with msgpack:
//
//	layer, err := cache.NewLayerFromConfig(cfg.Cache, logger)
//	key := cache.NewDefaultKeySerializer().SerializeKey("user", userID, "totals", "income")
//	cache.SetValue(ctx, layer, key, "150.00", 0) // default TTL
//	v, ok := cache.GetValue[string](ctx, layer, key)
//
// Keys are ':' separated. DeleteByPattern takes a glob such as
// "user:<id>:totals:*".
package cache
