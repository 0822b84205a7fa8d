// Package repositorycache decorates go-repository-bun repositories with a
// read-through cache.
//
// Only lookups of a single record without criteria are cached:
//
//	users := repositorycache.New(storage.NewUserRepository(db), layer)
//	u, err := users.GetByIdentifier(ctx, "alice")
//
// Keys are built from a namespace derived from the record type
// (repo:user:id:<uuid>, repo:user:identifier:<username>). Writes that can
// change a cached record drop its keys once the base repository returns
// without error; criteria based deletes drop the whole namespace. Failed
// lookups are never cached and cache failures only cost the extra query.
//
// Reads inside a transaction bypass the cache. Writes made with the *Tx
// methods invalidate eagerly; callers call Invalidate again after commit.
package repositorycache
