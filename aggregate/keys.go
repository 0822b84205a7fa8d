package aggregate

import (
	"github.com/google/uuid"

	"github.com/goliatone/go-ledger-cache/cache"
	"github.com/goliatone/go-ledger-cache/model"
)

const (
	systemPrefix = "system"
	userPrefix   = "user"
	totalsPart   = "totals"
)

var keys = cache.NewDefaultKeySerializer()

// SystemKey is the cache key of the system wide total for typ.
func SystemKey(typ model.TransactionType) string {
	return keys.SerializeKey(systemPrefix, totalsPart, typ)
}

// UserKey is the cache key of one user's total for typ.
func UserKey(userID uuid.UUID, typ model.TransactionType) string {
	return keys.SerializeKey(userPrefix, userID, totalsPart, typ)
}

// UserPattern matches every cached total of one user.
func UserPattern(userID uuid.UUID) string {
	return keys.SerializeKey(userPrefix, userID, totalsPart, "*")
}
