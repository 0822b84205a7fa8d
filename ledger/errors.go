package ledger

import (
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	TextCodeUsernameTaken  = "USERNAME_TAKEN"
	TextCodeUserNotFound   = "USER_NOT_FOUND"
	TextCodeTxNotFound     = "TRANSACTION_NOT_FOUND"
	TextCodeLedgerConflict = "LEDGER_CONFLICT"
)

const pqUniqueViolation = "23505"

// isUniqueViolation recognises unique constraint failures of both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return string(pgErr.Code) == pqUniqueViolation
	}

	if errors.HasCategory(err, errors.CategoryConflict) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

func userNotFound(id string) error {
	return errors.New("user not found", errors.CategoryNotFound).
		WithTextCode(TextCodeUserNotFound).
		WithMetadata(map[string]any{"user_id": id})
}

func transactionNotFound(id string) error {
	return errors.New("transaction not found", errors.CategoryNotFound).
		WithTextCode(TextCodeTxNotFound).
		WithMetadata(map[string]any{"transaction_id": id})
}

func storeFailure(err error, msg string) error {
	if isUniqueViolation(err) {
		return errors.Wrap(err, errors.CategoryConflict, msg).WithTextCode(TextCodeLedgerConflict)
	}
	var e *errors.Error
	if errors.As(err, &e) {
		return err
	}
	return errors.Wrap(err, errors.CategoryExternal, msg).WithTextCode("QUERY_FAILURE")
}

func conflict(msg, code, value string) error {
	return errors.New(msg, errors.CategoryConflict).
		WithTextCode(code).
		WithMetadata(map[string]any{"value": value})
}
