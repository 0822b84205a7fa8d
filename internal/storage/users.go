package storage

import (
	"database/sql"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-cache/model"
)

// NewUserRepository returns the users repository. Users are addressed by id
// or by their username.
func NewUserRepository(db *bun.DB) repository.Repository[*model.User] {
	return repository.NewRepository[*model.User](db, repository.ModelHandlers[*model.User]{
		NewRecord: func() *model.User {
			return &model.User{}
		},
		GetID: func(u *model.User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *model.User, id uuid.UUID) {
			u.ID = id
		},
		GetIdentifier: func() string {
			return "username"
		},
	})
}

// IsNotFound reports whether err means the requested row does not exist,
// whichever layer produced it.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) || errors.HasCategory(err, errors.CategoryNotFound)
}
