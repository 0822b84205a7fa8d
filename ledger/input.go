package ledger

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/goliatone/go-ledger-cache/model"
)

// Column widths of the users and transactions tables.
const (
	maxUsernameLength = 150
	maxEmailLength    = 254
	maxCategoryLength = 50
)

var (
	usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	// DECIMAL(12,2)
	maxAmount = decimal.New(1, 10)
)

// NewUser is the input of CreateUser.
type NewUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (u NewUser) Validate() error {
	err := validation.ValidateStruct(&u,
		validation.Field(&u.Username,
			validation.Required,
			validation.Length(1, maxUsernameLength),
			validation.Match(usernamePattern).Error("may only contain letters, digits and @.+-_"),
		),
		validation.Field(&u.Email,
			validation.Required,
			validation.Length(1, maxEmailLength),
			validation.Match(emailPattern).Error("must be a valid email address"),
		),
	)
	return invalid(err, "invalid user")
}

// NewTransaction is the input of RecordTransaction. The transaction is filed
// under the user's daily record for Date.
type NewTransaction struct {
	UserID   uuid.UUID             `json:"user_id"`
	Date     time.Time             `json:"date"`
	Type     model.TransactionType `json:"type"`
	Category string                `json:"category"`
	Amount   decimal.Decimal       `json:"amount"`
}

func (t NewTransaction) Validate() error {
	err := validation.ValidateStruct(&t,
		validation.Field(&t.UserID, validation.By(requiredUUID)),
		validation.Field(&t.Date, validation.Required),
		validation.Field(&t.Type, validation.Required, validation.In(model.Income, model.Expense)),
		validation.Field(&t.Category, validation.Required, validation.Length(1, maxCategoryLength)),
		validation.Field(&t.Amount, validation.By(validAmount)),
	)
	return invalid(err, "invalid transaction")
}

// TransactionUpdate carries the fields UpdateTransaction changes. Nil fields
// are left alone.
type TransactionUpdate struct {
	Date     *time.Time             `json:"date,omitempty"`
	Type     *model.TransactionType `json:"type,omitempty"`
	Category *string                `json:"category,omitempty"`
	Amount   *decimal.Decimal       `json:"amount,omitempty"`
}

func (u TransactionUpdate) Validate() error {
	err := validation.ValidateStruct(&u,
		validation.Field(&u.Date, validation.NilOrNotEmpty),
		validation.Field(&u.Type, validation.NilOrNotEmpty, validation.In(model.Income, model.Expense)),
		validation.Field(&u.Category, validation.NilOrNotEmpty, validation.Length(1, maxCategoryLength)),
		validation.Field(&u.Amount, validation.By(optionalAmount)),
	)
	if err != nil {
		return invalid(err, "invalid transaction update")
	}
	if u.IsEmpty() {
		return errors.New("transaction update has no fields", errors.CategoryValidation).
			WithTextCode("EMPTY_UPDATE")
	}
	return nil
}

// IsEmpty reports whether the update changes nothing.
func (u TransactionUpdate) IsEmpty() bool {
	return u.Date == nil && u.Type == nil && u.Category == nil && u.Amount == nil
}

func requiredUUID(value any) error {
	id, _ := value.(uuid.UUID)
	if id == uuid.Nil {
		return validation.NewError("validation_required", "cannot be blank")
	}
	return nil
}

func validAmount(value any) error {
	amount, _ := value.(decimal.Decimal)
	if !amount.IsPositive() {
		return validation.NewError("validation_amount_positive", "must be greater than zero")
	}
	if !amount.Equal(model.RoundMoney(amount)) {
		return validation.NewError("validation_amount_places", "must have at most 2 decimal places")
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return validation.NewError("validation_amount_max", "is too large")
	}
	return nil
}

func optionalAmount(value any) error {
	amount, _ := value.(*decimal.Decimal)
	if amount == nil {
		return nil
	}
	return validAmount(*amount)
}

func invalid(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.FromOzzoValidation(err, msg)
}
