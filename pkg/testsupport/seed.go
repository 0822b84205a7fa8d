package testsupport

import (
	"context"
	"embed"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ledger-cache/model"
)

//go:embed seeds/*.json
var seedsFS embed.FS

// SeedUser is a user row in a seed file.
type SeedUser struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

// SeedTransaction is a transaction row in a seed file, addressed by username.
type SeedTransaction struct {
	Username string                `json:"username"`
	Date     string                `json:"date"`
	Type     model.TransactionType `json:"type"`
	Category string                `json:"category"`
	Amount   decimal.Decimal       `json:"amount"`
}

// Seed is the decoded content of a seed file.
type Seed struct {
	Users        []SeedUser        `json:"users"`
	Transactions []SeedTransaction `json:"transactions"`
}

// Seeded is what LoadSeed wrote to the database.
type Seeded struct {
	Users        map[string]*model.User
	DailyRecords []*model.DailyRecord
	Transactions []*model.Transaction
}

// User returns the seeded user with the given username.
func (s *Seeded) User(t testing.TB, username string) *model.User {
	t.Helper()
	u, ok := s.Users[username]
	if !ok {
		t.Fatalf("seed has no user %q", username)
	}
	return u
}

// Record returns the seeded daily record for username on date (YYYY-MM-DD).
func (s *Seeded) Record(t testing.TB, username, date string) *model.DailyRecord {
	t.Helper()
	u := s.User(t, username)
	d := mustDate(t, date)
	for _, r := range s.DailyRecords {
		if r.UserID == u.ID && r.Date.Equal(d) {
			return r
		}
	}
	t.Fatalf("seed has no daily record for %s on %s", username, date)
	return nil
}

// DefaultSeed decodes the embedded ledger seed.
func DefaultSeed(t testing.TB) Seed {
	t.Helper()

	data, err := seedsFS.ReadFile("seeds/ledger.json")
	if err != nil {
		t.Fatalf("failed to read embedded seed: %v", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		t.Fatalf("failed to decode embedded seed: %v", err)
	}
	return seed
}

// LoadSeed writes seed into db. Daily records are derived from the
// transactions and carry their summed totals.
func LoadSeed(t testing.TB, db bun.IDB, seed Seed) *Seeded {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	out := &Seeded{Users: make(map[string]*model.User)}
	for _, su := range seed.Users {
		id := su.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		u := &model.User{ID: id, Username: su.Username, Email: su.Email, CreatedAt: now}
		if _, err := db.NewInsert().Model(u).Exec(ctx); err != nil {
			t.Fatalf("failed to seed user %s: %v", su.Username, err)
		}
		out.Users[su.Username] = u
	}

	type dayKey struct {
		user uuid.UUID
		date time.Time
	}
	records := make(map[dayKey]*model.DailyRecord)

	for _, st := range seed.Transactions {
		u := out.User(t, st.Username)
		d := mustDate(t, st.Date)
		key := dayKey{user: u.ID, date: d}

		rec, ok := records[key]
		if !ok {
			rec = &model.DailyRecord{
				ID:           uuid.New(),
				UserID:       u.ID,
				Date:         d,
				TotalIncome:  decimal.Zero,
				TotalExpense: decimal.Zero,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			records[key] = rec
			out.DailyRecords = append(out.DailyRecords, rec)
		}

		amount := model.RoundMoney(st.Amount)
		if st.Type == model.Income {
			rec.TotalIncome = rec.TotalIncome.Add(amount)
		} else {
			rec.TotalExpense = rec.TotalExpense.Add(amount)
		}

		out.Transactions = append(out.Transactions, &model.Transaction{
			ID:            uuid.New(),
			DailyRecordID: rec.ID,
			Type:          st.Type,
			Category:      st.Category,
			Amount:        amount,
			Date:          d,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if len(out.DailyRecords) > 0 {
		if _, err := db.NewInsert().Model(&out.DailyRecords).Exec(ctx); err != nil {
			t.Fatalf("failed to seed daily records: %v", err)
		}
	}
	if len(out.Transactions) > 0 {
		if _, err := db.NewInsert().Model(&out.Transactions).Exec(ctx); err != nil {
			t.Fatalf("failed to seed transactions: %v", err)
		}
	}
	return out
}

func mustDate(t testing.TB, s string) time.Time {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("invalid seed date %q: %v", s, err)
	}
	return d
}
