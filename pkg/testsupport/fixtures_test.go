package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-ledger-cache/model"
)

func TestLoadFixture(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	testContent := []byte("test fixture content")

	if err := os.WriteFile(testFile, testContent, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	result := LoadFixture(t, testFile)
	if string(result) != string(testContent) {
		t.Errorf("expected %q, got %q", testContent, result)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "seed.json")
	content := `{"users":[{"username":"carol","email":"carol@example.com"}]}`

	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	var seed Seed
	LoadFixtureJSON(t, testFile, &seed)

	if len(seed.Users) != 1 || seed.Users[0].Username != "carol" {
		t.Errorf("unexpected seed users: %+v", seed.Users)
	}
}

func TestCompareWithGolden_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden", "out.txt")

	CompareWithGolden(t, path, []byte("first"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected golden file to be created: %v", err)
	}
	if string(data) != "first" {
		t.Errorf("expected golden content %q, got %q", "first", data)
	}
}

func TestFixturePaths(t *testing.T) {
	if got := FixturePath("a.json"); got != filepath.Join("testdata", "a.json") {
		t.Errorf("FixturePath() = %q", got)
	}
	if got := GoldenPath("a.json"); got != filepath.Join("testdata", "golden", "a.json") {
		t.Errorf("GoldenPath() = %q", got)
	}
}

func TestLoadSeed_DerivesDailyRecords(t *testing.T) {
	db := NewDB(t)
	seeded := LoadSeed(t, db, DefaultSeed(t))

	if len(seeded.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(seeded.Users))
	}

	rec := seeded.Record(t, "alice", "2024-03-01")
	if rec.TotalIncome.StringFixed(2) != "100.00" || rec.TotalExpense.StringFixed(2) != "50.00" {
		t.Errorf("unexpected totals for alice 2024-03-01: %s / %s", rec.TotalIncome, rec.TotalExpense)
	}

	count, err := db.NewSelect().Model((*model.Transaction)(nil)).Count(context.Background())
	if err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if count != len(seeded.Transactions) {
		t.Errorf("expected %d transactions, got %d", len(seeded.Transactions), count)
	}
}

func TestQueryCounter_RecordsSelectsOnly(t *testing.T) {
	db := NewDB(t)
	counter := NewQueryCounter(db)
	ctx := context.Background()

	if _, err := db.NewSelect().Model((*model.User)(nil)).Count(ctx); err != nil {
		t.Fatalf("count users: %v", err)
	}
	user := &model.User{Username: "dave"}
	if _, err := db.NewInsert().Model(user).Exec(ctx); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	if counter.Count() != 1 {
		t.Errorf("expected 1 select, got %d: %v", counter.Count(), counter.Queries())
	}
	if counter.CountMatching("count(") != 1 {
		t.Errorf("expected count query to be matched, got %v", counter.Queries())
	}

	counter.Reset()
	if counter.Count() != 0 {
		t.Errorf("expected reset counter, got %d", counter.Count())
	}
}
