package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/goliatone/go-errors"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriter_JSONIncludesComponentAndErrorCategory(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewWithWriter(Config{Level: "debug", Format: "json"}, &buf), ComponentCache)

	err := errors.New("user missing", errors.CategoryNotFound)
	logger.Debug("lookup failed", Err(err))

	var record map[string]any
	if jerr := json.Unmarshal(buf.Bytes(), &record); jerr != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), jerr)
	}

	if record[FieldComponent] != ComponentCache {
		t.Errorf("expected component %q, got %v", ComponentCache, record[FieldComponent])
	}

	group, ok := record[FieldError].(map[string]any)
	if !ok {
		t.Fatalf("expected error group, got %v", record[FieldError])
	}
	if group["category"] != "not_found" {
		t.Errorf("expected category not_found, got %v", group["category"])
	}
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "warn"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestErr_NilIsEmpty(t *testing.T) {
	if attr := Err(nil); !attr.Equal(slog.Attr{}) {
		t.Errorf("expected empty attr, got %v", attr)
	}
}
