package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
)

// TestInitFormats tests text and json handlers honour the level
func TestInitFormats(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		level   LogLevel
		wantOut bool
		want    string
	}{
		{"text debug", "text", LevelDebug, true, "type=Box"},
		{"json debug", "json", LevelDebug, true, `"type":"Box"`},
		{"info filters debug", "text", LevelInfo, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Init(Config{Level: tt.level, Format: tt.format, Output: &buf}); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			LogTypeIDAssigned("Box", 2052, false)
			out := buf.String()
			if tt.wantOut && !strings.Contains(out, tt.want) {
				t.Errorf("output %q missing %q", out, tt.want)
			}
			if !tt.wantOut && out != "" {
				t.Errorf("expected no output, got %q", out)
			}
		})
	}
}

// TestDerivedLoggers tests that attribute and group loggers share the
// global handler
func TestDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Level: LevelDebug, Format: "json", Output: &buf}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	With("unit", "shapes").Info("attrs")
	WithGroup("meta").Info("grouped", "type", "Box")
	LogWarning("validate", "main", "unused local")

	out := buf.String()
	for _, want := range []string{
		`"unit":"shapes"`,
		`"meta":{"type":"Box"}`,
		`"level":"WARN"`,
		`"phase":"validate"`,
		`"message":"unused local"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}
}

// TestInitDev tests that the development setup enables debug records
func TestInitDev(t *testing.T) {
	t.Cleanup(func() { _ = Init(Config{Level: LevelError, Output: io.Discard}) })
	InitDev()
	if !defaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		t.Errorf("InitDev() left debug records disabled")
	}
}
