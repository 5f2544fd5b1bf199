package config

import (
	"testing"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
)

// TestParse tests flag parsing on top of the defaults
func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		stringRef bool
		entry     string
		rest      int
		wantErr   bool
	}{
		{"defaults", []string{"unit.json"}, true, "_entry", 1, false},
		{"struct strings", []string{"-stringref=false", "unit.json"}, false, "_entry", 1, false},
		{"custom entry", []string{"-entry", "main"}, true, "main", 0, false},
		{"bad level", []string{"-log-level", "loud"}, true, "_entry", 0, true},
		{"bad opt", []string{"-opt", "9"}, true, "_entry", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, rest, err := Parse("tswasm", tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if b.EnableStringRef != tt.stringRef {
				t.Errorf("EnableStringRef = %v, want %v", b.EnableStringRef, tt.stringRef)
			}
			if b.Entry != tt.entry {
				t.Errorf("Entry = %q, want %q", b.Entry, tt.entry)
			}
			if len(rest) != tt.rest {
				t.Errorf("rest = %v", rest)
			}
		})
	}
}

// TestLoggerConfig tests debug builds force debug logging
func TestLoggerConfig(t *testing.T) {
	b := Default()
	b.Debug = true
	cfg := b.LoggerConfig(nil)
	if cfg.Level != logger.LevelDebug || !cfg.AddSource {
		t.Errorf("LoggerConfig() = %+v", cfg)
	}
}
