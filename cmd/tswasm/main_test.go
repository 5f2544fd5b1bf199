package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/compiler"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
)

const userUnit = `{
  "name": "users",
  "decls": [
    {"kind": "interface", "Name": "Named", "Members": [
      {"Name": "id", "Kind": "field", "Type": {"Kind": "named", "Name": "number"}}
    ]},
    {"kind": "class", "Name": "User", "Implements": [{"Kind": "named", "Name": "Named"}], "Members": [
      {"Name": "id", "Kind": "field", "Type": {"Kind": "named", "Name": "number"}},
      {"Name": "age", "Kind": "field", "Type": {"Kind": "named", "Name": "number"}},
      {"Name": "greet", "Kind": "method", "Return": {"Kind": "named", "Name": "string"}}
    ]}
  ]
}`

func loadUnit(t *testing.T) *compiler.Unit {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte(userUnit), 0o644); err != nil {
		t.Fatal(err)
	}
	u, err := load("layout", []string{path, "-log-level", "error"})
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	return u
}

// TestLoadErrors tests argument and input failures
func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no input", nil},
		{"missing file", []string{filepath.Join(t.TempDir(), "absent.json")}},
		{"bad flag", []string{"x.json", "-nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := load("layout", tt.args); err == nil {
				t.Errorf("load(%v) succeeded", tt.args)
			}
		})
	}
}

// TestLogDir tests that -log-dir sends json records to a file
func TestLogDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	if err := os.WriteFile(path, []byte(userUnit), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = logger.Init(logger.Config{Level: logger.LevelError, Output: io.Discard}) })
	if _, err := load("layout", []string{path, "-log-dir", dir}); err != nil {
		t.Fatalf("load() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "tswasm-compiler.log"))
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"Processing file"`) {
		t.Errorf("log file missing the processing record:\n%s", data)
	}
}

// TestPrintLayout tests the layout report
func TestPrintLayout(t *testing.T) {
	u := loadUnit(t)
	var buf bytes.Buffer
	printLayout(&buf, u)
	out := buf.String()
	for _, want := range []string{
		"unit users: 2 types",
		"interface Named id=",
		"class User id=",
		" impl=",
		"id: number",
		"greet: ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("layout output missing %q:\n%s", want, out)
		}
	}
}

// TestShell tests inspect commands against the encoded metas
func TestShell(t *testing.T) {
	sh := newShell(loadUnit(t))
	tests := []struct {
		line string
		want string
		quit bool
	}{
		{"classes", "User id=", false},
		{"table User", "age: number", false},
		{"meta User", "meta User @", false},
		{"lookup User age", "User.age: field", false},
		{"lookup User greet method", "User.greet: method", false},
		{"lookup User greet field", "not found", false},
		{"lookup User nope", "not found", false},
		{"lookup User age bogus", "unknown member kind", false},
		{"table Ghost", "no class or interface", false},
		{"frobnicate", "unknown command", false},
		{"quit", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var buf bytes.Buffer
			if quit := sh.exec(&buf, tt.line); quit != tt.quit {
				t.Errorf("exec(%q) quit = %v, want %v", tt.line, quit, tt.quit)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("exec(%q) = %q, want it to contain %q", tt.line, buf.String(), tt.want)
			}
		})
	}
}

// TestComplete tests command and class name completion
func TestComplete(t *testing.T) {
	sh := newShell(loadUnit(t))
	tests := []struct {
		line string
		want []string
	}{
		{"ta", []string{"table"}},
		{"table U", []string{"table User"}},
		{"meta ", []string{"meta Named", "meta User"}},
	}
	for _, tt := range tests {
		got := sh.complete(tt.line)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("complete(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}
