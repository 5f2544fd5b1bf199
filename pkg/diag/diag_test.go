package diag

import (
	"fmt"
	"testing"
)

// TestErrorText tests the rendered message for each shape of error
func TestErrorText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unimplemented", Unimplemented("cast %s", "tuple"), "[UnimplementError] cast tuple"},
		{"named", TypeResolution("Box", Pos{}, "missing declaration"), "[TypeError] Box: missing declaration"},
		{"positioned", TypeResolution("T", Pos{File: "a.ts", Line: 3, Col: 7}, "unresolvable type parameter"),
			"[TypeError] T (a.ts:3:7): unresolvable type parameter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestKindThroughWrapping tests classification survives fmt.Errorf wrapping
func TestKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("resolve class Foo: %w", TypeResolution("Foo", Pos{}, "multiple base classes"))
	if !IsTypeResolution(err) {
		t.Errorf("expected TypeResolution in chain")
	}
	if IsUnimplemented(err) {
		t.Errorf("did not expect Unimplemented")
	}
	if _, ok := KindOf(fmt.Errorf("plain")); ok {
		t.Errorf("plain error should have no kind")
	}
}
