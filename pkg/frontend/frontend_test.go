package frontend

import (
	"strings"
	"testing"
)

// TestScopeLookup tests outward resolution and function boundaries
func TestScopeLookup(t *testing.T) {
	global := NewScope(ScopeGlobal, "main", nil)
	outer := NewScope(ScopeFunction, "outer", global)
	count := outer.Declare("count", Named("number"))
	inner := NewScope(ScopeFunction, "inner", outer)
	block := NewScope(ScopeBlock, "", inner)

	if got := block.Lookup("count"); got != count {
		t.Errorf("Lookup(count) = %v, want outer's count", got)
	}
	if got := block.NearestFunction(); got != inner {
		t.Errorf("NearestFunction() = %v, want inner", got.Name)
	}
	if !outer.Encloses(block) || inner.Encloses(outer) {
		t.Errorf("Encloses() gave wrong ancestry")
	}
	if block.Lookup("missing") != nil {
		t.Errorf("expected nil for undeclared name")
	}
}

// TestDecode tests the JSON form of a declaration unit
func TestDecode(t *testing.T) {
	src := `{
	  "name": "shapes",
	  "decls": [
	    {"kind": "interface", "Name": "Shape", "Members": [
	      {"Name": "area", "Kind": "method", "Return": {"Kind": "named", "Name": "number"}}
	    ]},
	    {"kind": "class", "Name": "Box", "TypeParams": [{"Name": "T"}], "Members": [
	      {"Name": "value", "Kind": "field", "Type": {"Kind": "param", "Name": "T"}}
	    ]}
	  ],
	  "scope": {"Kind": "global", "Children": [
	    {"Kind": "function", "Name": "outer", "Vars": [{"Name": "count"}],
	     "Children": [{"Kind": "function", "Name": "inner", "Refs": [{"Name": "count"}]}]}
	  ]}
	}`

	m, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(m.Decls) != 2 {
		t.Fatalf("got %d decls, want 2", len(m.Decls))
	}
	box, ok := m.Lookup("Box")
	if !ok {
		t.Fatalf("Box not found")
	}
	cd := box.(*ClassDecl)
	if cd.Members[0].Type.Kind != TypeParamRef {
		t.Errorf("field type kind = %v, want param", cd.Members[0].Type.Kind)
	}
	inner := m.Root.Children[0].Children[0]
	if inner.Parent == nil || inner.Lookup("count") == nil {
		t.Errorf("scope links not restored")
	}
}

// TestDecodeUnknownKind tests rejection of unknown declarations
func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"decls": [{"kind": "module"}]}`))
	if err == nil {
		t.Errorf("expected error for unknown declaration kind")
	}
}
