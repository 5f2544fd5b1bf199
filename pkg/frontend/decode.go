package frontend

import (
	"encoding/json"
	"fmt"
	"io"
)

type unitJSON struct {
	Name  string            `json:"name"`
	Decls []json.RawMessage `json:"decls"`
	Scope *Scope            `json:"scope"`
}

type declHeader struct {
	Kind string `json:"kind"`
}

// Decode reads a declaration unit in its JSON form.
func Decode(r io.Reader) (*Module, error) {
	var u unitJSON
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode unit: %w", err)
	}
	m := NewModule(u.Name)
	if u.Scope != nil {
		m.Root = u.Scope
		m.Root.Link()
	}
	for i, raw := range u.Decls {
		d, err := decodeDecl(raw)
		if err != nil {
			return nil, fmt.Errorf("decl %d: %w", i, err)
		}
		m.Add(d)
	}
	return m, nil
}

func decodeDecl(raw json.RawMessage) (Decl, error) {
	var h declHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, err
	}
	var d Decl
	switch h.Kind {
	case "class":
		d = &ClassDecl{}
	case "interface":
		d = &InterfaceDecl{}
	case "function":
		d = &FuncDecl{}
	case "enum":
		d = &EnumDecl{}
	case "alias":
		d = &TypeAliasDecl{}
	default:
		return nil, fmt.Errorf("unknown declaration kind %q", h.Kind)
	}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, err
	}
	return d, nil
}

// UnmarshalText accepts the lower-case kind names.
func (k *TypeExprKind) UnmarshalText(text []byte) error {
	for kind, name := range typeExprKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown type expression kind %q", text)
}

func (k TypeExprKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

var memberKindNames = map[string]MemberKind{
	"field":       MemberField,
	"method":      MemberMethod,
	"getter":      MemberGetter,
	"setter":      MemberSetter,
	"constructor": MemberConstructor,
}

func (k *MemberKind) UnmarshalText(text []byte) error {
	v, ok := memberKindNames[string(text)]
	if !ok {
		return fmt.Errorf("unknown member kind %q", text)
	}
	*k = v
	return nil
}

var scopeKindNames = map[string]ScopeKind{
	"global":    ScopeGlobal,
	"function":  ScopeFunction,
	"block":     ScopeBlock,
	"class":     ScopeClass,
	"namespace": ScopeNamespace,
}

func (k *ScopeKind) UnmarshalText(text []byte) error {
	v, ok := scopeKindNames[string(text)]
	if !ok {
		return fmt.Errorf("unknown scope kind %q", text)
	}
	*k = v
	return nil
}
