package frontend

// ScopeKind classifies a lexical scope.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeFunction
	ScopeBlock
	ScopeClass
	ScopeNamespace
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeGlobal:
		return "global"
	case ScopeFunction:
		return "function"
	case ScopeBlock:
		return "block"
	case ScopeClass:
		return "class"
	case ScopeNamespace:
		return "namespace"
	}
	return "unknown"
}

// VarDecl is a local variable or parameter.
type VarDecl struct {
	Name  string
	Type  *TypeExpr
	Const bool
	Param bool
	Pos   Pos
	Scope *Scope `json:"-"`
}

// VarRef is an identifier use inside a scope.
type VarRef struct {
	Name string
	Pos  Pos
}

// Scope is a node of the lexical scope tree.
type Scope struct {
	Kind     ScopeKind
	Name     string
	Parent   *Scope `json:"-"`
	Children []*Scope
	Params   []*VarDecl
	Vars     []*VarDecl
	Refs     []*VarRef
	// PerIteration marks a loop body whose captured bindings are fresh on
	// every iteration.
	PerIteration bool
}

// NewScope creates a scope and attaches it to parent.
func NewScope(kind ScopeKind, name string, parent *Scope) *Scope {
	s := &Scope{Kind: kind, Name: name, Parent: parent}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

// DeclareParam adds a parameter.
func (s *Scope) DeclareParam(name string, typ *TypeExpr) *VarDecl {
	v := &VarDecl{Name: name, Type: typ, Param: true, Scope: s}
	s.Params = append(s.Params, v)
	return v
}

// Declare adds a local variable.
func (s *Scope) Declare(name string, typ *TypeExpr) *VarDecl {
	v := &VarDecl{Name: name, Type: typ, Scope: s}
	s.Vars = append(s.Vars, v)
	return v
}

// Use records an identifier reference.
func (s *Scope) Use(name string) *VarRef {
	r := &VarRef{Name: name}
	s.Refs = append(s.Refs, r)
	return r
}

// Local finds a parameter or variable declared directly in s.
func (s *Scope) Local(name string) *VarDecl {
	for _, v := range s.Params {
		if v.Name == name {
			return v
		}
	}
	for _, v := range s.Vars {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// Lookup resolves name outward from s.
func (s *Scope) Lookup(name string) *VarDecl {
	for cur := s; cur != nil; cur = cur.Parent {
		if v := cur.Local(name); v != nil {
			return v
		}
	}
	return nil
}

// NearestFunction returns the closest enclosing function scope, s included.
func (s *Scope) NearestFunction() *Scope {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Kind == ScopeFunction {
			return cur
		}
	}
	return nil
}

// Encloses reports whether s is inner or one of its ancestors.
func (s *Scope) Encloses(inner *Scope) bool {
	for cur := inner; cur != nil; cur = cur.Parent {
		if cur == s {
			return true
		}
	}
	return false
}

// Walk visits s and its descendants in pre-order.
func (s *Scope) Walk(fn func(*Scope)) {
	fn(s)
	for _, c := range s.Children {
		c.Walk(fn)
	}
}

// Link restores parent and owner pointers after decoding.
func (s *Scope) Link() {
	for _, v := range s.Params {
		v.Scope = s
		v.Param = true
	}
	for _, v := range s.Vars {
		v.Scope = s
	}
	for _, c := range s.Children {
		c.Parent = s
		c.Link()
	}
}
