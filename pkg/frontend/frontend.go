// Package frontend defines the declarations handed to the compiler core.
//
// Design: data only. An external TypeScript parser produces these nodes; the
// type graph is built from them and never mutates them.
package frontend

import "github.com/GriffinCanCode/tswasm-compiler/pkg/diag"

// Pos is a source location.
type Pos = diag.Pos

// Node is any declaration tree node.
type Node interface {
	node()
}

// Decl is a top-level named declaration.
type Decl interface {
	Node
	decl()
	DeclName() string
	Position() Pos
}

// Module is one compilation unit.
type Module struct {
	Name  string
	Decls []Decl
	Root  *Scope

	index map[string]Decl
}

func (*Module) node() {}

// NewModule creates an empty unit with a global scope.
func NewModule(name string) *Module {
	return &Module{Name: name, Root: NewScope(ScopeGlobal, name, nil)}
}

// Add appends a declaration.
func (m *Module) Add(d Decl) Decl {
	m.Decls = append(m.Decls, d)
	if m.index != nil {
		m.index[d.DeclName()] = d
	}
	return d
}

// Lookup finds a top-level declaration by name.
func (m *Module) Lookup(name string) (Decl, bool) {
	if m.index == nil {
		m.index = make(map[string]Decl, len(m.Decls))
		for _, d := range m.Decls {
			m.index[d.DeclName()] = d
		}
	}
	d, ok := m.index[name]
	return d, ok
}

// ClassDecl declares a class.
type ClassDecl struct {
	Name       string
	TypeParams []*TypeParamDecl
	Extends    []*TypeExpr
	Implements []*TypeExpr
	Members    []*MemberDecl
	Declare    bool
	Pos        Pos
}

func (*ClassDecl) node()              {}
func (*ClassDecl) decl()              {}
func (d *ClassDecl) DeclName() string { return d.Name }
func (d *ClassDecl) Position() Pos    { return d.Pos }

// InterfaceDecl declares an interface.
type InterfaceDecl struct {
	Name       string
	TypeParams []*TypeParamDecl
	Extends    []*TypeExpr
	Members    []*MemberDecl
	Pos        Pos
}

func (*InterfaceDecl) node()              {}
func (*InterfaceDecl) decl()              {}
func (d *InterfaceDecl) DeclName() string { return d.Name }
func (d *InterfaceDecl) Position() Pos    { return d.Pos }

// FuncDecl declares a top-level function.
type FuncDecl struct {
	Name       string
	TypeParams []*TypeParamDecl
	Params     []*ParamDecl
	Return     *TypeExpr
	Declare    bool
	Pos        Pos
}

func (*FuncDecl) node()              {}
func (*FuncDecl) decl()              {}
func (d *FuncDecl) DeclName() string { return d.Name }
func (d *FuncDecl) Position() Pos    { return d.Pos }

// EnumDecl declares a numeric enum.
type EnumDecl struct {
	Name    string
	Members []*EnumMember
	Pos     Pos
}

func (*EnumDecl) node()              {}
func (*EnumDecl) decl()              {}
func (d *EnumDecl) DeclName() string { return d.Name }
func (d *EnumDecl) Position() Pos    { return d.Pos }

type EnumMember struct {
	Name  string
	Value *float64
	Pos   Pos
}

// TypeAliasDecl names a type expression.
type TypeAliasDecl struct {
	Name       string
	TypeParams []*TypeParamDecl
	Type       *TypeExpr
	Pos        Pos
}

func (*TypeAliasDecl) node()              {}
func (*TypeAliasDecl) decl()              {}
func (d *TypeAliasDecl) DeclName() string { return d.Name }
func (d *TypeAliasDecl) Position() Pos    { return d.Pos }

// MemberKind classifies a class or interface member declaration.
type MemberKind int

const (
	MemberField MemberKind = iota
	MemberMethod
	MemberGetter
	MemberSetter
	MemberConstructor
)

// MemberDecl is one member of a class, interface or object literal type.
// Type is the field type, the getter result or the setter argument.
type MemberDecl struct {
	Name       string
	Kind       MemberKind
	Static     bool
	Optional   bool
	Readonly   bool
	Type       *TypeExpr
	TypeParams []*TypeParamDecl
	Params     []*ParamDecl
	Return     *TypeExpr
	Pos        Pos
}

func (*MemberDecl) node() {}

type ParamDecl struct {
	Name     string
	Type     *TypeExpr
	Optional bool
	Rest     bool
}

type TypeParamDecl struct {
	Name    string
	Bound   *TypeExpr
	Default *TypeExpr
}

// TypeExprKind is the syntactic form of a type annotation.
type TypeExprKind int

const (
	TypeNamed TypeExprKind = iota
	TypeParamRef
	TypeArray
	TypeFunction
	TypeUnion
	TypeLiteral
)

var typeExprKindNames = map[TypeExprKind]string{
	TypeNamed:    "named",
	TypeParamRef: "param",
	TypeArray:    "array",
	TypeFunction: "function",
	TypeUnion:    "union",
	TypeLiteral:  "literal",
}

func (k TypeExprKind) String() string {
	return typeExprKindNames[k]
}

// TypeExpr is a type annotation as written.
type TypeExpr struct {
	Kind    TypeExprKind
	Name    string
	Args    []*TypeExpr
	Elem    *TypeExpr
	Params  []*ParamDecl
	Return  *TypeExpr
	Members []*MemberDecl
	Types   []*TypeExpr
	Pos     Pos
}

func (*TypeExpr) node() {}

// Named refers to a declared, builtin or generic type.
func Named(name string, args ...*TypeExpr) *TypeExpr {
	return &TypeExpr{Kind: TypeNamed, Name: name, Args: args}
}

// ParamRef refers to an enclosing type parameter.
func ParamRef(name string) *TypeExpr {
	return &TypeExpr{Kind: TypeParamRef, Name: name}
}

// ArrayOf is elem[].
func ArrayOf(elem *TypeExpr) *TypeExpr {
	return &TypeExpr{Kind: TypeArray, Elem: elem}
}

// FuncType is (params) => ret.
func FuncType(ret *TypeExpr, params ...*ParamDecl) *TypeExpr {
	return &TypeExpr{Kind: TypeFunction, Return: ret, Params: params}
}

// UnionOf is a | b | ...
func UnionOf(types ...*TypeExpr) *TypeExpr {
	return &TypeExpr{Kind: TypeUnion, Types: types}
}

// Literal is an anonymous object type.
func Literal(members ...*MemberDecl) *TypeExpr {
	return &TypeExpr{Kind: TypeLiteral, Members: members}
}

// At attaches a source position and returns t.
func (t *TypeExpr) At(pos Pos) *TypeExpr {
	t.Pos = pos
	return t
}

// Param builds a parameter declaration.
func Param(name string, typ *TypeExpr) *ParamDecl {
	return &ParamDecl{Name: name, Type: typ}
}

// Field builds an instance field declaration.
func Field(name string, typ *TypeExpr) *MemberDecl {
	return &MemberDecl{Name: name, Kind: MemberField, Type: typ}
}

// Method builds an instance method declaration.
func Method(name string, ret *TypeExpr, params ...*ParamDecl) *MemberDecl {
	return &MemberDecl{Name: name, Kind: MemberMethod, Return: ret, Params: params}
}

// Getter builds a get accessor.
func Getter(name string, typ *TypeExpr) *MemberDecl {
	return &MemberDecl{Name: name, Kind: MemberGetter, Type: typ}
}

// Setter builds a set accessor.
func Setter(name string, typ *TypeExpr) *MemberDecl {
	return &MemberDecl{Name: name, Kind: MemberSetter, Type: typ}
}

// Constructor builds a constructor declaration.
func Constructor(params ...*ParamDecl) *MemberDecl {
	return &MemberDecl{Name: "constructor", Kind: MemberConstructor, Params: params}
}
