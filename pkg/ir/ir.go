// Package ir implements the semantic value IR consumed by lowering.
//
// Design: one typed expression tree per function. Every node carries its
// static type; member accesses also carry the shape (class or interface)
// the access was resolved against.
package ir

import (
	"github.com/GriffinCanCode/tswasm-compiler/pkg/frontend"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

// Program is the top-level IR container
type Program struct {
	Functions []*Function
	byName    map[string]*Function
}

// NewProgram creates an empty program
func NewProgram() *Program {
	return &Program{byName: make(map[string]*Function)}
}

// Add registers a function under its name
func (p *Program) Add(f *Function) {
	p.Functions = append(p.Functions, f)
	p.byName[f.Name] = f
}

// Lookup finds a function by name
func (p *Program) Lookup(name string) (*Function, bool) {
	f, ok := p.byName[name]
	return f, ok
}

// FuncKind is the role a function plays in the object model
type FuncKind uint8

const (
	FuncPlain FuncKind = iota
	FuncMethod
	FuncGetter
	FuncSetter
	FuncCtor
	FuncStatic
	FuncClosure
)

// Function is one function body. Every lowered function receives the
// closure context and the bound this ahead of Params.
type Function struct {
	Name   string
	Kind   FuncKind
	Sig    types.Ref
	Class  types.Ref
	Scope  *frontend.Scope
	Params []*frontend.VarDecl
	Body   []Value
}

// Value is a typed semantic node
type Value interface {
	Type() types.Ref
	value()
}

// ConstKind classifies a literal
type ConstKind uint8

const (
	ConstNumber ConstKind = iota
	ConstInt
	ConstBool
	ConstString
	ConstNull
	ConstUndefined
)

type Const struct {
	Kind ConstKind
	Num  float64
	Str  string
	Typ  types.Ref
}

// VarGet reads a variable from the scope it is used in.
type VarGet struct {
	Var   *frontend.VarDecl
	Scope *frontend.Scope
	Typ   types.Ref
}

// VarSet stores Value into Var. VarTyp is the variable's declared type and
// Typ the type of the assignment expression.
type VarSet struct {
	Var    *frontend.VarDecl
	Scope  *frontend.Scope
	Value  Value
	VarTyp types.Ref
	Typ    types.Ref
}

type GlobalGet struct {
	Name string
	Typ  types.Ref
}

type This struct{ Typ types.Ref }

// PropGet reads an instance member resolved against Shape.
type PropGet struct {
	Owner Value
	Name  string
	Shape types.Ref
	Typ   types.Ref
}

type PropSet struct {
	Owner Value
	Name  string
	Shape types.Ref
	Value Value
	Typ   types.Ref
}

type StaticGet struct {
	Class types.Ref
	Name  string
	Typ   types.Ref
}

type StaticSet struct {
	Class types.Ref
	Name  string
	Value Value
	Typ   types.Ref
}

type MethodCall struct {
	Owner Value
	Name  string
	Shape types.Ref
	Args  []Value
	Typ   types.Ref
}

type StaticCall struct {
	Class types.Ref
	Name  string
	Args  []Value
	Typ   types.Ref
}

// SuperCall runs the base constructor on this.
type SuperCall struct {
	Class types.Ref
	Args  []Value
	Typ   types.Ref
}

// Call invokes a top-level function directly.
type Call struct {
	Func string
	Args []Value
	Typ  types.Ref
}

// ClosureCall invokes a function-typed value.
type ClosureCall struct {
	Callee Value
	Args   []Value
	Typ    types.Ref
}

// NewClosure captures the current frame for a nested function.
type NewClosure struct {
	Func *Function
	Typ  types.Ref
}

// FuncValue is a top-level function used as a value.
type FuncValue struct {
	Func string
	Typ  types.Ref
}

type New struct {
	Class types.Ref
	Args  []Value
	Typ   types.Ref
}

// ObjectLit builds an object literal. Names and Fields are parallel.
type ObjectLit struct {
	Names  []string
	Fields []Value
	Typ    types.Ref
}

type ArrayLit struct {
	Elems []Value
	Typ   types.Ref
}

// CastKind selects a conversion
type CastKind uint8

const (
	CastBox CastKind = iota
	CastUnbox
	CastRef
	CastIntToNum
	CastNumToInt
)

type Cast struct {
	Kind CastKind
	X    Value
	Typ  types.Ref
}

type InstanceOf struct {
	X     Value
	Class types.Ref
	Typ   types.Ref
}

type ElemGet struct {
	Array Value
	Index Value
	Typ   types.Ref
}

type ElemSet struct {
	Array Value
	Index Value
	Value Value
	Typ   types.Ref
}

// DynGet reads a property of an any-typed value.
type DynGet struct {
	Obj  Value
	Name string
	Typ  types.Ref
}

type DynSet struct {
	Obj   Value
	Name  string
	Value Value
	Typ   types.Ref
}

type DynCall struct {
	Obj  Value
	Name string
	Args []Value
	Typ  types.Ref
}

type TypeOf struct {
	X   Value
	Typ types.Ref
}

// BuiltinCall calls a builtin receiver method. Owner is nil for namespace
// receivers such as Math.
type BuiltinCall struct {
	Receiver string
	Name     string
	Owner    Value
	Args     []Value
	Typ      types.Ref
}

// BinaryOp is an arithmetic or comparison operator
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpLt
	OpEq
)

type Binary struct {
	Op   BinaryOp
	L, R Value
	Typ  types.Ref
}

type Not struct {
	X   Value
	Typ types.Ref
}

// Block runs Body in Scope; the last value is the result when Typ is not
// void.
type Block struct {
	Scope *frontend.Scope
	Body  []Value
	Typ   types.Ref
}

type If struct {
	Cond Value
	Then Value
	Else Value
	Typ  types.Ref
}

// While repeats Body in Scope while Cond holds. A per-iteration scope gets
// a fresh frame each round.
type While struct {
	Cond  Value
	Scope *frontend.Scope
	Body  []Value
	Typ   types.Ref
}

type Return struct {
	Value Value
	Typ   types.Ref
}

// Rebind copies the frame of Scope so closures created in the next loop
// iteration see fresh bindings.
type Rebind struct {
	Scope *frontend.Scope
	Typ   types.Ref
}

func (v *Const) Type() types.Ref       { return v.Typ }
func (v *VarGet) Type() types.Ref      { return v.Typ }
func (v *VarSet) Type() types.Ref      { return v.Typ }
func (v *GlobalGet) Type() types.Ref   { return v.Typ }
func (v *This) Type() types.Ref        { return v.Typ }
func (v *PropGet) Type() types.Ref     { return v.Typ }
func (v *PropSet) Type() types.Ref     { return v.Typ }
func (v *StaticGet) Type() types.Ref   { return v.Typ }
func (v *StaticSet) Type() types.Ref   { return v.Typ }
func (v *MethodCall) Type() types.Ref  { return v.Typ }
func (v *StaticCall) Type() types.Ref  { return v.Typ }
func (v *SuperCall) Type() types.Ref   { return v.Typ }
func (v *Call) Type() types.Ref        { return v.Typ }
func (v *ClosureCall) Type() types.Ref { return v.Typ }
func (v *NewClosure) Type() types.Ref  { return v.Typ }
func (v *FuncValue) Type() types.Ref   { return v.Typ }
func (v *New) Type() types.Ref         { return v.Typ }
func (v *ObjectLit) Type() types.Ref   { return v.Typ }
func (v *ArrayLit) Type() types.Ref    { return v.Typ }
func (v *Cast) Type() types.Ref        { return v.Typ }
func (v *InstanceOf) Type() types.Ref  { return v.Typ }
func (v *ElemGet) Type() types.Ref     { return v.Typ }
func (v *ElemSet) Type() types.Ref     { return v.Typ }
func (v *DynGet) Type() types.Ref      { return v.Typ }
func (v *DynSet) Type() types.Ref      { return v.Typ }
func (v *DynCall) Type() types.Ref     { return v.Typ }
func (v *TypeOf) Type() types.Ref      { return v.Typ }
func (v *BuiltinCall) Type() types.Ref { return v.Typ }
func (v *Binary) Type() types.Ref      { return v.Typ }
func (v *Not) Type() types.Ref         { return v.Typ }
func (v *Block) Type() types.Ref       { return v.Typ }
func (v *If) Type() types.Ref          { return v.Typ }
func (v *While) Type() types.Ref       { return v.Typ }
func (v *Return) Type() types.Ref      { return v.Typ }
func (v *Rebind) Type() types.Ref      { return v.Typ }

func (*Const) value()       {}
func (*VarGet) value()      {}
func (*VarSet) value()      {}
func (*GlobalGet) value()   {}
func (*This) value()        {}
func (*PropGet) value()     {}
func (*PropSet) value()     {}
func (*StaticGet) value()   {}
func (*StaticSet) value()   {}
func (*MethodCall) value()  {}
func (*StaticCall) value()  {}
func (*SuperCall) value()   {}
func (*Call) value()        {}
func (*ClosureCall) value() {}
func (*NewClosure) value()  {}
func (*FuncValue) value()   {}
func (*New) value()         {}
func (*ObjectLit) value()   {}
func (*ArrayLit) value()    {}
func (*Cast) value()        {}
func (*InstanceOf) value()  {}
func (*ElemGet) value()     {}
func (*ElemSet) value()     {}
func (*DynGet) value()      {}
func (*DynSet) value()      {}
func (*DynCall) value()     {}
func (*TypeOf) value()      {}
func (*BuiltinCall) value() {}
func (*Binary) value()      {}
func (*Not) value()         {}
func (*Block) value()       {}
func (*If) value()          {}
func (*While) value()       {}
func (*Return) value()      {}
func (*Rebind) value()      {}
