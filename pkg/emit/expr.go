package emit

import (
	"github.com/tetratelabs/wazero/api"
)

// Expr is one requested operation.
type Expr interface {
	ResultType() ValType
	expr()
}

// Const is a numeric constant stored as raw bits.
type Const struct {
	Type ValType
	Bits uint64
}

func I32Const(v int32) *Const   { return &Const{Type: I32, Bits: api.EncodeI32(v)} }
func I64Const(v int64) *Const   { return &Const{Type: I64, Bits: api.EncodeI64(v)} }
func F32Const(v float32) *Const { return &Const{Type: F32, Bits: api.EncodeF32(v)} }
func F64Const(v float64) *Const { return &Const{Type: F64, Bits: api.EncodeF64(v)} }

// I32 decodes an i32 constant.
func (c *Const) I32() int32 { return api.DecodeI32(c.Bits) }

// F64 decodes an f64 constant.
func (c *Const) F64() float64 { return api.DecodeF64(c.Bits) }

// Null is ref.null of a heap type.
type Null struct{ Type ValType }

// StringConst is a stringref literal.
type StringConst struct{ Value string }

// StringMeasure is the WTF-16 length of a stringref.
type StringMeasure struct{ X Expr }

type LocalGet struct {
	Index int
	Type  ValType
}

type LocalSet struct {
	Index int
	Value Expr
}

type LocalTee struct {
	Index int
	Value Expr
	Type  ValType
}

type GlobalGet struct {
	Name string
	Type ValType
}

type GlobalSet struct {
	Name  string
	Value Expr
}

type StructNew struct {
	Type   string
	Fields []Expr
}

// StructNewDefault allocates a struct with every field zeroed.
type StructNewDefault struct{ Type string }

type StructGet struct {
	Type   string
	Index  int
	Ref    Expr
	Result ValType
}

type StructSet struct {
	Type  string
	Index int
	Ref   Expr
	Value Expr
}

type RefCast struct {
	Ref  Expr
	Type string
}

type RefIsNull struct{ Ref Expr }

type ArrayNewFixed struct {
	Type  string
	Elems []Expr
}

type ArrayGet struct {
	Type   string
	Ref    Expr
	Index  Expr
	Result ValType
}

type ArraySet struct {
	Type  string
	Ref   Expr
	Index Expr
	Value Expr
}

type ArrayLen struct{ Ref Expr }

// Load reads an i32 from linear memory at Addr+Offset.
type Load struct {
	Addr   Expr
	Offset uint32
}

// UnOp is a unary numeric operator.
type UnOp uint8

const (
	I32Eqz UnOp = iota
	F64ConvertI32S
	I32TruncF64S
	F64Neg
)

// BinOp is a binary numeric operator.
type BinOp uint8

const (
	I32Eq BinOp = iota
	I32Ne
	I32And
	I32Or
	I32Add
	I32Sub
	I32ShrU
	I32GeS
	F64Add
	F64Sub
	F64Mul
	F64Div
	F64Eq
	F64Lt
)

type Unary struct {
	Op UnOp
	X  Expr
}

type Binary struct {
	Op   BinOp
	L, R Expr
}

type If struct {
	Cond   Expr
	Then   Expr
	Else   Expr
	Result ValType
}

type Block struct {
	Label  string
	Body   []Expr
	Result ValType
}

type Call struct {
	Func   string
	Args   []Expr
	Result ValType
}

// CallRef calls a funcref with an explicit signature name.
type CallRef struct {
	Func   Expr
	Sig    string
	Args   []Expr
	Result ValType
}

type TableGet struct {
	Table string
	Index Expr
}

type Drop struct{ X Expr }

// RefFunc is a reference to a defined function.
type RefFunc struct{ Func string }

// Loop re-enters its body when a branch targets Label.
type Loop struct {
	Label string
	Body  []Expr
}

// Br branches to an enclosing block (exit) or loop (repeat).
type Br struct{ Label string }

// BrIf branches when Cond is non-zero.
type BrIf struct {
	Label string
	Cond  Expr
}

// Return leaves the function. Value may be nil.
type Return struct{ Value Expr }

type Unreachable struct{}

func (c *Const) ResultType() ValType            { return c.Type }
func (n *Null) ResultType() ValType             { return n.Type }
func (*StringConst) ResultType() ValType        { return RefOf("string") }
func (*StringMeasure) ResultType() ValType      { return I32 }
func (l *LocalGet) ResultType() ValType         { return l.Type }
func (*LocalSet) ResultType() ValType           { return None }
func (l *LocalTee) ResultType() ValType         { return l.Type }
func (g *GlobalGet) ResultType() ValType        { return g.Type }
func (*GlobalSet) ResultType() ValType          { return None }
func (s *StructNew) ResultType() ValType        { return RefOf(s.Type) }
func (s *StructNewDefault) ResultType() ValType { return RefOf(s.Type) }
func (s *StructGet) ResultType() ValType        { return s.Result }
func (*StructSet) ResultType() ValType          { return None }
func (r *RefCast) ResultType() ValType          { return RefOf(r.Type) }
func (*RefIsNull) ResultType() ValType          { return I32 }
func (a *ArrayNewFixed) ResultType() ValType    { return RefOf(a.Type) }
func (a *ArrayGet) ResultType() ValType         { return a.Result }
func (*ArraySet) ResultType() ValType           { return None }
func (*ArrayLen) ResultType() ValType           { return I32 }
func (*Load) ResultType() ValType               { return I32 }
func (u *Unary) ResultType() ValType {
	switch u.Op {
	case F64ConvertI32S, F64Neg:
		return F64
	}
	return I32
}
func (b *Binary) ResultType() ValType {
	switch b.Op {
	case F64Add, F64Sub, F64Mul, F64Div:
		return F64
	}
	return I32
}
func (i *If) ResultType() ValType        { return i.Result }
func (b *Block) ResultType() ValType     { return b.Result }
func (c *Call) ResultType() ValType      { return c.Result }
func (c *CallRef) ResultType() ValType   { return c.Result }
func (*TableGet) ResultType() ValType    { return AnyRef }
func (*Drop) ResultType() ValType        { return None }
func (*Unreachable) ResultType() ValType { return None }
func (*RefFunc) ResultType() ValType     { return FuncRef }
func (*Loop) ResultType() ValType        { return None }
func (*Br) ResultType() ValType          { return None }
func (*BrIf) ResultType() ValType        { return None }
func (*Return) ResultType() ValType      { return None }

func (*Const) expr()            {}
func (*Null) expr()             {}
func (*StringConst) expr()      {}
func (*StringMeasure) expr()    {}
func (*LocalGet) expr()         {}
func (*LocalSet) expr()         {}
func (*LocalTee) expr()         {}
func (*GlobalGet) expr()        {}
func (*GlobalSet) expr()        {}
func (*StructNew) expr()        {}
func (*StructNewDefault) expr() {}
func (*StructGet) expr()        {}
func (*StructSet) expr()        {}
func (*RefCast) expr()          {}
func (*RefIsNull) expr()        {}
func (*ArrayNewFixed) expr()    {}
func (*ArrayGet) expr()         {}
func (*ArraySet) expr()         {}
func (*ArrayLen) expr()         {}
func (*Load) expr()             {}
func (*Unary) expr()            {}
func (*Binary) expr()           {}
func (*If) expr()               {}
func (*Block) expr()            {}
func (*Call) expr()             {}
func (*CallRef) expr()          {}
func (*TableGet) expr()         {}
func (*Drop) expr()             {}
func (*Unreachable) expr()      {}
func (*RefFunc) expr()          {}
func (*Loop) expr()             {}
func (*Br) expr()               {}
func (*BrIf) expr()             {}
func (*Return) expr()           {}

// Children returns the operands of e in evaluation order.
func Children(e Expr) []Expr {
	switch e := e.(type) {
	case *StringMeasure:
		return []Expr{e.X}
	case *LocalSet:
		return []Expr{e.Value}
	case *LocalTee:
		return []Expr{e.Value}
	case *GlobalSet:
		return []Expr{e.Value}
	case *StructNew:
		return e.Fields
	case *StructGet:
		return []Expr{e.Ref}
	case *StructSet:
		return []Expr{e.Ref, e.Value}
	case *RefCast:
		return []Expr{e.Ref}
	case *RefIsNull:
		return []Expr{e.Ref}
	case *ArrayNewFixed:
		return e.Elems
	case *ArrayGet:
		return []Expr{e.Ref, e.Index}
	case *ArraySet:
		return []Expr{e.Ref, e.Index, e.Value}
	case *ArrayLen:
		return []Expr{e.Ref}
	case *Load:
		return []Expr{e.Addr}
	case *Unary:
		return []Expr{e.X}
	case *Binary:
		return []Expr{e.L, e.R}
	case *If:
		if e.Else == nil {
			return []Expr{e.Cond, e.Then}
		}
		return []Expr{e.Cond, e.Then, e.Else}
	case *Block:
		return e.Body
	case *Call:
		return e.Args
	case *CallRef:
		return append(append([]Expr(nil), e.Args...), e.Func)
	case *TableGet:
		return []Expr{e.Index}
	case *Drop:
		return []Expr{e.X}
	case *Loop:
		return e.Body
	case *BrIf:
		return []Expr{e.Cond}
	case *Return:
		if e.Value == nil {
			return nil
		}
		return []Expr{e.Value}
	}
	return nil
}

// Walk visits e and its operands depth-first. Returning false from fn skips
// the operands of that node.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range Children(e) {
		Walk(c, fn)
	}
}

// Count is the number of nodes in e.
func Count(e Expr) int {
	n := 0
	Walk(e, func(Expr) bool { n++; return true })
	return n
}
