// Package ir - programmatic construction of semantic IR
// Design: a front end drives the Builder scope by scope; the builder types
// every node from the resolved graph and inserts the implicit conversions
// (boxing, numeric widening, reference casts) the source language performs.
package ir

import (
	"fmt"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/diag"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/frontend"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

// MemberFunc is the name of the function implementing a class member.
func MemberFunc(class, member string, kind FuncKind) string {
	switch kind {
	case FuncGetter:
		return class + "|get_" + member
	case FuncSetter:
		return class + "|set_" + member
	case FuncCtor:
		return class + "|constructor"
	case FuncStatic:
		return class + "|static|" + member
	}
	return class + "|" + member
}

type buildFrame struct {
	fn    *Function
	scope *frontend.Scope
	body  *[]Value
}

type Builder struct {
	sess    *types.Session
	g       *types.Graph
	res     *types.Resolver
	mod     *frontend.Module
	prog    *Program
	cur     buildFrame
	stack   []buildFrame
	varType map[*frontend.VarDecl]types.Ref
	anon    int
	err     error
}

func NewBuilder(sess *types.Session, res *types.Resolver, mod *frontend.Module) *Builder {
	return &Builder{
		sess:    sess,
		g:       sess.Graph,
		res:     res,
		mod:     mod,
		prog:    NewProgram(),
		varType: make(map[*frontend.VarDecl]types.Ref),
	}
}

// Program returns the built program or the first construction error.
func (b *Builder) Program() (*Program, error) {
	if b.err != nil {
		return nil, b.err
	}
	logger.Info("IR build complete", "functions", len(b.prog.Functions))
	return b.prog, nil
}

// Err is the first construction error.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) Value {
	if b.err == nil {
		b.err = err
		logger.Error("IR construction failed", "error", err)
	}
	return &Const{Kind: ConstUndefined, Typ: b.g.Prim(types.PrimAny)}
}

func (b *Builder) prim(p types.Prim) types.Ref { return b.g.Prim(p) }

// Function builds the body of a declared top-level function.
func (b *Builder) Function(name string, scope *frontend.Scope, body func()) *Function {
	d, ok := b.mod.Lookup(name)
	if !ok {
		b.fail(diag.TypeResolution(name, frontend.Pos{}, "missing declaration for referenced symbol"))
		return nil
	}
	sig, err := b.res.Resolve(d)
	if err != nil {
		b.fail(err)
		return nil
	}
	fn := &Function{Name: name, Kind: FuncPlain, Sig: sig, Scope: scope, Params: scope.Params}
	b.define(fn, body)
	return fn
}

// Method builds the body of a class member. kind selects the accessor half
// or the constructor; FuncStatic builds a static method.
func (b *Builder) Method(class types.Ref, member string, kind FuncKind, scope *frontend.Scope, body func()) *Function {
	c := b.g.Class(class)
	if c == nil {
		b.fail(fmt.Errorf("method %s on non-class %s", member, b.g.String(class)))
		return nil
	}
	var sig types.Ref
	switch kind {
	case FuncCtor:
		sig = c.Ctor
	case FuncStatic:
		if m := c.Static(member); m != nil {
			sig = m.Type
		}
	default:
		if m := c.Member(member); m != nil {
			switch kind {
			case FuncGetter:
				sig = m.Getter
			case FuncSetter:
				sig = m.Setter
			default:
				sig = m.Type
			}
		}
	}
	if !sig.Valid() {
		b.fail(diag.TypeResolution(c.Name, frontend.Pos{}, "no member %s to implement", member))
		return nil
	}
	fn := &Function{Name: MemberFunc(c.Name, member, kind), Kind: kind, Sig: sig, Class: class, Scope: scope, Params: scope.Params}
	b.define(fn, body)
	return fn
}

// Closure builds a nested function and returns the value creating it.
func (b *Builder) Closure(scope *frontend.Scope, ret types.Ref, body func()) *NewClosure {
	sig := &types.Signature{Return: ret}
	for _, p := range scope.Params {
		sig.Params = append(sig.Params, types.Param{Name: p.Name, Type: b.VarType(p)})
	}
	b.anon++
	name := fmt.Sprintf("@anonymous%d", b.anon)
	if b.cur.fn != nil {
		name = b.cur.fn.Name + "|" + name
	}
	sig.Name = name
	fn := &Function{Name: name, Kind: FuncClosure, Sig: b.g.NewFunction(sig), Scope: scope, Params: scope.Params}
	if b.cur.fn != nil {
		fn.Class = b.cur.fn.Class
	}
	b.define(fn, body)
	return &NewClosure{Func: fn, Typ: fn.Sig}
}

func (b *Builder) define(fn *Function, body func()) {
	b.prog.Add(fn)
	b.stack = append(b.stack, b.cur)
	b.cur = buildFrame{fn: fn, scope: fn.Scope, body: &fn.Body}
	if body != nil {
		body()
	}
	b.cur = b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
}

// Emit appends statements to the current body.
func (b *Builder) Emit(vs ...Value) {
	if b.cur.body == nil {
		b.fail(fmt.Errorf("emit outside of a function"))
		return
	}
	*b.cur.body = append(*b.cur.body, vs...)
}

// Block builds a nested scope. A non-void typ makes the last value the
// block's result.
func (b *Builder) Block(scope *frontend.Scope, typ types.Ref, body func()) *Block {
	blk := &Block{Scope: scope, Typ: typ}
	b.nested(scope, &blk.Body, body)
	return blk
}

// While builds a loop whose body runs in scope.
func (b *Builder) While(cond Value, scope *frontend.Scope, body func()) *While {
	w := &While{Cond: b.coerce(cond, b.prim(types.PrimBoolean)), Scope: scope, Typ: b.prim(types.PrimVoid)}
	b.nested(scope, &w.Body, body)
	return w
}

func (b *Builder) nested(scope *frontend.Scope, out *[]Value, body func()) {
	b.stack = append(b.stack, b.cur)
	b.cur = buildFrame{fn: b.cur.fn, scope: scope, body: out}
	if body != nil {
		body()
	}
	b.cur = b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
}

// VarType resolves the annotation of v; unannotated variables are any.
func (b *Builder) VarType(v *frontend.VarDecl) types.Ref {
	if t, ok := b.varType[v]; ok {
		return t
	}
	t := b.prim(types.PrimAny)
	if v.Type != nil {
		r, err := b.res.ResolveTypeExpr(v.Type)
		if err != nil {
			b.fail(err)
		} else {
			t = r
		}
	}
	b.varType[v] = t
	return t
}

// Literals

func (b *Builder) Num(v float64) Value {
	return &Const{Kind: ConstNumber, Num: v, Typ: b.prim(types.PrimNumber)}
}
func (b *Builder) Int(v int) Value {
	return &Const{Kind: ConstInt, Num: float64(v), Typ: b.prim(types.PrimInt)}
}
func (b *Builder) Str(s string) Value {
	return &Const{Kind: ConstString, Str: s, Typ: b.prim(types.PrimString)}
}
func (b *Builder) Null() Value { return &Const{Kind: ConstNull, Typ: b.prim(types.PrimNull)} }
func (b *Builder) Undefined() Value {
	return &Const{Kind: ConstUndefined, Typ: b.prim(types.PrimUndefined)}
}

func (b *Builder) Bool(v bool) Value {
	c := &Const{Kind: ConstBool, Typ: b.prim(types.PrimBoolean)}
	if v {
		c.Num = 1
	}
	return c
}

// Variables

func (b *Builder) lookup(name string) *frontend.VarDecl {
	if b.cur.scope == nil {
		return nil
	}
	v := b.cur.scope.Lookup(name)
	if v != nil {
		b.cur.scope.Use(name)
	}
	return v
}

func (b *Builder) Get(name string) Value {
	v := b.lookup(name)
	if v == nil {
		return b.fail(diag.TypeResolution(name, frontend.Pos{}, "missing declaration for referenced symbol"))
	}
	return &VarGet{Var: v, Scope: b.cur.scope, Typ: b.VarType(v)}
}

func (b *Builder) Set(name string, val Value) Value {
	v := b.lookup(name)
	if v == nil {
		return b.fail(diag.TypeResolution(name, frontend.Pos{}, "missing declaration for referenced symbol"))
	}
	vt := b.VarType(v)
	return &VarSet{Var: v, Scope: b.cur.scope, Value: b.coerce(val, vt), VarTyp: vt, Typ: b.prim(types.PrimVoid)}
}

func (b *Builder) Global(name string, typ types.Ref) Value {
	return &GlobalGet{Name: name, Typ: typ}
}

func (b *Builder) This() Value {
	t := b.prim(types.PrimAny)
	if b.cur.fn != nil && b.cur.fn.Class.Valid() {
		t = b.cur.fn.Class
	}
	return &This{Typ: t}
}

// Members

func (b *Builder) member(owner Value, name string) (*types.Member, types.Ref, bool) {
	shape := owner.Type()
	c := b.g.Class(shape)
	if c == nil {
		return nil, types.NoRef, false
	}
	m := c.Member(name)
	return m, shape, m != nil
}

func (b *Builder) memberType(m *types.Member) types.Ref {
	return m.Type
}

// Prop reads owner.name. Reads on any-typed owners go through the dynamic
// runtime; array and string length are builtin reads.
func (b *Builder) Prop(owner Value, name string) Value {
	if b.isDynamic(owner.Type()) {
		return &DynGet{Obj: owner, Name: name, Typ: b.prim(types.PrimAny)}
	}
	if name == "length" && (b.g.Kind(owner.Type()) == types.KindArray || b.isString(owner.Type())) {
		return &PropGet{Owner: owner, Name: name, Typ: b.prim(types.PrimNumber)}
	}
	m, shape, ok := b.member(owner, name)
	if !ok {
		return b.fail(diag.TypeResolution(name, frontend.Pos{}, "property does not exist on %s", b.g.String(owner.Type())))
	}
	return &PropGet{Owner: owner, Name: name, Shape: shape, Typ: b.memberType(m)}
}

func (b *Builder) SetProp(owner Value, name string, val Value) Value {
	void := b.prim(types.PrimVoid)
	if b.isDynamic(owner.Type()) {
		return &DynSet{Obj: owner, Name: name, Value: b.coerce(val, b.prim(types.PrimAny)), Typ: void}
	}
	m, shape, ok := b.member(owner, name)
	if !ok {
		return b.fail(diag.TypeResolution(name, frontend.Pos{}, "property does not exist on %s", b.g.String(owner.Type())))
	}
	return &PropSet{Owner: owner, Name: name, Shape: shape, Value: b.coerce(val, m.Type), Typ: void}
}

// Call invokes owner.name(args).
func (b *Builder) Call(owner Value, name string, args ...Value) Value {
	if b.isDynamic(owner.Type()) {
		return &DynCall{Obj: owner, Name: name, Args: b.boxAll(args), Typ: b.prim(types.PrimAny)}
	}
	m, shape, ok := b.member(owner, name)
	if !ok {
		return b.fail(diag.TypeResolution(name, frontend.Pos{}, "method does not exist on %s", b.g.String(owner.Type())))
	}
	sig := b.g.Sig(m.Type)
	if m.Kind != types.MemberMethod {
		// function-typed field or getter: read then call
		get := &PropGet{Owner: owner, Name: name, Shape: shape, Typ: m.Type}
		return b.Invoke(get, args...)
	}
	return &MethodCall{Owner: owner, Name: name, Shape: shape, Args: b.coerceArgs(sig, args), Typ: sig.Return}
}

func (b *Builder) Static(class types.Ref, name string) Value {
	m := b.static(class, name)
	if m == nil {
		return b.fail(diag.TypeResolution(name, frontend.Pos{}, "static member does not exist on %s", b.g.String(class)))
	}
	return &StaticGet{Class: class, Name: name, Typ: m.Type}
}

func (b *Builder) SetStatic(class types.Ref, name string, val Value) Value {
	m := b.static(class, name)
	if m == nil {
		return b.fail(diag.TypeResolution(name, frontend.Pos{}, "static member does not exist on %s", b.g.String(class)))
	}
	return &StaticSet{Class: class, Name: name, Value: b.coerce(val, m.Type), Typ: b.prim(types.PrimVoid)}
}

func (b *Builder) CallStatic(class types.Ref, name string, args ...Value) Value {
	m := b.static(class, name)
	if m == nil || m.Kind != types.MemberMethod {
		return b.fail(diag.TypeResolution(name, frontend.Pos{}, "static method does not exist on %s", b.g.String(class)))
	}
	sig := b.g.Sig(m.Type)
	return &StaticCall{Class: class, Name: name, Args: b.coerceArgs(sig, args), Typ: sig.Return}
}

func (b *Builder) static(class types.Ref, name string) *types.Member {
	c := b.g.Class(class)
	if c == nil {
		return nil
	}
	return c.Static(name)
}

// Super calls the base constructor from a constructor body.
func (b *Builder) Super(args ...Value) Value {
	void := b.prim(types.PrimVoid)
	if b.cur.fn == nil || !b.cur.fn.Class.Valid() {
		return b.fail(fmt.Errorf("super call outside of a constructor"))
	}
	base := b.g.Class(b.cur.fn.Class).Base
	bc := b.g.Class(base)
	if bc == nil {
		return b.fail(diag.TypeResolution(b.g.String(b.cur.fn.Class), frontend.Pos{}, "super call without a base class"))
	}
	if !bc.Ctor.Valid() {
		return &SuperCall{Class: base, Typ: void}
	}
	return &SuperCall{Class: base, Args: b.coerceArgs(b.g.Sig(bc.Ctor), args), Typ: void}
}

// Functions

// CallFunc calls a declared top-level function.
func (b *Builder) CallFunc(name string, args ...Value) Value {
	d, ok := b.mod.Lookup(name)
	if !ok {
		return b.fail(diag.TypeResolution(name, frontend.Pos{}, "missing declaration for referenced symbol"))
	}
	sig, err := b.res.Resolve(d)
	if err != nil || b.g.Sig(sig) == nil {
		return b.fail(diag.TypeResolution(name, frontend.Pos{}, "%s is not a function", name))
	}
	s := b.g.Sig(sig)
	return &Call{Func: name, Args: b.coerceArgs(s, args), Typ: s.Return}
}

// FuncValue uses a declared top-level function as a closure value.
func (b *Builder) FuncValue(name string) Value {
	d, ok := b.mod.Lookup(name)
	if !ok {
		return b.fail(diag.TypeResolution(name, frontend.Pos{}, "missing declaration for referenced symbol"))
	}
	sig, err := b.res.Resolve(d)
	if err != nil {
		return b.fail(err)
	}
	return &FuncValue{Func: name, Typ: sig}
}

// Invoke calls a function-typed value.
func (b *Builder) Invoke(callee Value, args ...Value) Value {
	sig := b.g.Sig(callee.Type())
	if sig == nil {
		if b.isDynamic(callee.Type()) {
			return &DynCall{Obj: callee, Args: b.boxAll(args), Typ: b.prim(types.PrimAny)}
		}
		return b.fail(diag.TypeResolution(b.g.String(callee.Type()), frontend.Pos{}, "value is not callable"))
	}
	return &ClosureCall{Callee: callee, Args: b.coerceArgs(sig, args), Typ: sig.Return}
}

func (b *Builder) Return(v Value) Value {
	void := b.prim(types.PrimVoid)
	if v == nil {
		return &Return{Typ: void}
	}
	if b.cur.fn != nil {
		if sig := b.g.Sig(b.cur.fn.Sig); sig != nil && sig.Return.Valid() {
			v = b.coerce(v, sig.Return)
		}
	}
	return &Return{Value: v, Typ: void}
}

// Objects

func (b *Builder) New(class types.Ref, args ...Value) Value {
	c := b.g.Class(class)
	if c == nil {
		return b.fail(diag.TypeResolution(b.g.String(class), frontend.Pos{}, "new of non-class type"))
	}
	if c.IsLibrary {
		return &New{Class: class, Args: b.boxAll(args), Typ: class}
	}
	if c.Ctor.Valid() {
		args = b.coerceArgs(b.g.Sig(c.Ctor), args)
	}
	return &New{Class: class, Args: args, Typ: class}
}

// Object builds a literal of the given object type; names missing from the
// type are rejected.
func (b *Builder) Object(typ types.Ref, names []string, vals ...Value) Value {
	c := b.g.Class(typ)
	if c == nil || len(names) != len(vals) {
		return b.fail(diag.TypeResolution(b.g.String(typ), frontend.Pos{}, "malformed object literal"))
	}
	lit := &ObjectLit{Names: names, Typ: typ}
	for i, name := range names {
		m := c.Member(name)
		if m == nil {
			return b.fail(diag.TypeResolution(name, frontend.Pos{}, "property does not exist on %s", c.Name))
		}
		lit.Fields = append(lit.Fields, b.coerce(vals[i], m.Type))
	}
	return lit
}

func (b *Builder) Array(elem types.Ref, elems ...Value) Value {
	lit := &ArrayLit{Typ: b.g.ArrayOf(elem)}
	for _, e := range elems {
		lit.Elems = append(lit.Elems, b.coerce(e, elem))
	}
	return lit
}

func (b *Builder) Elem(arr, index Value) Value {
	if b.isDynamic(arr.Type()) {
		return &ElemGet{Array: arr, Index: b.coerce(index, b.prim(types.PrimNumber)), Typ: b.prim(types.PrimAny)}
	}
	t := b.g.At(arr.Type())
	if t == nil || t.Kind != types.KindArray {
		return b.fail(diag.TypeResolution(b.g.String(arr.Type()), frontend.Pos{}, "element access on non-array"))
	}
	return &ElemGet{Array: arr, Index: b.coerce(index, b.prim(types.PrimNumber)), Typ: t.Elem}
}

func (b *Builder) SetElem(arr, index, val Value) Value {
	elem := b.prim(types.PrimAny)
	if t := b.g.At(arr.Type()); t != nil && t.Kind == types.KindArray {
		elem = t.Elem
	}
	return &ElemSet{Array: arr, Index: b.coerce(index, b.prim(types.PrimNumber)), Value: b.coerce(val, elem), Typ: b.prim(types.PrimVoid)}
}

// Conversions

func (b *Builder) Box(v Value) Value {
	if b.isDynamic(v.Type()) {
		return v
	}
	return &Cast{Kind: CastBox, X: v, Typ: b.prim(types.PrimAny)}
}

func (b *Builder) Unbox(v Value, to types.Ref) Value {
	return &Cast{Kind: CastUnbox, X: v, Typ: to}
}

// As reinterprets a reference as another class or interface.
func (b *Builder) As(v Value, to types.Ref) Value {
	return &Cast{Kind: CastRef, X: v, Typ: to}
}

func (b *Builder) InstanceOf(v Value, class types.Ref) Value {
	return &InstanceOf{X: v, Class: class, Typ: b.prim(types.PrimBoolean)}
}

func (b *Builder) TypeOf(v Value) Value {
	return &TypeOf{X: b.Box(v), Typ: b.prim(types.PrimString)}
}

// Dynamic access

func (b *Builder) DynGet(obj Value, name string) Value {
	return &DynGet{Obj: b.Box(obj), Name: name, Typ: b.prim(types.PrimAny)}
}

func (b *Builder) DynSet(obj Value, name string, val Value) Value {
	return &DynSet{Obj: b.Box(obj), Name: name, Value: b.Box(val), Typ: b.prim(types.PrimVoid)}
}

func (b *Builder) DynCall(obj Value, name string, args ...Value) Value {
	return &DynCall{Obj: b.Box(obj), Name: name, Args: b.boxAll(args), Typ: b.prim(types.PrimAny)}
}

// Builtin calls receiver.name(args) on a builtin receiver.
func (b *Builder) Builtin(receiver, name string, owner Value, ret types.Ref, args ...Value) Value {
	return &BuiltinCall{Receiver: receiver, Name: name, Owner: owner, Args: args, Typ: ret}
}

// Operators

func (b *Builder) Bin(op BinaryOp, l, r Value) Value {
	num := b.prim(types.PrimNumber)
	typ := num
	if op == OpLt || op == OpEq {
		typ = b.prim(types.PrimBoolean)
	}
	return &Binary{Op: op, L: b.coerce(l, num), R: b.coerce(r, num), Typ: typ}
}

func (b *Builder) Not(v Value) Value {
	return &Not{X: b.coerce(v, b.prim(types.PrimBoolean)), Typ: b.prim(types.PrimBoolean)}
}

func (b *Builder) If(cond, then, els Value) Value {
	typ := b.prim(types.PrimVoid)
	if els != nil && then.Type() == els.Type() {
		typ = then.Type()
	}
	return &If{Cond: b.coerce(cond, b.prim(types.PrimBoolean)), Then: then, Else: els, Typ: typ}
}

// Rebind starts a fresh iteration frame for scope.
func (b *Builder) Rebind(scope *frontend.Scope) Value {
	return &Rebind{Scope: scope, Typ: b.prim(types.PrimVoid)}
}

// Coercions

func (b *Builder) isDynamic(t types.Ref) bool {
	switch b.g.Kind(t) {
	case types.KindUnion:
		return true
	case types.KindClass:
		return b.g.Class(t).IsLibrary
	case types.KindPrimitive:
		p, _ := b.g.PrimOf(t)
		return p == types.PrimAny || p == types.PrimUndefined
	}
	return false
}

func (b *Builder) isString(t types.Ref) bool {
	return b.g.IsPrim(t, types.PrimString) || b.g.IsPrim(t, types.PrimRawString)
}

func (b *Builder) coerce(v Value, want types.Ref) Value {
	have := v.Type()
	if !want.Valid() || have == want {
		return v
	}
	switch {
	case b.isDynamic(want) && !b.isDynamic(have):
		return &Cast{Kind: CastBox, X: v, Typ: want}
	case b.isDynamic(have) && !b.isDynamic(want):
		return &Cast{Kind: CastUnbox, X: v, Typ: want}
	case b.g.IsPrim(have, types.PrimInt) && b.g.IsPrim(want, types.PrimNumber):
		return &Cast{Kind: CastIntToNum, X: v, Typ: want}
	case b.g.IsPrim(have, types.PrimNumber) && b.g.IsPrim(want, types.PrimInt):
		return &Cast{Kind: CastNumToInt, X: v, Typ: want}
	case b.g.IsObject(have) && b.g.IsObject(want):
		return &Cast{Kind: CastRef, X: v, Typ: want}
	}
	return v
}

func (b *Builder) coerceArgs(sig *types.Signature, args []Value) []Value {
	out := make([]Value, len(args))
	for i, a := range args {
		if i < len(sig.Params) {
			out[i] = b.coerce(a, sig.Params[i].Type)
			continue
		}
		out[i] = a
	}
	return out
}

func (b *Builder) boxAll(args []Value) []Value {
	out := make([]Value, len(args))
	for i, a := range args {
		out[i] = b.Box(a)
	}
	return out
}
