// Package lower translates semantic IR into emission requests.
//
// Design: every reference value travels as anyref and is cast right before
// a struct access. Class-typed receivers are accessed directly through the
// fixed-up slot table; interface-typed receivers get a shape test with a
// direct fast path and a meta-driven slow path that falls back to the
// dynamic runtime on a type mismatch.
package lower

import (
	"fmt"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/closure"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/config"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/diag"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/dynrt"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/frontend"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/ir"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/layout"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

// Env is everything lowering reads from earlier phases.
type Env struct {
	Graph  *types.Graph
	Config config.Build
	Module *emit.Module
	Prog   *ir.Program
	Frames *closure.Result
	Fixer  *layout.Fixer
	Pool   *layout.DataPool
}

// Lowerer turns IR functions into emitted functions.
type Lowerer struct {
	g      *types.Graph
	cfg    config.Build
	mod    *emit.Module
	prog   *ir.Program
	frames *closure.Result
	fixer  *layout.Fixer
	pool   *layout.DataPool
	mapper layout.Mapper
	rt     dynrt.Runtime
	host   *dynrt.Host
}

// New creates a lowerer and declares the core layouts on env.Module.
func New(env Env) *Lowerer {
	m := layout.Mapper{G: env.Graph, StringRef: env.Config.EnableStringRef}
	m.RegisterCore(env.Module)
	rt := dynrt.NewImports(env.Module, m.StringType())
	return &Lowerer{
		g:      env.Graph,
		cfg:    env.Config,
		mod:    env.Module,
		prog:   env.Prog,
		frames: env.Frames,
		fixer:  env.Fixer,
		pool:   env.Pool,
		mapper: m,
		rt:     rt,
		host:   dynrt.NewHost(env.Module, rt),
	}
}

// Runtime is the dynamic runtime the lowerer calls into.
func (l *Lowerer) Runtime() dynrt.Runtime { return l.rt }

// LowerAll lowers every function of the program into the module.
func (l *Lowerer) LowerAll() error {
	for _, f := range l.frames.Frames {
		if err := l.mod.AddStruct(l.mapper.ContextLayout(f.Name, f.Types)); err != nil {
			return err
		}
	}
	for _, fn := range l.prog.Functions {
		out, err := l.Function(fn)
		if err != nil {
			logger.LogError("lower", fn.Name, err.Error())
			return err
		}
		if err := l.mod.AddFunc(out); err != nil {
			return err
		}
	}
	return nil
}

// fnState is the per-function lowering state.
type fnState struct {
	ir  *ir.Function
	out *emit.Func
	// frameLocal holds the local carrying each frame live in this function.
	frameLocal map[*closure.Frame]int
	locals     map[*frontend.VarDecl]int
	labels     int
}

func (st *fnState) label(prefix string) string {
	st.labels++
	return fmt.Sprintf("%s%d", prefix, st.labels)
}

// temp allocates a scratch local.
func (st *fnState) temp(t emit.ValType) int {
	return st.out.AddLocal(t)
}

// Function lowers one function. Parameters are (context, this, params...).
func (l *Lowerer) Function(fn *ir.Function) (*emit.Func, error) {
	sig := l.g.Sig(fn.Sig)
	if sig == nil {
		return nil, fmt.Errorf("function %s has no signature", fn.Name)
	}
	params, result := l.signature(sig)
	if fn.Kind == ir.FuncCtor {
		result = emit.None
	}
	out := emit.NewFunc(fn.Name, result, params...)
	out.Export = fn.Kind == ir.FuncPlain && fn.Name == l.cfg.Entry
	st := &fnState{
		ir:         fn,
		out:        out,
		frameLocal: make(map[*closure.Frame]int),
		locals:     make(map[*frontend.VarDecl]int),
	}
	for i, p := range fn.Params {
		st.locals[p] = abi.EnvParamLen + i
	}

	if f := l.frames.OwnFrame(fn.Scope); f != nil {
		out.Emit(l.enterFrame(st, f, &emit.LocalGet{Index: 0, Type: emit.AnyRef}))
		for _, p := range fn.Params {
			if c, ok := l.frames.Capture(p); ok && c.Frame == f {
				out.Emit(&emit.StructSet{
					Type:  f.Name,
					Index: closure.FieldIndex(c.Slot),
					Ref:   &emit.LocalGet{Index: st.frameLocal[f], Type: emit.RefOf(f.Name)},
					Value: &emit.LocalGet{Index: st.locals[p], Type: params[st.locals[p]]},
				})
			}
		}
	}

	body, err := l.stmts(st, fn.Body)
	if err != nil {
		return nil, fmt.Errorf("lowering %s: %w", fn.Name, err)
	}
	out.Emit(body...)
	if !result.IsNone() && !endsInReturn(fn.Body) {
		out.Emit(&emit.Unreachable{})
	}
	logger.LogLowering(fn.Name, emit.Count(&emit.Block{Body: out.Body}))
	return out, nil
}

func endsInReturn(body []ir.Value) bool {
	if len(body) == 0 {
		return false
	}
	_, ok := body[len(body)-1].(*ir.Return)
	return ok
}

// signature maps a source signature onto the lowered calling convention.
func (l *Lowerer) signature(sig *types.Signature) ([]emit.ValType, emit.ValType) {
	params := []emit.ValType{emit.AnyRef, emit.AnyRef}
	for _, p := range sig.Params {
		params = append(params, l.mapper.ValType(p.Type))
	}
	return params, l.mapper.ValType(sig.Return)
}

// sigName names the function type of a lowered signature for call_ref.
func sigName(params []emit.ValType, result emit.ValType) string {
	s := "("
	for i, p := range params {
		if i > 0 {
			s += ","
		}
		s += p.String()
	}
	s += ")->"
	if result.IsNone() {
		return s + "none"
	}
	return s + result.String()
}

func (l *Lowerer) sigOf(r types.Ref) (string, emit.ValType, error) {
	sig := l.g.Sig(r)
	if sig == nil {
		return "", emit.None, diag.Unimplemented("call through non-function type %s", l.g.String(r))
	}
	params, result := l.signature(sig)
	return sigName(params, result), result, nil
}

// enterFrame allocates frame f linked to parent and makes it current.
func (l *Lowerer) enterFrame(st *fnState, f *closure.Frame, parent emit.Expr) emit.Expr {
	fields := []emit.Expr{parent}
	for _, t := range f.Types {
		fields = append(fields, zero(l.mapper.ValType(t)))
	}
	local := st.temp(emit.RefOf(f.Name))
	st.frameLocal[f] = local
	return &emit.LocalSet{Index: local, Value: &emit.StructNew{Type: f.Name, Fields: fields}}
}

// currentFrame is the innermost live frame of scope s, or a null context.
func (l *Lowerer) currentFrame(st *fnState, s *frontend.Scope) emit.Expr {
	f := l.frames.FrameOf(s)
	if f == nil {
		return &emit.Null{Type: emit.AnyRef}
	}
	local, ok := st.frameLocal[f]
	if !ok {
		return &emit.LocalGet{Index: 0, Type: emit.AnyRef}
	}
	return &emit.LocalGet{Index: local, Type: emit.RefOf(f.Name)}
}

func zero(t emit.ValType) emit.Expr {
	switch {
	case t.IsRef():
		return &emit.Null{Type: t}
	case t == emit.F64:
		return emit.F64Const(0)
	case t == emit.F32:
		return emit.F32Const(0)
	case t == emit.I64:
		return emit.I64Const(0)
	}
	return emit.I32Const(0)
}

// stmts lowers a statement list, dropping unused results.
func (l *Lowerer) stmts(st *fnState, body []ir.Value) ([]emit.Expr, error) {
	var out []emit.Expr
	for _, v := range body {
		e, err := l.value(st, v)
		if err != nil {
			return nil, err
		}
		if !e.ResultType().IsNone() {
			e = &emit.Drop{X: e}
		}
		out = append(out, e)
	}
	return out, nil
}

// value lowers one IR node.
func (l *Lowerer) value(st *fnState, v ir.Value) (emit.Expr, error) {
	switch v := v.(type) {
	case *ir.Const:
		return l.constant(v), nil
	case *ir.VarGet:
		return l.varGet(st, v)
	case *ir.VarSet:
		return l.varSet(st, v)
	case *ir.GlobalGet:
		return l.globalGet(v), nil
	case *ir.This:
		return &emit.LocalGet{Index: 1, Type: emit.AnyRef}, nil
	case *ir.PropGet:
		return l.propGet(st, v)
	case *ir.PropSet:
		return l.propSet(st, v)
	case *ir.StaticGet:
		return l.staticGet(st, v)
	case *ir.StaticSet:
		return l.staticSet(st, v)
	case *ir.MethodCall:
		return l.methodCall(st, v)
	case *ir.StaticCall:
		return l.staticCall(st, v)
	case *ir.SuperCall:
		return l.superCall(st, v)
	case *ir.Call:
		return l.call(st, v)
	case *ir.ClosureCall:
		return l.closureCall(st, v)
	case *ir.NewClosure:
		return l.newClosure(st, v), nil
	case *ir.FuncValue:
		return l.makeClosure(&emit.Null{Type: emit.AnyRef}, &emit.Null{Type: emit.AnyRef}, &emit.RefFunc{Func: v.Func}), nil
	case *ir.New:
		return l.newObject(st, v)
	case *ir.ObjectLit:
		return l.objectLit(st, v)
	case *ir.ArrayLit:
		return l.arrayLit(st, v)
	case *ir.Cast:
		return l.cast(st, v)
	case *ir.InstanceOf:
		return l.instanceOf(st, v)
	case *ir.ElemGet:
		return l.elemGet(st, v)
	case *ir.ElemSet:
		return l.elemSet(st, v)
	case *ir.DynGet:
		return l.dynGet(st, v)
	case *ir.DynSet:
		return l.dynSet(st, v)
	case *ir.DynCall:
		return l.dynCall(st, v)
	case *ir.TypeOf:
		x, err := l.value(st, v.X)
		if err != nil {
			return nil, err
		}
		return l.rt.TypeOf(x), nil
	case *ir.BuiltinCall:
		return l.builtin(st, v)
	case *ir.Binary:
		return l.binary(st, v)
	case *ir.Not:
		x, err := l.value(st, v.X)
		if err != nil {
			return nil, err
		}
		return &emit.Unary{Op: emit.I32Eqz, X: x}, nil
	case *ir.Block:
		return l.block(st, v)
	case *ir.If:
		return l.ifValue(st, v)
	case *ir.While:
		return l.while(st, v)
	case *ir.Return:
		if v.Value == nil {
			return &emit.Return{}, nil
		}
		x, err := l.value(st, v.Value)
		if err != nil {
			return nil, err
		}
		return &emit.Return{Value: x}, nil
	case *ir.Rebind:
		return l.rebind(st, v)
	}
	return nil, diag.Unimplemented("lowering of %T", v)
}

func (l *Lowerer) values(st *fnState, vs []ir.Value) ([]emit.Expr, error) {
	out := make([]emit.Expr, len(vs))
	for i, v := range vs {
		e, err := l.value(st, v)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (l *Lowerer) constant(c *ir.Const) emit.Expr {
	switch c.Kind {
	case ir.ConstNumber:
		return emit.F64Const(c.Num)
	case ir.ConstInt, ir.ConstBool:
		return emit.I32Const(int32(c.Num))
	case ir.ConstString:
		return l.stringConst(c.Str)
	case ir.ConstNull:
		return &emit.Null{Type: emit.AnyRef}
	}
	return l.rt.NewUndefined()
}

// stringConst builds a string in the configured representation.
func (l *Lowerer) stringConst(s string) emit.Expr {
	if l.cfg.EnableStringRef {
		return &emit.StringConst{Value: s}
	}
	raw := layout.EncodeUTF8(s)
	elems := make([]emit.Expr, len(raw))
	for i, b := range raw {
		elems[i] = emit.I32Const(int32(b))
	}
	return &emit.StructNew{Type: layout.StringStruct, Fields: []emit.Expr{
		emit.I32Const(0),
		&emit.ArrayNewFixed{Type: layout.CharArray, Elems: elems},
	}}
}

func (l *Lowerer) binary(st *fnState, v *ir.Binary) (emit.Expr, error) {
	a, err := l.value(st, v.L)
	if err != nil {
		return nil, err
	}
	b, err := l.value(st, v.R)
	if err != nil {
		return nil, err
	}
	ops := map[ir.BinaryOp]emit.BinOp{
		ir.OpAdd: emit.F64Add,
		ir.OpSub: emit.F64Sub,
		ir.OpMul: emit.F64Mul,
		ir.OpDiv: emit.F64Div,
		ir.OpLt:  emit.F64Lt,
		ir.OpEq:  emit.F64Eq,
	}
	op, ok := ops[v.Op]
	if !ok {
		return nil, diag.Unimplemented("binary operator %d", v.Op)
	}
	return &emit.Binary{Op: op, L: a, R: b}, nil
}

// Control flow

func (l *Lowerer) block(st *fnState, v *ir.Block) (emit.Expr, error) {
	var body []emit.Expr
	if f := l.frames.OwnFrame(v.Scope); f != nil && v.Scope != st.ir.Scope {
		body = append(body, l.enterFrame(st, f, l.currentFrame(st, v.Scope.Parent)))
	}
	result := l.mapper.ValType(v.Typ)
	n := len(v.Body)
	if !result.IsNone() && n > 0 {
		init, err := l.stmts(st, v.Body[:n-1])
		if err != nil {
			return nil, err
		}
		last, err := l.value(st, v.Body[n-1])
		if err != nil {
			return nil, err
		}
		body = append(append(body, init...), last)
		return &emit.Block{Body: body, Result: result}, nil
	}
	rest, err := l.stmts(st, v.Body)
	if err != nil {
		return nil, err
	}
	return &emit.Block{Body: append(body, rest...)}, nil
}

func (l *Lowerer) ifValue(st *fnState, v *ir.If) (emit.Expr, error) {
	cond, err := l.value(st, v.Cond)
	if err != nil {
		return nil, err
	}
	then, err := l.value(st, v.Then)
	if err != nil {
		return nil, err
	}
	out := &emit.If{Cond: cond, Then: then, Result: l.mapper.ValType(v.Typ)}
	if v.Else != nil {
		if out.Else, err = l.value(st, v.Else); err != nil {
			return nil, err
		}
	}
	if out.Result.IsNone() {
		out.Then = void(out.Then)
		if out.Else != nil {
			out.Else = void(out.Else)
		}
	}
	return out, nil
}

func void(e emit.Expr) emit.Expr {
	if e.ResultType().IsNone() {
		return e
	}
	return &emit.Drop{X: e}
}

// while lowers a loop. A per-iteration scope gets a fresh frame at the top
// of every iteration.
func (l *Lowerer) while(st *fnState, v *ir.While) (emit.Expr, error) {
	brk, cont := st.label("$break"), st.label("$continue")
	cond, err := l.value(st, v.Cond)
	if err != nil {
		return nil, err
	}
	body := []emit.Expr{&emit.BrIf{Label: brk, Cond: &emit.Unary{Op: emit.I32Eqz, X: cond}}}
	if f := l.frames.OwnFrame(v.Scope); f != nil {
		body = append(body, l.enterFrame(st, f, l.currentFrame(st, v.Scope.Parent)))
	}
	rest, err := l.stmts(st, v.Body)
	if err != nil {
		return nil, err
	}
	body = append(append(body, rest...), &emit.Br{Label: cont})
	return &emit.Block{Label: brk, Body: []emit.Expr{&emit.Loop{Label: cont, Body: body}}}, nil
}

// rebind replaces the current frame of a scope with a copy, so closures
// created from now on see their own bindings.
func (l *Lowerer) rebind(st *fnState, v *ir.Rebind) (emit.Expr, error) {
	f := l.frames.OwnFrame(v.Scope)
	if f == nil {
		return &emit.Block{}, nil
	}
	local, ok := st.frameLocal[f]
	if !ok {
		return nil, fmt.Errorf("rebind of frame %s outside its scope", f.Name)
	}
	old := &emit.LocalGet{Index: local, Type: emit.RefOf(f.Name)}
	fields := []emit.Expr{&emit.StructGet{Type: f.Name, Index: closure.ParentField, Ref: old, Result: emit.AnyRef}}
	for i, t := range f.Types {
		fields = append(fields, &emit.StructGet{Type: f.Name, Index: closure.FieldIndex(i), Ref: old, Result: l.mapper.ValType(t)})
	}
	return &emit.LocalSet{Index: local, Value: &emit.StructNew{Type: f.Name, Fields: fields}}, nil
}

// Variables

func (l *Lowerer) isGlobal(v *frontend.VarDecl) bool {
	return v.Scope != nil && v.Scope.Kind == frontend.ScopeGlobal
}

func (l *Lowerer) global(v *frontend.VarDecl, t emit.ValType) string {
	name := abi.FuncName("global", v.Name)
	l.mod.AddGlobal(&emit.Global{Name: name, Type: t, Mutable: true, Init: zero(t)})
	return name
}

func (l *Lowerer) local(st *fnState, v *frontend.VarDecl, t emit.ValType) int {
	if i, ok := st.locals[v]; ok {
		return i
	}
	i := st.temp(t)
	st.locals[v] = i
	return i
}

// frameSlot walks from the use scope to the frame declaring v and returns
// the reference to that frame.
func (l *Lowerer) frameSlot(st *fnState, use *frontend.Scope, v *frontend.VarDecl) (emit.Expr, closure.Access, error) {
	acc, err := l.frames.Access(use, v)
	if err != nil {
		return nil, acc, err
	}
	f := l.frames.FrameOf(use)
	ref := l.currentFrame(st, use)
	for i := 0; i < acc.Hops; i++ {
		ref = &emit.StructGet{
			Type:   f.Name,
			Index:  closure.ParentField,
			Ref:    &emit.RefCast{Ref: ref, Type: f.Name},
			Result: emit.AnyRef,
		}
		f = f.Parent
	}
	return &emit.RefCast{Ref: ref, Type: acc.Frame.Name}, acc, nil
}

func (l *Lowerer) varGet(st *fnState, v *ir.VarGet) (emit.Expr, error) {
	t := l.mapper.ValType(v.Typ)
	switch {
	case l.frames.IsCaptured(v.Var):
		ref, acc, err := l.frameSlot(st, v.Scope, v.Var)
		if err != nil {
			return nil, err
		}
		return &emit.StructGet{Type: acc.Frame.Name, Index: closure.FieldIndex(acc.Slot), Ref: ref, Result: t}, nil
	case l.isGlobal(v.Var):
		return &emit.GlobalGet{Name: l.global(v.Var, t), Type: t}, nil
	}
	return &emit.LocalGet{Index: l.local(st, v.Var, t), Type: t}, nil
}

func (l *Lowerer) varSet(st *fnState, v *ir.VarSet) (emit.Expr, error) {
	val, err := l.value(st, v.Value)
	if err != nil {
		return nil, err
	}
	t := l.mapper.ValType(v.VarTyp)
	switch {
	case l.frames.IsCaptured(v.Var):
		ref, acc, err := l.frameSlot(st, v.Scope, v.Var)
		if err != nil {
			return nil, err
		}
		return &emit.StructSet{Type: acc.Frame.Name, Index: closure.FieldIndex(acc.Slot), Ref: ref, Value: val}, nil
	case l.isGlobal(v.Var):
		return &emit.GlobalSet{Name: l.global(v.Var, t), Value: val}, nil
	}
	return &emit.LocalSet{Index: l.local(st, v.Var, t), Value: val}, nil
}

func (l *Lowerer) globalGet(v *ir.GlobalGet) emit.Expr {
	if abi.Contains(abi.FallbackGlobals, v.Name) {
		return l.rt.GetGlobal(l.name(v.Name))
	}
	t := l.mapper.ValType(v.Typ)
	l.mod.AddGlobal(&emit.Global{Name: v.Name, Type: t, Mutable: true, Init: zero(t)})
	return &emit.GlobalGet{Name: v.Name, Type: t}
}

// name is the data-segment address of a property or class name.
func (l *Lowerer) name(s string) emit.Expr {
	return emit.I32Const(int32(l.pool.CString(s)))
}

// seq evaluates setup then yields last.
func seq(result emit.ValType, setup []emit.Expr, last emit.Expr) emit.Expr {
	return &emit.Block{Body: append(setup, last), Result: result}
}
