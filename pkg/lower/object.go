package lower

import (
	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/diag"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/ir"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/layout"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

// table returns the slot table of ref and makes sure its layouts exist.
func (l *Lowerer) table(ref types.Ref) (*layout.Table, error) {
	t, err := l.fixer.Table(ref)
	if err != nil {
		return nil, err
	}
	if t.TypeID == abi.DefaultTypeID {
		return nil, diag.Unimplemented("type %s has no structural id", t.Name)
	}
	if err := l.mapper.Register(l.mod, t); err != nil {
		return nil, err
	}
	return t, nil
}

// bind stores e in a fresh local and returns the store plus a reader.
func (st *fnState) bind(e emit.Expr) (emit.Expr, func() emit.Expr) {
	t := e.ResultType()
	i := st.temp(t)
	return &emit.LocalSet{Index: i, Value: e}, func() emit.Expr {
		return &emit.LocalGet{Index: i, Type: t}
	}
}

// Global layouts

func vtableGlobal(class string) string { return "@vtable|" + class }
func staticGlobal(class string) string { return "@static|" + class }

// metaAddr is the data-segment address of t's meta descriptor.
func (l *Lowerer) metaAddr(t *layout.Table) uint32 {
	if addr, ok := l.pool.Meta(t.Name); ok {
		return addr
	}
	return l.pool.AddMeta(layout.BuildMeta(t))
}

// vtable returns the global holding t's vtable, creating it on first use.
func (l *Lowerer) vtable(t *layout.Table) emit.Expr {
	name := vtableGlobal(t.Name)
	typ := emit.RefOf(layout.VtableStruct(t.Name))
	if _, ok := l.mod.Globals[name]; !ok {
		fields := []emit.Expr{emit.I32Const(int32(l.metaAddr(t)))}
		for _, s := range t.VtableSlots() {
			fields = append(fields, l.implRef(t.Class, s))
		}
		l.mod.AddGlobal(&emit.Global{Name: name, Type: typ, Init: &emit.StructNew{Type: layout.VtableStruct(t.Name), Fields: fields}})
	}
	return &emit.GlobalGet{Name: name, Type: typ}
}

// implRef is the function implementing vtable slot s for class: the
// nearest class in the base chain that declares the member with the slot's
// kind.
func (l *Lowerer) implRef(class types.Ref, s layout.MemberSlot) emit.Expr {
	kinds := map[layout.SlotKind]ir.FuncKind{
		layout.SlotMethod: ir.FuncMethod,
		layout.SlotGetter: ir.FuncGetter,
		layout.SlotSetter: ir.FuncSetter,
	}
	for _, r := range l.g.BaseChain(class) {
		c := l.g.Class(r)
		m := c.Member(s.Name)
		if m == nil || !m.Own || !declares(m, s.Kind) {
			continue
		}
		name := ir.MemberFunc(c.Name, s.Name, kinds[s.Kind])
		if _, ok := l.prog.Lookup(name); ok {
			return &emit.RefFunc{Func: name}
		}
		break
	}
	return &emit.Null{Type: emit.FuncRef}
}

func declares(m *types.Member, kind layout.SlotKind) bool {
	switch kind {
	case layout.SlotMethod:
		return m.Kind == types.MemberMethod
	case layout.SlotGetter:
		return m.Kind == types.MemberAccessor && m.HasGetter
	case layout.SlotSetter:
		return m.Kind == types.MemberAccessor && m.HasSetter
	}
	return m.Kind == types.MemberField
}

// statics returns the global holding t's static fields.
func (l *Lowerer) statics(t *layout.Table) emit.Expr {
	name := staticGlobal(t.Name)
	typ := emit.RefOf(layout.StaticStruct(t.Name))
	l.mod.AddGlobal(&emit.Global{Name: name, Type: typ, Init: &emit.StructNewDefault{Type: layout.StaticStruct(t.Name)}})
	return &emit.GlobalGet{Name: name, Type: typ}
}

// Direct access through a slot table

func (l *Lowerer) asObject(t *layout.Table, obj emit.Expr) emit.Expr {
	return &emit.RefCast{Ref: obj, Type: layout.ObjectStruct(t.Name)}
}

func (l *Lowerer) fieldGet(t *layout.Table, s layout.MemberSlot, obj emit.Expr) emit.Expr {
	return &emit.StructGet{Type: layout.ObjectStruct(t.Name), Index: s.StructIndex(), Ref: l.asObject(t, obj), Result: l.mapper.ValType(s.Type)}
}

func (l *Lowerer) fieldSet(t *layout.Table, s layout.MemberSlot, obj, val emit.Expr) emit.Expr {
	return &emit.StructSet{Type: layout.ObjectStruct(t.Name), Index: s.StructIndex(), Ref: l.asObject(t, obj), Value: val}
}

func (l *Lowerer) vtableOf(t *layout.Table, obj emit.Expr) emit.Expr {
	vt := &emit.StructGet{Type: layout.ObjectStruct(t.Name), Index: abi.ObjectVtableIndex, Ref: l.asObject(t, obj), Result: emit.RefOf(layout.VtableStruct(t.Name))}
	return &emit.RefCast{Ref: vt, Type: layout.VtableStruct(t.Name)}
}

func (l *Lowerer) vtableEntry(t *layout.Table, s layout.MemberSlot, obj emit.Expr) emit.Expr {
	return &emit.StructGet{Type: layout.VtableStruct(t.Name), Index: s.StructIndex(), Ref: l.vtableOf(t, obj), Result: emit.FuncRef}
}

// callSlot calls the function in vtable slot s with obj as this.
func (l *Lowerer) callSlot(t *layout.Table, s layout.MemberSlot, obj func() emit.Expr, args ...emit.Expr) (emit.Expr, error) {
	sig, result, err := l.sigOf(s.Sig)
	if err != nil {
		return nil, err
	}
	all := append([]emit.Expr{&emit.Null{Type: emit.AnyRef}, obj()}, args...)
	return &emit.CallRef{Func: l.vtableEntry(t, s, obj()), Sig: sig, Args: all, Result: result}, nil
}

// directGet reads member name of an object laid out by t.
func (l *Lowerer) directGet(t *layout.Table, name string, obj func() emit.Expr) (emit.Expr, error) {
	if s, ok := t.Lookup(name, layout.SlotField); ok {
		return l.fieldGet(t, s, obj()), nil
	}
	if s, ok := t.Lookup(name, layout.SlotGetter); ok {
		return l.callSlot(t, s, obj)
	}
	if s, ok := t.Lookup(name, layout.SlotMethod); ok {
		return l.makeClosure(&emit.Null{Type: emit.AnyRef}, obj(), l.vtableEntry(t, s, obj())), nil
	}
	return nil, diag.TypeResolution(name, diag.Pos{}, "property is not readable on %s", t.Name)
}

// directSet writes member name of an object laid out by t.
func (l *Lowerer) directSet(t *layout.Table, name string, obj func() emit.Expr, val emit.Expr) (emit.Expr, error) {
	if s, ok := t.Lookup(name, layout.SlotField); ok {
		return l.fieldSet(t, s, obj(), val), nil
	}
	if s, ok := t.Lookup(name, layout.SlotSetter); ok {
		return l.callSlot(t, s, obj, val)
	}
	return nil, diag.TypeResolution(name, diag.Pos{}, "property is not writable on %s", t.Name)
}

// directCall calls method name of an object laid out by t. Function-typed
// fields and getters are read and called as closures.
func (l *Lowerer) directCall(st *fnState, t *layout.Table, name string, sig types.Ref, obj func() emit.Expr, args []emit.Expr) (emit.Expr, error) {
	if s, ok := t.Lookup(name, layout.SlotMethod); ok {
		return l.callSlot(t, s, obj, args...)
	}
	callee, err := l.directGet(t, name, obj)
	if err != nil {
		return nil, err
	}
	return l.invokeClosure(st, callee, sig, args)
}

// Member access

func (l *Lowerer) propGet(st *fnState, v *ir.PropGet) (emit.Expr, error) {
	owner, err := l.value(st, v.Owner)
	if err != nil {
		return nil, err
	}
	if !v.Shape.Valid() {
		return l.length(v.Owner.Type(), owner)
	}
	t, err := l.table(v.Shape)
	if err != nil {
		return nil, err
	}
	set, obj := st.bind(owner)
	var get emit.Expr
	if l.g.IsInterface(v.Shape) {
		get, err = l.dispatchGet(st, t, v.Name, v.Typ, obj)
	} else {
		get, err = l.directGet(t, v.Name, obj)
	}
	if err != nil {
		return nil, err
	}
	return seq(l.mapper.ValType(v.Typ), []emit.Expr{set}, get), nil
}

func (l *Lowerer) propSet(st *fnState, v *ir.PropSet) (emit.Expr, error) {
	owner, err := l.value(st, v.Owner)
	if err != nil {
		return nil, err
	}
	val, err := l.value(st, v.Value)
	if err != nil {
		return nil, err
	}
	t, err := l.table(v.Shape)
	if err != nil {
		return nil, err
	}
	setObj, obj := st.bind(owner)
	setVal, value := st.bind(val)
	var put emit.Expr
	if l.g.IsInterface(v.Shape) {
		put, err = l.dispatchSet(st, t, v.Name, obj, value)
	} else {
		put, err = l.directSet(t, v.Name, obj, value())
	}
	if err != nil {
		return nil, err
	}
	return &emit.Block{Body: []emit.Expr{setObj, setVal, put}}, nil
}

func (l *Lowerer) methodCall(st *fnState, v *ir.MethodCall) (emit.Expr, error) {
	owner, err := l.value(st, v.Owner)
	if err != nil {
		return nil, err
	}
	args, err := l.values(st, v.Args)
	if err != nil {
		return nil, err
	}
	t, err := l.table(v.Shape)
	if err != nil {
		return nil, err
	}
	m := l.g.Class(v.Shape).Member(v.Name)
	if m == nil {
		return nil, diag.TypeResolution(v.Name, diag.Pos{}, "method does not exist on %s", t.Name)
	}
	set, obj := st.bind(owner)
	var call emit.Expr
	if l.g.IsInterface(v.Shape) {
		call, err = l.dispatchCall(st, t, v.Name, m.Type, obj, args)
	} else {
		call, err = l.directCall(st, t, v.Name, m.Type, obj, args)
	}
	if err != nil {
		return nil, err
	}
	return seq(l.mapper.ValType(v.Typ), []emit.Expr{set}, call), nil
}

// Statics

func (l *Lowerer) staticSlot(class types.Ref, name string) (*layout.Table, layout.MemberSlot, error) {
	t, err := l.table(class)
	if err != nil {
		return nil, layout.MemberSlot{}, err
	}
	s, ok := t.Static(name)
	if !ok {
		return nil, s, diag.TypeResolution(name, diag.Pos{}, "static member does not exist on %s", t.Name)
	}
	return t, s, nil
}

func (l *Lowerer) staticGet(st *fnState, v *ir.StaticGet) (emit.Expr, error) {
	t, s, err := l.staticSlot(v.Class, v.Name)
	if err != nil {
		return nil, err
	}
	if s.Kind == layout.SlotMethod {
		fn := &emit.RefFunc{Func: ir.MemberFunc(t.Name, v.Name, ir.FuncStatic)}
		return l.makeClosure(&emit.Null{Type: emit.AnyRef}, &emit.Null{Type: emit.AnyRef}, fn), nil
	}
	return &emit.StructGet{Type: layout.StaticStruct(t.Name), Index: s.StructIndex(), Ref: l.statics(t), Result: l.mapper.ValType(s.Type)}, nil
}

func (l *Lowerer) staticSet(st *fnState, v *ir.StaticSet) (emit.Expr, error) {
	t, s, err := l.staticSlot(v.Class, v.Name)
	if err != nil {
		return nil, err
	}
	if s.Kind != layout.SlotField {
		return nil, diag.TypeResolution(v.Name, diag.Pos{}, "static method %s.%s is not writable", t.Name, v.Name)
	}
	val, err := l.value(st, v.Value)
	if err != nil {
		return nil, err
	}
	return &emit.StructSet{Type: layout.StaticStruct(t.Name), Index: s.StructIndex(), Ref: l.statics(t), Value: val}, nil
}

func (l *Lowerer) staticCall(st *fnState, v *ir.StaticCall) (emit.Expr, error) {
	t, s, err := l.staticSlot(v.Class, v.Name)
	if err != nil {
		return nil, err
	}
	if s.Kind != layout.SlotMethod {
		return nil, diag.Unimplemented("call of static field %s.%s", t.Name, v.Name)
	}
	args, err := l.values(st, v.Args)
	if err != nil {
		return nil, err
	}
	all := append([]emit.Expr{&emit.Null{Type: emit.AnyRef}, &emit.Null{Type: emit.AnyRef}}, args...)
	return &emit.Call{Func: ir.MemberFunc(t.Name, v.Name, ir.FuncStatic), Args: all, Result: l.mapper.ValType(v.Typ)}, nil
}

// Construction

// ctorFor is the constructor run by new on class: its own or the nearest
// base's.
func (l *Lowerer) ctorFor(class types.Ref) (string, bool) {
	for _, r := range l.g.BaseChain(class) {
		name := ir.MemberFunc(l.g.Class(r).Name, "", ir.FuncCtor)
		if _, ok := l.prog.Lookup(name); ok {
			return name, true
		}
	}
	return "", false
}

func (l *Lowerer) newObject(st *fnState, v *ir.New) (emit.Expr, error) {
	c := l.g.Class(v.Class)
	args, err := l.values(st, v.Args)
	if err != nil {
		return nil, err
	}
	if c.IsLibrary {
		return l.rt.NewWithClass(l.name(c.Name), l.anyArray(args)), nil
	}
	t, err := l.table(v.Class)
	if err != nil {
		return nil, err
	}
	obj := l.allocate(t, nil)
	ctor, ok := l.ctorFor(v.Class)
	if !ok {
		return obj, nil
	}
	set, get := st.bind(obj)
	call := &emit.Call{Func: ctor, Args: append([]emit.Expr{&emit.Null{Type: emit.AnyRef}, get()}, args...), Result: emit.None}
	return seq(emit.AnyRef, []emit.Expr{set, call}, get()), nil
}

// allocate builds an instance of t with the given field values; missing
// fields are zero.
func (l *Lowerer) allocate(t *layout.Table, fields map[string]emit.Expr) emit.Expr {
	vals := []emit.Expr{l.vtable(t)}
	for _, s := range t.FieldSlots() {
		if e, ok := fields[s.Name]; ok && s.Name != "" {
			vals = append(vals, e)
			continue
		}
		vals = append(vals, zero(l.mapper.ValType(s.Type)))
	}
	return &emit.StructNew{Type: layout.ObjectStruct(t.Name), Fields: vals}
}

func (l *Lowerer) superCall(st *fnState, v *ir.SuperCall) (emit.Expr, error) {
	args, err := l.values(st, v.Args)
	if err != nil {
		return nil, err
	}
	ctor, ok := l.ctorFor(v.Class)
	if !ok {
		return &emit.Block{}, nil
	}
	all := append([]emit.Expr{&emit.Null{Type: emit.AnyRef}, &emit.LocalGet{Index: 1, Type: emit.AnyRef}}, args...)
	return &emit.Call{Func: ctor, Args: all, Result: emit.None}, nil
}

func (l *Lowerer) objectLit(st *fnState, v *ir.ObjectLit) (emit.Expr, error) {
	t, err := l.table(v.Typ)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]emit.Expr, len(v.Names))
	for i, name := range v.Names {
		e, err := l.value(st, v.Fields[i])
		if err != nil {
			return nil, err
		}
		if _, ok := t.Lookup(name, layout.SlotField); !ok {
			return nil, diag.Unimplemented("object literal member %s of %s is not a field", name, t.Name)
		}
		fields[name] = e
	}
	return l.allocate(t, fields), nil
}

func (l *Lowerer) arrayLit(st *fnState, v *ir.ArrayLit) (emit.Expr, error) {
	elems, err := l.values(st, v.Elems)
	if err != nil {
		return nil, err
	}
	cat := l.mapper.Category(l.g.At(v.Typ).Elem)
	return &emit.ArrayNewFixed{Type: layout.ArrayStruct(cat), Elems: elems}, nil
}

func (l *Lowerer) index(st *fnState, v ir.Value) (emit.Expr, error) {
	i, err := l.value(st, v)
	if err != nil {
		return nil, err
	}
	if i.ResultType() == emit.F64 {
		return &emit.Unary{Op: emit.I32TruncF64S, X: i}, nil
	}
	return i, nil
}

func (l *Lowerer) elemGet(st *fnState, v *ir.ElemGet) (emit.Expr, error) {
	arr, err := l.value(st, v.Array)
	if err != nil {
		return nil, err
	}
	idx, err := l.index(st, v.Index)
	if err != nil {
		return nil, err
	}
	at := l.g.At(v.Array.Type())
	if at == nil || at.Kind != types.KindArray {
		return l.unbox(st, l.rt.GetElem(arr, idx), v.Typ)
	}
	cat := l.mapper.Category(at.Elem)
	name := layout.ArrayStruct(cat)
	get := &emit.ArrayGet{Type: name, Ref: &emit.RefCast{Ref: arr, Type: name}, Index: idx, Result: cat.ValType()}
	return l.narrowRef(get, l.mapper.ValType(at.Elem)), nil
}

func (l *Lowerer) elemSet(st *fnState, v *ir.ElemSet) (emit.Expr, error) {
	arr, err := l.value(st, v.Array)
	if err != nil {
		return nil, err
	}
	idx, err := l.index(st, v.Index)
	if err != nil {
		return nil, err
	}
	val, err := l.value(st, v.Value)
	if err != nil {
		return nil, err
	}
	at := l.g.At(v.Array.Type())
	if at == nil || at.Kind != types.KindArray {
		return l.rt.SetElem(arr, idx, val), nil
	}
	name := layout.ArrayStruct(l.mapper.Category(at.Elem))
	return &emit.ArraySet{Type: name, Ref: &emit.RefCast{Ref: arr, Type: name}, Index: idx, Value: val}, nil
}

// narrowRef casts an anyref read to a more specific heap type.
func (l *Lowerer) narrowRef(e emit.Expr, want emit.ValType) emit.Expr {
	if !want.IsRef() || want == emit.AnyRef || want == emit.FuncRef || e.ResultType() == want {
		return e
	}
	return &emit.RefCast{Ref: e, Type: want.Heap}
}

// length reads the length of an array or string as a number.
func (l *Lowerer) length(typ types.Ref, owner emit.Expr) (emit.Expr, error) {
	var n emit.Expr
	switch {
	case l.g.Kind(typ) == types.KindArray:
		name := layout.ArrayStruct(l.mapper.Category(l.g.At(typ).Elem))
		n = &emit.ArrayLen{Ref: &emit.RefCast{Ref: owner, Type: name}}
	case l.cfg.EnableStringRef:
		n = &emit.StringMeasure{X: owner}
	default:
		data := &emit.StructGet{Type: layout.StringStruct, Index: 1, Ref: &emit.RefCast{Ref: owner, Type: layout.StringStruct}, Result: emit.RefOf(layout.CharArray)}
		n = &emit.ArrayLen{Ref: data}
	}
	return &emit.Unary{Op: emit.F64ConvertI32S, X: n}, nil
}

// Functions and closures

func (l *Lowerer) call(st *fnState, v *ir.Call) (emit.Expr, error) {
	args, err := l.values(st, v.Args)
	if err != nil {
		return nil, err
	}
	all := append([]emit.Expr{&emit.Null{Type: emit.AnyRef}, &emit.Null{Type: emit.AnyRef}}, args...)
	result := l.mapper.ValType(v.Typ)
	if _, ok := l.prog.Lookup(v.Func); !ok {
		params := make([]emit.ValType, len(all))
		for i, a := range all {
			params[i] = a.ResultType()
		}
		l.mod.Import(abi.ExternalModule, v.Func, result, params...)
	}
	return &emit.Call{Func: v.Func, Args: all, Result: result}, nil
}

// makeClosure builds a closure value.
func (l *Lowerer) makeClosure(ctx, this, fn emit.Expr) emit.Expr {
	return &emit.StructNew{Type: layout.ClosureStruct, Fields: []emit.Expr{ctx, this, fn}}
}

// newClosure captures the current frame and this.
func (l *Lowerer) newClosure(st *fnState, v *ir.NewClosure) emit.Expr {
	ctx := l.currentFrame(st, v.Func.Scope.Parent)
	this := &emit.LocalGet{Index: 1, Type: emit.AnyRef}
	return l.makeClosure(ctx, this, &emit.RefFunc{Func: v.Func.Name})
}

func (l *Lowerer) closureCall(st *fnState, v *ir.ClosureCall) (emit.Expr, error) {
	callee, err := l.value(st, v.Callee)
	if err != nil {
		return nil, err
	}
	args, err := l.values(st, v.Args)
	if err != nil {
		return nil, err
	}
	return l.invokeClosure(st, callee, v.Callee.Type(), args)
}

// invokeClosure calls a closure value with its own context and this.
func (l *Lowerer) invokeClosure(st *fnState, callee emit.Expr, sig types.Ref, args []emit.Expr) (emit.Expr, error) {
	name, result, err := l.sigOf(sig)
	if err != nil {
		return nil, err
	}
	set, get := st.bind(callee)
	cl := func() emit.Expr { return &emit.RefCast{Ref: get(), Type: layout.ClosureStruct} }
	field := func(i int, t emit.ValType) emit.Expr {
		return &emit.StructGet{Type: layout.ClosureStruct, Index: i, Ref: cl(), Result: t}
	}
	all := append([]emit.Expr{field(abi.ClosureContextIndex, emit.AnyRef), field(abi.ClosureThisIndex, emit.AnyRef)}, args...)
	call := &emit.CallRef{Func: field(abi.ClosureFuncIndex, emit.FuncRef), Sig: name, Args: all, Result: result}
	return seq(result, []emit.Expr{set}, call), nil
}

// anyArray packs boxed values into an anyref array.
func (l *Lowerer) anyArray(vals []emit.Expr) emit.Expr {
	return &emit.ArrayNewFixed{Type: layout.ArrayStruct(layout.CatRef), Elems: vals}
}
