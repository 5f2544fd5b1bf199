package lower

import (
	"github.com/hashicorp/go-set/v3"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/diag"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/layout"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

// metaOf reads the meta address of any compiled object.
func metaOf(obj emit.Expr) emit.Expr {
	vt := &emit.StructGet{Type: layout.ObjectBase, Index: abi.ObjectVtableIndex,
		Ref: &emit.RefCast{Ref: obj, Type: layout.ObjectBase}, Result: emit.AnyRef}
	return &emit.StructGet{Type: layout.VtableBase, Index: abi.VtableMetaIndex,
		Ref: &emit.RefCast{Ref: vt, Type: layout.VtableBase}, Result: emit.I32}
}

// vtableAny reads the vtable of any compiled object as anyref.
func vtableAny(obj emit.Expr) emit.Expr {
	return &emit.StructGet{Type: layout.ObjectBase, Index: abi.ObjectVtableIndex,
		Ref: &emit.RefCast{Ref: obj, Type: layout.ObjectBase}, Result: emit.AnyRef}
}

func i32(v int32) emit.Expr { return emit.I32Const(v) }

func bin(op emit.BinOp, a, b emit.Expr) emit.Expr { return &emit.Binary{Op: op, L: a, R: b} }

// shapeMatches tests the object's type id and impl id against id.
func shapeMatches(meta func() emit.Expr, id abi.TypeTag) emit.Expr {
	if id == abi.DefaultTypeID {
		return i32(0)
	}
	typeID := &emit.Load{Addr: meta(), Offset: abi.MetaTypeIDOffset}
	implID := &emit.Load{Addr: meta(), Offset: abi.MetaImplIDOffset}
	return bin(emit.I32Or, bin(emit.I32Eq, typeID, i32(int32(id))), bin(emit.I32Eq, implID, i32(int32(id))))
}

// tagCompatible is the runtime form of abi.Compatible against a known tag.
func tagCompatible(tag emit.Expr, want abi.TypeTag, again func() emit.Expr) emit.Expr {
	eq := bin(emit.I32Eq, tag, i32(int32(want)))
	if !want.IsObjectShaped() {
		return eq
	}
	return bin(emit.I32Or, eq, bin(emit.I32GeS, again(), i32(int32(abi.CustomTypeBegin))))
}

// lookup is the emitted state of one meta search.
type lookup struct {
	fi, tag func() emit.Expr
}

func (lk lookup) found() emit.Expr {
	return bin(emit.I32Ne, lk.fi(), i32(abi.PropertyNotFound))
}

func (lk lookup) flagIs(f abi.ItableFlag) emit.Expr {
	return bin(emit.I32Eq, bin(emit.I32And, lk.fi(), i32(int32(abi.MetaFlagMask))), i32(int32(f)))
}

func (lk lookup) index() emit.Expr {
	return bin(emit.I32ShrU, lk.fi(), i32(abi.MetaIndexShift))
}

// search emits the meta lookup of name and binds its results.
func (l *Lowerer) search(st *fnState, meta func() emit.Expr, name string, flag abi.ItableFlag) ([]emit.Expr, lookup) {
	addr := l.name(name)
	setFI, fi := st.bind(l.host.FindFlagAndIndex(meta(), addr, i32(int32(flag))))
	setTag, tag := st.bind(l.host.FindType(meta(), addr, i32(int32(flag))))
	return []emit.Expr{setFI, setTag}, lookup{fi: fi, tag: tag}
}

// dualPath wraps fast and slow arms in the shape test.
func (l *Lowerer) dualPath(st *fnState, t *layout.Table, member string, obj func() emit.Expr, result emit.ValType,
	fast func() (emit.Expr, error), slow func(meta func() emit.Expr) (emit.Expr, error)) (emit.Expr, error) {
	setMeta, meta := st.bind(metaOf(obj()))
	f, err := fast()
	if err != nil {
		return nil, err
	}
	s, err := slow(meta)
	if err != nil {
		return nil, err
	}
	logger.LogFallback(t.Name, member, "interface receiver")
	if result.IsNone() {
		f, s = void(f), void(s)
	}
	return seq(result, []emit.Expr{setMeta}, &emit.If{Cond: shapeMatches(meta, t.TypeID), Then: f, Else: s, Result: result}), nil
}

// dispatchGet reads member name through an interface-typed receiver.
func (l *Lowerer) dispatchGet(st *fnState, t *layout.Table, name string, want types.Ref, obj func() emit.Expr) (emit.Expr, error) {
	slot, ok := t.Member(name)
	if !ok {
		return nil, diag.TypeResolution(name, diag.Pos{}, "property does not exist on %s", t.Name)
	}
	result := l.mapper.ValType(want)
	return l.dualPath(st, t, name, obj, result,
		func() (emit.Expr, error) { return l.directGet(t, name, obj) },
		func(meta func() emit.Expr) (emit.Expr, error) {
			setup, lk := l.search(st, meta, name, abi.FlagAll)
			mismatch, err := l.unbox(st, l.host.GetMismatch(lk.fi(), lk.tag(), obj(), l.name(name)), want)
			if err != nil {
				return nil, err
			}
			read, err := l.indirectRead(st, lk, slot, want, obj, mismatch)
			if err != nil {
				return nil, err
			}
			cond := bin(emit.I32And, lk.found(), tagCompatible(lk.tag(), slot.Tag, lk.tag))
			if l.g.UnionOf(want) != nil {
				// the union read checks each member tag itself
				cond = lk.found()
			}
			var body emit.Expr = &emit.If{
				Cond:   cond,
				Then:   read,
				Else:   mismatch,
				Result: result,
			}
			if slot.Optional && result == emit.AnyRef {
				// an absent optional member reads as undefined
				body = &emit.If{Cond: lk.found(), Then: body, Else: l.rt.NewUndefined(), Result: result}
			}
			return seq(result, setup, body), nil
		})
}

// indirectRead reads the member found by lk according to its flag.
func (l *Lowerer) indirectRead(st *fnState, lk lookup, slot layout.MemberSlot, want types.Ref, obj func() emit.Expr, otherwise emit.Expr) (emit.Expr, error) {
	result := l.mapper.ValType(want)
	field, err := l.indirectField(st, lk, want, obj, otherwise)
	if err != nil {
		return nil, err
	}
	getter := &emit.CallRef{
		Func:   l.host.GetIndirect(layout.CatFunc.Suffix(), emit.FuncRef, vtableAny(obj()), lk.index()),
		Sig:    sigName([]emit.ValType{emit.AnyRef, emit.AnyRef}, result),
		Args:   []emit.Expr{&emit.Null{Type: emit.AnyRef}, obj()},
		Result: result,
	}
	var rest emit.Expr = otherwise
	if l.g.Kind(want) == types.KindFunction {
		method := l.makeClosure(&emit.Null{Type: emit.AnyRef}, obj(),
			l.host.GetIndirect(layout.CatFunc.Suffix(), emit.FuncRef, vtableAny(obj()), lk.index()))
		rest = &emit.If{Cond: lk.flagIs(abi.FlagMethod), Then: method, Else: otherwise, Result: result}
	}
	return &emit.If{
		Cond:   lk.flagIs(abi.FlagField),
		Then:   field,
		Else:   &emit.If{Cond: lk.flagIs(abi.FlagGetter), Then: getter, Else: rest, Result: result},
		Result: result,
	}, nil
}

// indirectField reads a field by index. A union-typed member is read by
// the category its declared tag names and boxed.
func (l *Lowerer) indirectField(st *fnState, lk lookup, want types.Ref, obj func() emit.Expr, otherwise emit.Expr) (emit.Expr, error) {
	u := l.g.UnionOf(want)
	if u == nil {
		cat := l.mapper.Category(want)
		get := l.host.GetIndirect(cat.Suffix(), cat.ValType(), obj(), lk.index())
		return l.narrowRef(get, l.mapper.ValType(want)), nil
	}
	// any-typed storage holds a boxed value already
	chain := l.host.GetIndirect(layout.CatRef.Suffix(), emit.AnyRef, obj(), lk.index())
	var out emit.Expr = &emit.If{Cond: bin(emit.I32Eq, lk.tag(), i32(int32(abi.TagAny))), Then: chain, Else: otherwise, Result: emit.AnyRef}
	seen := set.New[abi.TypeTag](len(u.Members))
	for _, m := range u.Members {
		tag := l.g.TagOf(m)
		if tag == abi.TagAny || !seen.Insert(tag) {
			continue
		}
		cat := l.mapper.Category(m)
		raw := l.narrowRef(l.host.GetIndirect(cat.Suffix(), cat.ValType(), obj(), lk.index()), l.mapper.ValType(m))
		boxed, err := l.box(st, raw, m)
		if err != nil {
			return nil, err
		}
		out = &emit.If{Cond: bin(emit.I32Eq, lk.tag(), i32(int32(tag))), Then: boxed, Else: out, Result: emit.AnyRef}
	}
	logger.Debug("Union member read", "kinds", seen.Size())
	return out, nil
}

// dispatchSet writes member name through an interface-typed receiver.
func (l *Lowerer) dispatchSet(st *fnState, t *layout.Table, name string, obj, val func() emit.Expr) (emit.Expr, error) {
	slot, ok := t.Lookup(name, layout.SlotField)
	if !ok {
		if slot, ok = t.Lookup(name, layout.SlotSetter); !ok {
			return nil, diag.TypeResolution(name, diag.Pos{}, "property is not writable on %s", t.Name)
		}
	}
	return l.dualPath(st, t, name, obj, emit.None,
		func() (emit.Expr, error) { return l.directSet(t, name, obj, val()) },
		func(meta func() emit.Expr) (emit.Expr, error) {
			addr := l.name(name)
			fi := st.temp(emit.I32)
			get := func() emit.Expr { return &emit.LocalGet{Index: fi, Type: emit.I32} }
			setup := []emit.Expr{
				&emit.LocalSet{Index: fi, Value: l.host.FindFlagAndIndex(meta(), addr, i32(int32(abi.FlagField)))},
				&emit.If{
					Cond: bin(emit.I32Eq, get(), i32(abi.PropertyNotFound)),
					Then: &emit.LocalSet{Index: fi, Value: l.host.FindFlagAndIndex(meta(), addr, i32(int32(abi.FlagSetter)))},
				},
			}
			flag := bin(emit.I32And, get(), i32(int32(abi.MetaFlagMask)))
			setTag, tag := st.bind(l.host.FindType(meta(), addr, flag))
			lk := lookup{fi: get, tag: tag}
			setup = append(setup, setTag)

			typ := l.mapper.ValType(slot.Type)
			cat := l.mapper.Category(slot.Type)
			setter := &emit.CallRef{
				Func:   l.host.GetIndirect(layout.CatFunc.Suffix(), emit.FuncRef, vtableAny(obj()), lk.index()),
				Sig:    sigName([]emit.ValType{emit.AnyRef, emit.AnyRef, typ}, emit.None),
				Args:   []emit.Expr{&emit.Null{Type: emit.AnyRef}, obj(), val()},
				Result: emit.None,
			}
			write := &emit.If{
				Cond: lk.flagIs(abi.FlagField),
				Then: l.host.SetIndirect(cat.Suffix(), cat.ValType(), obj(), lk.index(), val()),
				Else: setter,
			}
			boxed, err := l.box(st, val(), slot.Type)
			if err != nil {
				return nil, err
			}
			body := &emit.If{
				Cond: bin(emit.I32And, lk.found(), tagCompatible(lk.tag(), slot.Tag, lk.tag)),
				Then: write,
				Else: l.host.SetMismatch(lk.fi(), lk.tag(), obj(), addr, boxed),
			}
			if slot.Optional {
				// an optional member the receiver lacks is left unset
				body.Else = &emit.If{Cond: lk.found(), Then: body.Else}
			}
			return &emit.Block{Body: append(setup, body)}, nil
		})
}

// dispatchCall calls method name through an interface-typed receiver.
// Arguments are bound once and shared by both paths.
func (l *Lowerer) dispatchCall(st *fnState, t *layout.Table, name string, sig types.Ref, obj func() emit.Expr, args []emit.Expr) (emit.Expr, error) {
	s := l.g.Sig(sig)
	if s == nil {
		return nil, diag.Unimplemented("call of non-function member %s.%s", t.Name, name)
	}
	var setup []emit.Expr
	readers := make([]func() emit.Expr, len(args))
	for i, a := range args {
		set, get := st.bind(a)
		setup = append(setup, set)
		readers[i] = get
	}
	argv := func() []emit.Expr {
		out := make([]emit.Expr, len(readers))
		for i, r := range readers {
			out[i] = r()
		}
		return out
	}
	_, result := l.signature(s)
	call, err := l.dualPath(st, t, name, obj, result,
		func() (emit.Expr, error) { return l.directCall(st, t, name, sig, obj, argv()) },
		func(meta func() emit.Expr) (emit.Expr, error) {
			search, lk := l.search(st, meta, name, abi.FlagAll)
			fallback, err := l.invokeFallback(st, name, s, obj, readers)
			if err != nil {
				return nil, err
			}
			sigStr, _, err := l.sigOf(sig)
			if err != nil {
				return nil, err
			}
			method := &emit.CallRef{
				Func:   l.host.GetIndirect(layout.CatFunc.Suffix(), emit.FuncRef, vtableAny(obj()), lk.index()),
				Sig:    sigStr,
				Args:   append([]emit.Expr{&emit.Null{Type: emit.AnyRef}, obj()}, argv()...),
				Result: result,
			}
			viaField, err := l.invokeClosure(st, l.host.GetIndirect(layout.CatRef.Suffix(), emit.AnyRef, obj(), lk.index()), sig, argv())
			if err != nil {
				return nil, err
			}
			getter := &emit.CallRef{
				Func:   l.host.GetIndirect(layout.CatFunc.Suffix(), emit.FuncRef, vtableAny(obj()), lk.index()),
				Sig:    sigName([]emit.ValType{emit.AnyRef, emit.AnyRef}, emit.AnyRef),
				Args:   []emit.Expr{&emit.Null{Type: emit.AnyRef}, obj()},
				Result: emit.AnyRef,
			}
			viaGetter, err := l.invokeClosure(st, getter, sig, argv())
			if err != nil {
				return nil, err
			}
			arms := &emit.If{
				Cond: lk.flagIs(abi.FlagMethod),
				Then: method,
				Else: &emit.If{
					Cond:   lk.flagIs(abi.FlagField),
					Then:   viaField,
					Else:   &emit.If{Cond: lk.flagIs(abi.FlagGetter), Then: viaGetter, Else: fallback, Result: result},
					Result: result,
				},
				Result: result,
			}
			body := &emit.If{
				Cond:   bin(emit.I32And, lk.found(), bin(emit.I32Eq, lk.tag(), i32(int32(abi.TagFunction)))),
				Then:   arms,
				Else:   fallback,
				Result: result,
			}
			if result.IsNone() {
				voidArms(body)
			}
			return seq(result, search, body), nil
		})
	if err != nil {
		return nil, err
	}
	return seq(result, setup, call), nil
}

// voidArms drops values from the arms of a statement-level if chain.
func voidArms(e *emit.If) {
	e.Then = void(e.Then)
	if inner, ok := e.Else.(*emit.If); ok {
		voidArms(inner)
		return
	}
	if e.Else != nil {
		e.Else = void(e.Else)
	}
}

// invokeFallback calls the method through the dynamic runtime with the
// receiver boxed as an external reference.
func (l *Lowerer) invokeFallback(st *fnState, name string, sig *types.Signature, obj func() emit.Expr, args []func() emit.Expr) (emit.Expr, error) {
	boxed := make([]emit.Expr, len(args))
	for i, a := range args {
		t := l.g.Prim(types.PrimAny)
		if i < len(sig.Params) {
			t = sig.Params[i].Type
		}
		b, err := l.box(st, a(), t)
		if err != nil {
			return nil, err
		}
		boxed[i] = b
	}
	recv := l.rt.NewExtref(l.host.AllocExtref(obj()), i32(int32(abi.DynExtRefInfc)))
	return l.unbox(st, l.rt.Invoke(l.name(name), recv, l.anyArray(boxed)), sig.Return)
}
