package lower

import (
	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/diag"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/ir"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

// isDynamic reports whether values of r are already dynamic-runtime values.
func (l *Lowerer) isDynamic(r types.Ref) bool {
	switch l.g.Kind(r) {
	case types.KindUnion:
		return true
	case types.KindClass:
		return l.g.Class(r).IsLibrary
	case types.KindPrimitive:
		p, _ := l.g.PrimOf(r)
		return p == types.PrimAny || p == types.PrimUndefined
	}
	return false
}

func (l *Lowerer) cast(st *fnState, v *ir.Cast) (emit.Expr, error) {
	if v.Kind == ir.CastBox {
		switch lit := v.X.(type) {
		case *ir.ObjectLit:
			return l.dynObject(st, lit)
		case *ir.ArrayLit:
			return l.dynArray(st, lit)
		}
	}
	x, err := l.value(st, v.X)
	if err != nil {
		return nil, err
	}
	switch v.Kind {
	case ir.CastBox:
		return l.box(st, x, v.X.Type())
	case ir.CastUnbox:
		return l.unbox(st, x, v.Typ)
	case ir.CastIntToNum:
		return &emit.Unary{Op: emit.F64ConvertI32S, X: x}, nil
	case ir.CastNumToInt:
		return &emit.Unary{Op: emit.I32TruncF64S, X: x}, nil
	}
	return x, nil
}

// box converts a static value of type t into a dynamic value. Objects,
// arrays and closures are stored in the external reference table.
func (l *Lowerer) box(st *fnState, x emit.Expr, t types.Ref) (emit.Expr, error) {
	if l.isDynamic(t) {
		return x, nil
	}
	if p, ok := l.g.PrimOf(t); ok {
		switch p {
		case types.PrimNumber:
			return l.rt.NewNumber(x), nil
		case types.PrimInt:
			return l.rt.NewNumber(&emit.Unary{Op: emit.F64ConvertI32S, X: x}), nil
		case types.PrimBoolean:
			return l.rt.NewBoolean(x), nil
		case types.PrimString, types.PrimRawString:
			return l.rt.NewString(x), nil
		case types.PrimNull:
			return seq(emit.AnyRef, []emit.Expr{void(x)}, l.rt.NewNull()), nil
		}
		return nil, diag.Unimplemented("boxing of %s", l.g.String(t))
	}
	kind := abi.DynExtRefObj
	switch l.g.Kind(t) {
	case types.KindInterface:
		kind = abi.DynExtRefInfc
	case types.KindArray:
		kind = abi.DynExtRefArray
	case types.KindFunction:
		kind = abi.DynExtRefFunc
	}
	return l.rt.NewExtref(l.host.AllocExtref(x), i32(int32(kind))), nil
}

// unbox converts a dynamic value into the static representation of t.
func (l *Lowerer) unbox(st *fnState, x emit.Expr, t types.Ref) (emit.Expr, error) {
	if l.isDynamic(t) {
		return x, nil
	}
	if p, ok := l.g.PrimOf(t); ok {
		switch p {
		case types.PrimVoid:
			return &emit.Drop{X: x}, nil
		case types.PrimNumber:
			return l.rt.ToNumber(x), nil
		case types.PrimInt:
			return &emit.Unary{Op: emit.I32TruncF64S, X: l.rt.ToNumber(x)}, nil
		case types.PrimBoolean:
			return l.rt.ToBool(x), nil
		case types.PrimString, types.PrimRawString:
			return l.rt.ToString(x), nil
		case types.PrimNull:
			return seq(emit.AnyRef, []emit.Expr{&emit.Drop{X: x}}, &emit.Null{Type: emit.AnyRef}), nil
		}
		return nil, diag.Unimplemented("unboxing to %s", l.g.String(t))
	}
	return l.narrowRef(l.host.Extref(l.rt.ToExtref(x)), l.mapper.ValType(t)), nil
}

// dynObject builds an object literal directly as a dynamic object.
func (l *Lowerer) dynObject(st *fnState, v *ir.ObjectLit) (emit.Expr, error) {
	set, obj := st.bind(l.rt.NewObject())
	body := []emit.Expr{set}
	for i, name := range v.Names {
		x, err := l.boxed(st, v.Fields[i])
		if err != nil {
			return nil, err
		}
		body = append(body, &emit.Drop{X: l.rt.Set(obj(), l.name(name), x)})
	}
	return seq(emit.AnyRef, body, obj()), nil
}

// dynArray builds an array literal directly as a dynamic array.
func (l *Lowerer) dynArray(st *fnState, v *ir.ArrayLit) (emit.Expr, error) {
	set, arr := st.bind(l.rt.NewArray(i32(int32(len(v.Elems)))))
	body := []emit.Expr{set}
	for i, e := range v.Elems {
		x, err := l.boxed(st, e)
		if err != nil {
			return nil, err
		}
		body = append(body, l.rt.SetElem(arr(), i32(int32(i)), x))
	}
	return seq(emit.AnyRef, body, arr()), nil
}

// boxed lowers v and boxes it by its static type.
func (l *Lowerer) boxed(st *fnState, v ir.Value) (emit.Expr, error) {
	if c, ok := v.(*ir.Cast); ok && c.Kind == ir.CastBox {
		return l.cast(st, c)
	}
	x, err := l.value(st, v)
	if err != nil {
		return nil, err
	}
	return l.box(st, x, v.Type())
}

// instanceOf decides statically when the class hierarchy allows it and
// asks the dynamic runtime otherwise.
func (l *Lowerer) instanceOf(st *fnState, v *ir.InstanceOf) (emit.Expr, error) {
	x, err := l.value(st, v.X)
	if err != nil {
		return nil, err
	}
	left, right := v.X.Type(), v.Class
	lc, rc := l.g.Class(left), l.g.Class(right)
	if rc == nil {
		return nil, diag.TypeResolution(l.g.String(right), diag.Pos{}, "right side of instanceof is not a class")
	}
	if lc != nil && !l.g.IsInterface(left) && l.g.IsInterface(right) && l.g.Implements(left, right) {
		return seq(emit.I32, []emit.Expr{void(x)}, i32(1)), nil
	}
	if lc != nil && !lc.IsLibrary && !rc.IsLibrary && !l.g.IsInterface(left) && !l.g.IsInterface(right) {
		switch {
		case l.g.InheritsFrom(left, right):
			return seq(emit.I32, []emit.Expr{void(x)}, i32(1)), nil
		case !l.g.InheritsFrom(right, left):
			return seq(emit.I32, []emit.Expr{void(x)}, i32(0)), nil
		}
	}
	obj, err := l.box(st, x, left)
	if err != nil {
		return nil, err
	}
	var witness emit.Expr
	if rc.IsLibrary {
		witness = l.rt.GetGlobal(l.name(rc.Name))
	} else {
		t, err := l.table(right)
		if err != nil {
			return nil, err
		}
		if witness, err = l.box(st, l.allocate(t, nil), right); err != nil {
			return nil, err
		}
	}
	return l.rt.InstanceOf(obj, witness), nil
}

func (l *Lowerer) dynGet(st *fnState, v *ir.DynGet) (emit.Expr, error) {
	obj, err := l.value(st, v.Obj)
	if err != nil {
		return nil, err
	}
	return l.rt.Get(obj, l.name(v.Name)), nil
}

func (l *Lowerer) dynSet(st *fnState, v *ir.DynSet) (emit.Expr, error) {
	obj, err := l.value(st, v.Obj)
	if err != nil {
		return nil, err
	}
	val, err := l.value(st, v.Value)
	if err != nil {
		return nil, err
	}
	return &emit.Drop{X: l.rt.Set(obj, l.name(v.Name), val)}, nil
}

func (l *Lowerer) dynCall(st *fnState, v *ir.DynCall) (emit.Expr, error) {
	obj, err := l.value(st, v.Obj)
	if err != nil {
		return nil, err
	}
	args, err := l.values(st, v.Args)
	if err != nil {
		return nil, err
	}
	return l.rt.Invoke(l.name(v.Name), obj, l.anyArray(args)), nil
}
