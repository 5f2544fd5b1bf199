package lower

import (
	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/diag"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/ir"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/layout"
)

// builtin lowers a call on a builtin receiver.
func (l *Lowerer) builtin(st *fnState, v *ir.BuiltinCall) (emit.Expr, error) {
	switch {
	case v.Receiver == abi.Math:
		return l.mathCall(st, v)
	case v.Receiver == abi.Console:
		return l.consoleCall(st, v)
	case v.Receiver == abi.Array && v.Owner != nil:
		return l.arrayCall(st, v)
	case v.Receiver == abi.String && v.Owner != nil:
		return l.stringCall(st, v)
	case abi.Contains(abi.FallbackGlobals, v.Receiver):
		return l.globalInvoke(st, v)
	case abi.Contains(abi.BuiltinObjects, v.Receiver):
		return l.libraryCall(st, v, abi.FuncName(v.Receiver, v.Name))
	}
	return nil, diag.Unimplemented("builtin %s.%s", v.Receiver, v.Name)
}

// envCall calls a builtin function with the (context, this, args...)
// convention; the import signature follows the argument types.
func (l *Lowerer) envCall(name string, this emit.Expr, args []emit.Expr, result emit.ValType) emit.Expr {
	all := append([]emit.Expr{&emit.Null{Type: emit.AnyRef}, this}, args...)
	params := make([]emit.ValType, len(all))
	for i, a := range all {
		params[i] = a.ResultType()
	}
	params[1] = emit.AnyRef
	return l.host.Builtin(name, result, params, all...)
}

func (l *Lowerer) mathCall(st *fnState, v *ir.BuiltinCall) (emit.Expr, error) {
	if !abi.Contains(abi.MathMethods, v.Name) {
		return nil, diag.Unimplemented("Math.%s", v.Name)
	}
	args, err := l.values(st, v.Args)
	if err != nil {
		return nil, err
	}
	for i, a := range args {
		if a.ResultType() == emit.I32 {
			args[i] = &emit.Unary{Op: emit.F64ConvertI32S, X: a}
		}
	}
	name := abi.FuncName(abi.FuncName(abi.BuiltinTypeManglePrefix, abi.Math), v.Name)
	return l.envCall(name, &emit.Null{Type: emit.AnyRef}, args, emit.F64), nil
}

// consoleCall packs boxed arguments into one rest array.
func (l *Lowerer) consoleCall(st *fnState, v *ir.BuiltinCall) (emit.Expr, error) {
	rest := make([]emit.Expr, len(v.Args))
	for i, a := range v.Args {
		x, err := l.boxed(st, a)
		if err != nil {
			return nil, err
		}
		rest[i] = x
	}
	name := abi.FuncName("Console", v.Name)
	return l.envCall(name, &emit.Null{Type: emit.AnyRef}, []emit.Expr{l.anyArray(rest)}, emit.None), nil
}

// arrayCall picks the builtin variant matching the element category.
func (l *Lowerer) arrayCall(st *fnState, v *ir.BuiltinCall) (emit.Expr, error) {
	if !abi.Contains(abi.ArrayMethods, v.Name) {
		return nil, diag.Unimplemented("Array.prototype.%s", v.Name)
	}
	owner, err := l.value(st, v.Owner)
	if err != nil {
		return nil, err
	}
	args, err := l.values(st, v.Args)
	if err != nil {
		return nil, err
	}
	names := abi.NewGenericFuncNames(abi.Array, v.Name)
	var name string
	switch l.mapper.Category(l.g.At(v.Owner.Type()).Elem) {
	case layout.CatF64:
		name = names.F64
	case layout.CatI32:
		name = names.I32
	case layout.CatI64:
		name = names.I64
	case layout.CatF32:
		name = names.F32
	default:
		name = names.Anyref
	}
	return l.envCall(name, owner, args, l.mapper.ValType(v.Typ)), nil
}

// stringCall uses native string builtins where the representation has
// them and the dynamic runtime otherwise.
func (l *Lowerer) stringCall(st *fnState, v *ir.BuiltinCall) (emit.Expr, error) {
	owner, err := l.value(st, v.Owner)
	if err != nil {
		return nil, err
	}
	result := l.mapper.ValType(v.Typ)
	if !l.cfg.EnableStringRef {
		if !abi.Contains(abi.StringMethods, v.Name) {
			return nil, diag.Unimplemented("String.prototype.%s", v.Name)
		}
		args, err := l.values(st, v.Args)
		if err != nil {
			return nil, err
		}
		return l.envCall(abi.FuncName(abi.String, v.Name), owner, args, result), nil
	}
	if abi.Contains(abi.StringRefNativeMethods, v.Name) {
		args, err := l.values(st, v.Args)
		if err != nil {
			return nil, err
		}
		return l.envCall("string_"+v.Name, owner, args, result), nil
	}
	args := make([]emit.Expr, len(v.Args))
	for i, a := range v.Args {
		if args[i], err = l.boxed(st, a); err != nil {
			return nil, err
		}
	}
	call := l.rt.Invoke(l.name(v.Name), l.rt.NewString(owner), l.anyArray(args))
	return l.unbox(st, call, v.Typ)
}

// globalInvoke calls a method of a global that lives only in the dynamic
// runtime.
func (l *Lowerer) globalInvoke(st *fnState, v *ir.BuiltinCall) (emit.Expr, error) {
	args := make([]emit.Expr, len(v.Args))
	for i, a := range v.Args {
		x, err := l.boxed(st, a)
		if err != nil {
			return nil, err
		}
		args[i] = x
	}
	recv := l.rt.GetGlobal(l.name(v.Receiver))
	return l.unbox(st, l.rt.Invoke(l.name(v.Name), recv, l.anyArray(args)), v.Typ)
}

func (l *Lowerer) libraryCall(st *fnState, v *ir.BuiltinCall, name string) (emit.Expr, error) {
	var this emit.Expr = &emit.Null{Type: emit.AnyRef}
	if v.Owner != nil {
		x, err := l.value(st, v.Owner)
		if err != nil {
			return nil, err
		}
		this = x
	}
	args, err := l.values(st, v.Args)
	if err != nil {
		return nil, err
	}
	return l.envCall(name, this, args, l.mapper.ValType(v.Typ)), nil
}
