// Package dynrt describes the host functions compiled code calls into.
//
// Design: lowering never builds call nodes for host functions by hand. It
// asks a Runtime for the expression, and the Runtime both names the import
// and records its signature on the module, so every host dependency of a
// module is visible in its import table.
package dynrt

import (
	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
)

// ContextGlobal holds the dynamic runtime context for the module's lifetime.
const ContextGlobal = "@dyntype_context"

// Runtime builds calls into the dynamic-object runtime. Values flowing in
// and out are boxed references; property names are data-segment addresses
// of NUL-terminated strings.
type Runtime interface {
	Context() emit.Expr

	NewNumber(v emit.Expr) emit.Expr
	NewBoolean(v emit.Expr) emit.Expr
	NewString(v emit.Expr) emit.Expr
	NewNull() emit.Expr
	NewUndefined() emit.Expr
	NewObject() emit.Expr
	NewArray(length emit.Expr) emit.Expr
	NewExtref(index, tag emit.Expr) emit.Expr
	NewWithClass(name, args emit.Expr) emit.Expr

	Get(obj, name emit.Expr) emit.Expr
	Set(obj, name, val emit.Expr) emit.Expr
	Has(obj, name emit.Expr) emit.Expr
	GetElem(obj, index emit.Expr) emit.Expr
	SetElem(obj, index, val emit.Expr) emit.Expr
	Invoke(name, obj, args emit.Expr) emit.Expr
	GetGlobal(name emit.Expr) emit.Expr

	TypeOf(obj emit.Expr) emit.Expr
	InstanceOf(obj, witness emit.Expr) emit.Expr
	IsUndefined(obj emit.Expr) emit.Expr
	IsNull(obj emit.Expr) emit.Expr
	IsExtref(obj emit.Expr) emit.Expr

	ToNumber(obj emit.Expr) emit.Expr
	ToBool(obj emit.Expr) emit.Expr
	ToString(obj emit.Expr) emit.Expr
	ToExtref(obj emit.Expr) emit.Expr
}

// Imports is the Runtime backed by the libdyntype import module. StringType
// is the value type strings cross the boundary in.
type Imports struct {
	mod        *emit.Module
	StringType emit.ValType
}

// NewImports creates a Runtime importing into mod and declares the context
// global.
func NewImports(mod *emit.Module, stringType emit.ValType) *Imports {
	rt := &Imports{mod: mod, StringType: stringType}
	rt.declare(abi.DynContext, emit.AnyRef)
	mod.AddGlobal(&emit.Global{
		Name: ContextGlobal,
		Type: emit.AnyRef,
		Init: &emit.Call{Func: abi.DynContext, Result: emit.AnyRef},
	})
	return rt
}

func (rt *Imports) declare(name string, result emit.ValType, params ...emit.ValType) {
	rt.mod.Import(abi.DyntypeModule, name, result, params...)
}

// call declares name as taking (context, params...) and calls it.
func (rt *Imports) call(name string, result emit.ValType, params []emit.ValType, args ...emit.Expr) emit.Expr {
	rt.declare(name, result, append([]emit.ValType{emit.AnyRef}, params...)...)
	return &emit.Call{Func: name, Args: append([]emit.Expr{rt.Context()}, args...), Result: result}
}

var (
	any1 = []emit.ValType{emit.AnyRef}
	any2 = []emit.ValType{emit.AnyRef, emit.AnyRef}
)

func (rt *Imports) Context() emit.Expr {
	return &emit.GlobalGet{Name: ContextGlobal, Type: emit.AnyRef}
}

func (rt *Imports) NewNumber(v emit.Expr) emit.Expr {
	return rt.call(abi.DynNewNumber, emit.AnyRef, []emit.ValType{emit.F64}, v)
}

func (rt *Imports) NewBoolean(v emit.Expr) emit.Expr {
	return rt.call(abi.DynNewBoolean, emit.AnyRef, []emit.ValType{emit.I32}, v)
}

func (rt *Imports) NewString(v emit.Expr) emit.Expr {
	return rt.call(abi.DynNewString, emit.AnyRef, []emit.ValType{rt.StringType}, v)
}

func (rt *Imports) NewNull() emit.Expr {
	return rt.call(abi.DynNewNull, emit.AnyRef, nil)
}

func (rt *Imports) NewUndefined() emit.Expr {
	return rt.call(abi.DynNewUndefined, emit.AnyRef, nil)
}

func (rt *Imports) NewObject() emit.Expr {
	return rt.call(abi.DynNewObject, emit.AnyRef, nil)
}

func (rt *Imports) NewArray(length emit.Expr) emit.Expr {
	return rt.call(abi.DynNewArray, emit.AnyRef, []emit.ValType{emit.I32}, length)
}

// NewExtref wraps an extref table slot; tag tells the runtime what kind of
// compiled value sits in the slot.
func (rt *Imports) NewExtref(index, tag emit.Expr) emit.Expr {
	return rt.call(abi.DynNewExtref, emit.AnyRef, []emit.ValType{emit.I32, emit.I32}, index, tag)
}

func (rt *Imports) NewWithClass(name, args emit.Expr) emit.Expr {
	return rt.call(abi.DynNewWithClass, emit.AnyRef, []emit.ValType{emit.I32, emit.AnyRef}, name, args)
}

func (rt *Imports) Get(obj, name emit.Expr) emit.Expr {
	return rt.call(abi.DynGetProperty, emit.AnyRef, []emit.ValType{emit.AnyRef, emit.I32}, obj, name)
}

func (rt *Imports) Set(obj, name, val emit.Expr) emit.Expr {
	return rt.call(abi.DynSetProperty, emit.I32, []emit.ValType{emit.AnyRef, emit.I32, emit.AnyRef}, obj, name, val)
}

func (rt *Imports) Has(obj, name emit.Expr) emit.Expr {
	return rt.call(abi.DynHasProperty, emit.I32, []emit.ValType{emit.AnyRef, emit.I32}, obj, name)
}

func (rt *Imports) GetElem(obj, index emit.Expr) emit.Expr {
	return rt.call(abi.DynGetElem, emit.AnyRef, []emit.ValType{emit.AnyRef, emit.I32}, obj, index)
}

func (rt *Imports) SetElem(obj, index, val emit.Expr) emit.Expr {
	return rt.call(abi.DynSetElem, emit.None, []emit.ValType{emit.AnyRef, emit.I32, emit.AnyRef}, obj, index, val)
}

// Invoke calls method name on obj with args packed in an anyref array.
func (rt *Imports) Invoke(name, obj, args emit.Expr) emit.Expr {
	return rt.call(abi.DynInvoke, emit.AnyRef, []emit.ValType{emit.I32, emit.AnyRef, emit.AnyRef}, name, obj, args)
}

func (rt *Imports) GetGlobal(name emit.Expr) emit.Expr {
	return rt.call(abi.DynGetGlobal, emit.AnyRef, []emit.ValType{emit.I32}, name)
}

func (rt *Imports) TypeOf(obj emit.Expr) emit.Expr {
	return rt.call(abi.DynTypeOf, rt.StringType, any1, obj)
}

func (rt *Imports) InstanceOf(obj, witness emit.Expr) emit.Expr {
	return rt.call(abi.DynInstanceOf, emit.I32, any2, obj, witness)
}

func (rt *Imports) IsUndefined(obj emit.Expr) emit.Expr {
	return rt.call(abi.DynIsUndefined, emit.I32, any1, obj)
}

func (rt *Imports) IsNull(obj emit.Expr) emit.Expr {
	return rt.call(abi.DynIsNull, emit.I32, any1, obj)
}

func (rt *Imports) IsExtref(obj emit.Expr) emit.Expr {
	return rt.call(abi.DynIsExtref, emit.I32, any1, obj)
}

func (rt *Imports) ToNumber(obj emit.Expr) emit.Expr {
	return rt.call(abi.DynToNumber, emit.F64, any1, obj)
}

func (rt *Imports) ToBool(obj emit.Expr) emit.Expr {
	return rt.call(abi.DynToBool, emit.I32, any1, obj)
}

func (rt *Imports) ToString(obj emit.Expr) emit.Expr {
	return rt.call(abi.DynToString, rt.StringType, any1, obj)
}

// ToExtref returns the extref table slot held by a boxed compiled value.
func (rt *Imports) ToExtref(obj emit.Expr) emit.Expr {
	return rt.call(abi.DynToExtref, emit.I32, any1, obj)
}
