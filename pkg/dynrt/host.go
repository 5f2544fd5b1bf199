package dynrt

import (
	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
)

// Host builds calls to the builtin helpers that back the slow path of
// interface access: meta lookups, typed indirect field access, the
// extref table and the type-mismatch bridge to the dynamic runtime.
type Host struct {
	mod *emit.Module
	rt  Runtime
}

// NewHost creates helper calls importing into mod. rt supplies the
// dynamic context for the mismatch bridge.
func NewHost(mod *emit.Module, rt Runtime) *Host {
	mod.Tables[abi.ExtrefTable] = 0
	return &Host{mod: mod, rt: rt}
}

func (h *Host) call(module, name string, result emit.ValType, params []emit.ValType, args ...emit.Expr) emit.Expr {
	h.mod.Import(module, name, result, params...)
	return &emit.Call{Func: name, Args: args, Result: result}
}

// FindFlagAndIndex looks name up in the meta at meta; flag restricts the
// member kind, abi.FlagAll matches any. The result is the packed word or
// abi.PropertyNotFound.
func (h *Host) FindFlagAndIndex(meta, name, flag emit.Expr) emit.Expr {
	return h.call(abi.BuiltinModule, abi.FindPropertyFlagAndIndex, emit.I32,
		[]emit.ValType{emit.I32, emit.I32, emit.I32}, meta, name, flag)
}

// FindType is the declared tag of the member found by FindFlagAndIndex.
func (h *Host) FindType(meta, name, flag emit.Expr) emit.Expr {
	return h.call(abi.BuiltinModule, abi.FindPropertyType, emit.I32,
		[]emit.ValType{emit.I32, emit.I32, emit.I32}, meta, name, flag)
}

// GetIndirect reads field index of any struct as the category named by
// suffix.
func (h *Host) GetIndirect(suffix string, result emit.ValType, obj, index emit.Expr) emit.Expr {
	return h.call(abi.StructIndirectMod, abi.StructGetIndirectPrefix+suffix, result,
		[]emit.ValType{emit.AnyRef, emit.I32}, obj, index)
}

func (h *Host) SetIndirect(suffix string, typ emit.ValType, obj, index, val emit.Expr) emit.Expr {
	return h.call(abi.StructIndirectMod, abi.StructSetIndirectPrefix+suffix, emit.None,
		[]emit.ValType{emit.AnyRef, emit.I32, typ}, obj, index, val)
}

// GetMismatch reads a member whose declared tag disagrees with the
// expected one and returns it boxed.
func (h *Host) GetMismatch(flagAndIndex, tag, obj, name emit.Expr) emit.Expr {
	return h.call(abi.BuiltinModule, abi.GetPropertyIfTypeIDMismatch, emit.AnyRef,
		[]emit.ValType{emit.AnyRef, emit.I32, emit.I32, emit.AnyRef, emit.I32},
		h.rt.Context(), flagAndIndex, tag, obj, name)
}

// SetMismatch stores a boxed value into a member whose declared tag
// disagrees with the expected one.
func (h *Host) SetMismatch(flagAndIndex, tag, obj, name, val emit.Expr) emit.Expr {
	return h.call(abi.BuiltinModule, abi.SetPropertyIfTypeIDMismatch, emit.None,
		[]emit.ValType{emit.AnyRef, emit.I32, emit.I32, emit.AnyRef, emit.I32, emit.AnyRef},
		h.rt.Context(), flagAndIndex, tag, obj, name, val)
}

// AllocExtref stores a compiled reference in the extref table and returns
// its slot.
func (h *Host) AllocExtref(obj emit.Expr) emit.Expr {
	return h.call(abi.BuiltinModule, abi.AllocExtRefTableSlot, emit.I32, []emit.ValType{emit.AnyRef}, obj)
}

// Extref reads a slot of the extref table back.
func (h *Host) Extref(index emit.Expr) emit.Expr {
	return &emit.TableGet{Table: abi.ExtrefTable, Index: index}
}

// Builtin calls a builtin library function.
func (h *Host) Builtin(name string, result emit.ValType, params []emit.ValType, args ...emit.Expr) emit.Expr {
	return h.call(abi.BuiltinModule, name, result, params, args...)
}
