package layout

import (
	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
	"github.com/tetratelabs/wazero/api"
)

// Category selects the typed indirect accessor for a value.
type Category uint8

const (
	CatI32 Category = iota
	CatI64
	CatF32
	CatF64
	CatRef
	CatFunc
)

// Suffix is the accessor name suffix.
func (c Category) Suffix() string {
	switch c {
	case CatI32:
		return "i32"
	case CatI64:
		return "i64"
	case CatF32:
		return "f32"
	case CatF64:
		return "f64"
	case CatFunc:
		return "funcref"
	}
	return "anyref"
}

func (c Category) String() string { return c.Suffix() }

// ValueType is the wasm value type carried by the category.
func (c Category) ValueType() api.ValueType {
	switch c {
	case CatI32:
		return api.ValueTypeI32
	case CatI64:
		return api.ValueTypeI64
	case CatF32:
		return api.ValueTypeF32
	case CatF64:
		return api.ValueTypeF64
	}
	return api.ValueTypeExternref
}

// ValType is the emitted type of an indirect access in this category.
func (c Category) ValType() emit.ValType {
	switch c {
	case CatRef:
		return emit.AnyRef
	case CatFunc:
		return emit.FuncRef
	}
	return emit.ValType{Kind: c.ValueType()}
}

// GetIndirect is the struct_get_indirect import for the category.
func (c Category) GetIndirect() string { return abi.StructGetIndirectPrefix + c.Suffix() }

// SetIndirect is the struct_set_indirect import for the category.
func (c Category) SetIndirect() string { return abi.StructSetIndirectPrefix + c.Suffix() }

// Categories lists every category in accessor order.
var Categories = []Category{CatI32, CatI64, CatF32, CatF64, CatRef, CatFunc}

// CategoryOf classifies a source type. Closures stored in fields are
// references; only vtable slots hold bare function references.
func CategoryOf(g *types.Graph, r types.Ref) Category {
	if p, ok := g.PrimOf(r); ok {
		switch p {
		case types.PrimInt, types.PrimBoolean:
			return CatI32
		case types.PrimI64:
			return CatI64
		case types.PrimF32:
			return CatF32
		case types.PrimNumber:
			return CatF64
		}
	}
	return CatRef
}
