// Package emit - Low-level operation requests for the wasm backend
// Design: lowering builds immutable trees of these nodes; a binary encoder
// (outside this module) or the reference evaluator consumes them.
package emit

import (
	"github.com/tetratelabs/wazero/api"
)

// ValType is a wasm value type. Reference types carry the heap type name.
type ValType struct {
	Kind api.ValueType
	Heap string
}

var (
	None    = ValType{}
	I32     = ValType{Kind: api.ValueTypeI32}
	I64     = ValType{Kind: api.ValueTypeI64}
	F32     = ValType{Kind: api.ValueTypeF32}
	F64     = ValType{Kind: api.ValueTypeF64}
	AnyRef  = ValType{Kind: api.ValueTypeExternref, Heap: "any"}
	FuncRef = ValType{Kind: api.ValueTypeExternref, Heap: "func"}
)

// RefOf is a nullable reference to a named struct or array type.
func RefOf(heap string) ValType {
	return ValType{Kind: api.ValueTypeExternref, Heap: heap}
}

// IsNone reports whether t is the empty result.
func (t ValType) IsNone() bool { return t.Kind == 0 && t.Heap == "" }

// IsRef reports whether t is a reference type.
func (t ValType) IsRef() bool { return t.Heap != "" }

func (t ValType) String() string {
	switch {
	case t.IsNone():
		return "none"
	case t.Heap == "any":
		return "anyref"
	case t.Heap == "func":
		return "funcref"
	case t.IsRef():
		return "(ref null $" + t.Heap + ")"
	}
	return api.ValueTypeName(t.Kind)
}

// Field is one struct field.
type Field struct {
	Name    string
	Type    ValType
	Mutable bool
}

// StructType is a named struct definition.
type StructType struct {
	Name   string
	Fields []Field
}

// ArrayType is a named array definition. Packed arrays store i8 elements
// read and written as i32.
type ArrayType struct {
	Name    string
	Elem    ValType
	Mutable bool
	Packed  bool
}
