package layout

import (
	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

// Fixed struct and array type names.
const (
	ClosureStruct = "closure"
	StringStruct  = "string_type"
	CharArray     = "char_array"
	ContextStruct = "context"
	// ObjectBase and VtableBase are the headers every object and vtable
	// starts with; any object can be cast to them to reach its meta.
	ObjectBase = "object"
	VtableBase = "vtable"
)

func ObjectStruct(class string) string { return "obj|" + class }
func VtableStruct(class string) string { return "vt|" + class }
func StaticStruct(class string) string { return "static|" + class }

// ArrayStruct names the array type holding elements of a category.
func ArrayStruct(c Category) string { return "array|" + c.Suffix() }

// Mapper maps source types to wasm value types and struct layouts.
// Reference values are carried as anyref and cast before struct access.
type Mapper struct {
	G         *types.Graph
	StringRef bool
}

// StringType is the value type of a string in the selected representation.
func (m Mapper) StringType() emit.ValType {
	if m.StringRef {
		return emit.RefOf("string")
	}
	return emit.RefOf(StringStruct)
}

// ValType is the value type of a source type.
func (m Mapper) ValType(r types.Ref) emit.ValType {
	if p, ok := m.G.PrimOf(r); ok {
		switch p {
		case types.PrimVoid:
			return emit.None
		case types.PrimInt, types.PrimBoolean:
			return emit.I32
		case types.PrimNumber:
			return emit.F64
		case types.PrimI64:
			return emit.I64
		case types.PrimF32:
			return emit.F32
		case types.PrimString, types.PrimRawString:
			return m.StringType()
		}
	}
	return emit.AnyRef
}

// Category is the indirect accessor category of a source type.
func (m Mapper) Category(r types.Ref) Category {
	return CategoryOf(m.G, r)
}

// ObjectLayout is the instance struct: vtable then fields in slot order.
func (m Mapper) ObjectLayout(t *Table) *emit.StructType {
	st := &emit.StructType{Name: ObjectStruct(t.Name)}
	st.Fields = append(st.Fields, emit.Field{Name: "vtable", Type: emit.RefOf(VtableStruct(t.Name))})
	for _, s := range t.FieldSlots() {
		st.Fields = append(st.Fields, emit.Field{Name: s.Name, Type: m.ValType(s.Type), Mutable: true})
	}
	return st
}

// VtableLayout is the vtable struct: meta address then one funcref per slot.
func (m Mapper) VtableLayout(t *Table) *emit.StructType {
	st := &emit.StructType{Name: VtableStruct(t.Name)}
	st.Fields = append(st.Fields, emit.Field{Name: "meta", Type: emit.I32})
	for _, s := range t.VtableSlots() {
		name := s.Name
		switch s.Kind {
		case SlotGetter:
			name = "get_" + name
		case SlotSetter:
			name = "set_" + name
		}
		st.Fields = append(st.Fields, emit.Field{Name: name, Type: emit.FuncRef})
	}
	return st
}

// StaticLayout is the per-class struct holding static fields.
func (m Mapper) StaticLayout(t *Table) *emit.StructType {
	st := &emit.StructType{Name: StaticStruct(t.Name)}
	for _, s := range t.StaticFieldSlots() {
		st.Fields = append(st.Fields, emit.Field{Name: s.Name, Type: m.ValType(s.Type), Mutable: true})
	}
	return st
}

// ContextLayout is a closure frame: parent link then captured slots.
func (m Mapper) ContextLayout(name string, captured []types.Ref) *emit.StructType {
	st := &emit.StructType{Name: name}
	st.Fields = append(st.Fields, emit.Field{Name: "parent", Type: emit.AnyRef})
	for _, r := range captured {
		st.Fields = append(st.Fields, emit.Field{Type: m.ValType(r), Mutable: true})
	}
	return st
}

// ClosureLayout is the closure value: context, bound this, function.
func ClosureLayout() *emit.StructType {
	return &emit.StructType{Name: ClosureStruct, Fields: []emit.Field{
		{Name: "context", Type: emit.AnyRef},
		{Name: "this", Type: emit.AnyRef},
		{Name: "func", Type: emit.FuncRef},
	}}
}

// RegisterCore declares the layouts every module needs.
func (m Mapper) RegisterCore(mod *emit.Module) {
	mod.AddStruct(ClosureLayout())
	mod.AddStruct(&emit.StructType{Name: ObjectBase, Fields: []emit.Field{{Name: "vtable", Type: emit.AnyRef}}})
	mod.AddStruct(&emit.StructType{Name: VtableBase, Fields: []emit.Field{{Name: "meta", Type: emit.I32}}})
	mod.AddStruct(&emit.StructType{Name: ContextStruct, Fields: []emit.Field{{Name: "parent", Type: emit.AnyRef}}})
	if !m.StringRef {
		mod.AddArray(&emit.ArrayType{Name: CharArray, Elem: emit.I32, Mutable: true, Packed: true})
		mod.AddStruct(&emit.StructType{Name: StringStruct, Fields: []emit.Field{
			{Name: "flag", Type: emit.I32},
			{Name: "data", Type: emit.RefOf(CharArray)},
		}})
	}
	for _, c := range Categories {
		if c == CatFunc {
			continue
		}
		mod.AddArray(&emit.ArrayType{Name: ArrayStruct(c), Elem: c.ValType(), Mutable: true})
	}
}

// Register declares the object, vtable and static layouts of a class.
func (m Mapper) Register(mod *emit.Module, t *Table) error {
	for _, st := range []*emit.StructType{m.ObjectLayout(t), m.VtableLayout(t), m.StaticLayout(t)} {
		if err := mod.AddStruct(st); err != nil {
			return err
		}
	}
	return nil
}

// ImplCompatible reports whether every slot of the interface table appears
// in the class table with the same kind and index, so an object passing the
// impl id test can be accessed through the interface layout.
func ImplCompatible(class, iface *Table) bool {
	for _, s := range iface.Slots {
		got, ok := class.Lookup(s.Name, s.Kind)
		if !ok || got.Index != s.Index || !abi.Compatible(s.Tag, got.Tag) {
			return false
		}
	}
	return true
}
