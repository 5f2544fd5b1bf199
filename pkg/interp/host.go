package interp

import (
	"fmt"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/layout"
)

// registerBuiltins installs the builtin module: meta lookups, indirect
// struct access, the extref table and the type-mismatch bridge.
func (in *Instance) registerBuiltins() {
	in.hosts[abi.FindPropertyFlagAndIndex] = func(in *Instance, args []Value) (Value, error) {
		fi, _ := in.lookup(args)
		return I32(fi), nil
	}
	in.hosts[abi.FindPropertyType] = func(in *Instance, args []Value) (Value, error) {
		_, tag := in.lookup(args)
		return I32(int32(tag)), nil
	}
	for _, c := range layout.Categories {
		in.hosts[c.GetIndirect()] = func(in *Instance, args []Value) (Value, error) {
			s, err := in.structOf(args[0])
			if err != nil {
				return Value{}, err
			}
			i := int(args[1].I32())
			if i < 0 || i >= len(s.Fields) {
				return Value{}, trap("indirect read of field %d on %s", i, s.Type)
			}
			return s.Fields[i], nil
		}
		in.hosts[c.SetIndirect()] = func(in *Instance, args []Value) (Value, error) {
			s, err := in.structOf(args[0])
			if err != nil {
				return Value{}, err
			}
			i := int(args[1].I32())
			if i < 0 || i >= len(s.Fields) {
				return Value{}, trap("indirect write of field %d on %s", i, s.Type)
			}
			s.Fields[i] = args[2]
			return Value{}, nil
		}
	}
	in.hosts[abi.AllocExtRefTableSlot] = func(in *Instance, args []Value) (Value, error) {
		return I32(in.allocExtref(args[0])), nil
	}
	in.hosts[abi.GetPropertyIfTypeIDMismatch] = func(in *Instance, args []Value) (Value, error) {
		return in.getMismatch(args[1].I32(), abi.TypeTag(args[2].I32()), args[3], in.ReadCString(uint32(args[4].I32())))
	}
	in.hosts[abi.SetPropertyIfTypeIDMismatch] = func(in *Instance, args []Value) (Value, error) {
		return Value{}, in.setMismatch(args[1].I32(), abi.TypeTag(args[2].I32()), args[3], in.ReadCString(uint32(args[4].I32())), args[5])
	}

	mathName := func(m string) string { return abi.FuncName(abi.FuncName(abi.BuiltinTypeManglePrefix, abi.Math), m) }
	for name, fn := range mathFuncs {
		fn := fn
		in.hosts[mathName(name)] = func(in *Instance, args []Value) (Value, error) {
			xs := make([]float64, 0, len(args)-2)
			for _, a := range args[2:] {
				xs = append(xs, a.F64())
			}
			return F64(fn(xs)), nil
		}
	}
	in.hosts[abi.FuncName("Console", "log")] = func(in *Instance, args []Value) (Value, error) {
		rest, ok := args[2].Ref.(*Array)
		if !ok {
			return Value{}, trap("console.log without rest array")
		}
		line := ""
		for i, v := range rest.Elems {
			if i > 0 {
				line += " "
			}
			line += in.display(v)
		}
		in.Output = append(in.Output, line)
		return Value{}, nil
	}
}

// lookup runs a meta search for (meta, name, flag) arguments.
func (in *Instance) lookup(args []Value) (int32, abi.TypeTag) {
	addr := uint32(args[0].I32())
	name := in.ReadCString(uint32(args[1].I32()))
	return layout.LookupEncoded(in.Memory, addr, name, abi.ItableFlag(args[2].I32()), in.ReadCString)
}

func (in *Instance) allocExtref(v Value) int32 {
	in.Table = append(in.Table, v)
	return int32(len(in.Table) - 1)
}

// metaAddr reads the meta address of a compiled object.
func (in *Instance) metaAddr(obj *Struct) (uint32, error) {
	if len(obj.Fields) == 0 {
		return 0, trap("%s has no vtable", obj.Type)
	}
	vt, ok := obj.Fields[abi.ObjectVtableIndex].Ref.(*Struct)
	if !ok {
		return 0, trap("%s has no vtable", obj.Type)
	}
	return uint32(vt.Fields[abi.VtableMetaIndex].I32()), nil
}

func (in *Instance) vtableFunc(obj *Struct, index int) (string, error) {
	vt, ok := obj.Fields[abi.ObjectVtableIndex].Ref.(*Struct)
	if !ok || index >= len(vt.Fields) {
		return "", trap("vtable slot %d missing on %s", index, obj.Type)
	}
	fn, ok := vt.Fields[index].Ref.(FuncRef)
	if !ok {
		return "", trap("vtable slot %d of %s is not a function", index, obj.Type)
	}
	return string(fn), nil
}

// getMismatch reads a member whose declared tag differs from the one the
// caller expected and returns it boxed.
func (in *Instance) getMismatch(fi int32, tag abi.TypeTag, objv Value, name string) (Value, error) {
	if fi == abi.PropertyNotFound {
		return RefValue(undefined), nil
	}
	obj, err := in.structOf(objv)
	if err != nil {
		return Value{}, err
	}
	idx := abi.UnpackIndex(fi)
	switch abi.UnpackFlag(fi) {
	case abi.FlagField:
		if idx >= len(obj.Fields) {
			return Value{}, trap("field %s out of range on %s", name, obj.Type)
		}
		return in.boxTagged(obj.Fields[idx], tag), nil
	case abi.FlagGetter:
		fn, err := in.vtableFunc(obj, idx)
		if err != nil {
			return Value{}, err
		}
		v, err := in.Call(fn, Value{}, objv)
		if err != nil {
			return Value{}, err
		}
		return in.boxTagged(v, tag), nil
	case abi.FlagMethod:
		fn, err := in.vtableFunc(obj, idx)
		if err != nil {
			return Value{}, err
		}
		cl := &Struct{Type: layout.ClosureStruct, Fields: []Value{{}, objv, RefValue(FuncRef(fn))}}
		return in.boxRef(RefValue(cl), abi.DynExtRefFunc), nil
	}
	return Value{}, trap("cannot read %s through its setter", name)
}

// setMismatch stores a boxed value into a member of another declared type.
func (in *Instance) setMismatch(fi int32, tag abi.TypeTag, objv Value, name string, val Value) error {
	if fi == abi.PropertyNotFound {
		return trap("property %s not found", name)
	}
	obj, err := in.structOf(objv)
	if err != nil {
		return err
	}
	idx := abi.UnpackIndex(fi)
	raw, err := in.unboxTagged(val, tag)
	if err != nil {
		return err
	}
	switch abi.UnpackFlag(fi) {
	case abi.FlagField:
		if idx >= len(obj.Fields) {
			return trap("field %s out of range on %s", name, obj.Type)
		}
		obj.Fields[idx] = raw
		return nil
	case abi.FlagSetter:
		fn, err := in.vtableFunc(obj, idx)
		if err != nil {
			return err
		}
		_, err = in.Call(fn, Value{}, objv, raw)
		return err
	}
	return trap("cannot write %s", name)
}

// boxTagged boxes a raw value according to its declared tag.
func (in *Instance) boxTagged(v Value, tag abi.TypeTag) Value {
	switch tag {
	case abi.TagNumber:
		return RefValue(&Dyn{Kind: abi.DynNumber, Num: v.F64()})
	case abi.TagInt:
		return RefValue(&Dyn{Kind: abi.DynNumber, Num: float64(v.I32())})
	case abi.TagBoolean:
		return RefValue(&Dyn{Kind: abi.DynBoolean, Bool: v.I32() != 0})
	case abi.TagString, abi.TagRawString:
		return RefValue(&Dyn{Kind: abi.DynString, Str: in.goString(v)})
	case abi.TagNull:
		return RefValue(null)
	case abi.TagAny, abi.TagUndefined:
		if v.IsNull() {
			return RefValue(undefined)
		}
		return v
	case abi.TagFunction:
		return in.boxRef(v, abi.DynExtRefFunc)
	case abi.TagArray:
		return in.boxRef(v, abi.DynExtRefArray)
	}
	return in.boxRef(v, abi.DynExtRefObj)
}

func (in *Instance) boxRef(v Value, kind abi.DynType) Value {
	if v.IsNull() {
		return RefValue(null)
	}
	if d, ok := v.Ref.(*Dyn); ok {
		return RefValue(d)
	}
	return RefValue(&Dyn{Kind: kind, Ext: in.allocExtref(v)})
}

// unboxTagged converts a boxed value to the raw form of tag.
func (in *Instance) unboxTagged(v Value, tag abi.TypeTag) (Value, error) {
	d, _ := v.Ref.(*Dyn)
	switch tag {
	case abi.TagNumber:
		return F64(d.number()), nil
	case abi.TagInt:
		return I32(int32(d.number())), nil
	case abi.TagBoolean:
		return boolValue(d.truthy()), nil
	case abi.TagString, abi.TagRawString:
		return in.stringValue(d.String()), nil
	case abi.TagAny, abi.TagUndefined:
		return v, nil
	}
	if d == nil || d.Kind == abi.DynNull || d.Kind == abi.DynUndefined {
		return Value{}, nil
	}
	if !d.isExtref() {
		return Value{}, trap("cannot store %s as tag %d", d.Kind.TypeOfName(), tag)
	}
	return in.Table[d.Ext], nil
}

// unboxTo converts a boxed value to a wasm value of type t.
func (in *Instance) unboxTo(v Value, t emit.ValType) (Value, error) {
	d, ok := v.Ref.(*Dyn)
	if !ok {
		return v, nil
	}
	switch {
	case t == emit.F64:
		return F64(d.number()), nil
	case t == emit.I32:
		if d.Kind == abi.DynBoolean {
			return boolValue(d.Bool), nil
		}
		return I32(int32(d.number())), nil
	case t.Heap == layout.StringStruct || t.Heap == "string":
		return in.stringValue(d.String()), nil
	case d.isExtref():
		return in.Table[d.Ext], nil
	}
	return v, nil
}

// boxFrom boxes a wasm value of type t produced by compiled code.
func (in *Instance) boxFrom(v Value, t emit.ValType) Value {
	switch {
	case t.IsNone():
		return RefValue(undefined)
	case t == emit.F64:
		return RefValue(&Dyn{Kind: abi.DynNumber, Num: v.F64()})
	case t == emit.I32:
		return RefValue(&Dyn{Kind: abi.DynNumber, Num: float64(v.I32())})
	case t.Heap == layout.StringStruct || t.Heap == "string":
		return RefValue(&Dyn{Kind: abi.DynString, Str: in.goString(v)})
	}
	if s, ok := v.Ref.(*Struct); ok && s.Type == layout.ClosureStruct {
		return in.boxRef(v, abi.DynExtRefFunc)
	}
	return in.boxRef(v, abi.DynExtRefObj)
}

// goString reads a string in either representation.
func (in *Instance) goString(v Value) string {
	switch r := v.Ref.(type) {
	case string:
		return r
	case *Struct:
		if r.Type == layout.StringStruct && len(r.Fields) == 2 {
			if arr, ok := r.Fields[1].Ref.(*Array); ok {
				b := make([]byte, len(arr.Elems))
				for i, e := range arr.Elems {
					b[i] = byte(e.I32())
				}
				return string(b)
			}
		}
	case *Dyn:
		return r.String()
	}
	return ""
}

// stringValue builds a string in the instance's representation.
func (in *Instance) stringValue(s string) Value {
	if in.opts.StringRef {
		return RefValue(s)
	}
	raw := layout.EncodeUTF8(s)
	elems := make([]Value, len(raw))
	for i, b := range raw {
		elems[i] = I32(int32(b))
	}
	return RefValue(&Struct{Type: layout.StringStruct, Fields: []Value{I32(0), RefValue(&Array{Type: layout.CharArray, Elems: elems})}})
}

// display formats a value the way console.log prints it.
func (in *Instance) display(v Value) string {
	switch r := v.Ref.(type) {
	case *Dyn:
		if r.isExtref() {
			return in.display(in.Table[r.Ext])
		}
		return r.String()
	case *Struct:
		if r.Type == layout.StringStruct {
			return in.goString(v)
		}
		return "[object " + r.Type + "]"
	case *Array:
		return fmt.Sprintf("[array %d]", len(r.Elems))
	case string:
		return r
	case nil:
		return "null"
	}
	return fmt.Sprint(v.Ref)
}
