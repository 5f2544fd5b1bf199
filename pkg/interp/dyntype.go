package interp

import (
	"math"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/layout"
)

// Dyn is a value owned by the dynamic runtime. Compiled objects appear as
// extrefs: Ext is their slot in the instance's extref table.
type Dyn struct {
	Kind   abi.DynType
	Num    float64
	Bool   bool
	Str    string
	Props  map[string]Value
	Keys   []string
	Elems  []Value
	Ext    int32
	Global string
}

var (
	undefined = &Dyn{Kind: abi.DynUndefined}
	null      = &Dyn{Kind: abi.DynNull}
)

func (d *Dyn) isExtref() bool {
	if d == nil {
		return false
	}
	switch d.Kind {
	case abi.DynExtRefObj, abi.DynExtRefFunc, abi.DynExtRefInfc, abi.DynExtRefArray:
		return true
	}
	return false
}

func (d *Dyn) number() float64 {
	if d == nil {
		return math.NaN()
	}
	switch d.Kind {
	case abi.DynNumber:
		return d.Num
	case abi.DynBoolean:
		if d.Bool {
			return 1
		}
		return 0
	case abi.DynNull:
		return 0
	case abi.DynString:
		f, err := strconv.ParseFloat(strings.TrimSpace(d.Str), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

func (d *Dyn) truthy() bool {
	if d == nil {
		return false
	}
	switch d.Kind {
	case abi.DynNull, abi.DynUndefined:
		return false
	case abi.DynBoolean:
		return d.Bool
	case abi.DynNumber:
		return d.Num != 0 && !math.IsNaN(d.Num)
	case abi.DynString:
		return d.Str != ""
	}
	return true
}

func (d *Dyn) String() string {
	if d == nil {
		return "undefined"
	}
	switch d.Kind {
	case abi.DynNumber:
		return formatNumber(d.Num)
	case abi.DynBoolean:
		return strconv.FormatBool(d.Bool)
	case abi.DynString:
		return d.Str
	case abi.DynNull, abi.DynUndefined:
		return d.Kind.TypeOfName()
	}
	return "[object Object]"
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func dynOf(v Value) *Dyn {
	if d, ok := v.Ref.(*Dyn); ok {
		return d
	}
	return null
}

func (d *Dyn) set(name string, v Value) {
	if d.Props == nil {
		d.Props = make(map[string]Value)
	}
	if _, ok := d.Props[name]; !ok {
		d.Keys = append(d.Keys, name)
	}
	d.Props[name] = v
}

var mathFuncs = map[string]func([]float64) float64{
	"sqrt":  func(x []float64) float64 { return math.Sqrt(x[0]) },
	"abs":   func(x []float64) float64 { return math.Abs(x[0]) },
	"ceil":  func(x []float64) float64 { return math.Ceil(x[0]) },
	"floor": func(x []float64) float64 { return math.Floor(x[0]) },
	"trunc": func(x []float64) float64 { return math.Trunc(x[0]) },
	"pow":   func(x []float64) float64 { return math.Pow(x[0], x[1]) },
	"max": func(x []float64) float64 {
		out := math.Inf(-1)
		for _, v := range x {
			out = math.Max(out, v)
		}
		return out
	},
	"min": func(x []float64) float64 {
		out := math.Inf(1)
		for _, v := range x {
			out = math.Min(out, v)
		}
		return out
	},
}

func is(pred func(d *Dyn) bool) HostFunc {
	return func(in *Instance, args []Value) (Value, error) {
		return boolValue(pred(dynOf(args[1]))), nil
	}
}

func kindIs(kinds ...abi.DynType) HostFunc {
	return is(func(d *Dyn) bool {
		for _, k := range kinds {
			if d.Kind == k {
				return true
			}
		}
		return false
	})
}

func newDyn(build func(in *Instance, args []Value) *Dyn) HostFunc {
	return func(in *Instance, args []Value) (Value, error) {
		return RefValue(build(in, args)), nil
	}
}

// registerDyntype installs the libdyntype model.
func (in *Instance) registerDyntype() {
	h := in.hosts
	h[abi.DynContext] = func(in *Instance, _ []Value) (Value, error) { return RefValue(in), nil }

	h[abi.DynNewNumber] = newDyn(func(_ *Instance, a []Value) *Dyn { return &Dyn{Kind: abi.DynNumber, Num: a[1].F64()} })
	h[abi.DynNewBoolean] = newDyn(func(_ *Instance, a []Value) *Dyn { return &Dyn{Kind: abi.DynBoolean, Bool: a[1].I32() != 0} })
	h[abi.DynNewString] = newDyn(func(in *Instance, a []Value) *Dyn { return &Dyn{Kind: abi.DynString, Str: in.goString(a[1])} })
	h[abi.DynNewNull] = newDyn(func(*Instance, []Value) *Dyn { return null })
	h[abi.DynNewUndefined] = newDyn(func(*Instance, []Value) *Dyn { return undefined })
	h[abi.DynNewObject] = newDyn(func(*Instance, []Value) *Dyn { return &Dyn{Kind: abi.DynObject} })
	h[abi.DynNewArray] = newDyn(func(_ *Instance, a []Value) *Dyn {
		elems := make([]Value, a[1].I32())
		for i := range elems {
			elems[i] = RefValue(undefined)
		}
		return &Dyn{Kind: abi.DynObject, Elems: elems, Global: abi.Array}
	})
	h[abi.DynNewExtref] = newDyn(func(_ *Instance, a []Value) *Dyn {
		return &Dyn{Kind: abi.DynType(a[2].I32()), Ext: a[1].I32()}
	})
	h[abi.DynNewWithClass] = newDyn(func(in *Instance, a []Value) *Dyn {
		return &Dyn{Kind: abi.DynObject, Global: in.ReadCString(uint32(a[1].I32()))}
	})

	h[abi.DynGetProperty] = func(in *Instance, a []Value) (Value, error) {
		d, name := dynOf(a[1]), in.ReadCString(uint32(a[2].I32()))
		if d.isExtref() {
			return in.extrefGet(d, name)
		}
		if v, ok := d.Props[name]; ok {
			return v, nil
		}
		if name == "length" && d.Global == abi.Array {
			return RefValue(&Dyn{Kind: abi.DynNumber, Num: float64(len(d.Elems))}), nil
		}
		return RefValue(undefined), nil
	}
	h[abi.DynSetProperty] = func(in *Instance, a []Value) (Value, error) {
		d, name := dynOf(a[1]), in.ReadCString(uint32(a[2].I32()))
		if d.isExtref() {
			return I32(0), in.extrefSet(d, name, a[3])
		}
		if d.Kind != abi.DynObject {
			return I32(-1), nil
		}
		d.set(name, a[3])
		return I32(0), nil
	}
	h[abi.DynHasProperty] = func(in *Instance, a []Value) (Value, error) {
		d, name := dynOf(a[1]), in.ReadCString(uint32(a[2].I32()))
		if d.isExtref() {
			obj, ok := in.Table[d.Ext].Ref.(*Struct)
			if !ok {
				return I32(0), nil
			}
			fi, _, err := in.find(obj, name, abi.FlagAll)
			return boolValue(fi != abi.PropertyNotFound), err
		}
		_, ok := d.Props[name]
		return boolValue(ok), nil
	}
	h[abi.DynGetElem] = func(in *Instance, a []Value) (Value, error) {
		d, i := dynOf(a[1]), int(a[2].I32())
		if d.Kind == abi.DynExtRefArray {
			arr, ok := in.Table[d.Ext].Ref.(*Array)
			if !ok || i < 0 || i >= len(arr.Elems) {
				return RefValue(undefined), nil
			}
			return in.boxFrom(arr.Elems[i], elemType(arr.Type)), nil
		}
		if i < 0 || i >= len(d.Elems) {
			return RefValue(undefined), nil
		}
		return d.Elems[i], nil
	}
	h[abi.DynSetElem] = func(in *Instance, a []Value) (Value, error) {
		d, i := dynOf(a[1]), int(a[2].I32())
		if d.Kind == abi.DynExtRefArray {
			arr, ok := in.Table[d.Ext].Ref.(*Array)
			if !ok || i < 0 || i >= len(arr.Elems) {
				return Value{}, trap("element %d out of range", i)
			}
			v, err := in.unboxTo(a[3], elemType(arr.Type))
			arr.Elems[i] = v
			return Value{}, err
		}
		if i < 0 {
			return Value{}, trap("negative element index %d", i)
		}
		for len(d.Elems) <= i {
			d.Elems = append(d.Elems, RefValue(undefined))
		}
		d.Elems[i] = a[3]
		return Value{}, nil
	}
	h[abi.DynInvoke] = func(in *Instance, a []Value) (Value, error) {
		var argv []Value
		if arr, ok := a[3].Ref.(*Array); ok {
			argv = arr.Elems
		}
		return in.invokeDyn(dynOf(a[2]), in.ReadCString(uint32(a[1].I32())), argv)
	}
	h[abi.DynGetGlobal] = newDyn(func(in *Instance, a []Value) *Dyn {
		return &Dyn{Kind: abi.DynObject, Global: in.ReadCString(uint32(a[1].I32()))}
	})

	h[abi.DynTypeOf] = func(in *Instance, a []Value) (Value, error) {
		return in.stringValue(dynOf(a[1]).Kind.TypeOfName()), nil
	}
	h[abi.DynInstanceOf] = func(in *Instance, a []Value) (Value, error) {
		return boolValue(in.instanceOf(dynOf(a[1]), dynOf(a[2]))), nil
	}
	h[abi.DynIsUndefined] = kindIs(abi.DynUndefined)
	h[abi.DynIsNull] = kindIs(abi.DynNull)
	h[abi.DynIsBool] = kindIs(abi.DynBoolean)
	h[abi.DynIsNumber] = kindIs(abi.DynNumber)
	h[abi.DynIsString] = kindIs(abi.DynString)
	h[abi.DynIsObject] = kindIs(abi.DynObject)
	h[abi.DynIsArray] = is(func(d *Dyn) bool { return d.Kind == abi.DynExtRefArray || d.Global == abi.Array })
	h[abi.DynIsExtref] = is((*Dyn).isExtref)
	h[abi.DynIsFalsy] = is(func(d *Dyn) bool { return !d.truthy() })

	h[abi.DynToNumber] = func(_ *Instance, a []Value) (Value, error) { return F64(dynOf(a[1]).number()), nil }
	h[abi.DynToBool] = func(_ *Instance, a []Value) (Value, error) { return boolValue(dynOf(a[1]).truthy()), nil }
	h[abi.DynToString] = func(in *Instance, a []Value) (Value, error) { return in.stringValue(dynOf(a[1]).String()), nil }
	h[abi.DynToExtref] = func(_ *Instance, a []Value) (Value, error) {
		d := dynOf(a[1])
		if !d.isExtref() {
			return Value{}, trap("%s is not an extref", d.Kind.TypeOfName())
		}
		return I32(d.Ext), nil
	}
}

// elemType is the element value type of a compiled array type name.
func elemType(arrayType string) emit.ValType {
	for _, c := range layout.Categories {
		if layout.ArrayStruct(c) == arrayType {
			return c.ValType()
		}
	}
	return emit.AnyRef
}

// find searches the meta of a compiled object.
func (in *Instance) find(obj *Struct, name string, flag abi.ItableFlag) (int32, abi.TypeTag, error) {
	addr, err := in.metaAddr(obj)
	if err != nil {
		return abi.PropertyNotFound, 0, err
	}
	fi, tag := layout.LookupEncoded(in.Memory, addr, name, flag, in.ReadCString)
	return fi, tag, nil
}

func (in *Instance) extrefGet(d *Dyn, name string) (Value, error) {
	target := in.Table[d.Ext]
	switch r := target.Ref.(type) {
	case *Array:
		if name == "length" {
			return RefValue(&Dyn{Kind: abi.DynNumber, Num: float64(len(r.Elems))}), nil
		}
		return RefValue(undefined), nil
	case *Struct:
		if r.Type == layout.ClosureStruct {
			return RefValue(undefined), nil
		}
		fi, tag, err := in.find(r, name, abi.FlagAll)
		if err != nil {
			return Value{}, err
		}
		if fi != abi.PropertyNotFound && abi.UnpackFlag(fi) == abi.FlagSetter {
			// a setter alone reads as undefined
			return RefValue(undefined), nil
		}
		return in.getMismatch(fi, tag, target, name)
	}
	return RefValue(undefined), nil
}

func (in *Instance) extrefSet(d *Dyn, name string, v Value) error {
	obj, ok := in.Table[d.Ext].Ref.(*Struct)
	if !ok {
		return trap("cannot set %s on %s", name, d.Kind.TypeOfName())
	}
	fi, tag, err := in.find(obj, name, abi.FlagField)
	if err != nil {
		return err
	}
	if fi == abi.PropertyNotFound {
		if fi, tag, err = in.find(obj, name, abi.FlagSetter); err != nil {
			return err
		}
	}
	return in.setMismatch(fi, tag, in.Table[d.Ext], name, v)
}

// invokeDyn calls method name on d with boxed arguments; an empty name
// calls d itself.
func (in *Instance) invokeDyn(d *Dyn, name string, argv []Value) (Value, error) {
	if !d.isExtref() {
		fn, ok := d.Props[name]
		if !ok {
			return Value{}, trap("%s is not a function", name)
		}
		return in.invokeDyn(dynOf(fn), "", argv)
	}
	target := in.Table[d.Ext]
	obj, ok := target.Ref.(*Struct)
	if !ok {
		return Value{}, trap("%s is not callable", d.Kind.TypeOfName())
	}
	if name == "" {
		if obj.Type != layout.ClosureStruct {
			return Value{}, trap("%s is not a closure", obj.Type)
		}
		return in.callClosure(obj, argv)
	}
	fi, tag, err := in.find(obj, name, abi.FlagAll)
	if err != nil {
		return Value{}, err
	}
	if fi == abi.PropertyNotFound {
		return Value{}, trap("method %s not found on %s", name, obj.Type)
	}
	if abi.UnpackFlag(fi) == abi.FlagMethod {
		fn, err := in.vtableFunc(obj, abi.UnpackIndex(fi))
		if err != nil {
			return Value{}, err
		}
		return in.callBoxed(fn, Value{}, target, argv)
	}
	member, err := in.getMismatch(fi, tag, target, name)
	if err != nil {
		return Value{}, err
	}
	return in.invokeDyn(dynOf(member), "", argv)
}

func (in *Instance) callClosure(cl *Struct, argv []Value) (Value, error) {
	fn, ok := cl.Fields[abi.ClosureFuncIndex].Ref.(FuncRef)
	if !ok {
		return Value{}, trap("closure without function")
	}
	return in.callBoxed(string(fn), cl.Fields[abi.ClosureContextIndex], cl.Fields[abi.ClosureThisIndex], argv)
}

// callBoxed calls a compiled function with boxed arguments converted to
// its parameter types and boxes the result.
func (in *Instance) callBoxed(name string, ctx, this Value, argv []Value) (Value, error) {
	f, ok := in.mod.Func(name)
	if !ok {
		return Value{}, trap("no function %s", name)
	}
	args := []Value{ctx, this}
	for i, t := range f.Params[abi.EnvParamLen:] {
		a := RefValue(undefined)
		if i < len(argv) {
			a = argv[i]
		}
		v, err := in.unboxTo(a, t)
		if err != nil {
			return Value{}, err
		}
		args = append(args, v)
	}
	res, err := in.invoke(f, args)
	if err != nil {
		return Value{}, err
	}
	return in.boxFrom(res, f.Result), nil
}

// instanceOf follows Options.Bases from the left object's class.
func (in *Instance) instanceOf(left, right *Dyn) bool {
	if right.Global != "" {
		return left.Global == right.Global
	}
	if !left.isExtref() || !right.isExtref() {
		return false
	}
	l, ok1 := in.Table[left.Ext].Ref.(*Struct)
	r, ok2 := in.Table[right.Ext].Ref.(*Struct)
	if !ok1 || !ok2 {
		return false
	}
	want := strings.TrimPrefix(r.Type, layout.ObjectStruct(""))
	for class, seen := strings.TrimPrefix(l.Type, layout.ObjectStruct("")), 0; class != "" && seen <= len(in.opts.Bases); seen++ {
		if class == want {
			return true
		}
		class = in.opts.Bases[class]
	}
	return false
}
