// Package interp - Reference evaluator for emitted modules
// Design: walks emit trees directly with GC values modelled as Go pointers.
// Host imports (meta lookup, indirect struct access, the extref table and a
// small dynamic-object model) are Go functions, so lowered code can be run
// end to end in tests without a wasm engine.
package interp

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/tetratelabs/wazero/api"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/layout"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
)

// Value is one wasm value. Numbers live in Bits using wazero's encoding;
// references live in Ref (nil is null).
type Value struct {
	Bits uint64
	Ref  any
}

func I32(v int32) Value    { return Value{Bits: api.EncodeI32(v)} }
func F64(v float64) Value  { return Value{Bits: api.EncodeF64(v)} }
func RefValue(r any) Value { return Value{Ref: r} }

func (v Value) I32() int32   { return api.DecodeI32(v.Bits) }
func (v Value) F64() float64 { return api.DecodeF64(v.Bits) }
func (v Value) IsNull() bool { return v.Ref == nil }

// Struct is a GC struct instance.
type Struct struct {
	Type   string
	Fields []Value
}

// Array is a GC array instance.
type Array struct {
	Type  string
	Elems []Value
}

// FuncRef references a defined or imported function by name.
type FuncRef string

// HostFunc implements an import.
type HostFunc func(in *Instance, args []Value) (Value, error)

// Options configures an instance.
type Options struct {
	// Bases maps a class name to its base class name for instanceof.
	Bases map[string]string
	// Hosts adds or overrides import implementations by import name.
	Hosts     map[string]HostFunc
	StringRef bool
	// MaxDepth bounds call recursion; zero means 512.
	MaxDepth int
}

// Instance is an instantiated module.
type Instance struct {
	mod     *emit.Module
	opts    Options
	Memory  []byte
	Table   []Value
	Output  []string
	globals map[string]Value
	hosts   map[string]HostFunc
	depth   int
}

type frame struct {
	fn     *emit.Func
	locals []Value
}

// branch unwinds to the block or loop named label.
type branch struct{ label string }

func (b *branch) Error() string { return "branch to " + b.label + " escaped its function" }

// returned unwinds to the function boundary.
type returned struct{ v Value }

func (*returned) Error() string { return "return outside function" }

// Trap is a runtime failure of evaluated code.
type Trap struct{ Msg string }

func (t *Trap) Error() string { return "trap: " + t.Msg }

func trap(format string, args ...any) error { return &Trap{Msg: fmt.Sprintf(format, args...)} }

// New instantiates mod: copies the data segment, binds imports and runs
// global initializers.
func New(mod *emit.Module, opts Options) (*Instance, error) {
	if opts.MaxDepth == 0 {
		opts.MaxDepth = 512
	}
	in := &Instance{
		mod:     mod,
		opts:    opts,
		Memory:  make([]byte, int(mod.DataBase)+len(mod.Data)+4096),
		globals: make(map[string]Value),
		hosts:   make(map[string]HostFunc),
	}
	copy(in.Memory[mod.DataBase:], mod.Data)
	in.registerBuiltins()
	in.registerDyntype()
	for name, h := range opts.Hosts {
		in.hosts[name] = h
	}
	for _, name := range mod.ImportNames() {
		if _, ok := in.hosts[name]; !ok {
			imp := mod.Imports[name]
			return nil, fmt.Errorf("unresolved import %s.%s", imp.Module, name)
		}
	}

	names := make([]string, 0, len(mod.Globals))
	for name := range mod.Globals {
		names = append(names, name)
	}
	sort.Strings(names)
	boot := &frame{}
	for _, name := range names {
		g := mod.Globals[name]
		if g.Init == nil {
			continue
		}
		v, err := in.eval(boot, g.Init)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", name, err)
		}
		in.globals[name] = v
	}
	logger.Debug("Instance ready", "funcs", len(mod.Funcs), "imports", len(mod.Imports), "globals", len(names))
	return in, nil
}

// Global reads a global.
func (in *Instance) Global(name string) Value { return in.globals[name] }

// Call runs a defined function or an import by name.
func (in *Instance) Call(name string, args ...Value) (Value, error) {
	if f, ok := in.mod.Func(name); ok {
		return in.invoke(f, args)
	}
	if h, ok := in.hosts[name]; ok {
		return h(in, args)
	}
	return Value{}, fmt.Errorf("no function %s", name)
}

func (in *Instance) invoke(f *emit.Func, args []Value) (Value, error) {
	if len(args) != len(f.Params) {
		return Value{}, trap("%s called with %d arguments, want %d", f.Name, len(args), len(f.Params))
	}
	if in.depth >= in.opts.MaxDepth {
		return Value{}, trap("call stack exhausted in %s", f.Name)
	}
	in.depth++
	defer func() { in.depth-- }()

	fr := &frame{fn: f, locals: make([]Value, len(f.Params)+len(f.Locals))}
	copy(fr.locals, args)
	for _, e := range f.Body {
		if _, err := in.eval(fr, e); err != nil {
			if r, ok := err.(*returned); ok {
				return r.v, nil
			}
			return Value{}, err
		}
	}
	return Value{}, nil
}

// ReadCString reads a NUL-terminated string from linear memory.
func (in *Instance) ReadCString(addr uint32) string {
	end := addr
	for int(end) < len(in.Memory) && in.Memory[end] != 0 {
		end++
	}
	return string(in.Memory[addr:end])
}

func (in *Instance) structOf(v Value) (*Struct, error) {
	s, ok := v.Ref.(*Struct)
	if !ok || s == nil {
		return nil, trap("expected struct, got %T", v.Ref)
	}
	return s, nil
}

func (in *Instance) evalAll(fr *frame, es []emit.Expr) ([]Value, error) {
	out := make([]Value, len(es))
	for i, e := range es {
		v, err := in.eval(fr, e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (in *Instance) eval(fr *frame, e emit.Expr) (Value, error) {
	switch e := e.(type) {
	case *emit.Const:
		return Value{Bits: e.Bits}, nil
	case *emit.Null:
		return Value{}, nil
	case *emit.StringConst:
		return RefValue(e.Value), nil
	case *emit.StringMeasure:
		v, err := in.eval(fr, e.X)
		if err != nil {
			return Value{}, err
		}
		s, ok := v.Ref.(string)
		if !ok {
			return Value{}, trap("string.measure on %T", v.Ref)
		}
		return I32(int32(layout.UTF16Len(s))), nil
	case *emit.LocalGet:
		return fr.locals[e.Index], nil
	case *emit.LocalSet:
		v, err := in.eval(fr, e.Value)
		if err != nil {
			return Value{}, err
		}
		fr.locals[e.Index] = v
		return Value{}, nil
	case *emit.LocalTee:
		v, err := in.eval(fr, e.Value)
		if err != nil {
			return Value{}, err
		}
		fr.locals[e.Index] = v
		return v, nil
	case *emit.GlobalGet:
		return in.globals[e.Name], nil
	case *emit.GlobalSet:
		v, err := in.eval(fr, e.Value)
		if err != nil {
			return Value{}, err
		}
		in.globals[e.Name] = v
		return Value{}, nil
	case *emit.StructNew:
		fields, err := in.evalAll(fr, e.Fields)
		if err != nil {
			return Value{}, err
		}
		return RefValue(&Struct{Type: e.Type, Fields: fields}), nil
	case *emit.StructNewDefault:
		st, ok := in.mod.Struct(e.Type)
		if !ok {
			return Value{}, trap("unknown struct %s", e.Type)
		}
		return RefValue(&Struct{Type: e.Type, Fields: make([]Value, len(st.Fields))}), nil
	case *emit.StructGet:
		v, err := in.eval(fr, e.Ref)
		if err != nil {
			return Value{}, err
		}
		s, err := in.structOf(v)
		if err != nil {
			return Value{}, err
		}
		if e.Index >= len(s.Fields) {
			return Value{}, trap("field %d out of range for %s", e.Index, s.Type)
		}
		return s.Fields[e.Index], nil
	case *emit.StructSet:
		v, err := in.eval(fr, e.Ref)
		if err != nil {
			return Value{}, err
		}
		val, err := in.eval(fr, e.Value)
		if err != nil {
			return Value{}, err
		}
		s, err := in.structOf(v)
		if err != nil {
			return Value{}, err
		}
		if e.Index >= len(s.Fields) {
			return Value{}, trap("field %d out of range for %s", e.Index, s.Type)
		}
		s.Fields[e.Index] = val
		return Value{}, nil
	case *emit.RefCast:
		v, err := in.eval(fr, e.Ref)
		if err != nil {
			return Value{}, err
		}
		return v, in.cast(v, e.Type)
	case *emit.RefIsNull:
		v, err := in.eval(fr, e.Ref)
		if err != nil {
			return Value{}, err
		}
		return boolValue(v.IsNull()), nil
	case *emit.ArrayNewFixed:
		elems, err := in.evalAll(fr, e.Elems)
		if err != nil {
			return Value{}, err
		}
		return RefValue(&Array{Type: e.Type, Elems: elems}), nil
	case *emit.ArrayGet:
		arr, idx, err := in.element(fr, e.Ref, e.Index)
		if err != nil {
			return Value{}, err
		}
		return arr.Elems[idx], nil
	case *emit.ArraySet:
		arr, idx, err := in.element(fr, e.Ref, e.Index)
		if err != nil {
			return Value{}, err
		}
		v, err := in.eval(fr, e.Value)
		if err != nil {
			return Value{}, err
		}
		arr.Elems[idx] = v
		return Value{}, nil
	case *emit.ArrayLen:
		v, err := in.eval(fr, e.Ref)
		if err != nil {
			return Value{}, err
		}
		arr, ok := v.Ref.(*Array)
		if !ok {
			return Value{}, trap("array.len on %T", v.Ref)
		}
		return I32(int32(len(arr.Elems))), nil
	case *emit.Load:
		v, err := in.eval(fr, e.Addr)
		if err != nil {
			return Value{}, err
		}
		addr := uint64(uint32(v.I32())) + uint64(e.Offset)
		if addr+4 > uint64(len(in.Memory)) {
			return Value{}, trap("load at %d out of bounds", addr)
		}
		return I32(int32(binary.LittleEndian.Uint32(in.Memory[addr:]))), nil
	case *emit.Unary:
		v, err := in.eval(fr, e.X)
		if err != nil {
			return Value{}, err
		}
		return unary(e.Op, v)
	case *emit.Binary:
		a, err := in.eval(fr, e.L)
		if err != nil {
			return Value{}, err
		}
		b, err := in.eval(fr, e.R)
		if err != nil {
			return Value{}, err
		}
		return binaryOp(e.Op, a, b)
	case *emit.If:
		c, err := in.eval(fr, e.Cond)
		if err != nil {
			return Value{}, err
		}
		if c.I32() != 0 {
			return in.eval(fr, e.Then)
		}
		if e.Else != nil {
			return in.eval(fr, e.Else)
		}
		return Value{}, nil
	case *emit.Block:
		return in.block(fr, e)
	case *emit.Loop:
		return in.loop(fr, e)
	case *emit.Br:
		return Value{}, &branch{label: e.Label}
	case *emit.BrIf:
		c, err := in.eval(fr, e.Cond)
		if err != nil {
			return Value{}, err
		}
		if c.I32() != 0 {
			return Value{}, &branch{label: e.Label}
		}
		return Value{}, nil
	case *emit.Call:
		args, err := in.evalAll(fr, e.Args)
		if err != nil {
			return Value{}, err
		}
		return in.Call(e.Func, args...)
	case *emit.CallRef:
		args, err := in.evalAll(fr, e.Args)
		if err != nil {
			return Value{}, err
		}
		fn, err := in.eval(fr, e.Func)
		if err != nil {
			return Value{}, err
		}
		name, ok := fn.Ref.(FuncRef)
		if !ok {
			return Value{}, trap("call_ref through %T", fn.Ref)
		}
		return in.Call(string(name), args...)
	case *emit.TableGet:
		v, err := in.eval(fr, e.Index)
		if err != nil {
			return Value{}, err
		}
		i := int(v.I32())
		if i < 0 || i >= len(in.Table) {
			return Value{}, trap("table index %d out of bounds", i)
		}
		return in.Table[i], nil
	case *emit.Drop:
		_, err := in.eval(fr, e.X)
		return Value{}, err
	case *emit.RefFunc:
		return RefValue(FuncRef(e.Func)), nil
	case *emit.Return:
		if e.Value == nil {
			return Value{}, &returned{}
		}
		v, err := in.eval(fr, e.Value)
		if err != nil {
			return Value{}, err
		}
		return Value{}, &returned{v: v}
	case *emit.Unreachable:
		return Value{}, trap("unreachable")
	}
	return Value{}, fmt.Errorf("cannot evaluate %T", e)
}

func (in *Instance) block(fr *frame, b *emit.Block) (Value, error) {
	var last Value
	for _, e := range b.Body {
		v, err := in.eval(fr, e)
		if err != nil {
			if br, ok := err.(*branch); ok && b.Label != "" && br.label == b.Label {
				return Value{}, nil
			}
			return Value{}, err
		}
		last = v
	}
	if b.Result.IsNone() {
		return Value{}, nil
	}
	return last, nil
}

func (in *Instance) loop(fr *frame, l *emit.Loop) (Value, error) {
	for {
		repeat := false
		for _, e := range l.Body {
			if _, err := in.eval(fr, e); err != nil {
				if br, ok := err.(*branch); ok && br.label == l.Label {
					repeat = true
					break
				}
				return Value{}, err
			}
		}
		if !repeat {
			return Value{}, nil
		}
	}
}

func (in *Instance) element(fr *frame, ref, index emit.Expr) (*Array, int, error) {
	v, err := in.eval(fr, ref)
	if err != nil {
		return nil, 0, err
	}
	iv, err := in.eval(fr, index)
	if err != nil {
		return nil, 0, err
	}
	arr, ok := v.Ref.(*Array)
	if !ok {
		return nil, 0, trap("array access on %T", v.Ref)
	}
	i := int(iv.I32())
	if i < 0 || i >= len(arr.Elems) {
		return nil, 0, trap("array index %d out of bounds (len %d)", i, len(arr.Elems))
	}
	return arr, i, nil
}

// cast accepts null, an exact type match, or a struct with at least as
// many fields as the target (a prefix-compatible subtype).
func (in *Instance) cast(v Value, target string) error {
	switch r := v.Ref.(type) {
	case nil:
		return nil
	case *Struct:
		if r.Type == target {
			return nil
		}
		st, ok := in.mod.Struct(target)
		if ok && len(r.Fields) >= len(st.Fields) {
			return nil
		}
		return trap("cannot cast %s to %s", r.Type, target)
	case *Array:
		if _, ok := in.mod.Array(target); ok {
			return nil
		}
		return trap("cannot cast %s to %s", r.Type, target)
	case string:
		if target == "string" {
			return nil
		}
	}
	return trap("cannot cast %T to %s", v.Ref, target)
}

func boolValue(b bool) Value {
	if b {
		return I32(1)
	}
	return I32(0)
}

func unary(op emit.UnOp, v Value) (Value, error) {
	switch op {
	case emit.I32Eqz:
		return boolValue(v.I32() == 0), nil
	case emit.F64ConvertI32S:
		return F64(float64(v.I32())), nil
	case emit.I32TruncF64S:
		f := v.F64()
		if math.IsNaN(f) || f >= math.MaxInt32+1 || f < math.MinInt32 {
			return Value{}, trap("integer overflow converting %v", f)
		}
		return I32(int32(f)), nil
	case emit.F64Neg:
		return F64(-v.F64()), nil
	}
	return Value{}, fmt.Errorf("unknown unary op %d", op)
}

func binaryOp(op emit.BinOp, a, b Value) (Value, error) {
	switch op {
	case emit.I32Eq:
		return boolValue(a.I32() == b.I32()), nil
	case emit.I32Ne:
		return boolValue(a.I32() != b.I32()), nil
	case emit.I32And:
		return I32(a.I32() & b.I32()), nil
	case emit.I32Or:
		return I32(a.I32() | b.I32()), nil
	case emit.I32Add:
		return I32(a.I32() + b.I32()), nil
	case emit.I32Sub:
		return I32(a.I32() - b.I32()), nil
	case emit.I32ShrU:
		return I32(int32(uint32(a.I32()) >> (uint32(b.I32()) & 31))), nil
	case emit.I32GeS:
		return boolValue(a.I32() >= b.I32()), nil
	case emit.F64Add:
		return F64(a.F64() + b.F64()), nil
	case emit.F64Sub:
		return F64(a.F64() - b.F64()), nil
	case emit.F64Mul:
		return F64(a.F64() * b.F64()), nil
	case emit.F64Div:
		return F64(a.F64() / b.F64()), nil
	case emit.F64Eq:
		return boolValue(a.F64() == b.F64()), nil
	case emit.F64Lt:
		return boolValue(a.F64() < b.F64()), nil
	}
	return Value{}, fmt.Errorf("unknown binary op %d", op)
}
