package interp

import (
	"errors"
	"testing"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/layout"
)

func local(i int, t emit.ValType) emit.Expr { return &emit.LocalGet{Index: i, Type: t} }

// TestArithmetic tests numeric evaluation through locals and calls.
func TestArithmetic(t *testing.T) {
	mod := emit.NewModule()
	add := emit.NewFunc("add", emit.F64, emit.F64, emit.F64)
	tmp := add.AddLocal(emit.F64)
	add.Emit(
		&emit.LocalSet{Index: tmp, Value: &emit.Binary{Op: emit.F64Add, L: local(0, emit.F64), R: local(1, emit.F64)}},
		&emit.Return{Value: &emit.Binary{Op: emit.F64Mul, L: local(tmp, emit.F64), R: emit.F64Const(2)}},
	)
	if err := mod.AddFunc(add); err != nil {
		t.Fatal(err)
	}
	in, err := New(mod, Options{})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		a, b, want float64
	}{
		{1, 2, 6},
		{-1, 1, 0},
		{0.5, 0.25, 1.5},
	}
	for _, tt := range tests {
		got, err := in.Call("add", F64(tt.a), F64(tt.b))
		if err != nil {
			t.Fatal(err)
		}
		if got.F64() != tt.want {
			t.Errorf("add(%v, %v) = %v, want %v", tt.a, tt.b, got.F64(), tt.want)
		}
	}
}

// TestLoop tests that branches to a loop label repeat it and branches to a
// block label leave it.
func TestLoop(t *testing.T) {
	mod := emit.NewModule()
	sum := emit.NewFunc("sum", emit.I32, emit.I32)
	acc := sum.AddLocal(emit.I32)
	sum.Emit(
		&emit.Block{Label: "done", Body: []emit.Expr{
			&emit.Loop{Label: "again", Body: []emit.Expr{
				&emit.BrIf{Label: "done", Cond: &emit.Unary{Op: emit.I32Eqz, X: local(0, emit.I32)}},
				&emit.LocalSet{Index: acc, Value: &emit.Binary{Op: emit.I32Add, L: local(acc, emit.I32), R: local(0, emit.I32)}},
				&emit.LocalSet{Index: 0, Value: &emit.Binary{Op: emit.I32Sub, L: local(0, emit.I32), R: emit.I32Const(1)}},
				&emit.Br{Label: "again"},
			}},
		}},
		&emit.Return{Value: local(acc, emit.I32)},
	)
	if err := mod.AddFunc(sum); err != nil {
		t.Fatal(err)
	}
	in, err := New(mod, Options{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := in.Call("sum", I32(10))
	if err != nil {
		t.Fatal(err)
	}
	if got.I32() != 55 {
		t.Errorf("sum(10) = %d, want 55", got.I32())
	}
}

// TestUnresolvedImport tests that instantiation fails on an unknown import.
func TestUnresolvedImport(t *testing.T) {
	mod := emit.NewModule()
	mod.Import(abi.ExternalModule, "missing", emit.None)
	if _, err := New(mod, Options{}); err == nil {
		t.Fatal("expected an unresolved import error")
	}

	_, err := New(mod, Options{Hosts: map[string]HostFunc{
		"missing": func(*Instance, []Value) (Value, error) { return Value{}, nil },
	}})
	if err != nil {
		t.Errorf("host override not used: %v", err)
	}
}

// TestCastTrap tests that casting to an unrelated struct traps.
func TestCastTrap(t *testing.T) {
	mod := emit.NewModule()
	mod.AddStruct(&emit.StructType{Name: "small", Fields: []emit.Field{{Type: emit.I32}}})
	mod.AddStruct(&emit.StructType{Name: "big", Fields: []emit.Field{{Type: emit.I32}, {Type: emit.I32}}})
	up := emit.NewFunc("up", emit.I32)
	up.Emit(&emit.Return{Value: &emit.StructGet{Type: "small", Index: 0, Result: emit.I32,
		Ref: &emit.RefCast{Type: "small", Ref: &emit.StructNew{Type: "big", Fields: []emit.Expr{emit.I32Const(7), emit.I32Const(8)}}}}})
	down := emit.NewFunc("down", emit.I32)
	down.Emit(&emit.Drop{X: &emit.RefCast{Type: "big", Ref: &emit.StructNew{Type: "small", Fields: []emit.Expr{emit.I32Const(1)}}}})
	for _, f := range []*emit.Func{up, down} {
		if err := mod.AddFunc(f); err != nil {
			t.Fatal(err)
		}
	}
	in, err := New(mod, Options{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := in.Call("up")
	if err != nil || got.I32() != 7 {
		t.Errorf("up() = %d, %v; want 7", got.I32(), err)
	}
	_, err = in.Call("down")
	var tr *Trap
	if !errors.As(err, &tr) {
		t.Errorf("down() error = %v, want a trap", err)
	}
}

// objectModule builds a class with field x, a getter double and a method
// inc, placing its meta in the data segment.
func objectModule(t *testing.T) (*emit.Module, *layout.DataPool) {
	t.Helper()
	pool := layout.NewDataPool(layout.DefaultDataBase)
	meta := &layout.Meta{Name: "C", TypeID: abi.CustomTypeBegin, ImplID: abi.CustomTypeBegin, Entries: []layout.MetaEntry{
		{Name: "x", Flag: abi.FlagField, Index: 1, Tag: abi.TagNumber},
		{Name: "double", Flag: abi.FlagGetter, Index: 1, Tag: abi.TagNumber},
		{Name: "inc", Flag: abi.FlagMethod, Index: 2, Tag: abi.TagFunction},
	}}
	addr := pool.AddMeta(meta)

	mod := emit.NewModule()
	layout.Mapper{StringRef: true}.RegisterCore(mod)
	mod.AddStruct(&emit.StructType{Name: "vt|C", Fields: []emit.Field{{Type: emit.I32}, {Type: emit.FuncRef}, {Type: emit.FuncRef}}})
	mod.AddStruct(&emit.StructType{Name: "obj|C", Fields: []emit.Field{{Type: emit.AnyRef}, {Type: emit.F64, Mutable: true}}})
	mod.AddGlobal(&emit.Global{Name: "vt", Type: emit.AnyRef, Init: &emit.StructNew{Type: "vt|C", Fields: []emit.Expr{
		emit.I32Const(int32(addr)), &emit.RefFunc{Func: "C|double"}, &emit.RefFunc{Func: "C|inc"},
	}}})

	x := func() emit.Expr {
		return &emit.StructGet{Type: "obj|C", Index: 1, Result: emit.F64, Ref: &emit.RefCast{Type: "obj|C", Ref: local(1, emit.AnyRef)}}
	}
	double := emit.NewFunc("C|double", emit.F64, emit.AnyRef, emit.AnyRef)
	double.Emit(&emit.Return{Value: &emit.Binary{Op: emit.F64Mul, L: x(), R: emit.F64Const(2)}})
	inc := emit.NewFunc("C|inc", emit.F64, emit.AnyRef, emit.AnyRef, emit.F64)
	inc.Emit(
		&emit.StructSet{Type: "obj|C", Index: 1, Ref: &emit.RefCast{Type: "obj|C", Ref: local(1, emit.AnyRef)},
			Value: &emit.Binary{Op: emit.F64Add, L: x(), R: local(2, emit.F64)}},
		&emit.Return{Value: x()},
	)
	mk := emit.NewFunc("make", emit.AnyRef, emit.F64)
	mk.Emit(&emit.Return{Value: &emit.StructNew{Type: "obj|C", Fields: []emit.Expr{
		&emit.GlobalGet{Name: "vt", Type: emit.AnyRef}, local(0, emit.F64),
	}}})
	for _, f := range []*emit.Func{double, inc, mk} {
		if err := mod.AddFunc(f); err != nil {
			t.Fatal(err)
		}
	}
	return mod, pool
}

func instantiate(t *testing.T, mod *emit.Module, pool *layout.DataPool) *Instance {
	t.Helper()
	mod.DataBase = pool.Base()
	mod.Data = pool.Bytes()
	in, err := New(mod, Options{StringRef: true})
	if err != nil {
		t.Fatal(err)
	}
	return in
}

// TestMetaLookup tests the find_property helpers against an encoded meta.
func TestMetaLookup(t *testing.T) {
	mod, pool := objectModule(t)
	in := instantiate(t, mod, pool)
	vt := in.Global("vt").Ref.(*Struct)
	meta := I32(vt.Fields[0].I32())

	tests := []struct {
		name     string
		flag     abi.ItableFlag
		wantFlag abi.ItableFlag
		wantIdx  int
		wantTag  abi.TypeTag
	}{
		{"x", abi.FlagAll, abi.FlagField, 1, abi.TagNumber},
		{"double", abi.FlagGetter, abi.FlagGetter, 1, abi.TagNumber},
		{"inc", abi.FlagAll, abi.FlagMethod, 2, abi.TagFunction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := I32(int32(pool.CString(tt.name)))
			fi, err := in.Call(abi.FindPropertyFlagAndIndex, meta, name, I32(int32(tt.flag)))
			if err != nil {
				t.Fatal(err)
			}
			if abi.UnpackFlag(fi.I32()) != tt.wantFlag || abi.UnpackIndex(fi.I32()) != tt.wantIdx {
				t.Errorf("word = %#x, want flag %v index %d", fi.I32(), tt.wantFlag, tt.wantIdx)
			}
			tag, _ := in.Call(abi.FindPropertyType, meta, name, I32(int32(tt.flag)))
			if abi.TypeTag(tag.I32()) != tt.wantTag {
				t.Errorf("tag = %d, want %d", tag.I32(), tt.wantTag)
			}
		})
	}

	fi, _ := in.Call(abi.FindPropertyFlagAndIndex, meta, I32(int32(pool.CString("x"))), I32(int32(abi.FlagMethod)))
	if fi.I32() != abi.PropertyNotFound {
		t.Errorf("x as method = %#x, want not found", fi.I32())
	}
}

// TestExtrefAccess tests dynamic reads, writes and calls on a compiled
// object reached through the extref table.
func TestExtrefAccess(t *testing.T) {
	mod, pool := objectModule(t)
	pool.CString("nope")
	in := instantiate(t, mod, pool)
	obj, err := in.Call("make", F64(20))
	if err != nil {
		t.Fatal(err)
	}
	slot, err := in.Call(abi.AllocExtRefTableSlot, obj)
	if err != nil {
		t.Fatal(err)
	}
	ctx := Value{}
	boxed, err := in.Call(abi.DynNewExtref, ctx, slot, I32(int32(abi.DynExtRefObj)))
	if err != nil {
		t.Fatal(err)
	}
	name := func(s string) Value { return I32(int32(pool.CString(s))) }
	num := func(v Value) float64 { return dynOf(v).number() }

	double, err := in.Call(abi.DynGetProperty, ctx, boxed, name("double"))
	if err != nil {
		t.Fatal(err)
	}
	if num(double) != 40 {
		t.Errorf("double = %v, want 40", num(double))
	}

	five := RefValue(&Dyn{Kind: abi.DynNumber, Num: 5})
	if _, err := in.Call(abi.DynSetProperty, ctx, boxed, name("x"), five); err != nil {
		t.Fatal(err)
	}
	args := RefValue(&Array{Type: layout.ArrayStruct(layout.CatRef), Elems: []Value{five}})
	got, err := in.Call(abi.DynInvoke, ctx, name("inc"), boxed, args)
	if err != nil {
		t.Fatal(err)
	}
	if num(got) != 10 {
		t.Errorf("inc(5) = %v, want 10", num(got))
	}
	if x := obj.Ref.(*Struct).Fields[1].F64(); x != 10 {
		t.Errorf("x = %v after inc, want 10", x)
	}

	missing, err := in.Call(abi.DynGetProperty, ctx, boxed, name("nope"))
	if err != nil {
		t.Fatal(err)
	}
	if dynOf(missing).Kind != abi.DynUndefined {
		t.Errorf("missing property = %s, want undefined", dynOf(missing).Kind.TypeOfName())
	}
}

// TestDynamicObject tests the plain dynamic object model.
func TestDynamicObject(t *testing.T) {
	pool := layout.NewDataPool(layout.DefaultDataBase)
	key := I32(int32(pool.CString("k")))
	mod := emit.NewModule()
	in := instantiate(t, mod, pool)
	ctx := Value{}

	obj, _ := in.Call(abi.DynNewObject, ctx)
	v, _ := in.Call(abi.DynNewBoolean, ctx, I32(1))
	if _, err := in.Call(abi.DynSetProperty, ctx, obj, key, v); err != nil {
		t.Fatal(err)
	}
	has, _ := in.Call(abi.DynHasProperty, ctx, obj, key)
	if has.I32() != 1 {
		t.Error("has(k) = false after set")
	}
	got, _ := in.Call(abi.DynGetProperty, ctx, obj, key)
	b, _ := in.Call(abi.DynToBool, ctx, got)
	if b.I32() != 1 {
		t.Error("k does not read back as true")
	}

	kind, _ := in.Call(abi.DynTypeOf, ctx, obj)
	if kind.Ref != "object" {
		t.Errorf("typeof = %v, want object", kind.Ref)
	}

	tests := []struct {
		d    *Dyn
		want string
	}{
		{&Dyn{Kind: abi.DynNumber, Num: 3}, "3"},
		{&Dyn{Kind: abi.DynNumber, Num: 1.5}, "1.5"},
		{&Dyn{Kind: abi.DynBoolean}, "false"},
		{undefined, "undefined"},
	}
	for _, tt := range tests {
		s, _ := in.Call(abi.DynToString, ctx, RefValue(tt.d))
		if s.Ref != tt.want {
			t.Errorf("to_string = %v, want %s", s.Ref, tt.want)
		}
	}
}

// TestConsoleLog tests that console output is captured.
func TestConsoleLog(t *testing.T) {
	in, err := New(emit.NewModule(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	rest := &Array{Elems: []Value{
		RefValue(&Dyn{Kind: abi.DynString, Str: "n ="}),
		RefValue(&Dyn{Kind: abi.DynNumber, Num: 2}),
	}}
	if _, err := in.Call("Console|log", Value{}, Value{}, RefValue(rest)); err != nil {
		t.Fatal(err)
	}
	if len(in.Output) != 1 || in.Output[0] != "n = 2" {
		t.Errorf("Output = %q, want [\"n = 2\"]", in.Output)
	}
}
