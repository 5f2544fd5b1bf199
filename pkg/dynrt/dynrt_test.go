package dynrt

import (
	"testing"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
)

// TestImportsDeclare tests that each call declares its import with the
// context parameter first
func TestImportsDeclare(t *testing.T) {
	mod := emit.NewModule()
	rt := NewImports(mod, emit.RefOf("string"))
	obj := &emit.Null{Type: emit.AnyRef}

	tests := []struct {
		name   string
		expr   emit.Expr
		params int
		result emit.ValType
	}{
		{abi.DynNewNumber, rt.NewNumber(emit.F64Const(1)), 2, emit.AnyRef},
		{abi.DynGetProperty, rt.Get(obj, emit.I32Const(1024)), 3, emit.AnyRef},
		{abi.DynSetProperty, rt.Set(obj, emit.I32Const(1024), obj), 4, emit.I32},
		{abi.DynInvoke, rt.Invoke(emit.I32Const(1024), obj, obj), 4, emit.AnyRef},
		{abi.DynTypeOf, rt.TypeOf(obj), 2, emit.RefOf("string")},
		{abi.DynToNumber, rt.ToNumber(obj), 2, emit.F64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, ok := tt.expr.(*emit.Call)
			if !ok || call.Func != tt.name {
				t.Fatalf("expr = %#v", tt.expr)
			}
			if g, ok := call.Args[0].(*emit.GlobalGet); !ok || g.Name != ContextGlobal {
				t.Errorf("first argument = %#v, want the context global", call.Args[0])
			}
			params, result, ok := mod.Callable(tt.name)
			if !ok {
				t.Fatalf("%s not imported", tt.name)
			}
			if len(params) != tt.params || len(call.Args) != tt.params {
				t.Errorf("params = %d, args = %d, want %d", len(params), len(call.Args), tt.params)
			}
			if result != tt.result {
				t.Errorf("result = %s, want %s", result, tt.result)
			}
			if mod.Imports[tt.name].Module != abi.DyntypeModule {
				t.Errorf("module = %s", mod.Imports[tt.name].Module)
			}
		})
	}
	if _, ok := mod.Globals[ContextGlobal]; !ok {
		t.Errorf("context global not declared")
	}
}

// TestHostHelpers tests the slow-path helper imports
func TestHostHelpers(t *testing.T) {
	mod := emit.NewModule()
	h := NewHost(mod, NewImports(mod, emit.RefOf("string")))
	obj := &emit.Null{Type: emit.AnyRef}

	h.GetIndirect("f64", emit.F64, obj, emit.I32Const(2))
	h.SetIndirect("i32", emit.I32, obj, emit.I32Const(2), emit.I32Const(7))
	h.FindFlagAndIndex(emit.I32Const(0), emit.I32Const(0), emit.I32Const(int32(abi.FlagAll)))
	mm := h.GetMismatch(emit.I32Const(0), emit.I32Const(0), obj, emit.I32Const(0)).(*emit.Call)

	for name, module := range map[string]string{
		"struct_get_indirect_f64":    abi.StructIndirectMod,
		"struct_set_indirect_i32":    abi.StructIndirectMod,
		abi.FindPropertyFlagAndIndex: abi.BuiltinModule,
	} {
		imp, ok := mod.Imports[name]
		if !ok || imp.Module != module {
			t.Errorf("import %s = %+v", name, imp)
		}
	}
	if len(mm.Args) != 5 {
		t.Errorf("mismatch bridge args = %d, want 5", len(mm.Args))
	}
	if _, ok := mod.Tables[abi.ExtrefTable]; !ok {
		t.Errorf("extref table not declared")
	}
}
