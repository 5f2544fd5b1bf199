package ir

import (
	"testing"

	fe "github.com/GriffinCanCode/tswasm-compiler/pkg/frontend"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

func setup(t *testing.T, decls ...fe.Decl) (*Builder, *types.Session, *fe.Module) {
	t.Helper()
	m := fe.NewModule("test")
	for _, d := range decls {
		m.Add(d)
	}
	sess := types.NewSession()
	r := types.NewResolver(sess, m)
	if err := r.ResolveAll(); err != nil {
		t.Fatalf("ResolveAll() error = %v", err)
	}
	return NewBuilder(sess, r, m), sess, m
}

func pointDecl() *fe.ClassDecl {
	return &fe.ClassDecl{
		Name: "Point",
		Members: []*fe.MemberDecl{
			fe.Field("x", fe.Named("number")),
			fe.Method("scale", fe.Named("number"), fe.Param("k", fe.Named("number"))),
			fe.Getter("label", fe.Named("string")),
		},
	}
}

// TestMemberFunc tests implementation naming
func TestMemberFunc(t *testing.T) {
	tests := []struct {
		kind FuncKind
		want string
	}{
		{FuncMethod, "Point|scale"},
		{FuncGetter, "Point|get_scale"},
		{FuncSetter, "Point|set_scale"},
		{FuncCtor, "Point|constructor"},
		{FuncStatic, "Point|static|scale"},
	}
	for _, tt := range tests {
		if got := MemberFunc("Point", "scale", tt.kind); got != tt.want {
			t.Errorf("MemberFunc(%d) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

// TestBuilderTyping tests node types and implicit conversions
func TestBuilderTyping(t *testing.T) {
	pt := pointDecl()
	run := &fe.FuncDecl{Name: "run", Params: []*fe.ParamDecl{fe.Param("p", fe.Named("Point"))}, Return: fe.Named("number")}
	b, sess, m := setup(t, pt, run)
	g := sess.Graph
	point, _ := sess.DeclRef(pt)

	scope := fe.NewScope(fe.ScopeFunction, "run", m.Root)
	scope.DeclareParam("p", fe.Named("Point"))
	scope.Declare("loose", nil)

	var prop, call, dyn, sum Value
	b.Function("run", scope, func() {
		prop = b.Prop(b.Get("p"), "x")
		call = b.Call(b.Get("p"), "scale", b.Int(2))
		dyn = b.Prop(b.Get("loose"), "anything")
		sum = b.Bin(OpAdd, b.Int(1), b.Num(2))
		b.Emit(b.Return(prop))
	})
	prog, err := b.Program()
	if err != nil {
		t.Fatalf("Program() error = %v", err)
	}

	if pg, ok := prop.(*PropGet); !ok || pg.Shape != point || !g.IsPrim(pg.Typ, types.PrimNumber) {
		t.Errorf("Prop = %#v", prop)
	}
	mc, ok := call.(*MethodCall)
	if !ok {
		t.Fatalf("Call = %T", call)
	}
	if c, ok := mc.Args[0].(*Cast); !ok || c.Kind != CastIntToNum {
		t.Errorf("int argument not widened: %#v", mc.Args[0])
	}
	if _, ok := dyn.(*DynGet); !ok {
		t.Errorf("property of any = %T, want *DynGet", dyn)
	}
	if bin := sum.(*Binary); bin.L.(*Cast).Kind != CastIntToNum {
		t.Errorf("binary operand not widened")
	}

	fn, ok := prog.Lookup("run")
	if !ok || len(fn.Body) != 1 || len(fn.Params) != 1 {
		t.Fatalf("run = %+v", fn)
	}
	if len(scope.Refs) != 3 {
		t.Errorf("recorded refs = %d, want 3", len(scope.Refs))
	}
}

// TestBuilderMethodsAndClosures tests member and closure function creation
func TestBuilderMethodsAndClosures(t *testing.T) {
	pt := pointDecl()
	b, sess, m := setup(t, pt)
	point, _ := sess.DeclRef(pt)

	cls := fe.NewScope(fe.ScopeClass, "Point", m.Root)
	ms := fe.NewScope(fe.ScopeFunction, "scale", cls)
	ms.DeclareParam("k", fe.Named("number"))
	inner := fe.NewScope(fe.ScopeFunction, "", ms)

	var nc *NewClosure
	b.Method(point, "scale", FuncMethod, ms, func() {
		nc = b.Closure(inner, sess.Graph.Prim(types.PrimNumber), func() {
			b.Emit(b.Return(b.Get("k")))
		})
		b.Emit(b.Return(b.Invoke(nc)))
	})
	gs := fe.NewScope(fe.ScopeFunction, "label", cls)
	b.Method(point, "label", FuncGetter, gs, func() {
		b.Emit(b.Return(b.Str("p")))
	})
	prog, err := b.Program()
	if err != nil {
		t.Fatalf("Program() error = %v", err)
	}

	for _, name := range []string{"Point|scale", "Point|get_label", "Point|scale|@anonymous1"} {
		if _, ok := prog.Lookup(name); !ok {
			t.Errorf("missing function %s", name)
		}
	}
	if nc.Func.Class != point || nc.Func.Kind != FuncClosure {
		t.Errorf("closure = %+v", nc.Func)
	}
	if th := b.This(); th.Type() == point {
		t.Errorf("This outside a method must not be typed by a class")
	}
}

// TestBuilderErrors tests that construction errors surface from Program
func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name string
		body func(b *Builder, point types.Ref)
	}{
		{"unknown property", func(b *Builder, point types.Ref) {
			b.Emit(b.Prop(b.New(point), "nope"))
		}},
		{"unknown variable", func(b *Builder, point types.Ref) {
			b.Emit(b.Get("ghost"))
		}},
		{"unknown static", func(b *Builder, point types.Ref) {
			b.Emit(b.Static(point, "count"))
		}},
		{"super outside constructor", func(b *Builder, point types.Ref) {
			b.Emit(b.Super())
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt := pointDecl()
			main := &fe.FuncDecl{Name: "main"}
			b, sess, m := setup(t, pt, main)
			point, _ := sess.DeclRef(pt)
			b.Function("main", fe.NewScope(fe.ScopeFunction, "main", m.Root), func() {
				tt.body(b, point)
			})
			if _, err := b.Program(); err == nil {
				t.Errorf("Program() succeeded, want error")
			}
		})
	}
}
