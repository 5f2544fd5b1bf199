package closure

import (
	"testing"

	fe "github.com/GriffinCanCode/tswasm-compiler/pkg/frontend"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

func build(t *testing.T, root *fe.Scope) (*Result, *types.Session) {
	t.Helper()
	sess := types.NewSession()
	r := types.NewResolver(sess, fe.NewModule("test"))
	res, err := NewBuilder(sess.Graph, r).Build(root)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return res, sess
}

// TestCounterCapture tests the outer/inner counter layout
func TestCounterCapture(t *testing.T) {
	global := fe.NewScope(fe.ScopeGlobal, "main", nil)
	outer := fe.NewScope(fe.ScopeFunction, "outer", global)
	count := outer.Declare("count", fe.Named("number"))
	tmp := outer.Declare("tmp", fe.Named("number"))
	outer.Use("tmp")
	inner := fe.NewScope(fe.ScopeFunction, "inner", outer)
	inner.Use("count")

	res, sess := build(t, global)

	if !res.IsCaptured(count) || res.IsCaptured(tmp) {
		t.Fatalf("captured: count=%v tmp=%v", res.IsCaptured(count), res.IsCaptured(tmp))
	}
	of := res.OwnFrame(outer)
	if of == nil || len(of.Vars) != 1 || of.Slot(count) != 0 {
		t.Fatalf("outer frame = %+v", of)
	}
	if of.Types[0] != sess.Graph.Prim(types.PrimNumber) {
		t.Errorf("slot type = %s", sess.Graph.String(of.Types[0]))
	}
	inf := res.OwnFrame(inner)
	if inf == nil || inf.Parent != of || inf.Depth != of.Depth+1 {
		t.Fatalf("inner frame = %+v", inf)
	}

	acc, err := res.Access(inner, count)
	if err != nil {
		t.Fatalf("Access() error = %v", err)
	}
	if acc.Hops != 1 || acc.Slot != 0 || FieldIndex(acc.Slot) != 1 {
		t.Errorf("Access() = %+v", acc)
	}
	if own, _ := res.Access(outer, count); own.Hops != 0 {
		t.Errorf("access from declaring scope hops = %d", own.Hops)
	}
	ctx := sess.Graph.At(inf.Type).Ctx
	if ctx.Parent != of.Type {
		t.Errorf("context parent type not linked")
	}
}

// TestFramePlacement tests which scopes receive frames
func TestFramePlacement(t *testing.T) {
	global := fe.NewScope(fe.ScopeGlobal, "main", nil)
	g := global.Declare("config", nil)
	fn := fe.NewScope(fe.ScopeFunction, "run", global)
	fn.Use("config")
	x := fn.DeclareParam("x", fe.Named("number"))
	y := fn.DeclareParam("y", fe.Named("string"))
	plain := fe.NewScope(fe.ScopeBlock, "plain", fn)
	plain.Declare("unused", nil)
	loop := fe.NewScope(fe.ScopeBlock, "loop", fn)
	loop.PerIteration = true
	i := loop.Declare("i", fe.Named("number"))
	cb := fe.NewScope(fe.ScopeFunction, "cb", loop)
	cb.Use("i")
	cb.Use("y")
	cb.Use("x")

	res, _ := build(t, global)

	if res.IsCaptured(g) {
		t.Errorf("global variable must not be captured")
	}
	if res.OwnFrame(plain) != nil {
		t.Errorf("block without captures got a frame")
	}
	lf := res.OwnFrame(loop)
	if lf == nil || !lf.PerIteration || lf.Slot(i) != 0 {
		t.Fatalf("loop frame = %+v", lf)
	}
	ff := res.OwnFrame(fn)
	if ff.Slot(x) != 0 || ff.Slot(y) != 1 {
		t.Errorf("params must be slotted in declaration order: x=%d y=%d", ff.Slot(x), ff.Slot(y))
	}

	tests := []struct {
		name string
		v    *fe.VarDecl
		hops int
		slot int
	}{
		{"loop variable", i, 1, 0},
		{"second param", y, 2, 1},
		{"first param", x, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := res.Access(cb, tt.v)
			if err != nil {
				t.Fatalf("Access() error = %v", err)
			}
			if acc.Hops != tt.hops || acc.Slot != tt.slot {
				t.Errorf("Access() = hops %d slot %d, want %d %d", acc.Hops, acc.Slot, tt.hops, tt.slot)
			}
		})
	}
	if res.FrameOf(plain) != ff {
		t.Errorf("FrameOf(plain) should fall back to the function frame")
	}
}

// TestClassScopesSkipped tests that class scopes do not add frames
func TestClassScopesSkipped(t *testing.T) {
	global := fe.NewScope(fe.ScopeGlobal, "main", nil)
	cls := fe.NewScope(fe.ScopeClass, "Widget", global)
	method := fe.NewScope(fe.ScopeFunction, "render", cls)
	label := method.Declare("label", fe.Named("string"))
	arrow := fe.NewScope(fe.ScopeFunction, "", method)
	arrow.Use("label")

	res, _ := build(t, global)
	if res.OwnFrame(cls) != nil {
		t.Errorf("class scope got a frame")
	}
	acc, err := res.Access(arrow, label)
	if err != nil || acc.Hops != 1 {
		t.Errorf("Access() = %+v, %v", acc, err)
	}
	if res.OwnFrame(method).Parent != nil {
		t.Errorf("method frame should have no parent frame")
	}
}

// TestAccessErrors tests uncaptured and invisible variables
func TestAccessErrors(t *testing.T) {
	global := fe.NewScope(fe.ScopeGlobal, "main", nil)
	a := fe.NewScope(fe.ScopeFunction, "a", global)
	v := a.Declare("v", nil)
	inner := fe.NewScope(fe.ScopeFunction, "inner", a)
	inner.Use("v")
	b := fe.NewScope(fe.ScopeFunction, "b", global)
	local := b.Declare("local", nil)

	res, _ := build(t, global)
	if _, err := res.Access(b, v); err == nil {
		t.Errorf("expected error for access outside the declaring chain")
	}
	if _, err := res.Access(b, local); err == nil {
		t.Errorf("expected error for uncaptured variable")
	}
}
