package compiler

import (
	"testing"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/config"
	fe "github.com/GriffinCanCode/tswasm-compiler/pkg/frontend"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/interp"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/ir"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/layout"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

func unit(decls ...fe.Decl) *fe.Module {
	m := fe.NewModule("test")
	for _, d := range decls {
		m.Add(d)
	}
	return m
}

func declRef(t *testing.T, sess *types.Session, d fe.Decl) types.Ref {
	t.Helper()
	r, ok := sess.DeclRef(d)
	if !ok {
		t.Fatalf("no type for %s", d.DeclName())
	}
	return r
}

func compile(t *testing.T, src *fe.Module, program ProgramFunc) *Unit {
	t.Helper()
	u, err := Compile(config.Default(), src, program)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return u
}

func run(t *testing.T, u *Unit, opts interp.Options, name string, args ...interp.Value) (interp.Value, *interp.Instance) {
	t.Helper()
	opts.StringRef = u.Config.EnableStringRef
	in, err := interp.New(u.Module, opts)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	got, err := in.Call(name, append([]interp.Value{{}, {}}, args...)...)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return got, in
}

// TestInterfacePaths tests that an interface read returns the same value
// whether the receiver passes the shape test or goes through the meta.
func TestInterfacePaths(t *testing.T) {
	sized := &fe.InterfaceDecl{Name: "Sized", Members: []*fe.MemberDecl{fe.Field("size", fe.Named("number"))}}
	exact := &fe.ClassDecl{Name: "Exact", Members: []*fe.MemberDecl{fe.Field("size", fe.Named("number"))}}
	wide := &fe.ClassDecl{Name: "Wide", Members: []*fe.MemberDecl{
		fe.Field("label", fe.Named("number")),
		fe.Field("size", fe.Named("number")),
	}}
	s := fe.Param("s", fe.Named("Sized"))
	measure := &fe.FuncDecl{Name: "measure", Params: []*fe.ParamDecl{s}, Return: fe.Named("number")}
	viaExact := &fe.FuncDecl{Name: "viaExact", Return: fe.Named("number")}
	viaWide := &fe.FuncDecl{Name: "viaWide", Return: fe.Named("number")}
	src := unit(sized, exact, wide, measure, viaExact, viaWide)

	u := compile(t, src, func(b *ir.Builder, sess *types.Session) error {
		ms := fe.NewScope(fe.ScopeFunction, "measure", src.Root)
		ms.DeclareParam("s", fe.Named("Sized"))
		b.Function("measure", ms, func() {
			b.Emit(b.Return(b.Prop(b.Get("s"), "size")))
		})
		build := func(name string, class *fe.ClassDecl, size float64) {
			fs := fe.NewScope(fe.ScopeFunction, name, src.Root)
			fs.Declare("o", fe.Named(class.Name))
			b.Function(name, fs, func() {
				b.Emit(b.Set("o", b.New(declRef(t, sess, class))))
				b.Emit(b.SetProp(b.Get("o"), "size", b.Num(size)))
				if class == wide {
					b.Emit(b.SetProp(b.Get("o"), "label", b.Num(-1)))
				}
				b.Emit(b.Return(b.CallFunc("measure", b.Get("o"))))
			})
		}
		build("viaExact", exact, 3)
		build("viaWide", wide, 4)
		return nil
	})

	ex, _ := u.Table("Exact")
	sz, _ := u.Table("Sized")
	wd, _ := u.Table("Wide")
	if ex.TypeID != sz.TypeID {
		t.Errorf("Exact id %d != Sized id %d", ex.TypeID, sz.TypeID)
	}
	if wd.TypeID == sz.TypeID {
		t.Errorf("Wide shares the Sized id")
	}

	tests := []struct {
		fn      string
		want    float64
		lookups int
	}{
		{"viaExact", 3, 0},
		{"viaWide", 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			lookups := 0
			got, _ := run(t, u, countLookups(&lookups), tt.fn)
			if got.F64() != tt.want {
				t.Errorf("%s() = %v, want %v", tt.fn, got.F64(), tt.want)
			}
			if lookups != tt.lookups {
				t.Errorf("meta lookups = %d, want %d", lookups, tt.lookups)
			}
		})
	}
}

// countLookups returns host overrides that count meta lookups and resolve
// them against linear memory.
func countLookups(n *int) interp.Options {
	return interp.Options{Hosts: map[string]interp.HostFunc{
		abi.FindPropertyFlagAndIndex: func(in *interp.Instance, args []interp.Value) (interp.Value, error) {
			*n++
			fi, _ := layout.LookupEncoded(in.Memory, uint32(args[0].I32()), in.ReadCString(uint32(args[1].I32())),
				abi.ItableFlag(args[2].I32()), in.ReadCString)
			return interp.I32(fi), nil
		},
	}}
}

// TestInterfaceWriteAndCall tests writes and method calls through an
// interface against a receiver with the same shape and one laid out
// differently.
func TestInterfaceWriteAndCall(t *testing.T) {
	area := func() *fe.MemberDecl { return fe.Method("area", fe.Named("number")) }
	shape := &fe.InterfaceDecl{Name: "Shape", Members: []*fe.MemberDecl{fe.Field("size", fe.Named("number")), area()}}
	square := &fe.ClassDecl{Name: "Square", Members: []*fe.MemberDecl{fe.Field("size", fe.Named("number")), area()}}
	tile := &fe.ClassDecl{Name: "Tile", Members: []*fe.MemberDecl{
		fe.Field("label", fe.Named("number")),
		fe.Field("size", fe.Named("number")),
		area(),
	}}
	s := fe.Param("s", fe.Named("Shape"))
	by := fe.Param("by", fe.Named("number"))
	decls := []fe.Decl{shape, square, tile,
		&fe.FuncDecl{Name: "grow", Params: []*fe.ParamDecl{s, by}, Return: fe.Named("number")},
		&fe.FuncDecl{Name: "measure", Params: []*fe.ParamDecl{s}, Return: fe.Named("number")},
	}
	entries := []string{"growSquare", "growTile", "areaSquare", "areaTile"}
	for _, name := range entries {
		decls = append(decls, &fe.FuncDecl{Name: name, Return: fe.Named("number")})
	}
	src := unit(decls...)

	u := compile(t, src, func(b *ir.Builder, sess *types.Session) error {
		gs := fe.NewScope(fe.ScopeFunction, "grow", src.Root)
		gs.DeclareParam("s", fe.Named("Shape"))
		gs.DeclareParam("by", fe.Named("number"))
		b.Function("grow", gs, func() {
			b.Emit(b.SetProp(b.Get("s"), "size", b.Bin(ir.OpAdd, b.Prop(b.Get("s"), "size"), b.Get("by"))))
			b.Emit(b.Return(b.Prop(b.Get("s"), "size")))
		})
		ms := fe.NewScope(fe.ScopeFunction, "measure", src.Root)
		ms.DeclareParam("s", fe.Named("Shape"))
		b.Function("measure", ms, func() {
			b.Emit(b.Return(b.Call(b.Get("s"), "area")))
		})
		for _, class := range []*fe.ClassDecl{square, tile} {
			as := fe.NewScope(fe.ScopeFunction, "area", src.Root)
			b.Method(declRef(t, sess, class), "area", ir.FuncMethod, as, func() {
				b.Emit(b.Return(b.Bin(ir.OpMul, b.Prop(b.This(), "size"), b.Prop(b.This(), "size"))))
			})
		}
		build := func(name string, class *fe.ClassDecl, call func(o ir.Value) ir.Value) {
			fs := fe.NewScope(fe.ScopeFunction, name, src.Root)
			fs.Declare("o", fe.Named(class.Name))
			b.Function(name, fs, func() {
				b.Emit(b.Set("o", b.New(declRef(t, sess, class))))
				b.Emit(b.SetProp(b.Get("o"), "size", b.Num(3)))
				if class == tile {
					b.Emit(b.SetProp(b.Get("o"), "label", b.Num(-1)))
				}
				b.Emit(b.Return(call(b.Get("o"))))
			})
		}
		grow := func(o ir.Value) ir.Value { return b.CallFunc("grow", o, b.Num(2)) }
		measure := func(o ir.Value) ir.Value { return b.CallFunc("measure", o) }
		build("growSquare", square, grow)
		build("growTile", tile, grow)
		build("areaSquare", square, measure)
		build("areaTile", tile, measure)
		return nil
	})

	sq, _ := u.Table("Square")
	sh, _ := u.Table("Shape")
	tl, _ := u.Table("Tile")
	if sq.TypeID != sh.TypeID || tl.TypeID == sh.TypeID {
		t.Fatalf("ids: Square=%d Shape=%d Tile=%d", sq.TypeID, sh.TypeID, tl.TypeID)
	}

	tests := []struct {
		fn      string
		want    float64
		lookups int
	}{
		{"growSquare", 5, 0},
		// one field lookup for the write and one per read
		{"growTile", 5, 3},
		{"areaSquare", 9, 0},
		{"areaTile", 9, 1},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			lookups := 0
			got, _ := run(t, u, countLookups(&lookups), tt.fn)
			if got.F64() != tt.want {
				t.Errorf("%s() = %v, want %v", tt.fn, got.F64(), tt.want)
			}
			if lookups != tt.lookups {
				t.Errorf("meta lookups = %d, want %d", lookups, tt.lookups)
			}
		})
	}
}

// TestOptionalMemberWrite tests that writing an optional interface member
// the receiver does not have is skipped instead of trapping.
func TestOptionalMemberWrite(t *testing.T) {
	note := fe.Field("note", fe.Named("number"))
	note.Optional = true
	tagged := &fe.InterfaceDecl{Name: "Tagged", Members: []*fe.MemberDecl{fe.Field("size", fe.Named("number")), note}}
	plain := &fe.ClassDecl{Name: "Plain", Members: []*fe.MemberDecl{
		fe.Field("weight", fe.Named("number")),
		fe.Field("size", fe.Named("number")),
	}}
	tp := fe.Param("t", fe.Named("Tagged"))
	mark := &fe.FuncDecl{Name: "mark", Params: []*fe.ParamDecl{tp}, Return: fe.Named("number")}
	viaPlain := &fe.FuncDecl{Name: "viaPlain", Return: fe.Named("number")}
	src := unit(tagged, plain, mark, viaPlain)

	u := compile(t, src, func(b *ir.Builder, sess *types.Session) error {
		ms := fe.NewScope(fe.ScopeFunction, "mark", src.Root)
		ms.DeclareParam("t", fe.Named("Tagged"))
		b.Function("mark", ms, func() {
			b.Emit(b.SetProp(b.Get("t"), "note", b.Num(5)))
			b.Emit(b.Return(b.Prop(b.Get("t"), "size")))
		})
		ps := fe.NewScope(fe.ScopeFunction, "viaPlain", src.Root)
		ps.Declare("o", fe.Named("Plain"))
		b.Function("viaPlain", ps, func() {
			b.Emit(b.Set("o", b.New(declRef(t, sess, plain))))
			b.Emit(b.SetProp(b.Get("o"), "size", b.Num(4)))
			b.Emit(b.Return(b.CallFunc("mark", b.Get("o"))))
		})
		return nil
	})

	lookups := 0
	got, _ := run(t, u, countLookups(&lookups), "viaPlain")
	if got.F64() != 4 {
		t.Errorf("viaPlain() = %v, want 4", got.F64())
	}
	// field then setter for the absent note, then the size read
	if lookups != 3 {
		t.Errorf("meta lookups = %d, want 3", lookups)
	}
}

// TestClosureCounter tests that two calls of closures sharing a frame see
// each other's writes.
func TestClosureCounter(t *testing.T) {
	counter := &fe.FuncDecl{Name: "counter", Return: fe.Named("number")}
	src := unit(counter)
	u := compile(t, src, func(b *ir.Builder, sess *types.Session) error {
		os := fe.NewScope(fe.ScopeFunction, "counter", src.Root)
		os.Declare("count", fe.Named("number"))
		inner := fe.NewScope(fe.ScopeFunction, "", os)
		b.Function("counter", os, func() {
			b.Emit(b.Set("count", b.Num(0)))
			inc := b.Closure(inner, sess.Graph.Prim(types.PrimNumber), func() {
				b.Emit(b.Set("count", b.Bin(ir.OpAdd, b.Get("count"), b.Num(1))))
				b.Emit(b.Return(b.Get("count")))
			})
			b.Emit(b.Invoke(inc))
			b.Emit(b.Return(b.Invoke(inc)))
		})
		return nil
	})
	if len(u.Frames.Frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(u.Frames.Frames))
	}
	outer, inner := u.Frames.Frames[0], u.Frames.Frames[1]
	if outer.Name != "@context0_counter" || inner.Name != "@context1" || inner.Parent != outer {
		t.Errorf("frames = %s, %s (parent %v)", outer.Name, inner.Name, inner.Parent)
	}
	got, _ := run(t, u, interp.Options{}, "counter")
	if got.F64() != 2 {
		t.Errorf("counter() = %v, want 2", got.F64())
	}
}

// TestBoxRoundTrip tests that boxing then unboxing preserves primitives and
// object identity.
func TestBoxRoundTrip(t *testing.T) {
	point := &fe.ClassDecl{Name: "Point", Members: []*fe.MemberDecl{
		fe.Field("x", fe.Named("number")),
		fe.Field("y", fe.Named("number")),
	}}
	prims := []struct {
		fn   string
		typ  string
		prim types.Prim
	}{
		{"num", "number", types.PrimNumber},
		{"str", "string", types.PrimString},
		{"flag", "boolean", types.PrimBoolean},
	}
	decls := []fe.Decl{point}
	for _, p := range prims {
		decls = append(decls, &fe.FuncDecl{Name: p.fn, Params: []*fe.ParamDecl{fe.Param("v", fe.Named(p.typ))}, Return: fe.Named(p.typ)})
	}
	obj := &fe.FuncDecl{Name: "obj", Return: fe.Named("number")}
	src := unit(append(decls, obj)...)
	u := compile(t, src, func(b *ir.Builder, sess *types.Session) error {
		g := sess.Graph
		for _, p := range prims {
			ps := fe.NewScope(fe.ScopeFunction, p.fn, src.Root)
			ps.DeclareParam("v", fe.Named(p.typ))
			b.Function(p.fn, ps, func() {
				b.Emit(b.Return(b.Unbox(b.Box(b.Get("v")), g.Prim(p.prim))))
			})
		}
		pt := declRef(t, sess, point)
		os := fe.NewScope(fe.ScopeFunction, "obj", src.Root)
		os.Declare("p", fe.Named("Point"))
		b.Function("obj", os, func() {
			b.Emit(b.Set("p", b.New(pt)))
			b.Emit(b.SetProp(b.Get("p"), "y", b.Num(7)))
			b.Emit(b.Return(b.Prop(b.Unbox(b.Box(b.Get("p")), pt), "y")))
		})
		return nil
	})

	for _, v := range []float64{0, -2.5, 1e9} {
		got, _ := run(t, u, interp.Options{}, "num", interp.F64(v))
		if got.F64() != v {
			t.Errorf("num(%v) = %v", v, got.F64())
		}
	}
	for _, v := range []string{"", "hello", "naïve"} {
		got, _ := run(t, u, interp.Options{}, "str", interp.RefValue(v))
		if s, ok := got.Ref.(string); !ok || s != v {
			t.Errorf("str(%q) = %v", v, got.Ref)
		}
	}
	for _, v := range []int32{0, 1} {
		got, _ := run(t, u, interp.Options{}, "flag", interp.I32(v))
		if got.I32() != v {
			t.Errorf("flag(%d) = %d", v, got.I32())
		}
	}
	got, in := run(t, u, interp.Options{}, "obj")
	if got.F64() != 7 {
		t.Errorf("obj() = %v, want 7", got.F64())
	}
	if len(in.Table) != 1 {
		t.Errorf("extref slots = %d, want 1", len(in.Table))
	}
}

// TestSpecializationIDs tests that instantiations differing in a type
// argument get distinct ids while matching shapes share one.
func TestSpecializationIDs(t *testing.T) {
	box := &fe.ClassDecl{
		Name:       "Box",
		TypeParams: []*fe.TypeParamDecl{{Name: "T"}},
		Members:    []*fe.MemberDecl{fe.Field("value", fe.ParamRef("T"))},
	}
	numBox := &fe.InterfaceDecl{Name: "NumBox", Members: []*fe.MemberDecl{fe.Field("value", fe.Named("number"))}}
	holder := &fe.InterfaceDecl{Name: "Holder", Members: []*fe.MemberDecl{
		fe.Field("n", fe.Named("Box", fe.Named("number"))),
		fe.Field("s", fe.Named("Box", fe.Named("string"))),
	}}
	u, err := Analyze(config.Default(), unit(box, numBox, holder))
	if err != nil {
		t.Fatal(err)
	}
	id := func(e *fe.TypeExpr) abi.TypeTag {
		r, err := u.Resolve(e)
		if err != nil {
			t.Fatal(err)
		}
		return u.Graph.Class(r).TypeID()
	}
	n := id(fe.Named("Box", fe.Named("number")))
	s := id(fe.Named("Box", fe.Named("string")))
	if n == s {
		t.Errorf("Box<number> and Box<string> share id %d", n)
	}
	if !n.IsObjectShaped() || !s.IsObjectShaped() {
		t.Errorf("ids %d, %d are not custom ids", n, s)
	}
	if nb, _ := u.Table("NumBox"); nb.TypeID != n {
		t.Errorf("NumBox id %d != Box<number> id %d", nb.TypeID, n)
	}
}

// TestLateSpecializationID tests that an instantiation first reached from a
// function body still gets a structural id, a slot table and a meta.
func TestLateSpecializationID(t *testing.T) {
	box := &fe.ClassDecl{
		Name:       "Box",
		TypeParams: []*fe.TypeParamDecl{{Name: "T"}},
		Members:    []*fe.MemberDecl{fe.Field("value", fe.ParamRef("T"))},
	}
	holder := &fe.InterfaceDecl{Name: "Holder", Members: []*fe.MemberDecl{
		fe.Field("n", fe.Named("Box", fe.Named("number"))),
	}}
	flag := &fe.FuncDecl{Name: "flag", Return: fe.Named("boolean")}
	src := unit(box, holder, flag)
	boolBox := fe.Named("Box", fe.Named("boolean"))
	u := compile(t, src, func(b *ir.Builder, sess *types.Session) error {
		fs := fe.NewScope(fe.ScopeFunction, "flag", src.Root)
		v := fs.Declare("b", boolBox)
		b.Function("flag", fs, func() {
			b.Emit(b.Set("b", b.New(b.VarType(v))))
			b.Emit(b.SetProp(b.Get("b"), "value", b.Bool(true)))
			b.Emit(b.Return(b.Prop(b.Get("b"), "value")))
		})
		return nil
	})

	late, err := u.Resolve(boolBox)
	if err != nil {
		t.Fatal(err)
	}
	num, err := u.Resolve(fe.Named("Box", fe.Named("number")))
	if err != nil {
		t.Fatal(err)
	}
	id := u.Graph.Class(late).TypeID()
	if id < abi.CustomTypeBegin {
		t.Fatalf("Box<boolean> id = %d, want a custom id", id)
	}
	if id == u.Graph.Class(num).TypeID() {
		t.Errorf("Box<boolean> shares the Box<number> id %d", id)
	}
	tab, ok := u.Tables[late]
	if !ok || tab.TypeID != id {
		t.Fatalf("Box<boolean> table = %+v", tab)
	}
	addr, ok := u.MetaAddr(tab.Name)
	if !ok {
		t.Fatal("Box<boolean> meta not placed")
	}
	if got, _ := layout.EncodedIDs(u.Pool.Bytes(), addr-u.Pool.Base()); got != id {
		t.Errorf("encoded id = %d, want %d", got, id)
	}

	got, _ := run(t, u, interp.Options{}, "flag")
	if got.I32() != 1 {
		t.Errorf("flag() = %d, want 1", got.I32())
	}
}

// TestImplID tests that a class implementing an interface with a matching
// layout records the interface id in its meta.
func TestImplID(t *testing.T) {
	named := &fe.InterfaceDecl{Name: "Named", Members: []*fe.MemberDecl{fe.Field("id", fe.Named("number"))}}
	user := &fe.ClassDecl{
		Name:       "User",
		Implements: []*fe.TypeExpr{fe.Named("Named")},
		Members: []*fe.MemberDecl{
			fe.Field("id", fe.Named("number")),
			fe.Field("age", fe.Named("number")),
		},
	}
	u, err := Analyze(config.Default(), unit(named, user))
	if err != nil {
		t.Fatal(err)
	}
	ut, _ := u.Table("User")
	nt, _ := u.Table("Named")
	if ut.ImplID != nt.TypeID {
		t.Errorf("User impl id = %d, want %d", ut.ImplID, nt.TypeID)
	}
	addr, ok := u.MetaAddr("User")
	if !ok {
		t.Fatal("User meta not placed")
	}
	off := addr - u.Pool.Base()
	typeID, implID := layout.EncodedIDs(u.Pool.Bytes(), off)
	if typeID != ut.TypeID || implID != nt.TypeID {
		t.Errorf("encoded ids = (%d, %d), want (%d, %d)", typeID, implID, ut.TypeID, nt.TypeID)
	}
}

// TestConsoleOutput tests a builtin receiver call end to end.
func TestConsoleOutput(t *testing.T) {
	main := &fe.FuncDecl{Name: "main", Return: fe.Named("void")}
	src := unit(main)
	u := compile(t, src, func(b *ir.Builder, sess *types.Session) error {
		b.Function("main", fe.NewScope(fe.ScopeFunction, "main", src.Root), func() {
			b.Emit(b.Builtin(abi.Console, "log", nil, sess.Graph.Prim(types.PrimVoid), b.Num(1.5), b.Bool(true)))
		})
		return nil
	})
	_, in := run(t, u, interp.Options{}, "main")
	if len(in.Output) != 1 || in.Output[0] != "1.5 true" {
		t.Errorf("Output = %q, want [\"1.5 true\"]", in.Output)
	}
}

// TestCompileErrors tests that phase failures surface as errors.
func TestCompileErrors(t *testing.T) {
	bad := config.Default()
	bad.Entry = ""
	if _, err := Compile(bad, unit(), nil); err == nil {
		t.Error("invalid config accepted")
	}

	missing := &fe.ClassDecl{Name: "A", Members: []*fe.MemberDecl{fe.Field("b", fe.Named("Missing"))}}
	if _, err := Compile(config.Default(), unit(missing), nil); err == nil {
		t.Error("unresolved type accepted")
	}

	src := unit()
	_, err := Compile(config.Default(), src, func(b *ir.Builder, _ *types.Session) error {
		b.Function("nope", fe.NewScope(fe.ScopeFunction, "nope", src.Root), nil)
		return nil
	})
	if err == nil {
		t.Error("body for an undeclared function accepted")
	}
}
