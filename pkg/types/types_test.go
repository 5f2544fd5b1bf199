package types

import (
	"testing"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/diag"
	fe "github.com/GriffinCanCode/tswasm-compiler/pkg/frontend"
)

func build(t *testing.T, decls ...fe.Decl) (*Session, map[string]Ref) {
	t.Helper()
	sess, refs, err := tryBuild(decls...)
	if err != nil {
		t.Fatalf("ResolveAll() error = %v", err)
	}
	return sess, refs
}

func tryBuild(decls ...fe.Decl) (*Session, map[string]Ref, error) {
	m := fe.NewModule("test")
	for _, d := range decls {
		m.Add(d)
	}
	sess := NewSession()
	r := NewResolver(sess, m)
	if err := r.ResolveAll(); err != nil {
		return nil, nil, err
	}
	refs := make(map[string]Ref)
	for _, d := range decls {
		ref, _ := sess.DeclRef(d)
		refs[d.DeclName()] = ref
	}
	return sess, refs, nil
}

func num() *fe.TypeExpr { return fe.Named("number") }
func str() *fe.TypeExpr { return fe.Named("string") }

func boxDecl() *fe.ClassDecl {
	return &fe.ClassDecl{
		Name:       "Box",
		TypeParams: []*fe.TypeParamDecl{{Name: "T"}},
		Members: []*fe.MemberDecl{
			fe.Field("value", fe.ParamRef("T")),
			fe.Method("get", fe.ParamRef("T")),
			fe.Method("self", fe.Named("Box", fe.ParamRef("T"))),
		},
	}
}

// TestSpecializationInterning tests that equal arguments return one instantiation
func TestSpecializationInterning(t *testing.T) {
	sess, refs := build(t, boxDecl())
	g := sess.Graph
	box := refs["Box"]

	a, err := sess.Specialize(box, []Ref{g.Prim(PrimNumber)})
	if err != nil {
		t.Fatalf("Specialize() error = %v", err)
	}
	b, _ := sess.Specialize(box, []Ref{g.Prim(PrimNumber)})
	s, _ := sess.Specialize(box, []Ref{g.Prim(PrimString)})

	if a != b {
		t.Errorf("Box<number> specialized twice gave %d and %d", a, b)
	}
	if a == s {
		t.Errorf("Box<number> and Box<string> share a handle")
	}
	if g.IsGeneric(a) {
		t.Errorf("Box<number> still generic")
	}
	if got := g.Class(a).Name; got != "Box<number>" {
		t.Errorf("name = %q", got)
	}

	tests := []struct {
		name   string
		inst   Ref
		member string
		want   Ref
	}{
		{"number field", a, "value", g.Prim(PrimNumber)},
		{"string field", s, "value", g.Prim(PrimString)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Class(tt.inst).Member(tt.member).Type; got != tt.want {
				t.Errorf("%s type = %s, want %s", tt.member, g.String(got), g.String(tt.want))
			}
		})
	}

	get := g.Sig(g.Class(a).Member("get").Type)
	if get.Return != g.Prim(PrimNumber) || get.Owner != a {
		t.Errorf("get() = %s owner %d", g.String(get.Return), get.Owner)
	}
	self := g.Sig(g.Class(a).Member("self").Type)
	if self.Return != a {
		t.Errorf("self() returns %s, want the instantiation", g.String(self.Return))
	}
}

// TestNonGenericIsUnchanged tests specialize on a concrete type
func TestNonGenericIsUnchanged(t *testing.T) {
	sess, refs := build(t, &fe.ClassDecl{Name: "Point", Members: []*fe.MemberDecl{fe.Field("x", num())}})
	got, err := sess.Specialize(refs["Point"], nil)
	if err != nil || got != refs["Point"] {
		t.Errorf("Specialize(Point) = %d, %v", got, err)
	}
	if sess.Specializations() != 0 {
		t.Errorf("cache grew for non-generic input")
	}
}

// TestSelfReferentialGeneric tests a generic whose field names itself
func TestSelfReferentialGeneric(t *testing.T) {
	node := &fe.ClassDecl{
		Name:       "Node",
		TypeParams: []*fe.TypeParamDecl{{Name: "T"}},
		Members: []*fe.MemberDecl{
			fe.Field("value", fe.ParamRef("T")),
			fe.Field("next", fe.Named("Node", fe.ParamRef("T"))),
		},
	}
	sess, refs := build(t, node)
	g := sess.Graph
	n, err := sess.Specialize(refs["Node"], []Ref{g.Prim(PrimNumber)})
	if err != nil {
		t.Fatalf("Specialize() error = %v", err)
	}
	if got := g.Class(n).Member("next").Type; got != n {
		t.Errorf("next = %s, want Node<number>", g.String(got))
	}
}

// TestSwappedArguments tests instantiations requested while the template is incomplete
func TestSwappedArguments(t *testing.T) {
	pair := &fe.ClassDecl{
		Name:       "Pair",
		TypeParams: []*fe.TypeParamDecl{{Name: "T"}, {Name: "U"}},
		Members: []*fe.MemberDecl{
			fe.Field("first", fe.ParamRef("T")),
			fe.Field("second", fe.ParamRef("U")),
			fe.Method("swap", fe.Named("Pair", fe.ParamRef("U"), fe.ParamRef("T"))),
		},
	}
	sess, refs := build(t, pair)
	g := sess.Graph
	ns, _ := sess.Specialize(refs["Pair"], []Ref{g.Prim(PrimNumber), g.Prim(PrimString)})
	sn, _ := sess.Specialize(refs["Pair"], []Ref{g.Prim(PrimString), g.Prim(PrimNumber)})

	if got := g.Sig(g.Class(ns).Member("swap").Type).Return; got != sn {
		t.Errorf("Pair<number,string>.swap returns %s", g.String(got))
	}
	if got := g.Sig(g.Class(sn).Member("swap").Type).Return; got != ns {
		t.Errorf("Pair<string,number>.swap returns %s", g.String(got))
	}
	if got := g.Class(sn).Member("first").Type; got != g.Prim(PrimString) {
		t.Errorf("first = %s", g.String(got))
	}
}

// TestGenericInheritance tests base arguments computed through the derived list
func TestGenericInheritance(t *testing.T) {
	generic := &fe.ClassDecl{
		Name:       "Generic",
		TypeParams: []*fe.TypeParamDecl{{Name: "X"}},
		Members:    []*fe.MemberDecl{fe.Field("x", fe.ParamRef("X"))},
	}
	derived := &fe.ClassDecl{
		Name:       "GenericBase",
		TypeParams: []*fe.TypeParamDecl{{Name: "A"}, {Name: "B"}},
		Extends:    []*fe.TypeExpr{fe.Named("Generic", fe.ParamRef("B"))},
		Members:    []*fe.MemberDecl{fe.Field("a", fe.ParamRef("A"))},
	}
	sess, refs := build(t, generic, derived)
	g := sess.Graph

	inst, err := sess.Specialize(refs["GenericBase"], []Ref{g.Prim(PrimNumber), g.Prim(PrimString)})
	if err != nil {
		t.Fatalf("Specialize() error = %v", err)
	}
	c := g.Class(inst)
	if got := c.Member("x").Type; got != g.Prim(PrimString) {
		t.Errorf("inherited x = %s, want string", g.String(got))
	}
	if got := c.Member("a").Type; got != g.Prim(PrimNumber) {
		t.Errorf("a = %s, want number", g.String(got))
	}
	if c.MemberIndex("x") != 0 || c.MemberIndex("a") != 1 {
		t.Errorf("inherited members must come first")
	}

	base := g.Class(c.Base)
	if base.Name != "GenericBase<number,string>_Generic" {
		t.Errorf("base name = %q", base.Name)
	}
	if got := base.Member("x").Type; got != g.Prim(PrimString) {
		t.Errorf("base x = %s", g.String(got))
	}
	direct, _ := sess.Specialize(refs["Generic"], []Ref{g.Prim(PrimString)})
	if direct == c.Base {
		t.Errorf("base reached through derived chain aliases the direct instantiation")
	}
}

// TestOverrideKeepsSlot tests overrides replace inherited members in place
func TestOverrideKeepsSlot(t *testing.T) {
	base := &fe.ClassDecl{Name: "A", Members: []*fe.MemberDecl{
		fe.Field("x", num()),
		fe.Method("m", nil),
		fe.Method("n", nil),
	}}
	derived := &fe.ClassDecl{Name: "B", Extends: []*fe.TypeExpr{fe.Named("A")}, Members: []*fe.MemberDecl{
		fe.Field("y", str()),
		fe.Method("m", nil),
	}}
	sess, refs := build(t, base, derived)
	g := sess.Graph
	b := g.Class(refs["B"])

	want := []string{"x", "m", "n", "y"}
	for i, name := range want {
		if b.Members[i].Name != name {
			t.Fatalf("member %d = %s, want %s", i, b.Members[i].Name, name)
		}
	}
	if !b.Member("m").Own || b.Member("n").Own {
		t.Errorf("ownership flags wrong")
	}
	if !g.Class(refs["A"]).Member("m").Overridden {
		t.Errorf("base m not marked overridden")
	}
}

// TestAccessorPair tests getter and setter merge into one member
func TestAccessorPair(t *testing.T) {
	c := &fe.ClassDecl{Name: "Temp", Members: []*fe.MemberDecl{
		fe.Getter("celsius", num()),
		fe.Setter("celsius", num()),
		fe.Getter("kelvin", num()),
	}}
	sess, refs := build(t, c)
	cls := sess.Graph.Class(refs["Temp"])
	if len(cls.Members) != 2 {
		t.Fatalf("got %d members, want 2", len(cls.Members))
	}
	m := cls.Member("celsius")
	if m.Kind != MemberAccessor || !m.HasGetter || !m.HasSetter {
		t.Errorf("celsius = %+v", m)
	}
	if k := cls.Member("kelvin"); k.HasSetter {
		t.Errorf("kelvin should be getter-only")
	}
}

// TestForwardReferenceThroughMembers tests a member type whose class extends the owner
func TestForwardReferenceThroughMembers(t *testing.T) {
	a := &fe.ClassDecl{Name: "A", Members: []*fe.MemberDecl{fe.Field("b", fe.Named("B")), fe.Field("n", num())}}
	b := &fe.ClassDecl{Name: "B", Extends: []*fe.TypeExpr{fe.Named("A")}, Members: []*fe.MemberDecl{fe.Field("extra", str())}}
	sess, refs := build(t, a, b)
	bc := sess.Graph.Class(refs["B"])
	if !bc.Complete() || bc.MemberIndex("n") != 1 || bc.MemberIndex("extra") != 2 {
		t.Errorf("B members = %d, complete %v", len(bc.Members), bc.Complete())
	}
}

// TestResolutionErrors tests the fatal type-resolution cases
func TestResolutionErrors(t *testing.T) {
	iface := &fe.InterfaceDecl{Name: "I"}
	cls := &fe.ClassDecl{Name: "C"}
	tests := []struct {
		name  string
		decls []fe.Decl
	}{
		{"multiple base classes", []fe.Decl{cls, &fe.ClassDecl{Name: "D",
			Extends: []*fe.TypeExpr{fe.Named("C"), fe.Named("C")}}}},
		{"interface extending class", []fe.Decl{cls, &fe.InterfaceDecl{Name: "J",
			Extends: []*fe.TypeExpr{fe.Named("C")}}}},
		{"class extending interface", []fe.Decl{iface, &fe.ClassDecl{Name: "E",
			Extends: []*fe.TypeExpr{fe.Named("I")}}}},
		{"unresolvable type parameter", []fe.Decl{&fe.ClassDecl{Name: "F",
			Members: []*fe.MemberDecl{fe.Field("v", fe.ParamRef("T"))}}}},
		{"missing declaration", []fe.Decl{&fe.ClassDecl{Name: "G",
			Members: []*fe.MemberDecl{fe.Field("v", fe.Named("Nowhere"))}}}},
		{"duplicate enum member", []fe.Decl{&fe.EnumDecl{Name: "Color",
			Members: []*fe.EnumMember{{Name: "Red"}, {Name: "Red"}}}}},
		{"wrong argument count", []fe.Decl{boxDecl(), &fe.ClassDecl{Name: "H",
			Members: []*fe.MemberDecl{fe.Field("v", fe.Named("Box", num(), str()))}}}},
		{"circular base", []fe.Decl{
			&fe.ClassDecl{Name: "P", Extends: []*fe.TypeExpr{fe.Named("Q")}},
			&fe.ClassDecl{Name: "Q", Extends: []*fe.TypeExpr{fe.Named("P")}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tryBuild(tt.decls...)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !diag.IsTypeResolution(err) {
				t.Errorf("error %v is not a type-resolution error", err)
			}
		})
	}
}

// TestLocationMemo tests one resolution per (generic, source position)
func TestLocationMemo(t *testing.T) {
	pos := fe.Pos{File: "a.ts", Line: 4, Col: 9}
	user := &fe.ClassDecl{Name: "User", Members: []*fe.MemberDecl{
		fe.Field("a", fe.Named("Box", num()).At(pos)),
		fe.Field("b", fe.Named("Box", num()).At(pos)),
	}}
	sess, refs := build(t, boxDecl(), user)
	u := sess.Graph.Class(refs["User"])
	if u.Member("a").Type != u.Member("b").Type {
		t.Errorf("same site resolved to different types")
	}
	if _, ok := sess.sites[siteKey{template: refs["Box"], pos: pos}]; !ok {
		t.Errorf("site cache not populated")
	}
}

// TestUnionHelpers tests flattening, set equality and static type extraction
func TestUnionHelpers(t *testing.T) {
	g := NewGraph()
	n, s, u := g.Prim(PrimNumber), g.Prim(PrimString), g.Prim(PrimUndefined)

	ab := g.NewUnion(n, s)
	ba := g.NewUnion(s, n)
	if !g.Equal(ab, ba) {
		t.Errorf("union equality must ignore order")
	}
	if g.String(ba) != "string | number" {
		t.Errorf("display = %q", g.String(ba))
	}
	if g.Tag(ab) != g.Tag(ba) {
		t.Errorf("Tag(%s) = %q, Tag(%s) = %q", g.String(ab), g.Tag(ab), g.String(ba), g.Tag(ba))
	}
	if got := g.NewUnion(ab, n, s); !g.Equal(got, ab) {
		t.Errorf("nested union not flattened: %s", g.String(got))
	}
	if got := g.NewUnion(n, n); got != n {
		t.Errorf("single member union not collapsed")
	}
	opt := g.NewUnion(n, u)
	if !g.IsUnionWithUndefined(opt) || g.StaticTypeOf(opt) != n {
		t.Errorf("StaticTypeOf(number | undefined) = %s", g.String(g.StaticTypeOf(opt)))
	}
	if got := g.WithoutNullish(g.NewUnion(s, g.Prim(PrimNull), u)); got != s {
		t.Errorf("WithoutNullish = %s", g.String(got))
	}
	if got := g.Merge(n, n); got != n {
		t.Errorf("Merge(number, number) = %s", g.String(got))
	}
}

// TestConformance tests structural interface checks
func TestConformance(t *testing.T) {
	shape := &fe.InterfaceDecl{Name: "Shape", Members: []*fe.MemberDecl{
		fe.Method("area", num()),
		{Name: "label", Kind: fe.MemberField, Type: str(), Optional: true},
	}}
	circle := &fe.ClassDecl{Name: "Circle", Members: []*fe.MemberDecl{fe.Field("r", num()), fe.Method("area", num())}}
	rock := &fe.ClassDecl{Name: "Rock", Members: []*fe.MemberDecl{fe.Field("area", num())}}
	sess, refs := build(t, shape, circle, rock)
	g := sess.Graph
	if !g.Conforms(refs["Circle"], refs["Shape"]) {
		t.Errorf("Circle should conform: %v", g.MissingMembers(refs["Circle"], refs["Shape"]))
	}
	if g.Conforms(refs["Rock"], refs["Shape"]) {
		t.Errorf("Rock has a field where a method is required")
	}
}
