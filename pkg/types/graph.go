// Package types implements the compiler's type graph.
//
// Design: every type lives in one arena and is addressed by a Ref. Classes
// are built in two steps (skeleton, then members) so self and mutual
// references resolve to stable handles before their details exist.
package types

import (
	"fmt"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/frontend"
)

// Ref is a stable handle into a Graph. The zero Ref is invalid.
type Ref int32

// NoRef is the invalid handle.
const NoRef Ref = 0

// Valid reports whether r names a type.
func (r Ref) Valid() bool { return r > 0 }

// Kind is the variant of a type node.
type Kind uint8

const (
	KindPrimitive Kind = iota
	KindArray
	KindFunction
	KindClass
	KindInterface
	KindUnion
	KindTypeParam
	KindContext
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindArray:
		return "array"
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	case KindInterface:
		return "interface"
	case KindUnion:
		return "union"
	case KindTypeParam:
		return "type-parameter"
	case KindContext:
		return "closure-context"
	}
	return "unknown"
}

// Prim is a primitive type.
type Prim uint8

const (
	PrimVoid Prim = iota
	PrimUndefined
	PrimNull
	PrimNever
	PrimInt
	PrimNumber
	PrimBoolean
	PrimRawString
	PrimString
	PrimAny
	PrimI64
	PrimF32
	primCount
)

var primNames = [primCount]string{
	PrimVoid:      "void",
	PrimUndefined: "undefined",
	PrimNull:      "null",
	PrimNever:     "never",
	PrimInt:       "int",
	PrimNumber:    "number",
	PrimBoolean:   "boolean",
	PrimRawString: "raw_string",
	PrimString:    "string",
	PrimAny:       "any",
	PrimI64:       "i64",
	PrimF32:       "f32",
}

func (p Prim) String() string {
	if p < primCount {
		return primNames[p]
	}
	return fmt.Sprintf("prim(%d)", p)
}

// Type is one node of the graph. Exactly one of the payload pointers is set
// for non-primitive kinds.
type Type struct {
	Kind  Kind
	Prim  Prim
	Elem  Ref
	Sig   *Signature
	Class *Class
	Union *Union
	Param *TypeParam
	Ctx   *Context
}

// Param is one function parameter.
type Param struct {
	Name     string
	Type     Ref
	Optional bool
	Rest     bool
}

// Signature is a function type.
type Signature struct {
	Name       string
	Params     []Param
	Return     Ref
	TypeParams []Ref
	// Owner is the declaring class of a method or constructor.
	Owner   Ref
	Method  bool
	Static  bool
	Declare bool
}

// RestIndex is the position of the rest parameter, or -1.
func (s *Signature) RestIndex() int {
	for i, p := range s.Params {
		if p.Rest {
			return i
		}
	}
	return -1
}

// TypeParam is a generic parameter declared by Owner.
type TypeParam struct {
	Name    string
	Index   int
	Owner   Ref
	Bound   Ref
	Default Ref
}

// Context is the type of a closure context frame.
type Context struct {
	Name     string
	Parent   Ref
	Captured []Ref
}

// Graph is the type arena.
type Graph struct {
	nodes   []*Type
	prims   [primCount]Ref
	arrays  map[Ref]Ref
	classes []Ref
}

// NewGraph creates an arena with the primitives pre-registered.
func NewGraph() *Graph {
	g := &Graph{
		nodes:  []*Type{nil},
		arrays: make(map[Ref]Ref),
	}
	for p := Prim(0); p < primCount; p++ {
		g.prims[p] = g.add(&Type{Kind: KindPrimitive, Prim: p})
	}
	return g
}

func (g *Graph) add(t *Type) Ref {
	g.nodes = append(g.nodes, t)
	return Ref(len(g.nodes) - 1)
}

// Len is the number of nodes including the reserved zero slot.
func (g *Graph) Len() int { return len(g.nodes) }

// At returns the node for r, or nil when r is out of range.
func (g *Graph) At(r Ref) *Type {
	if r <= 0 || int(r) >= len(g.nodes) {
		return nil
	}
	return g.nodes[r]
}

// Kind returns the kind of r. Invalid refs report KindPrimitive.
func (g *Graph) Kind(r Ref) Kind {
	if t := g.At(r); t != nil {
		return t.Kind
	}
	return KindPrimitive
}

// Prim returns the handle of a primitive.
func (g *Graph) Prim(p Prim) Ref { return g.prims[p] }

// IsPrim reports whether r is the primitive p.
func (g *Graph) IsPrim(r Ref, p Prim) bool {
	t := g.At(r)
	return t != nil && t.Kind == KindPrimitive && t.Prim == p
}

// PrimOf returns the primitive of r and whether r is primitive.
func (g *Graph) PrimOf(r Ref) (Prim, bool) {
	t := g.At(r)
	if t == nil || t.Kind != KindPrimitive {
		return 0, false
	}
	return t.Prim, true
}

// ArrayOf returns the interned array type of elem.
func (g *Graph) ArrayOf(elem Ref) Ref {
	if r, ok := g.arrays[elem]; ok {
		return r
	}
	r := g.add(&Type{Kind: KindArray, Elem: elem})
	g.arrays[elem] = r
	return r
}

// NewFunction registers a function type.
func (g *Graph) NewFunction(sig *Signature) Ref {
	return g.add(&Type{Kind: KindFunction, Sig: sig})
}

// NewClass registers a class or interface skeleton.
func (g *Graph) NewClass(c *Class, iface bool) Ref {
	kind := KindClass
	if iface {
		kind = KindInterface
	}
	r := g.add(&Type{Kind: kind, Class: c})
	g.classes = append(g.classes, r)
	return r
}

// NewTypeParam registers a generic parameter.
func (g *Graph) NewTypeParam(p *TypeParam) Ref {
	return g.add(&Type{Kind: KindTypeParam, Param: p})
}

// NewContext registers a closure context type.
func (g *Graph) NewContext(c *Context) Ref {
	return g.add(&Type{Kind: KindContext, Ctx: c})
}

// NewUnion builds a union, flattening nested unions and dropping duplicates.
// A single remaining member is returned as is.
func (g *Graph) NewUnion(members ...Ref) Ref {
	u := newUnion(nil)
	for _, m := range members {
		if t := g.At(m); t != nil && t.Kind == KindUnion {
			for _, inner := range t.Union.Members {
				u.add(inner)
			}
			continue
		}
		u.add(m)
	}
	switch len(u.Members) {
	case 0:
		return g.Prim(PrimNever)
	case 1:
		return u.Members[0]
	}
	return g.add(&Type{Kind: KindUnion, Union: u})
}

// Sig returns the signature of a function type.
func (g *Graph) Sig(r Ref) *Signature {
	if t := g.At(r); t != nil && t.Kind == KindFunction {
		return t.Sig
	}
	return nil
}

// Class returns the class payload of a class or interface type.
func (g *Graph) Class(r Ref) *Class {
	if t := g.At(r); t != nil && (t.Kind == KindClass || t.Kind == KindInterface) {
		return t.Class
	}
	return nil
}

// UnionOf returns the union payload of r.
func (g *Graph) UnionOf(r Ref) *Union {
	if t := g.At(r); t != nil && t.Kind == KindUnion {
		return t.Union
	}
	return nil
}

// IsObject reports whether r is a class or interface.
func (g *Graph) IsObject(r Ref) bool {
	k := g.Kind(r)
	return g.At(r) != nil && (k == KindClass || k == KindInterface)
}

// IsInterface reports whether r is an interface.
func (g *Graph) IsInterface(r Ref) bool {
	return g.At(r) != nil && g.Kind(r) == KindInterface
}

// Classes lists every class and interface in creation order.
func (g *Graph) Classes() []Ref {
	out := make([]Ref, len(g.classes))
	copy(out, g.classes)
	return out
}

// BaseChain returns r followed by its ancestors.
func (g *Graph) BaseChain(r Ref) []Ref {
	var chain []Ref
	for cur := r; cur.Valid(); {
		c := g.Class(cur)
		if c == nil {
			break
		}
		chain = append(chain, cur)
		cur = c.Base
	}
	return chain
}

// InheritsFrom reports whether base appears in derived's base chain.
func (g *Graph) InheritsFrom(derived, base Ref) bool {
	for _, r := range g.BaseChain(derived) {
		if r == base {
			return true
		}
	}
	return false
}

// Implements reports whether a class in derived's base chain declares an
// implements clause naming iface or an interface extending it.
func (g *Graph) Implements(derived, iface Ref) bool {
	for _, r := range g.BaseChain(derived) {
		if impl := g.Class(r).Impl; impl.Valid() && g.InheritsFrom(impl, iface) {
			return true
		}
	}
	return false
}

// TagOf is the declared-type tag stored in meta descriptors.
func (g *Graph) TagOf(r Ref) abi.TypeTag {
	t := g.At(r)
	if t == nil {
		return abi.TagAny
	}
	switch t.Kind {
	case KindPrimitive:
		switch t.Prim {
		case PrimUndefined, PrimAny:
			return abi.TagAny
		case PrimNull:
			return abi.TagNull
		case PrimInt:
			return abi.TagInt
		case PrimNumber:
			return abi.TagNumber
		case PrimBoolean:
			return abi.TagBoolean
		case PrimString, PrimRawString:
			return abi.TagString
		case PrimVoid:
			return abi.TagVoid
		}
		return abi.TagAny
	case KindUnion:
		return abi.TagAny
	case KindFunction:
		return abi.TagFunction
	case KindArray:
		return abi.TagArray
	case KindClass, KindInterface:
		if id := t.Class.TypeID(); id != abi.DefaultTypeID {
			return id
		}
		return abi.TagAny
	case KindContext:
		return abi.TagClosureContext
	}
	return abi.TagAny
}

// DeclOf returns the declaration a class was built from, if any.
func (g *Graph) DeclOf(r Ref) frontend.Decl {
	if c := g.Class(r); c != nil {
		return c.Decl
	}
	return nil
}
