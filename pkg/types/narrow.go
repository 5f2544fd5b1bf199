package types

import "github.com/GriffinCanCode/tswasm-compiler/pkg/logger"

// IsUnionWithUndefined reports whether r is T | undefined.
func (g *Graph) IsUnionWithUndefined(r Ref) bool {
	u := g.UnionOf(r)
	return u != nil && len(u.Members) == 2 && u.Has(g.Prim(PrimUndefined))
}

// StaticTypeOf strips undefined from T | undefined and returns T.
// Every other type is returned unchanged.
func (g *Graph) StaticTypeOf(r Ref) Ref {
	if !g.IsUnionWithUndefined(r) {
		return r
	}
	for _, m := range g.UnionOf(r).Members {
		if !g.IsPrim(m, PrimUndefined) {
			return m
		}
	}
	return r
}

// Narrow keeps the members of a union accepted by keep.
func (g *Graph) Narrow(r Ref, keep func(Ref) bool) Ref {
	u := g.UnionOf(r)
	if u == nil {
		return r
	}
	var kept []Ref
	for _, m := range u.Members {
		if keep(m) {
			kept = append(kept, m)
		}
	}
	logger.Debug("Narrowing union type", "types", len(u.Members), "kept", len(kept))
	if len(kept) == len(u.Members) {
		return r
	}
	return g.NewUnion(kept...)
}

// WithoutNullish removes null and undefined from a union.
func (g *Graph) WithoutNullish(r Ref) Ref {
	return g.Narrow(r, func(m Ref) bool {
		return !g.IsPrim(m, PrimNull) && !g.IsPrim(m, PrimUndefined)
	})
}

// Merge joins the types flowing out of different control-flow paths.
func (g *Graph) Merge(types ...Ref) Ref {
	switch len(types) {
	case 0:
		return g.Prim(PrimNever)
	case 1:
		return types[0]
	}
	first := types[0]
	same := true
	for _, t := range types[1:] {
		if !g.Equal(first, t) {
			same = false
			break
		}
	}
	if same {
		return first
	}
	return g.NewUnion(types...)
}
