package types

// IsGeneric reports whether r still mentions an unsubstituted type parameter.
// Class members are not visited: a class is generic through its own
// parameters or its arguments only.
func (g *Graph) IsGeneric(r Ref) bool {
	t := g.At(r)
	if t == nil {
		return false
	}
	switch t.Kind {
	case KindTypeParam:
		return true
	case KindArray:
		return g.IsGeneric(t.Elem)
	case KindUnion:
		for _, m := range t.Union.Members {
			if g.IsGeneric(m) {
				return true
			}
		}
	case KindFunction:
		s := t.Sig
		if len(s.TypeParams) > 0 || g.IsGeneric(s.Return) {
			return true
		}
		for _, p := range s.Params {
			if g.IsGeneric(p.Type) {
				return true
			}
		}
	case KindClass, KindInterface:
		c := t.Class
		if len(c.TypeParams) > 0 {
			return true
		}
		for _, a := range c.Args {
			if g.IsGeneric(a) {
				return true
			}
		}
	case KindContext:
		for _, c := range t.Ctx.Captured {
			if g.IsGeneric(c) {
				return true
			}
		}
	}
	return false
}

// TypeParamsOf returns the parameters a template is specialized over.
func (g *Graph) TypeParamsOf(r Ref) []Ref {
	if c := g.Class(r); c != nil {
		return c.TypeParams
	}
	if s := g.Sig(r); s != nil {
		return s.TypeParams
	}
	return nil
}

// Equal is structural equality. Unions compare as sets; classes compare by
// identity.
func (g *Graph) Equal(a, b Ref) bool {
	if a == b {
		return true
	}
	ta, tb := g.At(a), g.At(b)
	if ta == nil || tb == nil || ta.Kind != tb.Kind {
		return false
	}
	switch ta.Kind {
	case KindPrimitive:
		return ta.Prim == tb.Prim
	case KindArray:
		return g.Equal(ta.Elem, tb.Elem)
	case KindUnion:
		if ta.Union.SameMembers(tb.Union) {
			return true
		}
		if len(ta.Union.Members) != len(tb.Union.Members) {
			return false
		}
		for _, m := range ta.Union.Members {
			found := false
			for _, n := range tb.Union.Members {
				if g.Equal(m, n) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case KindFunction:
		sa, sb := ta.Sig, tb.Sig
		if len(sa.Params) != len(sb.Params) || !g.Equal(sa.Return, sb.Return) {
			return false
		}
		for i := range sa.Params {
			pa, pb := sa.Params[i], sb.Params[i]
			if pa.Optional != pb.Optional || pa.Rest != pb.Rest || !g.Equal(pa.Type, pb.Type) {
				return false
			}
		}
		return true
	}
	return false
}
