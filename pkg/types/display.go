package types

import (
	"sort"
	"strconv"
	"strings"
)

// String renders r for names and diagnostics.
func (g *Graph) String(r Ref) string {
	return g.render(r, 0)
}

func (g *Graph) render(r Ref, depth int) string {
	t := g.At(r)
	if t == nil {
		return "<invalid>"
	}
	if depth > 8 {
		return "..."
	}
	switch t.Kind {
	case KindPrimitive:
		return t.Prim.String()
	case KindArray:
		return g.render(t.Elem, depth+1) + "[]"
	case KindUnion:
		parts := make([]string, len(t.Union.Members))
		for i, m := range t.Union.Members {
			parts[i] = g.render(m, depth+1)
		}
		return strings.Join(parts, " | ")
	case KindFunction:
		return g.renderSig(t.Sig, depth)
	case KindClass, KindInterface:
		if t.Class.Name == "" {
			return "@object_type"
		}
		return t.Class.Name
	case KindTypeParam:
		return t.Param.Name
	case KindContext:
		if t.Ctx.Name != "" {
			return "@context:" + t.Ctx.Name
		}
		return "@context"
	}
	return "<unknown>"
}

func (g *Graph) renderSig(s *Signature, depth int) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		if p.Rest {
			sb.WriteString("...")
		}
		name := p.Name
		if name == "" {
			name = "p" + strconv.Itoa(i)
		}
		sb.WriteString(name)
		if p.Optional {
			sb.WriteByte('?')
		}
		sb.WriteString(": ")
		sb.WriteString(g.render(p.Type, depth+1))
	}
	sb.WriteString(") => ")
	sb.WriteString(g.render(s.Return, depth+1))
	return sb.String()
}

// Tag is the identity-preserving string used in specialization keys.
// Distinct classes never share a tag.
func (g *Graph) Tag(r Ref) string {
	t := g.At(r)
	if t == nil {
		return "?"
	}
	switch t.Kind {
	case KindPrimitive:
		return t.Prim.String()
	case KindArray:
		return g.Tag(t.Elem) + "[]"
	case KindUnion:
		parts := make([]string, len(t.Union.Members))
		for i, m := range t.Union.Members {
			parts[i] = g.Tag(m)
		}
		sort.Strings(parts)
		return strings.Join(parts, "|")
	case KindTypeParam:
		return "$" + t.Param.Name + "#" + strconv.Itoa(int(r))
	}
	return t.Kind.String() + "#" + strconv.Itoa(int(r))
}

// ArgSignature joins the tags of a type-argument list.
func (g *Graph) ArgSignature(args []Ref) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = g.Tag(a)
	}
	return strings.Join(parts, ",")
}

func (g *Graph) argDisplay(args []Ref) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = g.String(a)
	}
	return strings.Join(parts, ",")
}
