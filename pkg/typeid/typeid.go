// Package typeid assigns structural identities to object types.
//
// Design: two types with the same canonical shape share an id, so a value
// typed by one interface can be checked against another with one integer
// compare. Recursive shapes cannot be described before their own id exists;
// the entry of each cycle takes a fresh id and the cycle is recorded as a
// recursion group for type-section emission.
package typeid

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

// Allocator runs the two allocation phases over one session.
type Allocator struct {
	sess *types.Session
	g    *types.Graph

	refs      map[types.Ref][]types.Ref
	visiting  *set.Set[types.Ref]
	processed *set.Set[types.Ref]
	loopEntry types.Ref
}

// New creates an allocator for sess.
func New(sess *types.Session) *Allocator {
	return &Allocator{
		sess:      sess,
		g:         sess.Graph,
		refs:      make(map[types.Ref][]types.Ref),
		visiting:  set.New[types.Ref](0),
		processed: set.New[types.Ref](0),
	}
}

// Eligible reports whether r receives a structural id: a complete,
// concrete, user-declared class or interface.
func Eligible(g *types.Graph, r types.Ref) bool {
	c := g.Class(r)
	if c == nil || c.IsLibrary || !c.Complete() {
		return false
	}
	return !g.IsGeneric(r)
}

// AllocateAll builds the reference graph and assigns every eligible type.
func (a *Allocator) AllocateAll() error {
	classes := a.g.Classes()
	a.BuildReferenceGraph(classes)
	for _, r := range classes {
		if !Eligible(a.g, r) {
			continue
		}
		if err := a.Allocate(r); err != nil {
			return err
		}
	}
	return nil
}

// BuildReferenceGraph records, for every eligible class, the object types
// its instance fields and instance method signatures mention.
func (a *Allocator) BuildReferenceGraph(classes []types.Ref) {
	for _, r := range classes {
		if !Eligible(a.g, r) {
			continue
		}
		seen := set.New[types.Ref](0)
		var out []types.Ref
		for _, m := range a.g.Class(r).Members {
			a.collect(m.Type, seen, &out)
			a.collect(m.Getter, seen, &out)
			a.collect(m.Setter, seen, &out)
		}
		a.refs[r] = out
	}
}

func (a *Allocator) collect(r types.Ref, seen *set.Set[types.Ref], out *[]types.Ref) {
	t := a.g.At(r)
	if t == nil {
		return
	}
	switch t.Kind {
	case types.KindClass, types.KindInterface:
		if Eligible(a.g, r) && seen.Insert(r) {
			*out = append(*out, r)
		}
	case types.KindArray:
		a.collect(t.Elem, seen, out)
	case types.KindUnion:
		for _, m := range t.Union.Members {
			a.collect(m, seen, out)
		}
	case types.KindFunction:
		for _, p := range t.Sig.Params {
			a.collect(p.Type, seen, out)
		}
		a.collect(t.Sig.Return, seen, out)
	}
}

// Refs returns the recorded references of r.
func (a *Allocator) Refs(r types.Ref) []types.Ref {
	return a.refs[r]
}

// Allocate assigns r and everything reachable from it.
func (a *Allocator) Allocate(r types.Ref) error {
	c := a.g.Class(r)
	if a.processed.Contains(r) {
		return nil
	}
	if a.visiting.Contains(r) {
		// Cycle: the entry takes a fresh id so the rest of the cycle can
		// describe itself.
		a.visiting.Remove(r)
		a.processed.Insert(r)
		id := a.next()
		if err := a.assign(c, id, true); err != nil {
			return err
		}
		a.loopEntry = r
		a.sess.IDs.Groups = append(a.sess.IDs.Groups, nil)
		return nil
	}
	if c.TypeID() != abi.DefaultTypeID {
		a.processed.Insert(r)
		return nil
	}

	a.visiting.Insert(r)
	for _, ref := range a.refs[r] {
		if err := a.Allocate(ref); err != nil {
			return err
		}
	}
	if a.visiting.Contains(r) {
		a.visiting.Remove(r)
		if err := a.assign(c, a.idForShape(Shape(a.g, r)), false); err != nil {
			return err
		}
		a.processed.Insert(r)
	}

	if a.loopEntry.Valid() {
		groups := a.sess.IDs.Groups
		last := len(groups) - 1
		groups[last] = append(groups[last], r)
		if r == a.loopEntry {
			a.loopEntry = types.NoRef
			logger.LogRecursionGroup(last, len(groups[last]))
		}
	}
	return nil
}

func (a *Allocator) assign(c *types.Class, id abi.TypeTag, recursive bool) error {
	if err := c.AssignTypeID(id); err != nil {
		return fmt.Errorf("allocate type id: %w", err)
	}
	if c.Name == "" {
		c.Name = "@object_type" + strconv.Itoa(int(id))
	}
	logger.LogTypeIDAssigned(c.Name, int32(id), recursive)
	return nil
}

func (a *Allocator) next() abi.TypeTag {
	id := a.sess.IDs.Next
	a.sess.IDs.Next += abi.TypeIDStride
	return id
}

func (a *Allocator) idForShape(shape string) abi.TypeTag {
	if id, ok := a.sess.IDs.ByShape[shape]; ok {
		return id
	}
	id := a.next()
	a.sess.IDs.ByShape[shape] = id
	return id
}

// Shape is the canonical description of r's instance layout. Object-typed
// members are rendered by id, so referenced types must be assigned first.
func Shape(g *types.Graph, r types.Ref) string {
	var sb strings.Builder
	c := g.Class(r)
	for _, f := range c.InstanceFields() {
		writeMember(&sb, g, f.Name, f.Optional, f.Type, "")
	}
	for _, m := range c.Methods() {
		switch m.Kind {
		case types.MemberMethod:
			writeMember(&sb, g, m.Name, m.Optional, m.Type, "(m)")
		case types.MemberAccessor:
			if m.HasGetter {
				writeMember(&sb, g, m.Name, false, m.Getter, "(g)")
			}
			if m.HasSetter {
				writeMember(&sb, g, m.Name, false, m.Setter, "(s)")
			}
		}
	}
	return sb.String()
}

func writeMember(sb *strings.Builder, g *types.Graph, name string, optional bool, typ types.Ref, suffix string) {
	sb.WriteString(name)
	if optional {
		sb.WriteString("?: ")
	} else {
		sb.WriteString(": ")
	}
	sb.WriteString(TypeString(g, typ))
	sb.WriteString(suffix)
	sb.WriteByte(',')
}

// TypeString renders one member type inside a shape description.
func TypeString(g *types.Graph, r types.Ref) string {
	t := g.At(r)
	if t == nil {
		return "unknown"
	}
	switch t.Kind {
	case types.KindPrimitive:
		return t.Prim.String()
	case types.KindUnion:
		parts := make([]string, len(t.Union.Members))
		for i, m := range t.Union.Members {
			parts[i] = TypeString(g, m)
		}
		sort.Strings(parts)
		return strings.Join(parts, "|")
	case types.KindArray:
		return TypeString(g, t.Elem) + "[]"
	case types.KindClass, types.KindInterface:
		return strconv.Itoa(int(t.Class.TypeID()))
	case types.KindFunction:
		parts := make([]string, len(t.Sig.Params))
		for i, p := range t.Sig.Params {
			s := TypeString(g, p.Type)
			switch {
			case p.Rest:
				s = "..." + s
			case p.Optional:
				s = "?" + s
			}
			parts[i] = s
		}
		return "(" + strings.Join(parts, ",") + ")=>" + TypeString(g, t.Sig.Return)
	case types.KindTypeParam:
		return t.Param.Name
	}
	return "unknown"
}

// ImplID is the id of the interface r implements, or 0.
func ImplID(g *types.Graph, r types.Ref) abi.TypeTag {
	c := g.Class(r)
	if c == nil || !c.Impl.Valid() {
		return 0
	}
	if ic := g.Class(c.Impl); ic != nil && ic.TypeID() != abi.DefaultTypeID {
		return ic.TypeID()
	}
	return 0
}
