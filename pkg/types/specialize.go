package types

import (
	"strings"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/diag"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
)

// Specialize instantiates a generic template with concrete arguments.
// Repeated requests with equal argument tags return the same handle.
// A non-generic input is returned unchanged.
func (s *Session) Specialize(template Ref, args []Ref) (Ref, error) {
	return s.specialize(template, args, "")
}

// SpecializeNamed is Specialize with an explicit result name. The name is
// part of the cache key, so a base reached through a derived instantiation
// never aliases a direct instantiation of that base.
func (s *Session) SpecializeNamed(template Ref, args []Ref, name string) (Ref, error) {
	return s.specialize(template, args, name)
}

func (s *Session) specialize(template Ref, args []Ref, name string) (Ref, error) {
	g := s.Graph
	if !g.IsGeneric(template) {
		return template, nil
	}
	params := g.TypeParamsOf(template)
	if len(params) == 0 {
		return template, nil
	}
	if len(args) != len(params) {
		return NoRef, diag.TypeResolution(g.String(template), diag.Pos{},
			"wrong number of type arguments: got %d, want %d", len(args), len(params))
	}
	if name == "" && sameRefs(params, args) {
		return template, nil
	}

	sig := g.ArgSignature(args)
	key := specKey{template: template, sig: sig}
	if name != "" {
		key.sig += "@" + name
	}
	if r, ok := s.specs[key]; ok {
		logger.LogSpecialization(g.String(template), key.sig, true)
		return r, nil
	}
	logger.LogSpecialization(g.String(template), key.sig, false)

	sp := &specializer{sess: s, g: g, template: template, subst: make(map[Ref]Ref, len(args))}
	for i, p := range params {
		sp.subst[p] = args[i]
	}

	switch g.Kind(template) {
	case KindClass, KindInterface:
		return sp.class(key, args, name)
	case KindFunction:
		r, err := sp.sig(template)
		if err != nil {
			return NoRef, err
		}
		s.specs[key] = r
		return r, nil
	}
	r, err := sp.clone(template)
	if err != nil {
		return NoRef, err
	}
	s.specs[key] = r
	return r, nil
}

func sameRefs(a, b []Ref) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// specializer clones one template under a positional substitution.
type specializer struct {
	sess     *Session
	g        *Graph
	template Ref
	self     Ref
	subst    map[Ref]Ref
}

func (sp *specializer) class(key specKey, args []Ref, name string) (Ref, error) {
	g := sp.g
	tc := g.Class(sp.template)
	if name == "" {
		name = tc.Name + "<" + g.argDisplay(args) + ">"
	}
	nc := newClass(name)
	nc.GenericOwner = sp.template
	nc.Args = args
	nc.IsLiteral = tc.IsLiteral
	nc.IsDeclare = tc.IsDeclare
	nc.IsLibrary = tc.IsLibrary
	nc.Decl = tc.Decl
	for _, a := range args {
		if g.Kind(a) == KindTypeParam {
			nc.TypeParams = append(nc.TypeParams, a)
		}
	}

	ref := g.NewClass(nc, g.Kind(sp.template) == KindInterface)
	sp.self = ref
	sp.sess.specs[key] = ref

	if !tc.complete {
		sp.sess.pending[sp.template] = append(sp.sess.pending[sp.template], pendingSpec{sp: sp, ref: ref})
		return ref, nil
	}
	if err := sp.fill(ref); err != nil {
		return NoRef, err
	}
	return ref, nil
}

// fill copies the template's members into the instantiation at ref.
func (sp *specializer) fill(ref Ref) error {
	g := sp.g
	tc := g.Class(sp.template)
	nc := g.Class(ref)

	var err error
	if nc.Base, nc.BaseTemplate, nc.BaseArgs, err = sp.heritage(tc.Base, tc.BaseTemplate, tc.BaseArgs, nc.Name, true); err != nil {
		return err
	}
	if nc.Impl, nc.ImplTemplate, nc.ImplArgs, err = sp.heritage(tc.Impl, tc.ImplTemplate, tc.ImplArgs, nc.Name, false); err != nil {
		return err
	}

	if nc.Members, err = sp.members(tc.Members); err != nil {
		return err
	}
	if nc.Statics, err = sp.members(tc.Statics); err != nil {
		return err
	}
	if tc.Ctor.Valid() {
		if nc.Ctor, err = sp.sig(tc.Ctor); err != nil {
			return err
		}
		g.Sig(nc.Ctor).Return = ref
	}
	nc.complete = true
	return nil
}

// heritage recomputes a base or implemented type through the current
// substitution. A generic base gets a name derived from the instantiation
// that reached it.
func (sp *specializer) heritage(cur, template Ref, args []Ref, derived string, named bool) (Ref, Ref, []Ref, error) {
	if !cur.Valid() || !template.Valid() || !sp.g.IsGeneric(cur) {
		return cur, template, args, nil
	}
	eff := make([]Ref, len(args))
	for i, a := range args {
		r, err := sp.clone(a)
		if err != nil {
			return NoRef, NoRef, nil, err
		}
		eff[i] = r
	}
	name := ""
	if named {
		name = derived + "_" + lastSegment(sp.g.Class(template).Name)
	}
	r, err := sp.sess.specialize(template, eff, name)
	return r, template, eff, err
}

func lastSegment(name string) string {
	parts := strings.Split(name, "_")
	return parts[len(parts)-1]
}

func (sp *specializer) members(list []*Member) ([]*Member, error) {
	out := make([]*Member, len(list))
	for i, m := range list {
		nm := *m
		var err error
		if nm.Type, err = sp.clone(m.Type); err != nil {
			return nil, err
		}
		if nm.Getter, err = sp.clone(m.Getter); err != nil {
			return nil, err
		}
		if nm.Setter, err = sp.clone(m.Setter); err != nil {
			return nil, err
		}
		out[i] = &nm
	}
	return out, nil
}

func (sp *specializer) clone(r Ref) (Ref, error) {
	g := sp.g
	if !r.Valid() {
		return r, nil
	}
	if r == sp.template && sp.self.Valid() {
		return sp.self, nil
	}
	if !g.IsGeneric(r) {
		return r, nil
	}
	t := g.At(r)
	switch t.Kind {
	case KindTypeParam:
		if v, ok := sp.subst[r]; ok {
			return v, nil
		}
		return r, nil
	case KindArray:
		e, err := sp.clone(t.Elem)
		if err != nil {
			return NoRef, err
		}
		return g.ArrayOf(e), nil
	case KindUnion:
		members := make([]Ref, len(t.Union.Members))
		for i, m := range t.Union.Members {
			c, err := sp.clone(m)
			if err != nil {
				return NoRef, err
			}
			members[i] = c
		}
		return g.NewUnion(members...), nil
	case KindFunction:
		return sp.sig(r)
	case KindClass, KindInterface:
		c := t.Class
		if !c.GenericOwner.Valid() {
			return r, nil
		}
		args := make([]Ref, len(c.Args))
		for i, a := range c.Args {
			n, err := sp.clone(a)
			if err != nil {
				return NoRef, err
			}
			args[i] = n
		}
		return sp.sess.specialize(c.GenericOwner, args, "")
	case KindContext:
		nc := &Context{Name: t.Ctx.Name, Captured: make([]Ref, len(t.Ctx.Captured))}
		var err error
		if nc.Parent, err = sp.clone(t.Ctx.Parent); err != nil {
			return NoRef, err
		}
		for i, c := range t.Ctx.Captured {
			if nc.Captured[i], err = sp.clone(c); err != nil {
				return NoRef, err
			}
		}
		return g.NewContext(nc), nil
	}
	return r, nil
}

// sig clones a function type. A method whose result is the class being
// specialized gets the new class without descending into it again.
func (sp *specializer) sig(r Ref) (Ref, error) {
	g := sp.g
	s := g.Sig(r)
	ns := *s
	ns.Params = make([]Param, len(s.Params))
	for i, p := range s.Params {
		t, err := sp.clone(p.Type)
		if err != nil {
			return NoRef, err
		}
		p.Type = t
		ns.Params[i] = p
	}
	switch {
	case s.Return == sp.template && sp.self.Valid():
		ns.Return = sp.self
	default:
		ret, err := sp.clone(s.Return)
		if err != nil {
			return NoRef, err
		}
		ns.Return = ret
	}
	ns.TypeParams = nil
	for _, p := range s.TypeParams {
		if _, ok := sp.subst[p]; !ok {
			ns.TypeParams = append(ns.TypeParams, p)
		}
	}
	if s.Owner == sp.template && sp.self.Valid() {
		ns.Owner = sp.self
	}
	return g.NewFunction(&ns), nil
}

// finishPending fills instantiations requested while template was incomplete.
func (s *Session) finishPending(template Ref) error {
	list := s.pending[template]
	delete(s.pending, template)
	for _, p := range list {
		if err := p.sp.fill(p.ref); err != nil {
			return err
		}
	}
	return nil
}
