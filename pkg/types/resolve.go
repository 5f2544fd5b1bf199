package types

import (
	"fmt"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/diag"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/frontend"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
)

// Resolver turns declarations into graph nodes.
type Resolver struct {
	sess       *Session
	g          *Graph
	mod        *frontend.Module
	scopes     []map[string]Ref
	resolving  map[frontend.Decl]bool
	inHeritage map[Ref]bool
	deferred   map[Ref][]func() error
}

// NewResolver creates a resolver for mod in sess.
func NewResolver(sess *Session, mod *frontend.Module) *Resolver {
	return &Resolver{
		sess:       sess,
		g:          sess.Graph,
		mod:        mod,
		resolving:  make(map[frontend.Decl]bool),
		inHeritage: make(map[Ref]bool),
		deferred:   make(map[Ref][]func() error),
	}
}

// ResolveAll resolves every top-level declaration in source order.
func (r *Resolver) ResolveAll() error {
	for _, d := range r.mod.Decls {
		if _, err := r.Resolve(d); err != nil {
			return err
		}
	}
	for _, ref := range r.g.Classes() {
		if c := r.g.Class(ref); !c.complete {
			return diag.TypeResolution(c.Name, diag.Pos{}, "type never completed; its base is part of a cycle")
		}
	}
	return nil
}

// Resolve returns the type for d, building it on first request.
func (r *Resolver) Resolve(d frontend.Decl) (Ref, error) {
	if ref, ok := r.sess.decls[d]; ok {
		return ref, nil
	}
	if r.resolving[d] {
		return NoRef, diag.TypeResolution(d.DeclName(), d.Position(), "circular declaration")
	}
	r.resolving[d] = true
	defer delete(r.resolving, d)

	// Declarations nest inside the generic scopes of their users only through
	// explicit arguments, so each starts from a clean scope stack.
	saved := r.scopes
	r.scopes = nil
	defer func() { r.scopes = saved }()

	var (
		ref Ref
		err error
	)
	switch d := d.(type) {
	case *frontend.ClassDecl:
		ref, err = r.resolveClass(d)
	case *frontend.InterfaceDecl:
		ref, err = r.resolveInterface(d)
	case *frontend.FuncDecl:
		ref, err = r.resolveFunc(d)
	case *frontend.EnumDecl:
		ref, err = r.resolveEnum(d)
	case *frontend.TypeAliasDecl:
		ref, err = r.resolveAlias(d, nil)
	default:
		return NoRef, diag.Unimplemented("declaration %T", d)
	}
	if err != nil {
		return NoRef, err
	}
	logger.LogTypeResolved(d.DeclName(), r.g.Kind(ref).String())
	return ref, nil
}

func (r *Resolver) pushScope() map[string]Ref {
	m := make(map[string]Ref)
	r.scopes = append(r.scopes, m)
	return m
}

func (r *Resolver) popScope() {
	r.scopes = r.scopes[:len(r.scopes)-1]
}

func (r *Resolver) lookupParam(name string) (Ref, bool) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if p, ok := r.scopes[i][name]; ok {
			return p, true
		}
	}
	return NoRef, false
}

// declareTypeParams opens a generic scope holding decls owned by owner.
func (r *Resolver) declareTypeParams(owner Ref, decls []*frontend.TypeParamDecl) ([]Ref, error) {
	scope := r.pushScope()
	params := make([]Ref, len(decls))
	for i, tp := range decls {
		p := r.g.NewTypeParam(&TypeParam{Name: tp.Name, Index: i, Owner: owner})
		scope[tp.Name] = p
		params[i] = p
	}
	for i, tp := range decls {
		info := r.g.At(params[i]).Param
		if tp.Bound != nil {
			b, err := r.ResolveTypeExpr(tp.Bound)
			if err != nil {
				return nil, err
			}
			info.Bound = b
		}
		if tp.Default != nil {
			d, err := r.ResolveTypeExpr(tp.Default)
			if err != nil {
				return nil, err
			}
			info.Default = d
		}
	}
	return params, nil
}

func (r *Resolver) resolveClass(d *frontend.ClassDecl) (Ref, error) {
	c := newClass(d.Name)
	c.Decl = d
	c.IsDeclare = d.Declare
	ref := r.g.NewClass(c, false)
	r.sess.decls[d] = ref
	r.inHeritage[ref] = true

	params, err := r.declareTypeParams(ref, d.TypeParams)
	if err != nil {
		return NoRef, err
	}
	scope := r.scopes[len(r.scopes)-1]
	defer r.popScope()
	c.TypeParams = params

	var waits []Ref
	if len(d.Extends) > 1 {
		return NoRef, diag.TypeResolution(d.Name, d.Pos, "multiple base classes")
	}
	if len(d.Extends) == 1 {
		if c.Base, c.BaseTemplate, c.BaseArgs, err = r.heritage(d.Name, d.Extends[0]); err != nil {
			return NoRef, err
		}
		if r.g.Kind(c.Base) != KindClass {
			return NoRef, diag.TypeResolution(d.Name, d.Pos, "class extending a non-class %s", r.g.String(c.Base))
		}
		waits = append(waits, rootOf(c.Base, c.BaseTemplate))
	}
	if len(d.Implements) > 0 {
		if c.Impl, c.ImplTemplate, c.ImplArgs, err = r.heritage(d.Name, d.Implements[0]); err != nil {
			return NoRef, err
		}
	}

	delete(r.inHeritage, ref)
	return ref, r.whenComplete(waits, func() error {
		return r.withScope(scope, func() error {
			r.inherit(c, c.Base)
			return r.addMembers(ref, c, d.Members)
		})
	}, ref)
}

func (r *Resolver) resolveInterface(d *frontend.InterfaceDecl) (Ref, error) {
	c := newClass(d.Name)
	c.Decl = d
	ref := r.g.NewClass(c, true)
	r.sess.decls[d] = ref
	r.inHeritage[ref] = true

	params, err := r.declareTypeParams(ref, d.TypeParams)
	if err != nil {
		return NoRef, err
	}
	scope := r.scopes[len(r.scopes)-1]
	defer r.popScope()
	c.TypeParams = params

	var bases, waits []Ref
	for i, e := range d.Extends {
		base, tmpl, args, err := r.heritage(d.Name, e)
		if err != nil {
			return NoRef, err
		}
		if r.g.Kind(base) != KindInterface {
			return NoRef, diag.TypeResolution(d.Name, d.Pos, "interface extending a class %s", r.g.String(base))
		}
		if i == 0 {
			c.Base, c.BaseTemplate, c.BaseArgs = base, tmpl, args
		}
		bases = append(bases, base)
		waits = append(waits, rootOf(base, tmpl))
	}

	delete(r.inHeritage, ref)
	return ref, r.whenComplete(waits, func() error {
		return r.withScope(scope, func() error {
			for _, b := range bases {
				r.inherit(c, b)
			}
			return r.addMembers(ref, c, d.Members)
		})
	}, ref)
}

func rootOf(inst, template Ref) Ref {
	if template.Valid() {
		return template
	}
	return inst
}

// whenComplete runs build once every type in waits is complete, then marks
// ref complete and releases anything waiting on it. A base still in its own
// heritage phase is a cycle; a base busy building members is waited for.
func (r *Resolver) whenComplete(waits []Ref, build func() error, ref Ref) error {
	var run func() error
	run = func() error {
		for _, w := range waits {
			if !r.g.Class(w).complete {
				r.deferred[w] = append(r.deferred[w], run)
				return nil
			}
		}
		if err := build(); err != nil {
			return err
		}
		return r.complete(ref)
	}
	return run()
}

func (r *Resolver) complete(ref Ref) error {
	r.g.Class(ref).complete = true
	if err := r.sess.finishPending(ref); err != nil {
		return err
	}
	waiting := r.deferred[ref]
	delete(r.deferred, ref)
	for _, fn := range waiting {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) withScope(scope map[string]Ref, fn func() error) error {
	saved := r.scopes
	r.scopes = []map[string]Ref{scope}
	defer func() { r.scopes = saved }()
	return fn()
}

// heritage resolves an extends/implements clause eagerly and returns the
// instantiated type with the template and arguments it came from.
func (r *Resolver) heritage(owner string, e *frontend.TypeExpr) (Ref, Ref, []Ref, error) {
	if e.Kind != frontend.TypeNamed {
		return NoRef, NoRef, nil, diag.TypeResolution(owner, e.Pos, "heritage clause must name a type")
	}
	template, err := r.named(e.Name, e.Pos)
	if err != nil {
		return NoRef, NoRef, nil, err
	}
	if r.g.Class(template) == nil {
		return NoRef, NoRef, nil, diag.TypeResolution(owner, e.Pos, "heritage clause names non-object type %s", e.Name)
	}
	if r.inHeritage[template] {
		return NoRef, NoRef, nil, diag.TypeResolution(owner, e.Pos, "circular base %s", e.Name)
	}
	if len(e.Args) == 0 {
		return template, NoRef, nil, nil
	}
	args, err := r.typeArgs(template, e)
	if err != nil {
		return NoRef, NoRef, nil, err
	}
	inst, err := r.sess.Specialize(template, args)
	if err != nil {
		return NoRef, NoRef, nil, err
	}
	return inst, template, args, nil
}

// inherit copies base's instance members into c, base first.
func (r *Resolver) inherit(c *Class, base Ref) {
	bc := r.g.Class(base)
	if bc == nil {
		return
	}
	for _, m := range bc.Members {
		if c.MemberIndex(m.Name) >= 0 {
			continue
		}
		cp := *m
		cp.Own = false
		cp.Overridden = false
		c.Members = append(c.Members, &cp)
	}
}

func (r *Resolver) addMembers(owner Ref, c *Class, decls []*frontend.MemberDecl) error {
	for _, md := range decls {
		switch md.Kind {
		case frontend.MemberConstructor:
			sig, err := r.signature(owner, md.TypeParams, md.Params, nil)
			if err != nil {
				return err
			}
			s := r.g.Sig(sig)
			s.Name = c.Name + "|constructor"
			s.Return = owner
			s.Method = true
			c.Ctor = sig
		case frontend.MemberField:
			typ, err := r.typeOrAny(md.Type)
			if err != nil {
				return err
			}
			m := &Member{Name: md.Name, Kind: MemberField, Static: md.Static, Type: typ,
				Optional: md.Optional, Readonly: md.Readonly, Own: true}
			r.place(c, m)
		case frontend.MemberMethod:
			sig, err := r.signature(owner, md.TypeParams, md.Params, md.Return)
			if err != nil {
				return err
			}
			s := r.g.Sig(sig)
			s.Name = c.Name + "|" + md.Name
			s.Method = true
			s.Static = md.Static
			m := &Member{Name: md.Name, Kind: MemberMethod, Static: md.Static, Type: sig,
				Optional: md.Optional, Own: true}
			r.place(c, m)
		case frontend.MemberGetter, frontend.MemberSetter:
			if err := r.accessor(owner, c, md); err != nil {
				return err
			}
		default:
			return diag.Unimplemented("member kind %d of %s", md.Kind, c.Name)
		}
	}
	return nil
}

func (r *Resolver) accessor(owner Ref, c *Class, md *frontend.MemberDecl) error {
	typ, err := r.typeOrAny(md.Type)
	if err != nil {
		return err
	}
	list := &c.Members
	if md.Static {
		list = &c.Statics
	}
	var m *Member
	for _, cur := range *list {
		if cur.Name == md.Name && cur.Own && cur.Kind == MemberAccessor {
			m = cur
			break
		}
	}
	if m == nil {
		m = &Member{Name: md.Name, Kind: MemberAccessor, Static: md.Static, Type: typ, Own: true}
		r.place(c, m)
	}
	sig := &Signature{Owner: owner, Method: true, Static: md.Static}
	if md.Kind == frontend.MemberGetter {
		sig.Name = c.Name + "|get_" + md.Name
		sig.Return = typ
		m.Getter = r.g.NewFunction(sig)
		m.HasGetter = true
		m.Type = typ
	} else {
		sig.Name = c.Name + "|set_" + md.Name
		sig.Params = []Param{{Name: "value", Type: typ}}
		sig.Return = r.g.Prim(PrimVoid)
		m.Setter = r.g.NewFunction(sig)
		m.HasSetter = true
		if !m.HasGetter {
			m.Type = typ
		}
	}
	return nil
}

// place appends m or replaces the inherited member of the same name in its
// slot, marking the base's member overridden.
func (r *Resolver) place(c *Class, m *Member) {
	if m.Static {
		for i, cur := range c.Statics {
			if cur.Name == m.Name {
				c.Statics[i] = m
				return
			}
		}
		c.Statics = append(c.Statics, m)
		return
	}
	i := c.MemberIndex(m.Name)
	if i < 0 {
		c.Members = append(c.Members, m)
		return
	}
	if !c.Members[i].Own {
		for _, b := range r.g.BaseChain(c.Base) {
			if bm := r.g.Class(b).Member(m.Name); bm != nil {
				bm.Overridden = true
				break
			}
		}
	}
	c.Members[i] = m
}

func (r *Resolver) signature(owner Ref, tps []*frontend.TypeParamDecl, params []*frontend.ParamDecl, ret *frontend.TypeExpr) (Ref, error) {
	sig := &Signature{Owner: owner}
	ref := r.g.NewFunction(sig)
	if len(tps) > 0 {
		tp, err := r.declareTypeParams(ref, tps)
		if err != nil {
			return NoRef, err
		}
		defer r.popScope()
		sig.TypeParams = tp
	}
	for _, p := range params {
		t, err := r.typeOrAny(p.Type)
		if err != nil {
			return NoRef, err
		}
		if p.Rest && r.g.Kind(t) != KindArray {
			t = r.g.ArrayOf(t)
		}
		sig.Params = append(sig.Params, Param{Name: p.Name, Type: t, Optional: p.Optional, Rest: p.Rest})
	}
	if ret == nil {
		sig.Return = r.g.Prim(PrimVoid)
	} else {
		t, err := r.ResolveTypeExpr(ret)
		if err != nil {
			return NoRef, err
		}
		sig.Return = t
	}
	return ref, nil
}

func (r *Resolver) resolveFunc(d *frontend.FuncDecl) (Ref, error) {
	ref, err := r.signature(NoRef, d.TypeParams, d.Params, d.Return)
	if err != nil {
		return NoRef, err
	}
	s := r.g.Sig(ref)
	s.Name = d.Name
	s.Declare = d.Declare
	r.sess.decls[d] = ref
	return ref, nil
}

func (r *Resolver) resolveEnum(d *frontend.EnumDecl) (Ref, error) {
	seen := make(map[string]bool, len(d.Members))
	for _, m := range d.Members {
		if seen[m.Name] {
			return NoRef, diag.TypeResolution(d.Name, m.Pos, "duplicate enum member %s", m.Name)
		}
		seen[m.Name] = true
	}
	ref := r.g.Prim(PrimNumber)
	r.sess.decls[d] = ref
	return ref, nil
}

// resolveAlias expands an alias. Generic aliases are expanded per use and
// never cached.
func (r *Resolver) resolveAlias(d *frontend.TypeAliasDecl, args []Ref) (Ref, error) {
	if len(d.TypeParams) == 0 {
		ref, err := r.ResolveTypeExpr(d.Type)
		if err != nil {
			return NoRef, err
		}
		r.sess.decls[d] = ref
		return ref, nil
	}
	if len(args) != len(d.TypeParams) {
		return NoRef, diag.TypeResolution(d.Name, d.Pos, "wrong number of type arguments: got %d, want %d", len(args), len(d.TypeParams))
	}
	scope := r.pushScope()
	defer r.popScope()
	for i, tp := range d.TypeParams {
		scope[tp.Name] = args[i]
	}
	return r.ResolveTypeExpr(d.Type)
}

func (r *Resolver) typeOrAny(e *frontend.TypeExpr) (Ref, error) {
	if e == nil {
		return r.g.Prim(PrimAny), nil
	}
	return r.ResolveTypeExpr(e)
}

// ResolveTypeExpr resolves an annotation in the current generic scope.
func (r *Resolver) ResolveTypeExpr(e *frontend.TypeExpr) (Ref, error) {
	switch e.Kind {
	case frontend.TypeParamRef:
		if p, ok := r.lookupParam(e.Name); ok {
			return p, nil
		}
		return NoRef, diag.TypeResolution(e.Name, e.Pos, "unresolvable type parameter")
	case frontend.TypeArray:
		elem, err := r.typeOrAny(e.Elem)
		if err != nil {
			return NoRef, err
		}
		return r.g.ArrayOf(elem), nil
	case frontend.TypeUnion:
		members := make([]Ref, len(e.Types))
		for i, t := range e.Types {
			m, err := r.ResolveTypeExpr(t)
			if err != nil {
				return NoRef, err
			}
			members[i] = m
		}
		return r.g.NewUnion(members...), nil
	case frontend.TypeFunction:
		return r.signature(NoRef, nil, e.Params, e.Return)
	case frontend.TypeLiteral:
		return r.literal(e)
	case frontend.TypeNamed:
		return r.namedExpr(e)
	}
	return NoRef, diag.Unimplemented("type expression kind %v", e.Kind)
}

func (r *Resolver) literal(e *frontend.TypeExpr) (Ref, error) {
	if ref, ok := r.sess.literals[e]; ok {
		return ref, nil
	}
	c := newClass("")
	c.IsLiteral = true
	ref := r.g.NewClass(c, false)
	r.sess.literals[e] = ref
	if err := r.addMembers(ref, c, e.Members); err != nil {
		return NoRef, err
	}
	c.complete = true
	return ref, nil
}

func (r *Resolver) namedExpr(e *frontend.TypeExpr) (Ref, error) {
	if len(e.Args) == 0 {
		if p, ok := r.lookupParam(e.Name); ok {
			return p, nil
		}
	}
	if e.Name == abi.Array {
		elem := r.g.Prim(PrimAny)
		if len(e.Args) == 1 {
			var err error
			if elem, err = r.ResolveTypeExpr(e.Args[0]); err != nil {
				return NoRef, err
			}
		}
		return r.g.ArrayOf(elem), nil
	}
	if d, ok := r.mod.Lookup(e.Name); ok {
		if alias, ok := d.(*frontend.TypeAliasDecl); ok && len(alias.TypeParams) > 0 {
			args := make([]Ref, len(e.Args))
			for i, a := range e.Args {
				t, err := r.ResolveTypeExpr(a)
				if err != nil {
					return NoRef, err
				}
				args[i] = t
			}
			return r.resolveAlias(alias, args)
		}
	}

	template, err := r.named(e.Name, e.Pos)
	if err != nil {
		return NoRef, err
	}
	if len(e.Args) == 0 || len(r.g.TypeParamsOf(template)) == 0 {
		return template, nil
	}

	site := siteKey{template: template, pos: e.Pos}
	if e.Pos.Valid() {
		if ref, ok := r.sess.sites[site]; ok {
			return ref, nil
		}
	}
	args, err := r.typeArgs(template, e)
	if err != nil {
		return NoRef, err
	}
	ref, err := r.sess.Specialize(template, args)
	if err != nil {
		return NoRef, fmt.Errorf("specialize %s: %w", e.Name, err)
	}
	if e.Pos.Valid() {
		r.sess.sites[site] = ref
	}
	return ref, nil
}

// typeArgs resolves explicit arguments and fills trailing defaults.
func (r *Resolver) typeArgs(template Ref, e *frontend.TypeExpr) ([]Ref, error) {
	params := r.g.TypeParamsOf(template)
	if len(e.Args) > len(params) {
		return nil, diag.TypeResolution(e.Name, e.Pos, "wrong number of type arguments: got %d, want %d", len(e.Args), len(params))
	}
	args := make([]Ref, len(params))
	for i := range params {
		if i < len(e.Args) {
			t, err := r.ResolveTypeExpr(e.Args[i])
			if err != nil {
				return nil, err
			}
			args[i] = t
			continue
		}
		def := r.g.At(params[i]).Param.Default
		if !def.Valid() {
			return nil, diag.TypeResolution(e.Name, e.Pos, "wrong number of type arguments: got %d, want %d", len(e.Args), len(params))
		}
		args[i] = def
	}
	return args, nil
}

// named resolves a bare type name to a primitive, declaration or library class.
func (r *Resolver) named(name string, pos frontend.Pos) (Ref, error) {
	switch name {
	case "number", "f64":
		return r.g.Prim(PrimNumber), nil
	case "int", "i32":
		return r.g.Prim(PrimInt), nil
	case "i64":
		return r.g.Prim(PrimI64), nil
	case "f32":
		return r.g.Prim(PrimF32), nil
	case "boolean":
		return r.g.Prim(PrimBoolean), nil
	case "string":
		return r.g.Prim(PrimString), nil
	case "any", "anyref", "object", "unknown":
		return r.g.Prim(PrimAny), nil
	case "void":
		return r.g.Prim(PrimVoid), nil
	case "undefined":
		return r.g.Prim(PrimUndefined), nil
	case "null":
		return r.g.Prim(PrimNull), nil
	case "never":
		return r.g.Prim(PrimNever), nil
	}
	if d, ok := r.mod.Lookup(name); ok {
		return r.Resolve(d)
	}
	if abi.Contains(abi.FallbackConstructors, name) || name == abi.JSON {
		return r.sess.Library(name), nil
	}
	return NoRef, diag.TypeResolution(name, pos, "missing declaration for referenced symbol")
}
