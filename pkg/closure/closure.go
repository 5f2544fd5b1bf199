// Package closure lays out closure context frames.
//
// Design: every function body owns a frame; a block owns one only when it
// declares captured variables. Field 0 of a frame links to the enclosing
// frame, captured slot i lives in field i+1, and an access from an inner
// scope walks a fixed number of parent links.
package closure

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-set/v3"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/frontend"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

// Frame is one context frame.
type Frame struct {
	Index        int
	Name         string
	Scope        *frontend.Scope
	Parent       *Frame
	Depth        int
	Vars         []*frontend.VarDecl
	Types        []types.Ref
	Type         types.Ref
	PerIteration bool
}

// Slot is the position of v in f, or -1.
func (f *Frame) Slot(v *frontend.VarDecl) int {
	for i, cur := range f.Vars {
		if cur == v {
			return i
		}
	}
	return -1
}

// FieldIndex is the struct field holding slot.
func FieldIndex(slot int) int {
	return slot + 1
}

// Capture places one captured variable.
type Capture struct {
	Var   *frontend.VarDecl
	Frame *Frame
	Slot  int
}

// Access is how a use site reaches a captured variable.
type Access struct {
	Frame *Frame
	Slot  int
	Hops  int
}

// TypeResolver resolves variable annotations.
type TypeResolver interface {
	ResolveTypeExpr(*frontend.TypeExpr) (types.Ref, error)
}

// Result is the frame layout of one module.
type Result struct {
	Frames   []*Frame
	byScope  map[*frontend.Scope]*Frame
	captures map[*frontend.VarDecl]*Capture
	captured *set.Set[*frontend.VarDecl]
}

// Builder computes frames for a scope tree.
type Builder struct {
	g       *types.Graph
	resolve TypeResolver
	res     *Result
}

// NewBuilder creates a builder resolving variable types with resolve.
func NewBuilder(g *types.Graph, resolve TypeResolver) *Builder {
	return &Builder{g: g, resolve: resolve}
}

// Build analyses root and returns its frames.
func (b *Builder) Build(root *frontend.Scope) (*Result, error) {
	b.res = &Result{
		byScope:  make(map[*frontend.Scope]*Frame),
		captures: make(map[*frontend.VarDecl]*Capture),
		captured: set.New[*frontend.VarDecl](0),
	}
	root.Walk(b.detect)
	if err := b.visit(root, nil); err != nil {
		return nil, err
	}
	return b.res, nil
}

// detect marks variables referenced from a function nested below the
// function that declares them.
func (b *Builder) detect(s *frontend.Scope) {
	fn := s.NearestFunction()
	if fn == nil {
		return
	}
	for _, ref := range s.Refs {
		v := s.Lookup(ref.Name)
		if v == nil || v.Scope == nil {
			continue
		}
		if fn.Encloses(v.Scope) {
			continue
		}
		if v.Scope.NearestFunction() == nil {
			continue
		}
		b.res.captured.Insert(v)
	}
}

func (b *Builder) visit(s *frontend.Scope, parent *Frame) error {
	switch s.Kind {
	case frontend.ScopeFunction:
		f, err := b.frame(s, parent)
		if err != nil {
			return err
		}
		parent = f
	case frontend.ScopeBlock:
		if b.hasCaptured(s) {
			f, err := b.frame(s, parent)
			if err != nil {
				return err
			}
			parent = f
		}
	}
	for _, c := range s.Children {
		if err := b.visit(c, parent); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) hasCaptured(s *frontend.Scope) bool {
	for _, v := range s.Params {
		if b.res.captured.Contains(v) {
			return true
		}
	}
	for _, v := range s.Vars {
		if b.res.captured.Contains(v) {
			return true
		}
	}
	return false
}

func (b *Builder) frame(s *frontend.Scope, parent *Frame) (*Frame, error) {
	f := &Frame{
		Index:        len(b.res.Frames),
		Scope:        s,
		Parent:       parent,
		PerIteration: s.PerIteration,
	}
	f.Name = "@context" + strconv.Itoa(f.Index)
	if s.Name != "" {
		f.Name += "_" + s.Name
	}
	if parent != nil {
		f.Depth = parent.Depth + 1
	}

	vars := make([]*frontend.VarDecl, 0, len(s.Params)+len(s.Vars))
	vars = append(vars, s.Params...)
	vars = append(vars, s.Vars...)
	for _, v := range vars {
		if !b.res.captured.Contains(v) {
			continue
		}
		t := b.g.Prim(types.PrimAny)
		if v.Type != nil {
			var err error
			if t, err = b.resolve.ResolveTypeExpr(v.Type); err != nil {
				return nil, fmt.Errorf("captured variable %s: %w", v.Name, err)
			}
		}
		b.res.captures[v] = &Capture{Var: v, Frame: f, Slot: len(f.Vars)}
		f.Vars = append(f.Vars, v)
		f.Types = append(f.Types, t)
	}

	ctx := &types.Context{Name: f.Name, Captured: f.Types}
	if parent != nil {
		ctx.Parent = parent.Type
	}
	f.Type = b.g.NewContext(ctx)

	b.res.Frames = append(b.res.Frames, f)
	b.res.byScope[s] = f
	logger.LogClosureFrame(f.Name, f.Depth, len(f.Vars))
	return f, nil
}

// OwnFrame is the frame created for s, or nil.
func (r *Result) OwnFrame(s *frontend.Scope) *Frame {
	return r.byScope[s]
}

// FrameOf is the innermost frame enclosing s, s included.
func (r *Result) FrameOf(s *frontend.Scope) *Frame {
	for cur := s; cur != nil; cur = cur.Parent {
		if f, ok := r.byScope[cur]; ok {
			return f
		}
	}
	return nil
}

// IsCaptured reports whether v lives in a frame.
func (r *Result) IsCaptured(v *frontend.VarDecl) bool {
	return r.captured.Contains(v)
}

// Capture returns where v is stored.
func (r *Result) Capture(v *frontend.VarDecl) (*Capture, bool) {
	c, ok := r.captures[v]
	return c, ok
}

// Access computes the parent-link walk from use to captured variable v.
func (r *Result) Access(use *frontend.Scope, v *frontend.VarDecl) (Access, error) {
	c, ok := r.captures[v]
	if !ok {
		return Access{}, fmt.Errorf("variable %s is not captured", v.Name)
	}
	hops := 0
	for f := r.FrameOf(use); f != nil; f = f.Parent {
		if f == c.Frame {
			return Access{Frame: c.Frame, Slot: c.Slot, Hops: hops}, nil
		}
		hops++
	}
	return Access{}, fmt.Errorf("variable %s is not visible from scope %s", v.Name, use.Name)
}

// ParentField is the struct field linking a frame to its parent.
const ParentField = abi.ContextParentIndex
