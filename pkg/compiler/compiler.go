// Package compiler - Phase driver for one declaration unit
// Design: each phase reads only what earlier phases produced. Type ids are
// allocated once the whole graph exists, slot tables and metas are fixed
// before any function is lowered, and the data segment is copied into the
// module last because lowering interns member names as it goes.
package compiler

import (
	"fmt"
	"sort"
	"time"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/closure"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/config"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/emit"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/frontend"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/ir"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/layout"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/lower"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/typeid"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

// ProgramFunc builds the function bodies of a unit once its declarations
// are resolved.
type ProgramFunc func(b *ir.Builder, sess *types.Session) error

// Unit is everything one compilation produced.
type Unit struct {
	Config  config.Build
	Source  *frontend.Module
	Session *types.Session
	Graph   *types.Graph

	// Classes lists every class and interface with a slot table, in graph
	// order.
	Classes []types.Ref
	Tables  map[types.Ref]*layout.Table
	Metas   map[types.Ref]*layout.Meta
	Pool    *layout.DataPool

	Program *ir.Program
	Frames  *closure.Result
	Module  *emit.Module

	resolver *types.Resolver
	fixer    *layout.Fixer
	ids      *typeid.Allocator
}

// Analyze resolves declarations, allocates type ids and fixes slot tables
// and meta descriptors. It does not need function bodies.
func Analyze(cfg config.Build, src *frontend.Module) (*Unit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	sess := types.NewSession()
	u := &Unit{
		Config:  cfg,
		Source:  src,
		Session: sess,
		Graph:   sess.Graph,
		Tables:  make(map[types.Ref]*layout.Table),
		Metas:   make(map[types.Ref]*layout.Meta),
		Pool:    layout.NewDataPool(layout.DefaultDataBase),
		fixer:   layout.NewFixer(sess.Graph),
		ids:     typeid.New(sess),
	}

	logger.LogPhase("resolve")
	u.resolver = types.NewResolver(sess, src)
	if err := u.resolver.ResolveAll(); err != nil {
		logger.LogError("resolve", src.Name, err.Error())
		return nil, err
	}
	logger.LogPhaseComplete("resolve", u.Graph.Len())

	if err := u.identify(); err != nil {
		return nil, err
	}
	return u, nil
}

// identify allocates type ids and fixes slot tables for every eligible type
// that has none yet. It runs once after resolution and again after the
// function bodies are built, since bodies can reach new specializations.
func (u *Unit) identify() error {
	logger.LogPhase("typeid")
	if err := u.ids.AllocateAll(); err != nil {
		logger.LogError("typeid", u.Source.Name, err.Error())
		return err
	}
	logger.LogPhaseComplete("typeid", len(u.Session.IDs.ByShape))

	logger.LogPhase("fixup")
	if err := u.fixup(); err != nil {
		logger.LogError("fixup", u.Source.Name, err.Error())
		return err
	}
	logger.LogPhaseComplete("fixup", len(u.Tables))
	return nil
}

// fixup builds slot tables, records impl ids and places metas for the
// classes not yet fixed.
func (u *Unit) fixup() error {
	g := u.Graph
	var added []types.Ref
	for _, r := range g.Classes() {
		if _, done := u.Tables[r]; done || !typeid.Eligible(g, r) {
			continue
		}
		t, err := u.fixer.Table(r)
		if err != nil {
			return err
		}
		u.Classes = append(u.Classes, r)
		u.Tables[r] = t
		added = append(added, r)
	}
	for _, r := range added {
		c := g.Class(r)
		if !c.Impl.Valid() {
			continue
		}
		iface, ok := u.Tables[c.Impl]
		if !ok {
			continue
		}
		if layout.ImplCompatible(u.Tables[r], iface) {
			u.Tables[r].ImplID = typeid.ImplID(g, r)
		} else {
			logger.LogFallback(c.Name, iface.Name, "implemented interface layout differs")
		}
	}
	log := logger.WithGroup("meta")
	for _, r := range added {
		m := layout.BuildMeta(u.Tables[r])
		u.Metas[r] = m
		addr := u.Pool.AddMeta(m)
		log.Debug("Descriptor placed", "type", m.Name, "id", m.TypeID, "entries", len(m.Entries), "addr", addr)
	}
	return nil
}

// Compile runs every phase over src; program supplies the function bodies.
func Compile(cfg config.Build, src *frontend.Module, program ProgramFunc) (*Unit, error) {
	start := time.Now()
	u, err := Analyze(cfg, src)
	if err != nil {
		logger.LogCompilerComplete(false, time.Since(start).String())
		return nil, err
	}
	if err := u.lower(program); err != nil {
		logger.LogCompilerComplete(false, time.Since(start).String())
		return nil, err
	}
	logger.LogCompilerComplete(true, time.Since(start).String())
	return u, nil
}

func (u *Unit) lower(program ProgramFunc) error {
	logger.LogPhase("ir")
	b := ir.NewBuilder(u.Session, u.resolver, u.Source)
	if program != nil {
		if err := program(b, u.Session); err != nil {
			return fmt.Errorf("build program: %w", err)
		}
	}
	prog, err := b.Program()
	if err != nil {
		return err
	}
	u.Program = prog
	logger.LogPhaseComplete("ir", len(prog.Functions))

	logger.LogPhase("closure")
	frames, err := closure.NewBuilder(u.Graph, u.resolver).Build(u.Source.Root)
	if err != nil {
		logger.LogError("closure", u.Source.Name, err.Error())
		return err
	}
	u.Frames = frames
	logger.LogPhaseComplete("closure", len(frames.Frames))

	if err := u.identify(); err != nil {
		return err
	}

	logger.LogPhase("lower")
	u.Module = emit.NewModule()
	l := lower.New(lower.Env{
		Graph:  u.Graph,
		Config: u.Config,
		Module: u.Module,
		Prog:   prog,
		Frames: frames,
		Fixer:  u.fixer,
		Pool:   u.Pool,
	})
	if err := u.register(); err != nil {
		return err
	}
	if err := l.LowerAll(); err != nil {
		return err
	}
	u.Module.DataBase = u.Pool.Base()
	u.Module.Data = u.Pool.Bytes()
	logger.With("unit", u.Source.Name).Debug("Data segment", "base", u.Module.DataBase, "bytes", len(u.Module.Data))
	logger.LogPhaseComplete("lower", len(u.Module.Funcs))

	logger.LogPhase("validate")
	if err := emit.ValidateModule(u.Module); err != nil {
		logger.LogError("validate", u.Source.Name, err.Error())
		return err
	}
	logger.LogPhaseComplete("validate", len(u.Module.Funcs))
	return nil
}

// register declares every class layout and the recursion groups.
func (u *Unit) register() error {
	m := layout.Mapper{G: u.Graph, StringRef: u.Config.EnableStringRef}
	for _, r := range u.Classes {
		if err := m.Register(u.Module, u.Tables[r]); err != nil {
			return err
		}
	}
	for _, group := range u.RecGroups() {
		u.Module.RecGroup(group)
	}
	return nil
}

// RecGroups names the object structs of each recursion group, sorted
// within the group.
func (u *Unit) RecGroups() [][]string {
	var out [][]string
	for _, group := range u.Session.IDs.Groups {
		names := make([]string, 0, len(group))
		for _, r := range group {
			if c := u.Graph.Class(r); c != nil {
				names = append(names, layout.ObjectStruct(c.Name))
			}
		}
		sort.Strings(names)
		out = append(out, names)
	}
	return out
}

// Resolve resolves a type expression against the unit's declarations.
func (u *Unit) Resolve(e *frontend.TypeExpr) (types.Ref, error) {
	return u.resolver.ResolveTypeExpr(e)
}

// Table returns the slot table of the class or interface named name.
func (u *Unit) Table(name string) (*layout.Table, bool) {
	for _, r := range u.Classes {
		if t := u.Tables[r]; t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// MetaAddr is the data-segment address of a class's meta descriptor.
func (u *Unit) MetaAddr(name string) (uint32, bool) {
	return u.Pool.Meta(name)
}
