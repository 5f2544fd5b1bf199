package types

import (
	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/frontend"
)

type specKey struct {
	template Ref
	sig      string
}

type siteKey struct {
	template Ref
	pos      frontend.Pos
}

// pendingSpec is an instantiation created while its template was still
// being built. It is filled once the template completes.
type pendingSpec struct {
	sp  *specializer
	ref Ref
}

// IDTable is the structural identity state of one compilation.
type IDTable struct {
	ByShape map[string]abi.TypeTag
	Next    abi.TypeTag
	Groups  [][]Ref
}

// Session holds everything one compilation threads through its phases.
// Nothing here is shared between sessions.
type Session struct {
	Graph *Graph
	IDs   *IDTable

	specs    map[specKey]Ref
	decls    map[frontend.Decl]Ref
	sites    map[siteKey]Ref
	literals map[*frontend.TypeExpr]Ref
	library  map[string]Ref
	pending  map[Ref][]pendingSpec
}

// NewSession starts an empty compilation.
func NewSession() *Session {
	return &Session{
		Graph: NewGraph(),
		IDs: &IDTable{
			ByShape: make(map[string]abi.TypeTag),
			Next:    abi.CustomTypeBegin,
		},
		specs:    make(map[specKey]Ref),
		decls:    make(map[frontend.Decl]Ref),
		sites:    make(map[siteKey]Ref),
		literals: make(map[*frontend.TypeExpr]Ref),
		library:  make(map[string]Ref),
		pending:  make(map[Ref][]pendingSpec),
	}
}

// Specializations is the number of cached instantiations.
func (s *Session) Specializations() int { return len(s.specs) }

// DeclRef returns the type built for d, if it has been resolved.
func (s *Session) DeclRef(d frontend.Decl) (Ref, bool) {
	r, ok := s.decls[d]
	return r, ok
}

// Library returns the runtime-provided class named name, creating it on
// first use. Library classes carry a predefined tag instead of a layout.
func (s *Session) Library(name string) Ref {
	if r, ok := s.library[name]; ok {
		return r
	}
	c := newClass(name)
	c.IsLibrary = true
	c.IsDeclare = true
	c.complete = true
	if tag, ok := abi.LibraryTag(name); ok {
		c.typeID = tag
	}
	r := s.Graph.NewClass(c, false)
	s.library[name] = r
	return r
}
