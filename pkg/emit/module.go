package emit

import (
	"fmt"
	"sort"
)

// Func is a function body under construction.
type Func struct {
	Name   string
	Params []ValType
	Result ValType
	Locals []ValType
	Body   []Expr
	Export bool
}

// NewFunc creates an empty function.
func NewFunc(name string, result ValType, params ...ValType) *Func {
	return &Func{Name: name, Params: params, Result: result}
}

// AddLocal appends a local and returns its index.
func (f *Func) AddLocal(t ValType) int {
	f.Locals = append(f.Locals, t)
	return len(f.Params) + len(f.Locals) - 1
}

// LocalType returns the type of a parameter or local.
func (f *Func) LocalType(i int) (ValType, bool) {
	switch {
	case i < 0:
		return None, false
	case i < len(f.Params):
		return f.Params[i], true
	case i < len(f.Params)+len(f.Locals):
		return f.Locals[i-len(f.Params)], true
	}
	return None, false
}

// Emit appends statements to the body.
func (f *Func) Emit(es ...Expr) { f.Body = append(f.Body, es...) }

// Import is a host function imported by the module.
type Import struct {
	Module string
	Name   string
	Params []ValType
	Result ValType
}

// Global is a module global.
type Global struct {
	Name    string
	Type    ValType
	Mutable bool
	Init    Expr
}

// Module collects everything lowering requests.
type Module struct {
	Funcs   []*Func
	Imports map[string]*Import
	Globals map[string]*Global
	Tables  map[string]int

	structs     map[string]*StructType
	structOrder []string
	arrays      map[string]*ArrayType
	funcs       map[string]*Func
	recGroups   [][]string

	DataBase uint32
	Data     []byte
}

// NewModule creates an empty module.
func NewModule() *Module {
	return &Module{
		Imports: make(map[string]*Import),
		Globals: make(map[string]*Global),
		Tables:  make(map[string]int),
		structs: make(map[string]*StructType),
		arrays:  make(map[string]*ArrayType),
		funcs:   make(map[string]*Func),
	}
}

// AddStruct registers a struct type. A second registration under the same
// name must agree on the field count.
func (m *Module) AddStruct(st *StructType) error {
	if old, ok := m.structs[st.Name]; ok {
		if len(old.Fields) != len(st.Fields) {
			return fmt.Errorf("struct %s redefined with %d fields (was %d)", st.Name, len(st.Fields), len(old.Fields))
		}
		return nil
	}
	m.structs[st.Name] = st
	m.structOrder = append(m.structOrder, st.Name)
	return nil
}

// Struct looks up a struct type.
func (m *Module) Struct(name string) (*StructType, bool) {
	st, ok := m.structs[name]
	return st, ok
}

// Structs returns struct types in registration order.
func (m *Module) Structs() []*StructType {
	out := make([]*StructType, 0, len(m.structOrder))
	for _, name := range m.structOrder {
		out = append(out, m.structs[name])
	}
	return out
}

// AddArray registers an array type.
func (m *Module) AddArray(at *ArrayType) {
	if _, ok := m.arrays[at.Name]; !ok {
		m.arrays[at.Name] = at
	}
}

// Array looks up an array type.
func (m *Module) Array(name string) (*ArrayType, bool) {
	at, ok := m.arrays[name]
	return at, ok
}

// RecGroup records struct names that must share one recursion group.
func (m *Module) RecGroup(names []string) {
	m.recGroups = append(m.recGroups, names)
}

// RecGroups returns the recorded recursion groups.
func (m *Module) RecGroups() [][]string { return m.recGroups }

// Import registers a host function. Re-importing is a no-op.
func (m *Module) Import(module, name string, result ValType, params ...ValType) {
	if _, ok := m.Imports[name]; ok {
		return
	}
	m.Imports[name] = &Import{Module: module, Name: name, Params: params, Result: result}
}

// AddGlobal registers a global.
func (m *Module) AddGlobal(g *Global) {
	if _, ok := m.Globals[g.Name]; !ok {
		m.Globals[g.Name] = g
	}
}

// AddFunc registers a function body.
func (m *Module) AddFunc(f *Func) error {
	if _, ok := m.funcs[f.Name]; ok {
		return fmt.Errorf("function %s defined twice", f.Name)
	}
	m.funcs[f.Name] = f
	m.Funcs = append(m.Funcs, f)
	return nil
}

// Func looks up a defined function.
func (m *Module) Func(name string) (*Func, bool) {
	f, ok := m.funcs[name]
	return f, ok
}

// Callable returns the signature of a defined or imported function.
func (m *Module) Callable(name string) ([]ValType, ValType, bool) {
	if f, ok := m.funcs[name]; ok {
		return f.Params, f.Result, true
	}
	if imp, ok := m.Imports[name]; ok {
		return imp.Params, imp.Result, true
	}
	return nil, None, false
}

// ImportNames returns imported names sorted.
func (m *Module) ImportNames() []string {
	names := make([]string, 0, len(m.Imports))
	for name := range m.Imports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
