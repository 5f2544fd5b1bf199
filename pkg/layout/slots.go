// Package layout - Member slot fixup and runtime object layout
// Design: one pass per class turns the resolved member list into an
// immutable slot table; every later stage reads indices from the table.
package layout

import (
	"fmt"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

// SlotKind is the runtime role of a slot.
type SlotKind uint8

const (
	SlotField SlotKind = iota
	SlotMethod
	SlotGetter
	SlotSetter
)

func (k SlotKind) String() string {
	return k.Flag().String()
}

// Flag is the meta flag recorded for the slot.
func (k SlotKind) Flag() abi.ItableFlag {
	switch k {
	case SlotMethod:
		return abi.FlagMethod
	case SlotGetter:
		return abi.FlagGetter
	case SlotSetter:
		return abi.FlagSetter
	}
	return abi.FlagField
}

// MemberSlot is one entry of a slot table. Index counts fields and vtable
// entries separately, from zero. Type is the value type for fields, getters
// and setters and the signature for methods.
type MemberSlot struct {
	Name     string
	Kind     SlotKind
	Index    int
	Static   bool
	Optional bool
	Type     types.Ref
	Sig      types.Ref
	Tag      abi.TypeTag
}

// StructIndex is the position inside the runtime struct. Objects keep the
// vtable in field 0 and vtables keep the meta address in field 0; the static
// struct has no header.
func (s MemberSlot) StructIndex() int {
	if s.Static {
		return s.Index
	}
	return s.Index + 1
}

// IsVtable reports whether the slot lives in the vtable.
func (s MemberSlot) IsVtable() bool { return !s.Static && s.Kind != SlotField }

// Table is the fixed-up layout of one class.
type Table struct {
	Class  types.Ref
	Name   string
	TypeID abi.TypeTag
	ImplID abi.TypeTag

	// Slots is in member order; an accessor pair contributes its getter then
	// its setter.
	Slots   []MemberSlot
	Statics []MemberSlot
	// Hidden are base slots shadowed by a member of another kind.
	Hidden []MemberSlot

	Fields       int
	VtableSize   int
	StaticFields int
}

// Fixer computes slot tables, memoized per class. A derived class keeps
// every slot index its base assigned; new slots are appended after the
// base's fields and vtable entries.
type Fixer struct {
	g      *types.Graph
	tables map[types.Ref]*Table
}

// NewFixer creates a fixer over g.
func NewFixer(g *types.Graph) *Fixer {
	return &Fixer{g: g, tables: make(map[types.Ref]*Table)}
}

// Fixup computes the slot table of one class with a fresh fixer.
func Fixup(g *types.Graph, ref types.Ref) (*Table, error) {
	return NewFixer(g).Table(ref)
}

// Table returns the slot table of a complete, concrete class or interface.
func (f *Fixer) Table(ref types.Ref) (*Table, error) {
	if t, ok := f.tables[ref]; ok {
		return t, nil
	}
	g := f.g
	c := g.Class(ref)
	if c == nil {
		return nil, fmt.Errorf("fixup: %s is not a class", g.String(ref))
	}
	if !c.Complete() {
		return nil, fmt.Errorf("fixup: class %s is not complete", c.Name)
	}
	if g.IsGeneric(ref) {
		return nil, fmt.Errorf("fixup: class %s is generic", c.Name)
	}

	t := &Table{Class: ref, Name: c.Name, TypeID: c.TypeID()}
	var base *Table
	if c.Base.Valid() {
		bt, err := f.Table(c.Base)
		if err != nil {
			return nil, err
		}
		base = bt
		t.Fields, t.VtableSize = bt.Fields, bt.VtableSize
	}

	slot := func(m *types.Member, kind SlotKind, sig types.Ref) {
		s := MemberSlot{Name: m.Name, Kind: kind, Optional: m.Optional, Type: m.Type, Sig: sig, Tag: g.TagOf(m.Type)}
		if base != nil {
			if inherited, ok := base.Lookup(m.Name, kind); ok {
				s.Index = inherited.Index
				t.Slots = append(t.Slots, s)
				return
			}
		}
		if kind == SlotField {
			s.Index = t.Fields
			t.Fields++
		} else {
			s.Index = t.VtableSize
			t.VtableSize++
		}
		t.Slots = append(t.Slots, s)
	}

	for _, m := range c.Members {
		switch m.Kind {
		case types.MemberField:
			slot(m, SlotField, types.NoRef)
		case types.MemberMethod:
			slot(m, SlotMethod, m.Type)
		case types.MemberAccessor:
			if m.HasGetter {
				slot(m, SlotGetter, m.Getter)
			}
			if m.HasSetter {
				slot(m, SlotSetter, m.Setter)
			}
		default:
			return nil, fmt.Errorf("fixup: member %s.%s has kind %s", c.Name, m.Name, m.Kind)
		}
	}
	if base != nil {
		// slots whose member changed kind in the derived class stay reserved
		for _, s := range append(append([]MemberSlot(nil), base.Slots...), base.Hidden...) {
			if !t.occupied(s) {
				t.Hidden = append(t.Hidden, s)
			}
		}
	}

	methods := 0
	for _, m := range c.Statics {
		s := MemberSlot{Name: m.Name, Static: true, Type: m.Type, Tag: g.TagOf(m.Type)}
		switch m.Kind {
		case types.MemberField:
			s.Kind, s.Index = SlotField, t.StaticFields
			t.StaticFields++
		case types.MemberMethod:
			s.Kind, s.Index, s.Sig = SlotMethod, methods, m.Type
			methods++
		default:
			return nil, fmt.Errorf("fixup: static accessor %s.%s is not supported", c.Name, m.Name)
		}
		t.Statics = append(t.Statics, s)
	}

	f.tables[ref] = t
	logger.LogSlotTable(c.Name, t.Fields, t.VtableSize)
	return t, nil
}

// Lookup finds the instance slot of the given kind.
func (t *Table) Lookup(name string, kind SlotKind) (MemberSlot, bool) {
	for _, s := range t.Slots {
		if s.Name == name && s.Kind == kind {
			return s, true
		}
	}
	return MemberSlot{}, false
}

// Member finds the first instance slot with the name, getters before setters.
func (t *Table) Member(name string) (MemberSlot, bool) {
	for _, s := range t.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return MemberSlot{}, false
}

// Static finds a static slot.
func (t *Table) Static(name string) (MemberSlot, bool) {
	for _, s := range t.Statics {
		if s.Name == name {
			return s, true
		}
	}
	return MemberSlot{}, false
}

// FieldSlots lists instance fields by index, hidden base fields included.
func (t *Table) FieldSlots() []MemberSlot {
	return t.byIndex(t.Fields, func(s MemberSlot) bool { return s.Kind == SlotField })
}

// VtableSlots lists vtable entries by index, hidden base entries included.
func (t *Table) VtableSlots() []MemberSlot {
	return t.byIndex(t.VtableSize, func(s MemberSlot) bool { return s.Kind != SlotField })
}

func (t *Table) occupied(want MemberSlot) bool {
	for _, s := range t.Slots {
		if s.Index == want.Index && (s.Kind == SlotField) == (want.Kind == SlotField) {
			return true
		}
	}
	return false
}

func (t *Table) byIndex(n int, keep func(MemberSlot) bool) []MemberSlot {
	out := make([]MemberSlot, n)
	for _, list := range [][]MemberSlot{t.Hidden, t.Slots} {
		for _, s := range list {
			if keep(s) {
				out[s.Index] = s
			}
		}
	}
	return out
}

// StaticFieldSlots lists static fields in struct order.
func (t *Table) StaticFieldSlots() []MemberSlot {
	return t.filter(t.Statics, func(s MemberSlot) bool { return s.Kind == SlotField })
}

func (t *Table) filter(list []MemberSlot, keep func(MemberSlot) bool) []MemberSlot {
	var out []MemberSlot
	for _, s := range list {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
