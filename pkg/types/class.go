package types

import (
	"fmt"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/frontend"
)

// MemberKind classifies a resolved member.
type MemberKind uint8

const (
	MemberField MemberKind = iota + 1
	MemberMethod
	MemberAccessor
)

func (k MemberKind) String() string {
	switch k {
	case MemberField:
		return "field"
	case MemberMethod:
		return "method"
	case MemberAccessor:
		return "accessor"
	}
	return "unknown"
}

// Member describes one resolved member. For a field Type is the value type,
// for a method it is the signature, for an accessor it is the value type and
// Getter/Setter hold the accessor signatures.
type Member struct {
	Name       string
	Kind       MemberKind
	Static     bool
	Type       Ref
	Getter     Ref
	Setter     Ref
	HasGetter  bool
	HasSetter  bool
	Optional   bool
	Readonly   bool
	Own        bool
	Overridden bool
}

// Class is a class or interface. Members is in slot order: inherited members
// first, overrides in their inherited position, new members appended.
type Class struct {
	Name    string
	Members []*Member
	Statics []*Member
	Ctor    Ref

	Base         Ref
	BaseTemplate Ref
	BaseArgs     []Ref
	Impl         Ref
	ImplTemplate Ref
	ImplArgs     []Ref

	TypeParams   []Ref
	Args         []Ref
	GenericOwner Ref

	IsLiteral bool
	IsDeclare bool
	IsLibrary bool
	Decl      frontend.Decl

	typeID   abi.TypeTag
	complete bool
}

func newClass(name string) *Class {
	return &Class{Name: name, typeID: abi.DefaultTypeID}
}

// TypeID is the structural id, or abi.DefaultTypeID before allocation.
func (c *Class) TypeID() abi.TypeTag {
	if c.typeID == 0 {
		return abi.DefaultTypeID
	}
	return c.typeID
}

// AssignTypeID sets the structural id. It may be called once.
func (c *Class) AssignTypeID(id abi.TypeTag) error {
	if cur := c.TypeID(); cur != abi.DefaultTypeID {
		return fmt.Errorf("type %s already has id %d", c.Name, cur)
	}
	c.typeID = id
	return nil
}

// Complete reports whether the member list is final.
func (c *Class) Complete() bool { return c.complete }

// Member finds an instance member by name.
func (c *Class) Member(name string) *Member {
	if i := c.MemberIndex(name); i >= 0 {
		return c.Members[i]
	}
	return nil
}

// MemberIndex is the position of an instance member, or -1.
func (c *Class) MemberIndex(name string) int {
	for i, m := range c.Members {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// Static finds a static member by name.
func (c *Class) Static(name string) *Member {
	for _, m := range c.Statics {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// InstanceFields lists instance fields in slot order.
func (c *Class) InstanceFields() []*Member {
	return c.filter(c.Members, func(m *Member) bool { return m.Kind == MemberField })
}

// Methods lists methods and accessors in vtable order.
func (c *Class) Methods() []*Member {
	return c.filter(c.Members, func(m *Member) bool { return m.Kind != MemberField })
}

// StaticFields lists static fields in slot order.
func (c *Class) StaticFields() []*Member {
	return c.filter(c.Statics, func(m *Member) bool { return m.Kind == MemberField })
}

func (c *Class) filter(list []*Member, keep func(*Member) bool) []*Member {
	var out []*Member
	for _, m := range list {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

// IsGenericTemplate reports whether c declares its own type parameters.
func (c *Class) IsGenericTemplate() bool {
	return len(c.TypeParams) > 0 && !c.GenericOwner.Valid()
}
