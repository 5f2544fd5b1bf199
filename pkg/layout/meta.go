package layout

import (
	"encoding/binary"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
)

// MetaEntry is one (name, flag, index, tag) record of a meta descriptor.
// Index is the struct index: object field index for fields, vtable field
// index otherwise.
type MetaEntry struct {
	Name  string
	Flag  abi.ItableFlag
	Index int
	Tag   abi.TypeTag
}

// FlagAndIndex is the packed meta word.
func (e MetaEntry) FlagAndIndex() int32 {
	return abi.PackFlagAndIndex(e.Flag, e.Index)
}

// Meta is the runtime descriptor consulted by the slow dispatch path.
type Meta struct {
	Name    string
	TypeID  abi.TypeTag
	ImplID  abi.TypeTag
	Entries []MetaEntry
}

// BuildMeta derives the descriptor from a slot table.
func BuildMeta(t *Table) *Meta {
	m := &Meta{Name: t.Name, TypeID: t.TypeID, ImplID: t.ImplID}
	for _, s := range t.Slots {
		m.Entries = append(m.Entries, MetaEntry{
			Name:  s.Name,
			Flag:  s.Kind.Flag(),
			Index: s.StructIndex(),
			Tag:   s.Tag,
		})
	}
	return m
}

// Find returns the packed word and declared tag for name, or
// abi.PropertyNotFound. abi.FlagAll matches any entry.
func (m *Meta) Find(name string, flag abi.ItableFlag) (int32, abi.TypeTag) {
	for _, e := range m.Entries {
		if e.Name != name {
			continue
		}
		if flag == abi.FlagAll || e.Flag == flag {
			return e.FlagAndIndex(), e.Tag
		}
	}
	return abi.PropertyNotFound, 0
}

// Size is the encoded length in bytes.
func (m *Meta) Size() int {
	return abi.MetaFieldsOffset + len(m.Entries)*abi.MetaFieldSize
}

// Encode writes the descriptor in the runtime's little-endian layout.
// nameAddr supplies the address of each entry name.
func (m *Meta) Encode(nameAddr func(string) uint32) []byte {
	buf := make([]byte, m.Size())
	binary.LittleEndian.PutUint32(buf[abi.MetaTypeIDOffset:], uint32(m.TypeID))
	binary.LittleEndian.PutUint32(buf[abi.MetaImplIDOffset:], uint32(m.ImplID))
	binary.LittleEndian.PutUint32(buf[abi.MetaCountOffset:], uint32(len(m.Entries)))
	for i, e := range m.Entries {
		off := abi.MetaFieldsOffset + i*abi.MetaFieldSize
		binary.LittleEndian.PutUint32(buf[off+abi.MetaFieldNameOffset:], nameAddr(e.Name))
		binary.LittleEndian.PutUint32(buf[off+abi.MetaFieldFlagAndIndexOffset:], uint32(e.FlagAndIndex()))
		binary.LittleEndian.PutUint32(buf[off+abi.MetaFieldTypeOffset:], uint32(e.Tag))
	}
	return buf
}

// LookupEncoded scans an encoded descriptor at addr in mem the way the
// runtime's find_property helpers do. cstring reads a NUL-terminated name.
// A descriptor running past the end of mem is treated as having no member.
func LookupEncoded(mem []byte, addr uint32, name string, flag abi.ItableFlag, cstring func(uint32) string) (int32, abi.TypeTag) {
	if !inBounds(mem, addr, abi.MetaFieldsOffset) {
		return abi.PropertyNotFound, 0
	}
	count := binary.LittleEndian.Uint32(mem[addr+abi.MetaCountOffset:])
	if !inBounds(mem, addr, uint64(abi.MetaFieldsOffset)+uint64(count)*abi.MetaFieldSize) {
		return abi.PropertyNotFound, 0
	}
	for i := uint32(0); i < count; i++ {
		off := addr + abi.MetaFieldsOffset + i*abi.MetaFieldSize
		if cstring(binary.LittleEndian.Uint32(mem[off+abi.MetaFieldNameOffset:])) != name {
			continue
		}
		word := int32(binary.LittleEndian.Uint32(mem[off+abi.MetaFieldFlagAndIndexOffset:]))
		if flag == abi.FlagAll || abi.UnpackFlag(word) == flag {
			return word, abi.TypeTag(int32(binary.LittleEndian.Uint32(mem[off+abi.MetaFieldTypeOffset:])))
		}
	}
	return abi.PropertyNotFound, 0
}

// EncodedIDs reads the type and impl ids of an encoded descriptor. Both are
// DefaultTypeID when the header does not fit in mem.
func EncodedIDs(mem []byte, addr uint32) (abi.TypeTag, abi.TypeTag) {
	if !inBounds(mem, addr, abi.MetaCountOffset) {
		return abi.DefaultTypeID, abi.DefaultTypeID
	}
	return abi.TypeTag(int32(binary.LittleEndian.Uint32(mem[addr+abi.MetaTypeIDOffset:]))),
		abi.TypeTag(int32(binary.LittleEndian.Uint32(mem[addr+abi.MetaImplIDOffset:])))
}

func inBounds(mem []byte, addr uint32, size uint64) bool {
	return uint64(addr)+size <= uint64(len(mem))
}
