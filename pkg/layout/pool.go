package layout

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// DefaultDataBase keeps address 0 free so a zero meta address reads as null.
const DefaultDataBase uint32 = 1024

// DataPool lays out the data segment: NUL-terminated member names and meta
// descriptors, interned by content and class.
type DataPool struct {
	base  uint32
	buf   []byte
	strs  map[string]uint32
	metas map[string]uint32
}

// NewDataPool creates a pool whose first byte lives at base.
func NewDataPool(base uint32) *DataPool {
	return &DataPool{
		base:  base,
		strs:  make(map[string]uint32),
		metas: make(map[string]uint32),
	}
}

// CString interns s as UTF-8 followed by a NUL byte and returns its address.
func (p *DataPool) CString(s string) uint32 {
	if addr, ok := p.strs[s]; ok {
		return addr
	}
	addr := p.Blob(append(EncodeUTF8(s), 0), 1)
	p.strs[s] = addr
	return addr
}

// Blob appends b aligned to align bytes and returns its address.
func (p *DataPool) Blob(b []byte, align int) uint32 {
	for align > 1 && len(p.buf)%align != 0 {
		p.buf = append(p.buf, 0)
	}
	addr := p.base + uint32(len(p.buf))
	p.buf = append(p.buf, b...)
	return addr
}

// AddMeta places a class descriptor once and returns its address.
func (p *DataPool) AddMeta(m *Meta) uint32 {
	if addr, ok := p.metas[m.Name]; ok {
		return addr
	}
	blob := m.Encode(p.CString)
	addr := p.Blob(blob, 4)
	p.metas[m.Name] = addr
	return addr
}

// Meta returns the address of a placed descriptor.
func (p *DataPool) Meta(name string) (uint32, bool) {
	addr, ok := p.metas[name]
	return addr, ok
}

func (p *DataPool) Base() uint32  { return p.base }
func (p *DataPool) End() uint32   { return p.base + uint32(len(p.buf)) }
func (p *DataPool) Bytes() []byte { return p.buf }

// EncodeUTF8 converts s to UTF-8 bytes, replacing invalid sequences.
func EncodeUTF8(s string) []byte {
	out, err := unicode.UTF8.NewEncoder().String(s)
	if err != nil {
		out = strings.ToValidUTF8(s, "\uFFFD")
	}
	return []byte(out)
}

// UTF16Len is the length of s in UTF-16 code units, the unit of
// string.measure_wtf16.
func UTF16Len(s string) int {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	out, err := enc.String(s)
	if err != nil {
		return len([]rune(s))
	}
	return len(out) / 2
}
