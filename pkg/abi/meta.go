package abi

// ItableFlag tags a meta entry with the member kind it describes.
type ItableFlag int32

const (
	FlagField ItableFlag = iota
	FlagMethod
	FlagGetter
	FlagSetter
	FlagAll
)

func (f ItableFlag) String() string {
	switch f {
	case FlagField:
		return "field"
	case FlagMethod:
		return "method"
	case FlagGetter:
		return "getter"
	case FlagSetter:
		return "setter"
	case FlagAll:
		return "all"
	}
	return "unknown"
}

// Packing of (flag, index) into one 32-bit meta word.
const (
	MetaFlagMask   uint32 = 0x0000000f
	MetaIndexMask  uint32 = 0xfffffff0
	MetaIndexShift        = 4
)

// PropertyNotFound is the packed word reported for an absent member.
const PropertyNotFound int32 = -1

// Meta descriptor header offsets in bytes.
const (
	MetaTypeIDOffset = 0
	MetaImplIDOffset = 4
	MetaCountOffset  = 8
	MetaFieldsOffset = 12
)

// Per-entry offsets and size.
const (
	MetaFieldNameOffset         = 0
	MetaFieldFlagAndIndexOffset = 4
	MetaFieldTypeOffset         = 8
	MetaFieldSize               = 12
)

// Fixed struct positions.
const (
	ObjectVtableIndex  = 0 // object field 0 holds the vtable
	VtableMetaIndex    = 0 // vtable field 0 holds the meta address
	ContextParentIndex = 0
)

// Closure struct layout.
const (
	ClosureContextIndex = 0
	ClosureThisIndex    = 1
	ClosureFuncIndex    = 2
	EnvParamLen         = 2
)

// PackFlagAndIndex builds the meta word for a member.
func PackFlagAndIndex(flag ItableFlag, index int) int32 {
	return int32((uint32(flag) & MetaFlagMask) | ((uint32(index) << MetaIndexShift) & MetaIndexMask))
}

// UnpackFlag extracts the flag from a packed meta word.
func UnpackFlag(word int32) ItableFlag {
	return ItableFlag(uint32(word) & MetaFlagMask)
}

// UnpackIndex extracts the struct index from a packed meta word.
func UnpackIndex(word int32) int {
	return int((uint32(word) & MetaIndexMask) >> MetaIndexShift)
}
