// Package abi - Fixed constants shared with the runtime libraries
// Design: every value here is observed by the runtime (meta layout, type tags,
// builtin import names) so the numbers must not drift between builds.
package abi

// TypeTag is a predefined type id or a custom structural type id.
// Meta descriptors store one per member as the member's declared type.
type TypeTag int32

const (
	TagVoid TypeTag = iota + 1
	TagUndefined
	TagNull
	TagNever
	TagInt
	TagNumber
	TagBoolean
	TagRawString
	TagString
	TagAny
	TagUnion
	TagGeneric
	TagNamespace
	TagClosureContext
	TagEmpty
	TagArray
	TagArrayConstructor
	TagStringObject
	TagStringConstructor
	TagMap
	TagMapConstructor
	TagSet
	TagSetConstructor
	TagFunction
	TagPromise
	TagPromiseConstructor
	TagDate
	TagDateConstructor
	TagFuncVoidVoidNone
	TagFuncVoidVoidDefault
	TagFuncVoidArrayAnyDefault
	TagFuncAnyArrayAnyDefault
	TagFuncVoidVoidMethod
	TagFuncVoidArrayAnyMethod
	TagFuncAnyArrayAnyMethod
	TagArrayAny
	TagArrayInt
	TagArrayNumber
	TagArrayBoolean
	TagArrayString
	TagSetAny
	TagSetInt
	TagSetNumber
	TagSetBoolean
	TagSetString
	TagMapStringString
	TagMapStringAny
	TagMapIntString
	TagMapIntAny
	TagError
	TagErrorConstructor
	TagBuiltinTypeBegin
)

// CustomTypeBegin is the first id handed out to user-declared shapes.
const CustomTypeBegin TypeTag = TagBuiltinTypeBegin + 1000

// TypeIDStride is the distance between consecutive custom type ids.
const TypeIDStride = 2

// DefaultTypeID marks a type whose id has not been allocated.
const DefaultTypeID TypeTag = -1

// IsObjectShaped reports whether tag identifies a structural object type.
func (t TypeTag) IsObjectShaped() bool {
	return t >= CustomTypeBegin
}

// Compatible reports whether a value described by prop may be read through
// a slot declared as want without going through the dynamic runtime.
func Compatible(want, prop TypeTag) bool {
	if want == prop {
		return true
	}
	return want.IsObjectShaped() && prop.IsObjectShaped()
}

// LibraryTag returns the predefined tag used for runtime-provided classes.
func LibraryTag(name string) (TypeTag, bool) {
	switch name {
	case "Map":
		return TagMap, true
	case "Set":
		return TagSet, true
	case "Promise":
		return TagPromise, true
	case "Date":
		return TagDate, true
	case "Error":
		return TagError, true
	case "Array":
		return TagArray, true
	case "String":
		return TagStringObject, true
	}
	return 0, false
}

// DynType is the runtime classification returned by dyntype_typeof.
type DynType int32

const (
	DynUnknown DynType = iota
	DynNull
	DynUndefined
	DynObject
	DynBoolean
	DynNumber
	DynString
	DynFunction
	DynSymbol
	DynBigInt
	DynExtRefObj
	DynExtRefFunc
	DynExtRefInfc
	DynExtRefArray
)

var dynTypeNames = [...]string{
	DynUnknown:     "unknown",
	DynNull:        "null",
	DynUndefined:   "undefined",
	DynObject:      "object",
	DynBoolean:     "boolean",
	DynNumber:      "number",
	DynString:      "string",
	DynFunction:    "function",
	DynSymbol:      "symbol",
	DynBigInt:      "bigint",
	DynExtRefObj:   "object",
	DynExtRefFunc:  "function",
	DynExtRefInfc:  "object",
	DynExtRefArray: "object",
}

// TypeOfName is the JavaScript typeof string for d.
func (d DynType) TypeOfName() string {
	if d < 0 || int(d) >= len(dynTypeNames) {
		return "unknown"
	}
	return dynTypeNames[d]
}
