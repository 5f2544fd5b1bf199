package abi

import "strings"

// Module and naming conventions.
const (
	ModuleDelimiter   = "|"
	BuiltinModule     = "builtin"
	ExternalModule    = "env"
	DyntypeModule     = "libdyntype"
	StructIndirectMod = "libstruct_indirect"
	ExtrefTable       = "extref_table"
	EntryFunc         = "_entry"
)

// Builtin helper functions.
const (
	FindPropertyFlagAndIndex    = "find_property_flag_and_index"
	FindPropertyType            = "find_property_type"
	GetInfcProperty             = "get_infc_property"
	GetPropertyIfTypeIDMismatch = "get_property_if_typeid_mismatch"
	SetPropertyIfTypeIDMismatch = "set_property_if_typeid_mismatch"
	NewExtRef                   = "newExtRef"
	AnyrefCond                  = "anyrefCond"
	AllocExtRefTableSlot        = "allocExtRefTableSlot"
	StringEq                    = "string_eq"
	StringLength                = "String|length"
	ArrayLength                 = "Array|length"
	ArrayIsArray                = "ArrayConstructor|isArray"
	GlobalInitFunc              = "global|init|func"
	BuiltinTypeManglePrefix     = "lib/builtin/lib.type.d"
	StructGetIndirectPrefix     = "struct_get_indirect_"
	StructSetIndirectPrefix     = "struct_set_indirect_"
)

// libdyntype entry points.
const (
	DynContext      = "dyntype_context"
	DynNewNumber    = "dyntype_new_number"
	DynNewBoolean   = "dyntype_new_boolean"
	DynNewString    = "dyntype_new_string"
	DynNewUndefined = "dyntype_new_undefined"
	DynNewNull      = "dyntype_new_null"
	DynNewObject    = "dyntype_new_object"
	DynNewArray     = "dyntype_new_array"
	DynNewExtref    = "dyntype_new_extref"
	DynNewWithClass = "dyntype_new_object_with_class"
	DynSetElem      = "dyntype_set_elem"
	DynGetElem      = "dyntype_get_elem"
	DynSetProperty  = "dyntype_set_property"
	DynGetProperty  = "dyntype_get_property"
	DynHasProperty  = "dyntype_has_property"
	DynDeleteProp   = "dyntype_delete_property"
	DynInvoke       = "dyntype_invoke"
	DynTypeOf       = "dyntype_typeof"
	DynInstanceOf   = "dyntype_instanceof"
	DynToNumber     = "dyntype_to_number"
	DynToBool       = "dyntype_to_bool"
	DynToString     = "dyntype_to_cstring"
	DynToExtref     = "dyntype_to_extref"
	DynIsUndefined  = "dyntype_is_undefined"
	DynIsNull       = "dyntype_is_null"
	DynIsBool       = "dyntype_is_bool"
	DynIsNumber     = "dyntype_is_number"
	DynIsString     = "dyntype_is_string"
	DynIsObject     = "dyntype_is_object"
	DynIsArray      = "dyntype_is_array"
	DynIsExtref     = "dyntype_is_extref"
	DynIsFalsy      = "dyntype_is_falsy"
	DynTypeEq       = "dyntype_type_eq"
	DynCmp          = "dyntype_cmp"
	DynGetKeys      = "dyntype_get_keys"
	DynGetGlobal    = "dyntype_get_global"
	DynGetPrototype = "dyntype_get_prototype"
	DynSetPrototype = "dyntype_set_prototype"
)

// Builtin receiver classes.
const (
	Math        = "Math"
	Array       = "Array"
	String      = "String"
	Number      = "Number"
	Boolean     = "Boolean"
	Object      = "Object"
	Function    = "Function"
	Console     = "console"
	Promise     = "Promise"
	Map         = "Map"
	Set         = "Set"
	ArrayBuffer = "ArrayBuffer"
	DataView    = "DataView"
	JSON        = "JSON"
	Date        = "Date"
	Error       = "Error"
)

// FallbackConstructors are classes always created through the dynamic runtime.
var FallbackConstructors = []string{Map, Set, Promise, Date, Error}

// FallbackGlobals are globals always read through the dynamic runtime.
var FallbackGlobals = []string{JSON, Promise, Date}

// BuiltinObjects are receivers implemented by the builtin library.
var BuiltinObjects = []string{
	"ArrayBuffer", "DataView", "ArrayBufferConstructor", "Math",
	"Console", "Array", "ArrayConstructor", "StringConstructor",
}

// ArrayMethods have one builtin variant per element category.
var ArrayMethods = []string{
	"push", "pop", "join", "concat", "reverse", "shift", "slice", "sort",
	"splice", "unshift", "indexOf", "lastIndexOf", "every", "some",
	"forEach", "map", "filter", "reduce", "reduceRight", "find",
	"findIndex", "fill", "copyWithin", "includes",
}

// StringMethods are implemented natively by the builtin library.
var StringMethods = []string{
	"concat", "slice", "replace", "substring", "charCodeAt", "split",
	"indexOf", "lastIndexOf", "match", "search", "charAt", "toLowerCase",
	"toUpperCase", "trim",
}

// StringRefNativeMethods stay native when strings are stringrefs; every
// other string method goes through the dynamic runtime in that mode.
var StringRefNativeMethods = []string{"indexOf", "split", "match", "search"}

// MathMethods lower to builtin functions taking and returning f64.
var MathMethods = []string{"sqrt", "abs", "ceil", "floor", "trunc", "max", "min", "pow"}

// FuncName joins a module and a member into a mangled name.
func FuncName(module, name string) string {
	return module + ModuleDelimiter + name
}

// BuiltinFunc returns the mangled name of a builtin library function.
func BuiltinFunc(name string) string {
	return FuncName(BuiltinModule, name)
}

// LastSegment returns the trailing component of a mangled name.
func LastSegment(name string) string {
	if i := strings.LastIndex(name, ModuleDelimiter); i >= 0 {
		return name[i+1:]
	}
	return name
}

// GenericFuncNames holds the typed variants of a builtin generic method.
type GenericFuncNames struct {
	Generic string
	F64     string
	I64     string
	F32     string
	I32     string
	Anyref  string
}

// NewGenericFuncNames builds the variant set for class.method.
func NewGenericFuncNames(class, method string) GenericFuncNames {
	base := class + ModuleDelimiter + method
	return GenericFuncNames{
		Generic: base,
		F64:     base + "_f64",
		I64:     base + "_i64",
		F32:     base + "_f32",
		I32:     base + "_i32",
		Anyref:  base + "_anyref",
	}
}

// Contains reports whether name is in list.
func Contains(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}
