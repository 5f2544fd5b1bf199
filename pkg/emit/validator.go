package emit

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
)

// ValidationError represents a malformed operation request
type ValidationError struct {
	Func    string
	Message string
	Node    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("func %s: %s\n  %s", e.Func, e.Message, e.Node)
}

// Validator checks requested operations against the module's type and
// function tables before anything is encoded.
type Validator struct {
	mod    *Module
	fn     *Func
	errors []ValidationError
	warns  []ValidationError
}

// NewValidator creates a validator over m
func NewValidator(m *Module) *Validator {
	return &Validator{
		mod:    m,
		errors: make([]ValidationError, 0),
		warns:  make([]ValidationError, 0),
	}
}

// Validate checks every function in the module
func (v *Validator) Validate() error {
	for _, f := range v.mod.Funcs {
		v.validateFunc(f)
	}

	if len(v.errors) > 0 {
		return v.formatErrors()
	}

	if len(v.warns) > 0 {
		v.logWarnings()
	}

	return nil
}

// Warnings returns the warnings gathered by the last run
func (v *Validator) Warnings() []ValidationError { return v.warns }

func (v *Validator) validateFunc(f *Func) {
	v.fn = f
	for _, e := range f.Body {
		if e == nil {
			v.addError("nil statement", "")
			continue
		}
		Walk(e, v.check)
	}
}

func (v *Validator) check(e Expr) bool {
	for _, c := range Children(e) {
		if c == nil {
			v.addError("missing operand", Format(e))
			return false
		}
	}

	switch e := e.(type) {
	case *LocalGet:
		v.validateLocal(e.Index, e)
	case *LocalSet:
		v.validateLocal(e.Index, e)
	case *LocalTee:
		v.validateLocal(e.Index, e)
	case *StructNew:
		st := v.validateStruct(e.Type, e)
		if st != nil && len(st.Fields) != len(e.Fields) {
			v.addError(fmt.Sprintf("struct.new $%s expects %d fields, got %d", e.Type, len(st.Fields), len(e.Fields)), Format(e))
		}
	case *StructNewDefault:
		v.validateStruct(e.Type, e)
	case *StructGet:
		v.validateField(e.Type, e.Index, e)
	case *StructSet:
		v.validateField(e.Type, e.Index, e)
		if st, ok := v.mod.Struct(e.Type); ok && e.Index >= 0 && e.Index < len(st.Fields) && !st.Fields[e.Index].Mutable {
			v.addError(fmt.Sprintf("field %d of $%s is immutable", e.Index, e.Type), Format(e))
		}
	case *RefCast:
		v.validateHeap(e.Type, e)
	case *ArrayNewFixed:
		v.validateHeap(e.Type, e)
	case *ArrayGet:
		v.validateHeap(e.Type, e)
	case *ArraySet:
		v.validateHeap(e.Type, e)
	case *Call:
		v.validateCall(e)
	case *RefFunc:
		if _, ok := v.mod.Func(e.Func); !ok {
			v.addError("ref.func to undefined function $"+e.Func, Format(e))
		}
	case *If:
		if e.Cond.ResultType() != I32 {
			v.addError("if condition must be i32, got "+e.Cond.ResultType().String(), Format(e))
		}
		if !e.Result.IsNone() && e.Else == nil {
			v.addError("if with a result needs an else arm", Format(e))
		}
	case *Drop:
		if e.X.ResultType().IsNone() {
			v.addWarn("drop of an expression without a result", Format(e))
		}
	}
	return true
}

func (v *Validator) validateLocal(i int, e Expr) {
	if _, ok := v.fn.LocalType(i); !ok {
		v.addError(fmt.Sprintf("local %d out of range", i), Format(e))
	}
}

func (v *Validator) validateStruct(name string, e Expr) *StructType {
	st, ok := v.mod.Struct(name)
	if !ok {
		v.addError("unknown struct type $"+name, Format(e))
		return nil
	}
	return st
}

func (v *Validator) validateField(name string, index int, e Expr) {
	st := v.validateStruct(name, e)
	if st == nil {
		return
	}
	if index < 0 || index >= len(st.Fields) {
		v.addError(fmt.Sprintf("field index %d out of range for $%s (%d fields)", index, name, len(st.Fields)), Format(e))
	}
}

func (v *Validator) validateHeap(name string, e Expr) {
	if _, ok := v.mod.Struct(name); ok {
		return
	}
	if _, ok := v.mod.Array(name); ok {
		return
	}
	v.addError("unknown heap type $"+name, Format(e))
}

func (v *Validator) validateCall(c *Call) {
	params, _, ok := v.mod.Callable(c.Func)
	if !ok {
		v.addError("call to undefined function $"+c.Func, Format(c))
		return
	}
	if len(params) != len(c.Args) {
		v.addError(fmt.Sprintf("call $%s expects %d arguments, got %d", c.Func, len(params), len(c.Args)), Format(c))
	}
}

// Helper functions

func (v *Validator) addError(msg, node string) {
	v.errors = append(v.errors, ValidationError{Func: v.fn.Name, Message: msg, Node: node})
}

func (v *Validator) addWarn(msg, node string) {
	v.warns = append(v.warns, ValidationError{Func: v.fn.Name, Message: msg, Node: node})
}

func (v *Validator) formatErrors() error {
	var sb strings.Builder
	sb.WriteString("Module validation failed:\n")
	for _, err := range v.errors {
		sb.WriteString("  " + err.Error() + "\n")
	}
	return fmt.Errorf("%s", sb.String())
}

func (v *Validator) logWarnings() {
	for _, warn := range v.warns {
		logger.LogWarning("validate", warn.Func, warn.Message)
	}
}

// ValidateModule validates an entire module
func ValidateModule(m *Module) error {
	return NewValidator(m).Validate()
}
