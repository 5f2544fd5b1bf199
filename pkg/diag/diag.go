// Package diag - Fatal compilation errors
// Design: two kinds only. A lowering gap is Unimplemented, a broken type
// reference is TypeResolution. Anything recoverable falls back to the dynamic
// runtime instead of producing an error.
package diag

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal error.
type Kind int

const (
	KindUnimplemented Kind = iota
	KindTypeResolution
)

func (k Kind) String() string {
	switch k {
	case KindUnimplemented:
		return "UnimplementError"
	case KindTypeResolution:
		return "TypeError"
	}
	return "Error"
}

// Pos is a source position attached to a diagnostic.
type Pos struct {
	File string
	Line int
	Col  int
}

// Valid reports whether the position carries a line.
func (p Pos) Valid() bool {
	return p.Line > 0
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Error is a fatal compilation error.
type Error struct {
	Kind Kind
	Name string
	Pos  Pos
	Msg  string
}

func (e *Error) Error() string {
	switch {
	case e.Name != "" && e.Pos.Valid():
		return fmt.Sprintf("[%s] %s (%s): %s", e.Kind, e.Name, e.Pos, e.Msg)
	case e.Name != "":
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Name, e.Msg)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Msg)
}

// Unimplemented reports a construct the lowering cannot handle.
func Unimplemented(format string, args ...any) error {
	return &Error{Kind: KindUnimplemented, Msg: fmt.Sprintf(format, args...)}
}

// TypeResolution reports a type reference that cannot be resolved.
func TypeResolution(name string, pos Pos, format string, args ...any) error {
	return &Error{Kind: KindTypeResolution, Name: name, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first diag error in err's chain.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// IsUnimplemented reports whether err wraps an Unimplemented error.
func IsUnimplemented(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindUnimplemented
}

// IsTypeResolution reports whether err wraps a TypeResolution error.
func IsTypeResolution(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindTypeResolution
}
