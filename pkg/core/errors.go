package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported by a traversal pass.
type ErrorKind int

// Error kinds.
const (
	SchemaMismatch ErrorKind = iota + 1
	DataTypeMismatch
	MissingRow
	MalformedArrayRun
	InvalidMemberSpec
	StructuralUnderflow
)

func (k ErrorKind) String() string {
	switch k {
	case SchemaMismatch:
		return "schema mismatch"
	case DataTypeMismatch:
		return "data type mismatch"
	case MissingRow:
		return "missing row"
	case MalformedArrayRun:
		return "malformed array run"
	case InvalidMemberSpec:
		return "invalid member spec"
	case StructuralUnderflow:
		return "structural underflow"
	}
	return "unknown error"
}

// Sentinel errors, one per kind, for use with errors.Is.
var (
	ErrSchemaMismatch      = &Error{Kind: SchemaMismatch}
	ErrDataTypeMismatch    = &Error{Kind: DataTypeMismatch}
	ErrMissingRow          = &Error{Kind: MissingRow}
	ErrMalformedArrayRun   = &Error{Kind: MalformedArrayRun}
	ErrInvalidMemberSpec   = &Error{Kind: InvalidMemberSpec}
	ErrStructuralUnderflow = &Error{Kind: StructuralUnderflow}
)

// Error is a failure recorded during a read or write pass.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
}

// Errorf creates an Error of the given kind.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return e.Kind.String()
}

// Is reports whether target is an Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of err, or zero if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
