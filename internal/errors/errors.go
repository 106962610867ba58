// Package errors defines the error kinds surfaced by the graph store.
//
// Four kinds exist. Configuration errors mean the backing engine is
// unreachable or misconfigured and are fatal at startup. Functional
// errors mean the caller supplied an invalid domain argument and are
// surfaced verbatim, never retried. Data integrity errors indicate an
// upstream write-path bug (a relationship missing an endpoint or role).
// Database errors wrap any other engine failure together with the query
// that triggered it.
package errors

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindConfiguration Kind = iota
	KindFunctional
	KindDataIntegrity
	KindDatabase
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindFunctional:
		return "functional"
	case KindDataIntegrity:
		return "data_integrity"
	case KindDatabase:
		return "database"
	default:
		return "unknown"
	}
}

// Error is a kinded error optionally wrapping an underlying cause and
// carrying free-form diagnostic data (e.g. the query that failed).
type Error struct {
	kind  Kind
	msg   string
	cause error
	Data  map[string]any
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

// Is matches two kinded errors by kind, so sentinel comparisons like
// errors.Is(err, ErrFunctional) work without identity.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.kind == t.kind && (t.msg == "" || t.msg == e.msg)
}

// Kind sentinels for errors.Is checks.
var (
	ErrConfiguration = &Error{kind: KindConfiguration}
	ErrFunctional    = &Error{kind: KindFunctional}
	ErrDataIntegrity = &Error{kind: KindDataIntegrity}
	ErrDatabase      = &Error{kind: KindDatabase}
)

func Configuration(msg string, cause error) *Error {
	return &Error{kind: KindConfiguration, msg: msg, cause: cause}
}

func Functional(msg string, cause error) *Error {
	return &Error{kind: KindFunctional, msg: msg, cause: cause}
}

func Functionalf(format string, args ...any) *Error {
	return &Error{kind: KindFunctional, msg: fmt.Sprintf(format, args...)}
}

func DataIntegrity(msg string, data map[string]any) *Error {
	return &Error{kind: KindDataIntegrity, msg: msg, Data: data}
}

func Database(msg string, cause error, data map[string]any) *Error {
	return &Error{kind: KindDatabase, msg: msg, cause: cause, Data: data}
}
