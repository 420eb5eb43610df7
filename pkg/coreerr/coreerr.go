// Package coreerr gives every internal failure a kind symbol and a message,
// matching the error taxonomy plugins observe across the ABI as
// (kindSymbolId, whatString).
package coreerr

import (
	"fmt"

	"github.com/edgekernel/core/pkg/symtab"
)

// Kind identifies the behavioural category of an error. Kinds are interned
// once into a package-level symbol table so (a) two kinds compare equal by
// id, and (b) the symbol id is the same value that crosses the plugin ABI.
type Kind symtab.ID

var kinds = symtab.New()

func newKind(name string) Kind {
	return Kind(kinds.Intern(name))
}

// String returns the kind's interned name.
func (k Kind) String() string {
	s, _ := kinds.Lookup(symtab.ID(k))
	return s
}

var (
	NullHandleError          = newKind("NullHandleError")
	InvalidHandleError       = newKind("InvalidHandleError")
	InvalidSymbolError       = newKind("InvalidSymbolError")
	InvalidContainerError    = newKind("InvalidContainerError")
	InvalidListError         = newKind("InvalidListError")
	InvalidStructError       = newKind("InvalidStructError")
	InvalidBufferError       = newKind("InvalidBufferError")
	InvalidFutureError       = newKind("InvalidFutureError")
	InvalidPromiseError      = newKind("InvalidPromiseError")
	PromiseNotFulfilledError = newKind("PromiseNotFulfilledError")
	PromiseDoubleWriteError  = newKind("PromiseDoubleWriteError")
	PromiseCancelledError    = newKind("PromiseCancelledError")
	CallbackError            = newKind("CallbackError")
	CycleError               = newKind("CycleError")
	JSONParseError           = newKind("JsonParseError")
	UnhandledLifecycleEvent  = newKind("UnhandledLifecycleEvent")
	InvalidConfigPathError   = newKind("InvalidConfigPathError")
	NoSubscriberError        = newKind("NoSubscriberError")
	TaskCancelledError       = newKind("TaskCancelledError")
)

// Error is a first-class, kind-tagged failure. It implements error and
// Unwrap so %w chains work with the standard errors package.
type Error struct {
	Kind    Kind
	What    string
	wrapped error
}

// New creates an Error of the given kind.
func New(kind Kind, what string) *Error {
	return &Error{Kind: kind, What: what}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, What: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind that chains to cause via Unwrap.
func Wrap(kind Kind, what string, cause error) *Error {
	return &Error{Kind: kind, What: what, wrapped: cause}
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.What, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.What)
}

func (e *Error) Unwrap() error { return e.wrapped }

// As reports whether err is a *Error of the given kind.
func As(err error, kind Kind) bool {
	ce, ok := err.(*Error)
	return ok && ce.Kind == kind
}
