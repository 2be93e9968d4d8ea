package core

import (
	"fmt"
	"strings"
)

// Kind categorizes an engine error.
type Kind string

const (
	KindArgument   Kind = "argument"    // malformed or missing call arguments
	KindInvocation Kind = "invocation"  // construction protocol violated
	KindScriptLoad Kind = "script_load" // script missing or failed to compile
	KindRuntime    Kind = "runtime"     // uncaught fault inside a worker
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrArgument   = &Error{Kind: KindArgument}
	ErrInvocation = &Error{Kind: KindInvocation}
	ErrScriptLoad = &Error{Kind: KindScriptLoad}
	ErrRuntime    = &Error{Kind: KindRuntime}
)

// Error is the structured error type used throughout the engine. Faults
// that cross from a worker to its creator carry the JS-side description
// (name, stack, location and the cloned thrown value).
type Error struct {
	Kind     Kind
	Op       string // operation that failed, e.g. "Worker.postMessage"
	Detail   string
	Cause    error
	Name     string // JS error name, e.g. "TypeError"
	Stack    string
	Filename string
	Line     int
	Column   int
	Value    any // cloned thrown value for non-Error throws
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Kind))
	b.WriteByte(']')

	if e.Op != "" {
		b.WriteByte(' ')
		b.WriteString(e.Op)
	}

	if e.Name != "" || e.Detail != "" {
		b.WriteString(": ")
		if e.Name != "" {
			b.WriteString(e.Name)
			if e.Detail != "" {
				b.WriteString(": ")
			}
		}
		b.WriteString(e.Detail)
	}

	if e.Filename != "" {
		fmt.Fprintf(&b, " (%s", e.Filename)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteByte(')')
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind. A target with
// an Op only matches errors raised by that operation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Op == "" || t.Op == e.Op
}

// Argument creates an ArgumentError for op.
func Argument(op, format string, args ...any) *Error {
	return &Error{Kind: KindArgument, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Invocation creates an InvocationError for op.
func Invocation(op, detail string) *Error {
	return &Error{Kind: KindInvocation, Op: op, Detail: detail}
}

// ScriptLoad wraps a loader or compiler failure for the given script.
func ScriptLoad(filename string, cause error) *Error {
	return &Error{Kind: KindScriptLoad, Op: "load", Filename: filename, Detail: "script could not be loaded", Cause: cause}
}

// Runtime creates a RuntimeFault with the given message.
func Runtime(detail string) *Error {
	return &Error{Kind: KindRuntime, Detail: detail}
}
