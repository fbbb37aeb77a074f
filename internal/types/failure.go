package types

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind distinguishes the two ways a node can fail.
type FailureKind int

const (
	// Noop means no source of the requested product exists for the subject.
	Noop FailureKind = iota
	// Throw means a task body or a value conversion failed.
	Throw
)

func (k FailureKind) String() string {
	switch k {
	case Noop:
		return "noop"
	case Throw:
		return "throw"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// Failure is the terminal failure of a node. It implements error so that
// node bodies can return it directly.
type Failure struct {
	Kind    FailureKind
	Message string
	// Cause is the dependency failure that led to this one, if any.
	Cause *Failure
}

// Noopf builds a Noop failure.
func Noopf(format string, args ...any) *Failure {
	return &Failure{Kind: Noop, Message: fmt.Sprintf(format, args...)}
}

// Throwf builds a Throw failure.
func Throwf(format string, args ...any) *Failure {
	return &Failure{Kind: Throw, Message: fmt.Sprintf(format, args...)}
}

// AsFailure converts any error into a Failure. Errors that already are (or
// wrap) a Failure are returned as-is; anything else becomes a Throw.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: Throw, Message: err.Error()}
}

// Wrap returns a new failure of the same kind as cause, carrying msg and
// linking back to cause.
func (f *Failure) Wrap(msg string) *Failure {
	return &Failure{Kind: f.Kind, Message: msg, Cause: f}
}

// Root returns the innermost cause.
func (f *Failure) Root() *Failure {
	for f.Cause != nil {
		f = f.Cause
	}
	return f
}

func (f *Failure) Error() string {
	var sb strings.Builder
	sb.WriteString(f.Message)
	for c := f.Cause; c != nil; c = c.Cause {
		sb.WriteString(": ")
		sb.WriteString(c.Message)
	}
	return sb.String()
}

// Result is the terminal outcome of a node: exactly one of Value (on
// success) or Failure is meaningful.
type Result struct {
	Value   Value
	Failure *Failure
}

// Success wraps a value in a successful result.
func Success(v Value) Result { return Result{Value: v} }

// Failed wraps a failure in a result.
func Failed(f *Failure) Result { return Result{Failure: f} }

// OK reports whether the result is a success.
func (r Result) OK() bool { return r.Failure == nil }

func (r Result) String() string {
	if r.Failure != nil {
		return "Failure(" + r.Failure.Error() + ")"
	}
	return "Success(" + r.Value.GoString() + ")"
}
