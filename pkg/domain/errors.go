package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the data store matches exactly one of
// these with errors.Is.
var (
	ErrUnknownResource        = errors.New("unknown resource")
	ErrInvalidAttribute       = errors.New("invalid attribute")
	ErrInvalidAttributeValue  = errors.New("invalid attribute value")
	ErrUnsupportedFileType    = errors.New("unsupported file type")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrStorageFailure         = errors.New("storage failure")
)

// Error carries the context of a failed operation.
type Error struct {
	Kind   error
	Op     string
	Type   ResourceType
	ID     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("error")
	}
	if e.Type != "" || e.ID != "" {
		fmt.Fprintf(&b, " (%s %s)", strings.ToLower(string(e.Type)), e.ID)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewError builds an Error of the given kind.
func NewError(kind error, op string, ref Ref, detail string) *Error {
	return &Error{Kind: kind, Op: op, Type: ref.Type, ID: ref.ID, Detail: detail}
}

// UnknownResource reports a lookup miss.
func UnknownResource(op string, ref Ref) error {
	return NewError(ErrUnknownResource, op, ref, "")
}

// StorageFailure wraps a backend error. A nil err yields nil. Errors that
// already carry a kind are returned unchanged.
func StorageFailure(op string, ref Ref, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: ErrStorageFailure, Op: op, Type: ref.Type, ID: ref.ID, Err: err}
}

// InvalidTransition reports an out-of-order model run transition.
func InvalidTransition(op string, id string, from RunState, to RunState) error {
	return NewError(ErrInvalidStateTransition, op, Ref{Type: TypeModelRun, ID: id}, fmt.Sprintf("%s -> %s", from, to))
}
