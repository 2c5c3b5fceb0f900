package link

import (
	"errors"
	"fmt"
)

// Kind classifies link failures.
type Kind int

const (
	KindNotConnected Kind = iota + 1
	KindTransport
	KindSend
	KindUnsupportedMode
	KindInvalidParameter
)

// Normalized link errors. Every *Error unwraps to one of these so callers can
// use errors.Is without caring about the underlying transport.
var (
	ErrNotConnected     = errors.New("NotConnected")
	ErrTransport        = errors.New("Transport")
	ErrSend             = errors.New("Send")
	ErrUnsupportedMode  = errors.New("UnsupportedMode")
	ErrInvalidParameter = errors.New("InvalidParameter")
)

var kindErrors = map[Kind]error{
	KindNotConnected:     ErrNotConnected,
	KindTransport:        ErrTransport,
	KindSend:             ErrSend,
	KindUnsupportedMode:  ErrUnsupportedMode,
	KindInvalidParameter: ErrInvalidParameter,
}

// String returns the name reported to subscribers.
func (k Kind) String() string {
	if err, ok := kindErrors[k]; ok {
		return err.Error()
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error wraps a link failure with its normalized kind.
type Error struct {
	Kind Kind
	Op   string // primitive or stage that failed, e.g. "arm" or "receive"
	Err  error
}

// Error renders "<Kind>: <detail>".
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the normalized sentinel for the kind.
func (e *Error) Unwrap() []error {
	errs := []error{}
	if sentinel, ok := kindErrors[e.Kind]; ok {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// newError builds an *Error from a format string.
func newError(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// NotConnected reports a primitive invoked on a closed link.
func NotConnected(op string) *Error {
	return &Error{Kind: KindNotConnected, Op: op, Err: errors.New("not connected")}
}

// InvalidParameter reports a rejected command parameter.
func InvalidParameter(format string, args ...any) *Error {
	return newError(KindInvalidParameter, "validate", format, args...)
}

// KindOf extracts the Kind of err, or 0 when err is not a link error.
func KindOf(err error) Kind {
	var linkErr *Error
	if errors.As(err, &linkErr) {
		return linkErr.Kind
	}
	return 0
}
