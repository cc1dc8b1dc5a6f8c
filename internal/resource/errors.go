package resource

import (
	"errors"
	"fmt"
)

// Kind classifies resource failures.
type Kind int

const (
	KindSourceResolution Kind = iota + 1
	KindOpen
	KindRead
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindSourceResolution:
		return "SourceResolutionError"
	case KindOpen:
		return "OpenError"
	case KindRead:
		return "ReadError"
	case KindSerialization:
		return "SerializationError"
	default:
		return "Error"
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrSourceResolution = errors.New("source resolution error")
	ErrOpen             = errors.New("open error")
	ErrRead             = errors.New("read error")
	ErrSerialization    = errors.New("serialization error")

	// ErrClosed is wrapped by lazy accessors used on a closed resource.
	ErrClosed = errors.New("resource is closed")
)

// Error is returned by every fallible Resource operation.
type Error struct {
	Kind Kind
	Op   string
	Note string
	Err  error
}

func (e *Error) Error() string {
	msg := "resource: " + e.Op
	if e.Note != "" {
		msg += ": " + e.Note
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrSourceResolution:
		return e.Kind == KindSourceResolution
	case ErrOpen:
		return e.Kind == KindOpen
	case ErrRead:
		return e.Kind == KindRead
	case ErrSerialization:
		return e.Kind == KindSerialization
	}
	return false
}

func newError(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Note: fmt.Sprintf(format, args...), Err: err}
}

// readError wraps err as a ReadError unless it already is a resource error.
func readError(op string, err error) error {
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Kind: KindRead, Op: op, Err: err}
}

// KindOf returns the Kind of a resource error, or 0.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}
