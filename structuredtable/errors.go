package structuredtable

import (
	"errors"
	"fmt"
)

var (
	// ErrValueOutOfRange is returned when a structured field's value does
	// not fit its declared integer width.
	ErrValueOutOfRange = errors.New("structuredtable: value out of range for field width")

	// ErrIncompatibleFormat is returned by Read when the persisted
	// stream's namespace or version does not match the caller's
	// expectation.
	ErrIncompatibleFormat = errors.New("structuredtable: incompatible persisted format")

	// ErrIO is wrapped by the error Write returns on any failure, and by
	// the error Read returns when the stream cannot be read, is truncated
	// or cannot be decoded. The underlying error's text is included in
	// the message; the underlying error itself is not wrapped.
	ErrIO = errors.New("structuredtable: stream I/O error")
)

// FieldOverflowError reports which field rejected a value and why. It
// satisfies errors.Is(err, ErrValueOutOfRange).
type FieldOverflowError struct {
	Field string
	Value int64
	Max   int64
}

func (e *FieldOverflowError) Error() string {
	return fmt.Sprintf("structuredtable: value %d for field %q exceeds its declared width (max %d)",
		e.Value, e.Field, e.Max)
}

func (e *FieldOverflowError) Is(target error) bool {
	return target == ErrValueOutOfRange
}
