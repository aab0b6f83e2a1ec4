package hashtable

import "errors"

// Sentinel errors returned by Table's public operations. Wrap with
// fmt.Errorf("...: %w", ErrX) at call sites that need to attach context;
// callers should compare with errors.Is.
var (
	// ErrNotFound is returned when an operation requires a key to be
	// present and it is not.
	ErrNotFound = errors.New("hashtable: key not found")

	// ErrInvalidSize is returned when a key or value does not match the
	// table's configured key_size/value_size.
	ErrInvalidSize = errors.New("hashtable: key or value size mismatch")

	// ErrInvalidState is returned when a slot index is used outside the
	// generation it was obtained in and the implementation detected it.
	ErrInvalidState = errors.New("hashtable: stale slot index")
)
