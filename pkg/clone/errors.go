package clone

import (
	"errors"
	"fmt"
)

// Clone errors. Store failures are returned wrapped; duplicate objects match
// storage.ErrAlreadyExists.
var (
	// ErrValidation is wrapped by *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrUnresolvedReference is wrapped by *ReferenceError.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrCorruptedProperty means a property's predicate string disagrees with
	// the base term its predicate ID maps to.
	ErrCorruptedProperty = errors.New("corrupted property")

	// ErrMappingConflict means one source ID was mapped to two different new
	// IDs within one clone. It indicates a bug, not bad input.
	ErrMappingConflict = errors.New("remap table conflict")
)

// ValidationError reports a snapshot rejected before anything was written.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ReferenceError reports a snapshot-local ID that could not be resolved
// through the remap table of its kind.
type ReferenceError struct {
	Kind  Kind
	OldID int64
	// From describes the referring entity, e.g. "node 4 alias".
	From string
}

func (e *ReferenceError) Error() string {
	if e.From != "" {
		return fmt.Sprintf("unresolved reference: %s %d (from %s)", e.Kind, e.OldID, e.From)
	}
	return fmt.Sprintf("unresolved reference: %s %d", e.Kind, e.OldID)
}

func (e *ReferenceError) Unwrap() error { return ErrUnresolvedReference }
