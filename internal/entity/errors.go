package entity

import (
	"errors"
	"fmt"

	"moxie-indexer/internal/domain"
)

// ErrMissingReference is matched by every MissingReferenceError.
var ErrMissingReference = errors.New("missing reference")

// MissingReferenceError reports an entity that must already exist but does not.
// It is fatal for the event being processed.
type MissingReferenceError struct {
	Kind domain.Kind
	ID   string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("missing reference: %s %q", e.Kind, e.ID)
}

// Unwrap lets errors.Is match ErrMissingReference.
func (e *MissingReferenceError) Unwrap() error {
	return ErrMissingReference
}
