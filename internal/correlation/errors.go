package correlation

import (
	"errors"
	"fmt"

	"moxie-indexer/internal/domain"
)

var (
	// ErrMissingCorrelation is returned when a cancellation or claim cannot
	// find the auction order it settles.
	ErrMissingCorrelation = errors.New("missing correlation")

	// ErrInvalidTransition is returned when a cancellation or claim finds
	// no order open under its auction order key.
	ErrInvalidTransition = errors.New("invalid auction order transition")
)

// MissingCorrelationError describes a failed intent-to-order lookup.
type MissingCorrelationError struct {
	Kind     domain.Kind // intent kind that was matched
	Key      string      // auction order id derived from the intent
	Position string      // id of the staged intent
}

func (e *MissingCorrelationError) Error() string {
	return fmt.Sprintf("missing correlation: %s at %s: auction order %s not found", e.Kind, e.Position, e.Key)
}

func (e *MissingCorrelationError) Unwrap() error {
	return ErrMissingCorrelation
}
