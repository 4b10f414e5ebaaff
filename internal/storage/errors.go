package storage

import (
	"errors"
	"fmt"

	"moxie-indexer/internal/domain"
)

var (
	// ErrNotFound is returned by Load when no entity is stored under the key.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for an empty key or a nil entity.
	ErrInvalidInput = errors.New("invalid input")
)

// NotFound wraps ErrNotFound with the missing key.
func NotFound(kind domain.Kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// ValidateKey rejects an entity key with an empty kind or id.
func ValidateKey(kind domain.Kind, id string) error {
	switch {
	case kind == "":
		return fmt.Errorf("%w: empty kind", ErrInvalidInput)
	case id == "":
		return fmt.Errorf("%w: empty %s id", ErrInvalidInput, kind)
	}
	return nil
}
