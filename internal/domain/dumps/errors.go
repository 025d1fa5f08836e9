package dumps

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage wraps every failure of the durability layer.
	ErrStorage = errors.New("storage error")
	// ErrInvalidInput marks requests rejected before any provider or storage call.
	ErrInvalidInput = errors.New("invalid input")
)

// StorageError tags err as a storage failure of op while keeping err inspectable.
func StorageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
