package models

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is matched by every ValidationError.
	ErrOutOfRange = errors.New("value out of range")
	// ErrDeviceNotFound is returned for ids that are not registered with the bridge.
	ErrDeviceNotFound = errors.New("device not found")
)

// ValidationError rejects malformed input before any state is touched.
type ValidationError struct {
	Field string
	Value int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s=%d: must be within [%d,%d]", e.Field, e.Value, MinPercent, MaxPercent)
}

func (e *ValidationError) Is(target error) bool { return target == ErrOutOfRange }

// ValidatePercent returns a *ValidationError when v is outside [0,100].
func ValidatePercent(field string, v int) error {
	if v < MinPercent || v > MaxPercent {
		return &ValidationError{Field: field, Value: v}
	}
	return nil
}
