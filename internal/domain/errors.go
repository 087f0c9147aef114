package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEntityNotRegistered signals a search against an unknown entity type.
	ErrEntityNotRegistered = errors.New("entity type not registered")
	// ErrInvalidFilter signals a filter criterion that cannot be compiled.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidDegreeFilter signals an unrecognized lineage degree filter value.
	ErrInvalidDegreeFilter = errors.New("invalid degree filter value")
	// ErrInvalidInput signals a malformed request parameter.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEngine signals a search engine communication or execution failure.
	ErrEngine = errors.New("search engine failure")
)

// InvalidDegreeFilterError wraps ErrInvalidDegreeFilter with the offending value.
type InvalidDegreeFilterError struct {
	Value string
}

func (e *InvalidDegreeFilterError) Error() string {
	return fmt.Sprintf("%s: %q is not one of 1, 2, 3+", ErrInvalidDegreeFilter.Error(), e.Value)
}

func (e *InvalidDegreeFilterError) Unwrap() error { return ErrInvalidDegreeFilter }

// NewInvalidDegreeFilter creates a degree filter validation error.
func NewInvalidDegreeFilter(value string) error {
	return &InvalidDegreeFilterError{Value: value}
}
