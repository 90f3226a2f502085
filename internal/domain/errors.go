package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDataLoad is returned when market-data or trade files cannot be
	// loaded. The run never starts on a partial load.
	ErrDataLoad = errors.New("data load failed")

	// ErrNoProducts is returned when a run is constructed with an empty
	// product universe.
	ErrNoProducts = errors.New("no products configured")

	// ErrConfigNotFound is returned when the configuration file is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// DataError describes a failure while loading one input file. It wraps
// ErrDataLoad so callers can match the whole class with errors.Is.
type DataError struct {
	Path string
	Line int // 0 when the failure is not tied to a specific line
	Err  error
}

func (e *DataError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("load %s: line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Is(target error) bool {
	return target == ErrDataLoad
}

// NewDataError wraps err as a load failure for path.
func NewDataError(path string, line int, err error) *DataError {
	return &DataError{Path: path, Line: line, Err: err}
}
