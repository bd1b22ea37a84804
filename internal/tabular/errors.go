package tabular

import "errors"

var (
	// ErrEmptyStream is returned when the stream contains no header row.
	ErrEmptyStream = errors.New("csv stream has no header row")

	// ErrColumnNotFound is returned when FilterColumns references a
	// column that is not present after header normalization.
	ErrColumnNotFound = errors.New("column not found in csv header")
)
