// internal/app/system/tracking/errors.go
package tracking

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("metric not found")
	// ErrInvalidKey is returned for an empty metric key.
	ErrInvalidKey = errors.New("metric key is required")
	// ErrInvalidDate is returned for an empty data point date.
	ErrInvalidDate = errors.New("data point date is required")
	// ErrInvalidValue is returned for values that are neither numbers nor text.
	ErrInvalidValue = errors.New("data point value must be a number or text")
	// ErrMigrationDropped is returned when the migration write was not
	// performed; the local cache is left untouched so nothing is lost.
	ErrMigrationDropped = errors.New("migration write was not performed")
)

// NotFoundError names the metric key an operation referenced.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("metric %q not found", e.Key)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
