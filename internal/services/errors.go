// Package services defines the business logic of the parking ledger and the
// recognition pipeline that feeds it. This file centralizes the service-level
// error values so that they can be returned by service methods and checked by
// callers with errors.Is / errors.As.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
	"time"
)

// Ledger errors.
var (
	// ErrInvalidPlate is returned when a plate does not match the accepted
	// format (uppercase alphanumeric, 5 to 9 characters).
	ErrInvalidPlate = errors.New("invalid plate")

	// ErrAlreadyParked is matched by *AlreadyParkedError.
	ErrAlreadyParked = errors.New("plate already parked")

	// ErrStoreTimeout is returned when a store operation exceeds its deadline.
	// It is transient.
	ErrStoreTimeout = errors.New("store timeout")

	// ErrStoreBusy is returned on lock contention or serialization failure.
	// It is transient.
	ErrStoreBusy = errors.New("store busy")
)

// AlreadyParkedError reports an entry for a plate that already has an open
// session. It carries the identity of the conflicting row.
type AlreadyParkedError struct {
	Plate     string
	EventID   int64
	EntryTime time.Time
}

func (e *AlreadyParkedError) Error() string {
	if e.EventID == 0 {
		return fmt.Sprintf("plate %s already parked", e.Plate)
	}
	return fmt.Sprintf("plate %s already parked (event %d since %s)",
		e.Plate, e.EventID, e.EntryTime.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrAlreadyParked) true.
func (e *AlreadyParkedError) Is(target error) bool { return target == ErrAlreadyParked }

// IsTransient reports whether err is a store failure the caller may retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreTimeout) || errors.Is(err, ErrStoreBusy)
}
