// Package billing computes parking fees from entry and exit times.
//
// A stay is billed in whole units: every started unit costs the full unit
// price, and a stay of zero or negative length (clock skew, same instant) is
// billed exactly one unit.
package billing

import (
	"errors"
	"time"
)

// Default tariff: 5 currency units for every started 2 seconds.
const (
	DefaultUnitSeconds = 2
	DefaultUnitPrice   = 5
)

// Tariff describes the billing unit and its price.
type Tariff struct {
	UnitSeconds int64 `json:"unit_seconds"`
	UnitPrice   int64 `json:"unit_price"`
}

// DefaultTariff is the standard facility tariff.
var DefaultTariff = Tariff{UnitSeconds: DefaultUnitSeconds, UnitPrice: DefaultUnitPrice}

// Validate reports whether both tariff constants are positive.
func (t Tariff) Validate() error {
	if t.UnitSeconds <= 0 {
		return errors.New("tariff unit seconds must be > 0")
	}
	if t.UnitPrice <= 0 {
		return errors.New("tariff unit price must be > 0")
	}
	return nil
}

// Fee returns the amount due for a stay from entry to exit. The result is
// never below UnitPrice. Partial units are rounded up at nanosecond
// precision, so 2.001s on a 2s unit bills two units.
func (t Tariff) Fee(entry, exit time.Time) int64 {
	elapsed := exit.Sub(entry)
	if elapsed <= 0 {
		return t.UnitPrice
	}
	unit := time.Duration(t.UnitSeconds) * time.Second
	units := int64(elapsed / unit)
	if elapsed%unit != 0 {
		units++
	}
	return units * t.UnitPrice
}
