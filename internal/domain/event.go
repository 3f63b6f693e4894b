// Package domain defines the persistence models of the parking ledger. These
// types are mapped with GORM and shared by the repository, service, and HTTP
// layers.
package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a ParkingEvent. IN is the only
// non-terminal state; every other status is final once written.
type Status string

const (
	// StatusIn marks an open session: the vehicle is on the premises.
	StatusIn Status = "IN"
	// StatusOut marks a session closed by a recognized exit; it carries the fee.
	StatusOut Status = "OUT"
	// StatusBlocked is an audit row for an exit attempt without an open session.
	StatusBlocked Status = "BLOCKED"
	// StatusManualExit is a standalone operator release, not linked to any IN row.
	StatusManualExit Status = "MANUAL_EXIT"
	// StatusTest marks rows written by developer seeding.
	StatusTest Status = "TEST"
)

// Statuses lists every status in declaration order.
var Statuses = []Status{StatusIn, StatusOut, StatusBlocked, StatusManualExit, StatusTest}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusIn, StatusOut, StatusBlocked, StatusManualExit, StatusTest:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool { return s != StatusIn }

// ParkingEvent is one row of the append-only parking ledger.
//
// Fields:
//   - ID: store-assigned, monotonically increasing.
//   - Plate: normalized plate (uppercase alphanumeric, 5–9 chars).
//   - EntryTime: time of the event that created the row (second precision, UTC).
//   - ExitTime: set once, by IN → OUT, or at creation for MANUAL_EXIT.
//   - FeePLN: set together with ExitTime on IN → OUT only.
//   - Status: see Status.
//
// At most one IN row per plate exists at any time. That rule is enforced by
// the partial unique index uniq_open_plate created in repo.AutoMigrate.
type ParkingEvent struct {
	ID        int64      `json:"id"         gorm:"primaryKey;autoIncrement"`
	Plate     string     `json:"plate"      gorm:"type:varchar(16);not null;index:idx_plate_status,priority:1"`
	EntryTime time.Time  `json:"entry_time" gorm:"not null;index:idx_entry_time"`
	ExitTime  *time.Time `json:"exit_time"`
	FeePLN    *int64     `json:"fee_pln"`
	Status    Status     `json:"status"     gorm:"type:varchar(16);not null;index:idx_plate_status,priority:2;check:chk_parking_events_status,status IN ('IN','OUT','BLOCKED','MANUAL_EXIT','TEST')"`
}

// TableName returns the database table name for ParkingEvent.
func (ParkingEvent) TableName() string { return "parking_events" }

// Open reports whether the event is an open session.
func (e ParkingEvent) Open() bool { return e.Status == StatusIn }

// CheckShape verifies the exit/fee invariants that tie ExitTime and FeePLN
// to Status. It is used by tests and by the export path as a sanity check.
func (e ParkingEvent) CheckShape() error {
	if !e.Status.Valid() {
		return fmt.Errorf("event %d: unknown status %q", e.ID, e.Status)
	}
	switch e.Status {
	case StatusIn, StatusBlocked, StatusTest:
		if e.ExitTime != nil {
			return fmt.Errorf("event %d: status %s must not carry exit_time", e.ID, e.Status)
		}
	case StatusOut, StatusManualExit:
		if e.ExitTime == nil {
			return fmt.Errorf("event %d: status %s requires exit_time", e.ID, e.Status)
		}
	}
	if (e.FeePLN != nil) != (e.Status == StatusOut) {
		return fmt.Errorf("event %d: fee_pln must be set iff status is OUT", e.ID)
	}
	return nil
}
