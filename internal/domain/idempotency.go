package domain

import "time"

// Idempotency stores the response produced for an Idempotency-Key on a gate
// or ledger POST, keyed by (scope, key). A retried request with the same key
// is answered from Body instead of touching the ledger again.
type Idempotency struct {
	ID        string `gorm:"size:36;primaryKey"`
	Scope     string `gorm:"size:128;not null;uniqueIndex:ux_scope_key,priority:1"`
	Key       string `gorm:"size:255;not null;uniqueIndex:ux_scope_key,priority:2"`
	Status    int    `gorm:"not null"`
	Body      []byte
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Expired reports whether the record is no longer replayable at now.
func (i Idempotency) Expired(now time.Time) bool { return !now.Before(i.ExpiresAt) }
