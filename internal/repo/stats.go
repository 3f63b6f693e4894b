// Package repo implements the data persistence layer for the parking ledger.
// This file provides aggregate queries used by the summary endpoint and the
// dashboard gauges.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/parking-alpr/internal/domain"
)

// LedgerStats is a point-in-time aggregate over parking_events.
type LedgerStats struct {
	Total        int64                   `json:"total"`
	ByStatus     map[domain.Status]int64 `json:"by_status"`
	Open         int64                   `json:"open"`
	RevenuePLN   int64                   `json:"revenue_pln"`
	LastEventID  int64                   `json:"last_event_id"`
	LastActivity *time.Time              `json:"last_activity,omitempty"`
}

// Stats returns counts per status, total revenue of closed sessions and the
// id and entry time of the newest row. All statuses are present in ByStatus,
// zero when absent.
func Stats(ctx context.Context, db *gorm.DB) (LedgerStats, error) {
	st := LedgerStats{ByStatus: make(map[domain.Status]int64, len(domain.Statuses))}
	for _, s := range domain.Statuses {
		st.ByStatus[s] = 0
	}

	var rows []struct {
		Status domain.Status
		N      int64
	}
	q := db.WithContext(ctx).Model(&domain.ParkingEvent{})
	if err := q.Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return LedgerStats{}, err
	}
	for _, r := range rows {
		st.ByStatus[r.Status] = r.N
		st.Total += r.N
	}
	st.Open = st.ByStatus[domain.StatusIn]
	if st.Total == 0 {
		return st, nil
	}

	var rev struct{ Sum int64 }
	if err := db.WithContext(ctx).Model(&domain.ParkingEvent{}).
		Select("COALESCE(SUM(fee_pln), 0) AS sum").
		Where("status = ?", domain.StatusOut).
		Scan(&rev).Error; err != nil {
		return LedgerStats{}, err
	}
	st.RevenuePLN = rev.Sum

	// Latest row by id (avoid MAX() -> TEXT in SQLite)
	var last struct {
		ID        int64
		EntryTime time.Time
	}
	if err := db.WithContext(ctx).Model(&domain.ParkingEvent{}).
		Select("id, entry_time").Order("id DESC").Limit(1).
		Scan(&last).Error; err != nil {
		return LedgerStats{}, err
	}
	st.LastEventID = last.ID
	st.LastActivity = &last.EntryTime
	return st, nil
}
