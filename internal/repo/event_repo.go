// Package repo implements the data persistence layer for the parking ledger.
// This file contains the thin, context-aware queries over parking_events.
// Callers own transactions: mutating helpers are meant to run on a *gorm.DB
// handed out by Writer.Do.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/parking-alpr/internal/domain"
)

// InsertEvent appends a row and returns its assigned id. Inserting an IN row
// for a plate that already has one fails with a unique violation (see
// IsUniqueViolation).
func InsertEvent(ctx context.Context, db *gorm.DB, ev *domain.ParkingEvent) (int64, error) {
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		return 0, err
	}
	return ev.ID, nil
}

// FindOpenEvent returns the most recently created IN row for plate, or
// ErrNotFound.
func FindOpenEvent(ctx context.Context, db *gorm.DB, plate string) (*domain.ParkingEvent, error) {
	var ev domain.ParkingEvent
	err := db.WithContext(ctx).
		Where("plate = ? AND status = ?", plate, domain.StatusIn).
		Order("id DESC").
		Limit(1).
		Take(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// CloseEvent performs the IN → OUT transition on row id. The update is
// conditional on the row still being IN; if no row matched it returns
// ErrConflict.
func CloseEvent(ctx context.Context, db *gorm.DB, id int64, exit time.Time, fee int64) error {
	res := db.WithContext(ctx).
		Model(&domain.ParkingEvent{}).
		Where("id = ? AND status = ?", id, domain.StatusIn).
		Updates(map[string]any{
			"exit_time": exit,
			"fee_pln":   fee,
			"status":    domain.StatusOut,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrConflict
	}
	return nil
}

// ListOpenEvents returns every IN row, newest id first.
func ListOpenEvents(ctx context.Context, db *gorm.DB) ([]domain.ParkingEvent, error) {
	var out []domain.ParkingEvent
	err := db.WithContext(ctx).
		Where("status = ?", domain.StatusIn).
		Order("id DESC").
		Find(&out).Error
	return out, err
}

// ListRecentEvents returns up to limit rows, newest id first. A limit <= 0
// yields an empty result.
func ListRecentEvents(ctx context.Context, db *gorm.DB, limit int) ([]domain.ParkingEvent, error) {
	if limit <= 0 {
		return []domain.ParkingEvent{}, nil
	}
	var out []domain.ParkingEvent
	err := db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListAllEvents returns every row in id order.
func ListAllEvents(ctx context.Context, db *gorm.DB) ([]domain.ParkingEvent, error) {
	var out []domain.ParkingEvent
	err := db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}
