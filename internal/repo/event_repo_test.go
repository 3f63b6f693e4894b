package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/parking-alpr/internal/domain"
)

func TestEvents_InsertFindClose(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	if _, err := FindOpenEvent(ctx, db, "WX1234A"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindOpenEvent on empty = %v, want ErrNotFound", err)
	}

	id, err := InsertEvent(ctx, db, &domain.ParkingEvent{Plate: "WX1234A", EntryTime: t0, Status: domain.StatusIn})
	if err != nil || id <= 0 {
		t.Fatalf("InsertEvent: id=%d err=%v", id, err)
	}

	ev, err := FindOpenEvent(ctx, db, "WX1234A")
	if err != nil {
		t.Fatalf("FindOpenEvent: %v", err)
	}
	if ev.ID != id || !ev.EntryTime.Equal(t0) || !ev.Open() {
		t.Fatalf("unexpected open event: %+v", ev)
	}

	exit := t0.Add(10 * time.Second)
	if err := CloseEvent(ctx, db, id, exit, 25); err != nil {
		t.Fatalf("CloseEvent: %v", err)
	}
	// The row is no longer IN, so a second close matches nothing.
	if err := CloseEvent(ctx, db, id, exit, 25); !errors.Is(err, ErrConflict) {
		t.Fatalf("second CloseEvent = %v, want ErrConflict", err)
	}

	all, err := ListAllEvents(ctx, db)
	if err != nil || len(all) != 1 {
		t.Fatalf("ListAllEvents: %v len=%d", err, len(all))
	}
	got := all[0]
	if got.Status != domain.StatusOut || got.FeePLN == nil || *got.FeePLN != 25 ||
		got.ExitTime == nil || !got.ExitTime.Equal(exit) {
		t.Fatalf("closed row = %+v", got)
	}
	if err := got.CheckShape(); err != nil {
		t.Fatalf("CheckShape: %v", err)
	}

	if _, err := FindOpenEvent(ctx, db, "WX1234A"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindOpenEvent after close = %v, want ErrNotFound", err)
	}
}

func TestEvents_SecondOpenRejected(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	if _, err := InsertEvent(ctx, db, &domain.ParkingEvent{Plate: "KR55555", EntryTime: now, Status: domain.StatusIn}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := InsertEvent(ctx, db, &domain.ParkingEvent{Plate: "KR55555", EntryTime: now, Status: domain.StatusIn})
	if !IsUniqueViolation(err) {
		t.Fatalf("second insert err = %v, want unique violation", err)
	}
	// A different plate is unaffected.
	if _, err := InsertEvent(ctx, db, &domain.ParkingEvent{Plate: "KR55556", EntryTime: now, Status: domain.StatusIn}); err != nil {
		t.Fatalf("other plate: %v", err)
	}
}

func TestEvents_Lists(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	plates := []string{"AAA1111", "BBB2222", "CCC3333"}
	var ids []int64
	for i, p := range plates {
		id, err := InsertEvent(ctx, db, &domain.ParkingEvent{Plate: p, EntryTime: base.Add(time.Duration(i) * time.Minute), Status: domain.StatusIn})
		if err != nil {
			t.Fatalf("insert %s: %v", p, err)
		}
		ids = append(ids, id)
	}
	if _, err := InsertEvent(ctx, db, &domain.ParkingEvent{Plate: "TEST123", EntryTime: base, Status: domain.StatusTest}); err != nil {
		t.Fatalf("insert TEST row: %v", err)
	}
	if err := CloseEvent(ctx, db, ids[0], base.Add(time.Hour), 9000); err != nil {
		t.Fatalf("CloseEvent: %v", err)
	}

	open, err := ListOpenEvents(ctx, db)
	if err != nil {
		t.Fatalf("ListOpenEvents: %v", err)
	}
	if len(open) != 2 || open[0].Plate != "CCC3333" || open[1].Plate != "BBB2222" {
		t.Fatalf("open = %+v", open)
	}

	recent, err := ListRecentEvents(ctx, db, 2)
	if err != nil {
		t.Fatalf("ListRecentEvents: %v", err)
	}
	if len(recent) != 2 || recent[0].Plate != "TEST123" || recent[1].Plate != "CCC3333" {
		t.Fatalf("recent = %+v", recent)
	}
	if none, err := ListRecentEvents(ctx, db, 0); err != nil || len(none) != 0 {
		t.Fatalf("ListRecentEvents(0) = %v, %v", none, err)
	}

	all, err := ListAllEvents(ctx, db)
	if err != nil || len(all) != 4 {
		t.Fatalf("ListAllEvents: %v len=%d", err, len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Fatalf("ids not increasing: %d then %d", all[i-1].ID, all[i].ID)
		}
	}
	if all[3].Status != domain.StatusTest {
		t.Fatalf("seed row status = %s", all[3].Status)
	}
}

func TestListOpenEvents_OrdersByID(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	// A backfilled row: inserted last, entered first.
	late, err := InsertEvent(ctx, db, &domain.ParkingEvent{Plate: "LATE001", EntryTime: base.Add(time.Hour), Status: domain.StatusIn})
	if err != nil {
		t.Fatalf("insert LATE001: %v", err)
	}
	early, err := InsertEvent(ctx, db, &domain.ParkingEvent{Plate: "BACK001", EntryTime: base, Status: domain.StatusIn})
	if err != nil {
		t.Fatalf("insert BACK001: %v", err)
	}

	open, err := ListOpenEvents(ctx, db)
	if err != nil {
		t.Fatalf("ListOpenEvents: %v", err)
	}
	if len(open) != 2 || open[0].ID != early || open[1].ID != late {
		t.Fatalf("open = %+v; want ids %d then %d", open, early, late)
	}
}
