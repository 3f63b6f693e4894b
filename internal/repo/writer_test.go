package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/parking-alpr/internal/domain"
)

func TestWriter_CommitAndRollback(t *testing.T) {
	db := newTestDB(t)
	w := NewWriter(db)
	t.Cleanup(w.Close)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	err := w.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		_, err := InsertEvent(ctx, tx, &domain.ParkingEvent{Plate: "AB12345", EntryTime: now, Status: domain.StatusIn})
		return err
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	boom := errors.New("boom")
	err = w.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if _, err := InsertEvent(ctx, tx, &domain.ParkingEvent{Plate: "CD12345", EntryTime: now, Status: domain.StatusIn}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("rollback err = %v, want boom", err)
	}

	all, err := ListAllEvents(ctx, db)
	if err != nil {
		t.Fatalf("ListAllEvents: %v", err)
	}
	if len(all) != 1 || all[0].Plate != "AB12345" {
		t.Fatalf("rows after rollback = %+v", all)
	}
}

func TestWriter_SerializesConcurrentCheckThenInsert(t *testing.T) {
	db := newTestDB(t)
	w := NewWriter(db)
	t.Cleanup(w.Close)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
				if _, err := FindOpenEvent(ctx, tx, "ZZ99999"); err == nil {
					return nil
				} else if !errors.Is(err, ErrNotFound) {
					return err
				}
				if _, err := InsertEvent(ctx, tx, &domain.ParkingEvent{Plate: "ZZ99999", EntryTime: now, Status: domain.StatusIn}); err != nil {
					return err
				}
				mu.Lock()
				created++
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
}

func TestWriter_ContextCanceledBeforeRun(t *testing.T) {
	db := newTestDB(t)
	w := NewWriter(db)
	t.Cleanup(w.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := w.Do(ctx, func(context.Context, *gorm.DB) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if called {
		t.Fatal("fn must not run for a canceled context")
	}
}

func TestWriter_Closed(t *testing.T) {
	db := newTestDB(t)
	w := NewWriter(db)
	w.Close()
	w.Close() // idempotent

	err := w.Do(context.Background(), func(context.Context, *gorm.DB) error { return nil })
	if !errors.Is(err, ErrWriterClosed) {
		t.Fatalf("err = %v, want ErrWriterClosed", err)
	}
}
