// Package services – Ledger
//
// This file implements Ledger, the component that owns the parking session
// lifecycle: entries, exits with fee settlement, blocked-exit audit rows and
// operator releases. Every mutating operation runs as one transaction on the
// repo.Writer goroutine; the partial unique index on open sessions is the
// storage-level guard against a second IN row for a plate.
//
// Observability: public methods are OpenTelemetry-instrumented and counted
// in parking_ledger_operations_total.

package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/parking-alpr/internal/billing"
	"github.com/tbourn/parking-alpr/internal/domain"
	"github.com/tbourn/parking-alpr/internal/plate"
	"github.com/tbourn/parking-alpr/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultStoreTimeout bounds each ledger operation when no timeout is set.
const DefaultStoreTimeout = 5 * time.Second

// ExportHeader is the column order of ExportCSV.
var ExportHeader = []string{"id", "plate", "entry_time", "exit_time", "fee_pln", "status"}

// Receipt describes a closed session.
type Receipt struct {
	EventID         int64     `json:"event_id"`
	Plate           string    `json:"plate"`
	EntryTime       time.Time `json:"entry_time"`
	ExitTime        time.Time `json:"exit_time"`
	DurationSeconds int64     `json:"duration_seconds"`
	FeePLN          int64     `json:"fee_pln"`
}

// ExitOutcome is the result of RecordExit. Exactly one of Blocked or Receipt
// is set.
type ExitOutcome struct {
	Blocked        bool     `json:"blocked"`
	BlockedEventID int64    `json:"blocked_event_id,omitempty"`
	Receipt        *Receipt `json:"receipt,omitempty"`
}

// Ledger records parking sessions.
type Ledger struct {
	DB      *gorm.DB     // read pool
	Writer  *repo.Writer // serialized write transactions
	Tariff  billing.Tariff
	Timeout time.Duration
}

// NewLedger wires a Ledger. A zero tariff falls back to billing.DefaultTariff
// and a non-positive timeout to DefaultStoreTimeout.
func NewLedger(db *gorm.DB, w *repo.Writer, tariff billing.Tariff, timeout time.Duration) *Ledger {
	if tariff.UnitSeconds <= 0 || tariff.UnitPrice <= 0 {
		tariff = billing.DefaultTariff
	}
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Ledger{DB: db, Writer: w, Tariff: tariff, Timeout: timeout}
}

// RecordEntry opens a session for p at when and returns the new event id.
// If p already has an open session it returns *AlreadyParkedError and
// writes nothing.
func (l *Ledger) RecordEntry(ctx context.Context, p string, when time.Time) (int64, error) {
	ctx, span := l.start(ctx, "RecordEntry", p)
	defer span.End()

	if !plate.Valid(p) {
		observe("entry", ErrInvalidPlate)
		return 0, ErrInvalidPlate
	}
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	when = stamp(when)

	var id int64
	err := l.Writer.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		id, err = repo.InsertEvent(ctx, tx, &domain.ParkingEvent{
			Plate:     p,
			EntryTime: when,
			Status:    domain.StatusIn,
		})
		return err
	})
	if err != nil && repo.IsUniqueViolation(err) {
		// The failed transaction is gone; read the conflicting row from the
		// pool. It may have closed in the meantime, in which case only the
		// plate is reported.
		conflict := &AlreadyParkedError{Plate: p}
		if ev, ferr := repo.FindOpenEvent(ctx, l.DB, p); ferr == nil {
			conflict.EventID, conflict.EntryTime = ev.ID, ev.EntryTime
		}
		err = conflict
	} else if err != nil {
		err = l.storeErr(ctx, "record entry", err)
	}
	observe("entry", err)
	if err != nil {
		recordErr(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("event.id", id))
	return id, nil
}

// RecordExit closes the newest open session for p at when and returns its
// receipt. Without an open session a BLOCKED audit row is appended and the
// outcome is Blocked; that is a policy decline, not an error.
func (l *Ledger) RecordExit(ctx context.Context, p string, when time.Time) (ExitOutcome, error) {
	ctx, span := l.start(ctx, "RecordExit", p)
	defer span.End()

	if !plate.Valid(p) {
		observe("exit", ErrInvalidPlate)
		return ExitOutcome{}, ErrInvalidPlate
	}
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	when = stamp(when)

	var out ExitOutcome
	err := l.Writer.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		out = ExitOutcome{}
		ev, err := repo.FindOpenEvent(ctx, tx, p)
		if errors.Is(err, repo.ErrNotFound) {
			id, err := repo.InsertEvent(ctx, tx, &domain.ParkingEvent{
				Plate:     p,
				EntryTime: when,
				Status:    domain.StatusBlocked,
			})
			if err != nil {
				return err
			}
			out.Blocked, out.BlockedEventID = true, id
			return nil
		}
		if err != nil {
			return err
		}

		fee := l.Tariff.Fee(ev.EntryTime, when)
		if err := repo.CloseEvent(ctx, tx, ev.ID, when, fee); err != nil {
			return err
		}
		dur := int64(when.Sub(ev.EntryTime) / time.Second)
		if dur < 0 {
			dur = 0
		}
		out.Receipt = &Receipt{
			EventID:         ev.ID,
			Plate:           p,
			EntryTime:       ev.EntryTime.UTC(),
			ExitTime:        when,
			DurationSeconds: dur,
			FeePLN:          fee,
		}
		return nil
	})
	if err != nil {
		err = l.storeErr(ctx, "record exit", err)
		observe("exit", err)
		recordErr(span, err)
		return ExitOutcome{}, err
	}

	if out.Blocked {
		ledgerOps.WithLabelValues("exit", "blocked").Inc()
		span.SetAttributes(attribute.Bool("exit.blocked", true))
	} else {
		ledgerOps.WithLabelValues("exit", "ok").Inc()
		feeCharged.Observe(float64(out.Receipt.FeePLN))
		span.SetAttributes(
			attribute.Int64("event.id", out.Receipt.EventID),
			attribute.Int64("fee.pln", out.Receipt.FeePLN),
		)
	}
	return out, nil
}

// ManualExit appends a standalone MANUAL_EXIT row for an operator release.
// Any open session of p is left untouched.
func (l *Ledger) ManualExit(ctx context.Context, p string, when time.Time) (int64, error) {
	return l.insertTerminal(ctx, "ManualExit", "manual_exit", p, when, domain.StatusManualExit)
}

// SeedTest appends a TEST row. It backs the development seed path.
func (l *Ledger) SeedTest(ctx context.Context, p string, when time.Time) (int64, error) {
	return l.insertTerminal(ctx, "SeedTest", "seed", p, when, domain.StatusTest)
}

func (l *Ledger) insertTerminal(ctx context.Context, name, op, p string, when time.Time, st domain.Status) (int64, error) {
	ctx, span := l.start(ctx, name, p)
	defer span.End()

	if !plate.Valid(p) {
		observe(op, ErrInvalidPlate)
		return 0, ErrInvalidPlate
	}
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	when = stamp(when)

	ev := &domain.ParkingEvent{Plate: p, EntryTime: when, Status: st}
	if st == domain.StatusManualExit {
		ev.ExitTime = &when
	}
	var id int64
	err := l.Writer.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		id, err = repo.InsertEvent(ctx, tx, ev)
		return err
	})
	if err != nil {
		err = l.storeErr(ctx, name, err)
	}
	observe(op, err)
	if err != nil {
		recordErr(span, err)
		return 0, err
	}
	return id, nil
}

// ListOpen returns every open session, newest id first.
func (l *Ledger) ListOpen(ctx context.Context) ([]domain.ParkingEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	out, err := repo.ListOpenEvents(ctx, l.DB)
	if err != nil {
		return nil, l.storeErr(ctx, "list open", err)
	}
	return out, nil
}

// ListRecent returns at most limit events, newest id first.
func (l *Ledger) ListRecent(ctx context.Context, limit int) ([]domain.ParkingEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	out, err := repo.ListRecentEvents(ctx, l.DB, limit)
	if err != nil {
		return nil, l.storeErr(ctx, "list recent", err)
	}
	return out, nil
}

// ListAll returns the full ledger in id order.
func (l *Ledger) ListAll(ctx context.Context) ([]domain.ParkingEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	out, err := repo.ListAllEvents(ctx, l.DB)
	if err != nil {
		return nil, l.storeErr(ctx, "list all", err)
	}
	return out, nil
}

// Summary returns aggregate counts and revenue.
func (l *Ledger) Summary(ctx context.Context) (repo.LedgerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	st, err := repo.Stats(ctx, l.DB)
	if err != nil {
		return repo.LedgerStats{}, l.storeErr(ctx, "summary", err)
	}
	return st, nil
}

// ExportCSV writes ListAll to w as CSV with ExportHeader. Times are RFC 3339
// in UTC; null cells are empty.
func (l *Ledger) ExportCSV(ctx context.Context, w io.Writer) error {
	events, err := l.ListAll(ctx)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	for _, ev := range events {
		if err := ev.CheckShape(); err != nil {
			log.Warn().Err(err).Msg("export: malformed ledger row")
		}
		if err := cw.Write(exportRow(ev)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportRow(ev domain.ParkingEvent) []string {
	exit, fee := "", ""
	if ev.ExitTime != nil {
		exit = ev.ExitTime.UTC().Format(time.RFC3339)
	}
	if ev.FeePLN != nil {
		fee = strconv.FormatInt(*ev.FeePLN, 10)
	}
	return []string{
		strconv.FormatInt(ev.ID, 10),
		ev.Plate,
		ev.EntryTime.UTC().Format(time.RFC3339),
		exit,
		fee,
		string(ev.Status),
	}
}

// storeErr classifies a store failure. Deadline expiry and lock contention
// become transient errors; everything else is wrapped unchanged.
func (l *Ledger) storeErr(ctx context.Context, op string, err error) error {
	switch {
	case repo.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrStoreTimeout, err)
	case repo.IsBusy(err):
		return fmt.Errorf("%s: %w: %w", op, ErrStoreBusy, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (l *Ledger) start(ctx context.Context, name, p string) (context.Context, trace.Span) {
	tr := otel.Tracer("services/Ledger")
	return tr.Start(ctx, name, trace.WithAttributes(attribute.String("plate", p)))
}

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// stamp stores times in UTC at second precision.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Second)
}

func observe(op string, err error) {
	ledgerOps.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyParked):
		return "already_parked"
	case errors.Is(err, ErrInvalidPlate):
		return "invalid"
	case IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
