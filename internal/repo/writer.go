package repo

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"gorm.io/gorm"
)

// ErrWriterClosed is returned by Do after Close.
var ErrWriterClosed = errors.New("writer closed")

// TxFn is a unit of work executed inside one write transaction.
type TxFn func(ctx context.Context, tx *gorm.DB) error

type job struct {
	ctx context.Context
	fn  TxFn
	ch  chan error
}

// Writer runs write transactions one at a time on a single goroutine, in
// submission order. All mutating ledger operations go through it, so the
// check and the write of one operation never interleave with another
// operation of the same process.
type Writer struct {
	db   *gorm.DB
	opts *sql.TxOptions
	jobs chan job
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewWriter starts a writer for db. Transactions use TxOptionsFor(db).
func NewWriter(db *gorm.DB) *Writer {
	w := &Writer{
		db:   db,
		opts: TxOptionsFor(db),
		jobs: make(chan job, 256),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

// Close stops accepting work, drains queued jobs, and waits for the loop.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()
	<-w.done
}

// Do runs fn in a transaction on the writer goroutine. fn's error rolls the
// transaction back; nil commits it. If ctx expires while the job is queued
// or running, Do returns ctx.Err(); a job already running still finishes and
// its result is discarded.
func (w *Writer) Do(ctx context.Context, fn TxFn) error {
	ch := make(chan error, 1)
	if err := w.submit(ctx, job{ctx: ctx, fn: fn, ch: ch}); err != nil {
		return err
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) submit(ctx context.Context, j job) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer close(w.done)

	for j := range w.jobs {
		if err := j.ctx.Err(); err != nil {
			j.ch <- err
			continue
		}
		j.ch <- w.db.WithContext(j.ctx).Transaction(func(tx *gorm.DB) error {
			return j.fn(j.ctx, tx)
		}, w.optsSlice()...)
	}
}

func (w *Writer) optsSlice() []*sql.TxOptions {
	if w.opts == nil {
		return nil
	}
	return []*sql.TxOptions{w.opts}
}
