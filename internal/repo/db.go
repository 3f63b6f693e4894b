// Package repo implements the data persistence layer for the parking ledger,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and Postgres, and the schema migration that installs
// the partial unique index guarding open sessions.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/parking-alpr/internal/domain"
)

// Supported values for Options.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenPlateIndex is the partial unique index that allows at most one IN row
// per plate.
const OpenPlateIndex = "uniq_open_plate"

// ErrSchemaMissing is returned by VerifySchema when a required table or
// constraint is absent. It is fatal: the ledger must not run without it.
var ErrSchemaMissing = errors.New("ledger schema incomplete")

// Options selects and tunes the backing database.
type Options struct {
	Driver      string        // sqlite | postgres
	DSN         string        // SQLite file path or Postgres URL
	BusyTimeout time.Duration // SQLite busy_timeout
	MaxOpen     int           // pool size; SQLite default 10
	Silent      bool          // silence GORM's logger
	Traced      bool          // emit an OTel span per query
}

// Open opens the database selected by opts.Driver.
func Open(opts Options) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(opts.Driver) {
	case "", DriverSQLite:
		db, err = openSQLite(opts)
	case DriverPostgres:
		db, err = OpenPostgres(opts)
	default:
		return nil, fmt.Errorf("unsupported DB driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	if opts.Traced {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("gorm tracing: %w", err)
		}
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database with the default options.
func OpenSQLite(path string) (*gorm.DB, error) {
	return openSQLite(Options{Driver: DriverSQLite, DSN: path})
}

func openSQLite(opts Options) (*gorm.DB, error) {
	path := opts.DSN
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	// Per-connection PRAGMAs go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
		path, busy.Milliseconds(),
	)

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(opts))
	if err != nil {
		return nil, err
	}

	maxOpen := opts.MaxOpen
	if maxOpen <= 0 {
		maxOpen = 10
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetMaxIdleConns(maxOpen)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// OpenPostgres opens a Postgres database through the pgx driver and verifies
// connectivity.
func OpenPostgres(opts Options) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(opts.DSN), gormConfig(opts))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpen)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func gormConfig(opts Options) *gorm.Config {
	cfg := &gorm.Config{TranslateError: true}
	if opts.Silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	return cfg
}

// TxOptionsFor returns the transaction options the writer should use for db.
// Postgres runs ledger writes at SERIALIZABLE; SQLite transactions are
// already serializable and the driver rejects explicit isolation levels.
func TxOptionsFor(db *gorm.DB) *sql.TxOptions {
	if db.Dialector.Name() == DriverPostgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// AutoMigrate creates the ledger tables and the open-session index.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.ParkingEvent{},
		&domain.Idempotency{},
	); err != nil {
		return err
	}
	// A plate may have many historical rows but only one IN row.
	return db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS " + OpenPlateIndex +
			" ON parking_events(plate) WHERE status = 'IN'",
	).Error
}

// VerifySchema checks that the ledger table and its uniqueness constraint
// exist. A missing constraint is reported as ErrSchemaMissing.
func VerifySchema(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasTable(&domain.ParkingEvent{}) {
		return fmt.Errorf("%w: table parking_events", ErrSchemaMissing)
	}
	if !m.HasIndex(&domain.ParkingEvent{}, OpenPlateIndex) {
		return fmt.Errorf("%w: index %s", ErrSchemaMissing, OpenPlateIndex)
	}
	return nil
}
