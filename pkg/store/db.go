/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package store provides the sqlite file store shared by the monitor modules.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

const (
	driverName  = "sqlite3"
	busyTimeout = 5000
)

// DB is the process-wide store. All modules share one connection, and the
// owner thread serialises access to it.
type DB struct {
	*sql.DB
	path   string
	logger *zap.Logger
	closed atomic.Bool
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for store diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.logger = l
		}
	}
}

var memSeq atomic.Int64

// Open opens (or creates) the store file at path, enables WAL mode, verifies
// integrity and applies the schema and any pending migrations.
func Open(path string, opts ...Option) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", path, busyTimeout)

	return open(path, dsn, opts...)
}

// OpenMemory opens a private in-memory store, used by tests and dry runs.
func OpenMemory(opts ...Option) (*DB, error) {
	name := fmt.Sprintf("vitalmon_mem_%d", memSeq.Add(1))
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=%d", name, busyTimeout)

	return open(":memory:", dsn, opts...)
}

// Wrap adopts an already open handle without touching its schema. It is
// meant for sqlmock-backed tests.
func Wrap(sqlDB *sql.DB, opts ...Option) *DB {
	db := &DB{DB: sqlDB, path: "wrapped", logger: zap.NewNop()}
	for _, o := range opts {
		o(db)
	}

	return db
}

func open(path, dsn string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedOpenDB, err)
	}

	// One connection keeps in-memory stores alive and matches the
	// single-writer model of the core.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, path: path, logger: zap.NewNop()}
	for _, o := range opts {
		o(db)
	}

	db.logger = db.logger.With(zap.String("component", "store"))

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %w", ErrFailedOpenDB, err)
	}

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %w", ErrFailedToEnableWAL, err)
	}

	if err := db.checkIntegrity(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if err := db.initSchema(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %w", ErrFailedToInit, err)
	}

	if err := db.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	db.logger.Info("store opened", zap.String("path", path))

	return db, nil
}

func (db *DB) initSchema() error {
	_, err := db.Exec(createTablesSQL)

	return err
}

func (db *DB) checkIntegrity() error {
	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if result != "ok" {
		return fmt.Errorf("%w: %s", ErrCorrupt, result)
	}

	return nil
}

// Path returns the file the store was opened from.
func (db *DB) Path() string {
	return db.path
}

// Logger returns the store's logger.
func (db *DB) Logger() *zap.Logger {
	if db == nil || db.logger == nil {
		return zap.NewNop()
	}

	return db.logger
}

// Ready returns ErrNotOpen for a nil or closed store.
func (db *DB) Ready() error {
	if db == nil || db.DB == nil || db.closed.Load() {
		return ErrNotOpen
	}

	return nil
}

// Close closes the store. Later operations report ErrNotOpen.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}

	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}

	return db.DB.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back when fn or the commit fails.
func (db *DB) WithTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToBeginTx, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				db.Logger().Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToCommit, err)
	}

	return nil
}

// CloseRows closes rows and logs any error.
func (db *DB) CloseRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		db.Logger().Warn("failed to close rows", zap.Error(err))
	}
}
