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

// Package audit implements the append-only audit trail.
package audit

import (
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mfreeman451/vitalmon/pkg/store"
	"go.uber.org/zap"
)

// Log is the sqlite-backed audit trail.
type Log struct {
	db     *store.DB
	logger *zap.Logger
	now    func() time.Time
}

var _ Recorder = (*Log)(nil)

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// New returns an audit log backed by db.
func New(db *store.DB, logger *zap.Logger, opts ...Option) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Log{
		db:     db,
		logger: logger.With(zap.String("component", "audit")),
		now:    time.Now,
	}

	for _, o := range opts {
		o(l)
	}

	return l
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}

// Record inserts an entry stamped with the current wall-clock second.
func (l *Log) Record(ev Event, username, message string) error {
	if !ev.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidEvent, ev)
	}

	if err := l.db.Ready(); err != nil {
		return err
	}

	if username == "" {
		username = systemUser
	}

	message = truncate(message, MaxMessageLen)

	_, err := l.db.Exec(`INSERT INTO audit_log (event, username, message, ts) VALUES (?, ?, ?, ?)`,
		int(ev), username, message, l.now().Unix())
	if err != nil {
		l.logger.Error("audit insert failed", zap.Stringer("event", ev), zap.Error(err))

		return fmt.Errorf("%w: %w", ErrFailedToRecord, err)
	}

	l.logger.Debug("audit", zap.Stringer("event", ev), zap.String("user", username), zap.String("message", message))

	return nil
}

// Recordf is the formatted variant of Record.
func (l *Log) Recordf(ev Event, username, format string, args ...any) error {
	return l.Record(ev, username, fmt.Sprintf(format, args...))
}

func clampLimit(limit int) (int, error) {
	if limit <= 0 {
		return 0, ErrInvalidArgument
	}

	if limit > MaxResults {
		limit = MaxResults
	}

	return limit, nil
}

const selectEntries = `SELECT id, event, username, message, ts FROM audit_log`

// Recent returns up to limit newest entries.
func (l *Log) Recent(limit int) ([]Entry, error) {
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}

	return l.query(selectEntries+` ORDER BY ts DESC, id DESC LIMIT ?`, limit)
}

// ByUser returns up to limit newest entries recorded for username.
func (l *Log) ByUser(username string, limit int) ([]Entry, error) {
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}

	if username == "" {
		return nil, ErrInvalidArgument
	}

	return l.query(selectEntries+` WHERE username = ? ORDER BY ts DESC, id DESC LIMIT ?`, username, limit)
}

// ByEvent returns up to limit newest entries of the given event.
func (l *Log) ByEvent(ev Event, limit int) ([]Entry, error) {
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}

	if !ev.Valid() {
		return nil, ErrInvalidEvent
	}

	return l.query(selectEntries+` WHERE event = ? ORDER BY ts DESC, id DESC LIMIT ?`, int(ev), limit)
}

// Range returns up to MaxResults newest entries with start <= ts <= end.
func (l *Log) Range(start, end int64) ([]Entry, error) {
	if end < start {
		return nil, ErrInvalidArgument
	}

	return l.query(selectEntries+` WHERE ts >= ? AND ts <= ? ORDER BY ts DESC, id DESC LIMIT ?`,
		start, end, MaxResults)
}

func (l *Log) query(q string, args ...any) ([]Entry, error) {
	if err := l.db.Ready(); err != nil {
		return nil, err
	}

	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}
	defer l.db.CloseRows(rows)

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	entries := make([]Entry, 0, MaxResults)

	for rows.Next() {
		var (
			e  Entry
			ev int
		)

		if err := rows.Scan(&e.ID, &ev, &e.Username, &e.Message, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
		}

		e.Event = Event(ev)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	return entries, nil
}

// PurgeOld deletes entries strictly older than now - maxAge seconds. A
// maxAge of 0 selects DefaultRetention; use 1 to purge nearly everything.
func (l *Log) PurgeOld(maxAge int64) (int64, error) {
	if maxAge < 0 {
		return 0, ErrInvalidArgument
	}

	if err := l.db.Ready(); err != nil {
		return 0, err
	}

	if maxAge == 0 {
		maxAge = DefaultRetention
	}

	cutoff := l.now().Unix() - maxAge

	res, err := l.db.Exec(`DELETE FROM audit_log WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFailedToPurge, err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		l.logger.Info("purged audit entries", zap.Int64("count", n), zap.Int64("cutoff", cutoff))
	}

	return n, nil
}

// Count returns the number of stored entries.
func (l *Log) Count() (int, error) {
	if err := l.db.Ready(); err != nil {
		return 0, err
	}

	var n int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM audit_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	return n, nil
}
