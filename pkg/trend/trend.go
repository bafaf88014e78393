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

// Package trend implements the two-tier vitals time-series store: 1 Hz raw
// samples and 1-minute aggregates, plus NIBP and alarm event tables.
package trend

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/mfreeman451/vitalmon/pkg/models"
	"github.com/mfreeman451/vitalmon/pkg/store"
	"go.uber.org/zap"
)

const (
	// RawRetention is how long raw rows are kept, in seconds.
	RawRetention int64 = 4 * 3600

	// AggregateRetention applies to the 1-minute, NIBP and alarm tables.
	AggregateRetention int64 = 72 * 3600

	// RawRangeLimit is the longest range answered from raw rows.
	RawRangeLimit int64 = 7200

	// MaxEvents caps NIBP and alarm event queries.
	MaxEvents = 500
)

// Param selects a trended parameter.
type Param int

const (
	ParamHR Param = iota
	ParamSpO2
	ParamRR
	ParamTemp
)

func (p Param) column() (string, bool) {
	switch p {
	case ParamHR:
		return "hr", true
	case ParamSpO2:
		return "spo2", true
	case ParamRR:
		return "rr", true
	case ParamTemp:
		return "temp", true
	default:
		return "", false
	}
}

func (p Param) String() string {
	c, ok := p.column()
	if !ok {
		return "unknown"
	}

	return c
}

var (
	ErrInvalidParam    = errors.New("invalid trend parameter")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrFailedToInsert  = errors.New("failed to insert trend row")
	ErrFailedToQuery   = errors.New("failed to query trend")
	ErrFailedToClean   = errors.New("failed to purge trend data")
)

// Point is one downsampled bucket. Temp values are x10 integers.
type Point struct {
	Timestamp int64   `json:"timestamp"`
	Avg       float64 `json:"avg"`
	Min       int     `json:"min"`
	Max       int     `json:"max"`
}

// NIBP is one discrete blood pressure measurement.
type NIBP struct {
	Timestamp int64 `json:"timestamp"`
	Sys       int   `json:"sys"`
	Dia       int   `json:"dia"`
	Map       int   `json:"map"`
}

// AlarmEvent is one recorded alarm edge.
type AlarmEvent struct {
	Timestamp int64           `json:"timestamp"`
	Severity  models.Severity `json:"severity"`
	Message   string          `json:"message"`
}

// Sample is one raw row. Zero fields were stored as NULL.
type Sample struct {
	Timestamp int64 `json:"timestamp"`
	HR        int   `json:"hr"`
	SpO2      int   `json:"spo2"`
	RR        int   `json:"rr"`
	TempX10   int   `json:"temp_x10"`
}

// Counts reports table sizes for diagnostics.
type Counts struct {
	Raw       int `json:"raw"`
	Aggregate int `json:"aggregate"`
	NIBP      int `json:"nibp"`
	Alarms    int `json:"alarms"`
}

// Store persists and downsamples trends.
type Store struct {
	db     *store.DB
	logger *zap.Logger
}

// New returns a trend store backed by db.
func New(db *store.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{db: db, logger: logger.With(zap.String("component", "trend"))}
}

// nullable maps the no-signal zero to NULL so aggregates skip it.
func nullable(v int) any {
	if v == 0 {
		return nil
	}

	return v
}

// InsertSample writes one raw row keyed by its second. Temp is rounded to
// the nearest tenth and stored x10. A repeated second replaces the row.
func (s *Store) InsertSample(ts int64, hr, spo2, rr int, temp float64) error {
	if ts <= 0 {
		return ErrInvalidArgument
	}

	if err := s.db.Ready(); err != nil {
		return err
	}

	_, err := s.db.Exec(`INSERT OR REPLACE INTO vitals_raw (ts, hr, spo2, rr, temp) VALUES (?, ?, ?, ?, ?)`,
		ts, nullable(hr), nullable(spo2), nullable(rr), nullable(models.TempToX10(temp)))
	if err != nil {
		return fmt.Errorf("%w raw: %w", ErrFailedToInsert, err)
	}

	return nil
}

// InsertVitals stores the continuous parameters of v and, when the sample
// carries a fresh reading, its NIBP triple.
func (s *Store) InsertVitals(v *models.Vitals) error {
	ts := v.TimestampMs / 1000

	if err := s.InsertSample(ts, v.HR, v.SpO2, v.RR, v.Temp); err != nil {
		return err
	}

	if v.NIBPFresh && v.HasNIBP() {
		return s.InsertNIBP(ts, v.NIBPSys, v.NIBPDia, v.NIBPMap)
	}

	return nil
}

// InsertNIBP appends a blood pressure measurement.
func (s *Store) InsertNIBP(ts int64, sys, dia, mapP int) error {
	if ts <= 0 || sys <= 0 || dia <= 0 {
		return ErrInvalidArgument
	}

	if err := s.db.Ready(); err != nil {
		return err
	}

	if mapP <= 0 {
		mapP = models.MeanArterial(sys, dia)
	}

	if _, err := s.db.Exec(`INSERT INTO nibp_measurements (ts, sys, dia, map) VALUES (?, ?, ?, ?)`,
		ts, sys, dia, mapP); err != nil {
		return fmt.Errorf("%w nibp: %w", ErrFailedToInsert, err)
	}

	return nil
}

// InsertAlarm appends an alarm event.
func (s *Store) InsertAlarm(ts int64, sev models.Severity, message string) error {
	if ts <= 0 {
		return ErrInvalidArgument
	}

	if err := s.db.Ready(); err != nil {
		return err
	}

	if _, err := s.db.Exec(`INSERT INTO alarm_events (ts, severity, message) VALUES (?, ?, ?)`,
		ts, int(sev), message); err != nil {
		return fmt.Errorf("%w alarm: %w", ErrFailedToInsert, err)
	}

	return nil
}

// AggregateMinute writes the avg/min/max row for the window
// (minuteTs-60, minuteTs]. It reports false when the window holds no raw
// rows, in which case nothing is written.
func (s *Store) AggregateMinute(minuteTs int64) (bool, error) {
	if minuteTs <= 0 {
		return false, ErrInvalidArgument
	}

	if err := s.db.Ready(); err != nil {
		return false, err
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM vitals_raw WHERE ts > ? AND ts <= ?`,
		minuteTs-60, minuteTs).Scan(&n); err != nil {
		return false, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	if n == 0 {
		return false, nil
	}

	_, err := s.db.Exec(`INSERT OR REPLACE INTO vitals_1min (ts,
			hr_avg, hr_min, hr_max, spo2_avg, spo2_min, spo2_max,
			rr_avg, rr_min, rr_max, temp_avg, temp_min, temp_max)
		SELECT ?,
			AVG(hr), MIN(hr), MAX(hr), AVG(spo2), MIN(spo2), MAX(spo2),
			AVG(rr), MIN(rr), MAX(rr), AVG(temp), MIN(temp), MAX(temp)
		FROM vitals_raw WHERE ts > ? AND ts <= ?`, minuteTs, minuteTs-60, minuteTs)
	if err != nil {
		return false, fmt.Errorf("%w aggregate: %w", ErrFailedToInsert, err)
	}

	return true, nil
}

// bucketSize returns the bucket width in seconds and whether the range is
// served from raw rows.
func bucketSize(rangeLen int64, maxPoints int) (int64, bool) {
	if rangeLen <= RawRangeLimit {
		b := rangeLen / int64(maxPoints)
		if b < 1 {
			b = 1
		}

		return b, true
	}

	minutes := (rangeLen / 60) / int64(maxPoints)
	if minutes < 1 {
		minutes = 1
	}

	return minutes * 60, false
}

// QueryParam returns at most maxPoints ascending buckets for p over
// [start, end]. Ranges up to two hours read raw rows, longer ones read the
// 1-minute aggregates.
func (s *Store) QueryParam(p Param, start, end int64, maxPoints int) ([]Point, error) {
	col, ok := p.column()
	if !ok {
		return nil, ErrInvalidParam
	}

	if maxPoints <= 0 || end < start {
		return nil, ErrInvalidArgument
	}

	if err := s.db.Ready(); err != nil {
		return nil, err
	}

	bucket, raw := bucketSize(end-start, maxPoints)

	var q string
	if raw {
		q = fmt.Sprintf(`SELECT ((ts - ?) / ?) * ? + ? AS b, AVG(%[1]s), MIN(%[1]s), MAX(%[1]s)
			FROM vitals_raw
			WHERE ts >= ? AND ts <= ? AND %[1]s IS NOT NULL
			GROUP BY b ORDER BY b DESC LIMIT ?`, col)
	} else {
		q = fmt.Sprintf(`SELECT ((ts - ?) / ?) * ? + ? AS b, AVG(%[1]s_avg), MIN(%[1]s_min), MAX(%[1]s_max)
			FROM vitals_1min
			WHERE ts >= ? AND ts <= ? AND %[1]s_avg IS NOT NULL
			GROUP BY b ORDER BY b DESC LIMIT ?`, col)
	}

	rows, err := s.db.Query(q, start, bucket, bucket, start, start, end, maxPoints)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrFailedToQuery, p, err)
	}
	defer s.db.CloseRows(rows)

	points := make([]Point, 0, maxPoints)

	for rows.Next() {
		var pt Point
		if err := rows.Scan(&pt.Timestamp, &pt.Avg, &pt.Min, &pt.Max); err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrFailedToQuery, p, err)
		}

		points = append(points, pt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrFailedToQuery, p, err)
	}

	// Newest buckets are kept when the range yields more than maxPoints.
	slices.Reverse(points)

	return points, nil
}

// QueryNIBP returns up to MaxEvents measurements in [start, end], ascending.
func (s *Store) QueryNIBP(start, end int64) ([]NIBP, error) {
	if end < start {
		return nil, ErrInvalidArgument
	}

	if err := s.db.Ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT ts, sys, dia, map FROM nibp_measurements
		WHERE ts >= ? AND ts <= ? ORDER BY ts ASC, id ASC LIMIT ?`, start, end, MaxEvents)
	if err != nil {
		return nil, fmt.Errorf("%w nibp: %w", ErrFailedToQuery, err)
	}
	defer s.db.CloseRows(rows)

	var out []NIBP

	for rows.Next() {
		var n NIBP
		if err := rows.Scan(&n.Timestamp, &n.Sys, &n.Dia, &n.Map); err != nil {
			return nil, fmt.Errorf("%w nibp: %w", ErrFailedToQuery, err)
		}

		out = append(out, n)
	}

	return out, rows.Err()
}

// QueryAlarms returns up to MaxEvents alarm events in [start, end], ascending.
func (s *Store) QueryAlarms(start, end int64) ([]AlarmEvent, error) {
	if end < start {
		return nil, ErrInvalidArgument
	}

	if err := s.db.Ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT ts, severity, message FROM alarm_events
		WHERE ts >= ? AND ts <= ? ORDER BY ts ASC, id ASC LIMIT ?`, start, end, MaxEvents)
	if err != nil {
		return nil, fmt.Errorf("%w alarms: %w", ErrFailedToQuery, err)
	}
	defer s.db.CloseRows(rows)

	var out []AlarmEvent

	for rows.Next() {
		var (
			a   AlarmEvent
			sev int
		)

		if err := rows.Scan(&a.Timestamp, &sev, &a.Message); err != nil {
			return nil, fmt.Errorf("%w alarms: %w", ErrFailedToQuery, err)
		}

		a.Severity = models.Severity(sev)
		out = append(out, a)
	}

	return out, rows.Err()
}

// Latest returns the newest raw row.
func (s *Store) Latest() (*Sample, error) {
	if err := s.db.Ready(); err != nil {
		return nil, err
	}

	var (
		out               Sample
		hr, spo2, rr, tmp sql.NullInt64
	)

	err := s.db.QueryRow(`SELECT ts, hr, spo2, rr, temp FROM vitals_raw ORDER BY ts DESC LIMIT 1`).
		Scan(&out.Timestamp, &hr, &spo2, &rr, &tmp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	out.HR = int(hr.Int64)
	out.SpO2 = int(spo2.Int64)
	out.RR = int(rr.Int64)
	out.TempX10 = int(tmp.Int64)

	return &out, nil
}

// PurgeOld applies the retention policy relative to now (Unix seconds).
func (s *Store) PurgeOld(now int64) error {
	if err := s.db.Ready(); err != nil {
		return err
	}

	err := s.db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM vitals_raw WHERE ts < ?`, now-RawRetention); err != nil {
			return fmt.Errorf("%w raw: %w", ErrFailedToClean, err)
		}

		cutoff := now - AggregateRetention

		for _, q := range []string{
			`DELETE FROM vitals_1min WHERE ts < ?`,
			`DELETE FROM nibp_measurements WHERE ts < ?`,
			`DELETE FROM alarm_events WHERE ts < ?`,
		} {
			if _, err := tx.Exec(q, cutoff); err != nil {
				return fmt.Errorf("%w: %w", ErrFailedToClean, err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("trend retention applied", zap.Int64("now", now))

	return nil
}

// Counts returns row counts per table.
func (s *Store) Counts() (Counts, error) {
	var c Counts

	if err := s.db.Ready(); err != nil {
		return c, err
	}

	for _, t := range []struct {
		table string
		dst   *int
	}{
		{"vitals_raw", &c.Raw},
		{"vitals_1min", &c.Aggregate},
		{"nibp_measurements", &c.NIBP},
		{"alarm_events", &c.Alarms},
	} {
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + t.table).Scan(t.dst); err != nil {
			return c, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
		}
	}

	return c, nil
}
