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

// Package syncqueue is the durable outbound export queue. Items survive
// restart in every non-terminal state.
package syncqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mfreeman451/vitalmon/pkg/store"
)

// Queue is the sqlite-backed FIFO.
type Queue struct {
	db         *store.DB
	transport  Transport
	logger     *zap.Logger
	now        func() time.Time
	capacity   int
	maxRetries int
}

// Option configures a Queue.
type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// WithCapacity bounds the total row count.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithMaxRetries sets max_retries for newly pushed items.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

// Open returns the queue and returns any SENDING rows left by a crash to
// PENDING.
func Open(db *store.DB, transport Transport, logger *zap.Logger, opts ...Option) (*Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Queue{
		db:         db,
		transport:  transport,
		logger:     logger.With(zap.String("component", "syncqueue")),
		now:        time.Now,
		capacity:   DefaultCapacity,
		maxRetries: DefaultMaxRetries,
	}

	for _, o := range opts {
		o(q)
	}

	if err := db.Ready(); err != nil {
		return nil, err
	}

	if err := q.recoverSending(); err != nil {
		return nil, err
	}

	return q, nil
}

// recoverSending returns rows left in SENDING to PENDING.
func (q *Queue) recoverSending() error {
	res, err := q.db.Exec(`UPDATE sync_queue SET status = ? WHERE status = ?`, StatusPending, StatusSending)
	if err != nil {
		return fmt.Errorf("%w: recover sending: %w", ErrFailedToUpdate, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		q.logger.Warn("recovered interrupted items", zap.Int64("count", n))
	}

	return nil
}

// SetTransport replaces the export transport.
func (q *Queue) SetTransport(t Transport) {
	q.transport = t
}

// Push enqueues payload as PENDING and returns its id.
func (q *Queue) Push(t ItemType, payload string) (int64, error) {
	if !t.Valid() {
		return 0, fmt.Errorf("%w: type %d", ErrInvalidArgument, t)
	}

	if len(payload) > MaxPayloadBytes {
		return 0, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	if err := q.db.Ready(); err != nil {
		return 0, err
	}

	total, err := q.Len()
	if err != nil {
		return 0, err
	}

	if total >= q.capacity {
		return 0, fmt.Errorf("%w: %d items", ErrQueueFull, total)
	}

	res, err := q.db.Exec(`INSERT INTO sync_queue (type, status, payload, created_ts, max_retries)
		VALUES (?, ?, ?, ?, ?)`, t, StatusPending, payload, q.now().Unix(), q.maxRetries)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFailedToPush, err)
	}

	return res.LastInsertId()
}

// Len returns the total row count in every status.
func (q *Queue) Len() (int, error) {
	var n int

	if err := q.db.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	return n, nil
}

const selectItems = `SELECT id, type, status, payload, created_ts, last_attempt_ts, retry_count, max_retries
	FROM sync_queue`

func scanItem(sc interface{ Scan(...any) error }) (*Item, error) {
	var it Item

	if err := sc.Scan(&it.ID, &it.Type, &it.Status, &it.Payload, &it.CreatedTs,
		&it.LastAttemptTs, &it.RetryCount, &it.MaxRetries); err != nil {
		return nil, err
	}

	return &it, nil
}

// Get returns one item by id.
func (q *Queue) Get(id int64) (*Item, error) {
	if err := q.db.Ready(); err != nil {
		return nil, err
	}

	it, err := scanItem(q.db.QueryRow(selectItems+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	return it, nil
}

func (q *Queue) due(ctx context.Context, limit int) ([]*Item, error) {
	rows, err := q.db.QueryContext(ctx, selectItems+` WHERE status IN (?, ?)
		ORDER BY created_ts ASC, id ASC LIMIT ?`, StatusPending, StatusRetry, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}
	defer q.db.CloseRows(rows)

	var items []*Item

	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
		}

		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	return items, nil
}

func (q *Queue) setStatus(ctx context.Context, it *Item) error {
	_, err := q.db.ExecContext(ctx, `UPDATE sync_queue SET status = ?, retry_count = ?, last_attempt_ts = ?
		WHERE id = ?`, it.Status, it.RetryCount, it.LastAttemptTs, it.ID)
	if err != nil {
		return fmt.Errorf("%w: %d: %w", ErrFailedToUpdate, it.ID, err)
	}

	return nil
}

// Process exports up to min(limit, 16) due items, oldest first, and
// returns how many were sent.
func (q *Queue) Process(ctx context.Context, limit int) (int, error) {
	res, err := q.ProcessBatch(ctx, limit)

	return res.Sent, err
}

// ProcessBatch is Process with the full per-batch outcome.
func (q *Queue) ProcessBatch(ctx context.Context, limit int) (BatchResult, error) {
	var res BatchResult

	items, err := q.claim(ctx, limit)
	if err != nil {
		return res, err
	}

	for i, it := range items {
		if err := ctx.Err(); err != nil {
			if rerr := q.release(items[i:]); rerr != nil {
				return res, rerr
			}

			return res, err
		}

		if err := q.complete(ctx, it, q.send(ctx, it), &res); err != nil {
			return res, err
		}
	}

	return res, nil
}

// claim selects up to min(limit, MaxBatch) due items and marks them SENDING.
func (q *Queue) claim(ctx context.Context, limit int) ([]*Item, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit %d", ErrInvalidArgument, limit)
	}

	if err := q.db.Ready(); err != nil {
		return nil, err
	}

	items, err := q.due(ctx, min(limit, MaxBatch))
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		it.Status = StatusSending
		if err := q.setStatus(ctx, it); err != nil {
			return nil, err
		}
	}

	return items, nil
}

// release returns claimed items that were never sent to PENDING.
func (q *Queue) release(items []*Item) error {
	for _, it := range items {
		it.Status = StatusPending
		if err := q.setStatus(context.Background(), it); err != nil {
			return err
		}
	}

	return nil
}

// complete records the outcome of one send and adds it to res.
func (q *Queue) complete(ctx context.Context, it *Item, sendErr error, res *BatchResult) error {
	res.Attempted++

	it.LastAttemptTs = q.now().Unix()

	switch {
	case sendErr == nil:
		it.Status = StatusSent
		res.Sent++
	case it.RetryCount+1 >= it.MaxRetries:
		it.RetryCount++
		it.Status = StatusFailed
		res.Failed++

		q.logger.Warn("sync item failed permanently", zap.Int64("id", it.ID),
			zap.Stringer("type", it.Type), zap.Int("attempts", it.RetryCount), zap.Error(sendErr))
	default:
		it.RetryCount++
		it.Status = StatusRetry
		res.Retry++

		q.logger.Debug("sync item will retry", zap.Int64("id", it.ID),
			zap.Int("attempts", it.RetryCount), zap.Error(sendErr))
	}

	// the outcome is recorded even when the caller's context ended mid-send
	return q.setStatus(context.WithoutCancel(ctx), it)
}

func (q *Queue) send(ctx context.Context, it *Item) error {
	if q.transport == nil {
		return ErrNoTransport
	}

	return q.transport.Send(ctx, it)
}

// Stats counts rows by status.
func (q *Queue) Stats() (Stats, error) {
	var st Stats

	if err := q.db.Ready(); err != nil {
		return st, err
	}

	rows, err := q.db.Query(`SELECT status, COUNT(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return st, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}
	defer q.db.CloseRows(rows)

	for rows.Next() {
		var (
			s Status
			n int
		)

		if err := rows.Scan(&s, &n); err != nil {
			return st, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
		}

		switch s {
		case StatusPending:
			st.Pending += n
		case StatusRetry:
			st.Retry += n
			st.Pending += n
		case StatusSending:
			st.Sending += n
		case StatusSent:
			st.Sent += n
		case StatusFailed:
			st.Failed += n
		}

		st.Total += n
	}

	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	return st, nil
}

// PurgeSent deletes SENT items whose last attempt is older than maxAge
// seconds.
func (q *Queue) PurgeSent(maxAge int64) (int64, error) {
	if maxAge < 0 {
		return 0, fmt.Errorf("%w: max age %d", ErrInvalidArgument, maxAge)
	}

	if err := q.db.Ready(); err != nil {
		return 0, err
	}

	res, err := q.db.Exec(`DELETE FROM sync_queue WHERE status = ? AND last_attempt_ts < ?`,
		StatusSent, q.now().Unix()-maxAge)
	if err != nil {
		return 0, fmt.Errorf("%w: purge: %w", ErrFailedToUpdate, err)
	}

	return res.RowsAffected()
}

// RetryFailed returns FAILED items with retries left to PENDING.
func (q *Queue) RetryFailed() (int64, error) {
	if err := q.db.Ready(); err != nil {
		return 0, err
	}

	res, err := q.db.Exec(`UPDATE sync_queue SET status = ? WHERE status = ? AND retry_count < max_retries`,
		StatusPending, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("%w: retry failed: %w", ErrFailedToUpdate, err)
	}

	return res.RowsAffected()
}
