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

package syncqueue

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mfreeman451/vitalmon/pkg/store"
)

type fakeClock struct{ ts int64 }

func (c *fakeClock) now() time.Time { return time.Unix(c.ts, 0) }

func newQueue(t *testing.T, tr Transport, opts ...Option) (*Queue, *fakeClock) {
	t.Helper()

	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clk := &fakeClock{ts: 1000}

	q, err := Open(db, tr, nil, append([]Option{WithClock(clk.now)}, opts...)...)
	require.NoError(t, err)

	return q, clk
}

var errExport = errors.New("central station unreachable")

func TestPushProcessSent(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	q, clk := newQueue(t, tr)

	id, err := q.Push(TypeVitals, `{"hr":72}`)
	require.NoError(t, err)

	it, err := q.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, it.Status)
	assert.Equal(t, int64(1000), it.CreatedTs)
	assert.Equal(t, DefaultMaxRetries, it.MaxRetries)

	tr.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, item *Item) error {
		// the row is SENDING while the export is in flight
		cur, err := q.Get(item.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusSending, cur.Status)
		assert.Equal(t, `{"hr":72}`, item.Payload)

		return nil
	})

	clk.ts = 1005

	sent, err := q.Process(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	it, err = q.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, it.Status)
	assert.Equal(t, int64(1005), it.LastAttemptTs)
	assert.Zero(t, it.RetryCount)
}

func TestPersistentFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	q, _ := newQueue(t, tr)

	id, err := q.Push(TypeVitals, `{}`)
	require.NoError(t, err)

	tr.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errExport).Times(DefaultMaxRetries)

	for i := 1; i <= 6; i++ {
		sent, err := q.Process(context.Background(), 1)
		require.NoError(t, err)
		assert.Zero(t, sent)

		it, err := q.Get(id)
		require.NoError(t, err)

		if i < DefaultMaxRetries {
			assert.Equal(t, StatusRetry, it.Status, "attempt %d", i)
			assert.Equal(t, i, it.RetryCount)
		} else {
			assert.Equal(t, StatusFailed, it.Status, "attempt %d", i)
			assert.Equal(t, DefaultMaxRetries, it.RetryCount)
		}
	}

	st, err := q.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Failed)
	assert.Zero(t, st.Pending)
}

func TestProcessOrderAndBatchCap(t *testing.T) {
	var order []string

	tr := TransportFunc(func(_ context.Context, item *Item) error {
		order = append(order, item.Payload)
		return nil
	})

	q, clk := newQueue(t, tr)

	for i := 0; i < 20; i++ {
		clk.ts = int64(2000 - i)
		_, err := q.Push(TypeAudit, string(rune('a'+i)))
		require.NoError(t, err)
	}

	sent, err := q.Process(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, MaxBatch, sent)

	// oldest created_ts first: the last pushed item is oldest
	assert.Equal(t, "t", order[0])
	assert.Equal(t, "e", order[MaxBatch-1])

	_, err = q.Process(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRetryItemsAreDue(t *testing.T) {
	fail := true
	tr := TransportFunc(func(context.Context, *Item) error {
		if fail {
			return errExport
		}

		return nil
	})

	q, _ := newQueue(t, tr)

	id, err := q.Push(TypeAlarm, `{}`)
	require.NoError(t, err)

	_, err = q.Process(context.Background(), 1)
	require.NoError(t, err)

	st, err := q.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Retry)
	assert.Equal(t, 1, st.Pending, "RETRY counts as pending")

	fail = false

	sent, err := q.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	it, err := q.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, it.Status)
	assert.Equal(t, 1, it.RetryCount)
}

func TestPushBounds(t *testing.T) {
	q, _ := newQueue(t, nil, WithCapacity(3))

	_, err := q.Push(TypeVitals, strings.Repeat("x", MaxPayloadBytes+1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = q.Push(ItemType(99), "{}")
	require.ErrorIs(t, err, ErrInvalidArgument)

	for i := 0; i < 3; i++ {
		_, err = q.Push(TypeVitals, strings.Repeat("x", MaxPayloadBytes))
		require.NoError(t, err)
	}

	_, err = q.Push(TypeVitals, "{}")
	require.ErrorIs(t, err, ErrQueueFull)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNoTransportCountsAsFailure(t *testing.T) {
	q, _ := newQueue(t, nil, WithMaxRetries(1))

	id, err := q.Push(TypePatient, "{}")
	require.NoError(t, err)

	res, err := q.ProcessBatch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Attempted: 1, Failed: 1}, res)

	it, err := q.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, it.Status)
}

func TestPurgeSent(t *testing.T) {
	q, clk := newQueue(t, TransportFunc(func(context.Context, *Item) error { return nil }))

	_, err := q.Push(TypeVitals, "{}")
	require.NoError(t, err)
	_, err = q.Push(TypeVitals, "{}")
	require.NoError(t, err)

	clk.ts = 1000
	_, err = q.Process(context.Background(), 1)
	require.NoError(t, err)

	clk.ts = 2000
	_, err = q.Process(context.Background(), 1)
	require.NoError(t, err)

	clk.ts = 2500

	n, err := q.PurgeSent(1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	st, err := q.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Sent)

	_, err = q.PurgeSent(-1)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRetryFailed(t *testing.T) {
	q, _ := newQueue(t, TransportFunc(func(context.Context, *Item) error { return errExport }), WithMaxRetries(1))

	id, err := q.Push(TypeVitals, "{}")
	require.NoError(t, err)

	_, err = q.Process(context.Background(), 1)
	require.NoError(t, err)

	// exhausted retries stay failed
	n, err := q.RetryFailed()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = q.db.Exec(`UPDATE sync_queue SET max_retries = 3 WHERE id = ?`, id)
	require.NoError(t, err)

	n, err = q.RetryFailed()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	it, err := q.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, it.Status)
}

func TestSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	db, err := store.Open(path)
	require.NoError(t, err)

	q, err := Open(db, nil, nil)
	require.NoError(t, err)

	pending, err := q.Push(TypeVitals, "a")
	require.NoError(t, err)
	sending, err := q.Push(TypeAlarm, "b")
	require.NoError(t, err)

	// simulate a crash mid-export
	_, err = db.Exec(`UPDATE sync_queue SET status = ? WHERE id = ?`, StatusSending, sending)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	q, err = Open(db, nil, nil)
	require.NoError(t, err)

	for _, id := range []int64{pending, sending} {
		it, err := q.Get(id)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, it.Status)
	}
}

func TestClosedStore(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)

	q, err := Open(db, nil, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = q.Push(TypeVitals, "{}")
	require.ErrorIs(t, err, store.ErrNotOpen)

	_, err = q.Process(context.Background(), 1)
	require.ErrorIs(t, err, store.ErrNotOpen)

	_, err = q.Stats()
	require.ErrorIs(t, err, store.ErrNotOpen)

	_, err = Open(db, nil, nil)
	require.ErrorIs(t, err, store.ErrNotOpen)
}

func TestQueryErrorPropagates(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	defer sqlDB.Close()

	mock.ExpectExec(`UPDATE sync_queue SET status`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sync_queue`).WillReturnError(errors.New("disk I/O error"))

	q, err := Open(store.Wrap(sqlDB), nil, nil)
	require.NoError(t, err)

	_, err = q.Push(TypeVitals, "{}")
	require.ErrorIs(t, err, ErrFailedToQuery)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRouter(t *testing.T) {
	var got []string

	named := func(name string) Transport {
		return TransportFunc(func(context.Context, *Item) error {
			got = append(got, name)
			return nil
		})
	}

	r := NewRouter(nil).Route(TypeAlarm, named("mqtt"))

	require.NoError(t, r.Send(context.Background(), &Item{Type: TypeAlarm}))
	require.ErrorIs(t, r.Send(context.Background(), &Item{Type: TypeVitals}), ErrNoTransport)

	r.Default = named("log")
	require.NoError(t, r.Send(context.Background(), &Item{Type: TypeVitals}))

	assert.Equal(t, []string{"mqtt", "log"}, got)
}

func TestItemTypeValues(t *testing.T) {
	tests := []struct {
		typ  ItemType
		want int
		name string
	}{
		{TypeVitals, 0, "VITALS"},
		{TypePatient, 1, "PATIENT"},
		{TypeAlarm, 2, "ALARM"},
		{TypeAudit, 3, "AUDIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, int(tt.typ))
			assert.Equal(t, tt.name, tt.typ.String())
			assert.True(t, tt.typ.Valid())
		})
	}

	assert.False(t, ItemType(4).Valid())
}
