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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mfreeman451/vitalmon/pkg/lifecycle"
)

const (
	DefaultWorkerInterval = 5 * time.Second
	DefaultMaxBackoff     = 2 * time.Minute
)

var ErrWorkerStalled = errors.New("sync worker stalled")

// rateLimited paces sends through a token bucket.
type rateLimited struct {
	next    Transport
	limiter *rate.Limiter
}

// RateLimited wraps tr so at most perSec items per second are sent.
func RateLimited(tr Transport, perSec float64, burst int) Transport {
	if burst < 1 {
		burst = 1
	}

	return &rateLimited{next: tr, limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

func (r *rateLimited) Send(ctx context.Context, item *Item) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	return r.next.Send(ctx, item)
}

// Executor runs fn on the goroutine that owns the queue and waits for it.
type Executor func(ctx context.Context, fn func()) error

func inline(_ context.Context, fn func()) error {
	fn()
	return nil
}

// Worker drains the queue in the background, backing off exponentially
// while batches keep failing. Queue reads and status changes go through
// the executor; only transport sends run on the worker goroutine.
type Worker struct {
	queue      *Queue
	logger     *zap.Logger
	exec       Executor
	interval   time.Duration
	maxBackoff time.Duration
	batch      int

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	delay   time.Duration
	lastRun atomic.Int64
	batches atomic.Uint64
}

var _ lifecycle.TickingService = (*Worker)(nil)

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithMaxBackoff(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.maxBackoff = d
		}
	}
}

// WithExecutor routes queue access through exec.
func WithExecutor(exec Executor) WorkerOption {
	return func(w *Worker) {
		if exec != nil {
			w.exec = exec
		}
	}
}

func WithBatch(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batch = n
		}
	}
}

func NewWorker(q *Queue, logger *zap.Logger, opts ...WorkerOption) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Worker{
		queue:      q,
		logger:     logger.With(zap.String("component", "syncqueue.worker")),
		interval:   DefaultWorkerInterval,
		maxBackoff: DefaultMaxBackoff,
		batch:      MaxBatch,
		exec:       inline,
	}

	for _, o := range opts {
		o(w)
	}

	return w
}

func (*Worker) Name() string {
	return "sync"
}

func (w *Worker) Init(context.Context) error {
	if w.queue == nil {
		return fmt.Errorf("%w: nil queue", ErrInvalidArgument)
	}

	return w.queue.db.Ready()
}

// Start launches the drain loop under ctx. It runs on the queue's owner
// and first requeues items a stopped loop left in SENDING.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return nil
	}

	if err := w.queue.recoverSending(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.delay = w.interval
	w.lastRun.Store(time.Now().Unix())

	go w.run(ctx, w.done)

	return nil
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(w.cycle(ctx))
		}
	}
}

// cycle runs one batch and returns the delay before the next.
func (w *Worker) cycle(ctx context.Context) time.Duration {
	res, err := w.drain(ctx)

	w.lastRun.Store(time.Now().Unix())
	w.batches.Add(1)

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case err != nil && ctx.Err() == nil:
		w.logger.Warn("sync batch error", zap.Error(err))
		w.delay = min(w.delay*2, w.maxBackoff)
	case res.Attempted > res.Sent:
		w.delay = min(w.delay*2, w.maxBackoff)
		w.logger.Debug("sync batch partial", zap.Int("attempted", res.Attempted),
			zap.Int("sent", res.Sent), zap.Duration("next", w.delay))
	default:
		w.delay = w.interval
	}

	return w.delay
}

// drain claims a batch through the executor, sends it from this goroutine
// and records each outcome through the executor. Items left unsent when
// ctx ends stay SENDING until the next Start.
func (w *Worker) drain(ctx context.Context) (BatchResult, error) {
	var (
		res   BatchResult
		items []*Item
		err   error
	)

	if xerr := w.exec(ctx, func() { items, err = w.queue.claim(ctx, w.batch) }); xerr != nil {
		return res, xerr
	}

	if err != nil {
		return res, err
	}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		sendErr := w.queue.send(ctx, it)

		var (
			one  BatchResult
			cerr error
		)

		if xerr := w.exec(ctx, func() { cerr = w.queue.complete(ctx, it, sendErr, &one) }); xerr != nil {
			return res, xerr
		}

		if cerr != nil {
			return res, cerr
		}

		res.add(one)
	}

	return res, nil
}

// Delay returns the current wait between batches.
func (w *Worker) Delay() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.delay
}

// Batches returns how many batches have run.
func (w *Worker) Batches() uint64 {
	return w.batches.Load()
}

func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (*Worker) Deinit() {}

// Tick fails when the loop has not completed a batch within twice its
// longest possible wait.
func (w *Worker) Tick(now int64) error {
	limit := int64((2 * max(w.interval, w.maxBackoff)).Seconds())

	if gap := now - w.lastRun.Load(); gap > limit {
		return fmt.Errorf("%w: idle %ds", ErrWorkerStalled, gap)
	}

	return nil
}
