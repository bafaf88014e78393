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

package vitals

import (
	"time"

	"go.uber.org/zap"

	"github.com/mfreeman451/vitalmon/pkg/models"
)

const (
	DefaultWaveformInterval = 50 * time.Millisecond

	ECGSampleRate   = 200
	PlethSampleRate = 100
	RespSampleRate  = 50
)

type options struct {
	logger       *zap.Logger
	dispatch     Dispatcher
	now          func() time.Time
	slots        int
	seed         uint64
	seeded       bool
	waveInterval time.Duration
	nibpEvery    int
	recvTimeout  time.Duration
}

// Option configures a provider.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:       zap.NewNop(),
		dispatch:     Inline,
		now:          time.Now,
		slots:        1,
		waveInterval: DefaultWaveformInterval,
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDispatcher routes sink calls through d, normally the core's
// owner-thread dispatch.
func WithDispatcher(d Dispatcher) Option {
	return func(o *options) {
		if d != nil {
			o.dispatch = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSlots sets how many slots the mock source generates for.
func WithSlots(n int) Option {
	return func(o *options) {
		if n >= 1 && n <= models.SlotCount {
			o.slots = n
		}
	}
}

func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

func WithWaveformInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.waveInterval = d
		}
	}
}

func WithNIBPEvery(ticks int) Option {
	return func(o *options) {
		if ticks > 0 {
			o.nibpEvery = ticks
		}
	}
}

// WithRecvTimeout sets the IPC receive timeout.
func WithRecvTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.recvTimeout = d
		}
	}
}
