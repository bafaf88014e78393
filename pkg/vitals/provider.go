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

// Package vitals is the source-agnostic facade that feeds samples to the
// alarm engine and UI. Mock and IPC sources share the same contract.
package vitals

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mfreeman451/vitalmon/pkg/models"
)

var (
	ErrNotInitialized  = errors.New("vitals: provider not initialised")
	ErrAlreadyRunning  = errors.New("vitals: provider already running")
	ErrInvalidInterval = errors.New("vitals: invalid interval")
	ErrInvalidSlot     = errors.New("vitals: invalid slot")
)

// AlarmLogLen bounds the in-memory alarm log.
const AlarmLogLen = 32

// VitalsSink receives each new sample on the owner thread.
type VitalsSink interface {
	OnVitals(v models.Vitals)
}

// WaveformSink receives each waveform packet on the owner thread.
type WaveformSink interface {
	OnWaveform(w models.Waveform)
}

type VitalsSinkFunc func(models.Vitals)

func (f VitalsSinkFunc) OnVitals(v models.Vitals) { f(v) }

type WaveformSinkFunc func(models.Waveform)

func (f WaveformSinkFunc) OnWaveform(w models.Waveform) { f(w) }

// Dispatcher runs fn on the owner thread. Providers never call sinks
// from their own goroutines directly.
type Dispatcher func(fn func())

// Inline runs fn on the calling goroutine.
func Inline(fn func()) { fn() }

// AlarmLogEntry is one line of the provider's alarm log.
type AlarmLogEntry struct {
	Severity models.Severity `json:"severity"`
	Message  string          `json:"message"`
	Time     string          `json:"time"`
}

// Provider is implemented by every vitals source.
type Provider interface {
	Init() error
	Start(interval time.Duration) error
	Stop()
	Deinit()

	SetVitalsSink(s VitalsSink)
	SetWaveformSink(s WaveformSink)

	Current(slot int) (models.Vitals, bool)
	History(slot int) []models.Vitals
	AlarmLog() []AlarmLogEntry
	LogAlarm(sev models.Severity, message, timeStr string)
}

// base holds the state shared by all sources. Snapshot state is only
// written from dispatched functions; the lock serves other readers.
type base struct {
	logger   *zap.Logger
	dispatch Dispatcher

	mu        sync.RWMutex
	vitals    VitalsSink
	waveforms WaveformSink
	current   [models.SlotCount]*models.Vitals
	history   [models.SlotCount]*History
	alarms    []AlarmLogEntry
}

func (b *base) init(logger *zap.Logger, dispatch Dispatcher) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dispatch == nil {
		dispatch = Inline
	}

	b.logger = logger
	b.dispatch = dispatch

	for i := range b.history {
		b.history[i] = NewHistory(HistoryLen)
	}
}

func (b *base) SetVitalsSink(s VitalsSink) {
	b.mu.Lock()
	b.vitals = s
	b.mu.Unlock()
}

func (b *base) SetWaveformSink(s WaveformSink) {
	b.mu.Lock()
	b.waveforms = s
	b.mu.Unlock()
}

// Current returns the latest sample for slot.
func (b *base) Current(slot int) (models.Vitals, bool) {
	if !models.ValidSlot(slot) {
		return models.Vitals{}, false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.current[slot] == nil {
		return models.Vitals{}, false
	}

	return *b.current[slot], true
}

// History returns the retained samples for slot, oldest first.
func (b *base) History(slot int) []models.Vitals {
	if !models.ValidSlot(slot) {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.history[slot].Points()
}

// AlarmLog returns logged alarms, newest first.
func (b *base) AlarmLog() []AlarmLogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]AlarmLogEntry, len(b.alarms))
	for i, e := range b.alarms {
		out[len(b.alarms)-1-i] = e
	}

	return out
}

func (b *base) LogAlarm(sev models.Severity, message, timeStr string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.alarms) == AlarmLogLen {
		copy(b.alarms, b.alarms[1:])
		b.alarms = b.alarms[:AlarmLogLen-1]
	}

	b.alarms = append(b.alarms, AlarmLogEntry{Severity: sev, Message: message, Time: timeStr})
}

func (b *base) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.current {
		b.current[i] = nil
		b.history[i].Reset()
	}
}

// deliverVitals updates the slot snapshot and calls the sink, both on
// the owner thread.
func (b *base) deliverVitals(v models.Vitals) {
	if !models.ValidSlot(v.Slot) {
		b.logger.Debug("sample for unknown slot dropped", zap.Int("slot", v.Slot))
		return
	}

	b.dispatch(func() {
		b.mu.Lock()
		snap := v
		b.current[v.Slot] = &snap
		b.history[v.Slot].Add(v)
		sink := b.vitals
		b.mu.Unlock()

		if sink != nil {
			sink.OnVitals(v)
		}
	})
}

func (b *base) deliverWaveform(w models.Waveform) {
	if !models.ValidSlot(w.Slot) {
		b.logger.Debug("waveform for unknown slot dropped", zap.Int("slot", w.Slot))
		return
	}

	b.dispatch(func() {
		b.mu.RLock()
		sink := b.waveforms
		b.mu.RUnlock()

		if sink != nil {
			sink.OnWaveform(w)
		}
	})
}
