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
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mfreeman451/vitalmon/pkg/generator"
	"github.com/mfreeman451/vitalmon/pkg/models"
	"github.com/mfreeman451/vitalmon/pkg/waveform"
)

// channel is one synthesised waveform with fractional sample carry, so
// any tick period yields the exact sample rate on average.
type channel struct {
	typ   models.WaveType
	gen   *waveform.Generator
	carry int
}

type mockSlot struct {
	vitals   *generator.Generator
	channels []*channel
}

// Mock generates random-walk vitals and LUT waveforms on timers.
type Mock struct {
	base

	opts options

	// guards slots, which the tickers and Step both drive
	genMu sync.Mutex
	slots []*mockSlot

	ecg, pleth, resp waveform.Table

	runMu   sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

var _ Provider = (*Mock)(nil)

// NewMock returns a mock source; call Init before Start.
func NewMock(opts ...Option) *Mock {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	m := &Mock{opts: o}
	m.base.init(o.logger.With(zap.String("component", "vitals.mock")), o.dispatch)

	return m
}

// Init builds the lookup tables and per-slot generators.
func (m *Mock) Init() error {
	m.genMu.Lock()
	defer m.genMu.Unlock()

	m.ecg = waveform.NewECGTable()
	m.pleth = waveform.NewPlethTable()
	m.resp = waveform.NewRespTable()

	m.slots = make([]*mockSlot, m.opts.slots)

	for i := range m.slots {
		gopts := []generator.Option{generator.WithSlot(i)}

		if m.opts.seeded {
			gopts = append(gopts, generator.WithSeed(m.opts.seed+uint64(i)))
		}

		if m.opts.nibpEvery > 0 {
			gopts = append(gopts, generator.WithNIBPEvery(m.opts.nibpEvery))
		}

		m.slots[i] = &mockSlot{
			vitals: generator.New(gopts...),
			channels: []*channel{
				{typ: models.WaveECG, gen: waveform.NewGenerator(&m.ecg, ECGSampleRate, 1000, 0, -1000, 1000)},
				{typ: models.WavePleth, gen: waveform.NewGenerator(&m.pleth, PlethSampleRate, 1000, 0, 0, 4095)},
				{typ: models.WaveResp, gen: waveform.NewGenerator(&m.resp, RespSampleRate, 1000, 0, -1000, 1000)},
			},
		}
	}

	m.logger.Info("mock source initialised", zap.Int("slots", len(m.slots)))

	return nil
}

// SetNIBPInterval changes the NIBP cadence, in vitals ticks, for every slot.
func (m *Mock) SetNIBPInterval(ticks int) {
	m.genMu.Lock()
	defer m.genMu.Unlock()

	for _, s := range m.slots {
		s.vitals.SetNIBPEvery(ticks)
	}
}

// StartNIBP makes the next sample for slot carry a fresh cuff reading.
func (m *Mock) StartNIBP(slot int) error {
	m.genMu.Lock()
	defer m.genMu.Unlock()

	if m.slots == nil {
		return ErrNotInitialized
	}

	if slot < 0 || slot >= len(m.slots) {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}

	m.slots[slot].vitals.TriggerNIBP()

	return nil
}

// Step produces one vitals sample per slot stamped nowMs.
func (m *Mock) Step(nowMs int64) error {
	m.genMu.Lock()

	if m.slots == nil {
		m.genMu.Unlock()
		return ErrNotInitialized
	}

	out := make([]models.Vitals, 0, len(m.slots))

	for _, s := range m.slots {
		v := s.vitals.Next(nowMs)

		for _, ch := range s.channels {
			if ch.typ == models.WaveResp {
				ch.gen.SetRate(v.RR)
			} else {
				ch.gen.SetRate(v.HR)
			}
		}

		out = append(out, v)
	}
	m.genMu.Unlock()

	for _, v := range out {
		m.deliverVitals(v)
	}

	return nil
}

// StepWaveforms emits the samples due for elapsed time on every channel.
func (m *Mock) StepWaveforms(elapsed time.Duration, nowMs int64) error {
	m.genMu.Lock()

	if m.slots == nil {
		m.genMu.Unlock()
		return ErrNotInitialized
	}

	var out []models.Waveform

	ms := int(elapsed.Milliseconds())

	for slot, s := range m.slots {
		for _, ch := range s.channels {
			due := ch.gen.SampleRate()*ms + ch.carry
			n := due / 1000
			ch.carry = due % 1000

			if n == 0 {
				continue
			}

			if n > models.MaxWaveSamples {
				n = models.MaxWaveSamples
				ch.carry = 0
			}

			wf := models.Waveform{
				Type:        ch.typ,
				SampleRate:  ch.gen.SampleRate(),
				Count:       n,
				TimestampMs: nowMs,
				Slot:        slot,
			}
			ch.gen.Fill(wf.Samples[:n])

			out = append(out, wf)
		}
	}
	m.genMu.Unlock()

	for _, wf := range out {
		m.deliverWaveform(wf)
	}

	return nil
}

// Start runs the vitals tick at interval and the waveform tick at the
// configured waveform interval.
func (m *Mock) Start(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	m.genMu.Lock()
	ready := m.slots != nil
	m.genMu.Unlock()

	if !ready {
		return ErrNotInitialized
	}

	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	m.running = true
	m.stop = make(chan struct{})
	m.wg.Add(1)

	go m.run(interval, m.stop)

	return nil
}

func (m *Mock) run(interval time.Duration, stop <-chan struct{}) {
	defer m.wg.Done()

	vt := time.NewTicker(interval)
	defer vt.Stop()

	wt := time.NewTicker(m.opts.waveInterval)
	defer wt.Stop()

	last := m.opts.now()

	if err := m.Step(last.UnixMilli()); err != nil {
		m.logger.Warn("vitals tick failed", zap.Error(err))
	}

	for {
		select {
		case <-stop:
			return
		case <-vt.C:
			if err := m.Step(m.opts.now().UnixMilli()); err != nil {
				m.logger.Warn("vitals tick failed", zap.Error(err))
			}
		case <-wt.C:
			now := m.opts.now()
			if err := m.StepWaveforms(now.Sub(last), now.UnixMilli()); err != nil {
				m.logger.Warn("waveform tick failed", zap.Error(err))
			}

			last = now
		}
	}
}

// Stop halts the timers. It is safe to call when not running.
func (m *Mock) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}

	m.running = false
	close(m.stop)
	m.runMu.Unlock()

	m.wg.Wait()
}

// Deinit stops the source and drops generator and snapshot state.
func (m *Mock) Deinit() {
	m.Stop()

	m.genMu.Lock()
	m.slots = nil
	m.genMu.Unlock()

	m.reset()
}
