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


package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mfreeman451/vitalmon/pkg/generator"
	"github.com/mfreeman451/vitalmon/pkg/hal"
	"github.com/mfreeman451/vitalmon/pkg/ipc"
	"github.com/mfreeman451/vitalmon/pkg/models"
)

var ErrBadSlot = errors.New("sim: invalid slot")

// Publisher is the send side of an IPC endpoint.
type Publisher interface {
	Publish(buf []byte) error
}

// Sensor drives one simulated bank per slot through a HAL registry and
// publishes the samples on the vitals and waveforms endpoints.
type Sensor struct {
	logger *zap.Logger
	vitals Publisher
	waves  Publisher

	mu     sync.Mutex
	banks  []*Bank
	regs   []*hal.Registry
	states []map[hal.SensorType]hal.State
}

// NewSensor builds and initialises slots banks. A registry that fails to
// initialise keeps its healthy drivers; the joined error is returned with
// a usable sensor.
func NewSensor(slots int, vitals, waves Publisher, logger *zap.Logger, opts ...generator.Option) (*Sensor, error) {
	if slots < 1 || slots > models.SlotCount {
		return nil, fmt.Errorf("%w: %d slots", ErrBadSlot, slots)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Sensor{
		logger: logger.With(zap.String("component", "sensor")),
		vitals: vitals,
		waves:  waves,
	}

	var errs []error

	for slot := 0; slot < slots; slot++ {
		b := New(slot, opts...)
		r := hal.NewRegistry()

		if err := b.Register(r); err != nil {
			return nil, err
		}

		b.ECGDriver.SetWaveformFunc(s.publishWaveform)
		b.SpO2Driver.SetWaveformFunc(s.publishWaveform)

		if err := r.InitAll(); err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", slot, err))
		}

		s.banks = append(s.banks, b)
		s.regs = append(s.regs, r)
		s.states = append(s.states, make(map[hal.SensorType]hal.State))
	}

	return s, errors.Join(errs...)
}

// Bank returns the simulated drivers for slot.
func (s *Sensor) Bank(slot int) (*Bank, error) {
	if slot < 0 || slot >= len(s.banks) {
		return nil, ErrBadSlot
	}

	return s.banks[slot], nil
}

func (s *Sensor) publishWaveform(w models.Waveform) {
	if s.waves == nil {
		return
	}

	if err := s.waves.Publish(ipc.EncodeWaveform(&w)); err != nil {
		s.logger.Debug("waveform publish failed", zap.Error(err))
	}
}

// Step samples every slot once and publishes the results, preceded by a
// SENSOR_STATUS message for every driver whose state changed.
func (s *Sensor) Step(nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for slot, b := range s.banks {
		b.Step(nowMs)
		s.publishStatus(slot, nowMs)

		v := s.regs[slot].Sample(nowMs, slot)
		if s.vitals == nil {
			continue
		}

		if err := s.vitals.Publish(ipc.EncodeVitals(&v)); err != nil {
			s.logger.Warn("vitals publish failed", zap.Int("slot", slot), zap.Error(err))
		}
	}
}

func (s *Sensor) publishStatus(slot int, nowMs int64) {
	for _, t := range hal.SensorTypes() {
		d, err := s.regs[slot].Get(t)
		if err != nil {
			continue
		}

		st := d.State()
		if st == s.states[slot][t] {
			continue
		}

		s.states[slot][t] = st
		s.logger.Info("sensor state", zap.Int("slot", slot), zap.Stringer("sensor", t), zap.Stringer("state", st))

		if s.vitals == nil {
			continue
		}

		buf := ipc.EncodeSensorStatus(&ipc.SensorStatus{
			TimestampMs: nowMs,
			Sensor:      uint8(t),
			State:       uint8(st),
			Error:       uint8(d.Error()),
		})

		if err := s.vitals.Publish(buf); err != nil {
			s.logger.Debug("status publish failed", zap.Error(err))
		}
	}
}

// StepWaveforms emits elapsed worth of waveform samples on every slot.
func (s *Sensor) StepWaveforms(elapsed time.Duration, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.banks {
		b.StepWaveforms(elapsed, nowMs)
	}
}

// HandleControl starts a cuff cycle on NIBP_START. It is a Subscriber
// handler and may run on any goroutine.
func (s *Sensor) HandleControl(msg *ipc.Message) {
	if msg.Type != ipc.MsgNIBPStart {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot := msg.NIBPStart.Slot
	if slot < 0 || slot >= len(s.banks) {
		s.logger.Warn("nibp start for unknown slot", zap.Int("slot", slot))
		return
	}

	if err := s.banks[slot].NIBPDriver.StartMeasurement(); err != nil {
		s.logger.Warn("nibp start rejected", zap.Int("slot", slot), zap.Error(err))
	}
}

// Run steps vitals every interval and waveforms every waveInterval until
// ctx ends.
func (s *Sensor) Run(ctx context.Context, interval, waveInterval time.Duration) error {
	if interval <= 0 || waveInterval <= 0 {
		return ErrBadInterval
	}

	vt := time.NewTicker(interval)
	defer vt.Stop()

	wt := time.NewTicker(waveInterval)
	defer wt.Stop()

	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-vt.C:
			s.Step(now.UnixMilli())
		case now := <-wt.C:
			s.StepWaveforms(now.Sub(last), now.UnixMilli())
			last = now
		}
	}
}

// Close releases every driver.
func (s *Sensor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.regs {
		r.DeinitAll()
	}
}
