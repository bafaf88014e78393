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

// Package sim provides simulated sensor drivers backed by the random-walk
// generator, for running the monitor without hardware.
package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/mfreeman451/vitalmon/pkg/generator"
	"github.com/mfreeman451/vitalmon/pkg/hal"
	"github.com/mfreeman451/vitalmon/pkg/models"
	"github.com/mfreeman451/vitalmon/pkg/waveform"
)

const (
	// MeasureSteps is how many vitals steps an NIBP cycle takes.
	MeasureSteps = 3

	ecgRate   = 200
	plethRate = 100
)

var (
	ErrBadLead     = errors.New("sim: unsupported lead")
	ErrBadInterval = errors.New("sim: invalid interval")
)

// Bank owns one simulated driver per sensor type, all fed by a single
// generator so readings stay physiologically consistent.
type Bank struct {
	gen   *generator.Generator
	slot  int
	last  models.Vitals
	steps int64

	ecgTable, plethTable waveform.Table

	SpO2Driver *SpO2
	ECGDriver  *ECG
	NIBPDriver *NIBP
	TempDriver *Temp
}

// New builds a bank for slot. Generator options such as a seed pass
// through.
func New(slot int, opts ...generator.Option) *Bank {
	b := &Bank{
		gen:        generator.New(append([]generator.Option{generator.WithSlot(slot)}, opts...)...),
		slot:       slot,
		ecgTable:   waveform.NewECGTable(),
		plethTable: waveform.NewPlethTable(),
	}

	b.SpO2Driver = &SpO2{waveDriver: waveDriver{
		driver: driver{bank: b},
		wave:   waveform.NewGenerator(&b.plethTable, plethRate, 1000, 0, 0, 4095),
	}}
	b.ECGDriver = &ECG{lead: hal.LeadII, waveDriver: waveDriver{
		driver: driver{bank: b},
		wave:   waveform.NewGenerator(&b.ecgTable, ecgRate, 1000, 0, -1000, 1000),
	}}
	b.NIBPDriver = &NIBP{driver: driver{bank: b}}
	b.TempDriver = &Temp{driver: driver{bank: b}}

	return b
}

// Register installs all four drivers.
func (b *Bank) Register(r *hal.Registry) error {
	return errors.Join(
		r.Register(hal.SensorSpO2, b.SpO2Driver),
		r.Register(hal.SensorECG, b.ECGDriver),
		r.Register(hal.SensorNIBP, b.NIBPDriver),
		r.Register(hal.SensorTemp, b.TempDriver),
	)
}

// Step advances the simulation by one vitals tick at nowMs.
func (b *Bank) Step(nowMs int64) {
	b.last = b.gen.Next(nowMs)
	b.steps++

	b.ECGDriver.wave.SetRate(b.last.HR)
	b.SpO2Driver.wave.SetRate(b.last.HR)

	b.NIBPDriver.step(nowMs)
}

// StepWaveforms emits elapsed worth of samples to the installed
// waveform funcs.
func (b *Bank) StepWaveforms(elapsed time.Duration, nowMs int64) {
	b.ECGDriver.emit(b.slot, models.WaveECG, elapsed, nowMs)
	b.SpO2Driver.emit(b.slot, models.WavePleth, elapsed, nowMs)
}

type driver struct {
	bank    *Bank
	state   hal.State
	code    hal.ErrorCode
	initErr error
}

func (d *driver) Init() error {
	if d.initErr != nil {
		d.state = hal.StateError
		return d.initErr
	}

	d.state = hal.StateReady
	d.code = hal.ErrCodeNone

	return nil
}

func (d *driver) Deinit() {
	d.state = hal.StateUninit
}

func (d *driver) State() hal.State { return d.state }

func (d *driver) Error() hal.ErrorCode { return d.code }

func (d *driver) Ready() bool {
	return d.state == hal.StateReady || d.state == hal.StateMeasuring
}

// FailInit makes the next Init return err.
func (d *driver) FailInit(err error) {
	d.initErr = err
}

// SetFault puts the driver into ERROR with code.
func (d *driver) SetFault(code hal.ErrorCode) {
	d.state = hal.StateError
	d.code = code
}

// ClearFault returns a faulted driver to READY.
func (d *driver) ClearFault() {
	if d.state == hal.StateError {
		d.state = hal.StateReady
		d.code = hal.ErrCodeNone
	}
}

func (d *driver) readable() error {
	if !d.Ready() {
		return fmt.Errorf("%w: %s", hal.ErrNotReady, d.state)
	}

	return nil
}

type waveDriver struct {
	driver

	wave  *waveform.Generator
	fn    hal.WaveformFunc
	carry int
}

func (w *waveDriver) SetWaveformFunc(fn hal.WaveformFunc) {
	w.fn = fn
}

func (w *waveDriver) emit(slot int, typ models.WaveType, elapsed time.Duration, nowMs int64) {
	if w.fn == nil || !w.Ready() {
		return
	}

	due := w.wave.SampleRate()*int(elapsed.Milliseconds()) + w.carry
	n := min(due/1000, models.MaxWaveSamples)
	w.carry = due % 1000

	if n == 0 {
		return
	}

	wf := models.Waveform{Type: typ, SampleRate: w.wave.SampleRate(), Count: n, TimestampMs: nowMs, Slot: slot}
	w.wave.Fill(wf.Samples[:n])
	w.fn(wf)
}

// SpO2 simulates a pulse oximeter.
type SpO2 struct {
	waveDriver
}

func (s *SpO2) Reading() (hal.SpO2Reading, error) {
	if err := s.readable(); err != nil {
		return hal.SpO2Reading{}, err
	}

	v := s.bank.last

	return hal.SpO2Reading{
		SpO2:         v.SpO2,
		PulseRate:    v.HR,
		PerfusionX10: 25,
		Quality:      v.Quality[models.QualitySpO2],
		Valid:        s.bank.steps > 0,
		TimestampMs:  v.TimestampMs,
	}, nil
}

// ECG simulates a three-lead ECG with impedance respiration.
type ECG struct {
	waveDriver

	lead    hal.Lead
	leadOff uint8
}

var leadGain = map[hal.Lead]int32{hal.LeadI: 600, hal.LeadII: 1000, hal.LeadIII: 800}

func (e *ECG) SetLead(lead hal.Lead) error {
	gain, ok := leadGain[lead]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBadLead, lead)
	}

	e.lead = lead
	e.wave.SetAmplitude(gain)

	return nil
}

func (e *ECG) Lead() hal.Lead {
	return e.lead
}

func (e *ECG) Reading() (hal.ECGReading, error) {
	if err := e.readable(); err != nil {
		return hal.ECGReading{}, err
	}

	v := e.bank.last

	return hal.ECGReading{
		HR:          v.HR,
		RR:          v.RR,
		LeadOff:     e.leadOff,
		Quality:     v.Quality[models.QualityECG],
		Valid:       e.bank.steps > 0,
		TimestampMs: v.TimestampMs,
	}, nil
}

// SetLeadOff simulates detached electrodes.
func (e *ECG) SetLeadOff(bits uint8) {
	e.leadOff = bits

	if bits != 0 {
		e.code = hal.ErrCodeLeadOff
	} else {
		e.code = hal.ErrCodeNone
	}
}

// NIBP simulates an oscillometric cuff. A cycle completes MeasureSteps
// vitals steps after it starts.
type NIBP struct {
	driver

	measuring bool
	doneAt    int64
	autoSteps int64
	lastAuto  int64
	result    hal.NIBPReading
}

func (n *NIBP) StartMeasurement() error {
	if err := n.readable(); err != nil {
		return err
	}

	if n.measuring {
		return hal.ErrBusy
	}

	n.measuring = true
	n.state = hal.StateMeasuring
	n.doneAt = n.bank.steps + MeasureSteps

	return nil
}

func (n *NIBP) AbortMeasurement() error {
	if !n.measuring {
		return nil
	}

	n.measuring = false
	n.state = hal.StateReady

	return nil
}

func (n *NIBP) Measuring() bool {
	return n.measuring
}

// SetAutoInterval starts a cycle every minutes at the 1 Hz step rate.
func (n *NIBP) SetAutoInterval(minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("%w: %d", ErrBadInterval, minutes)
	}

	n.autoSteps = int64(minutes) * 60
	n.lastAuto = n.bank.steps

	return nil
}

func (n *NIBP) step(nowMs int64) {
	if n.autoSteps > 0 && !n.measuring && n.Ready() && n.bank.steps-n.lastAuto >= n.autoSteps {
		n.lastAuto = n.bank.steps
		_ = n.StartMeasurement()
	}

	if !n.measuring || n.bank.steps < n.doneAt {
		return
	}

	v := n.bank.last
	n.result = hal.NIBPReading{
		Sys:         v.NIBPSys,
		Dia:         v.NIBPDia,
		Map:         v.NIBPMap,
		Pulse:       v.HR,
		Valid:       v.NIBPSys > 0,
		TimestampMs: nowMs,
	}
	n.measuring = false
	n.state = hal.StateReady
}

// Reading returns the last completed measurement.
func (n *NIBP) Reading() (hal.NIBPReading, error) {
	if err := n.readable(); err != nil {
		return hal.NIBPReading{}, err
	}

	return n.result, nil
}

// Temp simulates a skin temperature probe.
type Temp struct {
	driver
}

func (t *Temp) Reading() (hal.TempReading, error) {
	if err := t.readable(); err != nil {
		return hal.TempReading{}, err
	}

	v := t.bank.last

	return hal.TempReading{
		Celsius:     v.Temp,
		Quality:     v.Quality[models.QualityTemp],
		Valid:       t.bank.steps > 0,
		TimestampMs: v.TimestampMs,
	}, nil
}
