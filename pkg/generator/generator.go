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

// Package generator produces synthetic vitals by random walk with mean
// reversion, including a periodic NIBP measurement.
package generator

import (
	"math/rand/v2"

	"github.com/mfreeman451/vitalmon/pkg/models"
)

// DefaultNIBPEvery is the number of ticks between NIBP readings.
const DefaultNIBPEvery = 60

// Generator yields one Vitals sample per tick. It is not safe for
// concurrent use.
type Generator struct {
	rng *rand.Rand

	slot      int
	nibpEvery int
	tick      int
	nibpNow   bool

	hr, spo2, rr Walk
	temp         FloatWalk
	sys, dia     Walk

	nibpSys, nibpDia, nibpMap int
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes the sequence reproducible.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithNIBPEvery sets the ticks between NIBP readings.
func WithNIBPEvery(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.nibpEvery = n
		}
	}
}

// WithSlot sets the patient slot stamped on samples.
func WithSlot(slot int) Option {
	return func(g *Generator) {
		g.slot = slot
	}
}

// New returns a generator at the resting baseline.
func New(opts ...Option) *Generator {
	g := &Generator{
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		nibpEvery: DefaultNIBPEvery,
		hr:        Walk{Base: 75, Current: 75, Min: 50, Max: 120, MaxDrift: 2},
		spo2:      Walk{Base: 98, Current: 98, Min: 90, Max: 100, MaxDrift: 1},
		rr:        Walk{Base: 16, Current: 16, Min: 8, Max: 30, MaxDrift: 1},
		temp:      FloatWalk{Base: 37.0, Current: 37.0, Min: 35.5, Max: 39.0, MaxDrift: 0.1},
		sys:       Walk{Base: 120, Current: 120, Min: 90, Max: 160, MaxDrift: 5},
		dia:       Walk{Base: 80, Current: 80, Min: 50, Max: 100, MaxDrift: 3},
	}

	for _, o := range opts {
		o(g)
	}

	return g
}

// SetNIBPEvery changes the NIBP cadence at runtime.
func (g *Generator) SetNIBPEvery(n int) {
	if n > 0 {
		g.nibpEvery = n
	}
}

// TriggerNIBP makes the next sample carry a fresh NIBP reading.
func (g *Generator) TriggerNIBP() {
	g.nibpNow = true
}

// HR returns the current heart rate, used to drive waveform rates.
func (g *Generator) HR() int {
	return g.hr.Current
}

// RR returns the current respiration rate.
func (g *Generator) RR() int {
	return g.rr.Current
}

// Next advances one tick and returns the sample stamped with nowMs.
func (g *Generator) Next(nowMs int64) models.Vitals {
	v := models.Vitals{
		TimestampMs: nowMs,
		Slot:        g.slot,
		HR:          g.hr.Step(g.rng),
		SpO2:        g.spo2.Step(g.rng),
		RR:          g.rr.Step(g.rng),
		Temp:        g.temp.Step(g.rng),
	}

	if g.tick%g.nibpEvery == 0 || g.nibpNow {
		g.nibpNow = false
		g.nibpSys = g.sys.Step(g.rng)
		g.nibpDia = g.dia.Step(g.rng)

		if g.nibpDia >= g.nibpSys {
			g.nibpDia = g.nibpSys - 10
		}

		g.nibpMap = models.MeanArterial(g.nibpSys, g.nibpDia)
		v.NIBPFresh = true
	}

	g.tick++

	v.NIBPSys, v.NIBPDia, v.NIBPMap = g.nibpSys, g.nibpDia, g.nibpMap

	for i := range v.Quality {
		v.Quality[i] = uint8(90 + g.rng.IntN(11))
	}

	return v
}
