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

package waveform

// Generator walks a Table at a rate set in cycles per minute.
type Generator struct {
	table      *Table
	sampleRate int
	amplitude  int32 // per-mille scale
	offset     int32
	lo, hi     int32

	phaseAcc uint32
	phaseInc uint32
}

// NewGenerator returns a generator over t emitting sampleRate samples per
// second. Output is t[i]*amplitude/1000 + offset, clamped to [lo, hi].
func NewGenerator(t *Table, sampleRate int, amplitude, offset, lo, hi int32) *Generator {
	if sampleRate <= 0 {
		sampleRate = 1
	}

	return &Generator{
		table:      t,
		sampleRate: sampleRate,
		amplitude:  amplitude,
		offset:     offset,
		lo:         lo,
		hi:         hi,
	}
}

// SampleRate returns samples per second.
func (g *Generator) SampleRate() int {
	return g.sampleRate
}

// SetRate sets the cycle rate: inc = len * rate * 65536 / (60 * sps).
func (g *Generator) SetRate(perMinute int) {
	if perMinute < 0 {
		perMinute = 0
	}

	g.phaseInc = uint32(uint64(TableLen) * uint64(perMinute) * 65536 / (60 * uint64(g.sampleRate)))
}

// PhaseInc exposes the current 16.16 increment.
func (g *Generator) PhaseInc() uint32 {
	return g.phaseInc
}

// SetAmplitude changes the per-mille output scale.
func (g *Generator) SetAmplitude(a int32) {
	g.amplitude = a
}

// Next returns one sample and advances the phase.
func (g *Generator) Next() int16 {
	idx := (g.phaseAcc >> 16) % TableLen
	g.phaseAcc += g.phaseInc

	v := int32(g.table[idx])*g.amplitude/1000 + g.offset
	if v < g.lo {
		v = g.lo
	}

	if v > g.hi {
		v = g.hi
	}

	return int16(v)
}

// Fill writes len(dst) consecutive samples.
func (g *Generator) Fill(dst []int16) {
	for i := range dst {
		dst[i] = g.Next()
	}
}

// Reset rewinds the phase to the start of the cycle.
func (g *Generator) Reset() {
	g.phaseAcc = 0
}
