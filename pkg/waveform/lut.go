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

// Package waveform synthesises ECG, pleth and respiration signals from
// precomputed Gaussian lookup tables driven by a 16.16 fixed-point phase
// accumulator.
package waveform

import "math"

// TableLen is the number of entries in one cycle.
const TableLen = 256

// Table is one waveform cycle.
type Table [TableLen]int16

// Component is a single Gaussian bump centred on a table index.
type Component struct {
	Center    float64
	Sigma     float64
	Amplitude float64
}

// ECG lead II components, amplitudes in microvolts.
var ecgComponents = []Component{
	{Center: 50, Sigma: 8, Amplitude: 150},   // P
	{Center: 86, Sigma: 3, Amplitude: -120},  // Q
	{Center: 94, Sigma: 3, Amplitude: 1000},  // R
	{Center: 102, Sigma: 3, Amplitude: -250}, // S
	{Center: 160, Sigma: 14, Amplitude: 300}, // T
}

// Pleth components on a 0..4095 scale.
var plethComponents = []Component{
	{Center: 60, Sigma: 18, Amplitude: 3000}, // systolic peak
	{Center: 110, Sigma: 6, Amplitude: -350}, // dicrotic notch
	{Center: 128, Sigma: 20, Amplitude: 900}, // dicrotic wave
}

var respComponents = []Component{
	{Center: 96, Sigma: 40, Amplitude: 800},
}

const (
	ecgClamp = 1000
	plethMax = 4095
)

func build(components []Component, lo, hi float64) Table {
	var t Table

	for i := range t {
		var sum float64

		for _, c := range components {
			d := (float64(i) - c.Center) / c.Sigma
			sum += c.Amplitude * math.Exp(-0.5*d*d)
		}

		t[i] = int16(math.Round(math.Max(lo, math.Min(hi, sum))))
	}

	return t
}

// NewECGTable builds the PQRST cycle, clamped to +/-1000 uV.
func NewECGTable() Table {
	return build(ecgComponents, -ecgClamp, ecgClamp)
}

// NewPlethTable builds the photoplethysmogram cycle.
func NewPlethTable() Table {
	return build(plethComponents, 0, plethMax)
}

// NewRespTable builds a single broad breath.
func NewRespTable() Table {
	return build(respComponents, -ecgClamp, ecgClamp)
}
