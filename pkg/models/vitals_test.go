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

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTempToX10(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{37.0, 370},
		{36.96, 370},
		{36.94, 369},
		{0, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TempToX10(tt.in), "temp %v", tt.in)
	}
}

func TestMeanArterial(t *testing.T) {
	assert.Equal(t, 93, MeanArterial(120, 80))
	assert.Equal(t, 70, MeanArterial(90, 60))
}

func TestValidSlot(t *testing.T) {
	assert.True(t, ValidSlot(0))
	assert.True(t, ValidSlot(1))
	assert.False(t, ValidSlot(-1))
	assert.False(t, ValidSlot(2))
}

func TestWaveformData(t *testing.T) {
	w := Waveform{Count: 3}
	w.Samples[0], w.Samples[1], w.Samples[2] = 1, 2, 3
	assert.Equal(t, []int16{1, 2, 3}, w.Data())

	w.Count = 500
	assert.Len(t, w.Data(), MaxWaveSamples)
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "HIGH", SeverityHigh.String())
	assert.Equal(t, "UNKNOWN", Severity(9).String())
	assert.Equal(t, "PLETH", WavePleth.String())
}
