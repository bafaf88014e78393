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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func argmax(t *Table) (int, int16) {
	best, idx := t[0], 0

	for i, v := range t {
		if v > best {
			best, idx = v, i
		}
	}

	return idx, best
}

func argmin(t *Table) (int, int16) {
	best, idx := t[0], 0

	for i, v := range t {
		if v < best {
			best, idx = v, i
		}
	}

	return idx, best
}

func TestECGMorphology(t *testing.T) {
	ecg := NewECGTable()

	idx, peak := argmax(&ecg)
	assert.Equal(t, 94, idx, "R wave")
	assert.InDelta(t, 990, peak, 15)

	idx, trough := argmin(&ecg)
	assert.InDelta(t, 102, idx, 1, "S wave")
	assert.Less(t, trough, int16(-200))

	assert.Greater(t, ecg[50], int16(100), "P wave")
	assert.Greater(t, ecg[160], int16(250), "T wave")
	assert.Less(t, ecg[86], int16(-80), "Q wave")

	for _, v := range ecg {
		assert.LessOrEqual(t, v, int16(1000))
		assert.GreaterOrEqual(t, v, int16(-1000))
	}
}

func TestPlethShape(t *testing.T) {
	pleth := NewPlethTable()

	idx, peak := argmax(&pleth)
	assert.Equal(t, 60, idx)
	assert.InDelta(t, 3000, peak, 20)

	// The notch dips below the dicrotic wave that follows it.
	assert.Less(t, pleth[110], pleth[128])

	for _, v := range pleth {
		assert.GreaterOrEqual(t, v, int16(0))
		assert.LessOrEqual(t, v, int16(4095))
	}
}

func TestRespTable(t *testing.T) {
	resp := NewRespTable()

	idx, _ := argmax(&resp)
	assert.Equal(t, 96, idx)
}

func TestPhaseIncrement(t *testing.T) {
	ecg := NewECGTable()
	g := NewGenerator(&ecg, 200, 1000, 0, -1000, 1000)

	g.SetRate(60)
	assert.Equal(t, uint32(256*60*65536/(60*200)), g.PhaseInc())

	g.SetRate(120)
	assert.Equal(t, uint32(256*120*65536/(60*200)), g.PhaseInc())

	g.SetRate(0)
	assert.Equal(t, uint32(0), g.PhaseInc())

	first := g.Next()
	assert.Equal(t, first, g.Next(), "zero rate holds the sample")
}

func TestGeneratorCycle(t *testing.T) {
	ecg := NewECGTable()
	g := NewGenerator(&ecg, 256, 1000, 0, -1000, 1000)

	// 60 per minute at 256 sps is one table entry per sample.
	g.SetRate(60)
	require.Equal(t, uint32(65536), g.PhaseInc())

	buf := make([]int16, TableLen*2)
	g.Fill(buf)

	for i := range buf {
		assert.Equal(t, ecg[i%TableLen], buf[i], "sample %d", i)
	}

	g.Reset()
	assert.Equal(t, ecg[0], g.Next())
}

func TestGeneratorScaleAndClamp(t *testing.T) {
	pleth := NewPlethTable()
	g := NewGenerator(&pleth, 256, 500, 100, 0, 1000)
	g.SetRate(60)

	buf := make([]int16, TableLen)
	g.Fill(buf)

	assert.Equal(t, int16(1000), buf[60], "peak clamps to hi")
	assert.Equal(t, int16(int32(pleth[200])*500/1000+100), buf[200])

	g.SetAmplitude(0)
	assert.Equal(t, int16(100), g.Next())
}
