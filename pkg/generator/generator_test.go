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

package generator

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	w := Walk{Base: 75, Current: 75, Min: 50, Max: 120, MaxDrift: 2}

	for i := 0; i < 10_000; i++ {
		v := w.Step(rng)
		require.GreaterOrEqual(t, v, 50)
		require.LessOrEqual(t, v, 120)
	}
}

func TestWalkReverts(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	w := Walk{Base: 75, Current: 120, Min: 50, Max: 120, MaxDrift: 0}

	assert.Equal(t, 111, w.Step(rng))
	assert.Equal(t, 104, w.Step(rng))

	w = Walk{Base: 75, Current: 50, Min: 50, Max: 120, MaxDrift: 0}
	assert.Equal(t, 55, w.Step(rng))
}

func TestFloatWalkRounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	w := FloatWalk{Base: 37.0, Current: 37.0, Min: 35.5, Max: 39.0, MaxDrift: 0.1}

	for i := 0; i < 1000; i++ {
		v := w.Step(rng)
		require.GreaterOrEqual(t, v, 35.5)
		require.LessOrEqual(t, v, 39.0)
		assert.InDelta(t, math.Round(v*10), v*10, 1e-9)
	}
}

func TestNIBPCadence(t *testing.T) {
	g := New(WithSeed(7), WithNIBPEvery(5), WithSlot(1))

	var fresh []int

	for i := 0; i < 12; i++ {
		v := g.Next(int64(i) * 1000)
		assert.Equal(t, 1, v.Slot)
		assert.Equal(t, int64(i)*1000, v.TimestampMs)
		require.True(t, v.HasNIBP())
		assert.Equal(t, (v.NIBPSys+2*v.NIBPDia)/3, v.NIBPMap)

		if v.NIBPFresh {
			fresh = append(fresh, i)
		}
	}

	assert.Equal(t, []int{0, 5, 10}, fresh)
}

func TestNIBPRetainedBetweenReadings(t *testing.T) {
	g := New(WithSeed(11))

	first := g.Next(0)
	require.True(t, first.NIBPFresh)

	for i := 1; i < DefaultNIBPEvery; i++ {
		v := g.Next(int64(i))
		require.False(t, v.NIBPFresh)
		assert.Equal(t, first.NIBPSys, v.NIBPSys)
		assert.Equal(t, first.NIBPDia, v.NIBPDia)
	}

	assert.True(t, g.Next(60).NIBPFresh)
}

func TestSeededDeterminism(t *testing.T) {
	a := New(WithSeed(42))
	b := New(WithSeed(42))

	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Next(int64(i)), b.Next(int64(i)))
	}
}

func TestSamplesInPhysiologicalRange(t *testing.T) {
	g := New(WithSeed(99))

	for i := 0; i < 3600; i++ {
		v := g.Next(int64(i))
		require.True(t, v.HR >= 50 && v.HR <= 120)
		require.True(t, v.SpO2 >= 90 && v.SpO2 <= 100)
		require.True(t, v.RR >= 8 && v.RR <= 30)
		require.True(t, v.NIBPSys > v.NIBPDia)

		for _, q := range v.Quality {
			require.True(t, q >= 90 && q <= 100)
		}
	}
}

func TestTriggerNIBP(t *testing.T) {
	g := New(WithSeed(3), WithNIBPEvery(100))

	require.True(t, g.Next(0).NIBPFresh)
	require.False(t, g.Next(1).NIBPFresh)

	g.TriggerNIBP()
	assert.True(t, g.Next(2).NIBPFresh)
	assert.False(t, g.Next(3).NIBPFresh, "trigger is one-shot")
}
