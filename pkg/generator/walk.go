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
)

// Walk is a bounded integer random walk that reverts toward Base.
type Walk struct {
	Base     int
	Current  int
	Min      int
	Max      int
	MaxDrift int
}

// Step applies drift + (Base-Current)/5 and clamps to [Min, Max].
func (w *Walk) Step(rng *rand.Rand) int {
	drift := 0
	if w.MaxDrift > 0 {
		drift = rng.IntN(2*w.MaxDrift+1) - w.MaxDrift
	}

	reversion := (w.Base - w.Current) / 5
	w.Current = clampInt(w.Current+drift+reversion, w.Min, w.Max)

	return w.Current
}

// FloatWalk is the float variant used for temperature, rounded to 0.1.
type FloatWalk struct {
	Base     float64
	Current  float64
	Min      float64
	Max      float64
	MaxDrift float64
}

func (w *FloatWalk) Step(rng *rand.Rand) float64 {
	drift := (rng.Float64()*2 - 1) * w.MaxDrift
	reversion := (w.Base - w.Current) / 5
	next := math.Max(w.Min, math.Min(w.Max, w.Current+drift+reversion))
	w.Current = math.Round(next*10) / 10

	return w.Current
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
