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
	"sync/atomic"

	"github.com/mfreeman451/vitalmon/pkg/models"
)

// HistoryLen covers a two-minute scroll at 1 Hz.
const HistoryLen = 120

// History is a fixed-size ring of recent samples for one slot. A single
// writer may run concurrently with readers.
type History struct {
	points []models.Vitals
	pos    atomic.Int64
	size   int64
}

func NewHistory(size int) *History {
	if size < HistoryLen {
		size = HistoryLen
	}

	return &History{
		points: make([]models.Vitals, size),
		size:   int64(size),
	}
}

// Add appends v, overwriting the oldest sample when full.
func (h *History) Add(v models.Vitals) {
	pos := h.pos.Load()
	h.points[pos%h.size] = v
	h.pos.Store(pos + 1)
}

// Len returns the number of populated samples.
func (h *History) Len() int {
	return int(min(h.pos.Load(), h.size))
}

// Points returns populated samples oldest first.
func (h *History) Points() []models.Vitals {
	pos := h.pos.Load()
	n := min(pos, h.size)
	out := make([]models.Vitals, 0, n)

	for i := pos - n; i < pos; i++ {
		out = append(out, h.points[i%h.size])
	}

	return out
}

// Last returns the newest sample, or nil when empty.
func (h *History) Last() *models.Vitals {
	pos := h.pos.Load()
	if pos == 0 {
		return nil
	}

	v := h.points[(pos-1)%h.size]

	return &v
}

func (h *History) Reset() {
	h.pos.Store(0)
}
