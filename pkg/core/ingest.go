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


package core

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mfreeman451/vitalmon/pkg/alarm"
	"github.com/mfreeman451/vitalmon/pkg/fhir"
	"github.com/mfreeman451/vitalmon/pkg/ipc"
	"github.com/mfreeman451/vitalmon/pkg/models"
	"github.com/mfreeman451/vitalmon/pkg/syncqueue"
)

// primarySlot is the slot whose samples feed the trend store.
const primarySlot = 0

func (c *Core) validSlot(slot int) bool {
	return models.ValidSlot(slot) && slot < c.cfg.Slots
}

// onVitals is the provider's vitals sink. It runs on the owner thread.
func (c *Core) onVitals(v models.Vitals) {
	if !c.validSlot(v.Slot) {
		c.logger.Debug("sample for unused slot", zap.Int("slot", v.Slot))
		return
	}

	sec := c.now().Unix()
	c.lastSample = sec
	c.metrics.ObserveVitals(&v)

	if v.Slot == primarySlot {
		if err := c.trend.InsertVitals(&v); err != nil {
			c.raiseTechnical("trend.insert", err, sec)
		} else {
			c.clearTechnical()
		}
	}

	c.handleEdges(v.Slot, c.engines[v.Slot].Evaluate(v, sec))
}

// onWaveform only counts packets; waveforms are rendered by the UI
// straight from the source.
func (c *Core) onWaveform(models.Waveform) {
	c.waveforms.Add(1)
}

// handleEdges fans each alarm transition out to the alarm endpoint, the
// trend store, the provider's alarm log and the export queue.
func (c *Core) handleEdges(slot int, edges []alarm.Edge) {
	if len(edges) == 0 {
		return
	}

	subject := c.patients.Active(slot)

	for i := range edges {
		e := &edges[i]

		c.metrics.ObserveEdge(e)
		c.publishAlarm(slot, e)

		if e.To == alarm.StateActive {
			if err := c.trend.InsertAlarm(e.Time, e.Severity, e.Message); err != nil {
				c.raiseTechnical("trend.alarm", err, e.Time)
			}

			c.provider.LogAlarm(e.Severity, e.Message, time.Unix(e.Time, 0).Format(time.TimeOnly))
		}

		c.enqueue(syncqueue.TypeAlarm, c.fhir.DetectedIssue(e, subject))

		c.logger.Info("alarm transition",
			zap.Int("slot", slot),
			zap.Stringer("param", e.Param),
			zap.Stringer("from", e.From),
			zap.Stringer("to", e.To),
			zap.Stringer("severity", e.Severity))
	}

	c.metrics.SetHighestActive(c.highestActive())
}

func (c *Core) highestActive() models.Severity {
	var h models.Severity

	for slot := 0; slot < c.cfg.Slots; slot++ {
		h = max(h, c.engines[slot].HighestActive())
	}

	return h
}

func (c *Core) publishAlarm(slot int, e *alarm.Edge) {
	if c.alarms == nil {
		return
	}

	buf := ipc.EncodeAlarm(&ipc.Alarm{
		TimestampMs: e.Time * 1000,
		Param:       uint8(e.Param),
		Severity:    e.Severity,
		State:       uint8(e.To),
		Slot:        slot,
		Message:     e.Message,
	})

	if err := c.alarms.Publish(buf); err != nil {
		c.logger.Warn("alarm publish failed", zap.Stringer("param", e.Param), zap.Error(err))
	}
}

// enqueue serialises a FHIR resource into the sync queue. A full queue
// drops the item; the sample or event itself is already persisted.
func (c *Core) enqueue(t syncqueue.ItemType, resource any) {
	data, err := fhir.Marshal(resource)
	if err != nil {
		c.logger.Warn("fhir encode failed", zap.Stringer("type", t), zap.Error(err))
		return
	}

	if _, err := c.queue.Push(t, string(data)); err != nil {
		if errors.Is(err, syncqueue.ErrQueueFull) {
			c.logger.Debug("sync queue full", zap.Stringer("type", t))
		} else {
			c.logger.Warn("sync push failed", zap.Stringer("type", t), zap.Error(err))
		}

		c.metrics.StoreError("syncqueue.push")
	}
}

func (c *Core) raiseTechnical(op string, err error, sec int64) {
	c.metrics.StoreError(op)

	reason := op + ": " + err.Error()
	if !c.technical.Fault {
		c.technical = Technical{Fault: true, Reason: reason, Since: sec}
		c.metrics.SetTechnical(true)
		c.logger.Error("technical fault raised", zap.String("op", op), zap.Error(err))

		return
	}

	c.technical.Reason = reason
}

func (c *Core) clearTechnical() {
	if !c.technical.Fault {
		return
	}

	c.logger.Info("technical fault cleared", zap.String("reason", c.technical.Reason))
	c.technical = Technical{}
	c.metrics.SetTechnical(false)
}

// Technical returns the current technical status.
func (c *Core) Technical() Technical {
	return c.technical
}

// Waveforms is the number of waveform packets received.
func (c *Core) Waveforms() uint64 {
	return c.waveforms.Load()
}
