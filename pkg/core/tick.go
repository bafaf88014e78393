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
	"time"

	"go.uber.org/zap"

	"github.com/mfreeman451/vitalmon/pkg/syncqueue"
	"github.com/mfreeman451/vitalmon/pkg/trend"
)

// tick is the owner thread's once-a-second housekeeping.
func (c *Core) tick(now time.Time) {
	sec := now.Unix()

	c.manager.Tick(sec)
	c.auth.CheckTimeout(sec)
	c.aggregate(sec)

	if sec-c.lastPurge >= purgeEvery {
		c.purge(sec)
		c.lastPurge = sec
	}

	if every := int64(c.cfg.Export.ObservationInterval.Std() / time.Second); every > 0 && sec-c.lastExport >= every {
		c.exportObservations()
		c.lastExport = sec
	}

	c.refreshMetrics()
}

// aggregate rolls every closed minute since the last one into vitals_1min.
// Minute m covers (m-60, m] and is closed once the clock has passed m.
// After a stall at most the minutes still held in raw retention are rolled.
func (c *Core) aggregate(sec int64) {
	latest := ((sec - 1) / 60) * 60

	if c.lastMinute == 0 {
		c.lastMinute = latest
		return
	}

	from := c.lastMinute + 60
	if oldest := latest - trend.RawRetention + 60; from < oldest {
		from = oldest
	}

	for minute := from; minute <= latest; minute += 60 {
		if _, err := c.trend.AggregateMinute(minute); err != nil {
			c.metrics.StoreError("trend.aggregate")
			c.logger.Warn("minute aggregation failed", zap.Int64("minute", minute), zap.Error(err))

			return
		}

		c.lastMinute = minute
	}
}

func (c *Core) purge(sec int64) {
	if err := c.trend.PurgeOld(sec); err != nil {
		c.metrics.StoreError("trend.purge")
		c.logger.Warn("trend purge failed", zap.Error(err))
	}

	if _, err := c.audit.PurgeOld(0); err != nil {
		c.metrics.StoreError("audit.purge")
		c.logger.Warn("audit purge failed", zap.Error(err))
	}

	if _, err := c.queue.PurgeSent(sentRetained); err != nil {
		c.metrics.StoreError("syncqueue.purge")
		c.logger.Warn("sync purge failed", zap.Error(err))
	}
}

// exportObservations queues the latest sample of every slot with an
// admitted patient.
func (c *Core) exportObservations() {
	for slot := 0; slot < c.cfg.Slots; slot++ {
		p := c.patients.Active(slot)
		if p == nil {
			continue
		}

		v, ok := c.provider.Current(slot)
		if !ok {
			continue
		}

		c.enqueue(syncqueue.TypeVitals, c.fhir.Observation(&v, p))
	}
}

func (c *Core) refreshMetrics() {
	c.metrics.SetServices(c.manager.Status())

	stats, err := c.queue.Stats()
	if err != nil {
		c.logger.Debug("sync stats unavailable", zap.Error(err))
		return
	}

	c.metrics.SetSyncStats(stats)
}
