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

// Package metrics exposes monitor internals as prometheus collectors on a
// private registry.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mfreeman451/vitalmon/pkg/alarm"
	"github.com/mfreeman451/vitalmon/pkg/lifecycle"
	"github.com/mfreeman451/vitalmon/pkg/models"
	"github.com/mfreeman451/vitalmon/pkg/syncqueue"
)

const namespace = "vitalmon"

// Metrics holds every collector the core updates. The zero value is not
// usable; construct with New.
type Metrics struct {
	registry *prometheus.Registry

	vitals       *prometheus.GaugeVec
	samples      *prometheus.CounterVec
	alarmEdges   *prometheus.CounterVec
	alarmHighest prometheus.Gauge
	storeErrors  *prometheus.CounterVec
	technical    prometheus.Gauge
	syncItems    *prometheus.GaugeVec
	services     *prometheus.GaugeVec
	restarts     *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		vitals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vital_value",
			Help:      "Latest value per slot and parameter; 0 means no signal.",
		}, []string{"slot", "param"}),

		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Vitals samples ingested.",
		}, []string{"slot"}),

		alarmEdges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarm_transitions_total",
			Help:      "Alarm state transitions by parameter and target state.",
		}, []string{"param", "state"}),

		alarmHighest: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alarm_highest_active_severity",
			Help:      "Highest unacknowledged alarm severity, 0 NONE to 3 HIGH.",
		}),

		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Persistent store write failures by operation.",
		}, []string{"op"}),

		technical: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "technical_fault",
			Help:      "1 while a technical fault is raised.",
		}),

		syncItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_queue_items",
			Help:      "Sync queue items by status.",
		}, []string{"status"}),

		services: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_state",
			Help:      "Managed service state, 0 STOPPED to 4 ERROR.",
		}, []string{"service"}),

		restarts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_restarts",
			Help:      "Automatic restarts per managed service.",
		}, []string{"service"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.vitals, m.samples, m.alarmEdges, m.alarmHighest, m.storeErrors,
		m.technical, m.syncItems, m.services, m.restarts,
	)

	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveVitals records one ingested sample.
func (m *Metrics) ObserveVitals(v *models.Vitals) {
	slot := strconv.Itoa(v.Slot)

	m.samples.WithLabelValues(slot).Inc()
	m.vitals.WithLabelValues(slot, "hr").Set(float64(v.HR))
	m.vitals.WithLabelValues(slot, "spo2").Set(float64(v.SpO2))
	m.vitals.WithLabelValues(slot, "rr").Set(float64(v.RR))
	m.vitals.WithLabelValues(slot, "temp").Set(v.Temp)

	if v.NIBPFresh {
		m.vitals.WithLabelValues(slot, "nibp_sys").Set(float64(v.NIBPSys))
		m.vitals.WithLabelValues(slot, "nibp_dia").Set(float64(v.NIBPDia))
		m.vitals.WithLabelValues(slot, "nibp_map").Set(float64(v.NIBPMap))
	}
}

func (m *Metrics) ObserveEdge(e *alarm.Edge) {
	m.alarmEdges.WithLabelValues(e.Param.Key(), e.To.String()).Inc()
}

func (m *Metrics) SetHighestActive(s models.Severity) {
	m.alarmHighest.Set(float64(s))
}

func (m *Metrics) StoreError(op string) {
	m.storeErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) SetTechnical(fault bool) {
	if fault {
		m.technical.Set(1)
		return
	}

	m.technical.Set(0)
}

func (m *Metrics) SetSyncStats(s syncqueue.Stats) {
	m.syncItems.WithLabelValues("pending").Set(float64(s.Pending))
	m.syncItems.WithLabelValues("retry").Set(float64(s.Retry))
	m.syncItems.WithLabelValues("sending").Set(float64(s.Sending))
	m.syncItems.WithLabelValues("sent").Set(float64(s.Sent))
	m.syncItems.WithLabelValues("failed").Set(float64(s.Failed))
}

func (m *Metrics) SetServices(statuses []lifecycle.Status) {
	for _, s := range statuses {
		m.services.WithLabelValues(s.Name).Set(float64(s.State))
		m.restarts.WithLabelValues(s.Name).Set(float64(s.RestartCount))
	}
}
