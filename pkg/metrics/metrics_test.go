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

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mfreeman451/vitalmon/pkg/alarm"
	"github.com/mfreeman451/vitalmon/pkg/lifecycle"
	"github.com/mfreeman451/vitalmon/pkg/models"
	"github.com/mfreeman451/vitalmon/pkg/syncqueue"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveVitals(t *testing.T) {
	m := New()

	m.ObserveVitals(&models.Vitals{Slot: 1, HR: 72, SpO2: 97, Temp: 36.9, NIBPSys: 120, NIBPDia: 80, NIBPMap: 93, NIBPFresh: true})
	m.ObserveVitals(&models.Vitals{Slot: 1, HR: 74, NIBPSys: 200})

	assert.InDelta(t, 74, testutil.ToFloat64(m.vitals.WithLabelValues("1", "hr")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.vitals.WithLabelValues("1", "spo2")), 0)
	assert.InDelta(t, 120, testutil.ToFloat64(m.vitals.WithLabelValues("1", "nibp_sys")), 0, "stale NIBP ignored")
	assert.InDelta(t, 2, testutil.ToFloat64(m.samples.WithLabelValues("1")), 0)
}

func TestAlarmAndServiceGauges(t *testing.T) {
	m := New()

	m.ObserveEdge(&alarm.Edge{Param: alarm.ParamSpO2, To: alarm.StateActive})
	m.ObserveEdge(&alarm.Edge{Param: alarm.ParamSpO2, To: alarm.StateActive})
	m.SetHighestActive(models.SeverityHigh)
	m.SetTechnical(true)
	m.StoreError("trend")
	m.SetSyncStats(syncqueue.Stats{Pending: 3, Retry: 1, Failed: 2})
	m.SetServices([]lifecycle.Status{{Name: "sync", State: lifecycle.StateError, RestartCount: 2}})

	assert.InDelta(t, 2, testutil.ToFloat64(m.alarmEdges.WithLabelValues("spo2", "ACTIVE")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.alarmHighest), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.technical), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.storeErrors.WithLabelValues("trend")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.syncItems.WithLabelValues("pending")), 0)
	assert.InDelta(t, float64(lifecycle.StateError), testutil.ToFloat64(m.services.WithLabelValues("sync")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.restarts.WithLabelValues("sync")), 0)

	m.SetTechnical(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.technical), 0)
}

func TestHandler(t *testing.T) {
	m := New()
	m.SetTechnical(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "vitalmon_technical_fault 1"))
	assert.Contains(t, body, "go_goroutines")
}
