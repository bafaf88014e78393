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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mfreeman451/vitalmon/pkg/alarm"
	"github.com/mfreeman451/vitalmon/pkg/audit"
	"github.com/mfreeman451/vitalmon/pkg/config"
	"github.com/mfreeman451/vitalmon/pkg/export"
	"github.com/mfreeman451/vitalmon/pkg/ipc"
	"github.com/mfreeman451/vitalmon/pkg/models"
	"github.com/mfreeman451/vitalmon/pkg/patient"
	"github.com/mfreeman451/vitalmon/pkg/store"
	"github.com/mfreeman451/vitalmon/pkg/vitals"
)

type fixture struct {
	core  *Core
	mock  *vitals.Mock
	db    *store.DB
	clock time.Time
}

func (f *fixture) now() time.Time { return f.clock }

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Default()
	cfg.Slots = 2
	cfg.Export.RatePerSec = 0

	f := &fixture{db: db, clock: time.Unix(1_700_000_000, 0)}
	f.mock = vitals.NewMock(vitals.WithSlots(2), vitals.WithSeed(7), vitals.WithClock(f.now))

	c, err := New(cfg, zaptest.NewLogger(t),
		WithDB(db),
		WithClock(f.now),
		WithProvider(f.mock),
		WithTransport(export.NewLogTransport(nil)))
	require.NoError(t, err)

	f.core = c

	return f
}

func tachy(slot int, ms int64) models.Vitals {
	return models.Vitals{TimestampMs: ms, Slot: slot, HR: 170, SpO2: 97, RR: 16, Temp: 36.8}
}

func normal(slot int, ms int64) models.Vitals {
	return models.Vitals{TimestampMs: ms, Slot: slot, HR: 75, SpO2: 98, RR: 14, Temp: 36.9}
}

func (f *fixture) ms() int64 { return f.clock.UnixMilli() }

func TestNewRegistersServices(t *testing.T) {
	f := newFixture(t)

	var names []string
	for _, st := range f.core.manager.Status() {
		names = append(names, st.Name)
	}

	assert.Equal(t, []string{"vitals", "alarms", "control", "sync"}, names)
	assert.Equal(t, "vitalmon", f.core.Status().Device)
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(nil, nil)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestVitalsPersistAndRaiseAlarms(t *testing.T) {
	f := newFixture(t)
	c := f.core

	c.onVitals(tachy(0, f.ms()))

	counts, err := c.trend.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Raw)
	assert.Equal(t, 1, counts.Alarms)

	snap := c.engines[0].Snapshot()
	assert.Equal(t, alarm.StateActive, snap.Params[alarm.ParamHR].State)
	assert.Equal(t, models.SeverityHigh, snap.HighestActive)

	log := c.provider.AlarmLog()
	require.Len(t, log, 1)
	assert.Equal(t, models.SeverityHigh, log[0].Severity)

	stats, err := c.queue.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending, "one DetectedIssue queued")
}

func TestSecondarySlotSkipsTrend(t *testing.T) {
	f := newFixture(t)
	c := f.core

	c.onVitals(tachy(1, f.ms()))

	counts, err := c.trend.Counts()
	require.NoError(t, err)
	assert.Zero(t, counts.Raw)
	assert.Equal(t, models.SeverityHigh, c.engines[1].HighestActive())
	assert.Equal(t, models.SeverityNone, c.engines[0].HighestActive())
}

func TestUnusedSlotIgnored(t *testing.T) {
	f := newFixture(t)
	f.core.cfg.Slots = 1

	f.core.onVitals(tachy(1, f.ms()))
	assert.Equal(t, models.SeverityNone, f.core.engines[1].HighestActive())
}

func TestStoreFailureRaisesTechnical(t *testing.T) {
	f := newFixture(t)
	c := f.core

	_, err := f.db.Exec(`ALTER TABLE vitals_raw RENAME TO vitals_raw_off`)
	require.NoError(t, err)

	c.onVitals(tachy(0, f.ms()))

	tech := c.Technical()
	assert.True(t, tech.Fault)
	assert.Contains(t, tech.Reason, "trend.insert")
	assert.Equal(t, f.clock.Unix(), tech.Since)
	assert.Equal(t, models.SeverityHigh, c.engines[0].HighestActive(), "evaluation continues")

	_, err = f.db.Exec(`ALTER TABLE vitals_raw_off RENAME TO vitals_raw`)
	require.NoError(t, err)

	f.advance(time.Second)
	c.onVitals(normal(0, f.ms()))

	assert.Equal(t, Technical{}, c.Technical())
}

func TestAcknowledgeRequiresPermission(t *testing.T) {
	f := newFixture(t)
	c := f.core

	c.onVitals(tachy(0, f.ms()))

	err := c.Acknowledge(0, alarm.ParamHR)
	require.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, c.Login("tech", "2222"))
	require.ErrorIs(t, c.Acknowledge(0, alarm.ParamHR), ErrPermissionDenied)

	require.NoError(t, c.Login("nurse", "0000"))
	require.NoError(t, c.Acknowledge(0, alarm.ParamHR))

	snap := c.engines[0].Snapshot()
	assert.Equal(t, alarm.StateAcknowledged, snap.Params[alarm.ParamHR].State)

	entries, err := c.audit.ByEvent(audit.EventAlarmAck, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "nurse", entries[0].Username)

	require.ErrorIs(t, c.Acknowledge(5, alarm.ParamHR), ErrInvalidSlot)
}

func TestControlAckAll(t *testing.T) {
	f := newFixture(t)
	c := f.core

	v := tachy(0, f.ms())
	v.RR = 40
	c.onVitals(v)
	require.NoError(t, c.Login("doctor", "1111"))

	buf := ipc.EncodeAlarmAck(&ipc.AlarmAck{TimestampMs: f.ms(), Param: ipc.AckAll, Slot: 0})
	msg, err := ipc.Decode(buf)
	require.NoError(t, err)

	c.handleControl(msg)

	snap := c.engines[0].Snapshot()
	assert.Equal(t, alarm.StateAcknowledged, snap.Params[alarm.ParamHR].State)
	assert.Equal(t, alarm.StateAcknowledged, snap.Params[alarm.ParamRR].State)
	assert.Equal(t, models.SeverityNone, snap.HighestActive)
}

func TestControlNIBPStart(t *testing.T) {
	f := newFixture(t)
	c := f.core

	require.NoError(t, f.mock.Init())

	msg, err := ipc.Decode(ipc.EncodeNIBPStart(&ipc.NIBPStart{TimestampMs: f.ms(), Slot: 1}))
	require.NoError(t, err)
	c.handleControl(msg)

	require.NoError(t, f.mock.Step(f.ms()))

	v, ok := c.provider.Current(1)
	require.True(t, ok)
	assert.True(t, v.NIBPFresh)
	assert.Positive(t, v.NIBPSys)

	require.ErrorIs(t, c.StartNIBP(2), ErrInvalidSlot)
}

func TestSilenceAndPauseAudio(t *testing.T) {
	f := newFixture(t)
	c := f.core

	c.onVitals(tachy(0, f.ms()))

	require.ErrorIs(t, c.PauseAudio(60), ErrPermissionDenied)
	require.NoError(t, c.Login("nurse", "0000"))

	require.NoError(t, c.Silence(0, alarm.ParamHR, 120))
	assert.Equal(t, alarm.StateSilenced, c.engines[0].Snapshot().Params[alarm.ParamHR].State)

	require.NoError(t, c.PauseAudio(60))
	assert.True(t, c.engines[0].AudioPaused())
	assert.True(t, c.engines[1].AudioPaused())

	entries, err := c.audit.ByEvent(audit.EventAudioPaused, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSetLimitsPersists(t *testing.T) {
	f := newFixture(t)
	c := f.core

	l := alarm.Limits{Enabled: true, CritHigh: 160, CritLow: 35, WarnHigh: 130, WarnLow: 45}

	require.NoError(t, c.Login("nurse", "0000"))
	require.ErrorIs(t, c.SetLimits(alarm.ParamHR, l), ErrPermissionDenied)

	require.NoError(t, c.Login("doctor", "1111"))
	require.NoError(t, c.SetLimits(alarm.ParamHR, l))

	got, err := c.Limits(1, alarm.ParamHR)
	require.NoError(t, err)
	assert.Equal(t, l, got)

	fresh := alarm.NewEngine()
	require.NoError(t, fresh.LoadLimits(c.settings))
	stored, err := fresh.Limits(alarm.ParamHR)
	require.NoError(t, err)
	assert.Equal(t, l, stored)

	bad := l
	bad.WarnHigh = 200
	require.ErrorIs(t, c.SetLimits(alarm.ParamHR, bad), alarm.ErrInvalidLimits)
}

func TestAdmitDischargeExportsPatient(t *testing.T) {
	f := newFixture(t)
	c := f.core

	p := patient.NewPatient("Asha Rao", "MRN-77")

	_, err := c.Admit(p, 0)
	require.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, c.Login("doctor", "1111"))

	id, err := c.Admit(p, 0)
	require.NoError(t, err)

	active := c.patients.Active(0)
	require.NotNil(t, active)
	assert.Equal(t, id, active.ID)

	require.NoError(t, c.Discharge(id))
	assert.Nil(t, c.patients.Active(0))

	entries, err := c.audit.ByEvent(audit.EventPatientDischarge, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// login audit, admit audit, patient, discharge audit, patient
	stats, err := c.queue.Stats()
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Pending)
}

func TestAdmitSecondSlotKeepsFirst(t *testing.T) {
	f := newFixture(t)
	c := f.core

	first := c.patients.Active(0)
	require.NotNil(t, first)

	require.NoError(t, c.Login("doctor", "1111"))

	id, err := c.Admit(&patient.Patient{Name: "Second Bed", MRN: "MRN-2"}, 1)
	require.NoError(t, err)

	second := c.patients.Active(1)
	require.NotNil(t, second)
	assert.Equal(t, id, second.ID)

	kept := c.patients.Active(0)
	require.NotNil(t, kept)
	assert.Equal(t, first.ID, kept.ID)
}

func TestTickAggregatesAndExports(t *testing.T) {
	f := newFixture(t)
	c := f.core
	c.cfg.Export.ObservationInterval = config.Duration(30 * time.Second)

	require.NoError(t, f.mock.Init())
	require.NoError(t, c.Login("nurse", "0000"))

	p := patient.NewPatient("Li Wei", "MRN-1")
	_, err := c.Admit(p, 0)
	require.NoError(t, err)

	before, err := c.queue.Stats()
	require.NoError(t, err)

	c.tick(f.clock)

	for i := 0; i < 70; i++ {
		f.advance(time.Second)
		require.NoError(t, f.mock.Step(f.ms()))
		c.tick(f.clock)
	}

	counts, err := c.trend.Counts()
	require.NoError(t, err)
	assert.Equal(t, 70, counts.Raw)
	assert.GreaterOrEqual(t, counts.Aggregate, 1)

	after, err := c.queue.Stats()
	require.NoError(t, err)
	assert.Greater(t, after.Total, before.Total, "observations queued for the admitted slot")
}

func TestTickCatchesUpMissedMinutes(t *testing.T) {
	f := newFixture(t)
	c := f.core

	c.tick(f.clock)

	start := f.clock.Unix()
	for ts := start + 1; ts <= start+300; ts++ {
		require.NoError(t, c.trend.InsertSample(ts, 72, 98, 16, 37.0))
	}

	// one tick after a five minute stall
	f.advance(301 * time.Second)
	c.tick(f.clock)

	counts, err := c.trend.Counts()
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Aggregate)

	f.advance(time.Second)
	c.tick(f.clock)

	counts, err = c.trend.Counts()
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Aggregate)
}

func TestTickAggregatesBoundarySecond(t *testing.T) {
	f := newFixture(t)
	c := f.core

	// the fixture clock sits 20 s past a minute boundary
	boundary := f.clock.Unix() + 40

	c.tick(f.clock)

	f.advance(40 * time.Second)
	c.tick(f.clock)

	// a sample stamped with the boundary second lands after that tick
	require.NoError(t, c.trend.InsertSample(boundary, 140, 98, 16, 37.0))

	f.advance(time.Second)
	c.tick(f.clock)

	var hrMax int
	require.NoError(t, c.db.QueryRow(`SELECT hr_max FROM vitals_1min WHERE ts = ?`, boundary).Scan(&hrMax))
	assert.Equal(t, 140, hrMax)
}

func TestSessionTimeoutOnTick(t *testing.T) {
	f := newFixture(t)
	c := f.core

	require.NoError(t, c.auth.SetTimeout(5))
	require.NoError(t, c.Login("nurse", "0000"))

	c.tick(f.clock)
	f.advance(6 * time.Second)
	c.tick(f.clock)

	assert.False(t, c.Session().LoggedIn)

	entries, err := c.audit.ByEvent(audit.EventSessionTimeout, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProviderServiceStale(t *testing.T) {
	f := newFixture(t)
	svc := &providerService{core: f.core}

	f.core.startedAt = f.clock.Unix()
	require.NoError(t, svc.Tick(f.clock.Unix()+staleAfter))
	require.ErrorIs(t, svc.Tick(f.clock.Unix()+staleAfter+1), ErrNoSamples)

	f.advance(30 * time.Second)
	f.core.onVitals(normal(0, f.ms()))
	require.NoError(t, svc.Tick(f.clock.Unix()+1))
}

func TestDoRequiresRunning(t *testing.T) {
	f := newFixture(t)

	err := f.core.Do(context.Background(), func() {})
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestRunDoStop(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Default()
	cfg.IPC.Alarms = "tcp://127.0.0.1:0"
	cfg.IPC.Control = "tcp://127.0.0.1:0"
	cfg.VitalsInterval = config.Duration(20 * time.Millisecond)

	c, err := New(cfg, zaptest.NewLogger(t), WithDB(db), WithTransport(export.NewLogTransport(nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() { errCh <- c.Start(ctx) }()

	require.Eventually(t, func() bool {
		var ok bool

		err := c.Do(ctx, func() {
			_, ok = c.provider.Current(0)
		})

		return err == nil && ok
	}, 2*time.Second, 20*time.Millisecond)

	var st Status
	require.NoError(t, c.Do(ctx, func() { st = c.Status() }))
	require.Len(t, st.Slots, 1)
	assert.NotNil(t, st.Slots[0].Vitals)

	require.ErrorIs(t, c.Start(ctx), ErrAlreadyRunning)

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	require.NoError(t, c.Stop(stopCtx))
	require.NoError(t, <-errCh)

	require.ErrorIs(t, c.Do(context.Background(), func() {}), ErrNotRunning)
}
