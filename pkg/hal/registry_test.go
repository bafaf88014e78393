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

package hal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBase struct {
	name    string
	initErr error
	ready   bool
	calls   *[]string
}

func (f *fakeBase) Init() error {
	*f.calls = append(*f.calls, "init:"+f.name)
	if f.initErr != nil {
		return f.initErr
	}

	f.ready = true

	return nil
}

func (f *fakeBase) Deinit() {
	*f.calls = append(*f.calls, "deinit:"+f.name)
	f.ready = false
}

func (f *fakeBase) State() State {
	if f.ready {
		return StateReady
	}

	return StateUninit
}

func (*fakeBase) Error() ErrorCode { return ErrCodeNone }

func (f *fakeBase) Ready() bool { return f.ready }

type fakeSpO2 struct {
	fakeBase
	rd SpO2Reading
}

func (f *fakeSpO2) Reading() (SpO2Reading, error) { return f.rd, nil }
func (*fakeSpO2) SetWaveformFunc(WaveformFunc)    {}

type fakeECG struct {
	fakeBase
	rd ECGReading
}

func (f *fakeECG) Reading() (ECGReading, error) { return f.rd, nil }
func (*fakeECG) SetWaveformFunc(WaveformFunc)   {}
func (*fakeECG) SetLead(Lead) error             { return nil }

type fakeNIBP struct {
	fakeBase
	rd NIBPReading
}

func (f *fakeNIBP) Reading() (NIBPReading, error) { return f.rd, nil }
func (*fakeNIBP) StartMeasurement() error         { return nil }
func (*fakeNIBP) AbortMeasurement() error         { return nil }
func (*fakeNIBP) Measuring() bool                 { return false }
func (*fakeNIBP) SetAutoInterval(int) error       { return nil }

type fakeTemp struct {
	fakeBase
	rd TempReading
}

func (f *fakeTemp) Reading() (TempReading, error) { return f.rd, nil }

func fakes(calls *[]string) (*fakeSpO2, *fakeECG, *fakeNIBP, *fakeTemp) {
	return &fakeSpO2{fakeBase: fakeBase{name: "spo2", calls: calls}},
		&fakeECG{fakeBase: fakeBase{name: "ecg", calls: calls}},
		&fakeNIBP{fakeBase: fakeBase{name: "nibp", calls: calls}},
		&fakeTemp{fakeBase: fakeBase{name: "temp", calls: calls}}
}

func TestRegisterValidation(t *testing.T) {
	var calls []string

	spo2, ecg, _, temp := fakes(&calls)
	r := NewRegistry()

	require.ErrorIs(t, r.Register(SensorType(9), spo2), ErrInvalidType)
	require.ErrorIs(t, r.Register(SensorSpO2, nil), ErrNilOps)
	require.ErrorIs(t, r.Register(SensorNIBP, temp), ErrWrongOps)

	require.NoError(t, r.Register(SensorSpO2, spo2))
	require.ErrorIs(t, r.Register(SensorSpO2, spo2), ErrAlreadyRegistered)
	require.NoError(t, r.Register(SensorECG, ecg))

	assert.Equal(t, []SensorType{SensorSpO2, SensorECG}, r.Registered())

	_, err := r.NIBP()
	require.ErrorIs(t, err, ErrNotRegistered)

	got, err := r.ECG()
	require.NoError(t, err)
	assert.Same(t, ecg, got)
}

func TestInitAllSealsAndJoinsErrors(t *testing.T) {
	var calls []string

	spo2, ecg, nibp, temp := fakes(&calls)
	boom := errors.New("no probe")
	ecg.initErr = boom

	r := NewRegistry()
	require.NoError(t, r.Register(SensorSpO2, spo2))
	require.NoError(t, r.Register(SensorECG, ecg))
	require.NoError(t, r.Register(SensorNIBP, nibp))

	err := r.InitAll()
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "ECG")
	assert.True(t, r.Sealed())
	assert.True(t, spo2.Ready())
	assert.True(t, nibp.Ready())

	require.ErrorIs(t, r.Register(SensorTemp, temp), ErrSealed)

	calls = nil
	r.DeinitAll()
	assert.Equal(t, []string{"deinit:nibp", "deinit:ecg", "deinit:spo2"}, calls)
	assert.False(t, r.Sealed())
	require.NoError(t, r.Register(SensorTemp, temp))
}

func TestSampleAssemblesReadings(t *testing.T) {
	var calls []string

	spo2, ecg, nibp, temp := fakes(&calls)
	ecg.rd = ECGReading{HR: 72, RR: 14, LeadOff: 0, Quality: 95, Valid: true}
	spo2.rd = SpO2Reading{SpO2: 97, PulseRate: 70, Quality: 92, Valid: true}
	temp.rd = TempReading{Celsius: 36.8, Quality: 99, Valid: true}
	nibp.rd = NIBPReading{Sys: 118, Dia: 76, Map: 90, Valid: true, TimestampMs: 500}

	r := NewRegistry()
	require.NoError(t, r.Register(SensorSpO2, spo2))
	require.NoError(t, r.Register(SensorECG, ecg))
	require.NoError(t, r.Register(SensorNIBP, nibp))
	require.NoError(t, r.Register(SensorTemp, temp))
	require.NoError(t, r.InitAll())

	v := r.Sample(1000, 1)
	assert.Equal(t, int64(1000), v.TimestampMs)
	assert.Equal(t, 1, v.Slot)
	assert.Equal(t, 72, v.HR)
	assert.Equal(t, 97, v.SpO2)
	assert.Equal(t, 14, v.RR)
	assert.InDelta(t, 36.8, v.Temp, 1e-9)
	assert.Equal(t, 118, v.NIBPSys)
	assert.True(t, v.NIBPFresh)

	v = r.Sample(2000, 1)
	assert.Equal(t, 118, v.NIBPSys)
	assert.False(t, v.NIBPFresh, "same result is not fresh twice")

	nibp.rd.TimestampMs = 1500
	assert.True(t, r.Sample(3000, 1).NIBPFresh)
}

func TestSampleSkipsInvalidAndUnready(t *testing.T) {
	var calls []string

	spo2, ecg, _, temp := fakes(&calls)
	ecg.rd = ECGReading{HR: 80, Valid: false}
	spo2.rd = SpO2Reading{SpO2: 96, PulseRate: 66, Valid: true}
	temp.rd = TempReading{Celsius: 37, Valid: true}

	r := NewRegistry()
	require.NoError(t, r.Register(SensorSpO2, spo2))
	require.NoError(t, r.Register(SensorECG, ecg))
	require.NoError(t, r.Register(SensorTemp, temp))
	require.NoError(t, r.InitAll())

	temp.ready = false

	v := r.Sample(1, 0)
	assert.Equal(t, 66, v.HR, "pulse rate stands in for missing ECG")
	assert.Equal(t, 96, v.SpO2)
	assert.Zero(t, v.Temp)
	assert.False(t, v.HasNIBP())
}
