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

package fhir

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/mfreeman451/vitalmon/pkg/alarm"
	"github.com/mfreeman451/vitalmon/pkg/audit"
	"github.com/mfreeman451/vitalmon/pkg/models"
	"github.com/mfreeman451/vitalmon/pkg/patient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBuilder() *Builder {
	return NewBuilder(WithDevice("bed-3"), WithIDFunc(func() string { return "fixed-id" }))
}

func codes(obs *Observation) []string {
	out := make([]string, 0, len(obs.Component))
	for _, c := range obs.Component {
		out = append(out, c.Code.Coding[0].Code)
	}

	return out
}

func TestObservationComponents(t *testing.T) {
	b := testBuilder()
	v := &models.Vitals{
		TimestampMs: 1_700_000_000_000,
		HR:          72, SpO2: 98, RR: 16, Temp: 36.84,
		NIBPSys: 120, NIBPDia: 80,
	}

	obs := b.Observation(v, &patient.Patient{ID: 4, Name: "Jane Doe"})
	assert.Equal(t, "Observation", obs.ResourceType)
	assert.Equal(t, "fixed-id", obs.ID)
	assert.Equal(t, "vital-signs", obs.Category[0].Coding[0].Code)
	assert.Equal(t, "Patient/4", obs.Subject.Reference)
	assert.Equal(t, "2023-11-14T22:13:20Z", obs.EffectiveDateTime)
	assert.Equal(t, "bed-3", obs.Device.Display)
	assert.Equal(t, []string{"8867-4", "2708-6", "9279-1", "8310-5", "8480-6", "8462-4"}, codes(obs))
	assert.InDelta(t, 36.8, obs.Component[3].ValueQuantity.Value, 1e-9)
	assert.Equal(t, "Cel", obs.Component[3].ValueQuantity.Code)
}

func TestObservationOmitsMissing(t *testing.T) {
	obs := testBuilder().Observation(&models.Vitals{HR: 60, Temp: 37}, nil)

	assert.Equal(t, []string{"8867-4", "8310-5"}, codes(obs))
	assert.Nil(t, obs.Subject)

	empty := testBuilder().Observation(&models.Vitals{}, nil)
	data, err := Marshal(empty)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":[]`)
}

func TestPatientResource(t *testing.T) {
	tests := []struct {
		name   string
		full   string
		family string
		given  []string
	}{
		{"two words", "Jane Doe", "Doe", []string{"Jane"}},
		{"middle name", "Mary Ann Smith", "Smith", []string{"Mary Ann"}},
		{"single", "Madonna", "Madonna", nil},
		{"padded", "  Ravi   Kumar ", "Kumar", []string{"Ravi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testBuilder().Patient(&patient.Patient{ID: 9, Name: tt.full, MRN: "MRN-1", DOB: "1980-02-03", Gender: "F", Active: true})

			require.Len(t, p.Name, 1)
			assert.Equal(t, tt.family, p.Name[0].Family)
			assert.Equal(t, tt.given, p.Name[0].Given)
			assert.Equal(t, "9", p.ID)
			assert.Equal(t, "female", p.Gender)
			assert.Equal(t, "1980-02-03", p.BirthDate)
			require.Len(t, p.Identifier, 1)
			assert.Equal(t, "MR", p.Identifier[0].Type.Coding[0].Code)
			assert.Equal(t, "MRN-1", p.Identifier[0].Value)
		})
	}
}

func TestPatientWithoutMRN(t *testing.T) {
	p := testBuilder().Patient(&patient.Patient{ID: 1, Name: "Demo Patient", Gender: "unknown"})

	assert.Empty(t, p.Identifier)
	assert.Equal(t, "unknown", p.Gender)
}

func TestWriteBounds(t *testing.T) {
	b := testBuilder()
	v := &models.Vitals{HR: 80, SpO2: 97}

	buf := make([]byte, MaxResourceBytes)
	n, err := b.WriteObservation(buf, v, nil)
	require.NoError(t, err)
	require.Positive(t, n)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf[:n], &decoded))
	assert.Equal(t, "Observation", decoded["resourceType"])

	small := make([]byte, 32)
	n, err = b.WriteObservation(small, v, nil)
	require.ErrorIs(t, err, ErrTruncated)
	assert.Zero(t, n)
	assert.Equal(t, make([]byte, 32), small)

	huge := &patient.Patient{ID: 1, Name: strings.Repeat("x", MaxResourceBytes)}
	_, err = b.WritePatient(make([]byte, 2*MaxResourceBytes), huge)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestAuditEvent(t *testing.T) {
	b := testBuilder()

	ev := b.AuditEvent(&audit.Entry{Event: audit.EventLoginFailed, Username: "nurse", Message: "bad pin", Timestamp: 60})
	assert.Equal(t, "4", ev.Outcome)
	assert.Equal(t, "LOGIN_FAILED", ev.Subtype[0].Code)
	assert.Equal(t, "1970-01-01T00:01:00Z", ev.Recorded)
	assert.Equal(t, "nurse", ev.Agent[0].Who.Display)
	assert.True(t, ev.Agent[0].Requestor)
	assert.Equal(t, "bed-3", ev.Source.Observer.Display)

	ev = b.AuditEvent(&audit.Entry{Event: audit.EventPatientAdmit})
	assert.Equal(t, "0", ev.Outcome)
	assert.Equal(t, "C", ev.Action)
	assert.Equal(t, "system", ev.Agent[0].Who.Display)
	assert.False(t, ev.Agent[0].Requestor)
}

func TestDetectedIssue(t *testing.T) {
	b := testBuilder()

	raised := b.DetectedIssue(&alarm.Edge{
		Param: alarm.ParamSpO2, From: alarm.StateInactive, To: alarm.StateActive,
		Severity: models.SeverityHigh, Message: "SpO2 LOW", Time: 120,
	}, &patient.Patient{ID: 2})
	assert.Equal(t, "preliminary", raised.Status)
	assert.Equal(t, "high", raised.Severity)
	assert.Equal(t, "spo2", raised.Code.Coding[0].Code)
	assert.Equal(t, "Patient/2", raised.Patient.Reference)
	assert.Equal(t, "SpO2 LOW", raised.Detail)

	cleared := b.DetectedIssue(&alarm.Edge{
		Param: alarm.ParamHR, From: alarm.StateActive, To: alarm.StateInactive,
		PrevSeverity: models.SeverityMedium, Severity: models.SeverityNone,
	}, nil)
	assert.Equal(t, "final", cleared.Status)
	assert.Equal(t, "moderate", cleared.Severity)
	assert.Nil(t, cleared.Patient)
}
