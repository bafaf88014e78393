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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mfreeman451/vitalmon/pkg/alarm"
	"github.com/mfreeman451/vitalmon/pkg/audit"
	"github.com/mfreeman451/vitalmon/pkg/models"
	"github.com/mfreeman451/vitalmon/pkg/patient"
)

// Builder creates resources stamped with a device name and fresh ids.
type Builder struct {
	device string
	newID  func() string
}

type Option func(*Builder)

// WithDevice names the monitor in Observation.device and AuditEvent.source.
func WithDevice(name string) Option {
	return func(b *Builder) {
		b.device = name
	}
}

// WithIDFunc replaces the uuid generator, mainly for tests.
func WithIDFunc(fn func() string) Option {
	return func(b *Builder) {
		b.newID = fn
	}
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		device: "vitalmon",
		newID:  uuid.NewString,
	}

	for _, o := range opts {
		o(b)
	}

	return b
}

type vitalCode struct {
	code, display, unit, ucum string
}

var (
	codeHR      = vitalCode{"8867-4", "Heart rate", "beats/minute", "/min"}
	codeSpO2    = vitalCode{"2708-6", "Oxygen saturation in Arterial blood", "%", "%"}
	codeRR      = vitalCode{"9279-1", "Respiratory rate", "breaths/minute", "/min"}
	codeTemp    = vitalCode{"8310-5", "Body temperature", "C", "Cel"}
	codeBPSys   = vitalCode{"8480-6", "Systolic blood pressure", "mmHg", "mm[Hg]"}
	codeBPDia   = vitalCode{"8462-4", "Diastolic blood pressure", "mmHg", "mm[Hg]"}
	vitalsPanel = Coding{System: SystemLOINC, Code: "85353-1", Display: "Vital signs panel"}
)

func component(c vitalCode, value float64) Component {
	return Component{
		Code: CodeableConcept{
			Coding: []Coding{{System: SystemLOINC, Code: c.code, Display: c.display}},
			Text:   c.display,
		},
		ValueQuantity: Quantity{Value: value, Unit: c.unit, System: SystemUCUM, Code: c.ucum},
	}
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func formatSec(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

// PatientRef references p by its local id; nil yields no reference.
func PatientRef(p *patient.Patient) *Reference {
	if p == nil {
		return nil
	}

	return &Reference{Reference: "Patient/" + strconv.FormatInt(p.ID, 10), Display: p.Name}
}

// Observation builds a vital-signs panel for v. Parameters without a
// signal are left out.
func (b *Builder) Observation(v *models.Vitals, subject *patient.Patient) *Observation {
	obs := &Observation{
		ResourceType: "Observation",
		ID:           b.newID(),
		Meta:         &Meta{Profile: []string{ProfileVitalSigns}},
		Status:       "final",
		Category: []CodeableConcept{{
			Coding: []Coding{{System: SystemObsCategory, Code: "vital-signs", Display: "Vital Signs"}},
		}},
		Code:              CodeableConcept{Coding: []Coding{vitalsPanel}},
		Subject:           PatientRef(subject),
		EffectiveDateTime: formatMs(v.TimestampMs),
		Device:            &Reference{Display: b.device},
		Component:         []Component{},
	}

	add := func(c vitalCode, value float64) {
		if value > 0 {
			obs.Component = append(obs.Component, component(c, value))
		}
	}

	add(codeHR, float64(v.HR))
	add(codeSpO2, float64(v.SpO2))
	add(codeRR, float64(v.RR))
	add(codeTemp, float64(v.TempX10())/10)
	add(codeBPSys, float64(v.NIBPSys))
	add(codeBPDia, float64(v.NIBPDia))

	return obs
}

func officialName(full string) HumanName {
	full = strings.TrimSpace(full)
	name := HumanName{Use: "official", Text: full}

	i := strings.LastIndexFunc(full, func(r rune) bool { return r == ' ' || r == '\t' })
	if i < 0 {
		name.Family = full
		return name
	}

	name.Family = full[i+1:]
	if given := strings.TrimSpace(full[:i]); given != "" {
		name.Given = []string{given}
	}

	return name
}

func fhirGender(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "m", "male":
		return "male"
	case "f", "female":
		return "female"
	case "o", "other":
		return "other"
	default:
		return "unknown"
	}
}

// Patient builds a Patient with an MR identifier when the MRN is set.
func (b *Builder) Patient(p *patient.Patient) *Patient {
	out := &Patient{
		ResourceType: "Patient",
		ID:           strconv.FormatInt(p.ID, 10),
		Active:       p.Active,
		Gender:       fhirGender(p.Gender),
		BirthDate:    p.DOB,
	}

	if p.MRN != "" {
		out.Identifier = []Identifier{{
			Use: "usual",
			Type: &CodeableConcept{
				Coding: []Coding{{System: SystemIdentifierV2, Code: "MR", Display: "Medical record number"}},
			},
			System: SystemMRN,
			Value:  p.MRN,
		}}
	}

	if strings.TrimSpace(p.Name) != "" {
		out.Name = []HumanName{officialName(p.Name)}
	}

	return out
}

// AuditEvent maps an audit log entry. Failed logins are recorded with a
// minor-failure outcome.
func (b *Builder) AuditEvent(e *audit.Entry) *AuditEvent {
	outcome := "0"
	if e.Event == audit.EventLoginFailed {
		outcome = "4"
	}

	action := "E"
	switch e.Event {
	case audit.EventPatientAdmit, audit.EventUserAdded:
		action = "C"
	case audit.EventPatientUpdate, audit.EventAlarmLimitsChanged, audit.EventSettingsChanged, audit.EventPINChanged:
		action = "U"
	case audit.EventPatientDischarge, audit.EventUserDeleted:
		action = "D"
	}

	who := e.Username
	if who == "" {
		who = "system"
	}

	return &AuditEvent{
		ResourceType: "AuditEvent",
		ID:           b.newID(),
		Type:         Coding{System: SystemAuditType, Code: "rest", Display: "RESTful Operation"},
		Subtype:      []Coding{{System: SystemAuditEvent, Code: e.Event.String()}},
		Action:       action,
		Recorded:     formatSec(e.Timestamp),
		Outcome:      outcome,
		OutcomeDesc:  e.Message,
		Agent:        []AuditAgent{{Who: Reference{Display: who}, Requestor: e.Username != ""}},
		Source:       AuditSource{Observer: Reference{Display: b.device}},
	}
}

var issueSeverity = map[models.Severity]string{
	models.SeverityHigh:   "high",
	models.SeverityMedium: "moderate",
	models.SeverityLow:    "low",
}

// DetectedIssue records an alarm transition. A newly active alarm is
// preliminary; any later transition is final.
func (b *Builder) DetectedIssue(e *alarm.Edge, subject *patient.Patient) *DetectedIssue {
	status := "final"
	if e.To == alarm.StateActive {
		status = "preliminary"
	}

	sev := e.Severity
	if sev == models.SeverityNone {
		sev = e.PrevSeverity
	}

	return &DetectedIssue{
		ResourceType: "DetectedIssue",
		ID:           b.newID(),
		Status:       status,
		Code: CodeableConcept{
			Coding: []Coding{{System: SystemAlarmParam, Code: e.Param.Key(), Display: e.Param.String()}},
			Text:   fmt.Sprintf("%s %s -> %s", e.Param, e.From, e.To),
		},
		Severity:           issueSeverity[sev],
		Patient:            PatientRef(subject),
		IdentifiedDateTime: formatSec(e.Time),
		Detail:             e.Message,
	}
}

// Marshal encodes r, refusing anything larger than MaxResourceBytes.
func Marshal(r any) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	if len(data) > MaxResourceBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(data))
	}

	return data, nil
}

// Write encodes r into buf and returns the length written. buf is left
// untouched and ErrTruncated is returned when it is too small.
func Write(buf []byte, r any) (int, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	if len(data) > len(buf) || len(data) > MaxResourceBytes {
		return 0, fmt.Errorf("%w: need %d have %d", ErrTruncated, len(data), min(len(buf), MaxResourceBytes))
	}

	return copy(buf, data), nil
}

// WriteObservation serializes an Observation for v into buf.
func (b *Builder) WriteObservation(buf []byte, v *models.Vitals, subject *patient.Patient) (int, error) {
	return Write(buf, b.Observation(v, subject))
}

// WritePatient serializes a Patient for p into buf.
func (b *Builder) WritePatient(buf []byte, p *patient.Patient) (int, error) {
	return Write(buf, b.Patient(p))
}
