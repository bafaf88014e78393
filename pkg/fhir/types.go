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

// Package fhir builds the FHIR R4 resources the monitor exports: vital-signs
// Observations, Patients, AuditEvents, and DetectedIssues for alarms.
package fhir

import "errors"

// MaxResourceBytes bounds one serialized resource.
const MaxResourceBytes = 4096

// Code systems.
const (
	SystemLOINC        = "http://loinc.org"
	SystemUCUM         = "http://unitsofmeasure.org"
	SystemObsCategory  = "http://terminology.hl7.org/CodeSystem/observation-category"
	SystemIdentifierV2 = "http://terminology.hl7.org/CodeSystem/v2-0203"
	SystemAuditType    = "http://terminology.hl7.org/CodeSystem/audit-event-type"
	SystemAlarmParam   = "urn:vitalmon:alarm-param"
	SystemAuditEvent   = "urn:vitalmon:audit-event"
	SystemMRN          = "urn:vitalmon:mrn"

	ProfileVitalSigns = "http://hl7.org/fhir/StructureDefinition/vitalsigns"
)

var (
	ErrTruncated = errors.New("fhir: resource exceeds output buffer")
	ErrEncode    = errors.New("fhir: failed to encode resource")
)

type Meta struct {
	Profile []string `json:"profile,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Identifier struct {
	Use    string           `json:"use,omitempty"`
	Type   *CodeableConcept `json:"type,omitempty"`
	System string           `json:"system,omitempty"`
	Value  string           `json:"value,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
	System string  `json:"system,omitempty"`
	Code   string  `json:"code,omitempty"`
}

type Component struct {
	Code          CodeableConcept `json:"code"`
	ValueQuantity Quantity        `json:"valueQuantity"`
}

type Observation struct {
	ResourceType      string            `json:"resourceType"`
	ID                string            `json:"id"`
	Meta              *Meta             `json:"meta,omitempty"`
	Status            string            `json:"status"`
	Category          []CodeableConcept `json:"category"`
	Code              CodeableConcept   `json:"code"`
	Subject           *Reference        `json:"subject,omitempty"`
	EffectiveDateTime string            `json:"effectiveDateTime"`
	Device            *Reference        `json:"device,omitempty"`
	Component         []Component       `json:"component"`
}

type Patient struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Active       bool         `json:"active"`
	Name         []HumanName  `json:"name,omitempty"`
	Gender       string       `json:"gender,omitempty"`
	BirthDate    string       `json:"birthDate,omitempty"`
}

type AuditAgent struct {
	Who       Reference `json:"who"`
	Requestor bool      `json:"requestor"`
}

type AuditSource struct {
	Observer Reference `json:"observer"`
}

type AuditEvent struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id"`
	Type         Coding       `json:"type"`
	Subtype      []Coding     `json:"subtype,omitempty"`
	Action       string       `json:"action"`
	Recorded     string       `json:"recorded"`
	Outcome      string       `json:"outcome"`
	OutcomeDesc  string       `json:"outcomeDesc,omitempty"`
	Agent        []AuditAgent `json:"agent"`
	Source       AuditSource  `json:"source"`
}

type DetectedIssue struct {
	ResourceType       string          `json:"resourceType"`
	ID                 string          `json:"id"`
	Status             string          `json:"status"`
	Code               CodeableConcept `json:"code"`
	Severity           string          `json:"severity,omitempty"`
	Patient            *Reference      `json:"patient,omitempty"`
	IdentifiedDateTime string          `json:"identifiedDateTime"`
	Detail             string          `json:"detail,omitempty"`
}
