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
	"github.com/mfreeman451/vitalmon/pkg/alarm"
	"github.com/mfreeman451/vitalmon/pkg/auth"
	"github.com/mfreeman451/vitalmon/pkg/lifecycle"
	"github.com/mfreeman451/vitalmon/pkg/models"
	"github.com/mfreeman451/vitalmon/pkg/patient"
	"github.com/mfreeman451/vitalmon/pkg/syncqueue"
)

// Technical is the out-of-band device fault raised when persistence
// fails during ingestion. Alarm evaluation continues regardless.
type Technical struct {
	Fault  bool   `json:"fault"`
	Reason string `json:"reason,omitempty"`
	Since  int64  `json:"since,omitempty"`
}

// SlotStatus is one monitor slot as seen by the owner thread.
type SlotStatus struct {
	Slot    int              `json:"slot"`
	Vitals  *models.Vitals   `json:"vitals,omitempty"`
	Patient *patient.Patient `json:"patient,omitempty"`
	Alarms  alarm.Snapshot   `json:"alarms"`
}

// Status is the diagnostics snapshot.
type Status struct {
	Device    string             `json:"device"`
	Source    string             `json:"source"`
	Session   auth.Session       `json:"session"`
	Slots     []SlotStatus       `json:"slots"`
	Services  []lifecycle.Status `json:"services"`
	Sync      syncqueue.Stats    `json:"sync"`
	Technical Technical          `json:"technical"`
}
