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

package audit

import "errors"

// Event is the closed set of audited actions.
type Event int

const (
	EventLogin Event = iota
	EventLogout
	EventLoginFailed
	EventSessionTimeout
	EventAlarmAck
	EventAlarmSilence
	EventAlarmLimitsChanged
	EventAudioPaused
	EventPatientAdmit
	EventPatientDischarge
	EventPatientUpdate
	EventSettingsChanged
	EventUserAdded
	EventUserDeleted
	EventPINChanged

	eventCount
)

var eventNames = [eventCount]string{
	EventLogin:              "LOGIN",
	EventLogout:             "LOGOUT",
	EventLoginFailed:        "LOGIN_FAILED",
	EventSessionTimeout:     "SESSION_TIMEOUT",
	EventAlarmAck:           "ALARM_ACK",
	EventAlarmSilence:       "ALARM_SILENCE",
	EventAlarmLimitsChanged: "ALARM_LIMITS_CHANGED",
	EventAudioPaused:        "AUDIO_PAUSED",
	EventPatientAdmit:       "PATIENT_ADMIT",
	EventPatientDischarge:   "PATIENT_DISCHARGE",
	EventPatientUpdate:      "PATIENT_UPDATE",
	EventSettingsChanged:    "SETTINGS_CHANGED",
	EventUserAdded:          "USER_ADDED",
	EventUserDeleted:        "USER_DELETED",
	EventPINChanged:         "PIN_CHANGED",
}

func (e Event) String() string {
	if !e.Valid() {
		return "UNKNOWN"
	}

	return eventNames[e]
}

// Valid reports whether e is a member of the event set.
func (e Event) Valid() bool {
	return e >= 0 && e < eventCount
}

// Events returns every known event in declaration order.
func Events() []Event {
	out := make([]Event, 0, eventCount)
	for e := Event(0); e < eventCount; e++ {
		out = append(out, e)
	}

	return out
}

const (
	// MaxMessageLen bounds the stored message in bytes.
	MaxMessageLen = 128

	// MaxResults caps every query.
	MaxResults = 100

	// DefaultRetention is used by PurgeOld(0), in seconds (30 days).
	DefaultRetention int64 = 30 * 24 * 3600

	systemUser = "system"
)

// Entry is one audit row.
type Entry struct {
	ID        int64  `json:"id"`
	Event     Event  `json:"event"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

var (
	ErrInvalidEvent    = errors.New("invalid audit event")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrFailedToRecord  = errors.New("failed to record audit entry")
	ErrFailedToQuery   = errors.New("failed to query audit log")
	ErrFailedToPurge   = errors.New("failed to purge audit log")
	ErrFailedToExport  = errors.New("failed to export audit log")
)
