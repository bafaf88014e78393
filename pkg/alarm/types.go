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

package alarm

import (
	"errors"
	"math"

	"github.com/mfreeman451/vitalmon/pkg/models"
)

// Param indexes the evaluated parameters in evaluation order.
type Param int

const (
	ParamHR Param = iota
	ParamSpO2
	ParamRR
	ParamTemp
	ParamNIBPSys
	ParamNIBPDia

	ParamCount
)

var paramNames = [ParamCount]string{"HR", "SpO2", "RR", "Temp", "NIBP Sys", "NIBP Dia"}

var paramKeys = [ParamCount]string{"hr", "spo2", "rr", "temp", "nibp_sys", "nibp_dia"}

// AllParams is ParamHR through ParamNIBPDia, the fixed evaluation order.
var AllParams = [ParamCount]Param{ParamHR, ParamSpO2, ParamRR, ParamTemp, ParamNIBPSys, ParamNIBPDia}

// Valid reports whether p indexes a parameter.
func (p Param) Valid() bool {
	return p >= 0 && p < ParamCount
}

func (p Param) String() string {
	if !p.Valid() {
		return "unknown"
	}

	return paramNames[p]
}

// Key is the settings key fragment for p, e.g. "hr".
func (p Param) Key() string {
	if !p.Valid() {
		return ""
	}

	return paramKeys[p]
}

// State is a parameter's alarm state.
type State uint8

const (
	StateInactive State = iota
	StateActive
	StateAcknowledged
	StateSilenced
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "INACTIVE"
	case StateActive:
		return "ACTIVE"
	case StateAcknowledged:
		return "ACKNOWLEDGED"
	case StateSilenced:
		return "SILENCED"
	default:
		return "UNKNOWN"
	}
}

// Unbounded thresholds for parameters without a high or low limit.
const (
	NoHighLimit = math.MaxInt32
	NoLowLimit  = math.MinInt32
)

// Limits are one parameter's thresholds. Temp is in tenths of a degree.
type Limits struct {
	Enabled  bool `json:"enabled"`
	CritHigh int  `json:"crit_high"`
	CritLow  int  `json:"crit_low"`
	WarnHigh int  `json:"warn_high"`
	WarnLow  int  `json:"warn_low"`
}

// Validate checks CritLow <= WarnLow <= WarnHigh <= CritHigh.
func (l Limits) Validate() error {
	if l.CritLow > l.WarnLow || l.WarnLow > l.WarnHigh || l.WarnHigh > l.CritHigh {
		return ErrInvalidLimits
	}

	return nil
}

// DefaultLimits returns the factory thresholds.
func DefaultLimits() [ParamCount]Limits {
	return [ParamCount]Limits{
		ParamHR:      {Enabled: true, CritHigh: 150, CritLow: 40, WarnHigh: 120, WarnLow: 50},
		ParamSpO2:    {Enabled: true, CritHigh: NoHighLimit, CritLow: 85, WarnHigh: NoHighLimit, WarnLow: 90},
		ParamRR:      {Enabled: true, CritHigh: 30, CritLow: 8, WarnHigh: 24, WarnLow: 10},
		ParamTemp:    {Enabled: true, CritHigh: 390, CritLow: 350, WarnHigh: 380, WarnLow: 360},
		ParamNIBPSys: {Enabled: true, CritHigh: 180, CritLow: 80, WarnHigh: 140, WarnLow: 90},
		ParamNIBPDia: {Enabled: true, CritHigh: 120, CritLow: 40, WarnHigh: 90, WarnLow: 50},
	}
}

// Status is one parameter's alarm status. INACTIVE implies SeverityNone.
type Status struct {
	State        State           `json:"state"`
	Severity     models.Severity `json:"severity"`
	Message      string          `json:"message"`
	TriggerTime  int64           `json:"trigger_time"`
	AckTime      int64           `json:"ack_time"`
	SilenceUntil int64           `json:"silence_until"`
}

// Snapshot is a copy of the engine state.
type Snapshot struct {
	Params          [ParamCount]Status `json:"params"`
	HighestActive   models.Severity    `json:"highest_active"`
	HighestAny      models.Severity    `json:"highest_any"`
	Message         string             `json:"message"`
	MessageParam    Param              `json:"message_param"`
	AudioPaused     bool               `json:"audio_paused"`
	AudioPauseUntil int64              `json:"audio_pause_until"`
}

// Edge describes a visible change produced by an engine operation.
type Edge struct {
	Param        Param           `json:"param"`
	From         State           `json:"from"`
	To           State           `json:"to"`
	PrevSeverity models.Severity `json:"prev_severity"`
	Severity     models.Severity `json:"severity"`
	Message      string          `json:"message"`
	Time         int64           `json:"time"`
}

var (
	ErrInvalidParam    = errors.New("invalid alarm parameter")
	ErrInvalidLimits   = errors.New("alarm limits out of order")
	ErrInvalidDuration = errors.New("duration must be positive")
)
