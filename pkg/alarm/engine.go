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

// Package alarm implements per-parameter threshold evaluation and the
// four-state alarm machine with escalation.
package alarm

import (
	"fmt"

	"github.com/mfreeman451/vitalmon/pkg/models"
)

// Engine holds thresholds and per-parameter alarm state. It is owned by a
// single goroutine and is not synchronised.
type Engine struct {
	limits [ParamCount]Limits
	params [ParamCount]Status

	highestActive models.Severity
	highestAny    models.Severity
	message       string
	messageParam  Param

	audioPaused     bool
	audioPauseUntil int64
}

// NewEngine returns an engine with default limits and every parameter
// INACTIVE.
func NewEngine() *Engine {
	e := &Engine{}
	e.Reset()

	return e
}

// Reset restores default limits and clears all alarm state.
func (e *Engine) Reset() {
	e.limits = DefaultLimits()
	e.params = [ParamCount]Status{}
	e.audioPaused = false
	e.audioPauseUntil = 0
	e.recompute()
}

// SetLimits replaces p's thresholds. The next Evaluate uses them.
func (e *Engine) SetLimits(p Param, l Limits) error {
	if !p.Valid() {
		return ErrInvalidParam
	}

	if err := l.Validate(); err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}

	e.limits[p] = l

	return nil
}

// Limits returns p's thresholds.
func (e *Engine) Limits(p Param) (Limits, error) {
	if !p.Valid() {
		return Limits{}, ErrInvalidParam
	}

	return e.limits[p], nil
}

// CheckThresholds classifies v against p's limits. Equality with a bound
// is not an alarm. Disabled parameters always yield SeverityNone.
func (e *Engine) CheckThresholds(p Param, v int) models.Severity {
	if !p.Valid() {
		return models.SeverityNone
	}

	l := e.limits[p]
	if !l.Enabled {
		return models.SeverityNone
	}

	switch {
	case v > l.CritHigh || v < l.CritLow:
		return models.SeverityHigh
	case v > l.WarnHigh || v < l.WarnLow:
		return models.SeverityMedium
	default:
		return models.SeverityNone
	}
}

func displayValue(p Param, v int) string {
	if p == ParamTemp {
		return fmt.Sprintf("%.1f", float64(v)/10)
	}

	return fmt.Sprintf("%d", v)
}

func (e *Engine) buildMessage(p Param, sev models.Severity, v int) string {
	l := e.limits[p]

	var high bool

	if sev == models.SeverityHigh {
		high = v > l.CritHigh
	} else {
		high = v > l.WarnHigh
	}

	var text string

	switch {
	case sev == models.SeverityHigh && high:
		text = "Very High"
	case sev == models.SeverityHigh:
		text = "Very Low"
	case high:
		text = "High"
	default:
		text = "Low"
	}

	return fmt.Sprintf("%s %s (%s)", p, text, displayValue(p, v))
}

// values extracts the evaluated parameters from a sample in Param order.
func values(v *models.Vitals) [ParamCount]int {
	var temp int
	if v.Temp != 0 {
		temp = v.TempX10()
	}

	return [ParamCount]int{v.HR, v.SpO2, v.RR, temp, v.NIBPSys, v.NIBPDia}
}

// Evaluate runs every parameter of v through the state machine in Param
// order, then recomputes the highest severities once. It returns the
// visible changes, in order.
func (e *Engine) Evaluate(v models.Vitals, now int64) []Edge {
	if e.audioPaused && now >= e.audioPauseUntil {
		e.audioPaused = false
		e.audioPauseUntil = 0
	}

	vals := values(&v)

	var edges []Edge

	for _, p := range AllParams {
		if edge, ok := e.evaluateParam(p, vals[p], now); ok {
			edges = append(edges, edge)
		}
	}

	e.recompute()

	return edges
}

func (e *Engine) evaluateParam(p Param, v int, now int64) (Edge, bool) {
	st := &e.params[p]
	from, prevSev := st.State, st.Severity

	edge := func() (Edge, bool) {
		return Edge{
			Param: p, From: from, To: st.State, PrevSeverity: prevSev,
			Severity: st.Severity, Message: st.Message, Time: now,
		}, true
	}

	if !e.limits[p].Enabled {
		if st.State == StateInactive {
			return Edge{}, false
		}

		*st = Status{}

		return edge()
	}

	// No signal leaves the state untouched.
	if v == 0 {
		return Edge{}, false
	}

	sev := e.CheckThresholds(p, v)

	switch st.State {
	case StateInactive:
		if sev == models.SeverityNone {
			return Edge{}, false
		}

		*st = Status{
			State:       StateActive,
			Severity:    sev,
			Message:     e.buildMessage(p, sev, v),
			TriggerTime: now,
		}

		return edge()

	case StateActive:
		if sev == models.SeverityNone {
			*st = Status{}
			return edge()
		}

		if sev != st.Severity {
			st.Severity = sev
			st.Message = e.buildMessage(p, sev, v)

			return edge()
		}

		st.Message = e.buildMessage(p, sev, v)

		return Edge{}, false

	case StateAcknowledged:
		if sev == models.SeverityNone {
			*st = Status{}
			return edge()
		}

		if sev > st.Severity {
			*st = Status{
				State:       StateActive,
				Severity:    sev,
				Message:     e.buildMessage(p, sev, v),
				TriggerTime: now,
			}

			return edge()
		}

		st.Severity = sev
		st.Message = e.buildMessage(p, sev, v)

		return Edge{}, false

	case StateSilenced:
		if sev == models.SeverityNone {
			*st = Status{}
			return edge()
		}

		if now >= st.SilenceUntil {
			*st = Status{
				State:       StateActive,
				Severity:    sev,
				Message:     e.buildMessage(p, sev, v),
				TriggerTime: now,
			}

			return edge()
		}

		st.Severity = sev
		st.Message = e.buildMessage(p, sev, v)

		return Edge{}, false
	}

	return Edge{}, false
}

// recompute refreshes the highest severities and the banner message. The
// message prefers the highest ACTIVE parameter, then any non-INACTIVE one.
func (e *Engine) recompute() {
	e.highestActive = models.SeverityNone
	e.highestAny = models.SeverityNone
	e.message = ""
	e.messageParam = -1

	activeParam, anyParam := Param(-1), Param(-1)

	for _, p := range AllParams {
		st := e.params[p]
		if st.State == StateInactive {
			continue
		}

		if st.Severity > e.highestAny {
			e.highestAny = st.Severity
			anyParam = p
		}

		if st.State == StateActive && st.Severity > e.highestActive {
			e.highestActive = st.Severity
			activeParam = p
		}
	}

	switch {
	case activeParam >= 0:
		e.messageParam = activeParam
	case anyParam >= 0:
		e.messageParam = anyParam
	}

	if e.messageParam >= 0 {
		e.message = e.params[e.messageParam].Message
	}
}

// Acknowledge moves p from ACTIVE to ACKNOWLEDGED, keeping its severity.
// It returns nil for any other state.
func (e *Engine) Acknowledge(p Param, now int64) (*Edge, error) {
	if !p.Valid() {
		return nil, ErrInvalidParam
	}

	st := &e.params[p]
	if st.State != StateActive {
		return nil, nil
	}

	from := st.State
	st.State = StateAcknowledged
	st.AckTime = now

	e.recompute()

	return &Edge{Param: p, From: from, To: st.State, PrevSeverity: st.Severity,
		Severity: st.Severity, Message: st.Message, Time: now}, nil
}

// AcknowledgeAll acknowledges every ACTIVE parameter.
func (e *Engine) AcknowledgeAll(now int64) []Edge {
	var edges []Edge

	for _, p := range AllParams {
		if edge, _ := e.Acknowledge(p, now); edge != nil {
			edges = append(edges, *edge)
		}
	}

	return edges
}

// Silence moves an ACTIVE or ACKNOWLEDGED parameter to SILENCED until
// now+duration seconds.
func (e *Engine) Silence(p Param, duration, now int64) (*Edge, error) {
	if !p.Valid() {
		return nil, ErrInvalidParam
	}

	if duration <= 0 {
		return nil, ErrInvalidDuration
	}

	st := &e.params[p]
	if st.State != StateActive && st.State != StateAcknowledged {
		return nil, nil
	}

	from := st.State
	st.State = StateSilenced
	st.SilenceUntil = now + duration

	e.recompute()

	return &Edge{Param: p, From: from, To: st.State, PrevSeverity: st.Severity,
		Severity: st.Severity, Message: st.Message, Time: now}, nil
}

// SilenceAll silences every ACTIVE or ACKNOWLEDGED parameter.
func (e *Engine) SilenceAll(duration, now int64) ([]Edge, error) {
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}

	var edges []Edge

	for _, p := range AllParams {
		if edge, _ := e.Silence(p, duration, now); edge != nil {
			edges = append(edges, *edge)
		}
	}

	return edges, nil
}

// PauseAudio suppresses audible alarms for duration seconds. Visual state
// is unchanged. The pause clears on the first Evaluate at or past expiry.
func (e *Engine) PauseAudio(duration, now int64) error {
	if duration <= 0 {
		return ErrInvalidDuration
	}

	e.audioPaused = true
	e.audioPauseUntil = now + duration

	return nil
}

// AudioPaused reports the global audio pause flag.
func (e *Engine) AudioPaused() bool {
	return e.audioPaused
}

// Status returns p's status.
func (e *Engine) Status(p Param) (Status, error) {
	if !p.Valid() {
		return Status{}, ErrInvalidParam
	}

	return e.params[p], nil
}

// HighestActive is the max severity over ACTIVE parameters.
func (e *Engine) HighestActive() models.Severity {
	return e.highestActive
}

// HighestAny is the max severity over non-INACTIVE parameters.
func (e *Engine) HighestAny() models.Severity {
	return e.highestAny
}

// Message is the banner text, empty when nothing is alarming.
func (e *Engine) Message() string {
	return e.message
}

// AudibleSeverity is the severity the audio layer should sound: the
// highest ACTIVE severity unless audio is paused.
func (e *Engine) AudibleSeverity() models.Severity {
	if e.audioPaused {
		return models.SeverityNone
	}

	return e.highestActive
}

// Snapshot copies the engine state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Params:          e.params,
		HighestActive:   e.highestActive,
		HighestAny:      e.highestAny,
		Message:         e.message,
		MessageParam:    e.messageParam,
		AudioPaused:     e.audioPaused,
		AudioPauseUntil: e.audioPauseUntil,
	}
}
