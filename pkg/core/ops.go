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
	"fmt"

	"go.uber.org/zap"

	"github.com/mfreeman451/vitalmon/pkg/alarm"
	"github.com/mfreeman451/vitalmon/pkg/audit"
	"github.com/mfreeman451/vitalmon/pkg/auth"
	"github.com/mfreeman451/vitalmon/pkg/ipc"
	"github.com/mfreeman451/vitalmon/pkg/patient"
	"github.com/mfreeman451/vitalmon/pkg/syncqueue"
)

// The operations below run on the owner thread; other goroutines reach
// them through Do.

// nibpStarter is implemented by sources that can trigger a cuff cycle.
type nibpStarter interface {
	StartNIBP(slot int) error
}

func (c *Core) handleControl(msg *ipc.Message) {
	switch msg.Type {
	case ipc.MsgAlarmAck:
		ack := msg.Ack

		var err error
		if ack.Param == ipc.AckAll {
			err = c.AcknowledgeAll(ack.Slot)
		} else {
			err = c.Acknowledge(ack.Slot, alarm.Param(ack.Param))
		}

		if err != nil {
			c.logger.Warn("alarm ack rejected", zap.Int("slot", ack.Slot), zap.Error(err))
		}
	case ipc.MsgNIBPStart:
		if err := c.StartNIBP(msg.NIBPStart.Slot); err != nil {
			c.logger.Warn("nibp start rejected", zap.Int("slot", msg.NIBPStart.Slot), zap.Error(err))
		}
	default:
		c.logger.Debug("ignoring control message", zap.Stringer("type", msg.Type))
	}
}

func (c *Core) actor() string {
	if u, ok := c.auth.CurrentUser(); ok {
		return u.Username
	}

	return ""
}

// authorize checks perm against the session and counts as activity.
func (c *Core) authorize(perm auth.Permission) error {
	if !c.auth.HasPermission(perm) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, perm)
	}

	c.auth.Touch()

	return nil
}

func (c *Core) record(ev audit.Event, format string, args ...any) {
	if err := c.recorder.Recordf(ev, c.actor(), format, args...); err != nil {
		c.metrics.StoreError("audit.record")
		c.logger.Warn("audit record failed", zap.Stringer("event", ev), zap.Error(err))
	}
}

func (c *Core) engine(slot int) (*alarm.Engine, error) {
	if !c.validSlot(slot) {
		return nil, ErrInvalidSlot
	}

	return c.engines[slot], nil
}

func (c *Core) Login(username, pin string) error {
	return c.auth.Login(username, pin)
}

func (c *Core) Logout() {
	c.auth.Logout()
}

// Session returns the current login session.
func (c *Core) Session() auth.Session {
	return c.auth.Session()
}

// Acknowledge acknowledges one active alarm on slot.
func (c *Core) Acknowledge(slot int, p alarm.Param) error {
	eng, err := c.engine(slot)
	if err != nil {
		return err
	}

	if err := c.authorize(auth.PermAckAlarms); err != nil {
		return err
	}

	edge, err := eng.Acknowledge(p, c.now().Unix())
	if err != nil {
		return err
	}

	if edge != nil {
		c.handleEdges(slot, []alarm.Edge{*edge})
		c.record(audit.EventAlarmAck, "slot %d %s", slot, p)
	}

	return nil
}

// AcknowledgeAll acknowledges every active alarm on slot.
func (c *Core) AcknowledgeAll(slot int) error {
	eng, err := c.engine(slot)
	if err != nil {
		return err
	}

	if err := c.authorize(auth.PermAckAlarms); err != nil {
		return err
	}

	edges := eng.AcknowledgeAll(c.now().Unix())
	if len(edges) > 0 {
		c.handleEdges(slot, edges)
		c.record(audit.EventAlarmAck, "slot %d all (%d)", slot, len(edges))
	}

	return nil
}

// Silence silences one alarm for duration seconds.
func (c *Core) Silence(slot int, p alarm.Param, duration int64) error {
	eng, err := c.engine(slot)
	if err != nil {
		return err
	}

	if err := c.authorize(auth.PermSilenceAlarms); err != nil {
		return err
	}

	edge, err := eng.Silence(p, duration, c.now().Unix())
	if err != nil {
		return err
	}

	if edge != nil {
		c.handleEdges(slot, []alarm.Edge{*edge})
	}

	c.record(audit.EventAlarmSilence, "slot %d %s for %ds", slot, p, duration)

	return nil
}

// PauseAudio pauses alarm audio on every slot for duration seconds.
func (c *Core) PauseAudio(duration int64) error {
	if err := c.authorize(auth.PermSilenceAlarms); err != nil {
		return err
	}

	now := c.now().Unix()

	for slot := 0; slot < c.cfg.Slots; slot++ {
		if err := c.engines[slot].PauseAudio(duration, now); err != nil {
			return err
		}
	}

	c.record(audit.EventAudioPaused, "paused %ds", duration)

	return nil
}

// SetLimits applies l to p on every slot and persists it.
func (c *Core) SetLimits(p alarm.Param, l alarm.Limits) error {
	if !p.Valid() {
		return alarm.ErrInvalidParam
	}

	if err := l.Validate(); err != nil {
		return err
	}

	if err := c.authorize(auth.PermChangeAlarmLimits); err != nil {
		return err
	}

	for i := range c.engines {
		if err := c.engines[i].SetLimits(p, l); err != nil {
			return err
		}
	}

	if err := c.engines[primarySlot].SaveLimits(c.settings, p); err != nil {
		return err
	}

	c.record(audit.EventAlarmLimitsChanged, "%s warn %d..%d crit %d..%d enabled=%t",
		p, l.WarnLow, l.WarnHigh, l.CritLow, l.CritHigh, l.Enabled)

	return nil
}

// Limits returns p's limits on slot.
func (c *Core) Limits(slot int, p alarm.Param) (alarm.Limits, error) {
	eng, err := c.engine(slot)
	if err != nil {
		return alarm.Limits{}, err
	}

	return eng.Limits(p)
}

// StartNIBP asks the source for an immediate cuff measurement.
func (c *Core) StartNIBP(slot int) error {
	if !c.validSlot(slot) {
		return ErrInvalidSlot
	}

	s, ok := c.provider.(nibpStarter)
	if !ok {
		return ErrUnsupported
	}

	return s.StartNIBP(slot)
}

// Admit stores p, binds it to slot and queues its FHIR Patient.
func (c *Core) Admit(p *patient.Patient, slot int) (int64, error) {
	if p == nil {
		return 0, patient.ErrInvalidArgument
	}

	if !c.validSlot(slot) {
		return 0, ErrInvalidSlot
	}

	if err := c.authorize(auth.PermManagePatients); err != nil {
		return 0, err
	}

	// The slot is bound only through Associate; a zero Slot would
	// otherwise evict the holder of slot 0.
	p.Slot = patient.NoSlot

	id, err := c.patients.Admit(p)
	if err != nil {
		return 0, err
	}

	if err := c.patients.Associate(id, slot); err != nil {
		return id, err
	}

	stored, err := c.patients.Get(id)
	if err != nil {
		return id, err
	}

	c.record(audit.EventPatientAdmit, "patient %d to slot %d", id, slot)
	c.enqueue(syncqueue.TypePatient, c.fhir.Patient(stored))

	return id, nil
}

// Discharge ends patient id's admission and frees its slot.
func (c *Core) Discharge(id int64) error {
	if err := c.authorize(auth.PermDischargePatient); err != nil {
		return err
	}

	p, err := c.patients.Discharge(id)
	if err != nil {
		return err
	}

	c.record(audit.EventPatientDischarge, "patient %d", id)
	c.enqueue(syncqueue.TypePatient, c.fhir.Patient(p))

	return nil
}

// Status assembles the diagnostics snapshot.
func (c *Core) Status() Status {
	st := Status{
		Device:    c.deviceName(),
		Source:    c.cfg.Source,
		Session:   c.auth.Session(),
		Slots:     make([]SlotStatus, 0, c.cfg.Slots),
		Services:  c.manager.Status(),
		Technical: c.technical,
	}

	for slot := 0; slot < c.cfg.Slots; slot++ {
		ss := SlotStatus{
			Slot:    slot,
			Patient: c.patients.Active(slot),
			Alarms:  c.engines[slot].Snapshot(),
		}

		if v, ok := c.provider.Current(slot); ok {
			ss.Vitals = &v
		}

		st.Slots = append(st.Slots, ss)
	}

	stats, err := c.queue.Stats()
	if err != nil {
		c.logger.Debug("sync stats unavailable", zap.Error(err))
	}

	st.Sync = stats

	return st
}
