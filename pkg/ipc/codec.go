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

package ipc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/mfreeman451/vitalmon/pkg/models"
)

// MsgType is the first header byte. Values are stable on the wire.
type MsgType uint8

const (
	MsgVitals       MsgType = 0x01
	MsgWaveform     MsgType = 0x02
	MsgAlarm        MsgType = 0x03
	MsgAlarmAck     MsgType = 0x04
	MsgSensorStatus MsgType = 0x05
	MsgNIBPStart    MsgType = 0x06
	MsgNIBPResult   MsgType = 0x07
)

func (t MsgType) String() string {
	switch t {
	case MsgVitals:
		return "VITALS"
	case MsgWaveform:
		return "WAVEFORM"
	case MsgAlarm:
		return "ALARM"
	case MsgAlarmAck:
		return "ALARM_ACK"
	case MsgSensorStatus:
		return "SENSOR_STATUS"
	case MsgNIBPStart:
		return "NIBP_START"
	case MsgNIBPResult:
		return "NIBP_RESULT"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

const (
	// Version is the only header version accepted.
	Version = 1

	// HeaderSize is type u8, payload_len u16, version u8.
	HeaderSize = 4

	// MaxMessageSize bounds a received message, header included.
	MaxMessageSize = 2048

	// AlarmMessageLen is the fixed message field of an ALARM payload.
	AlarmMessageLen = 64

	// AckAll in an ALARM_ACK param field acknowledges every parameter.
	AckAll uint8 = 0xFF

	// Invalid is the wire sentinel for "no signal".
	Invalid int16 = -1
)

var order = binary.LittleEndian

type vitalsWire struct {
	Timestamp uint64
	Slot      uint8
	HR        int16
	SpO2      int16
	RR        int16
	TempX10   int16
	Sys       int16
	Dia       int16
	Map       int16
	Fresh     uint8
	Quality   [models.QualityChannels]uint8
	LeadOff   uint8
}

type waveformWire struct {
	Timestamp  uint64
	Slot       uint8
	Type       uint8
	SampleRate uint16
	Count      uint16
	Samples    [models.MaxWaveSamples]int16
}

type alarmWire struct {
	Timestamp uint64
	Param     uint8
	Severity  uint8
	State     uint8
	Slot      uint8
	Message   [AlarmMessageLen]byte
}

type ackWire struct {
	Timestamp uint64
	Param     uint8
	Slot      uint8
}

type sensorWire struct {
	Timestamp uint64
	Sensor    uint8
	State     uint8
	Error     uint8
	Quality   uint8
}

type nibpStartWire struct {
	Timestamp uint64
	Slot      uint8
}

type nibpResultWire struct {
	Timestamp uint64
	Slot      uint8
	Sys       int16
	Dia       int16
	Map       int16
}

// payloadSizes are verified on receive.
var payloadSizes = map[MsgType]int{
	MsgVitals:       binary.Size(vitalsWire{}),
	MsgWaveform:     binary.Size(waveformWire{}),
	MsgAlarm:        binary.Size(alarmWire{}),
	MsgAlarmAck:     binary.Size(ackWire{}),
	MsgSensorStatus: binary.Size(sensorWire{}),
	MsgNIBPStart:    binary.Size(nibpStartWire{}),
	MsgNIBPResult:   binary.Size(nibpResultWire{}),
}

// PayloadSize returns the fixed payload length for t, or 0 if unknown.
func PayloadSize(t MsgType) int {
	return payloadSizes[t]
}

// Alarm is an alarm state-change edge.
type Alarm struct {
	TimestampMs int64
	Param       uint8
	Severity    models.Severity
	State       uint8
	Slot        int
	Message     string
}

// AlarmAck acknowledges one parameter, or all with AckAll.
type AlarmAck struct {
	TimestampMs int64
	Param       uint8
	Slot        int
}

// SensorStatus reports a sensor driver state.
type SensorStatus struct {
	TimestampMs int64
	Sensor      uint8
	State       uint8
	Error       uint8
	Quality     uint8
}

// NIBPStart requests a blood pressure measurement.
type NIBPStart struct {
	TimestampMs int64
	Slot        int
}

// NIBPResult carries a completed blood pressure measurement.
// Zero fields were invalid on the wire.
type NIBPResult struct {
	TimestampMs int64
	Slot        int
	Sys         int
	Dia         int
	Map         int
}

// Message is a decoded wire message. Exactly one payload field is set,
// matching Type.
type Message struct {
	Type    MsgType
	Version uint8

	Vitals     *models.Vitals
	Waveform   *models.Waveform
	Alarm      *Alarm
	Ack        *AlarmAck
	Sensor     *SensorStatus
	NIBPStart  *NIBPStart
	NIBPResult *NIBPResult
}

func toWire(v int) int16 {
	if v <= 0 {
		return Invalid
	}

	if v > math.MaxInt16 {
		return math.MaxInt16
	}

	return int16(v)
}

func fromWire(v int16) int {
	if v < 0 {
		return 0
	}

	return int(v)
}

func wireSlot(s int) uint8 {
	if s < 0 || s > math.MaxUint8 {
		return 0
	}

	return uint8(s)
}

func wireTime(ms int64) uint64 {
	if ms < 0 {
		return 0
	}

	return uint64(ms)
}

func encode(t MsgType, payload any) []byte {
	size := payloadSizes[t]
	buf := make([]byte, HeaderSize+size)

	buf[0] = byte(t)
	order.PutUint16(buf[1:3], uint16(size))
	buf[3] = Version

	// fixed-size wire structs always fit the buffer sized from them
	_, _ = binary.Encode(buf[HeaderSize:], order, payload)

	return buf
}

// EncodeVitals serialises a vitals sample. Zero values go out as -1.
func EncodeVitals(v *models.Vitals) []byte {
	w := vitalsWire{
		Timestamp: wireTime(v.TimestampMs),
		Slot:      wireSlot(v.Slot),
		HR:        toWire(v.HR),
		SpO2:      toWire(v.SpO2),
		RR:        toWire(v.RR),
		TempX10:   toWire(v.TempX10()),
		Sys:       toWire(v.NIBPSys),
		Dia:       toWire(v.NIBPDia),
		Map:       toWire(v.NIBPMap),
		Quality:   v.Quality,
		LeadOff:   v.LeadOff,
	}

	if v.NIBPFresh {
		w.Fresh = 1
	}

	return encode(MsgVitals, &w)
}

// EncodeWaveform serialises a waveform packet; Count is clamped to the cap.
func EncodeWaveform(wf *models.Waveform) []byte {
	w := waveformWire{
		Timestamp:  wireTime(wf.TimestampMs),
		Slot:       wireSlot(wf.Slot),
		Type:       uint8(wf.Type),
		SampleRate: uint16(max(0, min(wf.SampleRate, math.MaxUint16))),
		Count:      uint16(len(wf.Data())),
		Samples:    wf.Samples,
	}

	return encode(MsgWaveform, &w)
}

// EncodeAlarm serialises an alarm edge. Messages longer than the fixed
// field are truncated; the field is always NUL terminated.
func EncodeAlarm(a *Alarm) []byte {
	w := alarmWire{
		Timestamp: wireTime(a.TimestampMs),
		Param:     a.Param,
		Severity:  uint8(a.Severity),
		State:     a.State,
		Slot:      wireSlot(a.Slot),
	}
	copy(w.Message[:AlarmMessageLen-1], a.Message)

	return encode(MsgAlarm, &w)
}

func EncodeAlarmAck(a *AlarmAck) []byte {
	return encode(MsgAlarmAck, &ackWire{
		Timestamp: wireTime(a.TimestampMs),
		Param:     a.Param,
		Slot:      wireSlot(a.Slot),
	})
}

func EncodeSensorStatus(s *SensorStatus) []byte {
	return encode(MsgSensorStatus, &sensorWire{
		Timestamp: wireTime(s.TimestampMs),
		Sensor:    s.Sensor,
		State:     s.State,
		Error:     s.Error,
		Quality:   s.Quality,
	})
}

func EncodeNIBPStart(n *NIBPStart) []byte {
	return encode(MsgNIBPStart, &nibpStartWire{
		Timestamp: wireTime(n.TimestampMs),
		Slot:      wireSlot(n.Slot),
	})
}

func EncodeNIBPResult(n *NIBPResult) []byte {
	return encode(MsgNIBPResult, &nibpResultWire{
		Timestamp: wireTime(n.TimestampMs),
		Slot:      wireSlot(n.Slot),
		Sys:       toWire(n.Sys),
		Dia:       toWire(n.Dia),
		Map:       toWire(n.Map),
	})
}

// Decode parses one message, verifying the header and payload size.
func Decode(buf []byte) (*Message, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(buf))
	}

	if len(buf) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(buf))
	}

	t := MsgType(buf[0])
	plen := int(order.Uint16(buf[1:3]))
	msg := &Message{Type: t, Version: buf[3]}

	if msg.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, msg.Version)
	}

	want, ok := payloadSizes[t]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, uint8(t))
	}

	if plen != want || len(buf)-HeaderSize != want {
		return nil, fmt.Errorf("%w: %s header %d body %d want %d",
			ErrPayloadSize, t, plen, len(buf)-HeaderSize, want)
	}

	if err := decodePayload(msg, buf[HeaderSize:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecv, err)
	}

	return msg, nil
}

func decodePayload(msg *Message, payload []byte) error {
	r := bytes.NewReader(payload)

	switch msg.Type {
	case MsgVitals:
		var w vitalsWire
		if err := binary.Read(r, order, &w); err != nil {
			return err
		}

		msg.Vitals = &models.Vitals{
			TimestampMs: int64(w.Timestamp),
			Slot:        int(w.Slot),
			HR:          fromWire(w.HR),
			SpO2:        fromWire(w.SpO2),
			RR:          fromWire(w.RR),
			Temp:        float64(fromWire(w.TempX10)) / 10,
			NIBPSys:     fromWire(w.Sys),
			NIBPDia:     fromWire(w.Dia),
			NIBPMap:     fromWire(w.Map),
			NIBPFresh:   w.Fresh != 0,
			Quality:     w.Quality,
			LeadOff:     w.LeadOff,
		}
	case MsgWaveform:
		var w waveformWire
		if err := binary.Read(r, order, &w); err != nil {
			return err
		}

		msg.Waveform = &models.Waveform{
			Type:        models.WaveType(w.Type),
			SampleRate:  int(w.SampleRate),
			Count:       min(int(w.Count), models.MaxWaveSamples),
			Samples:     w.Samples,
			TimestampMs: int64(w.Timestamp),
			Slot:        int(w.Slot),
		}
	case MsgAlarm:
		var w alarmWire
		if err := binary.Read(r, order, &w); err != nil {
			return err
		}

		text := w.Message[:]
		if i := bytes.IndexByte(text, 0); i >= 0 {
			text = text[:i]
		}

		msg.Alarm = &Alarm{
			TimestampMs: int64(w.Timestamp),
			Param:       w.Param,
			Severity:    models.Severity(w.Severity),
			State:       w.State,
			Slot:        int(w.Slot),
			Message:     string(text),
		}
	case MsgAlarmAck:
		var w ackWire
		if err := binary.Read(r, order, &w); err != nil {
			return err
		}

		msg.Ack = &AlarmAck{TimestampMs: int64(w.Timestamp), Param: w.Param, Slot: int(w.Slot)}
	case MsgSensorStatus:
		var w sensorWire
		if err := binary.Read(r, order, &w); err != nil {
			return err
		}

		msg.Sensor = &SensorStatus{
			TimestampMs: int64(w.Timestamp),
			Sensor:      w.Sensor,
			State:       w.State,
			Error:       w.Error,
			Quality:     w.Quality,
		}
	case MsgNIBPStart:
		var w nibpStartWire
		if err := binary.Read(r, order, &w); err != nil {
			return err
		}

		msg.NIBPStart = &NIBPStart{TimestampMs: int64(w.Timestamp), Slot: int(w.Slot)}
	case MsgNIBPResult:
		var w nibpResultWire
		if err := binary.Read(r, order, &w); err != nil {
			return err
		}

		msg.NIBPResult = &NIBPResult{
			TimestampMs: int64(w.Timestamp),
			Slot:        int(w.Slot),
			Sys:         fromWire(w.Sys),
			Dia:         fromWire(w.Dia),
			Map:         fromWire(w.Map),
		}
	}

	return nil
}
