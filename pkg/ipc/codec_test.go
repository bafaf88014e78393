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
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfreeman451/vitalmon/pkg/models"
)

func TestPayloadSizes(t *testing.T) {
	tests := []struct {
		t    MsgType
		size int
	}{
		{MsgVitals, 29},
		{MsgWaveform, 214},
		{MsgAlarm, 76},
		{MsgAlarmAck, 10},
		{MsgSensorStatus, 12},
		{MsgNIBPStart, 9},
		{MsgNIBPResult, 15},
	}

	for _, tt := range tests {
		t.Run(tt.t.String(), func(t *testing.T) {
			assert.Equal(t, tt.size, PayloadSize(tt.t))
		})
	}

	assert.Equal(t, 0, PayloadSize(MsgType(0x42)))
}

func TestHeaderLayout(t *testing.T) {
	buf := EncodeNIBPStart(&NIBPStart{TimestampMs: 0x0102030405060708, Slot: 1})
	require.Len(t, buf, HeaderSize+9)

	assert.Equal(t, byte(MsgNIBPStart), buf[0])
	assert.Equal(t, uint16(9), binary.LittleEndian.Uint16(buf[1:3]))
	assert.Equal(t, byte(Version), buf[3])
	assert.Equal(t, []byte{8, 7, 6, 5, 4, 3, 2, 1}, buf[4:12])
	assert.Equal(t, byte(1), buf[12])
}

func TestVitalsRoundTrip(t *testing.T) {
	in := models.Vitals{
		TimestampMs: 1_700_000_000_123,
		Slot:        1,
		HR:          72,
		SpO2:        97,
		RR:          16,
		Temp:        37.2,
		NIBPSys:     121,
		NIBPDia:     79,
		NIBPMap:     93,
		NIBPFresh:   true,
		Quality:     [4]uint8{100, 95, 90, 85},
		LeadOff:     models.LeadOffLA,
	}

	msg, err := Decode(EncodeVitals(&in))
	require.NoError(t, err)
	require.Equal(t, MsgVitals, msg.Type)
	require.NotNil(t, msg.Vitals)
	assert.Equal(t, in, *msg.Vitals)
}

func TestVitalsInvalidSentinel(t *testing.T) {
	in := models.Vitals{TimestampMs: 5, HR: 80}

	buf := EncodeVitals(&in)

	// SpO2 sits after ts(8), slot(1), hr(2)
	assert.Equal(t, int16(-1), int16(binary.LittleEndian.Uint16(buf[HeaderSize+11:])))

	msg, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, 80, msg.Vitals.HR)
	assert.Zero(t, msg.Vitals.SpO2)
	assert.Zero(t, msg.Vitals.Temp)
	assert.False(t, msg.Vitals.NIBPFresh)
}

func TestWaveformRoundTrip(t *testing.T) {
	in := models.Waveform{Type: models.WavePleth, SampleRate: 100, Count: 5, TimestampMs: 99, Slot: 0}
	for i := 0; i < 5; i++ {
		in.Samples[i] = int16(1000 + i)
	}

	msg, err := Decode(EncodeWaveform(&in))
	require.NoError(t, err)
	require.NotNil(t, msg.Waveform)
	assert.Equal(t, in, *msg.Waveform)
	assert.Equal(t, []int16{1000, 1001, 1002, 1003, 1004}, msg.Waveform.Data())
}

func TestAlarmMessageTruncated(t *testing.T) {
	long := strings.Repeat("x", 100)

	msg, err := Decode(EncodeAlarm(&Alarm{
		TimestampMs: 1,
		Param:       2,
		Severity:    models.SeverityHigh,
		State:       1,
		Message:     long,
	}))
	require.NoError(t, err)
	assert.Len(t, msg.Alarm.Message, AlarmMessageLen-1)
	assert.Equal(t, models.SeverityHigh, msg.Alarm.Severity)

	msg, err = Decode(EncodeAlarm(&Alarm{Message: "HR Very High (200)"}))
	require.NoError(t, err)
	assert.Equal(t, "HR Very High (200)", msg.Alarm.Message)
}

func TestControlMessages(t *testing.T) {
	msg, err := Decode(EncodeAlarmAck(&AlarmAck{TimestampMs: 7, Param: AckAll, Slot: 1}))
	require.NoError(t, err)
	assert.Equal(t, &AlarmAck{TimestampMs: 7, Param: AckAll, Slot: 1}, msg.Ack)

	msg, err = Decode(EncodeSensorStatus(&SensorStatus{TimestampMs: 3, Sensor: 2, State: 1, Error: 4, Quality: 80}))
	require.NoError(t, err)
	assert.Equal(t, uint8(80), msg.Sensor.Quality)

	msg, err = Decode(EncodeNIBPResult(&NIBPResult{TimestampMs: 9, Sys: 120, Dia: 0, Map: 93}))
	require.NoError(t, err)
	assert.Equal(t, 120, msg.NIBPResult.Sys)
	assert.Zero(t, msg.NIBPResult.Dia)
}

func TestDecodeRejects(t *testing.T) {
	good := EncodeAlarmAck(&AlarmAck{Param: 1})

	t.Run("short", func(t *testing.T) {
		_, err := Decode(good[:2])
		require.ErrorIs(t, err, ErrShortMessage)
		require.ErrorIs(t, err, ErrParam)
	})

	t.Run("version", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[3] = 2
		_, err := Decode(bad)
		require.ErrorIs(t, err, ErrVersion)
	})

	t.Run("unknown type", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[0] = 0x7f
		_, err := Decode(bad)
		require.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("length field", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		binary.LittleEndian.PutUint16(bad[1:3], 11)
		_, err := Decode(bad)
		require.ErrorIs(t, err, ErrPayloadSize)
	})

	t.Run("body size", func(t *testing.T) {
		_, err := Decode(append(append([]byte(nil), good...), 0))
		require.ErrorIs(t, err, ErrPayloadSize)
	})

	t.Run("too large", func(t *testing.T) {
		_, err := Decode(make([]byte, MaxMessageSize+1))
		require.ErrorIs(t, err, ErrPayloadTooLarge)
	})
}

func TestParseEndpoint(t *testing.T) {
	ep, err := ParseEndpoint("unix:///tmp/vitals.sock")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Network: "unix", Address: "/tmp/vitals.sock"}, ep)
	assert.Equal(t, "unix:///tmp/vitals.sock", ep.String())

	ep, err = ParseEndpoint("tcp://127.0.0.1:5555")
	require.NoError(t, err)
	assert.Equal(t, "tcp", ep.Network)

	for _, bad := range []string{"", "tcp://", "tcp://nohost", "udp://x:1", "/tmp/x"} {
		_, err := ParseEndpoint(bad)
		assert.ErrorIs(t, err, ErrBadEndpoint, bad)
	}
}
