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

// Package models holds the canonical data structures shared by the monitor core.
package models

import "math"

const (
	// SlotCount is the number of patient monitor slots.
	SlotCount = 2

	// MaxWaveSamples caps the samples carried by one waveform packet.
	MaxWaveSamples = 100
)

// Signal quality channel indices.
const (
	QualityECG = iota
	QualitySpO2
	QualityResp
	QualityTemp
	QualityChannels
)

// ECG lead-off bits.
const (
	LeadOffRA uint8 = 1 << iota
	LeadOffLA
	LeadOffLL
	LeadOffV
)

// Vitals is one canonical sample. A zero value in any continuous
// parameter means no signal and is never evaluated or stored.
type Vitals struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Slot        int     `json:"slot"`
	HR          int     `json:"hr"`
	SpO2        int     `json:"spo2"`
	RR          int     `json:"rr"`
	Temp        float64 `json:"temp"`
	NIBPSys     int     `json:"nibp_sys"`
	NIBPDia     int     `json:"nibp_dia"`
	NIBPMap     int     `json:"nibp_map"`
	NIBPFresh   bool    `json:"nibp_fresh"`

	Quality [QualityChannels]uint8 `json:"quality"`
	LeadOff uint8                  `json:"lead_off"`
}

// TempX10 returns the temperature as a rounded tenth-degree integer.
func (v *Vitals) TempX10() int {
	return TempToX10(v.Temp)
}

// TempToX10 converts degrees Celsius to the persisted x10 form.
func TempToX10(t float64) int {
	return int(math.Round(t * 10))
}

// HasNIBP reports whether a blood pressure triple is present.
func (v *Vitals) HasNIBP() bool {
	return v.NIBPSys > 0 && v.NIBPDia > 0
}

// MeanArterial computes MAP from systolic and diastolic pressure.
func MeanArterial(sys, dia int) int {
	return (sys + 2*dia) / 3
}

// ValidSlot reports whether s addresses a monitor slot.
func ValidSlot(s int) bool {
	return s >= 0 && s < SlotCount
}

// WaveType identifies a waveform channel.
type WaveType uint8

const (
	WaveECG WaveType = iota
	WavePleth
	WaveResp
)

func (w WaveType) String() string {
	switch w {
	case WaveECG:
		return "ECG"
	case WavePleth:
		return "PLETH"
	case WaveResp:
		return "RESP"
	default:
		return "UNKNOWN"
	}
}

// Waveform is a short run of samples for one channel. Only the first
// Count entries of Samples are meaningful.
type Waveform struct {
	Type        WaveType              `json:"type"`
	SampleRate  int                   `json:"sample_rate"`
	Count       int                   `json:"count"`
	Samples     [MaxWaveSamples]int16 `json:"samples"`
	TimestampMs int64                 `json:"timestamp_ms"`
	Slot        int                   `json:"slot"`
}

// Data returns the populated part of Samples.
func (w *Waveform) Data() []int16 {
	n := w.Count
	if n < 0 {
		n = 0
	}

	if n > MaxWaveSamples {
		n = MaxWaveSamples
	}

	return w.Samples[:n]
}
