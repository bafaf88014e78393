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

package hal

import "github.com/mfreeman451/vitalmon/pkg/models"

// Base is the operation set every sensor driver provides.
type Base interface {
	Init() error
	Deinit()
	State() State
	Error() ErrorCode
	Ready() bool
}

// WaveformFunc receives driver waveform packets.
type WaveformFunc func(models.Waveform)

type SpO2 interface {
	Base
	Reading() (SpO2Reading, error)
	SetWaveformFunc(fn WaveformFunc)
}

type ECG interface {
	Base
	Reading() (ECGReading, error)
	SetWaveformFunc(fn WaveformFunc)
	SetLead(lead Lead) error
}

type NIBP interface {
	Base
	Reading() (NIBPReading, error)
	StartMeasurement() error
	AbortMeasurement() error
	Measuring() bool
	// SetAutoInterval enables periodic cycling; zero disables it.
	SetAutoInterval(minutes int) error
}

type Temp interface {
	Base
	Reading() (TempReading, error)
}
