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

// Package hal is the sensor hardware abstraction contract. Drivers live
// elsewhere and register their operation sets before InitAll.
package hal

import (
	"errors"
	"fmt"
)

// SensorType identifies a driver slot in the registry.
type SensorType int

const (
	SensorSpO2 SensorType = iota
	SensorECG
	SensorNIBP
	SensorTemp
	sensorCount
)

func (t SensorType) String() string {
	switch t {
	case SensorSpO2:
		return "SpO2"
	case SensorECG:
		return "ECG"
	case SensorNIBP:
		return "NIBP"
	case SensorTemp:
		return "Temp"
	default:
		return fmt.Sprintf("SensorType(%d)", int(t))
	}
}

func (t SensorType) Valid() bool {
	return t >= 0 && t < sensorCount
}

// SensorTypes lists every type in registry order.
func SensorTypes() []SensorType {
	return []SensorType{SensorSpO2, SensorECG, SensorNIBP, SensorTemp}
}

// State is a driver's reported state. Values match the SENSOR_STATUS
// wire byte.
type State uint8

const (
	StateUninit State = iota
	StateInit
	StateReady
	StateMeasuring
	StateError
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "UNINIT"
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StateMeasuring:
		return "MEASURING"
	case StateError:
		return "ERROR"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// ErrorCode is a driver-specific fault code; zero means none.
type ErrorCode uint8

const (
	ErrCodeNone ErrorCode = iota
	ErrCodeNoProbe
	ErrCodeLeadOff
	ErrCodeCuffLeak
	ErrCodeOverPressure
	ErrCodeMotion
	ErrCodeComm
)

// Lead selects the ECG lead.
type Lead uint8

const (
	LeadI Lead = iota
	LeadII
	LeadIII
)

type SpO2Reading struct {
	SpO2         int
	PulseRate    int
	PerfusionX10 int
	Quality      uint8
	Valid        bool
	TimestampMs  int64
}

type ECGReading struct {
	HR          int
	RR          int
	LeadOff     uint8
	Quality     uint8
	Valid       bool
	TimestampMs int64
}

type NIBPReading struct {
	Sys         int
	Dia         int
	Map         int
	Pulse       int
	Valid       bool
	TimestampMs int64
}

type TempReading struct {
	Celsius     float64
	Quality     uint8
	Valid       bool
	TimestampMs int64
}

var (
	ErrInvalidType       = errors.New("hal: invalid sensor type")
	ErrNilOps            = errors.New("hal: nil operations")
	ErrWrongOps          = errors.New("hal: operations do not match sensor type")
	ErrAlreadyRegistered = errors.New("hal: sensor already registered")
	ErrNotRegistered     = errors.New("hal: sensor not registered")
	ErrSealed            = errors.New("hal: registry sealed")
	ErrNotReady          = errors.New("hal: sensor not ready")
	ErrBusy              = errors.New("hal: measurement in progress")
)
