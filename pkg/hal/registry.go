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

import (
	"errors"
	"fmt"

	"github.com/mfreeman451/vitalmon/pkg/models"
)

// Registry holds one driver per sensor type. Registrations are refused
// once InitAll has run, until DeinitAll.
type Registry struct {
	ops    [sensorCount]Base
	sealed bool

	// timestamp of the last NIBP result Sample reported as fresh
	lastNIBP int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

func matches(t SensorType, ops Base) bool {
	switch t {
	case SensorSpO2:
		_, ok := ops.(SpO2)
		return ok
	case SensorECG:
		_, ok := ops.(ECG)
		return ok
	case SensorNIBP:
		_, ok := ops.(NIBP)
		return ok
	case SensorTemp:
		_, ok := ops.(Temp)
		return ok
	default:
		return false
	}
}

// Register installs ops for t. ops must implement the typed interface
// for t.
func (r *Registry) Register(t SensorType, ops Base) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidType, t)
	}

	if ops == nil {
		return ErrNilOps
	}

	if r.sealed {
		return fmt.Errorf("%w: %s", ErrSealed, t)
	}

	if !matches(t, ops) {
		return fmt.Errorf("%w: %s got %T", ErrWrongOps, t, ops)
	}

	if r.ops[t] != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, t)
	}

	r.ops[t] = ops

	return nil
}

// Get returns the base operations for t.
func (r *Registry) Get(t SensorType) (Base, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidType, t)
	}

	if r.ops[t] == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, t)
	}

	return r.ops[t], nil
}

// Registered lists the types with a driver, in registry order.
func (r *Registry) Registered() []SensorType {
	var out []SensorType

	for _, t := range SensorTypes() {
		if r.ops[t] != nil {
			out = append(out, t)
		}
	}

	return out
}

func (r *Registry) Sealed() bool {
	return r.sealed
}

func (r *Registry) SpO2() (SpO2, error) {
	ops, err := r.Get(SensorSpO2)
	if err != nil {
		return nil, err
	}

	return ops.(SpO2), nil
}

func (r *Registry) ECG() (ECG, error) {
	ops, err := r.Get(SensorECG)
	if err != nil {
		return nil, err
	}

	return ops.(ECG), nil
}

func (r *Registry) NIBP() (NIBP, error) {
	ops, err := r.Get(SensorNIBP)
	if err != nil {
		return nil, err
	}

	return ops.(NIBP), nil
}

func (r *Registry) Temp() (Temp, error) {
	ops, err := r.Get(SensorTemp)
	if err != nil {
		return nil, err
	}

	return ops.(Temp), nil
}

// InitAll initialises every registered driver and seals the registry.
// A failing driver does not stop the others; all failures are joined.
func (r *Registry) InitAll() error {
	var errs []error

	for _, t := range r.Registered() {
		if err := r.ops[t].Init(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t, err))
		}
	}

	r.sealed = true

	return errors.Join(errs...)
}

// DeinitAll releases drivers in reverse order and unseals the registry.
func (r *Registry) DeinitAll() {
	types := r.Registered()

	for i := len(types) - 1; i >= 0; i-- {
		r.ops[types[i]].Deinit()
	}

	r.sealed = false
}

// Sample assembles a canonical vitals sample from whichever drivers
// report a valid reading. Missing or invalid readings stay zero. The NIBP
// triple is marked fresh the first time a new result is seen.
func (r *Registry) Sample(nowMs int64, slot int) models.Vitals {
	v := models.Vitals{TimestampMs: nowMs, Slot: slot}

	if d, err := r.ECG(); err == nil && d.Ready() {
		if rd, err := d.Reading(); err == nil && rd.Valid {
			v.HR = rd.HR
			v.RR = rd.RR
			v.LeadOff = rd.LeadOff
			v.Quality[models.QualityECG] = rd.Quality
			v.Quality[models.QualityResp] = rd.Quality
		}
	}

	if d, err := r.SpO2(); err == nil && d.Ready() {
		if rd, err := d.Reading(); err == nil && rd.Valid {
			v.SpO2 = rd.SpO2
			v.Quality[models.QualitySpO2] = rd.Quality

			if v.HR == 0 {
				v.HR = rd.PulseRate
			}
		}
	}

	if d, err := r.Temp(); err == nil && d.Ready() {
		if rd, err := d.Reading(); err == nil && rd.Valid {
			v.Temp = rd.Celsius
			v.Quality[models.QualityTemp] = rd.Quality
		}
	}

	if d, err := r.NIBP(); err == nil {
		if rd, err := d.Reading(); err == nil && rd.Valid {
			v.NIBPSys, v.NIBPDia, v.NIBPMap = rd.Sys, rd.Dia, rd.Map
			v.NIBPFresh = rd.TimestampMs != r.lastNIBP
			r.lastNIBP = rd.TimestampMs
		}
	}

	return v
}
