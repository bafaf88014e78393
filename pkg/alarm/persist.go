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

	"github.com/mfreeman451/vitalmon/pkg/settings"
)

// SettingsReader is the subset of the settings store used to restore limits.
type SettingsReader interface {
	GetBool(key string, def bool) bool
	GetInt(key string, def int) int
}

// SettingsWriter is the subset of the settings store used to persist limits.
type SettingsWriter interface {
	SetBool(key string, v bool) error
	SetInt(key string, v int) error
}

// LoadLimits overlays stored limits on the engine's current ones. Stored
// sets that fail validation are skipped and reported.
func (e *Engine) LoadLimits(r SettingsReader) error {
	var errs []error

	for _, p := range AllParams {
		cur := e.limits[p]
		k := p.Key()

		l := Limits{
			Enabled:  r.GetBool(settings.AlarmKey(k, "enabled"), cur.Enabled),
			CritHigh: r.GetInt(settings.AlarmKey(k, "crit_high"), cur.CritHigh),
			CritLow:  r.GetInt(settings.AlarmKey(k, "crit_low"), cur.CritLow),
			WarnHigh: r.GetInt(settings.AlarmKey(k, "warn_high"), cur.WarnHigh),
			WarnLow:  r.GetInt(settings.AlarmKey(k, "warn_low"), cur.WarnLow),
		}

		if err := e.SetLimits(p, l); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// SaveLimits writes p's limits to w.
func (e *Engine) SaveLimits(w SettingsWriter, p Param) error {
	if !p.Valid() {
		return ErrInvalidParam
	}

	l := e.limits[p]
	k := p.Key()

	return errors.Join(
		w.SetBool(settings.AlarmKey(k, "enabled"), l.Enabled),
		w.SetInt(settings.AlarmKey(k, "crit_high"), l.CritHigh),
		w.SetInt(settings.AlarmKey(k, "crit_low"), l.CritLow),
		w.SetInt(settings.AlarmKey(k, "warn_high"), l.WarnHigh),
		w.SetInt(settings.AlarmKey(k, "warn_low"), l.WarnLow),
	)
}
