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

package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mfreeman451/vitalmon/pkg/logger"
)

// Duration accepts either a Go duration string ("5s") or a number of
// nanoseconds in JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

const (
	SourceMock = "mock"
	SourceIPC  = "ipc"
)

// IPCConfig binds the four logical topics to endpoints.
type IPCConfig struct {
	Vitals    string `json:"vitals"`
	Waveforms string `json:"waveforms"`
	Alarms    string `json:"alarms"`
	Control   string `json:"control"`
}

// ExportConfig drives the sync worker and its MQTT transport. An empty
// broker exports to the log. A zero ObservationInterval disables the
// periodic Observation export.
type ExportConfig struct {
	Interval            Duration `json:"interval"`
	MaxBackoff          Duration `json:"max_backoff"`
	RatePerSec          float64  `json:"rate_per_sec"`
	ObservationInterval Duration `json:"observation_interval"`
	MQTTBroker          string   `json:"mqtt_broker"`
	MQTTClientID        string   `json:"mqtt_client_id"`
	MQTTUsername        string   `json:"mqtt_username"`
	MQTTPassword        string   `json:"mqtt_password"`
	TopicPrefix         string   `json:"mqtt_topic_prefix"`
}

// MonitorConfig is the whole process configuration.
type MonitorConfig struct {
	DBPath           string        `json:"db_path"`
	DeviceName       string        `json:"device_name"`
	Source           string        `json:"source"`
	Slots            int           `json:"slots"`
	VitalsInterval   Duration      `json:"vitals_interval"`
	WaveformInterval Duration      `json:"waveform_interval"`
	IPC              IPCConfig     `json:"ipc"`
	HealthAddr       string        `json:"health_addr"`
	DiagAddr         string        `json:"diag_addr"`
	DiagAllowOrigin  string        `json:"diag_allow_origin"`
	Export           ExportConfig  `json:"export"`
	Logging          logger.Config `json:"logging"`
}

var _ Validator = (*MonitorConfig)(nil)

func Default() *MonitorConfig {
	return &MonitorConfig{
		DBPath:           "vitalmon.db",
		DeviceName:       "vitalmon",
		Source:           SourceMock,
		Slots:            1,
		VitalsInterval:   Duration(time.Second),
		WaveformInterval: Duration(50 * time.Millisecond),
		IPC: IPCConfig{
			Vitals:    "tcp://127.0.0.1:5550",
			Waveforms: "tcp://127.0.0.1:5551",
			Alarms:    "tcp://127.0.0.1:5552",
			Control:   "tcp://127.0.0.1:5553",
		},
		HealthAddr: "127.0.0.1:50055",
		DiagAddr:   "127.0.0.1:8095",
		Export: ExportConfig{
			Interval:            Duration(5 * time.Second),
			MaxBackoff:          Duration(2 * time.Minute),
			RatePerSec:          10,
			ObservationInterval: Duration(time.Minute),
			MQTTClientID:        "vitalmon",
			TopicPrefix:         "vitalmon",
		},
		Logging: logger.DefaultConfig(),
	}
}

func (c *MonitorConfig) Validate() error {
	switch c.Source {
	case SourceMock, SourceIPC:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, c.Source)
	}

	if c.Slots < 1 || c.Slots > 2 {
		return fmt.Errorf("%w: slots must be 1 or 2, got %d", ErrInvalidConfig, c.Slots)
	}

	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path is required", ErrInvalidConfig)
	}

	if c.VitalsInterval <= 0 || c.WaveformInterval <= 0 || c.Export.Interval <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	}

	if c.IPC.Alarms == "" || c.IPC.Control == "" {
		return fmt.Errorf("%w: alarms and control endpoints are required", ErrInvalidConfig)
	}

	if c.Source == SourceIPC && (c.IPC.Vitals == "" || c.IPC.Waveforms == "") {
		return fmt.Errorf("%w: ipc source needs vitals and waveforms endpoints", ErrInvalidConfig)
	}

	return nil
}
