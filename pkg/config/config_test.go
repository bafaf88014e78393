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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestDurationJSON(t *testing.T) {
	var v struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"a":"1500ms","b":2000000000}`), &v))
	assert.Equal(t, 1500*time.Millisecond, v.A.Std())
	assert.Equal(t, 2*time.Second, v.B.Std())

	out, err := json.Marshal(v.A)
	require.NoError(t, err)
	assert.JSONEq(t, `"1.5s"`, string(out))

	require.ErrorIs(t, json.Unmarshal([]byte(`{"a":"soon"}`), &v), errInvalidDuration)
	require.ErrorIs(t, json.Unmarshal([]byte(`{"a":true}`), &v), errInvalidDuration)
}

func TestLoadFileOverDefaults(t *testing.T) {
	path := writeFile(t, "vitalmon.json", `{
		"db_path": "/var/lib/vitalmon/monitor.db",
		"slots": 2,
		"vitals_interval": "2s",
		"export": {"mqtt_broker": "tcp://station:1883"}
	}`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/vitalmon/monitor.db", cfg.DBPath)
	assert.Equal(t, 2, cfg.Slots)
	assert.Equal(t, 2*time.Second, cfg.VitalsInterval.Std())
	assert.Equal(t, "tcp://station:1883", cfg.Export.MQTTBroker)
	assert.Equal(t, SourceMock, cfg.Source, "defaults survive")
	assert.Equal(t, 5*time.Second, cfg.Export.Interval.Std())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VITALMON_SOURCE", "ipc")
	t.Setenv("VITALMON_SLOTS", "2")
	t.Setenv("VITALMON_LOG_TO_CONSOLE", "true")

	envFile := writeFile(t, ".env", "VITALMON_DB_PATH=/tmp/from-env.db\nVITALMON_SOURCE=mock\n")

	t.Cleanup(func() { os.Unsetenv("VITALMON_DB_PATH") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)

	assert.Equal(t, SourceIPC, cfg.Source, "process env wins over the file")
	assert.Equal(t, "/tmp/from-env.db", cfg.DBPath)
	assert.Equal(t, 2, cfg.Slots)
	assert.True(t, cfg.Logging.LogToConsole)
}

func TestEnvBadNumber(t *testing.T) {
	t.Setenv("VITALMON_SLOTS", "two")

	_, err := Load("", "")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMissingEnvFileIgnored(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MonitorConfig)
	}{
		{"unknown source", func(c *MonitorConfig) { c.Source = "serial" }},
		{"zero slots", func(c *MonitorConfig) { c.Slots = 0 }},
		{"three slots", func(c *MonitorConfig) { c.Slots = 3 }},
		{"no db", func(c *MonitorConfig) { c.DBPath = "" }},
		{"zero interval", func(c *MonitorConfig) { c.VitalsInterval = 0 }},
		{"ipc without vitals", func(c *MonitorConfig) { c.Source = SourceIPC; c.IPC.Vitals = "" }},
		{"no control", func(c *MonitorConfig) { c.IPC.Control = "" }},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadAndValidate(t *testing.T) {
	cfg := Default()
	require.Error(t, LoadAndValidate(filepath.Join(t.TempDir(), "missing.json"), cfg))

	path := writeFile(t, "bad.json", `{"slots": 9}`)
	require.ErrorIs(t, LoadAndValidate(path, cfg), ErrInvalidConfig)

	path = writeFile(t, "broken.json", `{`)
	require.Error(t, LoadAndValidate(path, Default()))
}
