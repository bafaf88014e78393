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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "VITALMON_"

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(envPrefix + key); ok {
		return value
	}

	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return fallback, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, envPrefix, key, err)
	}

	return n, nil
}

func getEnvDuration(key string, fallback Duration) (Duration, error) {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return fallback, nil
	}

	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, envPrefix, key, err)
	}

	return Duration(d), nil
}

func getEnvBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return fallback
	}

	return strings.EqualFold(strings.TrimSpace(raw), "true") || raw == "1"
}

// ApplyEnv loads envFile into the process environment when it exists,
// then overrides cfg from VITALMON_* variables. Variables already set in
// the environment win over the file.
func ApplyEnv(cfg *MonitorConfig, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file '%s': %w", envFile, err)
		}
	}

	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.DeviceName = getEnv("DEVICE_NAME", cfg.DeviceName)
	cfg.Source = getEnv("SOURCE", cfg.Source)
	cfg.HealthAddr = getEnv("HEALTH_ADDR", cfg.HealthAddr)
	cfg.DiagAddr = getEnv("DIAG_ADDR", cfg.DiagAddr)
	cfg.DiagAllowOrigin = getEnv("DIAG_ALLOW_ORIGIN", cfg.DiagAllowOrigin)

	cfg.IPC.Vitals = getEnv("IPC_VITALS", cfg.IPC.Vitals)
	cfg.IPC.Waveforms = getEnv("IPC_WAVEFORMS", cfg.IPC.Waveforms)
	cfg.IPC.Alarms = getEnv("IPC_ALARMS", cfg.IPC.Alarms)
	cfg.IPC.Control = getEnv("IPC_CONTROL", cfg.IPC.Control)

	cfg.Export.MQTTBroker = getEnv("MQTT_BROKER", cfg.Export.MQTTBroker)
	cfg.Export.MQTTClientID = getEnv("MQTT_CLIENT_ID", cfg.Export.MQTTClientID)
	cfg.Export.MQTTUsername = getEnv("MQTT_USERNAME", cfg.Export.MQTTUsername)
	cfg.Export.MQTTPassword = getEnv("MQTT_PASSWORD", cfg.Export.MQTTPassword)
	cfg.Export.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", cfg.Export.TopicPrefix)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.File = getEnv("LOG_FILE", cfg.Logging.File)
	cfg.Logging.LogToConsole = getEnvBool("LOG_TO_CONSOLE", cfg.Logging.LogToConsole)

	var err error

	if cfg.Slots, err = getEnvInt("SLOTS", cfg.Slots); err != nil {
		return err
	}

	if cfg.VitalsInterval, err = getEnvDuration("VITALS_INTERVAL", cfg.VitalsInterval); err != nil {
		return err
	}

	if cfg.Export.Interval, err = getEnvDuration("EXPORT_INTERVAL", cfg.Export.Interval); err != nil {
		return err
	}

	return nil
}
