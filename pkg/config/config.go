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

// Package config loads the monitor's JSON configuration and applies
// environment overrides on top of it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	errInvalidDuration = errors.New("invalid duration")

	ErrInvalidConfig = errors.New("invalid configuration")
)

// LoadFile reads the JSON file at path into dst.
func LoadFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config '%s': %w", path, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse config '%s': %w", path, err)
	}

	return nil
}

// ValidateConfig runs cfg's Validate when it has one.
func ValidateConfig(cfg any) error {
	if v, ok := cfg.(Validator); ok {
		return v.Validate()
	}

	return nil
}

// LoadAndValidate is LoadFile followed by ValidateConfig.
func LoadAndValidate(path string, cfg any) error {
	if err := LoadFile(path, cfg); err != nil {
		return err
	}

	return ValidateConfig(cfg)
}

// Load builds a MonitorConfig from defaults, the optional JSON file at
// path, and the environment (including envFile when it exists), in that
// order, then validates the result.
func Load(path, envFile string) (*MonitorConfig, error) {
	cfg := Default()

	if path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg, envFile); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
