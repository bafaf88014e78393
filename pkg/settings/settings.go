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

// Package settings implements the typed key/value settings store.
package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/mfreeman451/vitalmon/pkg/store"
	"go.uber.org/zap"
)

// Type tags the declared type of a stored value.
type Type int

const (
	TypeInt Type = iota
	TypeFloat
	TypeBool
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeBool:
		return "BOOL"
	case TypeString:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrInvalidKey  = errors.New("invalid settings key")
	ErrFailedToSet = errors.New("failed to store setting")
	ErrFailedToGet = errors.New("failed to read setting")
)

// Well-known keys.
const (
	KeyBrightness     = "display.brightness"
	KeyAutoDim        = "display.auto_dim"
	KeyLockTimeout    = "display.lock_timeout_s"
	KeyWaveformSpeed  = "waveform.speed"
	KeyAlarmVolume    = "alarm.volume"
	KeyKeyClick       = "audio.key_click"
	KeyAlarmMute      = "alarm.mute"
	KeyWiFiEnabled    = "wifi.enabled"
	KeyDeviceName     = "device.name"
	KeySessionTimeout = "session.timeout_s"
	KeyNIBPInterval   = "nibp.interval_s"
)

type defaultEntry struct {
	key   string
	value string
	typ   Type
}

var defaults = []defaultEntry{
	{KeyBrightness, "70", TypeInt},
	{KeyAutoDim, "1", TypeBool},
	{KeyLockTimeout, "120", TypeInt},
	{KeyWaveformSpeed, "25", TypeInt},
	{KeyAlarmVolume, "80", TypeInt},
	{KeyKeyClick, "1", TypeBool},
	{KeyAlarmMute, "0", TypeBool},
	{KeyWiFiEnabled, "0", TypeBool},
	{KeyDeviceName, "VitalMon-01", TypeString},
	{KeySessionTimeout, "300", TypeInt},
	{KeyNIBPInterval, "60", TypeInt},
}

// Store reads and writes typed settings.
type Store struct {
	db     *store.DB
	logger *zap.Logger
}

// New returns a settings store backed by db. Defaults are not seeded until
// LoadDefaults is called.
func New(db *store.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{db: db, logger: logger.With(zap.String("component", "settings"))}
}

func (s *Store) raw(key string) (string, bool) {
	if key == "" || s.db.Ready() != nil {
		return "", false
	}

	var v string

	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}

	if err != nil {
		s.logger.Warn("setting read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}

	return v, true
}

func (s *Store) put(key, value string, typ Type) error {
	if key == "" {
		return ErrInvalidKey
	}

	if err := s.db.Ready(); err != nil {
		return err
	}

	_, err := s.db.Exec(`INSERT OR REPLACE INTO settings (key, value, type) VALUES (?, ?, ?)`, key, value, int(typ))
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrFailedToSet, key, err)
	}

	return nil
}

// GetInt returns the stored integer for key, or def.
func (s *Store) GetInt(key string, def int) int {
	v, ok := s.raw(key)
	if !ok {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}

	return n
}

// GetFloat returns the stored float for key, or def.
func (s *Store) GetFloat(key string, def float64) float64 {
	v, ok := s.raw(key)
	if !ok {
		return def
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}

	return f
}

// GetBool returns the stored bool for key, or def.
func (s *Store) GetBool(key string, def bool) bool {
	v, ok := s.raw(key)
	if !ok {
		return def
	}

	switch v {
	case "1", "true":
		return true
	case "0", "false":
		return false
	default:
		return def
	}
}

// GetString returns the stored string for key, or def.
func (s *Store) GetString(key, def string) string {
	v, ok := s.raw(key)
	if !ok {
		return def
	}

	return v
}

func (s *Store) SetInt(key string, v int) error {
	return s.put(key, strconv.Itoa(v), TypeInt)
}

func (s *Store) SetFloat(key string, v float64) error {
	return s.put(key, strconv.FormatFloat(v, 'g', -1, 64), TypeFloat)
}

func (s *Store) SetBool(key string, v bool) error {
	if v {
		return s.put(key, "1", TypeBool)
	}

	return s.put(key, "0", TypeBool)
}

func (s *Store) SetString(key, v string) error {
	return s.put(key, v, TypeString)
}

// Exists reports whether key is stored.
func (s *Store) Exists(key string) bool {
	_, ok := s.raw(key)

	return ok
}

// TypeOf returns the declared type of key.
func (s *Store) TypeOf(key string) (Type, bool) {
	if key == "" || s.db.Ready() != nil {
		return 0, false
	}

	var t int
	if err := s.db.QueryRow(`SELECT type FROM settings WHERE key = ?`, key).Scan(&t); err != nil {
		return 0, false
	}

	return Type(t), true
}

// Keys lists the stored keys in lexical order.
func (s *Store) Keys() ([]string, error) {
	if err := s.db.Ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT key FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToGet, err)
	}
	defer s.db.CloseRows(rows)

	var keys []string

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFailedToGet, err)
		}

		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// LoadDefaults seeds the default table without overwriting existing keys.
func (s *Store) LoadDefaults() error {
	if err := s.db.Ready(); err != nil {
		return err
	}

	return s.db.WithTx(func(tx *sql.Tx) error {
		for _, d := range defaults {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO settings (key, value, type) VALUES (?, ?, ?)`,
				d.key, d.value, int(d.typ)); err != nil {
				return fmt.Errorf("%w %s: %w", ErrFailedToSet, d.key, err)
			}
		}

		return nil
	})
}

// ResetToDefaults clears every setting and re-seeds the defaults.
func (s *Store) ResetToDefaults() error {
	if err := s.db.Ready(); err != nil {
		return err
	}

	if _, err := s.db.Exec(`DELETE FROM settings`); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToSet, err)
	}

	s.logger.Info("settings reset to defaults")

	return s.LoadDefaults()
}

// AlarmKey builds the key holding one alarm limit field, for example
// alarm.hr.crit_high.
func AlarmKey(param, field string) string {
	return "alarm." + param + "." + field
}
