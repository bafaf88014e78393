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

package settings

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mfreeman451/vitalmon/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return New(db, nil)
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetInt("a.int", -42))
	require.NoError(t, s.SetFloat("a.float", 3.25))
	require.NoError(t, s.SetBool("a.bool", true))
	require.NoError(t, s.SetString("a.str", "hello world"))

	assert.Equal(t, -42, s.GetInt("a.int", 0))
	assert.InDelta(t, 3.25, s.GetFloat("a.float", 0), 1e-9)
	assert.True(t, s.GetBool("a.bool", false))
	assert.Equal(t, "hello world", s.GetString("a.str", ""))

	typ, ok := s.TypeOf("a.float")
	require.True(t, ok)
	assert.Equal(t, TypeFloat, typ)

	require.NoError(t, s.SetBool("a.bool", false))
	assert.False(t, s.GetBool("a.bool", true))
}

func TestGetReturnsDefault(t *testing.T) {
	s := newTestStore(t)

	assert.Equal(t, 7, s.GetInt("missing", 7))
	assert.InDelta(t, 1.5, s.GetFloat("missing", 1.5), 1e-9)
	assert.True(t, s.GetBool("missing", true))
	assert.Equal(t, "def", s.GetString("missing", "def"))
	assert.False(t, s.Exists("missing"))

	require.NoError(t, s.SetString("name", "not-a-number"))
	assert.Equal(t, 5, s.GetInt("name", 5))
}

func TestSetRejectsEmptyKey(t *testing.T) {
	s := newTestStore(t)

	assert.ErrorIs(t, s.SetInt("", 1), ErrInvalidKey)
	assert.Equal(t, 9, s.GetInt("", 9))
}

func TestLoadDefaults(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.LoadDefaults())

	assert.Equal(t, 70, s.GetInt(KeyBrightness, 0))
	assert.True(t, s.GetBool(KeyAutoDim, false))
	assert.Equal(t, 120, s.GetInt(KeyLockTimeout, 0))
	assert.Equal(t, 25, s.GetInt(KeyWaveformSpeed, 0))
	assert.Equal(t, 80, s.GetInt(KeyAlarmVolume, 0))
	assert.True(t, s.GetBool(KeyKeyClick, false))
	assert.False(t, s.GetBool(KeyAlarmMute, true))
	assert.False(t, s.GetBool(KeyWiFiEnabled, true))
	assert.Equal(t, "VitalMon-01", s.GetString(KeyDeviceName, ""))
	assert.Equal(t, 300, s.GetInt(KeySessionTimeout, 0))
	assert.Equal(t, 60, s.GetInt(KeyNIBPInterval, 0))
}

func TestLoadDefaultsIdempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.LoadDefaults())
	first, err := s.Keys()
	require.NoError(t, err)

	require.NoError(t, s.LoadDefaults())
	second, err := s.Keys()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, second, len(defaults))
}

func TestLoadDefaultsKeepsExisting(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetInt(KeyBrightness, 10))
	require.NoError(t, s.LoadDefaults())
	assert.Equal(t, 10, s.GetInt(KeyBrightness, 0))

	require.NoError(t, s.SetString("custom", "x"))
	require.NoError(t, s.ResetToDefaults())
	assert.Equal(t, 70, s.GetInt(KeyBrightness, 0))
	assert.False(t, s.Exists("custom"))
}

func TestClosedStore(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)

	s := New(db, nil)
	require.NoError(t, db.Close())

	assert.ErrorIs(t, s.SetInt("k", 1), store.ErrNotOpen)
	assert.Equal(t, 3, s.GetInt("k", 3))
	assert.ErrorIs(t, s.LoadDefaults(), store.ErrNotOpen)
}

func TestStoreErrors(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	defer sqlDB.Close()

	s := New(store.Wrap(sqlDB), nil)

	mock.ExpectQuery("SELECT value FROM settings").
		WithArgs(KeyBrightness).
		WillReturnError(errors.New("disk I/O error"))
	assert.Equal(t, 55, s.GetInt(KeyBrightness, 55))

	mock.ExpectExec("INSERT OR REPLACE INTO settings").
		WithArgs(KeyBrightness, "90", int(TypeInt)).
		WillReturnError(errors.New("readonly database"))
	assert.ErrorIs(t, s.SetInt(KeyBrightness, 90), ErrFailedToSet)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlarmKey(t *testing.T) {
	assert.Equal(t, "alarm.hr.crit_high", AlarmKey("hr", "crit_high"))
}
