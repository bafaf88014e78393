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

package store

const createTablesSQL = `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		type INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS patients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		mrn TEXT UNIQUE,
		dob TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT '',
		blood_type TEXT NOT NULL DEFAULT '',
		ward TEXT NOT NULL DEFAULT '',
		bed TEXT NOT NULL DEFAULT '',
		attending TEXT NOT NULL DEFAULT '',
		weight_kg REAL NOT NULL DEFAULT 0,
		height_cm REAL NOT NULL DEFAULT 0,
		allergies TEXT NOT NULL DEFAULT '',
		diagnosis TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		admitted_ts INTEGER NOT NULL DEFAULT 0,
		discharged_ts INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 0,
		slot INTEGER NOT NULL DEFAULT -1
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event INTEGER NOT NULL,
		username TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		ts INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		display_name TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL UNIQUE,
		role INTEGER NOT NULL,
		pin_hash TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		last_login INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS vitals_raw (
		ts INTEGER PRIMARY KEY,
		hr INTEGER,
		spo2 INTEGER,
		rr INTEGER,
		temp INTEGER
	);

	CREATE TABLE IF NOT EXISTS vitals_1min (
		ts INTEGER PRIMARY KEY,
		hr_avg REAL, hr_min INTEGER, hr_max INTEGER,
		spo2_avg REAL, spo2_min INTEGER, spo2_max INTEGER,
		rr_avg REAL, rr_min INTEGER, rr_max INTEGER,
		temp_avg REAL, temp_min INTEGER, temp_max INTEGER
	);

	CREATE TABLE IF NOT EXISTS nibp_measurements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		sys INTEGER NOT NULL,
		dia INTEGER NOT NULL,
		map INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS alarm_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		severity INTEGER NOT NULL,
		message TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type INTEGER NOT NULL,
		status INTEGER NOT NULL,
		payload TEXT NOT NULL,
		created_ts INTEGER NOT NULL,
		last_attempt_ts INTEGER NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 5
	);

	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_ts INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts);
	CREATE INDEX IF NOT EXISTS idx_audit_log_username ON audit_log(username, ts);
	CREATE INDEX IF NOT EXISTS idx_audit_log_event ON audit_log(event, ts);
	CREATE INDEX IF NOT EXISTS idx_nibp_ts ON nibp_measurements(ts);
	CREATE INDEX IF NOT EXISTS idx_alarm_events_ts ON alarm_events(ts);
	CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, created_ts);
`
