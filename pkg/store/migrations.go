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

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// migration is an ordered schema change applied once per store file.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{1, "patients_slot_index", `CREATE INDEX IF NOT EXISTS idx_patients_slot ON patients(slot)`},
	{2, "sync_queue_attempt_index", `CREATE INDEX IF NOT EXISTS idx_sync_queue_attempt ON sync_queue(status, last_attempt_ts)`},
}

func (db *DB) migrate() error {
	for _, m := range migrations {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.version).Scan(&n); err != nil {
			return fmt.Errorf("%w %s: %w", ErrFailedToMigrate, m.name, err)
		}

		if n > 0 {
			continue
		}

		err := db.WithTx(func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.stmt); err != nil {
				return err
			}

			_, err := tx.Exec(`INSERT INTO schema_migrations (version, name, applied_ts) VALUES (?, ?, ?)`,
				m.version, m.name, time.Now().Unix())

			return err
		})
		if err != nil {
			return fmt.Errorf("%w %s: %w", ErrFailedToMigrate, m.name, err)
		}

		db.logger.Debug("applied migration", zap.Int("version", m.version), zap.String("name", m.name))
	}

	return nil
}

// SchemaVersion returns the highest applied migration.
func (db *DB) SchemaVersion() (int, error) {
	if err := db.Ready(); err != nil {
		return 0, err
	}

	var v sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, err
	}

	return int(v.Int64), nil
}
