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

// Package patient implements the patient registry and the monitor slot cache.
package patient

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/mfreeman451/vitalmon/pkg/models"
	"github.com/mfreeman451/vitalmon/pkg/store"
	"go.uber.org/zap"
)

const (
	// MaxPatients bounds the list queries.
	MaxPatients = 8

	// NoSlot marks a patient not bound to a monitor slot.
	NoSlot = -1
)

var (
	ErrNotFound        = errors.New("patient not found")
	ErrInvalidSlot     = errors.New("invalid monitor slot")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDuplicateMRN    = errors.New("duplicate MRN")
	ErrFailedToSave    = errors.New("failed to save patient")
	ErrFailedToQuery   = errors.New("failed to query patients")
	ErrFailedToDelete  = errors.New("failed to delete patient")
)

// Patient is one registry row. DischargedTs == 0 means still admitted.
type Patient struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	MRN          string  `json:"mrn"`
	DOB          string  `json:"dob"`
	Gender       string  `json:"gender"`
	BloodType    string  `json:"blood_type"`
	Ward         string  `json:"ward"`
	Bed          string  `json:"bed"`
	Attending    string  `json:"attending"`
	WeightKg     float64 `json:"weight_kg"`
	HeightCm     float64 `json:"height_cm"`
	Allergies    string  `json:"allergies"`
	Diagnosis    string  `json:"diagnosis"`
	Notes        string  `json:"notes"`
	AdmittedTs   int64   `json:"admitted_ts"`
	DischargedTs int64   `json:"discharged_ts"`
	Active       bool    `json:"active"`
	Slot         int     `json:"slot"`
}

// NewPatient returns a record with no slot binding.
func NewPatient(name, mrn string) *Patient {
	return &Patient{Name: name, MRN: mrn, Slot: NoSlot}
}

// Admitted reports whether the patient has not been discharged.
func (p *Patient) Admitted() bool {
	return p.AdmittedTs > 0 && p.DischargedTs == 0
}

// Registry is the patient table plus an in-memory copy of the patient
// bound to each slot.
type Registry struct {
	db     *store.DB
	logger *zap.Logger
	now    func() time.Time

	slots [models.SlotCount]*Patient
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the wall clock used for admission timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Open returns a registry backed by db, seeding a demonstration patient
// into an empty table and loading the slot cache.
func Open(db *store.DB, logger *zap.Logger, opts ...Option) (*Registry, error) {
	if err := db.Ready(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		db:     db,
		logger: logger.With(zap.String("component", "patient")),
		now:    time.Now,
	}

	for _, o := range opts {
		o(r)
	}

	if err := r.seed(); err != nil {
		return nil, err
	}

	if err := r.refreshCache(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) seed() error {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM patients`).Scan(&n); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	if n > 0 {
		return nil
	}

	demo := Patient{
		Name:       "Demo Patient",
		MRN:        "MRN-0001",
		DOB:        "1970-01-01",
		Gender:     "unknown",
		Ward:       "ICU",
		Bed:        "1",
		AdmittedTs: r.now().Unix(),
		Active:     true,
		Slot:       0,
	}

	if _, err := r.Save(&demo); err != nil {
		return err
	}

	r.logger.Info("seeded demonstration patient", zap.Int64("id", demo.ID))

	return nil
}

const patientColumns = `id, name, mrn, dob, gender, blood_type, ward, bed, attending,
	weight_kg, height_cm, allergies, diagnosis, notes, admitted_ts, discharged_ts, active, slot`

type scanner interface {
	Scan(dest ...any) error
}

func scanPatient(s scanner) (*Patient, error) {
	var (
		p   Patient
		mrn sql.NullString
	)

	err := s.Scan(&p.ID, &p.Name, &mrn, &p.DOB, &p.Gender, &p.BloodType, &p.Ward, &p.Bed,
		&p.Attending, &p.WeightKg, &p.HeightCm, &p.Allergies, &p.Diagnosis, &p.Notes,
		&p.AdmittedTs, &p.DischargedTs, &p.Active, &p.Slot)
	if err != nil {
		return nil, err
	}

	p.MRN = mrn.String

	return &p, nil
}

func nullMRN(mrn string) any {
	mrn = strings.TrimSpace(mrn)
	if mrn == "" {
		return nil
	}

	return mrn
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint && se.ExtendedCode == sqlite3.ErrConstraintUnique
	}

	return false
}

// Save inserts p when p.ID is zero, assigning the new id, or updates the
// row with that id. It returns the id. Set Slot to NoSlot for a patient
// that is not on a monitor; saving into an occupied slot evicts its holder.
func (r *Registry) Save(p *Patient) (int64, error) {
	if p == nil {
		return 0, ErrInvalidArgument
	}

	if p.Slot != NoSlot && !models.ValidSlot(p.Slot) {
		return 0, ErrInvalidSlot
	}

	if err := r.db.Ready(); err != nil {
		return 0, err
	}

	args := []any{p.Name, nullMRN(p.MRN), p.DOB, p.Gender, p.BloodType, p.Ward, p.Bed, p.Attending,
		p.WeightKg, p.HeightCm, p.Allergies, p.Diagnosis, p.Notes, p.AdmittedTs, p.DischargedTs,
		p.Active, p.Slot}

	err := r.db.WithTx(func(tx *sql.Tx) error {
		// A slot holds at most one patient.
		if p.Slot != NoSlot {
			if _, err := tx.Exec(`UPDATE patients SET slot = ? WHERE slot = ? AND id != ?`,
				NoSlot, p.Slot, p.ID); err != nil {
				return fmt.Errorf("%w: %w", ErrFailedToSave, err)
			}
		}

		if p.ID == 0 {
			res, err := tx.Exec(`INSERT INTO patients (name, mrn, dob, gender, blood_type, ward, bed, attending,
				weight_kg, height_cm, allergies, diagnosis, notes, admitted_ts, discharged_ts, active, slot)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
			if err != nil {
				return r.saveError(err)
			}

			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("%w: %w", ErrFailedToSave, err)
			}

			p.ID = id

			return nil
		}

		res, err := tx.Exec(`UPDATE patients SET name = ?, mrn = ?, dob = ?, gender = ?, blood_type = ?,
			ward = ?, bed = ?, attending = ?, weight_kg = ?, height_cm = ?, allergies = ?, diagnosis = ?,
			notes = ?, admitted_ts = ?, discharged_ts = ?, active = ?, slot = ? WHERE id = ?`,
			append(args, p.ID)...)
		if err != nil {
			return r.saveError(err)
		}

		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := r.refreshCache(); err != nil {
		return 0, err
	}

	return p.ID, nil
}

func (r *Registry) saveError(err error) error {
	if isUniqueViolation(err) {
		return ErrDuplicateMRN
	}

	return fmt.Errorf("%w: %w", ErrFailedToSave, err)
}

// Get loads the patient with id.
func (r *Registry) Get(id int64) (*Patient, error) {
	if id <= 0 {
		return nil, ErrInvalidArgument
	}

	if err := r.db.Ready(); err != nil {
		return nil, err
	}

	p, err := scanPatient(r.db.QueryRow(`SELECT `+patientColumns+` FROM patients WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	return p, nil
}

// FindByMRN loads the patient with the given medical record number.
func (r *Registry) FindByMRN(mrn string) (*Patient, error) {
	mrn = strings.TrimSpace(mrn)
	if mrn == "" {
		return nil, ErrInvalidArgument
	}

	if err := r.db.Ready(); err != nil {
		return nil, err
	}

	p, err := scanPatient(r.db.QueryRow(`SELECT `+patientColumns+` FROM patients WHERE mrn = ?`, mrn))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	return p, nil
}

// Delete removes the patient. A cached slot entry for it is dropped first.
func (r *Registry) Delete(id int64) error {
	if id <= 0 {
		return ErrInvalidArgument
	}

	if err := r.db.Ready(); err != nil {
		return err
	}

	for i, p := range r.slots {
		if p != nil && p.ID == id {
			r.slots[i] = nil
		}
	}

	res, err := r.db.Exec(`DELETE FROM patients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToDelete, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

// ListActive returns up to MaxPatients active patients ordered by id.
func (r *Registry) ListActive() ([]Patient, error) {
	return r.list(`SELECT ` + patientColumns + ` FROM patients WHERE active = 1 ORDER BY id LIMIT ?`)
}

// ListAll returns up to MaxPatients patients ordered by id.
func (r *Registry) ListAll() ([]Patient, error) {
	return r.list(`SELECT ` + patientColumns + ` FROM patients ORDER BY id LIMIT ?`)
}

func (r *Registry) list(q string) ([]Patient, error) {
	if err := r.db.Ready(); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(q, MaxPatients)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}
	defer r.db.CloseRows(rows)

	out := make([]Patient, 0, MaxPatients)

	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
		}

		out = append(out, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	return out, nil
}

// Associate binds the patient to slot, clearing any other patient first.
func (r *Registry) Associate(id int64, slot int) error {
	if id <= 0 {
		return ErrInvalidArgument
	}

	if !models.ValidSlot(slot) {
		return ErrInvalidSlot
	}

	if err := r.db.Ready(); err != nil {
		return err
	}

	err := r.db.WithTx(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM patients WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("%w: %w", ErrFailedToQuery, err)
		}

		if exists == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(`UPDATE patients SET slot = ? WHERE slot = ?`, NoSlot, slot); err != nil {
			return fmt.Errorf("%w: %w", ErrFailedToSave, err)
		}

		if _, err := tx.Exec(`UPDATE patients SET slot = ?, active = 1 WHERE id = ?`, slot, id); err != nil {
			return fmt.Errorf("%w: %w", ErrFailedToSave, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("patient associated", zap.Int64("id", id), zap.Int("slot", slot))

	return r.refreshCache()
}

// Disassociate clears slot. The patient row remains.
func (r *Registry) Disassociate(slot int) error {
	if !models.ValidSlot(slot) {
		return ErrInvalidSlot
	}

	if err := r.db.Ready(); err != nil {
		return err
	}

	if _, err := r.db.Exec(`UPDATE patients SET slot = ? WHERE slot = ?`, NoSlot, slot); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToSave, err)
	}

	return r.refreshCache()
}

// Active returns the cached patient bound to slot, or nil.
func (r *Registry) Active(slot int) *Patient {
	if !models.ValidSlot(slot) {
		return nil
	}

	return r.slots[slot]
}

// Admit stamps the admission time, marks the patient active and saves.
func (r *Registry) Admit(p *Patient) (int64, error) {
	if p == nil {
		return 0, ErrInvalidArgument
	}

	p.AdmittedTs = r.now().Unix()
	p.DischargedTs = 0
	p.Active = true

	return r.Save(p)
}

// Discharge stamps the discharge time, marks the patient inactive and
// releases its slot. The row is kept.
func (r *Registry) Discharge(id int64) (*Patient, error) {
	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	p.DischargedTs = r.now().Unix()
	p.Active = false
	p.Slot = NoSlot

	if _, err := r.Save(p); err != nil {
		return nil, err
	}

	return p, nil
}

// refreshCache reloads the slot-bound patients from the table.
func (r *Registry) refreshCache() error {
	var fresh [models.SlotCount]*Patient

	rows, err := r.db.Query(`SELECT `+patientColumns+` FROM patients WHERE slot >= 0 AND slot < ? ORDER BY id`,
		models.SlotCount)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}
	defer r.db.CloseRows(rows)

	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFailedToQuery, err)
		}

		fresh[p.Slot] = p
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	r.slots = fresh

	return nil
}
