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

package patient

import (
	"fmt"
	"testing"
	"time"

	"github.com/mfreeman451/vitalmon/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	r, err := Open(db, nil, WithClock(func() time.Time { return time.Unix(5000, 0) }))
	require.NoError(t, err)

	return r
}

func TestSeedDemoPatient(t *testing.T) {
	r := newTestRegistry(t)

	all, err := r.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 1)

	active := r.Active(0)
	require.NotNil(t, active)
	assert.Equal(t, all[0].ID, active.ID)
	assert.Nil(t, r.Active(1))
}

func TestSeedOnlyOnce(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)

	defer db.Close()

	_, err = Open(db, nil)
	require.NoError(t, err)

	r, err := Open(db, nil)
	require.NoError(t, err)

	all, err := r.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSaveAndGet(t *testing.T) {
	r := newTestRegistry(t)

	p := NewPatient("Asha Rao", "MRN-7")
	p.WeightKg = 61.5

	id, err := r.Save(p)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, id, p.ID)

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", got.Name)
	assert.InDelta(t, 61.5, got.WeightKg, 1e-9)
	assert.Equal(t, NoSlot, got.Slot)

	got.Ward = "CCU"
	_, err = r.Save(got)
	require.NoError(t, err)

	byMRN, err := r.FindByMRN("MRN-7")
	require.NoError(t, err)
	assert.Equal(t, "CCU", byMRN.Ward)
}

func TestSaveDuplicateMRN(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Save(NewPatient("A", "MRN-X"))
	require.NoError(t, err)

	_, err = r.Save(NewPatient("B", "MRN-X"))
	assert.ErrorIs(t, err, ErrDuplicateMRN)

	// Empty MRNs are stored as NULL and never collide.
	_, err = r.Save(NewPatient("C", ""))
	require.NoError(t, err)
	_, err = r.Save(NewPatient("D", ""))
	require.NoError(t, err)
}

func TestNotFoundAndInvalid(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Get(999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Get(0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = r.FindByMRN("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, r.Delete(999), ErrNotFound)
	assert.ErrorIs(t, r.Associate(1, 2), ErrInvalidSlot)
	assert.ErrorIs(t, r.Associate(999, 1), ErrNotFound)
	assert.ErrorIs(t, r.Disassociate(-1), ErrInvalidSlot)
	assert.Nil(t, r.Active(5))

	p := NewPatient("bad", "")
	p.Slot = 3
	_, err = r.Save(p)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = r.Save(&Patient{ID: 999, Slot: NoSlot})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssociateMovesSlot(t *testing.T) {
	r := newTestRegistry(t)

	demo := r.Active(0)
	require.NotNil(t, demo)

	p := NewPatient("Second", "MRN-2")
	_, err := r.Save(p)
	require.NoError(t, err)

	require.NoError(t, r.Associate(p.ID, 0))

	require.NotNil(t, r.Active(0))
	assert.Equal(t, p.ID, r.Active(0).ID)
	assert.Nil(t, r.Active(1))

	// The evicted patient stays in the table without a slot.
	old, err := r.Get(demo.ID)
	require.NoError(t, err)
	assert.Equal(t, NoSlot, old.Slot)

	require.NoError(t, r.Associate(p.ID, 1))
	assert.Nil(t, r.Active(0))
	assert.Equal(t, p.ID, r.Active(1).ID)

	require.NoError(t, r.Disassociate(1))
	assert.Nil(t, r.Active(1))
}

func TestAssociateSlotUniqueness(t *testing.T) {
	r := newTestRegistry(t)

	ids := make([]int64, 0, 4)

	for i := 0; i < 4; i++ {
		p := NewPatient(fmt.Sprintf("P%d", i), fmt.Sprintf("MRN-%d", i+10))
		_, err := r.Save(p)
		require.NoError(t, err)

		ids = append(ids, p.ID)
	}

	for i, id := range ids {
		slot := i % 2
		require.NoError(t, r.Associate(id, slot))
		assert.Equal(t, id, r.Active(slot).ID)

		other := r.Active(1 - slot)
		if other != nil {
			assert.NotEqual(t, id, other.ID)
		}
	}
}

func TestDeleteInvalidatesCache(t *testing.T) {
	r := newTestRegistry(t)

	demo := r.Active(0)
	require.NotNil(t, demo)

	require.NoError(t, r.Delete(demo.ID))
	assert.Nil(t, r.Active(0))

	_, err := r.Get(demo.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdmitDischarge(t *testing.T) {
	r := newTestRegistry(t)

	p := NewPatient("Ravi", "MRN-55")
	_, err := r.Admit(p)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), p.AdmittedTs)
	assert.True(t, p.Active)
	assert.True(t, p.Admitted())

	require.NoError(t, r.Associate(p.ID, 1))

	out, err := r.Discharge(p.ID)
	require.NoError(t, err)
	assert.False(t, out.Active)
	assert.Equal(t, int64(5000), out.DischargedTs)
	assert.False(t, out.Admitted())
	assert.Nil(t, r.Active(1))

	got, err := r.Get(p.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	active, err := r.ListActive()
	require.NoError(t, err)

	for _, a := range active {
		assert.NotEqual(t, p.ID, a.ID)
	}
}

func TestListBounded(t *testing.T) {
	r := newTestRegistry(t)

	for i := 0; i < 12; i++ {
		_, err := r.Save(NewPatient(fmt.Sprintf("P%d", i), fmt.Sprintf("M%d", i)))
		require.NoError(t, err)
	}

	all, err := r.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, MaxPatients)
}
