package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinic-platform/internal/directory"
	"github.com/clinicore/clinic-platform/internal/timeutil"
)

type stubOccupancy struct {
	appointments []*Appointment
}

func (s *stubOccupancy) ListActiveInWindow(context.Context, ProviderKey, time.Time, time.Time) ([]*Appointment, error) {
	return s.appointments, nil
}

func newSlotFixture(t *testing.T) (*SlotCalculator, *stubOccupancy, *stubDirectory, *timeutil.Zone) {
	t.Helper()
	zone := timeutil.MustLoadZone("Asia/Kolkata")
	occ := &stubOccupancy{}
	dir := &stubDirectory{
		users: map[int64]*directory.User{},
		doctors: map[int64]*directory.Doctor{
			doctorID: {ID: doctorID, UserID: doctorUserID, Approved: true, StartTime: "09:00", EndTime: "12:00"},
		},
		virtual: &directory.VirtualSettings{ID: 1, StartTime: "10:00", EndTime: "13:00", Active: true},
	}
	calc := NewSlotCalculator(occ, dir, zone)
	calc.now = func() time.Time {
		return time.Date(2026, 9, 1, 8, 0, 0, 0, zone.Location())
	}
	return calc, occ, dir, zone
}

func TestDaySlotsGrid(t *testing.T) {
	calc, _, _, _ := newSlotFixture(t)

	day, err := calc.DaySlots(context.Background(), DoctorProvider(doctorID), "2026-09-02", KindPhysical)
	require.NoError(t, err)
	assert.False(t, day.Weekend)
	// 09:00 to 12:00 yields six half-hour slots.
	require.Len(t, day.Slots, 6)
	assert.Equal(t, "09:00", day.Slots[0].Label)
	assert.Equal(t, "11:30", day.Slots[5].Label)
	for _, s := range day.Slots {
		assert.Equal(t, 1, s.Capacity)
		assert.True(t, s.Available)
		assert.Equal(t, 30*time.Minute, s.End.Sub(s.Start))
	}
}

func TestDaySlotsOccupancy(t *testing.T) {
	calc, occ, _, zone := newSlotFixture(t)
	occ.appointments = []*Appointment{
		{ScheduledAt: time.Date(2026, 9, 2, 9, 0, 0, 0, zone.Location())},
		// An off-grid instant counts against its enclosing slot.
		{ScheduledAt: time.Date(2026, 9, 2, 10, 10, 0, 0, zone.Location())},
	}

	day, err := calc.DaySlots(context.Background(), DoctorProvider(doctorID), "2026-09-02", KindPhysical)
	require.NoError(t, err)

	bySlot := map[string]Slot{}
	for _, s := range day.Slots {
		bySlot[s.Label] = s
	}
	assert.Equal(t, 1, bySlot["09:00"].Booked)
	assert.False(t, bySlot["09:00"].Available)
	assert.Equal(t, 1, bySlot["10:00"].Booked)
	assert.True(t, bySlot["09:30"].Available)
}

func TestDaySlotsVirtualCapacity(t *testing.T) {
	calc, occ, _, zone := newSlotFixture(t)
	at := time.Date(2026, 9, 2, 10, 0, 0, 0, zone.Location())
	occ.appointments = []*Appointment{{ScheduledAt: at}, {ScheduledAt: at}}

	day, err := calc.DaySlots(context.Background(), PoolProvider(), "2026-09-02", KindVirtual)
	require.NoError(t, err)
	require.NotEmpty(t, day.Slots)
	first := day.Slots[0]
	assert.Equal(t, "10:00", first.Label)
	assert.Equal(t, 3, first.Capacity)
	assert.Equal(t, 2, first.Booked)
	assert.True(t, first.Available)
}

func TestDaySlotsWeekend(t *testing.T) {
	calc, _, _, _ := newSlotFixture(t)

	// Doctor-bound Saturday is closed.
	day, err := calc.DaySlots(context.Background(), DoctorProvider(doctorID), "2026-09-05", KindPhysical)
	require.NoError(t, err)
	assert.True(t, day.Weekend)
	assert.Empty(t, day.Slots)

	// The pool runs seven days.
	pool, err := calc.DaySlots(context.Background(), PoolProvider(), "2026-09-05", KindVirtual)
	require.NoError(t, err)
	assert.False(t, pool.Weekend)
	assert.Len(t, pool.Slots, 6)
}

func TestDaySlotsSameDaySuppression(t *testing.T) {
	calc, _, _, zone := newSlotFixture(t)
	// 10:25 local puts the one-hour horizon at 11:25.
	calc.now = func() time.Time {
		return time.Date(2026, 9, 1, 10, 25, 0, 0, zone.Location())
	}

	day, err := calc.DaySlots(context.Background(), DoctorProvider(doctorID), "2026-09-01", KindPhysical)
	require.NoError(t, err)
	require.Len(t, day.Slots, 1)
	assert.Equal(t, "11:30", day.Slots[0].Label)
}

func TestDaySlotsPastDate(t *testing.T) {
	calc, _, _, _ := newSlotFixture(t)
	_, err := calc.DaySlots(context.Background(), DoctorProvider(doctorID), "2026-08-31", KindPhysical)
	assert.ErrorIs(t, err, ErrPastDate)
}

func TestDaySlotsBadDate(t *testing.T) {
	calc, _, _, _ := newSlotFixture(t)
	_, err := calc.DaySlots(context.Background(), DoctorProvider(doctorID), "02-09-2026", KindPhysical)
	assert.ErrorIs(t, err, ErrInvalidDateTime)
}

func TestDaySlotsWindowNotConfigured(t *testing.T) {
	calc, _, dir, _ := newSlotFixture(t)
	dir.doctors[doctorID].StartTime = ""
	_, err := calc.DaySlots(context.Background(), DoctorProvider(doctorID), "2026-09-02", KindPhysical)
	assert.ErrorIs(t, err, ErrWorkingHoursNotConfigured)

	dir.virtual.EndTime = "08:00"
	_, err = calc.DaySlots(context.Background(), PoolProvider(), "2026-09-02", KindVirtual)
	assert.ErrorIs(t, err, ErrWorkingHoursNotConfigured)
}
