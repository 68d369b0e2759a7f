package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func availabilityInput(day time.Weekday, start, end string, duration int) CreateAvailabilityInput {
	s, _ := ParseClock(start)
	e, _ := ParseClock(end)
	return CreateAvailabilityInput{
		DayOfWeek:        int(day),
		StartTime:        s,
		EndTime:          e,
		SlotDuration:     duration,
		ConsultationType: ConsultationBoth,
	}
}

func TestCreateAvailability(t *testing.T) {
	f := newFixture(t, nil)

	w, err := f.svc.CreateAvailability(context.Background(), f.doctorActor(), availabilityInput(time.Saturday, "10:00", "12:00", 20))
	require.NoError(t, err)
	assert.Equal(t, f.doctor.ID, w.DoctorID)
	assert.Equal(t, time.Saturday, w.DayOfWeek)
	assert.True(t, w.Active)

	saturday := nextWeekday(f.date, time.Saturday)
	slots, err := f.svc.AvailableSlots(context.Background(), f.doctor.ID, saturday, "")
	require.NoError(t, err)
	assert.Len(t, slots, 6)
}

func TestCreateAvailabilityValidation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		in   CreateAvailabilityInput
	}{
		{"end before start", availabilityInput(time.Monday, "12:00", "10:00", 30)},
		{"empty window", availabilityInput(time.Monday, "10:00", "10:00", 30)},
		{"duration too short", availabilityInput(time.Monday, "09:00", "10:00", 14)},
		{"duration too long", availabilityInput(time.Monday, "08:00", "20:00", 241)},
		{"duration exceeds window", availabilityInput(time.Monday, "09:00", "09:20", 30)},
		{"day out of range", CreateAvailabilityInput{DayOfWeek: 7, StartTime: NewClock(9, 0), EndTime: NewClock(10, 0), SlotDuration: 30, ConsultationType: ConsultationBoth}},
		{"unknown type", CreateAvailabilityInput{DayOfWeek: 1, StartTime: NewClock(9, 0), EndTime: NewClock(10, 0), SlotDuration: 30, ConsultationType: "PHONE"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAvailability(context.Background(), f.doctorActor(), tt.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err := f.svc.CreateAvailability(context.Background(), f.doctorActor(), availabilityInput(time.Monday, "12:00", "10:00", 30))
	assert.ErrorIs(t, err, ErrInvalidTimeRange)
}

func TestCreateAvailabilityRequiresDoctor(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.CreateAvailability(context.Background(), f.patientActor(), availabilityInput(time.Monday, "09:00", "10:00", 30))
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestDeactivatedWindowHidesSlots(t *testing.T) {
	f := newFixture(t, nil)

	windows, err := f.svc.ListAvailability(context.Background(), f.doctor.ID)
	require.NoError(t, err)
	require.Len(t, windows, 1)

	updated, err := f.svc.SetAvailabilityActive(context.Background(), f.doctorActor(), windows[0].ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Active)

	slots, err := f.svc.AvailableSlots(context.Background(), f.doctor.ID, f.date, "")
	require.NoError(t, err)
	assert.Empty(t, slots)

	_, err = f.svc.RequestAppointment(context.Background(), f.patientActor(), f.input("09:00"))
	assert.ErrorIs(t, err, ErrSlotNotInSchedule)
}

func TestDeleteAvailabilityOwnership(t *testing.T) {
	f := newFixture(t, nil)
	windows, err := f.svc.ListAvailability(context.Background(), f.doctor.ID)
	require.NoError(t, err)

	other := f.repo.AddDoctor(Doctor{Name: "Dr. Who"})
	otherActor := Actor{UserID: other.UserID, Roles: []Role{RoleDoctor}}

	err = f.svc.DeleteAvailability(context.Background(), otherActor, windows[0].ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	err = f.svc.DeleteAvailability(context.Background(), f.doctorActor(), uuid.New())
	assert.ErrorIs(t, err, ErrAvailabilityNotFound)

	require.NoError(t, f.svc.DeleteAvailability(context.Background(), f.doctorActor(), windows[0].ID))

	left, err := f.svc.ListAvailability(context.Background(), f.doctor.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestCreateAvailabilityMinimumDuration(t *testing.T) {
	f := newFixture(t, nil)

	w, err := f.svc.CreateAvailability(context.Background(), f.doctorActor(), availabilityInput(time.Tuesday, "09:00", "10:00", 15))
	require.NoError(t, err)
	assert.Equal(t, 15, w.SlotDuration)

	_, err = f.svc.CreateAvailability(context.Background(), f.doctorActor(), availabilityInput(time.Tuesday, "10:00", "11:00", 14))
	assert.ErrorIs(t, err, ErrValidation)
}
