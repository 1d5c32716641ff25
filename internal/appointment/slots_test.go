package appointment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/guidance-scheduling/internal/appointment"
)

func TestSlotLabels(t *testing.T) {
	require.Len(t, appointment.SlotLabels, 19)
	assert.Equal(t, "08:00 AM", appointment.SlotLabels[0])
	assert.Equal(t, "05:00 PM", appointment.SlotLabels[len(appointment.SlotLabels)-1])

	assert.True(t, appointment.IsSlotLabel("12:30 PM"))
	assert.False(t, appointment.IsSlotLabel("12:45 PM"))
	assert.False(t, appointment.IsSlotLabel("9:00 AM"))
}

func TestNormalizeSlots(t *testing.T) {
	got, err := appointment.NormalizeSlots([]string{"02:00 PM", "09:00 AM", "02:00 PM", "12:00 PM"})
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00 AM", "12:00 PM", "02:00 PM"}, got)

	got, err = appointment.NormalizeSlots(nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = appointment.NormalizeSlots([]string{"09:00 AM", "noon"})
	assert.ErrorIs(t, err, appointment.ErrInvalidSlot)
}

func TestParseDate(t *testing.T) {
	d, err := appointment.ParseDate(" 2026-02-10 ")
	require.NoError(t, err)
	assert.Equal(t, appointment.Date("2026-02-10"), d)
	assert.Equal(t, "tuesday", d.Weekday())
	assert.Equal(t, appointment.Date("2026-03-02"), d.AddDays(20))

	for _, bad := range []string{"", "2026/02/10", "2026-02-30", "10-02-2026"} {
		_, err := appointment.ParseDate(bad)
		assert.ErrorIs(t, err, appointment.ErrInvalidDate, bad)
	}
}

func TestBookable(t *testing.T) {
	today := appointment.Date("2026-02-02")
	assert.True(t, appointment.Bookable(today, today))
	assert.True(t, appointment.Bookable("2026-02-03", today))
	assert.False(t, appointment.Bookable("2026-02-01", today))
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to appointment.AppointmentStatus
		ok       bool
	}{
		{appointment.StatusPendingApproval, appointment.StatusAccepted, true},
		{appointment.StatusPendingApproval, appointment.StatusCancelled, true},
		{appointment.StatusPendingApproval, appointment.StatusCompleted, false},
		{appointment.StatusAccepted, appointment.StatusCancelled, true},
		{appointment.StatusAccepted, appointment.StatusCompleted, true},
		{appointment.StatusAccepted, appointment.StatusPendingApproval, false},
		{appointment.StatusCancelled, appointment.StatusAccepted, false},
		{appointment.StatusCompleted, appointment.StatusCancelled, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, appointment.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.True(t, appointment.StatusCompleted.Terminal())
	assert.False(t, appointment.StatusAccepted.Terminal())
	assert.Equal(t, "Pending Approval", appointment.StatusPendingApproval.Label())
}
