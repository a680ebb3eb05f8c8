package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppointment_IsReminderEligible(t *testing.T) {
	now := time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status Status
		start  time.Time
		want   bool
	}{
		{"confirmed future", StatusConfirmed, now.Add(time.Hour), true},
		{"confirmed past", StatusConfirmed, now.Add(-time.Minute), false},
		{"confirmed now", StatusConfirmed, now, false},
		{"pending future", StatusPending, now.Add(time.Hour), false},
		{"cancelled future", StatusCancelled, now.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Appointment{Status: tt.status, StartTime: tt.start}
			assert.Equal(t, tt.want, a.IsReminderEligible(now))
		})
	}
}

func TestAppointment_HoursUntil(t *testing.T) {
	now := time.Date(2024, 6, 9, 10, 15, 0, 0, time.UTC)
	a := &Appointment{StartTime: time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)}

	assert.InDelta(t, 23.75, a.HoursUntil(now), 1e-9)
}

func TestReminderPreference_HasOverride(t *testing.T) {
	assert.False(t, ReminderPreference{Enabled: true}.HasOverride())
	assert.False(t, ReminderPreference{Enabled: true, Intervals: []int{}}.HasOverride())
	assert.True(t, ReminderPreference{Enabled: true, Intervals: []int{6}}.HasOverride())
}
