package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/salonhub/salon-notifier/internal/domain/appointment"
)

func TestInReminderWindow(t *testing.T) {
	tests := []struct {
		hoursUntil float64
		h          int
		want       bool
	}{
		{23.0, 24, true},
		{24.5, 24, true},
		{22.99, 24, false},
		{24.51, 24, false},
		{23.75, 24, true},
		{24.3, 24, true},
		{22.3, 24, false},
		{1.0, 2, true},
		{2.5, 2, true},
		{0.5, 2, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, InReminderWindow(tt.hoursUntil, tt.h), "hoursUntil=%v h=%d", tt.hoursUntil, tt.h)
	}
}

func TestEffectiveIntervals(t *testing.T) {
	global := []int{24, 2}

	assert.Equal(t, global, EffectiveIntervals(appointment.ReminderPreference{Enabled: true}, global))
	assert.Equal(t, []int{6, 48}, EffectiveIntervals(appointment.ReminderPreference{Enabled: true, Intervals: []int{6, 48}}, global))
}

func TestOpenWindows(t *testing.T) {
	// окна 2 и 3 пересекаются на [2, 2.5]
	assert.Equal(t, []int{3, 2}, OpenWindows(2.2, []int{24, 3, 2}))
	assert.Equal(t, []int{24}, OpenWindows(23.5, []int{24, 2}))
	assert.Empty(t, OpenWindows(10, []int{24, 2}))
	assert.Empty(t, OpenWindows(1.5, []int{0, -2}))
}
