package notification

import "github.com/salonhub/salon-notifier/internal/domain/appointment"

// Границы окна напоминания относительно интервала h, в часах.
// Окно [h-1, h+0.5] перекрывает один период тика с запасом, поэтому каждый
// интервал попадает хотя бы в один тик даже при задержке процесса.
const (
	WindowBefore = 1.0
	WindowAfter  = 0.5
)

// InReminderWindow проверяет, попадает ли hoursUntil в окно интервала h.
// Обе границы включительные.
func InReminderWindow(hoursUntil float64, h int) bool {
	hours := float64(h)
	return hoursUntil >= hours-WindowBefore && hoursUntil <= hours+WindowAfter
}

// EffectiveIntervals возвращает персональные интервалы клиента, если они
// заданы, иначе глобальные. Порядок не меняется.
func EffectiveIntervals(pref appointment.ReminderPreference, global []int) []int {
	if pref.HasOverride() {
		return pref.Intervals
	}
	return global
}

// OpenWindows возвращает интервалы, чьё окно открыто, в заданном порядке.
func OpenWindows(hoursUntil float64, intervals []int) []int {
	var open []int
	for _, h := range intervals {
		if h > 0 && InReminderWindow(hoursUntil, h) {
			open = append(open, h)
		}
	}
	return open
}
