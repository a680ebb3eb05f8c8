// Package timeutil provides timezone helpers for rendering appointment times
// in the salon's business timezone. Instants are stored in UTC; conversion
// happens only at the presentation edge.
package timeutil

import (
	"time"
)

// Common date/time layouts.
const (
	// LayoutDate is the ISO date (YYYY-MM-DD).
	LayoutDate = "2006-01-02"
	// LayoutTime is the clock time (HH:MM).
	LayoutTime = "15:04"
	// LayoutRussianDate is the Russian date format (DD.MM.YYYY).
	LayoutRussianDate = "02.01.2006"
	// LayoutRussianDateTime is the Russian datetime format.
	LayoutRussianDateTime = "02.01.2006 в 15:04"
)

// In converts t to loc. A nil location means UTC.
func In(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t.UTC()
	}
	return t.In(loc)
}

// FormatDate formats t as DD.MM.YYYY in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	return In(t, loc).Format(LayoutRussianDate)
}

// FormatTime formats t as HH:MM in loc.
func FormatTime(t time.Time, loc *time.Location) string {
	return In(t, loc).Format(LayoutTime)
}

// FormatDateTime formats t as "DD.MM.YYYY в HH:MM" in loc.
func FormatDateTime(t time.Time, loc *time.Location) string {
	return In(t, loc).Format(LayoutRussianDateTime)
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := In(t, loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// IsSameDay checks if two instants fall on the same calendar day in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	a1, a2 := In(t1, loc), In(t2, loc)
	return a1.Year() == a2.Year() && a1.YearDay() == a2.YearDay()
}

// DayWordRu returns "сегодня" or "завтра" relative to now in loc, or the
// formatted date otherwise.
func DayWordRu(t, now time.Time, loc *time.Location) string {
	switch {
	case IsSameDay(t, now, loc):
		return "сегодня"
	case IsSameDay(t, now.AddDate(0, 0, 1), loc):
		return "завтра"
	default:
		return FormatDate(t, loc)
	}
}

// WeekdayNameRu returns the Russian name for t's weekday in loc.
func WeekdayNameRu(t time.Time, loc *time.Location) string {
	switch In(t, loc).Weekday() {
	case time.Monday:
		return "понедельник"
	case time.Tuesday:
		return "вторник"
	case time.Wednesday:
		return "среда"
	case time.Thursday:
		return "четверг"
	case time.Friday:
		return "пятница"
	case time.Saturday:
		return "суббота"
	case time.Sunday:
		return "воскресенье"
	default:
		return ""
	}
}
