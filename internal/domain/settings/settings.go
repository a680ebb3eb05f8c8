// Package settings содержит типизированный снимок настроек салона,
// которые читает движок уведомлений: интервалы напоминаний, часовой пояс
// и правила бонусов. Снимок берётся один раз на тик или на отправку.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Часовые пояса салонов не должны зависеть от tzdata хоста.
	_ "time/tzdata"
)

// Ключи настроек в хранилище.
const (
	KeyReminderIntervals = "reminder_intervals"
	KeyTimezone          = "timezone"
	KeyBonusRules        = "bonus_rules"
)

// DefaultTimezone - часовой пояс салона по умолчанию.
const DefaultTimezone = "Europe/Moscow"

// DefaultReminderIntervals возвращает интервалы напоминаний по умолчанию (часы).
func DefaultReminderIntervals() []int {
	return []int{24, 2}
}

// Snapshot - неизменяемый снимок настроек на момент чтения.
type Snapshot struct {
	ReminderIntervals []int
	Timezone          *time.Location
	BonusRules        map[string]any
}

// Default возвращает снимок с настройками по умолчанию.
func Default() Snapshot {
	return Snapshot{
		ReminderIntervals: DefaultReminderIntervals(),
		Timezone:          loadLocation(DefaultTimezone),
		BonusRules:        map[string]any{},
	}
}

// Location возвращает часовой пояс снимка, никогда не nil.
func (s Snapshot) Location() *time.Location {
	if s.Timezone == nil {
		return loadLocation(DefaultTimezone)
	}
	return s.Timezone
}

// Intervals возвращает копию глобальных интервалов.
func (s Snapshot) Intervals() []int {
	if len(s.ReminderIntervals) == 0 {
		return DefaultReminderIntervals()
	}
	out := make([]int, len(s.ReminderIntervals))
	copy(out, s.ReminderIntervals)
	return out
}

// Provider - источник снимков настроек.
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// ProviderFunc адаптирует функцию к Provider.
type ProviderFunc func(ctx context.Context) (Snapshot, error)

// Snapshot implements Provider.
func (f ProviderFunc) Snapshot(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// Static возвращает Provider, который всегда отдаёт один и тот же снимок.
func Static(s Snapshot) Provider {
	return ProviderFunc(func(context.Context) (Snapshot, error) {
		return s, nil
	})
}

// FromValues накладывает сырые JSON-значения хранилища на base.
// Отсутствующие и некорректные значения остаются из base; список проблем
// возвращается вторым значением, чтобы вызывающий мог их залогировать.
func FromValues(base Snapshot, values map[string]json.RawMessage) (Snapshot, []error) {
	snap := base
	snap.ReminderIntervals = base.Intervals()
	snap.Timezone = base.Location()
	if snap.BonusRules == nil {
		snap.BonusRules = map[string]any{}
	}
	var problems []error

	if raw, ok := values[KeyReminderIntervals]; ok {
		intervals, err := ParseIntervals(raw)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", KeyReminderIntervals, err))
		} else if len(intervals) > 0 {
			snap.ReminderIntervals = intervals
		}
	}

	if raw, ok := values[KeyTimezone]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", KeyTimezone, err))
		} else if name != "" {
			loc, err := time.LoadLocation(name)
			if err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", KeyTimezone, err))
			} else {
				snap.Timezone = loc
			}
		}
	}

	if raw, ok := values[KeyBonusRules]; ok {
		rules := map[string]any{}
		if err := json.Unmarshal(raw, &rules); err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", KeyBonusRules, err))
		} else {
			snap.BonusRules = rules
		}
	}

	return snap, problems
}

// ParseIntervals разбирает JSON-массив интервалов в часах.
// Порядок сохраняется, повторы отбрасываются, все значения должны быть > 0.
func ParseIntervals(raw json.RawMessage) ([]int, error) {
	var hours []int
	if err := json.Unmarshal(raw, &hours); err != nil {
		return nil, err
	}
	return NormalizeIntervals(hours)
}

// NormalizeIntervals проверяет интервалы и убирает повторы без сортировки.
func NormalizeIntervals(hours []int) ([]int, error) {
	seen := make(map[int]struct{}, len(hours))
	out := make([]int, 0, len(hours))
	for _, h := range hours {
		if h <= 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidInterval, h)
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out, nil
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// ErrInvalidInterval - интервал напоминания должен быть положительным числом часов.
var ErrInvalidInterval = errors.New("reminder interval must be a positive number of hours")
