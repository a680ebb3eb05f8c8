package notification

import "fmt"

// defaultTemplate - встроенный текст уведомления, когда шаблон не настроен.
type defaultTemplate struct {
	title string
	body  string
}

var defaultTemplates = map[Kind]defaultTemplate{
	KindAppointmentConfirmed: {
		title: "Запись подтверждена",
		body:  "{{user.name}}, ваша запись на {{service.name}} к мастеру {{master.name}} подтверждена: {{appointment.date}} в {{appointment.time}}.",
	},
	KindAppointmentReminder: {
		title: "Напоминание о записи",
		body:  "Напоминаем: {{reminder.phrase}} у вас запись на {{service.name}} к мастеру {{master.name}} ({{appointment.date}} в {{appointment.time}}).",
	},
	KindAppointmentCancelled: {
		title: "Запись отменена",
		body:  "Ваша запись на {{service.name}} {{appointment.date}} в {{appointment.time}} отменена.",
	},
	KindAppointmentRescheduled: {
		title: "Запись перенесена",
		body:  "Ваша запись на {{service.name}} перенесена на {{appointment.date}} в {{appointment.time}}.",
	},
	KindBonusEarned: {
		title: "Начислены бонусы",
		body:  "Вам начислено {{bonus.amount}} бонусов. Баланс: {{bonus.balance}}.",
	},
	KindFeedbackRequest: {
		title: "Как прошёл визит?",
		body:  "Спасибо, что выбрали нас! Оцените, пожалуйста, работу мастера {{master.name}}.",
	},
	KindBirthdayGreeting: {
		title: "С днём рождения!",
		body:  "{{user.name}}, поздравляем с днём рождения! Для вас подарок от салона.",
	},
	KindMarketing: {
		title: "Новости салона",
		body:  "{{message}}",
	},
}

// DefaultTitle возвращает встроенный заголовок для типа.
func DefaultTitle(kind Kind) string {
	if t, ok := defaultTemplates[kind]; ok {
		return t.title
	}
	return "Уведомление"
}

// DefaultBody рендерит встроенный текст для типа.
func DefaultBody(kind Kind, data map[string]any) string {
	if t, ok := defaultTemplates[kind]; ok {
		return Render(t.body, data)
	}
	return Render("{{message}}", data)
}

// ReminderPhrase возвращает человеческую фразу для интервала напоминания.
func ReminderPhrase(hours int) string {
	switch hours {
	case 1:
		return "через час"
	case 2:
		return "через 2 часа"
	case 6:
		return "через 6 часов"
	case 12:
		return "через 12 часов"
	case 24:
		return "завтра"
	case 48:
		return "послезавтра"
	default:
		return fmt.Sprintf("через %d %s", hours, pluralHours(hours))
	}
}

// pluralHours склоняет слово "час" по числу.
func pluralHours(n int) string {
	if n < 0 {
		n = -n
	}
	mod100 := n % 100
	if mod100 >= 11 && mod100 <= 14 {
		return "часов"
	}
	switch n % 10 {
	case 1:
		return "час"
	case 2, 3, 4:
		return "часа"
	default:
		return "часов"
	}
}
