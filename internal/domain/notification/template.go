package notification

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Template - настроенный шаблон уведомления для пары (тип, канал).
type Template struct {
	ID      string
	Kind    Kind
	Channel Channel
	Subject string
	Body    string
	Active  bool
}

// TemplateStore - хранилище шаблонов.
type TemplateStore interface {
	// FindActive возвращает активный шаблон либо nil, если он не настроен.
	FindActive(ctx context.Context, kind Kind, channel Channel) (*Template, error)
}

// Apply рендерит заголовок и текст шаблона.
func (t *Template) Apply(data map[string]any) (title, body string) {
	return Render(t.Subject, data), Render(t.Body, data)
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)

// Render подставляет значения в шаблон вида "Здравствуйте, {{user.name}}".
// Путь разбирается по точкам через вложенные map. Отсутствующие значения
// подставляются пустой строкой.
func Render(tmpl string, data map[string]any) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		value, ok := Lookup(data, sub[1])
		if !ok {
			return ""
		}
		return formatValue(value)
	})
}

// Lookup ищет значение по пути через точку.
func Lookup(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			current = v
		case map[string]string:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	case map[string]any, map[string]string, []any:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
