package notification

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP KEYS
// ══════════════════════════════════════════════════════════════════════════════

// LegacyKey группирует старые записи рассылок без broadcastId:
// одинаковые заголовок, текст, канал и минута создания.
type LegacyKey struct {
	Title   string
	Body    string
	Channel Channel
	Minute  time.Time
}

// NewLegacyKey строит ключ по записи, округляя время создания до минуты.
func NewLegacyKey(title, body string, channel Channel, createdAt time.Time) LegacyKey {
	return LegacyKey{
		Title:   title,
		Body:    body,
		Channel: channel,
		Minute:  createdAt.UTC().Truncate(time.Minute),
	}
}

type legacyKeyWire struct {
	Title   string `json:"t"`
	Body    string `json:"b"`
	Channel string `json:"c"`
	Minute  int64  `json:"m"`
}

// Encode возвращает непрозрачный URL-безопасный токен ключа.
func (k LegacyKey) Encode() string {
	raw, _ := json.Marshal(legacyKeyWire{
		Title:   k.Title,
		Body:    k.Body,
		Channel: string(k.Channel),
		Minute:  k.Minute.Unix(),
	})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeLegacyKey разбирает токен, полученный из Encode.
func DecodeLegacyKey(token string) (LegacyKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return LegacyKey{}, ErrInvalidGroupRef
	}
	var w legacyKeyWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return LegacyKey{}, ErrInvalidGroupRef
	}
	channel := Channel(w.Channel)
	if !channel.IsValid() {
		return LegacyKey{}, ErrInvalidGroupRef
	}
	return LegacyKey{
		Title:   w.Title,
		Body:    w.Body,
		Channel: channel,
		Minute:  time.Unix(w.Minute, 0).UTC(),
	}, nil
}

const legacyRefPrefix = "legacy:"

// GroupRef ссылается на рассылку: по broadcastId или по старому ключу.
type GroupRef struct {
	BroadcastID string
	Legacy      *LegacyKey
}

// String возвращает внешнее представление ссылки.
func (r GroupRef) String() string {
	if r.Legacy != nil {
		return legacyRefPrefix + r.Legacy.Encode()
	}
	return r.BroadcastID
}

// IsZero сообщает, что ссылка пустая.
func (r GroupRef) IsZero() bool {
	return r.BroadcastID == "" && r.Legacy == nil
}

// ParseGroupRef разбирает ссылку: "legacy:<token>" или broadcastId.
func ParseGroupRef(s string) (GroupRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return GroupRef{}, ErrInvalidGroupRef
	}
	if strings.HasPrefix(s, legacyRefPrefix) {
		key, err := DecodeLegacyKey(strings.TrimPrefix(s, legacyRefPrefix))
		if err != nil {
			return GroupRef{}, err
		}
		return GroupRef{Legacy: &key}, nil
	}
	return GroupRef{BroadcastID: s}, nil
}

// GroupRefOf возвращает ссылку на рассылку записи; false - запись не из рассылки.
func GroupRefOf(n *Notification) (GroupRef, bool) {
	if n.BroadcastID != "" {
		return GroupRef{BroadcastID: n.BroadcastID}, true
	}
	if id, ok := n.Payload[PayloadBroadcastID].(string); ok && id != "" {
		return GroupRef{BroadcastID: id}, true
	}
	if !n.IsBroadcast() {
		return GroupRef{}, false
	}
	key := NewLegacyKey(n.Title, n.Body, n.Channel, n.CreatedAt)
	return GroupRef{Legacy: &key}, true
}

// Matches проверяет, относится ли запись к рассылке ref.
func (r GroupRef) Matches(n *Notification) bool {
	ref, ok := GroupRefOf(n)
	if !ok {
		return false
	}
	if r.Legacy != nil {
		return ref.Legacy != nil && *ref.Legacy == *r.Legacy
	}
	return ref.Legacy == nil && ref.BroadcastID == r.BroadcastID
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATION
// ══════════════════════════════════════════════════════════════════════════════

// RecipientStatus - результат доставки одному получателю рассылки.
type RecipientStatus struct {
	NotificationID string
	UserID         string
	Status         Status
	Error          string
	SentAt         *time.Time
}

// BroadcastGroup - логическая рассылка, собранная из записей журнала.
type BroadcastGroup struct {
	Ref       GroupRef
	Title     string
	Body      string
	Channel   Channel
	CreatedAt time.Time

	Total   int
	Sent    int
	Failed  int
	Pending int

	Recipients []RecipientStatus
}

// GroupBroadcasts группирует записи рассылок. Записи не из рассылок
// пропускаются. Результат не зависит от порядка входных записей:
// группы от новых к старым, получатели по времени создания и id.
func GroupBroadcasts(records []*Notification) []BroadcastGroup {
	buckets := make(map[string][]*Notification)
	refs := make(map[string]GroupRef)

	for _, n := range records {
		if n == nil {
			continue
		}
		ref, ok := GroupRefOf(n)
		if !ok {
			continue
		}
		key := ref.String()
		buckets[key] = append(buckets[key], n)
		refs[key] = ref
	}

	groups := make([]BroadcastGroup, 0, len(buckets))
	for key, rows := range buckets {
		groups = append(groups, SummarizeGroup(refs[key], rows))
	}

	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].CreatedAt.After(groups[j].CreatedAt)
		}
		return groups[i].Ref.String() < groups[j].Ref.String()
	})

	return groups
}

// SummarizeGroup считает итоги одной рассылки.
func SummarizeGroup(ref GroupRef, rows []*Notification) BroadcastGroup {
	sorted := make([]*Notification, 0, len(rows))
	for _, n := range rows {
		if n != nil {
			sorted = append(sorted, n)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	g := BroadcastGroup{
		Ref:        ref,
		Total:      len(sorted),
		Recipients: make([]RecipientStatus, 0, len(sorted)),
	}
	if len(sorted) > 0 {
		first := sorted[0]
		g.Title = first.Title
		g.Body = first.Body
		g.Channel = first.Channel
		g.CreatedAt = first.CreatedAt
	}

	for _, n := range sorted {
		switch n.Status {
		case StatusSent:
			g.Sent++
		case StatusFailed:
			g.Failed++
		default:
			g.Pending++
		}
		g.Recipients = append(g.Recipients, RecipientStatus{
			NotificationID: n.ID,
			UserID:         n.UserID,
			Status:         n.Status,
			Error:          n.Error,
			SentAt:         n.SentAt,
		})
	}

	return g
}

// ErrInvalidGroupRef - ссылка на рассылку не распознана.
var ErrInvalidGroupRef = errors.New("invalid broadcast reference")
