// Package memory provides in-process implementations of the engine's stores.
// They back the worker in development mode and the tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
)

// Ledger implements notification.Ledger in memory.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]*notification.Notification
	order   []string

	// FailOn makes the named operation return the error. Used by tests.
	FailOn map[string]error
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[string]*notification.Notification),
		FailOn:  make(map[string]error),
	}
}

var _ notification.Ledger = (*Ledger)(nil)

func (l *Ledger) fail(op string) error {
	if err, ok := l.FailOn[op]; ok {
		return err
	}
	return nil
}

// Create stores a copy of n.
func (l *Ledger) Create(_ context.Context, n *notification.Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.fail("Create"); err != nil {
		return err
	}
	if _, exists := l.records[n.ID]; exists {
		return fmt.Errorf("notification %s: %w", n.ID, shared.ErrAlreadyExists)
	}
	l.records[n.ID] = n.Clone()
	l.order = append(l.order, n.ID)
	return nil
}

// UpdateStatus moves a pending record to its terminal status.
func (l *Ledger) UpdateStatus(_ context.Context, id string, status notification.Status, sentAt *time.Time, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.fail("UpdateStatus"); err != nil {
		return err
	}
	if !status.IsFinal() {
		return fmt.Errorf("update status to %q: %w", status, shared.ErrInvalidInput)
	}

	n, ok := l.records[id]
	if !ok {
		return shared.ErrNotificationNotFound
	}
	if n.Status != notification.StatusPending {
		return shared.ErrStatusAlreadyFinal
	}

	n.Status = status
	n.Error = errMsg
	if sentAt != nil {
		at := sentAt.UTC()
		n.SentAt = &at
	}
	return nil
}

// ExistsSentReminder checks typed keys and legacy payload keys.
func (l *Ledger) ExistsSentReminder(_ context.Context, userID, appointmentID string, hours int) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.fail("ExistsSentReminder"); err != nil {
		return false, err
	}

	for _, n := range l.records {
		if n.UserID != userID || n.Kind != notification.KindAppointmentReminder || n.Status != notification.StatusSent {
			continue
		}
		if n.Reminder != nil {
			if n.Reminder.AppointmentID == appointmentID && n.Reminder.Hours == hours {
				return true, nil
			}
			continue
		}
		if payloadReminderMatches(n.Payload, appointmentID, hours) {
			return true, nil
		}
	}
	return false, nil
}

func payloadReminderMatches(payload map[string]any, appointmentID string, hours int) bool {
	id, _ := payload[notification.PayloadAppointmentID].(string)
	if id != appointmentID {
		return false
	}
	switch h := payload[notification.PayloadReminderHours].(type) {
	case int:
		return h == hours
	case float64:
		return int(h) == hours && h == float64(int(h))
	default:
		return false
	}
}

// FindByUser returns the newest records of a user.
func (l *Ledger) FindByUser(_ context.Context, userID string, limit int) ([]*notification.Notification, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.fail("FindByUser"); err != nil {
		return nil, err
	}

	var out []*notification.Notification
	for _, n := range l.records {
		if n.UserID == userID {
			out = append(out, n.Clone())
		}
	}
	sortNewestFirst(out)

	if limit = notification.ClampUserLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindBroadcastGroup returns the records matching ref.
func (l *Ledger) FindBroadcastGroup(_ context.Context, ref notification.GroupRef) ([]*notification.Notification, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.fail("FindBroadcastGroup"); err != nil {
		return nil, err
	}
	if ref.IsZero() {
		return nil, notification.ErrInvalidGroupRef
	}

	var out []*notification.Notification
	for _, id := range l.order {
		if n, ok := l.records[id]; ok && ref.Matches(n) {
			out = append(out, n.Clone())
		}
	}
	return out, nil
}

// ListBroadcasts returns every broadcast-tagged record.
func (l *Ledger) ListBroadcasts(_ context.Context) ([]*notification.Notification, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.fail("ListBroadcasts"); err != nil {
		return nil, err
	}

	var out []*notification.Notification
	for _, n := range l.records {
		if n.IsBroadcast() {
			out = append(out, n.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// Delete removes records and returns the number deleted.
func (l *Ledger) Delete(_ context.Context, ids []string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.fail("Delete"); err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		if _, ok := l.records[id]; ok {
			delete(l.records, id)
			deleted++
		}
	}
	if deleted > 0 {
		kept := l.order[:0]
		for _, id := range l.order {
			if _, ok := l.records[id]; ok {
				kept = append(kept, id)
			}
		}
		l.order = kept
	}
	return deleted, nil
}

// Put stores a record as-is, in any status. Used to seed fixtures.
func (l *Ledger) Put(n *notification.Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.records[n.ID]; !exists {
		l.order = append(l.order, n.ID)
	}
	l.records[n.ID] = n.Clone()
}

// Get returns a copy of a record.
func (l *Ledger) Get(id string) (*notification.Notification, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n, ok := l.records[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// All returns copies of every record in insertion order.
func (l *Ledger) All() []*notification.Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*notification.Notification, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.records[id].Clone())
	}
	return out
}

// Len returns the number of stored records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func sortNewestFirst(out []*notification.Notification) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
}
