package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/salonhub/salon-notifier/internal/domain/appointment"
	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/settings"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPOINTMENTS
// ══════════════════════════════════════════════════════════════════════════════

// Appointments implements appointment.Repository in memory.
type Appointments struct {
	mu    sync.RWMutex
	items map[string]*appointment.Appointment

	// Err is returned by every query when set.
	Err error
}

// NewAppointments creates a store seeded with items.
func NewAppointments(items ...*appointment.Appointment) *Appointments {
	s := &Appointments{items: make(map[string]*appointment.Appointment)}
	for _, a := range items {
		s.Put(a)
	}
	return s
}

var _ appointment.Repository = (*Appointments)(nil)

// Put adds or replaces an appointment.
func (s *Appointments) Put(a *appointment.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[a.ID] = a
}

// FindConfirmedStartingBefore returns confirmed appointments in (now, before].
func (s *Appointments) FindConfirmedStartingBefore(_ context.Context, now, before time.Time) ([]*appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Err != nil {
		return nil, s.Err
	}

	var out []*appointment.Appointment
	for _, a := range s.items {
		if a.Status == appointment.StatusConfirmed && a.StartTime.After(now) && !a.StartTime.After(before) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USERS
// ══════════════════════════════════════════════════════════════════════════════

// Users implements appointment.UserDirectory in memory.
type Users struct {
	mu      sync.RWMutex
	clients map[string]*appointment.Client
}

// NewUsers creates a directory seeded with clients.
func NewUsers(clients ...*appointment.Client) *Users {
	u := &Users{clients: make(map[string]*appointment.Client)}
	for _, c := range clients {
		u.Put(c)
	}
	return u
}

var _ appointment.UserDirectory = (*Users)(nil)

// Put adds or replaces a client.
func (u *Users) Put(c *appointment.Client) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.clients[c.ID] = c
}

// GetContact returns the addresses of a user.
func (u *Users) GetContact(_ context.Context, userID string) (appointment.Contact, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	c, ok := u.clients[userID]
	if !ok {
		return appointment.Contact{}, shared.ErrUserNotFound
	}
	return c.Contact(), nil
}

// GetReminderPreference returns the reminder settings of a user.
func (u *Users) GetReminderPreference(_ context.Context, userID string) (appointment.ReminderPreference, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	c, ok := u.clients[userID]
	if !ok {
		return appointment.ReminderPreference{}, shared.ErrUserNotFound
	}
	return c.Reminders, nil
}

// ListIDsByRole returns ids of all users with a role, sorted.
func (u *Users) ListIDsByRole(_ context.Context, role appointment.Role) ([]string, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	var ids []string
	for id, c := range u.clients {
		if c.Role == role {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS
// ══════════════════════════════════════════════════════════════════════════════

// Settings is a mutable settings.Provider.
type Settings struct {
	mu    sync.RWMutex
	snap  settings.Snapshot
	reads int
}

// NewSettings creates a provider returning snap.
func NewSettings(snap settings.Snapshot) *Settings {
	return &Settings{snap: snap}
}

var _ settings.Provider = (*Settings)(nil)

// Snapshot implements settings.Provider.
func (s *Settings) Snapshot(_ context.Context) (settings.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return s.snap, nil
}

// Set replaces the snapshot.
func (s *Settings) Set(snap settings.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

// Reads returns how many snapshots were taken.
func (s *Settings) Reads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads
}

// ══════════════════════════════════════════════════════════════════════════════
// TEMPLATES
// ══════════════════════════════════════════════════════════════════════════════

// Templates implements notification.TemplateStore in memory.
type Templates struct {
	mu    sync.RWMutex
	items []*notification.Template

	// Err is returned by FindActive when set.
	Err error
}

// NewTemplates creates a store seeded with templates.
func NewTemplates(items ...*notification.Template) *Templates {
	return &Templates{items: items}
}

var _ notification.TemplateStore = (*Templates)(nil)

// Put appends a template. Later templates win.
func (t *Templates) Put(tmpl *notification.Template) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, tmpl)
}

// FindActive returns the last active template for the pair, or nil.
func (t *Templates) FindActive(_ context.Context, kind notification.Kind, channel notification.Channel) (*notification.Template, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.Err != nil {
		return nil, t.Err
	}
	for i := len(t.items) - 1; i >= 0; i-- {
		tmpl := t.items[i]
		if tmpl.Active && tmpl.Kind == kind && tmpl.Channel == channel {
			c := *tmpl
			return &c, nil
		}
	}
	return nil, nil
}
