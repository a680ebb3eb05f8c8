package command

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonhub/salon-notifier/internal/domain/notification"
	"github.com/salonhub/salon-notifier/internal/domain/shared"
)

func seedRecords(t *testing.T, f *fixture, ids ...string) {
	t.Helper()
	for _, id := range ids {
		n, err := notification.NewNotification(notification.NewNotificationParams{
			ID:        id,
			UserID:    "u-anna",
			Kind:      notification.KindMarketing,
			Channel:   notification.ChannelTelegram,
			Title:     "t",
			Body:      "b",
			CreatedAt: testNow,
		})
		require.NoError(t, err)
		f.ledger.Put(n)
	}
}

func TestDeleteNotifications_Batch(t *testing.T) {
	f := newFixture(t)
	seedRecords(t, f, "n-a", "n-b", "n-c")
	h := NewDeleteNotificationsHandler(f.ledger, f.events, f.clock, nil)

	res, err := h.Handle(context.Background(), DeleteNotificationsCommand{
		IDs:   []string{"n-a", "n-b", "n-a", "n-missing"},
		Actor: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, DeleteNotificationsResult{Requested: 3, Deleted: 2}, res)
	assert.Equal(t, 1, f.ledger.Len())
	assert.Equal(t, []shared.EventType{shared.EventNotificationDeleted}, f.events.Types())
}

func TestDeleteNotifications_SingleMissing(t *testing.T) {
	f := newFixture(t)
	h := NewDeleteNotificationsHandler(f.ledger, f.events, f.clock, nil)

	_, err := h.Handle(context.Background(), DeleteNotificationsCommand{IDs: []string{"n-x"}})
	assert.ErrorIs(t, err, shared.ErrNotificationNotFound)
	assert.True(t, shared.IsNotFound(err))
	assert.Empty(t, f.events.Types())
}

func TestDeleteNotifications_BatchWithNothingDeleted(t *testing.T) {
	f := newFixture(t)
	h := NewDeleteNotificationsHandler(f.ledger, f.events, f.clock, nil)

	res, err := h.Handle(context.Background(), DeleteNotificationsCommand{IDs: []string{"n-x", "n-y"}})
	require.NoError(t, err)
	assert.Equal(t, DeleteNotificationsResult{Requested: 2}, res)
	assert.Empty(t, f.events.Types())
}

func TestDeleteNotifications_Validation(t *testing.T) {
	f := newFixture(t)
	h := NewDeleteNotificationsHandler(f.ledger, nil, nil, nil)

	_, err := h.Handle(context.Background(), DeleteNotificationsCommand{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = h.Handle(context.Background(), DeleteNotificationsCommand{IDs: []string{" ", ""}})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	tooMany := make([]string, MaxDeleteBatch+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("n-%d", i)
	}
	_, err = h.Handle(context.Background(), DeleteNotificationsCommand{IDs: tooMany})
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}

func TestDeleteNotifications_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.ledger.FailOn["Delete"] = errors.New("db down")
	h := NewDeleteNotificationsHandler(f.ledger, f.events, f.clock, nil)

	_, err := h.Handle(context.Background(), DeleteNotificationsCommand{IDs: []string{"n-a"}})
	require.Error(t, err)
	assert.False(t, shared.IsNotFound(err))
}
