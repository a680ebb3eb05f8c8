package email

import (
	"context"
	"encoding/base64"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonhub/salon-notifier/internal/domain/shared"
	"github.com/salonhub/salon-notifier/pkg/retry"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  []byte
}

func newTestClient(t *testing.T, send SendFunc) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		Host:     "smtp.salon.test",
		Port:     2525,
		Username: "bot",
		Password: "pw",
		From:     "Салон <noreply@salon.test>",
		SendMail: send,
		Retry:    retry.Policy{Attempts: 2},
		Now:      func() time.Time { return time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return c
}

func TestClient_Send(t *testing.T) {
	var got []sentMail
	c := newTestClient(t, func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		got = append(got, sentMail{addr, from, to, msg})
		return nil
	})

	require.NoError(t, c.Send(context.Background(), "anna@example.com", "Напоминание о записи", "Завтра в 13:00"))
	require.Len(t, got, 1)
	assert.Equal(t, "smtp.salon.test:2525", got[0].addr)
	assert.Equal(t, "noreply@salon.test", got[0].from)
	assert.Equal(t, []string{"anna@example.com"}, got[0].to)

	msg := string(got[0].msg)
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.Contains(t, msg, "Date: Sun, 09 Jun 2024 10:00:00 +0000")
	assert.Contains(t, msg, base64.StdEncoding.EncodeToString([]byte("Завтра в 13:00")))
}

func TestClient_Send_RetriesTemporaryReply(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(string, smtp.Auth, string, []string, []byte) error {
		calls++
		if calls == 1 {
			return &textproto.Error{Code: 421, Msg: "try again later"}
		}
		return nil
	})

	require.NoError(t, c.Send(context.Background(), "anna@example.com", "t", "b"))
	assert.Equal(t, 2, calls)
}

func TestClient_Send_PermanentReply(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(string, smtp.Auth, string, []string, []byte) error {
		calls++
		return &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
	})

	err := c.Send(context.Background(), "anna@example.com", "t", "b")
	assert.ErrorIs(t, err, shared.ErrExternalService)
	assert.Equal(t, 1, calls)
}

func TestClient_Send_InvalidAddress(t *testing.T) {
	c := newTestClient(t, func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("no send expected")
		return nil
	})

	assert.ErrorIs(t, c.Send(context.Background(), "not an address", "t", "b"), shared.ErrInvalidInput)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(ClientConfig{From: "a@b.c"})
	assert.Error(t, err)

	_, err = NewClient(ClientConfig{Host: "smtp", From: "broken"})
	assert.Error(t, err)
}

func TestBuildMessage_WrapsBody(t *testing.T) {
	from := &mail.Address{Address: "a@b.c"}
	to := &mail.Address{Address: "d@e.f"}
	msg := string(BuildMessage(from, to, "s", strings.Repeat("x", 200), time.Unix(0, 0).UTC()))

	parts := strings.SplitN(msg, "\r\n\r\n", 2)
	require.Len(t, parts, 2)
	for _, line := range strings.Split(strings.TrimRight(parts[1], "\r\n"), "\r\n") {
		assert.LessOrEqual(t, len(line), 76)
	}
}
