package sms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonhub/salon-notifier/internal/domain/shared"
	"github.com/salonhub/salon-notifier/pkg/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL+"/send", "secret")
	cfg.Sender = "Salon"
	cfg.Retry = retry.Policy{Attempts: 2}
	return NewClient(cfg)
}

func TestClient_Send(t *testing.T) {
	var got sendRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"m-1","status":"queued"}`))
	})

	require.NoError(t, client.Send(context.Background(), "8 (916) 123-45-67", "Напоминание", "Завтра в 13:00"))
	assert.Equal(t, "+79161234567", got.To)
	assert.Equal(t, "Salon", got.From)
	assert.Equal(t, "Напоминание. Завтра в 13:00", got.Text)
}

func TestClient_Send_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	require.NoError(t, client.Send(context.Background(), "+79161234567", "", "hi"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Send_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"number is blacklisted"}`))
	})

	err := client.Send(context.Background(), "+79161234567", "", "hi")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.ErrorIs(t, err, shared.ErrExternalService)

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusUnprocessableEntity, gwErr.StatusCode)
	assert.Contains(t, err.Error(), "number is blacklisted")
}

func TestClient_Send_InvalidPhone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	err := client.Send(context.Background(), "call me", "", "hi")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestClient_ComposeText_Truncates(t *testing.T) {
	c := NewClient(ClientConfig{MaxRunes: 5})
	assert.Equal(t, "Здрав", c.composeText("", "Здравствуйте"))
}

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"+7 916 123-45-67":   "+79161234567",
		"89161234567":        "+79161234567",
		"79161234567":        "+79161234567",
		"  +44 20 7946 0018": "+442079460018",
		"":                   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Zero(t, retryAfter(""))
	assert.Zero(t, retryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
	assert.Zero(t, retryAfter("-1"))
}
