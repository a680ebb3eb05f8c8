// Package sms implements delivery through an HTTP JSON SMS gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/salonhub/salon-notifier/internal/domain/shared"
	"github.com/salonhub/salon-notifier/pkg/retry"
)

// phonePattern accepts E.164 numbers.
var phonePattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the SMS gateway client.
type ClientConfig struct {
	// URL is the gateway send endpoint.
	URL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Sender is the alphanumeric sender id or number.
	Sender string

	// MaxRunes truncates message text when positive.
	MaxRunes int

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Retry applies to 429, 5xx and network failures. The zero value means
	// retry.Gateway().
	Retry retry.Policy

	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(url, apiKey string) ClientConfig {
	return ClientConfig{
		URL:     url,
		APIKey:  apiKey,
		Timeout: 10 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client sends text messages through the gateway.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	policy     retry.Policy
	logger     *slog.Logger
}

// NewClient creates a new SMS gateway client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Retry.Attempts == 0 {
		config.Retry = retry.Gateway()
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		policy:     config.Retry,
		logger:     config.Logger.With("component", "sms"),
	}
}

type sendRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

type sendResponse struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// Send delivers title and body as one SMS to the phone number in address.
func (c *Client) Send(ctx context.Context, address, title, body string) error {
	phone := NormalizePhone(address)
	if !phonePattern.MatchString(phone) {
		return shared.NewDomainError("sms", "Send", shared.ErrInvalidInput,
			fmt.Sprintf("invalid phone number %q", address))
	}

	payload, err := json.Marshal(sendRequest{
		To:   phone,
		From: c.config.Sender,
		Text: c.composeText(title, body),
	})
	if err != nil {
		return fmt.Errorf("marshal sms request: %w", err)
	}

	err = c.policy.Do(ctx, func(ctx context.Context) error {
		return c.post(ctx, payload)
	})
	if err != nil {
		return shared.WrapError("sms", "Send", shared.ErrSMSGatewayFailed, "SMS gateway request failed", err)
	}
	return nil
}

func (c *Client) composeText(title, body string) string {
	text := strings.TrimSpace(body)
	if t := strings.TrimSpace(title); t != "" {
		text = t + ". " + text
	}
	if c.config.MaxRunes > 0 {
		if runes := []rune(text); len(runes) > c.config.MaxRunes {
			text = string(runes[:c.config.MaxRunes])
		}
	}
	return text
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return retry.Transient(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out sendResponse
		if len(respBody) > 0 && json.Unmarshal(respBody, &out) == nil && out.ID != "" {
			c.logger.Debug("sms accepted", "gateway_id", out.ID, "status", out.Status)
		}
		return nil
	}

	gwErr := &GatewayError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	var out sendResponse
	if json.Unmarshal(respBody, &out) == nil && out.Message != "" {
		gwErr.Body = out.Message
	}
	if !gwErr.Temporary() {
		return gwErr
	}
	return retry.TransientAfter(gwErr, retryAfter(resp.Header.Get("Retry-After")))
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// NormalizePhone strips formatting characters from a phone number.
// A leading 8 of an 11-digit Russian number is rewritten to +7.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) == 11 && strings.HasPrefix(out, "8") {
		return "+7" + out[1:]
	}
	if out != "" && !strings.HasPrefix(out, "+") {
		return "+" + out
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// GatewayError is a non-2xx gateway response.
type GatewayError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sms gateway returned %d", e.StatusCode)
	}
	return fmt.Sprintf("sms gateway returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when repeated.
func (e *GatewayError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
