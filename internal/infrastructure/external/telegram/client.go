// Package telegram delivers salon notifications through the Telegram Bot API
// sendMessage method.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/salonhub/salon-notifier/internal/domain/shared"
	"github.com/salonhub/salon-notifier/pkg/retry"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	defaultTimeout = 10 * time.Second

	// ParseModeHTML makes the title bold and escapes it.
	ParseModeHTML = "HTML"
)

// ClientConfig configures the Bot API client.
type ClientConfig struct {
	Token   string
	BaseURL string
	Timeout time.Duration

	// ParseMode is sent with every message: "HTML", "MarkdownV2" or empty.
	ParseMode string

	// Retry applies to 429, 5xx and network failures. The zero value means
	// retry.Telegram().
	Retry retry.Policy

	Logger *slog.Logger
}

// DefaultClientConfig returns a plain-text client for token.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:   token,
		BaseURL: defaultBaseURL,
		Timeout: defaultTimeout,
		Retry:   retry.Telegram(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client sends messages to chats. Safe for concurrent use.
type Client struct {
	endpoint   string
	parseMode  string
	policy     retry.Policy
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client.
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.Retry.Attempts == 0 {
		config.Retry = retry.Telegram()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	c := &Client{
		endpoint:   strings.TrimRight(config.BaseURL, "/") + "/bot" + config.Token + "/sendMessage",
		parseMode:  config.ParseMode,
		policy:     config.Retry,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     config.Logger.With("component", "telegram"),
	}
	c.policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("telegram send failed, retrying",
			"attempt", attempt,
			"wait", wait.String(),
			"error", err,
		)
	}
	return c
}

// Send delivers a notification to the chat id in address. The title becomes
// the first paragraph of the message.
func (c *Client) Send(ctx context.Context, address, title, body string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(address), 10, 64)
	if err != nil || chatID == 0 {
		return shared.WrapError("telegram", "Send", shared.ErrInvalidInput,
			fmt.Sprintf("invalid chat id %q", address), err)
	}

	msg := sendMessage{
		ChatID:    chatID,
		Text:      c.compose(title, body),
		ParseMode: c.parseMode,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("telegram: marshal message: %w", err)
	}

	err = c.policy.Do(ctx, func(ctx context.Context) error {
		return c.post(ctx, payload)
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.IsChatNotFound() || apiErr.IsBlocked()) {
			// The recipient is unreachable, the provider itself is fine.
			return fmt.Errorf("%w: %w: %w", shared.ErrTelegramAPIFailed, shared.ErrInvalidInput, err)
		}
		return fmt.Errorf("%w: %w", shared.ErrTelegramAPIFailed, err)
	}
	return nil
}

func (c *Client) compose(title, body string) string {
	if c.parseMode == ParseModeHTML && strings.TrimSpace(title) != "" {
		title = "<b>" + html.EscapeString(strings.TrimSpace(title)) + "</b>"
	}
	return ComposeText(title, body)
}

// ComposeText joins title and body into one message text.
func ComposeText(title, body string) string {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	switch {
	case title == "":
		return body
	case body == "":
		return title
	}
	return title + "\n\n" + body
}

type sendMessage struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// post makes one sendMessage call and marks failures worth retrying.
func (c *Client) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The request URL carries the bot token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return retry.Transient(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil && resp.StatusCode < 400 {
		return fmt.Errorf("decode response: %w", err)
	}
	if ar.OK {
		return nil
	}

	apiErr := &APIError{Code: ar.ErrorCode, Description: ar.Description, RetryAfter: ar.Parameters.RetryAfter}
	if apiErr.Code == 0 {
		apiErr.Code = resp.StatusCode
	}
	if apiErr.Description == "" {
		apiErr.Description = http.StatusText(apiErr.Code)
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return retry.TransientAfter(apiErr, time.Duration(apiErr.RetryAfter)*time.Second)
	case apiErr.Code >= 500:
		return retry.Transient(apiErr)
	}
	return apiErr
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is an unsuccessful Bot API reply.
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// IsChatNotFound reports a chat id the bot has never seen.
func (e *APIError) IsChatNotFound() bool {
	return e.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Description), "chat not found")
}

// IsBlocked reports that the user blocked the bot.
func (e *APIError) IsBlocked() bool {
	return e.Code == http.StatusForbidden
}
