// Package email implements delivery over SMTP.
package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/salonhub/salon-notifier/internal/domain/shared"
	"github.com/salonhub/salon-notifier/pkg/retry"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// ClientConfig contains SMTP settings.
type ClientConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// From is the envelope and header sender, e.g. "Салон <noreply@salon.ru>".
	From string

	// Retry applies to 4xx replies and network failures. The zero value means
	// retry.Gateway().
	Retry retry.Policy

	// SendMail defaults to smtp.SendMail.
	SendMail SendFunc

	// Now stamps the Date header. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Client sends plain-text mail.
type Client struct {
	config ClientConfig
	from   *mail.Address
	auth   smtp.Auth
	policy retry.Policy
	logger *slog.Logger
}

// NewClient creates a new SMTP client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if config.Port == 0 {
		config.Port = 587
	}
	from, err := mail.ParseAddress(config.From)
	if err != nil {
		return nil, fmt.Errorf("invalid smtp sender %q: %w", config.From, err)
	}
	if config.Retry.Attempts == 0 {
		config.Retry = retry.Gateway()
	}
	if config.SendMail == nil {
		config.SendMail = smtp.SendMail
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	return &Client{
		config: config,
		from:   from,
		auth:   auth,
		policy: config.Retry,
		logger: config.Logger.With("component", "email"),
	}, nil
}

// Send delivers one message to the address. The title becomes the subject.
func (c *Client) Send(ctx context.Context, address, title, body string) error {
	to, err := mail.ParseAddress(strings.TrimSpace(address))
	if err != nil {
		return shared.WrapError("email", "Send", shared.ErrInvalidInput,
			fmt.Sprintf("invalid email address %q", address), err)
	}

	msg := BuildMessage(c.from, to, title, body, c.config.Now())
	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))

	err = c.policy.Do(ctx, func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() {
			done <- c.config.SendMail(addr, c.auth, c.from.Address, []string{to.Address}, msg)
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			return classify(err)
		}
	})
	if err != nil {
		return shared.WrapError("email", "Send", shared.ErrSMTPFailed, "SMTP delivery failed", err)
	}
	return nil
}

// classify marks 4xx SMTP replies and network failures transient.
func classify(err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if protoErr.Code >= 400 && protoErr.Code < 500 {
			return retry.Transient(err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return retry.Transient(err)
	}
	return err
}

// BuildMessage renders an RFC 5322 message with a UTF-8 subject and a
// base64 encoded plain-text body.
func BuildMessage(from, to *mail.Address, subject, body string, date time.Time) []byte {
	var buf bytes.Buffer
	header := func(key, value string) {
		buf.WriteString(key)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	}

	header("From", from.String())
	header("To", to.String())
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", date.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	header("Content-Transfer-Encoding", "base64")
	buf.WriteString("\r\n")

	encoded := base64.StdEncoding.EncodeToString([]byte(body))
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")

	return buf.Bytes()
}
