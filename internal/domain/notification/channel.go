package notification

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/salonhub/salon-notifier/internal/domain/appointment"
)

// ChannelSender - отправка сообщения через конкретный канал.
// Любая ошибка считается ошибкой доставки.
type ChannelSender interface {
	Send(ctx context.Context, channel Channel, address, title, body string) error
}

// ChannelSenderFunc адаптирует функцию к ChannelSender.
type ChannelSenderFunc func(ctx context.Context, channel Channel, address, title, body string) error

// Send implements ChannelSender.
func (f ChannelSenderFunc) Send(ctx context.Context, channel Channel, address, title, body string) error {
	return f(ctx, channel, address, title, body)
}

// AddressFor возвращает адрес контакта для канала.
func AddressFor(contact appointment.Contact, channel Channel) (string, error) {
	var address string
	switch channel {
	case ChannelTelegram:
		if contact.TelegramChatID != 0 {
			address = strconv.FormatInt(contact.TelegramChatID, 10)
		}
	case ChannelSMS:
		address = strings.TrimSpace(contact.Phone)
	case ChannelEmail:
		address = strings.TrimSpace(contact.Email)
	default:
		return "", ErrInvalidChannel
	}

	if address == "" {
		return "", &MissingAddressError{UserID: contact.UserID, Channel: channel}
	}
	return address, nil
}

// MissingAddressError - у получателя нет адреса для канала.
type MissingAddressError struct {
	UserID  string
	Channel Channel
}

// Error implements the error interface.
func (e *MissingAddressError) Error() string {
	return fmt.Sprintf("recipient %s has no %s address", e.UserID, e.Channel)
}
