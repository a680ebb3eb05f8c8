// Package shared содержит общие для всех доменов типы: ошибки, события,
// часы и пагинацию. Пакет не зависит от внешних библиотек.
package shared

import (
	"errors"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// ВИДЫ ОШИБОК
// Виды проверяются через errors.Is и определяют реакцию вызывающего кода:
// HTTP-статус, повтор отправки, учёт в circuit breaker.
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Ошибки входных данных.
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")

	// ErrPrecondition - нарушенное предусловие вызова диспетчера.
	// Возвращается вызывающему и никогда не повторяется автоматически.
	ErrPrecondition = errors.New("precondition failed")

	// ErrStateTransition - недопустимая смена статуса.
	ErrStateTransition = errors.New("invalid state transition")

	// ErrExternalService - сбой провайдера доставки.
	ErrExternalService = errors.New("external service error")
)

// DomainError - ошибка с контекстом домена и операции.
type DomainError struct {
	Domain  string // "notification", "broadcast", "sms"...
	Op      string // операция: "Dispatch", "UpdateStatus"...
	Kind    error  // вид ошибки для errors.Is
	Message string // сообщение для оператора
	Err     error  // исходная причина, может быть nil
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(e.Domain)
	b.WriteByte('.')
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap отдаёт и вид, и причину, поэтому errors.Is и errors.As видят обе.
func (e *DomainError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewDomainError создаёт ошибку без причины.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError оборачивает причину err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Precondition создаёт ошибку предусловия.
func Precondition(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrPrecondition, message)
}

// ══════════════════════════════════════════════════════════════════════════════
// ИМЕНОВАННЫЕ ОШИБКИ
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrUserNotFound = NewDomainError("user", "Find", ErrNotFound, "user not found")

	ErrNotificationNotFound = NewDomainError("notification", "Find", ErrNotFound, "notification not found")
	ErrBroadcastNotFound    = NewDomainError("notification", "FindBroadcast", ErrNotFound, "broadcast not found")
	ErrStatusAlreadyFinal   = NewDomainError("notification", "UpdateStatus", ErrStateTransition, "notification status is already final")

	ErrTelegramAPIFailed = NewDomainError("telegram", "Send", ErrExternalService, "Telegram API request failed")
	ErrSMSGatewayFailed  = NewDomainError("sms", "Send", ErrExternalService, "SMS gateway request failed")
	ErrSMTPFailed        = NewDomainError("email", "Send", ErrExternalService, "SMTP delivery failed")
)

// IsNotFound - сущность не найдена.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPrecondition - нарушено предусловие.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

// IsValidation - некорректные входные данные.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrValueOutOfRange)
}
