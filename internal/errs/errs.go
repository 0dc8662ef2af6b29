// Package errs содержит доменные ошибки, общие для сервисов и HTTP-слоя.
package errs

import "errors"

var (
	ErrQueueNotFound  = errors.New("queue not found")
	ErrEntryNotFound  = errors.New("queue entry not found")
	ErrQueueInactive  = errors.New("queue is not accepting joins")
	ErrQueueFull      = errors.New("queue is at capacity")
	ErrDuplicateEntry = errors.New("already waiting in this queue")
	ErrInvalidState   = errors.New("entry is not waiting")
	ErrForbidden      = errors.New("caller is not allowed to perform this action")
	ErrUnauthorized   = errors.New("identity required")
	ErrValidation     = errors.New("validation failed")
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrBadCredentials = errors.New("invalid email or password")
)

// IsNotFound сообщает, что ошибка означает отсутствие очереди или записи.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrQueueNotFound) || errors.Is(err, ErrEntryNotFound)
}
