package session

import (
	"errors"
	"fmt"
)

// Ошибки жизненного цикла канала
var (
	// ErrResourceUnavailable не удалось получить порт или привязать сокет
	ErrResourceUnavailable = errors.New("сетевой ресурс недоступен")
	// ErrChannelClosed операция над закрытым каналом
	ErrChannelClosed = errors.New("канал закрыт")
	// ErrNotOpen канал еще не открыт
	ErrNotOpen = errors.New("канал не открыт")
	// ErrNotBound канал еще не привязан
	ErrNotBound = errors.New("канал не привязан")
)

// ResourceUnavailableError ошибка выделения транспорта.
// errors.Is(err, ErrResourceUnavailable) для нее истинно.
type ResourceUnavailableError struct {
	Resource string
	Attempts int
	Err      error
}

func (e *ResourceUnavailableError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrResourceUnavailable, e.Resource)
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" (попыток: %d)", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResourceUnavailableError) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибку с ErrResourceUnavailable
func (e *ResourceUnavailableError) Is(target error) bool {
	return target == ErrResourceUnavailable
}
