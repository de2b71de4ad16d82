package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMessageRequired возвращается, если в запросе нет текста сообщения.
	ErrMessageRequired = errors.New("Message is required")
	// ErrInvalidType возвращается для неизвестной категории обновления.
	ErrInvalidType = errors.New("Invalid type")
)

// ValidationError означает, что запрос отклонён на границе, обновление не создано.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// MalformedMessageError означает, что входящий кадр не удалось разобрать.
type MalformedMessageError struct {
	Raw []byte
	Err error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message (%d bytes): %v", len(e.Raw), e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

// TransportError описывает обрыв или невозможность установить соединение.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// PortConflictError означает, что порт уже занят другим процессом.
type PortConflictError struct {
	Port int
	Err  error
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("port %d is already in use: %v", e.Port, e.Err)
}

func (e *PortConflictError) Unwrap() error { return e.Err }
