package domain

import "time"

// UpdateType задаёт категорию обновления.
type UpdateType string

const (
	TypeInfo    UpdateType = "info"
	TypeSuccess UpdateType = "success"
	TypeWarning UpdateType = "warning"
	TypeError   UpdateType = "error"
)

// DefaultTitle подставляется, если заголовок не передан.
const DefaultTitle = "Update"

// Types возвращает все допустимые категории в порядке отображения.
func Types() []UpdateType {
	return []UpdateType{TypeInfo, TypeSuccess, TypeWarning, TypeError}
}

// Valid сообщает, является ли значение одной из известных категорий.
func (t UpdateType) Valid() bool {
	switch t {
	case TypeInfo, TypeSuccess, TypeWarning, TypeError:
		return true
	}
	return false
}

// Update представляет одно уведомление, принятое сервером и разосланное подписчикам.
type Update struct {
	ID        int64      `json:"id"`
	Message   string     `json:"message"`
	Type      UpdateType `json:"type"`
	Title     string     `json:"title"`
	Timestamp time.Time  `json:"timestamp"`
}

// SubmitRequest содержит входные данные для создания обновления.
type SubmitRequest struct {
	Message string     `json:"message"`
	Type    UpdateType `json:"type,omitempty"`
	Title   string     `json:"title,omitempty"`
}

// Normalize проверяет запрос и подставляет значения по умолчанию.
func (r SubmitRequest) Normalize() (SubmitRequest, error) {
	if r.Message == "" {
		return r, &ValidationError{Field: "message", Err: ErrMessageRequired}
	}
	if r.Type == "" {
		r.Type = TypeInfo
	}
	if !r.Type.Valid() {
		return r, &ValidationError{Field: "type", Err: ErrInvalidType}
	}
	if r.Title == "" {
		r.Title = DefaultTitle
	}
	return r, nil
}

// Heartbeat содержит ответ сервера на keepalive клиента.
type Heartbeat struct {
	Timestamp int64 `json:"timestamp"`
}
