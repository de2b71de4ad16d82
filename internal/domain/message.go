package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Виды кадров WebSocket-канала.
const (
	KindInitialUpdates    = "initial-updates"
	KindNewUpdate         = "new-update"
	KindHeartbeat         = "heartbeat"
	KindHeartbeatResponse = "heartbeat-response"
)

// Envelope описывает JSON-кадр канала {"type": ..., "data": ...}.
// Клиенты шлют heartbeat как с timestamp на верхнем уровне, так и внутри data.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp *int64          `json:"timestamp,omitempty"`
}

// NewEnvelope кодирует полезную нагрузку в кадр указанного вида.
func NewEnvelope(kind string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Envelope{Type: kind, Data: data}, nil
}

// DecodeEnvelope разбирает входящий кадр. Любая ошибка возвращается как MalformedMessageError.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, &MalformedMessageError{Raw: raw, Err: err}
	}
	if env.Type == "" {
		return Envelope{}, &MalformedMessageError{Raw: raw, Err: errors.New("missing type")}
	}
	return env, nil
}

// Updates декодирует data кадра initial-updates.
func (e Envelope) Updates() ([]Update, error) {
	updates := []Update{}
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return updates, nil
	}
	if err := json.Unmarshal(e.Data, &updates); err != nil {
		return nil, &MalformedMessageError{Raw: e.Data, Err: err}
	}
	return updates, nil
}

// Update декодирует data кадра new-update.
func (e Envelope) Update() (Update, error) {
	var u Update
	if len(e.Data) == 0 {
		return u, &MalformedMessageError{Raw: e.Data, Err: errors.New("missing data")}
	}
	if err := json.Unmarshal(e.Data, &u); err != nil {
		return u, &MalformedMessageError{Raw: e.Data, Err: err}
	}
	return u, nil
}

// HeartbeatTimestamp достаёт метку времени клиента из кадра heartbeat.
// Возвращает 0, если метки нет.
func (e Envelope) HeartbeatTimestamp() int64 {
	if e.Timestamp != nil {
		return *e.Timestamp
	}
	var hb Heartbeat
	if len(e.Data) > 0 && json.Unmarshal(e.Data, &hb) == nil {
		return hb.Timestamp
	}
	return 0
}
