package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexibleTime accepts Unix milliseconds or RFC3339 strings
type FlexibleTime struct {
	time.Time
}

func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON always writes RFC3339
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

const (
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"

	MessageTypeNotification      = "notification"
	MessageTypeNotificationCount = "notification_count"

	// track processing finished (complete or failed)
	MessageTypeTrackProcessed = "track_processed"
)

// Message is the envelope for every frame in either direction
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	ID      string      `json:"id,omitempty"`
	// ReplyTo references the ID of the message being answered
	ReplyTo   string       `json:"reply_to,omitempty"`
	Timestamp FlexibleTime `json:"timestamp"`
}

func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

func NewErrorMessage(code string, message string) *Message {
	return NewMessage(MessageTypeError, ErrorPayload{Code: code, Message: message})
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// NotificationCountPayload carries the recipient's unread count
type NotificationCountPayload struct {
	UnreadCount int64 `json:"unread_count"`
}

// TrackProcessedPayload tells an uploader their track finished processing
type TrackProcessedPayload struct {
	TrackID          string `json:"track_id"`
	ProcessingStatus string `json:"processing_status"`
	Status           string `json:"status"`
}

// ParsePayload re-decodes the generic payload into target
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return nil
	}
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
