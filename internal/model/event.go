package model

import (
	"time"
)

// EventType represents the kind of change a realtime event announces.
type EventType string

const (
	EventTypeInsert EventType = "insert"
	EventTypeUpdate EventType = "update"
)

// Tables announced on the realtime bus.
const (
	TableConversations = "conversations"
	TableCustomers     = "customers"
)

// ChangeEvent is published after every durable write so connected
// dashboards can refresh without polling.
type ChangeEvent struct {
	Type     EventType `json:"type"`
	Table    string    `json:"table"`
	RecordID string    `json:"record_id"`
	Record   any       `json:"record"`
	At       time.Time `json:"at"`
}

// ErrorEvent represents an error event on the dashboard stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
