// Package model defines data structures for the support inbox.
package model

import (
	"time"
)

// Status is a conversation's triage state.
//
// A conversation is Unclaimed (new), Claimed by exactly one agent, or
// Resolved. The dashboard's "mine" list is a view over Claimed conversations
// whose AgentID matches the viewer, not a state of its own.
type Status string

const (
	StatusNew      Status = "new"
	StatusClaimed  Status = "claimed"
	StatusResolved Status = "resolved"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusClaimed, StatusResolved:
		return true
	}
	return false
}

// Conversation is a thread of messages between one customer and the support team.
type Conversation struct {
	ID                 string    `json:"id" gorm:"primaryKey;type:text"`
	CustomerID         string    `json:"customer_id" gorm:"type:text;not null;index"`
	AgentID            *string   `json:"agent_id" gorm:"type:text;index"`
	Status             Status    `json:"status" gorm:"type:text;not null;default:'new';index"`
	LastMessagePreview string    `json:"last_message_preview" gorm:"type:text"`
	UnreadCount        int       `json:"unread_count" gorm:"not null;default:0"`
	MessageCount       int       `json:"message_count" gorm:"not null;default:0"`
	InternalNotes      string    `json:"internal_notes" gorm:"type:text"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"index"`

	// Populated on read by the detail endpoint.
	Messages []Message `json:"messages,omitempty" gorm:"-"`
	Customer *Customer `json:"customer,omitempty" gorm:"-"`
}

// TableName implements the GORM tabler interface.
func (Conversation) TableName() string { return "conversations" }

// Open reports whether the conversation can receive inbound messages.
func (c *Conversation) Open() bool {
	return c.Status != StatusResolved
}

// ClaimedBy reports whether agentID currently owns the conversation.
func (c *Conversation) ClaimedBy(agentID string) bool {
	return c.Status == StatusClaimed && c.AgentID != nil && *c.AgentID == agentID
}

// View selects a dashboard conversation list.
type View string

const (
	ViewNew      View = "new"
	ViewMine     View = "mine"
	ViewResolved View = "resolved"
	ViewAll      View = "all"
)

// ParseView parses a view name, defaulting to ViewAll.
func ParseView(s string) (View, bool) {
	switch View(s) {
	case "":
		return ViewAll, true
	case ViewNew, ViewMine, ViewResolved, ViewAll:
		return View(s), true
	}
	return "", false
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int64          `json:"total"`
	HasMore       bool           `json:"has_more"`
}

// StartConversationRequest is the request for an agent-initiated conversation.
type StartConversationRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
	Text  string `json:"text"`
}

// UpdateNotesRequest is the request to replace a conversation's internal notes.
type UpdateNotesRequest struct {
	InternalNotes string `json:"internal_notes"`
}
