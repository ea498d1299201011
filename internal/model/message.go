package model

import (
	"time"

	"gorm.io/gorm"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
)

// SystemAgentID is the reserved agent id carried by automated messages.
const SystemAgentID = "system"

// Attachment is a file carried by a message.
type Attachment struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	MimeType string `json:"fileType"`
}

// Message is one entry of a conversation's append-only log.
//
// Inbound messages reuse the provider message id, which makes redelivered
// webhooks collide on the primary key. Seq is the 1-based position within
// the conversation and is the ordering key; Timestamp is informational.
type Message struct {
	ID             string      `json:"id" gorm:"primaryKey;type:text"`
	ConversationID string      `json:"conversation_id" gorm:"type:text;not null;uniqueIndex:idx_messages_conversation_seq,priority:1"`
	Seq            int         `json:"seq" gorm:"not null;uniqueIndex:idx_messages_conversation_seq,priority:2"`
	Text           string      `json:"text" gorm:"type:text"`
	Sender         Sender      `json:"sender" gorm:"type:text;not null"`
	AgentID        *string     `json:"agentId,omitempty" gorm:"type:text"`
	Timestamp      time.Time   `json:"timestamp"`
	Attachment     *Attachment `json:"attachment,omitempty" gorm:"-"`
	CreatedAt      time.Time   `json:"-"`

	AttachmentURL      string `json:"-" gorm:"type:text"`
	AttachmentFileName string `json:"-" gorm:"type:text"`
	AttachmentMimeType string `json:"-" gorm:"type:text"`
}

// TableName implements the GORM tabler interface.
func (Message) TableName() string { return "messages" }

// BeforeSave flattens the attachment into its columns.
func (m *Message) BeforeSave(tx *gorm.DB) error {
	if m.Attachment != nil {
		m.AttachmentURL = m.Attachment.URL
		m.AttachmentFileName = m.Attachment.FileName
		m.AttachmentMimeType = m.Attachment.MimeType
	}
	return nil
}

// AfterFind rebuilds the attachment from its columns.
func (m *Message) AfterFind(tx *gorm.DB) error {
	if m.AttachmentURL != "" {
		m.Attachment = &Attachment{
			URL:      m.AttachmentURL,
			FileName: m.AttachmentFileName,
			MimeType: m.AttachmentMimeType,
		}
	}
	return nil
}

// SendMessageRequest is an agent's reply.
type SendMessageRequest struct {
	Text          string `json:"text"`
	AttachmentURL string `json:"attachment_url,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
	FileName      string `json:"file_name,omitempty"`
}

// SendMessageResponse is returned after an agent reply was persisted.
// SendError is set when transmission to the provider failed.
type SendMessageResponse struct {
	Message           *Message      `json:"message"`
	Conversation      *Conversation `json:"conversation"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	SendError         string        `json:"send_error,omitempty"`
}
