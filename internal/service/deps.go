// Package service implements the inbound ingestion pipeline and the agent
// operations of the support inbox.
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/internal/store"
	"github.com/capitalize-ai/support-inbox/internal/whatsapp"
)

var tracer = otel.Tracer("github.com/capitalize-ai/support-inbox/internal/service")

// Sender transmits outbound messages through the provider.
type Sender interface {
	SendText(ctx context.Context, to, text string) (string, error)
	SendAttachment(ctx context.Context, to, url, mimeType, caption, filename string) (string, error)
	SendTemplate(ctx context.Context, to, name, language string) (string, error)
	SendInteractiveButtons(ctx context.Context, to, body string, buttons []model.ReplyButton) (string, error)
}

// MediaSource resolves and downloads provider media.
type MediaSource interface {
	GetMedia(ctx context.Context, mediaID string) (*whatsapp.MediaResponse, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// AttachmentStore uploads media and returns a durable public URL.
type AttachmentStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Publisher announces durable writes to connected dashboards.
type Publisher interface {
	Publish(ctx context.Context, event *model.ChangeEvent) error
}

// CustomerStore persists customers.
type CustomerStore interface {
	GetByPhone(ctx context.Context, phone string) (*model.Customer, error)
	GetByID(ctx context.Context, id string) (*model.Customer, error)
	Create(ctx context.Context, c *model.Customer) error
	UpdateName(ctx context.Context, id, name string, at time.Time) (*model.Customer, error)
	SetBlocked(ctx context.Context, id string, blocked bool, at time.Time) (*model.Customer, error)
}

// ConversationStore persists conversations and their message log.
type ConversationStore interface {
	Get(ctx context.Context, id string) (*model.Conversation, error)
	LatestOpen(ctx context.Context, customerID string) (*model.Conversation, error)
	CountForCustomer(ctx context.Context, customerID string) (int64, error)
	Create(ctx context.Context, conv *model.Conversation, first *model.Message) error
	Append(ctx context.Context, conversationID string, msg *model.Message, upd store.AppendUpdate) (*model.Conversation, error)
	UpdateFields(ctx context.Context, id string, at time.Time, updates map[string]interface{}) (*model.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]model.Message, error)
	MessageExists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, f store.ListFilter) ([]model.Conversation, int64, error)
}

// SettingsStore persists the singleton AppSettings.
type SettingsStore interface {
	Get(ctx context.Context) (*model.AppSettings, error)
	Save(ctx context.Context, s *model.AppSettings) error
}

// Clock returns the current time.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }
