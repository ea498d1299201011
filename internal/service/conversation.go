package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/internal/store"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
	"github.com/capitalize-ai/support-inbox/pkg/metrics"
)

// ErrNoActiveConversation is returned when a customer has no open conversation.
var ErrNoActiveConversation = errors.New("no active conversation")

// ConversationService handles conversation operations.
type ConversationService struct {
	store     ConversationStore
	customers CustomerStore
	events    *events
	logger    *logger.Logger
	now       Clock
}

// NewConversationService creates a new conversation service.
func NewConversationService(s ConversationStore, customers CustomerStore, pub Publisher, log *logger.Logger) *ConversationService {
	log = log.Component("conversations")
	return &ConversationService{
		store:     s,
		customers: customers,
		events:    newEvents(pub, log, utcNow),
		logger:    log,
		now:       utcNow,
	}
}

// ResolveActive returns the customer's most recently updated conversation
// that is not resolved, or ErrNoActiveConversation.
func (s *ConversationService) ResolveActive(ctx context.Context, customerID string) (*model.Conversation, error) {
	conv, err := s.store.LatestOpen(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNoActiveConversation
	}
	return conv, nil
}

// AppendInbound appends a customer message. The conversation goes back to
// new and unassigned, its unread count grows by one and updated_at moves
// forward.
func (s *ConversationService) AppendInbound(ctx context.Context, conv *model.Conversation, msg *model.Message, preview string) (*model.Conversation, error) {
	return s.append(ctx, conv, msg, store.AppendUpdate{
		Preview:         preview,
		IncrementUnread: true,
		Status:          model.StatusNew,
	})
}

// AppendOutbound appends an agent or system message without touching the
// unread count or the status.
func (s *ConversationService) AppendOutbound(ctx context.Context, conv *model.Conversation, msg *model.Message, preview string) (*model.Conversation, error) {
	return s.append(ctx, conv, msg, store.AppendUpdate{Preview: preview})
}

func (s *ConversationService) append(ctx context.Context, conv *model.Conversation, msg *model.Message, upd store.AppendUpdate) (*model.Conversation, error) {
	upd.At = s.bump(conv.UpdatedAt)
	updated, err := s.store.Append(ctx, conv.ID, msg, upd)
	if err != nil {
		return nil, err
	}
	s.events.conversation(ctx, model.EventTypeUpdate, updated)
	return updated, nil
}

// IsFirstForCustomer reports whether conv is the only conversation its
// customer has ever had. Conversations opened by agents count.
func (s *ConversationService) IsFirstForCustomer(ctx context.Context, conv *model.Conversation) (bool, error) {
	n, err := s.store.CountForCustomer(ctx, conv.CustomerID)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CreateNew opens a conversation for an inbound customer message.
func (s *ConversationService) CreateNew(ctx context.Context, customerID string, msg *model.Message, preview string) (*model.Conversation, error) {
	now := s.now()
	conv := &model.Conversation{
		ID:                 uuid.Must(uuid.NewV7()).String(),
		CustomerID:         customerID,
		Status:             model.StatusNew,
		LastMessagePreview: preview,
		UnreadCount:        1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return s.create(ctx, conv, msg, "inbound")
}

// CreateOutbound opens a conversation started by an agent. It is claimed by
// that agent and has nothing unread.
func (s *ConversationService) CreateOutbound(ctx context.Context, customerID, agentID string, msg *model.Message, preview string) (*model.Conversation, error) {
	now := s.now()
	conv := &model.Conversation{
		ID:                 uuid.Must(uuid.NewV7()).String(),
		CustomerID:         customerID,
		AgentID:            &agentID,
		Status:             model.StatusClaimed,
		LastMessagePreview: preview,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return s.create(ctx, conv, msg, "agent")
}

func (s *ConversationService) create(ctx context.Context, conv *model.Conversation, msg *model.Message, origin string) (*model.Conversation, error) {
	if err := s.store.Create(ctx, conv, msg); err != nil {
		return nil, err
	}
	metrics.ConversationsCreatedTotal.WithLabelValues(origin).Inc()
	s.logger.Info("Conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("customer_id", conv.CustomerID),
		zap.String("origin", origin),
	)
	s.events.conversation(ctx, model.EventTypeInsert, conv)
	return conv, nil
}

// Get returns a conversation with its ordered messages and customer.
func (s *ConversationService) Get(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, notFound("conversations.Get", err, "conversation not found")
	}
	msgs, err := s.store.Messages(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs

	customer, err := s.customers.GetByID(ctx, conv.CustomerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	conv.Customer = customer
	return conv, nil
}

// Messages returns the conversation's messages in append order.
func (s *ConversationService) Messages(ctx context.Context, id string) ([]model.Message, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, notFound("conversations.Messages", err, "conversation not found")
	}
	return s.store.Messages(ctx, id)
}

// HasMessage reports whether a message with id is already stored.
func (s *ConversationService) HasMessage(ctx context.Context, id string) (bool, error) {
	return s.store.MessageExists(ctx, id)
}

// List returns one dashboard view. ViewMine selects conversations claimed by agentID.
func (s *ConversationService) List(ctx context.Context, view model.View, agentID string, limit, offset int) (*model.ListConversationsResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	f := store.ListFilter{Limit: limit, Offset: offset}
	switch view {
	case model.ViewNew:
		f.Statuses = []model.Status{model.StatusNew}
	case model.ViewMine:
		f.Statuses = []model.Status{model.StatusClaimed}
		f.AgentID = agentID
	case model.ViewResolved:
		f.Statuses = []model.Status{model.StatusResolved}
	}

	convs, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         total,
		HasMore:       int64(offset+len(convs)) < total,
	}, nil
}

// Claim assigns the conversation to agentID.
func (s *ConversationService) Claim(ctx context.Context, id, agentID string) (*model.Conversation, error) {
	return s.update(ctx, "conversations.Claim", id, map[string]interface{}{
		"status":   model.StatusClaimed,
		"agent_id": agentID,
	})
}

// Unclaim returns the conversation to the unassigned queue.
func (s *ConversationService) Unclaim(ctx context.Context, id string) (*model.Conversation, error) {
	return s.update(ctx, "conversations.Unclaim", id, map[string]interface{}{
		"status":   model.StatusNew,
		"agent_id": nil,
	})
}

// Resolve closes the conversation. The next inbound message opens a new one.
func (s *ConversationService) Resolve(ctx context.Context, id string) (*model.Conversation, error) {
	return s.update(ctx, "conversations.Resolve", id, map[string]interface{}{
		"status": model.StatusResolved,
	})
}

// MarkRead resets the unread count.
func (s *ConversationService) MarkRead(ctx context.Context, id string) (*model.Conversation, error) {
	return s.update(ctx, "conversations.MarkRead", id, map[string]interface{}{
		"unread_count": 0,
	})
}

// UpdateNotes replaces the internal notes.
func (s *ConversationService) UpdateNotes(ctx context.Context, id, notes string) (*model.Conversation, error) {
	return s.update(ctx, "conversations.UpdateNotes", id, map[string]interface{}{
		"internal_notes": notes,
	})
}

func (s *ConversationService) update(ctx context.Context, op, id string, updates map[string]interface{}) (*model.Conversation, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, notFound(op, err, "conversation not found")
	}

	conv, err := s.store.UpdateFields(ctx, id, s.bump(current.UpdatedAt), updates)
	switch {
	case errors.Is(err, store.ErrOpenConversationExists):
		return nil, apperr.Conflict(op, errors.New("customer already has an open conversation"))
	case err != nil:
		return nil, notFound(op, err, "conversation not found")
	}
	s.events.conversation(ctx, model.EventTypeUpdate, conv)
	return conv, nil
}

// bump returns a timestamp for the next write that never moves updated_at backwards.
func (s *ConversationService) bump(prev time.Time) time.Time {
	now := s.now()
	if now.Before(prev) {
		return prev
	}
	return now
}
