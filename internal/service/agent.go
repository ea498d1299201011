package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/internal/store"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

// AgentService implements the outbound paths used by the dashboard.
// Messages are persisted before they are transmitted; a failed transmission
// leaves the stored message in place and is reported to the caller.
type AgentService struct {
	conversations *ConversationService
	customers     *CustomerService
	sender        Sender
	log           *logger.Logger
	now           Clock
}

// NewAgentService creates an agent service.
func NewAgentService(conversations *ConversationService, customers *CustomerService, sender Sender, log *logger.Logger) *AgentService {
	return &AgentService{
		conversations: conversations,
		customers:     customers,
		sender:        sender,
		log:           log.Component("agent"),
		now:           utcNow,
	}
}

// SendReply stores an agent reply in the conversation and sends it to the
// customer. When sending fails the response still carries the stored
// message, SendError is set and the returned error is a send error.
func (s *AgentService) SendReply(ctx context.Context, conversationID, agentID string, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	const op = "agent.SendReply"

	text := strings.TrimSpace(req.Text)
	if text == "" && req.AttachmentURL == "" {
		return nil, apperr.Validation(op, errors.New("text or attachment_url is required"))
	}

	conv, err := s.conversations.store.Get(ctx, conversationID)
	if err != nil {
		return nil, notFound(op, err, "conversation not found")
	}
	customer, err := s.customers.Get(ctx, conv.CustomerID)
	if err != nil {
		return nil, err
	}

	msg, preview := s.outbound(agentID, text, req)
	updated, err := s.conversations.AppendOutbound(ctx, conv, msg, preview)
	if err != nil {
		return nil, notFound(op, err, "conversation not found")
	}
	return s.transmit(ctx, customer, updated, msg)
}

// StartConversation opens a conversation with a customer on the agent's
// initiative. The customer is created when unknown; no welcome message is
// sent. An open conversation is reused.
func (s *AgentService) StartConversation(ctx context.Context, agentID string, req *model.StartConversationRequest) (*model.SendMessageResponse, error) {
	const op = "agent.StartConversation"

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, apperr.Validation(op, errors.New("text is required"))
	}
	if NormalizePhone(req.Phone) == "" {
		return nil, apperr.Validation(op, errors.New("phone is required"))
	}

	customer, _, err := s.customers.Resolve(ctx, req.Phone, req.Name)
	if err != nil {
		return nil, err
	}
	if customer.IsBlocked {
		return nil, apperr.Conflict(op, errors.New("customer is blocked"))
	}

	msg, preview := s.outbound(agentID, text, &model.SendMessageRequest{Text: text})
	conv, err := s.open(ctx, customer.ID, agentID, msg, preview)
	if err != nil {
		return nil, err
	}
	s.log.Info("Agent started conversation",
		zap.String("conversation_id", conv.ID),
		zap.String("customer_id", customer.ID),
		zap.String("agent_id", agentID),
	)
	return s.transmit(ctx, customer, conv, msg)
}

func (s *AgentService) open(ctx context.Context, customerID, agentID string, msg *model.Message, preview string) (*model.Conversation, error) {
	conv, err := s.conversations.ResolveActive(ctx, customerID)
	if err == nil {
		return s.conversations.AppendOutbound(ctx, conv, msg, preview)
	}
	if !errors.Is(err, ErrNoActiveConversation) {
		return nil, err
	}

	conv, err = s.conversations.CreateOutbound(ctx, customerID, agentID, msg, preview)
	if !errors.Is(err, store.ErrOpenConversationExists) {
		return conv, err
	}
	conv, err = s.conversations.ResolveActive(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.conversations.AppendOutbound(ctx, conv, msg, preview)
}

func (s *AgentService) outbound(agentID, text string, req *model.SendMessageRequest) (*model.Message, string) {
	msg := &model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Text:      text,
		Sender:    model.SenderAgent,
		AgentID:   &agentID,
		Timestamp: s.now(),
	}
	if req.AttachmentURL == "" {
		return msg, text
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	msg.Attachment = &model.Attachment{
		URL:      req.AttachmentURL,
		FileName: req.FileName,
		MimeType: mimeType,
	}
	return msg, Preview(KindForMime(mimeType), text, req.FileName)
}

func (s *AgentService) transmit(ctx context.Context, customer *model.Customer, conv *model.Conversation, msg *model.Message) (*model.SendMessageResponse, error) {
	resp := &model.SendMessageResponse{Message: msg, Conversation: conv}

	var (
		providerID string
		err        error
	)
	if att := msg.Attachment; att != nil {
		providerID, err = s.sender.SendAttachment(ctx, customer.Phone, att.URL, att.MimeType, msg.Text, att.FileName)
	} else {
		providerID, err = s.sender.SendText(ctx, customer.Phone, msg.Text)
	}
	if err != nil {
		s.log.Warn("Failed to send agent message",
			zap.String("conversation_id", conv.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		resp.SendError = err.Error()
		if !apperr.IsKind(err, apperr.KindSend) {
			err = apperr.Send("agent.transmit", err)
		}
		return resp, err
	}
	resp.ProviderMessageID = providerID
	return resp, nil
}
