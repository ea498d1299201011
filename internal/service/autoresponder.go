package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
	"github.com/capitalize-ai/support-inbox/pkg/metrics"
)

// AutoReply reports what the auto-responder sent.
type AutoReply struct {
	WelcomeSent bool
	AwaySent    bool
}

// AutoResponder greets first-time customers and answers outside business hours.
// Every send failure is logged and swallowed.
type AutoResponder struct {
	sender           Sender
	settings         SettingsStore
	conversations    *ConversationService
	templateLanguage string
	log              *logger.Logger
	now              Clock
}

// NewAutoResponder creates an auto-responder.
func NewAutoResponder(sender Sender, settings SettingsStore, conversations *ConversationService, templateLanguage string, log *logger.Logger) *AutoResponder {
	if templateLanguage == "" {
		templateLanguage = "en_US"
	}
	return &AutoResponder{
		sender:           sender,
		settings:         settings,
		conversations:    conversations,
		templateLanguage: templateLanguage,
		log:              log.Component("autoresponder"),
		now:              utcNow,
	}
}

// Respond runs after a conversation was created for an inbound message.
// firstContact reports whether conv is the customer's first conversation;
// only then is the welcome sent.
func (a *AutoResponder) Respond(ctx context.Context, customer *model.Customer, conv *model.Conversation, firstContact bool) AutoReply {
	ctx, span := tracer.Start(ctx, "autoresponder.respond")
	defer span.End()

	log := a.log.With(
		zap.String("conversation_id", conv.ID),
		zap.String("customer_id", customer.ID),
	)

	settings, err := a.settings.Get(ctx)
	if err != nil {
		log.Warn("Failed to load settings, skipping auto replies", zap.Error(err))
		return AutoReply{}
	}

	if firstContact && settings.WelcomeMessage.Enabled {
		if text, ok := a.sendWelcome(ctx, log, customer.Phone, settings.WelcomeMessage); ok {
			a.record(ctx, log, conv, text)
			return AutoReply{WelcomeSent: true}
		}
	}

	if !settings.AwayMessage.Enabled {
		return AutoReply{}
	}
	open, err := settings.BusinessHours.Contains(a.now())
	if err != nil {
		log.Warn("Invalid business hours, treating as open", zap.Error(err))
		return AutoReply{}
	}
	if open {
		return AutoReply{}
	}

	text := settings.AwayMessage.Text
	_, err = a.sender.SendText(ctx, customer.Phone, text)
	metrics.RecordAutoReply("away", err)
	if err != nil {
		log.Warn("Failed to send away message", zap.Error(err))
		return AutoReply{}
	}
	a.record(ctx, log, conv, text)
	return AutoReply{AwaySent: true}
}

// sendWelcome sends the configured greeting and returns the text to log
// into the conversation.
func (a *AutoResponder) sendWelcome(ctx context.Context, log *logger.Logger, to string, w model.WelcomeMessage) (string, bool) {
	var (
		text = w.Text
		err  error
	)
	switch {
	case w.Template != "":
		_, err = a.sender.SendTemplate(ctx, to, w.Template, a.templateLanguage)
		if strings.TrimSpace(text) == "" {
			text = "Template: " + w.Template
		}
	case len(w.Buttons) > 0:
		_, err = a.sender.SendInteractiveButtons(ctx, to, w.Text, w.Buttons)
	default:
		_, err = a.sender.SendText(ctx, to, w.Text)
	}
	metrics.RecordAutoReply("welcome", err)
	if err != nil {
		log.Warn("Failed to send welcome message", zap.Error(err))
		return "", false
	}
	return text, true
}

// record appends an automated message to the conversation. The append is a
// separate write from the one that created the conversation.
func (a *AutoResponder) record(ctx context.Context, log *logger.Logger, conv *model.Conversation, text string) {
	system := model.SystemAgentID
	msg := &model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Text:      text,
		Sender:    model.SenderAgent,
		AgentID:   &system,
		Timestamp: a.now(),
	}
	if _, err := a.conversations.AppendOutbound(ctx, conv, msg, text); err != nil {
		log.Warn("Failed to record automated message", zap.Error(err))
	}
}
