package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-inbox/internal/dedupe"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/internal/store"
	"github.com/capitalize-ai/support-inbox/internal/whatsapp"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
	"github.com/capitalize-ai/support-inbox/pkg/metrics"
)

// Outcome describes how a webhook delivery was handled.
type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeAppended  Outcome = "appended"
	OutcomeCreated   Outcome = "created"
)

// Result is the outcome of one delivery.
type Result struct {
	Outcome        Outcome
	MessageID      string
	CustomerID     string
	ConversationID string
	AutoReply      AutoReply
}

// IngestService runs the inbound pipeline for one webhook delivery.
type IngestService struct {
	customers     *CustomerService
	conversations *ConversationService
	media         *MediaService
	responder     *AutoResponder
	sender        Sender
	tracker       dedupe.Tracker
	blockedNotice string
	log           *logger.Logger
	now           Clock
}

// IngestConfig holds the collaborators of the pipeline.
type IngestConfig struct {
	Customers     *CustomerService
	Conversations *ConversationService
	Media         *MediaService
	Responder     *AutoResponder
	Sender        Sender
	// Tracker short-circuits provider retries of deliveries already handled.
	// Nil disables it.
	Tracker dedupe.Tracker
	// BlockedNotice is sent to blocked customers. Empty sends nothing.
	BlockedNotice string
}

// NewIngestService creates the pipeline.
func NewIngestService(cfg IngestConfig, log *logger.Logger) *IngestService {
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = dedupe.Nop{}
	}
	return &IngestService{
		customers:     cfg.Customers,
		conversations: cfg.Conversations,
		media:         cfg.Media,
		responder:     cfg.Responder,
		sender:        cfg.Sender,
		tracker:       tracker,
		blockedNotice: cfg.BlockedNotice,
		log:           log.Component("ingest"),
		now:           utcNow,
	}
}

// HandleDelivery processes the first message of a webhook payload. A
// returned error means the delivery should be retried by the provider; work
// already applied is safe to re-run because duplicate message ids are
// rejected.
func (s *IngestService) HandleDelivery(ctx context.Context, payload *whatsapp.WebhookPayload) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "ingest.delivery")
	defer func() {
		outcome := "error"
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			outcome = string(res.Outcome)
			span.SetAttributes(attribute.String("ingest.outcome", outcome))
		}
		metrics.RecordDelivery(outcome)
		span.End()
	}()

	msg, contact, ok := payload.FirstMessage()
	if !ok {
		return &Result{Outcome: OutcomeIgnored}, nil
	}

	classified, err := Classify(msg, s.now())
	if errors.Is(err, ErrIgnorable) {
		s.log.Debug("Ignoring unhandled message",
			zap.String("message_id", msg.ID),
			zap.String("type", msg.Type),
		)
		return &Result{Outcome: OutcomeIgnored, MessageID: msg.ID}, nil
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.kind", string(classified.Kind)),
	)
	log := s.log.With(zap.String("message_id", msg.ID), zap.String("kind", string(classified.Kind)))

	seen, err := s.tracker.Seen(ctx, msg.ID)
	if err != nil {
		log.Warn("Dedupe lookup failed", zap.Error(err))
	}
	if seen {
		log.Debug("Delivery already processed")
		return &Result{Outcome: OutcomeDuplicate, MessageID: msg.ID}, nil
	}

	phone, displayName := msg.From, ""
	if contact != nil {
		displayName = contact.Profile.Name
		if phone == "" {
			phone = contact.WaID
		}
	}
	if NormalizePhone(phone) == "" {
		log.Warn("Ignoring message without a sender")
		return &Result{Outcome: OutcomeIgnored, MessageID: msg.ID}, nil
	}
	customer, _, err := s.customers.Resolve(ctx, phone, displayName)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("customer_id", customer.ID))
	res = &Result{MessageID: msg.ID, CustomerID: customer.ID}

	if customer.IsBlocked {
		s.notifyBlocked(ctx, log, customer)
		res.Outcome = OutcomeBlocked
		return res, nil
	}

	exists, err := s.conversations.HasMessage(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		log.Info("Duplicate delivery, message already stored")
		s.mark(ctx, log, msg.ID)
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	message := classified.Message
	if classified.Media != nil {
		att, err := s.media.Resolve(ctx, classified.Media)
		if err != nil {
			return nil, err
		}
		message.Attachment = att
	}

	conv, created, err := s.persist(ctx, customer.ID, &message, classified.Preview)
	if errors.Is(err, store.ErrDuplicateMessage) {
		log.Info("Duplicate delivery rejected by store")
		s.mark(ctx, log, msg.ID)
		res.Outcome = OutcomeDuplicate
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	metrics.InboundMessagesTotal.WithLabelValues(string(classified.Kind)).Inc()
	res.ConversationID = conv.ID
	res.Outcome = OutcomeAppended
	if created {
		res.Outcome = OutcomeCreated
		res.AutoReply = s.responder.Respond(ctx, customer, conv, s.firstContact(ctx, log, conv))
	}

	s.mark(ctx, log, msg.ID)
	log.Info("Inbound message stored",
		zap.String("conversation_id", conv.ID),
		zap.String("outcome", string(res.Outcome)),
	)
	return res, nil
}

// persist appends msg to the customer's open conversation or opens a new one.
// created reports whether a conversation was opened.
func (s *IngestService) persist(ctx context.Context, customerID string, msg *model.Message, preview string) (*model.Conversation, bool, error) {
	conv, err := s.conversations.ResolveActive(ctx, customerID)
	switch {
	case err == nil:
		updated, err := s.conversations.AppendInbound(ctx, conv, msg, preview)
		return updated, false, err
	case !errors.Is(err, ErrNoActiveConversation):
		return nil, false, err
	}

	conv, err = s.conversations.CreateNew(ctx, customerID, msg, preview)
	if err == nil {
		return conv, true, nil
	}
	if !errors.Is(err, store.ErrOpenConversationExists) {
		return nil, false, err
	}

	// A concurrent delivery opened the conversation first.
	conv, err = s.conversations.ResolveActive(ctx, customerID)
	if err != nil {
		return nil, false, err
	}
	updated, err := s.conversations.AppendInbound(ctx, conv, msg, preview)
	return updated, false, err
}

// firstContact counts the customer's stored conversations. It does not
// depend on which delivery created the customer record.
func (s *IngestService) firstContact(ctx context.Context, log *logger.Logger, conv *model.Conversation) bool {
	first, err := s.conversations.IsFirstForCustomer(ctx, conv)
	if err != nil {
		log.Warn("Failed to count conversations, skipping welcome", zap.Error(err))
		return false
	}
	return first
}

func (s *IngestService) notifyBlocked(ctx context.Context, log *logger.Logger, customer *model.Customer) {
	log.Info("Dropping message from blocked customer")
	if s.blockedNotice == "" {
		return
	}
	if _, err := s.sender.SendText(ctx, customer.Phone, s.blockedNotice); err != nil {
		log.Warn("Failed to send blocked notice", zap.Error(err))
	}
}

func (s *IngestService) mark(ctx context.Context, log *logger.Logger, id string) {
	if err := s.tracker.Mark(ctx, id); err != nil {
		log.Warn("Failed to mark delivery as processed", zap.Error(err))
	}
}
