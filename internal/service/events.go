package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
	"github.com/capitalize-ai/support-inbox/pkg/metrics"
)

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *model.ChangeEvent) error { return nil }

// events publishes change notifications after durable writes. Failures are
// logged and counted; they never fail the write that triggered them.
type events struct {
	pub Publisher
	log *logger.Logger
	now Clock
}

func newEvents(pub Publisher, log *logger.Logger, now Clock) *events {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &events{pub: pub, log: log, now: now}
}

func (e *events) conversation(ctx context.Context, typ model.EventType, c *model.Conversation) {
	e.publish(ctx, typ, model.TableConversations, c.ID, c)
}

func (e *events) customer(ctx context.Context, typ model.EventType, c *model.Customer) {
	e.publish(ctx, typ, model.TableCustomers, c.ID, c)
}

func (e *events) publish(ctx context.Context, typ model.EventType, table, id string, record any) {
	err := e.pub.Publish(ctx, &model.ChangeEvent{
		Type:     typ,
		Table:    table,
		RecordID: id,
		Record:   record,
		At:       e.now(),
	})
	if err != nil {
		metrics.RealtimePublishFailuresTotal.WithLabelValues(table).Inc()
		e.log.Warn("Failed to publish change event",
			zap.String("table", table),
			zap.String("record_id", id),
			zap.Error(err),
		)
	}
}
