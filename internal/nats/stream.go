package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

const (
	// StreamName is the name of the inbox change stream.
	StreamName = "INBOX"

	// SubjectPrefix is the prefix for all change subjects.
	SubjectPrefix = "inbox"
)

// ChangeSubject returns the subject a change to table/id is published on.
func ChangeSubject(table, id string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, table, id)
}

// AllChanges is the filter subject matching every change.
func AllChanges() string {
	return SubjectPrefix + ".>"
}

// StreamManager publishes and consumes change events.
type StreamManager struct {
	client *Client
	log    *logger.Logger
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client, log *logger.Logger) *StreamManager {
	return &StreamManager{client: client, log: log.Component("stream")}
}

// EnsureStream ensures the inbox stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	// Check if stream exists
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{AllChanges()},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
		Description: "Customer and conversation changes for dashboards",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	m.log.Info("Created JetStream stream", zap.String("stream", StreamName))
	return nil
}

// Publish publishes a change event to JetStream.
func (m *StreamManager) Publish(ctx context.Context, event *model.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, ChangeSubject(event.Table, event.RecordID), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe delivers new change events to fn until ctx is done or the
// returned stop function is called. Events published before the call are
// not replayed.
func (m *StreamManager) Subscribe(ctx context.Context, fn func(*model.ChangeEvent)) (func(), error) {
	consumer, err := m.client.JetStream().OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{AllChanges()},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var event model.ChangeEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			m.log.Warn("Dropping malformed change event",
				zap.String("subject", msg.Subject()),
				zap.Error(err),
			)
			return
		}
		fn(&event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cc.Stop()
		case <-stopped:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopped)
			cc.Stop()
		})
	}, nil
}
