package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-inbox/internal/middleware"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
	"github.com/capitalize-ai/support-inbox/pkg/metrics"
)

// ChangeSubscriber delivers realtime change events until stop is called.
type ChangeSubscriber interface {
	Subscribe(ctx context.Context, fn func(*model.ChangeEvent)) (stop func(), err error)
}

// StreamHandler bridges realtime change events to dashboards over SSE.
type StreamHandler struct {
	subscriber ChangeSubscriber
	heartbeat  time.Duration
	logger     *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(sub ChangeSubscriber, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		subscriber: sub,
		heartbeat:  30 * time.Second,
		logger:     log.Component("stream_handler"),
	}
}

// Events handles GET /api/v1/events
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Events beyond the buffer are dropped. Dashboards refetch on reconnect.
	events := make(chan *model.ChangeEvent, 64)
	stop, err := h.subscriber.Subscribe(ctx, func(e *model.ChangeEvent) {
		select {
		case events <- e:
		default:
			h.logger.Warn("Dropping change event for slow client", zap.String("record_id", e.RecordID))
		}
	})
	if err != nil {
		h.logger.Error("failed to subscribe to changes", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "realtime updates unavailable")
		return
	}
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// The server write timeout would otherwise cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	agentID := middleware.GetAgentID(ctx)
	sendSSEEvent(w, flusher, "connected", map[string]string{"agent_id": agentID})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("agent_id", agentID))
			return

		case e := <-events:
			if err := sendSSEEvent(w, flusher, string(e.Type), e); err != nil {
				h.logger.Warn("failed to write change event", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
