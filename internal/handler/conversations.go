// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/support-inbox/internal/middleware"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/internal/service"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log.Component("conversation_handler"),
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	view, ok := model.ParseView(r.URL.Query().Get("view"))
	if !ok {
		writeError(w, http.StatusBadRequest, "view must be one of new, mine, resolved, all")
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	resp, err := h.service.List(ctx, view, middleware.GetAgentID(ctx), limit, offset)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	conv, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Claim handles POST /api/v1/conversations/:id/claim
func (h *ConversationHandler) Claim(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, id string) (*model.Conversation, error) {
		return h.service.Claim(ctx, id, middleware.GetAgentID(ctx))
	})
}

// Unclaim handles POST /api/v1/conversations/:id/unclaim
func (h *ConversationHandler) Unclaim(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Unclaim)
}

// Resolve handles POST /api/v1/conversations/:id/resolve
func (h *ConversationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Resolve)
}

// MarkRead handles POST /api/v1/conversations/:id/read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.MarkRead)
}

// UpdateNotes handles PUT /api/v1/conversations/:id/notes
func (h *ConversationHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateNotesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.mutate(w, r, func(ctx context.Context, id string) (*model.Conversation, error) {
		return h.service.UpdateNotes(ctx, id, req.InternalNotes)
	})
}

func (h *ConversationHandler) mutate(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*model.Conversation, error)) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	conv, err := fn(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
