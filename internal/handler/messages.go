package handler

import (
	"net/http"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
	"github.com/capitalize-ai/support-inbox/internal/middleware"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/internal/service"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	agentService        *service.AgentService
	conversationService *service.ConversationService
	logger              *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(
	agentSvc *service.AgentService,
	convSvc *service.ConversationService,
	log *logger.Logger,
) *MessageHandler {
	return &MessageHandler{
		agentService:        agentSvc,
		conversationService: convSvc,
		logger:              log.Component("message_handler"),
	}
}

// List handles GET /api/v1/conversations/:id/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	msgs, err := h.conversationService.Messages(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// Send handles POST /api/v1/conversations/:id/messages
//
// The message is stored before it is sent. When sending fails the response
// is 502 and still carries the stored message.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateSend(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.agentService.SendReply(r.Context(), id, middleware.GetAgentID(r.Context()), &req)
	h.respond(w, http.StatusCreated, resp, err)
}

// Start handles POST /api/v1/conversations
func (h *MessageHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req model.StartConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageText(req.Text, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.agentService.StartConversation(r.Context(), middleware.GetAgentID(r.Context()), &req)
	h.respond(w, http.StatusCreated, resp, err)
}

func (h *MessageHandler) respond(w http.ResponseWriter, status int, resp *model.SendMessageResponse, err error) {
	switch {
	case err == nil:
		writeJSON(w, status, resp)
	case resp != nil && apperr.IsKind(err, apperr.KindSend):
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		writeAppError(w, h.logger, err)
	}
}

func validateSend(req *model.SendMessageRequest) error {
	if err := middleware.ValidateMessageText(req.Text, req.AttachmentURL != ""); err != nil {
		return err
	}
	return middleware.ValidateAttachmentURL(req.AttachmentURL)
}
