package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/support-inbox/internal/middleware"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/internal/service"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

// CustomerHandler handles customer endpoints.
type CustomerHandler struct {
	service *service.CustomerService
	logger  *logger.Logger
}

// NewCustomerHandler creates a customer handler.
func NewCustomerHandler(svc *service.CustomerService, log *logger.Logger) *CustomerHandler {
	return &CustomerHandler{service: svc, logger: log.Component("customer_handler")}
}

// Block handles POST /api/v1/customers/block
func (h *CustomerHandler) Block(w http.ResponseWriter, r *http.Request) {
	var req model.BlockCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Phone == "" || req.IsBlocked == nil {
		writeError(w, http.StatusBadRequest, "phone and is_blocked are required")
		return
	}

	c, err := h.service.SetBlocked(r.Context(), req.Phone, *req.IsBlocked)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Update handles PUT /api/v1/customers/:id
func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.service.Rename(r.Context(), id, req.Name)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
