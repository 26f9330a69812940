// Package handler exposes the settlement module's HTTP endpoints: the payment
// confirmation webhook and the operator endpoints for paperwork retries and
// fund allocations.
package handler

import (
	"net/http"

	"tripdesk_backend/internal/settlement/service"
	"tripdesk_backend/internal/settlement/transport"
	"tripdesk_backend/platform/httpkit"
	"tripdesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidRequest = "invalid request"

// Handler handles HTTP requests for settlement.
type Handler struct {
	svc      *service.Service
	validate *validator.Validator
}

// New creates a new settlement handler.
func New(svc *service.Service, validate *validator.Validator) *Handler {
	return &Handler{svc: svc, validate: validate}
}

// RegisterWebhookRoutes mounts the machine-facing payment confirmation route.
// The caller is expected to wrap the group with WebhookKeyAuth.
func (h *Handler) RegisterWebhookRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/confirm", h.ConfirmPayment)
}

// RegisterRoutes mounts the operator-facing settlement routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/:id/retry-paperwork", h.RetryPaperwork)
	rg.GET("/payments/:id/allocations", h.ListAllocations)
	rg.POST("/allocations/:id/release", h.ReleaseAllocation)
}

// ConfirmPayment runs the settlement pipeline for one confirmed charge.
// A duplicate transaction id yields 409; a degraded run still yields 200 with
// the step report, since the payment itself succeeded.
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req transport.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	result, err := h.svc.ProcessPaymentConfirmation(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) RetryPaperwork(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	result, err := h.svc.RetryPaperwork(c.Request.Context(), paymentID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) ListAllocations(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	result, err := h.svc.ListAllocations(c.Request.Context(), paymentID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) ReleaseAllocation(c *gin.Context) {
	allocationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if err := h.svc.ReleaseAllocation(c.Request.Context(), allocationID); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{"status": "released"})
}
