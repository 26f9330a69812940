package handler

import (
	"net/http"

	"tripdesk_backend/internal/quotes/repository"
	"tripdesk_backend/internal/quotes/service"
	"tripdesk_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidRequest = "invalid request"

// Handler handles HTTP requests for quotes.
type Handler struct {
	svc *service.Service
}

// New creates a new quotes handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the quote routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
}

func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	result, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	paymentStatus := c.DefaultQuery("paymentStatus", repository.PaymentStatusPaidInFull)
	switch paymentStatus {
	case repository.PaymentStatusUnpaid, repository.PaymentStatusDepositPaid,
		repository.PaymentStatusPartiallyPaid, repository.PaymentStatusPaidInFull:
	default:
		httpkit.Error(c, http.StatusBadRequest, "unknown payment status", nil)
		return
	}

	result, err := h.svc.ListByPaymentStatus(c.Request.Context(), identity.UserID(), paymentStatus)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}
