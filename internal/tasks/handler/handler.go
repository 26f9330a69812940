// Package handler exposes the task endpoints: listing, the state machine
// transitions, the execution gate, and confirmation evidence uploads.
package handler

import (
	"context"
	"net/http"

	"tripdesk_backend/internal/tasks/service"
	"tripdesk_backend/internal/tasks/transport"
	"tripdesk_backend/platform/httpkit"
	"tripdesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidRequest = "invalid request"

// Handler handles HTTP requests for tasks.
type Handler struct {
	svc      *service.Service
	validate *validator.Validator
}

// New creates a new tasks handler.
func New(svc *service.Service, validate *validator.Validator) *Handler {
	return &Handler{svc: svc, validate: validate}
}

// RegisterRoutes registers the task routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/summary", h.Summary)
	rg.GET("/:id", h.GetByID)
	rg.POST("", h.Create)
	rg.POST("/:id/start", h.Start)
	rg.POST("/:id/complete", h.Complete)
	rg.POST("/:id/block", h.Block)
	rg.POST("/:id/unblock", h.Unblock)
	rg.POST("/:id/cancel", h.Cancel)
	rg.POST("/:id/assign", h.Assign)
	rg.POST("/:id/execution", h.Execution)
	rg.POST("/:id/evidence-url", h.EvidenceUploadURL)
	rg.GET("/:id/evidence-url", h.EvidenceDownloadURL)
	rg.POST("/:id/evidence", h.AttachEvidence)
}

func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.ListByAgent(c.Request.Context(), identity.UserID(), c.Query("status"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) Summary(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.Summary(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) GetByID(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	result, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) Create(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	result, err := h.svc.Create(c.Request.Context(), service.CreateTaskInput{
		QuoteID:     req.QuoteID,
		AgentID:     identity.UserID(),
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueAt:       req.DueAt,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

func (h *Handler) Start(c *gin.Context) {
	h.simpleTransition(c, h.svc.Start)
}

func (h *Handler) Complete(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	var req transport.CompleteTaskRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
	}

	result, err := h.svc.Complete(c.Request.Context(), id, req.ConfirmationRef)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) Block(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	var req transport.BlockTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "a blocked reason is required", nil)
		return
	}

	result, err := h.svc.Block(c.Request.Context(), id, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) Unblock(c *gin.Context) {
	h.simpleTransition(c, h.svc.Unblock)
}

func (h *Handler) Cancel(c *gin.Context) {
	h.simpleTransition(c, h.svc.Cancel)
}

func (h *Handler) Assign(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	var req transport.AssignTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	result, err := h.svc.Reassign(c.Request.Context(), id, req.AgentID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Execution drives the preview/execute gate for API tasks.
func (h *Handler) Execution(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	var req transport.ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	result, err := h.svc.RunExecution(c.Request.Context(), id, req.Action)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) EvidenceUploadURL(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	var req transport.EvidenceUploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	result, err := h.svc.GenerateEvidenceUploadURL(c.Request.Context(), id, req.ContentType, req.SizeBytes)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) EvidenceDownloadURL(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	result, err := h.svc.GenerateEvidenceDownloadURL(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) AttachEvidence(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	var req transport.AttachEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	result, err := h.svc.AttachEvidence(c.Request.Context(), id, req.FileKey)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) taskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) simpleTransition(c *gin.Context, fn func(context.Context, uuid.UUID) (*transport.TaskResponse, error)) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	result, err := fn(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
