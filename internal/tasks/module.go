// Package tasks provides the fulfillment task domain module.
package tasks

import (
	apphttp "tripdesk_backend/internal/http"
	"tripdesk_backend/internal/tasks/handler"
	"tripdesk_backend/internal/tasks/repository"
	"tripdesk_backend/internal/tasks/service"
	"tripdesk_backend/platform/logger"
	"tripdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the tasks domain module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule creates a new tasks module with all dependencies wired.
// The booking executor and evidence storage are injected afterwards via the
// service setters.
func NewModule(pool *pgxpool.Pool, validate *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, log)
	h := handler.New(svc, validate)

	return &Module{handler: h, service: svc, repo: repo}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "tasks"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the repository for adapters and the scheduler.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	tasks := ctx.Protected.Group("/tasks")
	m.handler.RegisterRoutes(tasks)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
