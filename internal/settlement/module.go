// Package settlement provides the settlement domain module: everything that
// happens between a confirmed charge and a dispatched booking.
package settlement

import (
	apphttp "tripdesk_backend/internal/http"
	"tripdesk_backend/internal/processor"
	"tripdesk_backend/internal/settlement/handler"
	"tripdesk_backend/internal/settlement/repository"
	"tripdesk_backend/internal/settlement/service"
	"tripdesk_backend/platform/config"
	"tripdesk_backend/platform/logger"
	"tripdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the settlement domain module.
type Module struct {
	handler    *handler.Handler
	service    *service.Service
	repo       *repository.Repository
	webhookCfg config.WebhookConfig
}

// NewModule creates a new settlement module with all dependencies wired.
// The fulfillment dispatcher and event bus are injected afterwards via the
// service setters, since they depend on modules constructed later.
func NewModule(
	pool *pgxpool.Pool,
	proc processor.Port,
	quotes service.QuoteReader,
	quoteState service.QuoteStatusWriter,
	suppliers service.SupplierResolver,
	webhookCfg config.WebhookConfig,
	validate *validator.Validator,
	log *logger.Logger,
) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, proc, quotes, quoteState, suppliers, log)
	h := handler.New(svc, validate)

	return &Module{handler: h, service: svc, repo: repo, webhookCfg: webhookCfg}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "settlement"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the repository for adapters.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes registers the module's routes. The payment confirmation
// webhook lives under the machine-facing webhook group behind shared-key auth;
// the operator endpoints live under the authenticated group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	webhook := ctx.Webhooks.Group("")
	webhook.Use(handler.WebhookKeyAuth(m.webhookCfg))
	m.handler.RegisterWebhookRoutes(webhook)

	m.handler.RegisterRoutes(ctx.Protected.Group("/settlement"))
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
