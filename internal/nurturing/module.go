// Package nurturing provides the drip campaign domain module.
package nurturing

import (
	"closing_backend/internal/events"
	apphttp "closing_backend/internal/http"
	"closing_backend/internal/nurturing/channel"
	"closing_backend/internal/nurturing/handler"
	"closing_backend/internal/nurturing/repository"
	"closing_backend/internal/nurturing/service"
	"closing_backend/platform/config"
	"closing_backend/platform/logger"
	"closing_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the nurturing domain module
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// ModuleConfig combines the config interfaces the module needs.
type ModuleConfig interface {
	config.NurturingConfig
}

// NewModule creates a new nurturing module with all dependencies wired.
// The channel registry and idempotency guard are built by the composition
// root so the API and scheduler binaries can share the wiring.
func NewModule(pool *pgxpool.Pool, leads service.LeadDirectory, channels *channel.Registry,
	guard *channel.IdempotencyGuard, eventBus *events.InMemoryBus, cfg ModuleConfig,
	val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.NewService(repo, leads, channels, guard, eventBus, cfg, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "nurturing"
}

// Service returns the service layer for external use
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the persistence layer for the seed loader
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// SetDispatchTrigger wires the queue client for on-demand dispatch passes.
func (m *Module) SetDispatchTrigger(trigger service.DispatchTrigger) {
	m.service.SetDispatchTrigger(trigger)
}

// RegisterHandlers subscribes the module to domain events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	m.service.RegisterEventHandlers(bus)
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	nurturing := ctx.Protected.Group("/nurturing")
	m.handler.RegisterRoutes(nurturing)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
