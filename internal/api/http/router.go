package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-crm/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-crm/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Agents         *handlers.AgentsHandler
	Messages       *handlers.MessagesHandler
	Tickets        *handlers.TicketsHandler
	Kpi            *handlers.KpiHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/agents/register", cfg.Agents.Register)
	authGroup.Post("/agents/login", cfg.Agents.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	protected.Post("/messages", cfg.Messages.Bind)

	protected.Get("/tickets", cfg.Tickets.List)
	protected.Get("/tickets/expiring", cfg.Tickets.Expiring)
	protected.Get("/tickets/:id", cfg.Tickets.Get)
	protected.Post("/tickets/:id/close", cfg.Tickets.Close)
	protected.Post("/tickets/close-all", cfg.Tickets.CloseAll)
	protected.Post("/tickets/sweep", cfg.Tickets.Sweep)

	protected.Post("/agents/:id/reassign", cfg.Agents.Reassign)
	protected.Get("/agents/:id/kpi", cfg.Kpi.AgentTotals)

	protected.Get("/kpi/summary", cfg.Kpi.Summary)
	protected.Get("/kpi/ranking", cfg.Kpi.Ranking)
}
