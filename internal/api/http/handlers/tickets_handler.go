package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-crm/internal/api/dto"
	"github.com/spec-kit/helpdesk-crm/internal/auth"
	"github.com/spec-kit/helpdesk-crm/internal/domain"
	"github.com/spec-kit/helpdesk-crm/internal/repository"
	"github.com/spec-kit/helpdesk-crm/internal/service"
	apperrors "github.com/spec-kit/helpdesk-crm/pkg/util"
)

// TicketsHandler exposes ticket lifecycle operations.
type TicketsHandler struct {
	lifecycle *service.LifecycleService
}

// NewTicketsHandler returns a new handler instance.
func NewTicketsHandler(lifecycle *service.LifecycleService) *TicketsHandler {
	return &TicketsHandler{lifecycle: lifecycle}
}

// List returns tickets for the caller's tenant.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	filter := repository.TicketFilter{
		Limit:  parseIntQuery(c, "limit", 20),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if status := c.Query("status"); status != "" {
		filter.Statuses = []domain.TicketStatus{domain.TicketStatus(strings.ToUpper(status))}
	}
	if contactID := c.Query("contact_id"); contactID != "" {
		filter.ContactID = &contactID
	}
	if agentID := c.Query("agent_id"); agentID != "" {
		filter.AgentID = &agentID
	}

	tickets, err := h.lifecycle.ListTickets(c.UserContext(), principal.Tenant, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"tickets": dto.NewTicketListResponse(tickets, time.Now())})
}

// Get returns one ticket.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	ticket, err := h.lifecycle.GetTicket(c.UserContext(), principal.Tenant, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket, time.Now()))
}

// Close performs a manual close. Closing a closed ticket succeeds silently.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.CloseTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.CloseType == "" {
		req.CloseType = "resolved"
	}

	ticket, err := h.lifecycle.CloseTicket(c.UserContext(), principal.Tenant, c.Params("id"), req.CloseType)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket, time.Now()))
}

// CloseAll closes every open ticket for a contact.
func (h *TicketsHandler) CloseAll(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.CloseAllRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.ContactID == "" {
		return apperrors.NewValidationError("contact_id is required", nil)
	}
	if req.CloseType == "" {
		req.CloseType = "contact_closed"
	}

	closed, err := h.lifecycle.CloseAllForContact(c.UserContext(), principal.Tenant, req.ContactID, req.CloseType)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"closed": closed})
}

// Sweep triggers an auto-close pass for the caller's tenant. The periodic
// driver is external; this endpoint is the trigger surface.
func (h *TicketsHandler) Sweep(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.SweepRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.ThresholdMinutes <= 0 {
		return apperrors.NewValidationError("threshold_minutes must be positive", nil)
	}

	closed, err := h.lifecycle.SweepAutoClose(c.UserContext(), principal.Tenant,
		time.Duration(req.ThresholdMinutes)*time.Minute)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"closed": closed})
}

// Expiring lists tickets inside the about-to-expire window.
func (h *TicketsHandler) Expiring(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	warning := time.Duration(parseIntQuery(c, "warning_minutes", 60)) * time.Minute
	threshold := time.Duration(parseIntQuery(c, "threshold_minutes", 1440)) * time.Minute

	tickets, err := h.lifecycle.FindAboutToExpire(c.UserContext(), principal.Tenant, warning, threshold)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"tickets": dto.NewTicketListResponse(tickets, time.Now())})
}

func parseIntQuery(c *fiber.Ctx, key string, fallback int) int {
	val := c.Query(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
