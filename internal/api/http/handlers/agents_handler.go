package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-crm/internal/api/dto"
	"github.com/spec-kit/helpdesk-crm/internal/auth"
	"github.com/spec-kit/helpdesk-crm/internal/domain"
	"github.com/spec-kit/helpdesk-crm/internal/service"
	apperrors "github.com/spec-kit/helpdesk-crm/pkg/util"
)

// AgentsHandler exposes agent auth and reassignment migration.
type AgentsHandler struct {
	authService *service.AuthService
	lifecycle   *service.LifecycleService
}

// NewAgentsHandler returns a new handler instance.
func NewAgentsHandler(authService *service.AuthService, lifecycle *service.LifecycleService) *AgentsHandler {
	return &AgentsHandler{authService: authService, lifecycle: lifecycle}
}

// Register creates an agent account.
func (h *AgentsHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.TenantID == "" || req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("tenant_id, email and password are required", nil)
	}

	agent, err := h.authService.RegisterAgent(c.UserContext(), req.TenantID, req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"agent_id":  agent.ID,
		"tenant_id": agent.TenantID,
	})
}

// Login authenticates an agent.
func (h *AgentsHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	agent, token, expiresAt, err := h.authService.LoginAgent(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.LoginResponse{
		AgentID:   agent.ID,
		TenantID:  agent.TenantID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// Reassign migrates ticket and KPI ownership to another agent.
func (h *AgentsHandler) Reassign(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.ReassignAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.NewAgentID == "" {
		return apperrors.NewValidationError("new_agent_id is required", nil)
	}

	opts := service.ReassignOptions{TicketID: req.TicketID}
	if req.KpiType != nil {
		kpiType := domain.KpiType(*req.KpiType)
		opts.KpiType = &kpiType
	}

	result, err := h.lifecycle.ReassignAgent(c.UserContext(), principal.Tenant, c.Params("id"), req.NewAgentID, opts)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"tickets_moved": result.TicketsMoved,
		"events_moved":  result.EventsMoved,
	})
}
