package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-crm/internal/api/dto"
	"github.com/spec-kit/helpdesk-crm/internal/auth"
	"github.com/spec-kit/helpdesk-crm/internal/domain"
	"github.com/spec-kit/helpdesk-crm/internal/service"
	apperrors "github.com/spec-kit/helpdesk-crm/pkg/util"
)

// MessagesHandler is the ingress for inbound/outbound message events.
type MessagesHandler struct {
	routing *service.RoutingService
}

// NewMessagesHandler returns a new handler instance.
func NewMessagesHandler(routing *service.RoutingService) *MessagesHandler {
	return &MessagesHandler{routing: routing}
}

// Bind resolves the ticket for a message and records its KPIs.
func (h *MessagesHandler) Bind(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.BindMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.SenderID == "" || req.RecipientID == "" {
		return apperrors.NewValidationError("sender_id and recipient_id are required", nil)
	}

	direction := domain.DirectionIncoming
	if strings.EqualFold(req.Direction, string(domain.DirectionOutgoing)) {
		direction = domain.DirectionOutgoing
	}

	ticket, err := h.routing.BindMessage(c.UserContext(), principal.Tenant, domain.MessageRef{
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Direction:   direction,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(dto.NewTicketResponse(ticket, time.Now()))
}
