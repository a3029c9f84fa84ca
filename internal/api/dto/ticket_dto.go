package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-crm/internal/domain"
)

// BindMessageRequest is the message-ingress payload.
type BindMessageRequest struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Direction   string `json:"direction"`
}

// CloseTicketRequest payload.
type CloseTicketRequest struct {
	CloseType string `json:"close_type"`
}

// CloseAllRequest payload.
type CloseAllRequest struct {
	ContactID string `json:"contact_id"`
	CloseType string `json:"close_type"`
}

// SweepRequest payload for a manually triggered sweep.
type SweepRequest struct {
	ThresholdMinutes int `json:"threshold_minutes"`
}

// ReassignAgentRequest payload.
type ReassignAgentRequest struct {
	NewAgentID string  `json:"new_agent_id"`
	KpiType    *string `json:"kpi_type,omitempty"`
	TicketID   *string `json:"ticket_id,omitempty"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID                string     `json:"id"`
	ContactID         string     `json:"contact_id"`
	AgentID           string     `json:"agent_id"`
	Status            string     `json:"status"`
	Subject           string     `json:"subject,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	CloseType         *string    `json:"close_type,omitempty"`
	MessageCount      int        `json:"message_count"`
	DurationMinutes   int        `json:"duration_minutes"`
	FirstAgentReplyAt *time.Time `json:"first_agent_reply_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(ticket *domain.Ticket, now time.Time) TicketResponse {
	return TicketResponse{
		ID:                ticket.ID,
		ContactID:         ticket.ContactID,
		AgentID:           ticket.AgentID,
		Status:            string(ticket.Status),
		Subject:           ticket.Subject,
		Notes:             ticket.Notes,
		CloseType:         ticket.CloseType,
		MessageCount:      ticket.MessageCount,
		DurationMinutes:   ticket.DurationMinutes(now),
		FirstAgentReplyAt: ticket.FirstAgentReplyAt,
		CreatedAt:         ticket.CreatedAt,
		UpdatedAt:         ticket.UpdatedAt,
		ClosedAt:          ticket.ClosedAt,
	}
}

// NewTicketListResponse maps a slice of tickets.
func NewTicketListResponse(tickets []domain.Ticket, now time.Time) []TicketResponse {
	result := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		result = append(result, NewTicketResponse(&tickets[i], now))
	}
	return result
}
