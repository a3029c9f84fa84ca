package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketUpdated       EventType = "ticket_updated"
	EventTicketClosed        EventType = "ticket_closed"
	EventTicketExpiryWarning EventType = "ticket_expiry_warning"
	EventAgentReassigned     EventType = "agent_reassigned"
)

// Event represents a domain event emitted by services. Events are published
// only after the owning transaction has committed; consumers must tolerate
// at-least-once delivery.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TenantID  string      `json:"tenant_id"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	ContactID string `json:"contact_id"`
	AgentID   string `json:"agent_id"`
	Subject   string `json:"subject,omitempty"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	AgentID      string `json:"agent_id"`
	MessageCount int    `json:"message_count"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	AgentID         string `json:"agent_id"`
	CloseType       string `json:"close_type"`
	DurationMinutes int    `json:"duration_minutes"`
}

// TicketExpiryWarningPayload payload.
type TicketExpiryWarningPayload struct {
	AgentID  string    `json:"agent_id"`
	ClosesBy time.Time `json:"closes_by"`
}

// AgentReassignedPayload payload.
type AgentReassignedPayload struct {
	OldAgentID   string `json:"old_agent_id"`
	NewAgentID   string `json:"new_agent_id"`
	TicketsMoved int64  `json:"tickets_moved"`
	EventsMoved  int64  `json:"events_moved"`
}
