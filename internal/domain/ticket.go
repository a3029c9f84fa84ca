package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "OPEN"
	TicketStatusClosed TicketStatus = "CLOSED"
)

// CloseTypeAuto tags tickets closed by the inactivity sweep.
const CloseTypeAuto = "auto"

// Ticket is the unit of conversation ownership between one agent and one
// client contact. A ticket never changes tenant; tenancy follows the agent.
type Ticket struct {
	ID                string
	TenantID          string
	ContactID         string
	AgentID           string
	Status            TicketStatus
	Subject           string
	Notes             string
	CloseType         *string
	MessageCount      int
	FirstAgentReplyAt *time.Time
	ExpiryWarnedAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ClosedAt          *time.Time
}

// IsClosed reports whether the ticket reached its terminal business state.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed
}

// DurationMinutes returns elapsed minutes between creation and close-or-now.
func (t *Ticket) DurationMinutes(now time.Time) int {
	end := now
	if t.ClosedAt != nil {
		end = *t.ClosedAt
	}
	if end.Before(t.CreatedAt) {
		return 0
	}
	return int(end.Sub(t.CreatedAt) / time.Minute)
}
