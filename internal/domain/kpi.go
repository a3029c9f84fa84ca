package domain

import "time"

// KpiType enumerates countable business actions.
type KpiType string

const (
	KpiNewTicket         KpiType = "NEW_TICKET"
	KpiClosedTicket      KpiType = "CLOSED_TICKET"
	KpiSentMessage       KpiType = "SENT_MESSAGE"
	KpiReceivedMessage   KpiType = "RECEIVED_MESSAGE"
	KpiFirstResponseTime KpiType = "FIRST_RESPONSE_TIME"
)

// KpiEvent is an immutable record of a single business action. Events are
// append-only: ownership may be bulk-reassigned during agent migration, but
// events are never edited or deleted.
type KpiEvent struct {
	ID          string
	TenantID    string
	UserID      *string
	Type        KpiType
	Value       int
	ContextData map[string]any
	TicketID    *string
	CreatedAt   time.Time
}

// KpiCounter is a denormalized running total per (user, kpiType). The event
// log is the source of truth; counters are maintained incrementally.
type KpiCounter struct {
	TenantID string
	UserID   string
	Type     KpiType
	Count    int64
}
