package domain

import "time"

// MessageDirection indicates who initiated a message.
type MessageDirection string

const (
	DirectionIncoming MessageDirection = "INCOMING"
	DirectionOutgoing MessageDirection = "OUTGOING"
)

// MessageRef is a read-only reference to a message owned by the delivery
// transport. The engine only routes it to a ticket; it never stores bodies.
type MessageRef struct {
	SenderID    string
	RecipientID string
	Direction   MessageDirection
	CreatedAt   time.Time
}
