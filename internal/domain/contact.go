package domain

import "time"

// ContactStatus represents lifecycle states for a client contact.
type ContactStatus string

const (
	ContactStatusActive      ContactStatus = "ACTIVE"
	ContactStatusDeactivated ContactStatus = "DEACTIVATED"
)

// Contact is the external party (customer) in a conversation.
type Contact struct {
	ID        string
	TenantID  string
	Name      string
	Phone     string
	Status    ContactStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
