package domain

import "time"

// Agent models an internal tenant-employed user who owns tickets.
type Agent struct {
	ID           string
	TenantID     string
	Name         string
	Email        string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
