package dto

import "time"

// RegisterAgentRequest payload.
type RegisterAgentRequest struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse payload.
type LoginResponse struct {
	AgentID   string    `json:"agent_id"`
	TenantID  string    `json:"tenant_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
