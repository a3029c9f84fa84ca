package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-crm/internal/domain"
)

// AgentRepository defines persistence access for internal agents.
type AgentRepository interface {
	Create(ctx context.Context, agent *domain.Agent) error
	Update(ctx context.Context, agent *domain.Agent) error
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	GetByEmail(ctx context.Context, email string) (*domain.Agent, error)
	GetByIDInTenant(ctx context.Context, tenantID, id string) (*domain.Agent, error)
}

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository returns a Postgres-backed implementation.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

func (r *agentRepository) db(ctx context.Context) Querier {
	return querierFrom(ctx, r.pool)
}

func (r *agentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	const query = `
        INSERT INTO agents (tenant_id, name, email, password_hash, active)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return r.db(ctx).QueryRow(ctx, query,
		agent.TenantID,
		agent.Name,
		agent.Email,
		agent.PasswordHash,
		agent.Active,
	).Scan(&agent.ID, &agent.CreatedAt, &agent.UpdatedAt)
}

func (r *agentRepository) Update(ctx context.Context, agent *domain.Agent) error {
	const query = `
        UPDATE agents SET name=$1, email=$2, password_hash=$3, active=$4, updated_at=NOW()
        WHERE id=$5`
	cmd, err := r.db(ctx).Exec(ctx, query,
		agent.Name,
		agent.Email,
		agent.PasswordHash,
		agent.Active,
		agent.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *agentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	const query = `
        SELECT id, tenant_id, name, email, password_hash, active, created_at, updated_at
        FROM agents WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *agentRepository) GetByEmail(ctx context.Context, email string) (*domain.Agent, error) {
	const query = `
        SELECT id, tenant_id, name, email, password_hash, active, created_at, updated_at
        FROM agents WHERE email=$1`
	return r.fetchSingle(ctx, query, email)
}

// GetByIDInTenant scopes the lookup to one tenant; other tenants' agents are
// indistinguishable from missing ones.
func (r *agentRepository) GetByIDInTenant(ctx context.Context, tenantID, id string) (*domain.Agent, error) {
	const query = `
        SELECT id, tenant_id, name, email, password_hash, active, created_at, updated_at
        FROM agents WHERE tenant_id=$1 AND id=$2`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *agentRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Agent, error) {
	var agent domain.Agent
	if err := r.db(ctx).QueryRow(ctx, query, args...).Scan(
		&agent.ID,
		&agent.TenantID,
		&agent.Name,
		&agent.Email,
		&agent.PasswordHash,
		&agent.Active,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &agent, nil
}
