package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-crm/internal/domain"
)

// ContactRepository defines persistence access for client contacts.
type ContactRepository interface {
	Create(ctx context.Context, contact *domain.Contact) error
	Update(ctx context.Context, contact *domain.Contact) error
	GetByID(ctx context.Context, id string) (*domain.Contact, error)
	GetByIDInTenant(ctx context.Context, tenantID, id string) (*domain.Contact, error)
}

type contactRepository struct {
	pool *pgxpool.Pool
}

// NewContactRepository returns a Postgres-backed implementation.
func NewContactRepository(pool *pgxpool.Pool) ContactRepository {
	return &contactRepository{pool: pool}
}

func (r *contactRepository) db(ctx context.Context) Querier {
	return querierFrom(ctx, r.pool)
}

func (r *contactRepository) Create(ctx context.Context, contact *domain.Contact) error {
	const query = `
        INSERT INTO contacts (tenant_id, name, phone, status)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.db(ctx).QueryRow(ctx, query,
		contact.TenantID,
		contact.Name,
		contact.Phone,
		contact.Status,
	).Scan(&contact.ID, &contact.CreatedAt, &contact.UpdatedAt)
}

func (r *contactRepository) Update(ctx context.Context, contact *domain.Contact) error {
	const query = `
        UPDATE contacts SET name=$1, phone=$2, status=$3, updated_at=NOW()
        WHERE id=$4`
	cmd, err := r.db(ctx).Exec(ctx, query,
		contact.Name,
		contact.Phone,
		contact.Status,
		contact.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *contactRepository) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	const query = `
        SELECT id, tenant_id, name, phone, status, created_at, updated_at
        FROM contacts WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *contactRepository) GetByIDInTenant(ctx context.Context, tenantID, id string) (*domain.Contact, error) {
	const query = `
        SELECT id, tenant_id, name, phone, status, created_at, updated_at
        FROM contacts WHERE tenant_id=$1 AND id=$2`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *contactRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Contact, error) {
	var contact domain.Contact
	if err := r.db(ctx).QueryRow(ctx, query, args...).Scan(
		&contact.ID,
		&contact.TenantID,
		&contact.Name,
		&contact.Phone,
		&contact.Status,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &contact, nil
}
