package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-crm/internal/domain"
)

// KpiCounterRepository maintains denormalized running totals per
// (user, kpiType). All updates are atomic upserts so concurrent recorders
// never lose increments.
type KpiCounterRepository interface {
	Apply(ctx context.Context, tenantID, userID string, kpiType domain.KpiType, delta int64) error
	Get(ctx context.Context, tenantID, userID string, kpiType domain.KpiType) (*domain.KpiCounter, error)
	ListByUser(ctx context.Context, tenantID, userID string) ([]domain.KpiCounter, error)
}

type kpiCounterRepository struct {
	pool *pgxpool.Pool
}

// NewKpiCounterRepository builds repository.
func NewKpiCounterRepository(pool *pgxpool.Pool) KpiCounterRepository {
	return &kpiCounterRepository{pool: pool}
}

func (r *kpiCounterRepository) db(ctx context.Context) Querier {
	return querierFrom(ctx, r.pool)
}

// Apply increments (or decrements) a counter atomically, creating the row on
// first use. Counts never go below zero.
func (r *kpiCounterRepository) Apply(ctx context.Context, tenantID, userID string, kpiType domain.KpiType, delta int64) error {
	const query = `
        INSERT INTO kpi_counters (tenant_id, user_id, kpi_type, count)
        VALUES ($1,$2,$3,GREATEST($4,0))
        ON CONFLICT (tenant_id, user_id, kpi_type)
        DO UPDATE SET count = GREATEST(kpi_counters.count + $4, 0), updated_at = NOW()`
	_, err := r.db(ctx).Exec(ctx, query, tenantID, userID, kpiType, delta)
	return err
}

func (r *kpiCounterRepository) Get(ctx context.Context, tenantID, userID string, kpiType domain.KpiType) (*domain.KpiCounter, error) {
	const query = `
        SELECT tenant_id, user_id, kpi_type, count
        FROM kpi_counters WHERE tenant_id=$1 AND user_id=$2 AND kpi_type=$3`
	var counter domain.KpiCounter
	err := r.db(ctx).QueryRow(ctx, query, tenantID, userID, kpiType).Scan(
		&counter.TenantID,
		&counter.UserID,
		&counter.Type,
		&counter.Count,
	)
	if err == pgx.ErrNoRows {
		return &domain.KpiCounter{TenantID: tenantID, UserID: userID, Type: kpiType, Count: 0}, nil
	}
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

func (r *kpiCounterRepository) ListByUser(ctx context.Context, tenantID, userID string) ([]domain.KpiCounter, error) {
	const query = `
        SELECT tenant_id, user_id, kpi_type, count
        FROM kpi_counters WHERE tenant_id=$1 AND user_id=$2 ORDER BY kpi_type ASC`
	rows, err := r.db(ctx).Query(ctx, query, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.KpiCounter
	for rows.Next() {
		var counter domain.KpiCounter
		if err := rows.Scan(&counter.TenantID, &counter.UserID, &counter.Type, &counter.Count); err != nil {
			return nil, err
		}
		result = append(result, counter)
	}
	return result, rows.Err()
}
