package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-crm/internal/domain"
)

// KpiAggregateQuery scopes dashboard aggregation over the event log.
type KpiAggregateQuery struct {
	TenantID string
	UserID   *string
	Type     *domain.KpiType
	From     *time.Time
	To       *time.Time
}

// KpiAggregateResult carries sum/average/count of event values.
type KpiAggregateResult struct {
	Sum     int64
	Average float64
	Count   int64
}

// KpiUserRank is one entry of the agent leaderboard.
type KpiUserRank struct {
	UserID string
	Count  int64
}

// KpiEventRepository stores the append-only KPI event log.
type KpiEventRepository interface {
	Create(ctx context.Context, event *domain.KpiEvent) error
	ReassignOwner(ctx context.Context, tenantID, oldUserID, newUserID string, kpiType *domain.KpiType, ticketID *string) (map[domain.KpiType]int64, error)
	Aggregate(ctx context.Context, query KpiAggregateQuery) (*KpiAggregateResult, error)
	RankUsers(ctx context.Context, tenantID string, kpiType domain.KpiType, from, to time.Time, limit int) ([]KpiUserRank, error)
}

type kpiEventRepository struct {
	pool *pgxpool.Pool
}

// NewKpiEventRepository builds repository.
func NewKpiEventRepository(pool *pgxpool.Pool) KpiEventRepository {
	return &kpiEventRepository{pool: pool}
}

func (r *kpiEventRepository) db(ctx context.Context) Querier {
	return querierFrom(ctx, r.pool)
}

func (r *kpiEventRepository) Create(ctx context.Context, event *domain.KpiEvent) error {
	const query = `
        INSERT INTO kpi_events (tenant_id, user_id, kpi_type, value, context_data, ticket_id)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.db(ctx).QueryRow(ctx, query,
		event.TenantID,
		event.UserID,
		event.Type,
		event.Value,
		event.ContextData,
		event.TicketID,
	).Scan(&event.ID, &event.CreatedAt)
}

// ReassignOwner transfers event ownership from one agent to another. An
// optional kpiType narrows the move to one category; an optional ticketID
// narrows it to events whose context_data contains an exact
// {"ticketId": <id>} pair (JSONB containment). Returns moved counts per type
// so counters can be transferred consistently.
func (r *kpiEventRepository) ReassignOwner(ctx context.Context, tenantID, oldUserID, newUserID string, kpiType *domain.KpiType, ticketID *string) (map[domain.KpiType]int64, error) {
	clauses := []string{"tenant_id=$2", "user_id=$3"}
	args := []any{newUserID, tenantID, oldUserID}

	if kpiType != nil {
		args = append(args, *kpiType)
		clauses = append(clauses, fmt.Sprintf("kpi_type=$%d", len(args)))
	}
	if ticketID != nil {
		args = append(args, *ticketID)
		clauses = append(clauses, fmt.Sprintf("context_data @> jsonb_build_object('ticketId', $%d::text)", len(args)))
	}

	query := fmt.Sprintf(`
        UPDATE kpi_events SET user_id=$1
        WHERE %s
        RETURNING kpi_type`, strings.Join(clauses, " AND "))

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	moved := make(map[domain.KpiType]int64)
	for rows.Next() {
		var typ domain.KpiType
		if err := rows.Scan(&typ); err != nil {
			return nil, err
		}
		moved[typ]++
	}
	return moved, rows.Err()
}

func (r *kpiEventRepository) Aggregate(ctx context.Context, query KpiAggregateQuery) (*KpiAggregateResult, error) {
	clauses := []string{"tenant_id=$1"}
	args := []any{query.TenantID}

	if query.UserID != nil {
		args = append(args, *query.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if query.Type != nil {
		args = append(args, *query.Type)
		clauses = append(clauses, fmt.Sprintf("kpi_type=$%d", len(args)))
	}
	if query.From != nil {
		args = append(args, *query.From)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if query.To != nil {
		args = append(args, *query.To)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	sql := fmt.Sprintf(`
        SELECT COALESCE(SUM(value),0), COALESCE(AVG(value),0), COUNT(*)
        FROM kpi_events WHERE %s`, strings.Join(clauses, " AND "))

	var result KpiAggregateResult
	if err := r.db(ctx).QueryRow(ctx, sql, args...).Scan(&result.Sum, &result.Average, &result.Count); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *kpiEventRepository) RankUsers(ctx context.Context, tenantID string, kpiType domain.KpiType, from, to time.Time, limit int) ([]KpiUserRank, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`
        SELECT user_id, COUNT(*) AS events
        FROM kpi_events
        WHERE tenant_id=$1 AND kpi_type=$2 AND user_id IS NOT NULL AND created_at >= $3 AND created_at <= $4
        GROUP BY user_id
        ORDER BY events DESC
        LIMIT %d`, limit)

	rows, err := r.db(ctx).Query(ctx, query, tenantID, kpiType, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranking []KpiUserRank
	for rows.Next() {
		var entry KpiUserRank
		if err := rows.Scan(&entry.UserID, &entry.Count); err != nil {
			return nil, err
		}
		ranking = append(ranking, entry)
	}
	return ranking, rows.Err()
}
