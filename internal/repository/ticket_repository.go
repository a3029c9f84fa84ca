package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-crm/internal/domain"
)

const ticketColumns = `id, tenant_id, contact_id, agent_id, status, subject, notes, close_type,
               message_count, first_agent_reply_at, expiry_warned_at, created_at, updated_at, closed_at`

// TicketFilter captures listing parameters.
type TicketFilter struct {
	TenantID    string
	ContactID   *string
	AgentID     *string
	Statuses    []domain.TicketStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	FindOpenByPair(ctx context.Context, tenantID, first, second string) (*domain.Ticket, error)
	FindLatestClosedByPair(ctx context.Context, tenantID, first, second string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListOpenByContact(ctx context.Context, tenantID, contactID string) ([]domain.Ticket, error)
	ListStaleOpen(ctx context.Context, tenantID string, before time.Time) ([]domain.Ticket, error)
	ListExpiring(ctx context.Context, tenantID string, oldest, newest time.Time) ([]domain.Ticket, error)
	MarkExpiryWarned(ctx context.Context, ticketID string, at time.Time) error
	TouchActivity(ctx context.Context, ticketID string) error
	SetFirstAgentReply(ctx context.Context, ticketID string, at time.Time) (bool, error)
	ReassignOpenTickets(ctx context.Context, tenantID, oldAgentID, newAgentID string) (int64, error)
	AcquirePairLock(ctx context.Context, key string) error
	ListTenantsWithOpenTickets(ctx context.Context) ([]string, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) db(ctx context.Context) Querier {
	return querierFrom(ctx, r.pool)
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (tenant_id, contact_id, agent_id, status, subject, notes, close_type)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, message_count, created_at, updated_at`
	return r.db(ctx).QueryRow(ctx, query,
		ticket.TenantID,
		ticket.ContactID,
		ticket.AgentID,
		ticket.Status,
		ticket.Subject,
		ticket.Notes,
		ticket.CloseType,
	).Scan(&ticket.ID, &ticket.MessageCount, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET agent_id=$1, status=$2, subject=$3, notes=$4, close_type=$5,
            expiry_warned_at=$6, closed_at=$7, updated_at=NOW()
        WHERE id=$8`
	cmd, err := r.db(ctx).Exec(ctx, query,
		ticket.AgentID,
		ticket.Status,
		ticket.Subject,
		ticket.Notes,
		ticket.CloseType,
		ticket.ExpiryWarnedAt,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

// GetByIDForUpdate locks the ticket row for the duration of the ambient
// transaction so a racing close observes the committed status.
func (r *ticketRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1 FOR UPDATE`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

// FindOpenByPair looks up the open ticket between two identities regardless of
// which side is the agent. Two indexed lookups combined with a logical OR keep
// the query plans trivial.
func (r *ticketRepository) FindOpenByPair(ctx context.Context, tenantID, first, second string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE tenant_id=$1 AND status=$2 AND contact_id=$3 AND agent_id=$4
        LIMIT 1`, ticketColumns)

	ticket, err := r.fetchSingle(ctx, query, tenantID, domain.TicketStatusOpen, first, second)
	if err == nil {
		return ticket, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	ticket, err = r.fetchSingle(ctx, query, tenantID, domain.TicketStatusOpen, second, first)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// FindLatestClosedByPair returns the most recently closed ticket between the
// pair, for subject/notes continuation. Closed tickets are never reopened.
func (r *ticketRepository) FindLatestClosedByPair(ctx context.Context, tenantID, first, second string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE tenant_id=$1 AND status=$2 AND contact_id=$3 AND agent_id=$4
        ORDER BY closed_at DESC NULLS LAST, updated_at DESC
        LIMIT 1`, ticketColumns)

	var candidates []*domain.Ticket
	for _, pair := range [][2]string{{first, second}, {second, first}} {
		ticket, err := r.fetchSingle(ctx, query, tenantID, domain.TicketStatusClosed, pair[0], pair[1])
		if err == pgx.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, ticket)
	}

	var latest *domain.Ticket
	for _, candidate := range candidates {
		if latest == nil || closedSortKey(candidate).After(closedSortKey(latest)) {
			latest = candidate
		}
	}
	return latest, nil
}

func closedSortKey(t *domain.Ticket) time.Time {
	if t.ClosedAt != nil {
		return *t.ClosedAt
	}
	return t.UpdatedAt
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"tenant_id=$1"}
	args := []any{filter.TenantID}

	if filter.ContactID != nil {
		args = append(args, *filter.ContactID)
		clauses = append(clauses, fmt.Sprintf("contact_id=$%d", len(args)))
	}
	if filter.AgentID != nil {
		args = append(args, *filter.AgentID)
		clauses = append(clauses, fmt.Sprintf("agent_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	return r.fetchMany(ctx, query, args...)
}

func (r *ticketRepository) ListOpenByContact(ctx context.Context, tenantID, contactID string) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE tenant_id=$1 AND contact_id=$2 AND status=$3
        ORDER BY created_at ASC`, ticketColumns)
	return r.fetchMany(ctx, query, tenantID, contactID, domain.TicketStatusOpen)
}

func (r *ticketRepository) ListStaleOpen(ctx context.Context, tenantID string, before time.Time) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE tenant_id=$1 AND status=$2 AND updated_at < $3
        ORDER BY updated_at ASC`, ticketColumns)
	return r.fetchMany(ctx, query, tenantID, domain.TicketStatusOpen, before)
}

// ListExpiring returns open tickets whose last activity falls in
// [oldest, newest) and that have not been warned yet.
func (r *ticketRepository) ListExpiring(ctx context.Context, tenantID string, oldest, newest time.Time) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE tenant_id=$1 AND status=$2 AND updated_at >= $3 AND updated_at < $4
          AND expiry_warned_at IS NULL
        ORDER BY updated_at ASC`, ticketColumns)
	return r.fetchMany(ctx, query, tenantID, domain.TicketStatusOpen, oldest, newest)
}

func (r *ticketRepository) MarkExpiryWarned(ctx context.Context, ticketID string, at time.Time) error {
	const query = `UPDATE tickets SET expiry_warned_at=$1 WHERE id=$2 AND expiry_warned_at IS NULL`
	_, err := r.db(ctx).Exec(ctx, query, at, ticketID)
	return err
}

// TouchActivity bumps updated_at and the message count when a message binds to
// the ticket.
func (r *ticketRepository) TouchActivity(ctx context.Context, ticketID string) error {
	const query = `
        UPDATE tickets SET message_count=message_count+1, expiry_warned_at=NULL, updated_at=NOW()
        WHERE id=$1`
	cmd, err := r.db(ctx).Exec(ctx, query, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetFirstAgentReply stamps the first outgoing agent reply. Returns true only
// for the write that actually set it, so first-response time is recorded once.
func (r *ticketRepository) SetFirstAgentReply(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	const query = `
        UPDATE tickets SET first_agent_reply_at=$1
        WHERE id=$2 AND first_agent_reply_at IS NULL`
	cmd, err := r.db(ctx).Exec(ctx, query, at, ticketID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) ReassignOpenTickets(ctx context.Context, tenantID, oldAgentID, newAgentID string) (int64, error) {
	const query = `
        UPDATE tickets SET agent_id=$1
        WHERE tenant_id=$2 AND agent_id=$3 AND status=$4`
	cmd, err := r.db(ctx).Exec(ctx, query, newAgentID, tenantID, oldAgentID, domain.TicketStatusOpen)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// AcquirePairLock serializes creation for a normalized pair key using a
// transaction-scoped advisory lock. Must run inside an ambient transaction.
func (r *ticketRepository) AcquirePairLock(ctx context.Context, key string) error {
	_, err := r.db(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return err
}

func (r *ticketRepository) ListTenantsWithOpenTickets(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT tenant_id FROM tickets WHERE status=$1`
	rows, err := r.db(ctx).Query(ctx, query, domain.TicketStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicket(r.db(ctx).QueryRow(ctx, query, args...), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) fetchMany(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.TenantID,
		&ticket.ContactID,
		&ticket.AgentID,
		&ticket.Status,
		&ticket.Subject,
		&ticket.Notes,
		&ticket.CloseType,
		&ticket.MessageCount,
		&ticket.FirstAgentReplyAt,
		&ticket.ExpiryWarnedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	)
}
