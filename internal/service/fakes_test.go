package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/helpdesk-crm/internal/domain"
	"github.com/spec-kit/helpdesk-crm/internal/repository"
)

// passthroughTx runs the function without a real transaction.
type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]domain.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]domain.Ticket)}
}

func (f *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ticket.Status == domain.TicketStatusOpen {
		for _, existing := range f.tickets {
			if existing.Status == domain.TicketStatusOpen &&
				existing.TenantID == ticket.TenantID &&
				samePair(existing, ticket.ContactID, ticket.AgentID) {
				return &pgconn.PgError{Code: "23505", ConstraintName: "tickets_open_pair_uniq"}
			}
		}
	}
	now := time.Now()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	f.tickets[ticket.ID] = *ticket
	return nil
}

func (f *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	stored := *ticket
	f.tickets[ticket.ID] = stored
	return nil
}

func (f *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := ticket
	return &copied, nil
}

func (f *fakeTicketRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeTicketRepo) FindOpenByPair(_ context.Context, tenantID, first, second string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ticket := range f.tickets {
		if ticket.TenantID == tenantID && ticket.Status == domain.TicketStatusOpen && samePair(ticket, first, second) {
			copied := ticket
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeTicketRepo) FindLatestClosedByPair(_ context.Context, tenantID, first, second string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.Ticket
	for _, ticket := range f.tickets {
		if ticket.TenantID != tenantID || ticket.Status != domain.TicketStatusClosed || !samePair(ticket, first, second) {
			continue
		}
		copied := ticket
		if latest == nil || closedAfter(&copied, latest) {
			latest = &copied
		}
	}
	return latest, nil
}

func (f *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range f.tickets {
		if ticket.TenantID != filter.TenantID {
			continue
		}
		if filter.ContactID != nil && ticket.ContactID != *filter.ContactID {
			continue
		}
		if filter.AgentID != nil && ticket.AgentID != *filter.AgentID {
			continue
		}
		if len(filter.Statuses) > 0 {
			matched := false
			for _, status := range filter.Statuses {
				if ticket.Status == status {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		result = append(result, ticket)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return result, nil
}

func (f *fakeTicketRepo) ListOpenByContact(_ context.Context, tenantID, contactID string) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range f.tickets {
		if ticket.TenantID == tenantID && ticket.ContactID == contactID && ticket.Status == domain.TicketStatusOpen {
			result = append(result, ticket)
		}
	}
	return result, nil
}

func (f *fakeTicketRepo) ListStaleOpen(_ context.Context, tenantID string, before time.Time) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range f.tickets {
		if ticket.TenantID == tenantID && ticket.Status == domain.TicketStatusOpen && ticket.UpdatedAt.Before(before) {
			result = append(result, ticket)
		}
	}
	return result, nil
}

func (f *fakeTicketRepo) ListExpiring(_ context.Context, tenantID string, oldest, newest time.Time) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range f.tickets {
		if ticket.TenantID != tenantID || ticket.Status != domain.TicketStatusOpen || ticket.ExpiryWarnedAt != nil {
			continue
		}
		if !ticket.UpdatedAt.Before(oldest) && ticket.UpdatedAt.Before(newest) {
			result = append(result, ticket)
		}
	}
	return result, nil
}

func (f *fakeTicketRepo) MarkExpiryWarned(_ context.Context, ticketID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	if ticket.ExpiryWarnedAt == nil {
		ticket.ExpiryWarnedAt = &at
		f.tickets[ticketID] = ticket
	}
	return nil
}

func (f *fakeTicketRepo) TouchActivity(_ context.Context, ticketID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.MessageCount++
	ticket.ExpiryWarnedAt = nil
	ticket.UpdatedAt = time.Now()
	f.tickets[ticketID] = ticket
	return nil
}

func (f *fakeTicketRepo) SetFirstAgentReply(_ context.Context, ticketID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[ticketID]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if ticket.FirstAgentReplyAt != nil {
		return false, nil
	}
	ticket.FirstAgentReplyAt = &at
	f.tickets[ticketID] = ticket
	return true, nil
}

func (f *fakeTicketRepo) ReassignOpenTickets(_ context.Context, tenantID, oldAgentID, newAgentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var moved int64
	for id, ticket := range f.tickets {
		if ticket.TenantID == tenantID && ticket.AgentID == oldAgentID && ticket.Status == domain.TicketStatusOpen {
			ticket.AgentID = newAgentID
			ticket.UpdatedAt = time.Now()
			f.tickets[id] = ticket
			moved++
		}
	}
	return moved, nil
}

func (f *fakeTicketRepo) AcquirePairLock(context.Context, string) error { return nil }

func (f *fakeTicketRepo) ListTenantsWithOpenTickets(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]struct{})
	var tenants []string
	for _, ticket := range f.tickets {
		if ticket.Status != domain.TicketStatusOpen {
			continue
		}
		if _, ok := seen[ticket.TenantID]; ok {
			continue
		}
		seen[ticket.TenantID] = struct{}{}
		tenants = append(tenants, ticket.TenantID)
	}
	return tenants, nil
}

func (f *fakeTicketRepo) all() []domain.Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]domain.Ticket, 0, len(f.tickets))
	for _, ticket := range f.tickets {
		result = append(result, ticket)
	}
	return result
}

func samePair(ticket domain.Ticket, first, second string) bool {
	return (ticket.ContactID == first && ticket.AgentID == second) ||
		(ticket.ContactID == second && ticket.AgentID == first)
}

func closedAfter(a, b *domain.Ticket) bool {
	if a.ClosedAt == nil || b.ClosedAt == nil {
		return b.ClosedAt == nil
	}
	return a.ClosedAt.After(*b.ClosedAt)
}

type fakeAgentRepo struct {
	mu     sync.Mutex
	agents map[string]domain.Agent
}

func newFakeAgentRepo() *fakeAgentRepo {
	return &fakeAgentRepo{agents: make(map[string]domain.Agent)}
}

func (f *fakeAgentRepo) add(agent domain.Agent) domain.Agent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	f.agents[agent.ID] = agent
	return agent
}

func (f *fakeAgentRepo) Create(_ context.Context, agent *domain.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.agents {
		if strings.EqualFold(existing.Email, agent.Email) {
			return &pgconn.PgError{Code: "23505"}
		}
	}
	agent.ID = uuid.NewString()
	agent.CreatedAt = time.Now()
	agent.UpdatedAt = agent.CreatedAt
	f.agents[agent.ID] = *agent
	return nil
}

func (f *fakeAgentRepo) Update(_ context.Context, agent *domain.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.agents[agent.ID]; !ok {
		return pgx.ErrNoRows
	}
	f.agents[agent.ID] = *agent
	return nil
}

func (f *fakeAgentRepo) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	agent, ok := f.agents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := agent
	return &copied, nil
}

func (f *fakeAgentRepo) GetByEmail(_ context.Context, email string) (*domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, agent := range f.agents {
		if strings.EqualFold(agent.Email, email) {
			copied := agent
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeAgentRepo) GetByIDInTenant(_ context.Context, tenantID, id string) (*domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	agent, ok := f.agents[id]
	if !ok || agent.TenantID != tenantID {
		return nil, pgx.ErrNoRows
	}
	copied := agent
	return &copied, nil
}

type fakeContactRepo struct {
	mu       sync.Mutex
	contacts map[string]domain.Contact
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{contacts: make(map[string]domain.Contact)}
}

func (f *fakeContactRepo) add(contact domain.Contact) domain.Contact {
	f.mu.Lock()
	defer f.mu.Unlock()
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	if contact.Status == "" {
		contact.Status = domain.ContactStatusActive
	}
	f.contacts[contact.ID] = contact
	return contact
}

func (f *fakeContactRepo) Create(_ context.Context, contact *domain.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	contact.ID = uuid.NewString()
	contact.CreatedAt = time.Now()
	contact.UpdatedAt = contact.CreatedAt
	f.contacts[contact.ID] = *contact
	return nil
}

func (f *fakeContactRepo) Update(_ context.Context, contact *domain.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.contacts[contact.ID]; !ok {
		return pgx.ErrNoRows
	}
	f.contacts[contact.ID] = *contact
	return nil
}

func (f *fakeContactRepo) GetByID(_ context.Context, id string) (*domain.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	contact, ok := f.contacts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := contact
	return &copied, nil
}

func (f *fakeContactRepo) GetByIDInTenant(_ context.Context, tenantID, id string) (*domain.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	contact, ok := f.contacts[id]
	if !ok || contact.TenantID != tenantID {
		return nil, pgx.ErrNoRows
	}
	copied := contact
	return &copied, nil
}

type fakeKpiEventRepo struct {
	mu     sync.Mutex
	events []domain.KpiEvent
}

func newFakeKpiEventRepo() *fakeKpiEventRepo {
	return &fakeKpiEventRepo{}
}

func (f *fakeKpiEventRepo) Create(_ context.Context, event *domain.KpiEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event.ID = uuid.NewString()
	event.CreatedAt = time.Now()
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeKpiEventRepo) ReassignOwner(_ context.Context, tenantID, oldUserID, newUserID string, kpiType *domain.KpiType, ticketID *string) (map[domain.KpiType]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	moved := make(map[domain.KpiType]int64)
	for i := range f.events {
		event := &f.events[i]
		if event.TenantID != tenantID || event.UserID == nil || *event.UserID != oldUserID {
			continue
		}
		if kpiType != nil && event.Type != *kpiType {
			continue
		}
		if ticketID != nil {
			ctxTicket, ok := event.ContextData["ticketId"].(string)
			if !ok || ctxTicket != *ticketID {
				continue
			}
		}
		owner := newUserID
		event.UserID = &owner
		moved[event.Type]++
	}
	return moved, nil
}

func (f *fakeKpiEventRepo) Aggregate(_ context.Context, query repository.KpiAggregateQuery) (*repository.KpiAggregateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result repository.KpiAggregateResult
	for _, event := range f.events {
		if event.TenantID != query.TenantID {
			continue
		}
		if query.UserID != nil && (event.UserID == nil || *event.UserID != *query.UserID) {
			continue
		}
		if query.Type != nil && event.Type != *query.Type {
			continue
		}
		if query.From != nil && event.CreatedAt.Before(*query.From) {
			continue
		}
		if query.To != nil && !event.CreatedAt.Before(*query.To) {
			continue
		}
		result.Sum += int64(event.Value)
		result.Count++
	}
	if result.Count > 0 {
		result.Average = float64(result.Sum) / float64(result.Count)
	}
	return &result, nil
}

func (f *fakeKpiEventRepo) RankUsers(_ context.Context, tenantID string, kpiType domain.KpiType, from, to time.Time, limit int) ([]repository.KpiUserRank, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, event := range f.events {
		if event.TenantID != tenantID || event.Type != kpiType || event.UserID == nil {
			continue
		}
		if event.CreatedAt.Before(from) || !event.CreatedAt.Before(to) {
			continue
		}
		counts[*event.UserID]++
	}
	ranking := make([]repository.KpiUserRank, 0, len(counts))
	for userID, count := range counts {
		ranking = append(ranking, repository.KpiUserRank{UserID: userID, Count: count})
	}
	sort.Slice(ranking, func(i, j int) bool { return ranking[i].Count > ranking[j].Count })
	if limit > 0 && len(ranking) > limit {
		ranking = ranking[:limit]
	}
	return ranking, nil
}

func (f *fakeKpiEventRepo) byUser(userID string) []domain.KpiEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.KpiEvent
	for _, event := range f.events {
		if event.UserID != nil && *event.UserID == userID {
			result = append(result, event)
		}
	}
	return result
}

func (f *fakeKpiEventRepo) byType(kpiType domain.KpiType) []domain.KpiEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.KpiEvent
	for _, event := range f.events {
		if event.Type == kpiType {
			result = append(result, event)
		}
	}
	return result
}

type fakeKpiCounterRepo struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeKpiCounterRepo() *fakeKpiCounterRepo {
	return &fakeKpiCounterRepo{counts: make(map[string]int64)}
}

func counterKey(tenantID, userID string, kpiType domain.KpiType) string {
	return tenantID + "|" + userID + "|" + string(kpiType)
}

func (f *fakeKpiCounterRepo) Apply(_ context.Context, tenantID, userID string, kpiType domain.KpiType, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := counterKey(tenantID, userID, kpiType)
	next := f.counts[key] + delta
	if next < 0 {
		next = 0
	}
	f.counts[key] = next
	return nil
}

func (f *fakeKpiCounterRepo) Get(_ context.Context, tenantID, userID string, kpiType domain.KpiType) (*domain.KpiCounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &domain.KpiCounter{
		TenantID: tenantID,
		UserID:   userID,
		Type:     kpiType,
		Count:    f.counts[counterKey(tenantID, userID, kpiType)],
	}, nil
}

func (f *fakeKpiCounterRepo) ListByUser(_ context.Context, tenantID, userID string) ([]domain.KpiCounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := tenantID + "|" + userID + "|"
	var result []domain.KpiCounter
	for key, count := range f.counts {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		result = append(result, domain.KpiCounter{
			TenantID: tenantID,
			UserID:   userID,
			Type:     domain.KpiType(strings.TrimPrefix(key, prefix)),
			Count:    count,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result, nil
}

// eventRecorder captures published domain events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) record(_ context.Context, eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *eventRecorder) countOf(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, recorded := range r.events {
		if recorded == eventType {
			total++
		}
	}
	return total
}
