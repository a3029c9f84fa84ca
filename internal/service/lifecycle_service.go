package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-crm/internal/domain"
	"github.com/spec-kit/helpdesk-crm/internal/events"
	"github.com/spec-kit/helpdesk-crm/internal/repository"
	"github.com/spec-kit/helpdesk-crm/internal/tenant"
	apperrors "github.com/spec-kit/helpdesk-crm/pkg/util"
)

// LifecycleService owns ticket state transitions: manual close, bulk close,
// auto-close sweep, expiry warnings and agent reassignment migration.
type LifecycleService struct {
	tickets    repository.TicketRepository
	agents     repository.AgentRepository
	contacts   repository.ContactRepository
	kpi        *KpiService
	dispatcher events.Dispatcher
	tx         TxRunner
	logger     *zap.Logger
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo  repository.TicketRepository
	AgentRepo   repository.AgentRepository
	ContactRepo repository.ContactRepository
	Kpi         *KpiService
	Dispatcher  events.Dispatcher
	Tx          TxRunner
	Logger      *zap.Logger
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		tickets:    deps.TicketRepo,
		agents:     deps.AgentRepo,
		contacts:   deps.ContactRepo,
		kpi:        deps.Kpi,
		dispatcher: deps.Dispatcher,
		tx:         deps.Tx,
		logger:     logger,
	}
}

// GetTicket fetches a ticket enforcing tenant isolation.
func (s *LifecycleService) GetTicket(ctx context.Context, tcx tenant.Context, ticketID string) (*domain.Ticket, error) {
	return s.loadScoped(ctx, tcx, ticketID)
}

// ListTickets returns paginated tickets for the tenant.
func (s *LifecycleService) ListTickets(ctx context.Context, tcx tenant.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	filter.TenantID = tcx.TenantID
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// CloseTicket performs a manual OPEN -> CLOSED transition. Closing an already
// closed ticket is a no-op success so duplicate close requests are harmless,
// and no duplicate CLOSED_TICKET event is emitted.
func (s *LifecycleService) CloseTicket(ctx context.Context, tcx tenant.Context, ticketID, closeType string) (*domain.Ticket, error) {
	ticket, err := s.loadScoped(ctx, tcx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsClosed() {
		return ticket, nil
	}

	var closed *domain.Ticket
	transitioned := false
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, didClose, err := s.closeLocked(ctx, ticketID, closeType)
		if err != nil {
			return err
		}
		closed = locked
		transitioned = didClose
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	if transitioned {
		s.publishClosed(ctx, closed)
	}
	return closed, nil
}

// CloseAllForContact closes every open ticket of a contact in one atomic
// operation, with the same per-ticket side effects as a manual close. Used
// when a contact is deactivated or opts out.
func (s *LifecycleService) CloseAllForContact(ctx context.Context, tcx tenant.Context, contactID, closeType string) (int, error) {
	if _, err := s.contacts.GetByIDInTenant(ctx, tcx.TenantID, contactID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.NewNotFound("contact", map[string]any{"contact_id": contactID})
		}
		return 0, apperrors.MapError(err)
	}

	open, err := s.tickets.ListOpenByContact(ctx, tcx.TenantID, contactID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}

	var closed []*domain.Ticket
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for i := range open {
			ticket, didClose, err := s.closeLocked(ctx, open[i].ID, closeType)
			if err != nil {
				return err
			}
			if didClose {
				closed = append(closed, ticket)
			}
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.MapError(err)
	}

	for _, ticket := range closed {
		s.publishClosed(ctx, ticket)
	}
	return len(closed), nil
}

// SweepAutoClose closes every open ticket whose last activity precedes
// now-threshold. Each ticket closes in its own transaction, so an interrupted
// sweep leaves the remainder for the next scheduled invocation; the status
// re-check inside the transaction keeps a racing manual close harmless.
func (s *LifecycleService) SweepAutoClose(ctx context.Context, tcx tenant.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		return 0, apperrors.NewValidationError("threshold must be positive", nil)
	}

	cutoff := time.Now().Add(-threshold)
	stale, err := s.tickets.ListStaleOpen(ctx, tcx.TenantID, cutoff)
	if err != nil {
		return 0, apperrors.MapError(err)
	}

	closed := 0
	for i := range stale {
		var ticket *domain.Ticket
		transitioned := false
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			var err error
			ticket, transitioned, err = s.closeLocked(ctx, stale[i].ID, domain.CloseTypeAuto)
			return err
		})
		if err != nil {
			return closed, apperrors.MapError(err)
		}
		if transitioned {
			s.publishClosed(ctx, ticket)
			closed++
		}
	}
	return closed, nil
}

// FindAboutToExpire is a read-only query for open tickets that the sweep will
// close within the warning window. It performs no transition.
func (s *LifecycleService) FindAboutToExpire(ctx context.Context, tcx tenant.Context, warningWindow, closeThreshold time.Duration) ([]domain.Ticket, error) {
	if warningWindow <= 0 || closeThreshold <= 0 {
		return nil, apperrors.NewValidationError("windows must be positive", nil)
	}
	if warningWindow >= closeThreshold {
		return nil, apperrors.NewValidationError("warning window must be smaller than close threshold", nil)
	}

	now := time.Now()
	oldest := now.Add(-closeThreshold)
	newest := now.Add(-(closeThreshold - warningWindow))
	tickets, err := s.tickets.ListExpiring(ctx, tcx.TenantID, oldest, newest)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// WarnAboutToExpire emits one expiry warning per about-to-expire ticket and
// stamps it so repeated worker runs do not warn twice.
func (s *LifecycleService) WarnAboutToExpire(ctx context.Context, tcx tenant.Context, warningWindow, closeThreshold time.Duration) ([]domain.Ticket, error) {
	expiring, err := s.FindAboutToExpire(ctx, tcx, warningWindow, closeThreshold)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range expiring {
		if err := s.tickets.MarkExpiryWarned(ctx, expiring[i].ID, now); err != nil {
			return nil, apperrors.MapError(err)
		}
		s.publish(ctx, events.Event{
			Type:     events.EventTicketExpiryWarning,
			TenantID: tcx.TenantID,
			TicketID: expiring[i].ID,
			Payload: events.TicketExpiryWarningPayload{
				AgentID:  expiring[i].AgentID,
				ClosesBy: expiring[i].UpdatedAt.Add(closeThreshold),
			},
		})
	}
	return expiring, nil
}

// ReassignOptions narrows which KPI history moves with the agent.
type ReassignOptions struct {
	KpiType  *domain.KpiType
	TicketID *string
}

// ReassignResult reports what a migration moved.
type ReassignResult struct {
	TicketsMoved int64
	EventsMoved  int64
}

// ReassignAgent transfers every open ticket and the selected KPI events from
// one agent to another in a single transaction. Ticket status and closedAt
// are never touched; this is an ownership migration, not a transition.
func (s *LifecycleService) ReassignAgent(ctx context.Context, tcx tenant.Context, oldAgentID, newAgentID string, opts ReassignOptions) (*ReassignResult, error) {
	if oldAgentID == newAgentID {
		return nil, apperrors.NewValidationError("old and new agent must differ", nil)
	}
	if _, err := s.loadAgent(ctx, tcx, oldAgentID); err != nil {
		return nil, err
	}
	newAgent, err := s.loadAgent(ctx, tcx, newAgentID)
	if err != nil {
		return nil, err
	}
	if !newAgent.Active {
		return nil, apperrors.NewConflict("new agent inactive", map[string]any{"agent_id": newAgentID})
	}

	var result ReassignResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ticketsMoved, err := s.tickets.ReassignOpenTickets(ctx, tcx.TenantID, oldAgentID, newAgentID)
		if err != nil {
			return err
		}
		eventsMoved, err := s.kpi.MigrateOwnership(ctx, tcx.TenantID, oldAgentID, newAgentID, opts.KpiType, opts.TicketID)
		if err != nil {
			return err
		}
		result = ReassignResult{TicketsMoved: ticketsMoved, EventsMoved: eventsMoved}
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EventAgentReassigned,
		TenantID: tcx.TenantID,
		Payload: events.AgentReassignedPayload{
			OldAgentID:   oldAgentID,
			NewAgentID:   newAgentID,
			TicketsMoved: result.TicketsMoved,
			EventsMoved:  result.EventsMoved,
		},
	})
	return &result, nil
}

// closeLocked re-reads the ticket under a row lock, transitions it if still
// open, and records the CLOSED_TICKET event in the same transaction. Returns
// whether this call performed the transition.
func (s *LifecycleService) closeLocked(ctx context.Context, ticketID, closeType string) (*domain.Ticket, bool, error) {
	ticket, err := s.tickets.GetByIDForUpdate(ctx, ticketID)
	if err != nil {
		return nil, false, err
	}
	if ticket.IsClosed() {
		return ticket, false, nil
	}

	now := time.Now()
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &now
	reason := closeType
	ticket.CloseType = &reason
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, false, err
	}

	agentID := ticket.AgentID
	if err := s.kpi.Record(ctx, KpiRecord{
		TenantID:    ticket.TenantID,
		UserID:      &agentID,
		Type:        domain.KpiClosedTicket,
		ContextData: map[string]any{"ticketId": ticket.ID, "closeType": closeType},
		TicketID:    &ticket.ID,
	}); err != nil {
		return nil, false, err
	}
	return ticket, true, nil
}

func (s *LifecycleService) loadScoped(ctx context.Context, tcx tenant.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.TenantID != tcx.TenantID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

func (s *LifecycleService) loadAgent(ctx context.Context, tcx tenant.Context, agentID string) (*domain.Agent, error) {
	agent, err := s.agents.GetByIDInTenant(ctx, tcx.TenantID, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	return agent, nil
}

func (s *LifecycleService) publishClosed(ctx context.Context, ticket *domain.Ticket) {
	closeType := ""
	if ticket.CloseType != nil {
		closeType = *ticket.CloseType
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Payload: events.TicketClosedPayload{
			AgentID:         ticket.AgentID,
			CloseType:       closeType,
			DurationMinutes: ticket.DurationMinutes(time.Now()),
		},
	})
}

func (s *LifecycleService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
