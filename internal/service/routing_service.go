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
	"github.com/spec-kit/helpdesk-crm/internal/locking"
	"github.com/spec-kit/helpdesk-crm/internal/repository"
	"github.com/spec-kit/helpdesk-crm/internal/tenant"
	apperrors "github.com/spec-kit/helpdesk-crm/pkg/util"
)

// RoutingService maps a message's sender/recipient pair to exactly one ticket.
type RoutingService struct {
	tickets    repository.TicketRepository
	agents     repository.AgentRepository
	contacts   repository.ContactRepository
	kpi        *KpiService
	dispatcher events.Dispatcher
	tx         TxRunner
	pairLocks  *locking.KeyedMutex
	distLock   locking.DistributedLocker
	logger     *zap.Logger
}

// RoutingDependencies bundles collaborators for the routing service.
type RoutingDependencies struct {
	TicketRepo  repository.TicketRepository
	AgentRepo   repository.AgentRepository
	ContactRepo repository.ContactRepository
	Kpi         *KpiService
	Dispatcher  events.Dispatcher
	Tx          TxRunner
	DistLock    locking.DistributedLocker
	Logger      *zap.Logger
}

// NewRoutingService constructs the service.
func NewRoutingService(deps RoutingDependencies) *RoutingService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoutingService{
		tickets:    deps.TicketRepo,
		agents:     deps.AgentRepo,
		contacts:   deps.ContactRepo,
		kpi:        deps.Kpi,
		dispatcher: deps.Dispatcher,
		tx:         deps.Tx,
		pairLocks:  locking.NewKeyedMutex(),
		distLock:   deps.DistLock,
		logger:     logger,
	}
}

// ResolveOrCreateTicket binds the (sender, recipient) pair to its single open
// ticket, creating one when none exists. Exactly one side must be an agent of
// the caller's tenant. For a given unordered pair at most one OPEN ticket
// exists at any time; concurrent calls for the same pair are serialized by a
// per-pair mutex, a pg advisory lock inside the creating transaction, and the
// partial unique index as the last line of defense.
func (s *RoutingService) ResolveOrCreateTicket(ctx context.Context, tcx tenant.Context, senderID, recipientID string) (*domain.Ticket, error) {
	agent, contact, err := s.classifyPair(ctx, tcx, senderID, recipientID)
	if err != nil {
		return nil, err
	}

	key := pairKey(tcx.TenantID, senderID, recipientID)
	unlock := s.pairLocks.Lock(key)
	defer unlock()

	if s.distLock != nil {
		release, err := s.distLock.Acquire(ctx, key)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		defer release()
	}

	existing, err := s.tickets.FindOpenByPair(ctx, tcx.TenantID, contact.ID, agent.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if existing != nil {
		return existing, nil
	}

	var ticket *domain.Ticket
	created := false
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.tickets.AcquirePairLock(ctx, key); err != nil {
			return err
		}
		open, err := s.tickets.FindOpenByPair(ctx, tcx.TenantID, contact.ID, agent.ID)
		if err != nil {
			return err
		}
		if open != nil {
			ticket = open
			return nil
		}

		fresh := &domain.Ticket{
			TenantID:  tcx.TenantID,
			ContactID: contact.ID,
			AgentID:   agent.ID,
			Status:    domain.TicketStatusOpen,
		}
		// closed tickets are never reopened; only their context carries over
		previous, err := s.tickets.FindLatestClosedByPair(ctx, tcx.TenantID, contact.ID, agent.ID)
		if err != nil {
			return err
		}
		if previous != nil {
			fresh.Subject = previous.Subject
			fresh.Notes = previous.Notes
		}

		if err := s.tickets.Create(ctx, fresh); err != nil {
			return err
		}
		agentID := agent.ID
		if err := s.kpi.Record(ctx, KpiRecord{
			TenantID:    tcx.TenantID,
			UserID:      &agentID,
			Type:        domain.KpiNewTicket,
			ContextData: map[string]any{"ticketId": fresh.ID},
			TicketID:    &fresh.ID,
		}); err != nil {
			return err
		}
		ticket = fresh
		created = true
		return nil
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			// a concurrent writer won the race; the index kept the invariant
			open, ferr := s.tickets.FindOpenByPair(ctx, tcx.TenantID, contact.ID, agent.ID)
			if ferr == nil && open != nil {
				return open, nil
			}
			return nil, apperrors.NewConflict("concurrent ticket creation, retry", nil)
		}
		return nil, apperrors.MapError(err)
	}

	if created {
		s.publish(ctx, events.Event{
			Type:     events.EventTicketCreated,
			TenantID: tcx.TenantID,
			TicketID: ticket.ID,
			Payload: events.TicketCreatedPayload{
				ContactID: ticket.ContactID,
				AgentID:   ticket.AgentID,
				Subject:   ticket.Subject,
			},
		})
	}
	return ticket, nil
}

// BindMessage resolves the ticket for an inbound/outbound message, bumps its
// activity, and records the message KPIs. The first outgoing agent reply also
// records FIRST_RESPONSE_TIME carrying the elapsed minutes since creation.
func (s *RoutingService) BindMessage(ctx context.Context, tcx tenant.Context, msg domain.MessageRef) (*domain.Ticket, error) {
	ticket, err := s.ResolveOrCreateTicket(ctx, tcx, msg.SenderID, msg.RecipientID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.tickets.TouchActivity(ctx, ticket.ID); err != nil {
			return err
		}
		agentID := ticket.AgentID
		ticketID := ticket.ID

		if msg.Direction == domain.DirectionOutgoing {
			if err := s.kpi.Record(ctx, KpiRecord{
				TenantID:    tcx.TenantID,
				UserID:      &agentID,
				Type:        domain.KpiSentMessage,
				ContextData: map[string]any{"ticketId": ticketID},
				TicketID:    &ticketID,
			}); err != nil {
				return err
			}
			first, err := s.tickets.SetFirstAgentReply(ctx, ticketID, now)
			if err != nil {
				return err
			}
			if first {
				minutes := int(now.Sub(ticket.CreatedAt) / time.Minute)
				if err := s.kpi.Record(ctx, KpiRecord{
					TenantID:    tcx.TenantID,
					UserID:      &agentID,
					Type:        domain.KpiFirstResponseTime,
					Value:       minutes,
					ContextData: map[string]any{"ticketId": ticketID},
					TicketID:    &ticketID,
				}); err != nil {
					return err
				}
			}
			return nil
		}

		return s.kpi.Record(ctx, KpiRecord{
			TenantID:    tcx.TenantID,
			UserID:      &agentID,
			Type:        domain.KpiReceivedMessage,
			ContextData: map[string]any{"ticketId": ticketID},
			TicketID:    &ticketID,
		})
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	bound, err := s.tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TenantID: tcx.TenantID,
		TicketID: bound.ID,
		Payload: events.TicketUpdatedPayload{
			AgentID:      bound.AgentID,
			MessageCount: bound.MessageCount,
		},
	})
	return bound, nil
}

// classifyPair resolves which side of the pair is the agent and which the
// client contact. Exactly one side must be an internal agent of the tenant.
func (s *RoutingService) classifyPair(ctx context.Context, tcx tenant.Context, senderID, recipientID string) (*domain.Agent, *domain.Contact, error) {
	if senderID == recipientID {
		return nil, nil, apperrors.NewRoutingError("sender and recipient must be distinct", map[string]any{
			"sender_id": senderID,
		})
	}

	senderAgent, err := s.lookupAgent(ctx, tcx, senderID)
	if err != nil {
		return nil, nil, err
	}
	recipientAgent, err := s.lookupAgent(ctx, tcx, recipientID)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case senderAgent != nil && recipientAgent != nil:
		return nil, nil, apperrors.NewRoutingError("both parties are agents", nil)
	case senderAgent == nil && recipientAgent == nil:
		return nil, nil, apperrors.NewRoutingError("neither party is an agent of the tenant", nil)
	}

	agent := senderAgent
	contactID := recipientID
	if agent == nil {
		agent = recipientAgent
		contactID = senderID
	}

	contact, err := s.contacts.GetByIDInTenant(ctx, tcx.TenantID, contactID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewNotFound("contact", map[string]any{"contact_id": contactID})
		}
		return nil, nil, apperrors.MapError(err)
	}
	return agent, contact, nil
}

func (s *RoutingService) lookupAgent(ctx context.Context, tcx tenant.Context, id string) (*domain.Agent, error) {
	agent, err := s.agents.GetByIDInTenant(ctx, tcx.TenantID, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}
	return agent, nil
}

// pairKey normalizes the unordered pair into a lock key.
func pairKey(tenantID, a, b string) string {
	if b < a {
		a, b = b, a
	}
	return tenantID + "|" + a + "|" + b
}

func (s *RoutingService) publish(ctx context.Context, event events.Event) {
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
