package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-crm/internal/domain"
	"github.com/spec-kit/helpdesk-crm/internal/repository"
	"github.com/spec-kit/helpdesk-crm/internal/tenant"
	apperrors "github.com/spec-kit/helpdesk-crm/pkg/util"
)

// TxRunner runs a function inside a single database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// KpiRecord describes one recordable business action.
type KpiRecord struct {
	TenantID    string
	UserID      *string
	Type        domain.KpiType
	Value       int
	ContextData map[string]any
	TicketID    *string
}

// KpiService durably records KPI events and maintains running counters.
type KpiService struct {
	events   repository.KpiEventRepository
	counters repository.KpiCounterRepository
	logger   *zap.Logger
}

// KpiDependencies bundles repositories for the KPI service.
type KpiDependencies struct {
	EventRepo   repository.KpiEventRepository
	CounterRepo repository.KpiCounterRepository
	Logger      *zap.Logger
}

// NewKpiService constructs the service.
func NewKpiService(deps KpiDependencies) *KpiService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KpiService{
		events:   deps.EventRepo,
		counters: deps.CounterRepo,
		logger:   logger,
	}
}

// Record appends an immutable event and applies the matching counter delta.
// Joins the ambient transaction when invoked from a ticket mutation, so the
// event row commits or rolls back with the transition it belongs to.
func (s *KpiService) Record(ctx context.Context, rec KpiRecord) error {
	value := rec.Value
	// duration events carry their measured value verbatim, zero included
	if value == 0 && rec.Type != domain.KpiFirstResponseTime {
		value = 1
	}

	event := &domain.KpiEvent{
		TenantID:    rec.TenantID,
		UserID:      rec.UserID,
		Type:        rec.Type,
		Value:       value,
		ContextData: rec.ContextData,
		TicketID:    rec.TicketID,
	}
	if err := s.events.Create(ctx, event); err != nil {
		return err
	}

	// tenant-level events (no user) have no per-user counter row
	if event.UserID == nil {
		return nil
	}
	delta := int64(1)
	if value < 0 {
		delta = -1
	}
	return s.counters.Apply(ctx, event.TenantID, *event.UserID, event.Type, delta)
}

// RecordDetached records outside any ticket transaction. A failure here is an
// operator-visible defect, never a caller-visible error: ticket state is
// authoritative and KPI is best-effort analytics.
func (s *KpiService) RecordDetached(ctx context.Context, rec KpiRecord) {
	if err := s.Record(ctx, rec); err != nil {
		s.logger.Error("kpi recording failed",
			zap.String("tenant_id", rec.TenantID),
			zap.String("kpi_type", string(rec.Type)),
			zap.Error(err))
	}
}

// MigrateOwnership moves KPI events from one agent to another and transfers
// counters by the per-type moved counts, keeping counter = event count.
func (s *KpiService) MigrateOwnership(ctx context.Context, tenantID, oldUserID, newUserID string, kpiType *domain.KpiType, ticketID *string) (int64, error) {
	moved, err := s.events.ReassignOwner(ctx, tenantID, oldUserID, newUserID, kpiType, ticketID)
	if err != nil {
		return 0, err
	}

	var total int64
	for typ, count := range moved {
		if err := s.counters.Apply(ctx, tenantID, oldUserID, typ, -count); err != nil {
			return 0, err
		}
		if err := s.counters.Apply(ctx, tenantID, newUserID, typ, count); err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

// KpiSummaryQuery scopes a dashboard aggregation.
type KpiSummaryQuery struct {
	UserID *string
	Type   *domain.KpiType
	From   *time.Time
	To     *time.Time
}

// Summary aggregates sum/average/count over the event log for the tenant.
func (s *KpiService) Summary(ctx context.Context, tcx tenant.Context, query KpiSummaryQuery) (*repository.KpiAggregateResult, error) {
	result, err := s.events.Aggregate(ctx, repository.KpiAggregateQuery{
		TenantID: tcx.TenantID,
		UserID:   query.UserID,
		Type:     query.Type,
		From:     query.From,
		To:       query.To,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

// AgentTotals returns the running counters of one agent.
func (s *KpiService) AgentTotals(ctx context.Context, tcx tenant.Context, agentID string) ([]domain.KpiCounter, error) {
	counters, err := s.counters.ListByUser(ctx, tcx.TenantID, agentID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return counters, nil
}

// RankAgents orders agents by event count of one KPI type within a window.
func (s *KpiService) RankAgents(ctx context.Context, tcx tenant.Context, kpiType domain.KpiType, from, to time.Time, limit int) ([]repository.KpiUserRank, error) {
	if !from.Before(to) {
		return nil, apperrors.NewValidationError("from must precede to", nil)
	}
	ranking, err := s.events.RankUsers(ctx, tcx.TenantID, kpiType, from, to, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return ranking, nil
}
