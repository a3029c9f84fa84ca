package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-crm/internal/domain"
	"github.com/spec-kit/helpdesk-crm/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-crm/pkg/util"
)

func TestKpiRecord_DefaultsValueToOne(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agentID := "agent-1"

	err := env.kpi.Record(ctx, KpiRecord{
		TenantID: "tenant-a",
		UserID:   &agentID,
		Type:     domain.KpiNewTicket,
	})
	require.NoError(t, err)

	recorded := env.kpiEvents.byUser(agentID)
	require.Len(t, recorded, 1)
	assert.Equal(t, 1, recorded[0].Value)
}

func TestKpiRecord_FirstResponseTimeKeepsZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agentID := "agent-1"

	err := env.kpi.Record(ctx, KpiRecord{
		TenantID: "tenant-a",
		UserID:   &agentID,
		Type:     domain.KpiFirstResponseTime,
		Value:    0,
	})
	require.NoError(t, err)

	recorded := env.kpiEvents.byUser(agentID)
	require.Len(t, recorded, 1)
	assert.Equal(t, 0, recorded[0].Value)

	// the counter still counts the occurrence, not the minutes
	counter, err := env.counters.Get(ctx, "tenant-a", agentID, domain.KpiFirstResponseTime)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counter.Count)
}

func TestKpiRecord_CounterMatchesEventCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agentID := "agent-1"

	const n = 25
	for i := 0; i < n; i++ {
		err := env.kpi.Record(ctx, KpiRecord{
			TenantID: "tenant-a",
			UserID:   &agentID,
			Type:     domain.KpiSentMessage,
		})
		require.NoError(t, err)
	}

	counter, err := env.counters.Get(ctx, "tenant-a", agentID, domain.KpiSentMessage)
	require.NoError(t, err)
	assert.EqualValues(t, n, counter.Count)
	assert.Len(t, env.kpiEvents.byUser(agentID), n)
}

func TestKpiRecord_TenantLevelEventHasNoCounter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.kpi.Record(ctx, KpiRecord{
		TenantID: "tenant-a",
		Type:     domain.KpiNewTicket,
	})
	require.NoError(t, err)

	result, err := env.kpiEvents.Aggregate(ctx, repository.KpiAggregateQuery{TenantID: "tenant-a"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.Count)
}

func TestKpiRecord_NegativeValueDecrementsWithFloor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	agentID := "agent-1"

	err := env.kpi.Record(ctx, KpiRecord{
		TenantID: "tenant-a",
		UserID:   &agentID,
		Type:     domain.KpiSentMessage,
		Value:    -1,
	})
	require.NoError(t, err)

	counter, err := env.counters.Get(ctx, "tenant-a", agentID, domain.KpiSentMessage)
	require.NoError(t, err)
	assert.Zero(t, counter.Count)
}

func TestRecordDetached_RecordsAndNeverPropagates(t *testing.T) {
	env := newTestEnv(t)
	agentID := "agent-1"

	env.kpi.RecordDetached(context.Background(), KpiRecord{
		TenantID: "tenant-a",
		UserID:   &agentID,
		Type:     domain.KpiClosedTicket,
	})
	assert.Len(t, env.kpiEvents.byUser(agentID), 1)

	// a broken store only logs; the caller never sees it
	broken := NewKpiService(KpiDependencies{
		EventRepo:   erroringKpiEventRepo{},
		CounterRepo: env.counters,
	})
	broken.RecordDetached(context.Background(), KpiRecord{
		TenantID: "tenant-a",
		UserID:   &agentID,
		Type:     domain.KpiClosedTicket,
	})
}

type erroringKpiEventRepo struct{}

func (erroringKpiEventRepo) Create(context.Context, *domain.KpiEvent) error {
	return assert.AnError
}

func (erroringKpiEventRepo) ReassignOwner(context.Context, string, string, string, *domain.KpiType, *string) (map[domain.KpiType]int64, error) {
	return nil, assert.AnError
}

func (erroringKpiEventRepo) Aggregate(context.Context, repository.KpiAggregateQuery) (*repository.KpiAggregateResult, error) {
	return nil, assert.AnError
}

func (erroringKpiEventRepo) RankUsers(context.Context, string, domain.KpiType, time.Time, time.Time, int) ([]repository.KpiUserRank, error) {
	return nil, assert.AnError
}

func TestKpiSummary_FiltersByUserAndType(t *testing.T) {
	env := newTestEnv(t)
	agent, contact, tcx := env.seedPair("tenant-a")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := env.routing.BindMessage(ctx, tcx, domain.MessageRef{
			SenderID:    contact.ID,
			RecipientID: agent.ID,
			Direction:   domain.DirectionIncoming,
		})
		require.NoError(t, err)
	}

	kpiType := domain.KpiReceivedMessage
	result, err := env.kpi.Summary(ctx, tcx, KpiSummaryQuery{UserID: &agent.ID, Type: &kpiType})
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.Count)
	assert.EqualValues(t, 2, result.Sum)
	assert.Equal(t, 1.0, result.Average)
}

func TestRankAgents_OrdersByCount(t *testing.T) {
	env := newTestEnv(t)
	_, _, tcx := env.seedPair("tenant-a")
	ctx := context.Background()

	busy, idle := "agent-busy", "agent-idle"
	for i := 0; i < 3; i++ {
		require.NoError(t, env.kpi.Record(ctx, KpiRecord{TenantID: "tenant-a", UserID: &busy, Type: domain.KpiClosedTicket}))
	}
	require.NoError(t, env.kpi.Record(ctx, KpiRecord{TenantID: "tenant-a", UserID: &idle, Type: domain.KpiClosedTicket}))

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)
	ranking, err := env.kpi.RankAgents(ctx, tcx, domain.KpiClosedTicket, from, to, 10)
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	assert.Equal(t, busy, ranking[0].UserID)
	assert.EqualValues(t, 3, ranking[0].Count)

	_, err = env.kpi.RankAgents(ctx, tcx, domain.KpiClosedTicket, to, from, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}
