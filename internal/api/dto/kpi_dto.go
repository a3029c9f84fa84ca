package dto

import (
	"github.com/spec-kit/helpdesk-crm/internal/domain"
	"github.com/spec-kit/helpdesk-crm/internal/repository"
)

// KpiSummaryResponse carries one aggregation result.
type KpiSummaryResponse struct {
	Sum     int64   `json:"sum"`
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

// NewKpiSummaryResponse maps a repository aggregate.
func NewKpiSummaryResponse(result *repository.KpiAggregateResult) KpiSummaryResponse {
	return KpiSummaryResponse{Sum: result.Sum, Average: result.Average, Count: result.Count}
}

// KpiCounterResponse is one running total.
type KpiCounterResponse struct {
	KpiType string `json:"kpi_type"`
	Count   int64  `json:"count"`
}

// NewKpiCounterListResponse maps counters.
func NewKpiCounterListResponse(counters []domain.KpiCounter) []KpiCounterResponse {
	result := make([]KpiCounterResponse, 0, len(counters))
	for _, counter := range counters {
		result = append(result, KpiCounterResponse{KpiType: string(counter.Type), Count: counter.Count})
	}
	return result
}

// KpiRankEntryResponse is one leaderboard row.
type KpiRankEntryResponse struct {
	AgentID string `json:"agent_id"`
	Count   int64  `json:"count"`
}

// NewKpiRankingResponse maps a ranking.
func NewKpiRankingResponse(ranking []repository.KpiUserRank) []KpiRankEntryResponse {
	result := make([]KpiRankEntryResponse, 0, len(ranking))
	for _, entry := range ranking {
		result = append(result, KpiRankEntryResponse{AgentID: entry.UserID, Count: entry.Count})
	}
	return result
}
