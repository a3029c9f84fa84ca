package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-crm/internal/api/dto"
	"github.com/spec-kit/helpdesk-crm/internal/auth"
	"github.com/spec-kit/helpdesk-crm/internal/domain"
	"github.com/spec-kit/helpdesk-crm/internal/service"
	apperrors "github.com/spec-kit/helpdesk-crm/pkg/util"
)

// KpiHandler serves the performance dashboard reads.
type KpiHandler struct {
	kpi *service.KpiService
}

// NewKpiHandler returns a new handler instance.
func NewKpiHandler(kpi *service.KpiService) *KpiHandler {
	return &KpiHandler{kpi: kpi}
}

// Summary aggregates the event log for the caller's tenant.
func (h *KpiHandler) Summary(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var query service.KpiSummaryQuery
	if agentID := c.Query("agent_id"); agentID != "" {
		query.UserID = &agentID
	}
	if rawType := c.Query("kpi_type"); rawType != "" {
		kpiType := domain.KpiType(rawType)
		query.Type = &kpiType
	}
	from, err := parseTimeQuery(c, "from")
	if err != nil {
		return err
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		return err
	}
	query.From = from
	query.To = to

	result, err := h.kpi.Summary(c.UserContext(), principal.Tenant, query)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewKpiSummaryResponse(result))
}

// AgentTotals returns the running counters of one agent.
func (h *KpiHandler) AgentTotals(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	counters, err := h.kpi.AgentTotals(c.UserContext(), principal.Tenant, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewKpiCounterListResponse(counters))
}

// Ranking orders agents by event count of one KPI type within a window.
func (h *KpiHandler) Ranking(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	rawType := c.Query("kpi_type")
	if rawType == "" {
		return apperrors.NewValidationError("kpi_type is required", nil)
	}
	from, err := parseTimeQuery(c, "from")
	if err != nil {
		return err
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if from == nil {
		start := now.AddDate(0, -1, 0)
		from = &start
	}
	if to == nil {
		to = &now
	}
	limit := c.QueryInt("limit", 10)

	ranking, err := h.kpi.RankAgents(c.UserContext(), principal.Tenant, domain.KpiType(rawType), *from, *to, limit)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewKpiRankingResponse(ranking))
}

func parseTimeQuery(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.NewValidationError(name+" must be RFC3339", map[string]any{name: raw})
	}
	return &parsed, nil
}
