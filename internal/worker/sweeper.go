package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-crm/internal/config"
	"github.com/spec-kit/helpdesk-crm/internal/repository"
	"github.com/spec-kit/helpdesk-crm/internal/service"
	"github.com/spec-kit/helpdesk-crm/internal/tenant"
)

// Sweeper periodically drives the warning pass and the auto-close sweep for
// every tenant with open tickets. The sweep logic itself lives in the
// lifecycle service; this is only the timer.
type Sweeper struct {
	lifecycle *service.LifecycleService
	tickets   repository.TicketRepository
	cfg       config.AutoCloseConfig
	logger    *zap.Logger
}

// NewSweeper constructs the worker.
func NewSweeper(lifecycle *service.LifecycleService, tickets repository.TicketRepository, cfg config.AutoCloseConfig, logger *zap.Logger) *Sweeper {
	return &Sweeper{lifecycle: lifecycle, tickets: tickets, cfg: cfg, logger: logger}
}

// Run blocks until ctx is done, sweeping on the configured interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	tenants, err := s.tickets.ListTenantsWithOpenTickets(ctx)
	if err != nil {
		s.logger.Error("sweep: listing tenants failed", zap.Error(err))
		return
	}

	for _, tenantID := range tenants {
		tcx := tenant.System(tenantID)

		warned, err := s.lifecycle.WarnAboutToExpire(ctx, tcx, s.cfg.WarningWindow(), s.cfg.Threshold())
		if err != nil {
			s.logger.Error("sweep: warning pass failed",
				zap.String("tenant_id", tenantID), zap.Error(err))
		}

		closed, err := s.lifecycle.SweepAutoClose(ctx, tcx, s.cfg.Threshold())
		if err != nil {
			s.logger.Error("sweep: auto-close failed",
				zap.String("tenant_id", tenantID), zap.Error(err))
			continue
		}
		if closed > 0 || len(warned) > 0 {
			s.logger.Info("sweep completed",
				zap.String("tenant_id", tenantID),
				zap.Int("warned", len(warned)),
				zap.Int("closed", closed))
		}
	}
}
