package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-crm/internal/api/http"
	"github.com/spec-kit/helpdesk-crm/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-crm/internal/auth"
	"github.com/spec-kit/helpdesk-crm/internal/config"
	"github.com/spec-kit/helpdesk-crm/internal/events"
	"github.com/spec-kit/helpdesk-crm/internal/locking"
	"github.com/spec-kit/helpdesk-crm/internal/observability"
	"github.com/spec-kit/helpdesk-crm/internal/persistence"
	"github.com/spec-kit/helpdesk-crm/internal/repository"
	"github.com/spec-kit/helpdesk-crm/internal/service"
	"github.com/spec-kit/helpdesk-crm/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)
	contactRepo := repository.NewContactRepository(pool)
	kpiEventRepo := repository.NewKpiEventRepository(pool)
	kpiCounterRepo := repository.NewKpiCounterRepository(pool)

	txRunner := persistence.NewTxRunner(pool)
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	kpiService := service.NewKpiService(service.KpiDependencies{
		EventRepo:   kpiEventRepo,
		CounterRepo: kpiCounterRepo,
		Logger:      logger,
	})
	routingService := service.NewRoutingService(service.RoutingDependencies{
		TicketRepo:  ticketRepo,
		AgentRepo:   agentRepo,
		ContactRepo: contactRepo,
		Kpi:         kpiService,
		Dispatcher:  dispatcher,
		Tx:          txRunner,
		DistLock:    locking.NewRedisLocker(redis.Client, 5*time.Second),
		Logger:      logger,
	})
	lifecycleService := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:  ticketRepo,
		AgentRepo:   agentRepo,
		ContactRepo: contactRepo,
		Kpi:         kpiService,
		Dispatcher:  dispatcher,
		Tx:          txRunner,
		Logger:      logger,
	})
	authService := service.NewAuthService(*cfg, agentRepo)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), agentRepo)

	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notifications.RegisterHandlers()

	sweeper := worker.NewSweeper(lifecycleService, ticketRepo, cfg.AutoClose, logger)
	go sweeper.Run(ctx)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, time.Duration(cfg.App.RequestTimeoutSeconds)*time.Second)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Agents:         handlers.NewAgentsHandler(authService, lifecycleService),
		Messages:       handlers.NewMessagesHandler(routingService),
		Tickets:        handlers.NewTicketsHandler(lifecycleService),
		Kpi:            handlers.NewKpiHandler(kpiService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
