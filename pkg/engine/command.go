package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/adapter"
	"github.com/agentgate-io/agentgate-engine/pkg/audit"
	"github.com/agentgate-io/agentgate-engine/pkg/config"
	"github.com/agentgate-io/agentgate-engine/pkg/events"
	"github.com/agentgate-io/agentgate-engine/pkg/healthcheck"
	"github.com/agentgate-io/agentgate-engine/pkg/ingest"
	"github.com/agentgate-io/agentgate-engine/pkg/internal/httpserver"
	"github.com/agentgate-io/agentgate-engine/pkg/internal/postgres"
	"github.com/agentgate-io/agentgate-engine/pkg/onboard"
	"github.com/agentgate-io/agentgate-engine/pkg/reasoning"
	syncpkg "github.com/agentgate-io/agentgate-engine/pkg/sync"
	"github.com/agentgate-io/agentgate-engine/pkg/tasks"
	"github.com/agentgate-io/agentgate-engine/pkg/vault"
)

const escalationSweepInterval = 5 * time.Minute

func Command() *cobra.Command {
	return &cobra.Command{
		Use: "engine-service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return start(cmd.Context())
		},
	}
}

// lateReporter breaks the construction cycle between the adapter registry and
// the health monitor: the registry needs a reporter before the monitor, which
// observes the registry, exists.
type lateReporter struct {
	target adapter.StatusReporter
}

func (l *lateReporter) ReportDegraded(ctx context.Context, integrationID uuid.UUID, reason string) {
	if l.target != nil {
		l.target.ReportDegraded(ctx, integrationID, reason)
	}
}

func (l *lateReporter) ReportUnhealthy(ctx context.Context, integrationID uuid.UUID, reason string) {
	if l.target != nil {
		l.target.ReportUnhealthy(ctx, integrationID, reason)
	}
}

type routes struct {
	handlers []httpserver.Routes
}

func (r routes) Register(e *echo.Echo) {
	for _, h := range r.handlers {
		h.Register(e)
	}
}

func start(ctx context.Context) error {
	cfg := config.Provide("AGENTGATE", config.Default())

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("new logger: %w", err)
	}
	defer logger.Sync()

	orm, err := postgres.NewClient(&postgres.Config{
		Host:    cfg.Postgres.Host,
		Port:    cfg.Postgres.Port,
		User:    cfg.Postgres.Username,
		Passwd:  cfg.Postgres.Password,
		DB:      cfg.Postgres.DB,
		SSLMode: cfg.Postgres.SSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("new postgres client: %w", err)
	}

	onboardDB := onboard.NewDatabase(orm)
	ingestDB := ingest.NewDatabase(orm)
	syncDB := syncpkg.NewDatabase(orm)
	healthDB := healthcheck.NewDatabase(orm)
	auditDB := audit.NewDatabase(orm)
	taskDB := tasks.NewDatabase(orm)
	for _, init := range []func() error{
		onboardDB.Initialize, ingestDB.Initialize, syncDB.Initialize,
		healthDB.Initialize, auditDB.Initialize, taskDB.Initialize,
	} {
		if err := init(); err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
	}

	v, err := vault.NewAESVaultSourceConfig(cfg.Vault.EncryptionKey)
	if err != nil {
		return fmt.Errorf("new vault: %w", err)
	}

	bus := events.NewBus(logger)

	onboardSvc := onboard.NewService(logger, onboardDB, v, cfg.Webhook.SharedSecret)

	reporter := &lateReporter{}
	registry := adapter.NewRegistry(adapter.RetryPolicy{
		MaxRetries:  cfg.Retry.MaxRetries,
		BaseBackoff: cfg.Retry.BaseBackoff,
		Jitter:      cfg.Retry.Jitter,
	}, onboardSvc, reporter, logger)

	alerter := healthcheck.NewBusAlerter(logger, bus)
	monitor := healthcheck.NewMonitor(logger, healthDB, onboardDB, ingestDB, registry, alerter)
	reporter.target = monitor

	reconciler := syncpkg.NewReconciler(logger, syncDB, onboardDB, registry)

	validator, err := reasoning.NewOutputValidator(reasoning.DefaultSchemas())
	if err != nil {
		return fmt.Errorf("compile output schemas: %w", err)
	}
	reasoner := reasoning.NewOpenAIService(logger, cfg.Reasoning.APIKey, cfg.Reasoning.BaseURL, cfg.Reasoning.Model)

	classifier := tasks.NewClassifier(logger, taskDB, auditDB, onboardDB, bus, cfg.Risk)
	gate := tasks.NewGate(logger, taskDB, auditDB, bus)
	executor := tasks.NewExecutor(logger, taskDB, auditDB, registry, reasoner, validator)
	rollbackMgr := tasks.NewRollbackManager(logger, taskDB, auditDB, registry)
	escalator := tasks.NewEscalator(logger, taskDB, bus, cfg.Scheduler.EscalationSLA)

	for service := range adapter.BaseURLs {
		topic := events.TopicEvents(service)
		bus.Subscribe(topic, "sync", reconciler.HandleEvent)
		bus.Subscribe(topic, "classifier", classifier.HandleEvent)
	}
	bus.Subscribe(events.TopicTasksApproved, "executor", executor.HandleApproved)

	scheduler := gocron.NewScheduler(time.UTC)
	if err := monitor.StartProbing(scheduler, cfg.Scheduler.HealthProbeInterval); err != nil {
		return fmt.Errorf("start health probing: %w", err)
	}
	if err := reconciler.StartPolling(scheduler, cfg.Scheduler.SyncPollInterval, monitor); err != nil {
		return fmt.Errorf("start sync polling: %w", err)
	}
	if err := escalator.StartSweeping(scheduler, escalationSweepInterval); err != nil {
		return fmt.Errorf("start escalation sweep: %w", err)
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	err = httpserver.RegisterAndStart(ctx, logger, cfg.Http.Address, routes{handlers: []httpserver.Routes{
		ingest.NewHttpHandler(logger, ingestDB, bus, onboardSvc, cfg.Webhook.DedupeWindow),
		onboard.NewHttpHandler(logger, onboardDB, v, onboardSvc, reconciler),
		tasks.NewHttpHandler(logger, taskDB, gate, rollbackMgr),
		audit.NewHttpHandler(logger, auditDB),
		monitor,
	}})
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	// the server is down, let in-flight event handlers finish
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := bus.Drain(drainCtx); err != nil {
		logger.Warn("event bus drain timed out", zap.Error(err))
	}
	return nil
}
