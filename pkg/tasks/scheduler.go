package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/events"
)

// Escalator publishes an escalation event for pending tasks that outlived
// the SLA. Escalation changes notification behavior only; the task stays
// pending until a human decides.
type Escalator struct {
	logger *zap.Logger
	db     Database
	bus    *events.Bus
	sla    time.Duration
}

func NewEscalator(logger *zap.Logger, db Database, bus *events.Bus, sla time.Duration) *Escalator {
	return &Escalator{
		logger: logger.Named("escalator"),
		db:     db,
		bus:    bus,
		sla:    sla,
	}
}

func (e *Escalator) StartSweeping(scheduler *gocron.Scheduler, interval time.Duration) error {
	_, err := scheduler.Every(interval).Do(func() {
		if err := e.Sweep(context.Background()); err != nil {
			e.logger.Error("escalation sweep failed", zap.Error(err))
		}
	})
	return err
}

// Sweep escalates each overdue pending task at most once.
func (e *Escalator) Sweep(ctx context.Context) error {
	overdue, err := e.db.ListPendingForEscalation(time.Now().Add(-e.sla))
	if err != nil {
		return err
	}

	for _, task := range overdue {
		now := time.Now()
		marked, err := e.db.MarkEscalated(task.ID, now)
		if err != nil {
			return err
		}
		if !marked {
			continue
		}

		payload, _ := json.Marshal(map[string]any{
			"taskId":     task.ID.String(),
			"riskLevel":  task.RiskLevel,
			"pendingFor": now.Sub(task.CreatedAt).String(),
		})
		e.bus.Publish(ctx, events.TopicAlerts, events.Event{
			ID:         uuid.New(),
			Service:    task.Service,
			Type:       "task_escalation",
			ExternalID: task.ID.String(),
			Payload:    payload,
			ReceivedAt: now,
		})

		e.logger.Warn("pending task escalated",
			zap.String("task_id", task.ID.String()),
			zap.String("risk", string(task.RiskLevel)))
	}
	return nil
}
