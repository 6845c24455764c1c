package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/audit"
	"github.com/agentgate-io/agentgate-engine/pkg/events"
	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

// Gate owns the pending -> approved|rejected transition. Every decision is
// recorded as an approval audit entry whether it allows or blocks execution.
type Gate struct {
	logger  *zap.Logger
	db      Database
	auditDB audit.Database
	bus     *events.Bus
}

func NewGate(logger *zap.Logger, db Database, auditDB audit.Database, bus *events.Bus) *Gate {
	return &Gate{
		logger:  logger.Named("gate"),
		db:      db,
		auditDB: auditDB,
		bus:     bus,
	}
}

func (g *Gate) Approve(ctx context.Context, taskID uuid.UUID, actorID string) error {
	approved, err := g.db.Approve(taskID, actorID)
	if err != nil {
		return err
	}
	if !approved {
		return types.NewFault(types.KindTaskExecution, "task is not pending")
	}

	err = g.auditDB.AppendDetail(taskID, audit.EntryTypeApproval, actorID, map[string]any{
		"decision":   "approved",
		"approvedBy": actorID,
	})
	if err != nil {
		return err
	}

	task, err := g.db.GetTask(taskID)
	if err != nil {
		return err
	}

	g.bus.Publish(ctx, events.TopicTasksApproved, events.Event{
		ID:         uuid.New(),
		Service:    task.Service,
		Type:       "task_approved",
		ExternalID: taskID.String(),
		ReceivedAt: time.Now(),
	})

	g.logger.Info("task approved",
		zap.String("task_id", taskID.String()),
		zap.String("actor", actorID))
	return nil
}

func (g *Gate) Reject(ctx context.Context, taskID uuid.UUID, actorID, reason string) error {
	return g.decline(ctx, taskID, actorID, "rejected", reason)
}

// Cancel withdraws a pending task. It is an implicit reject; an executing
// task cannot be canceled, only rolled back afterwards.
func (g *Gate) Cancel(ctx context.Context, taskID uuid.UUID, actorID string) error {
	return g.decline(ctx, taskID, actorID, "canceled", "")
}

func (g *Gate) decline(ctx context.Context, taskID uuid.UUID, actorID, decision, reason string) error {
	moved, err := g.db.TransitionStatus(taskID, TaskStatusPending, TaskStatusRejected)
	if err != nil {
		return err
	}
	if !moved {
		return types.NewFault(types.KindTaskExecution, "task is not pending")
	}

	detail := map[string]any{"decision": decision}
	if reason != "" {
		detail["reason"] = reason
	}
	if err := g.auditDB.AppendDetail(taskID, audit.EntryTypeApproval, actorID, detail); err != nil {
		return err
	}

	g.logger.Info("task declined",
		zap.String("task_id", taskID.String()),
		zap.String("actor", actorID),
		zap.String("decision", decision))
	return nil
}
