package tasks

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/adapter"
	"github.com/agentgate-io/agentgate-engine/pkg/audit"
	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

// RollbackManager undoes a completed task by replaying the inverse call its
// execution recorded. Rollback itself is not rollbackable; a rolled back task
// is terminal.
type RollbackManager struct {
	logger   *zap.Logger
	db       Database
	auditDB  audit.Database
	adapters AdapterProvider
}

func NewRollbackManager(logger *zap.Logger, db Database, auditDB audit.Database, adapters AdapterProvider) *RollbackManager {
	return &RollbackManager{
		logger:   logger.Named("rollback"),
		db:       db,
		auditDB:  auditDB,
		adapters: adapters,
	}
}

func (r *RollbackManager) Rollback(ctx context.Context, taskID uuid.UUID, actorID string) error {
	task, err := r.db.GetTask(taskID)
	if err != nil {
		return err
	}

	if task.Status == TaskStatusRolledBack {
		return types.NewFault(types.KindAlreadyRolledBack, "task already rolled back")
	}
	if task.Status != TaskStatusCompleted {
		return types.Faultf(types.KindNotRollbackable, "task is %s, only completed tasks roll back", task.Status)
	}

	inverse, err := r.recordedInverse(taskID)
	if err != nil {
		return err
	}
	if inverse == nil {
		return types.NewFault(types.KindNotRollbackable, "no inverse action recorded for task")
	}

	a, err := r.adapters.AdapterFor(task.Service, task.IntegrationID)
	if err != nil {
		return types.WrapFault(types.KindNotRollbackable, "no adapter for task", err)
	}

	// Claim the task before touching the upstream: concurrent rollback calls
	// race on this guarded transition and only the winner replays the
	// inverse. Firing the call first would let both callers undo the task.
	moved, err := r.db.TransitionStatus(taskID, TaskStatusCompleted, TaskStatusRolledBack)
	if err != nil {
		return err
	}
	if !moved {
		return types.NewFault(types.KindAlreadyRolledBack, "task already rolled back")
	}

	var body any
	if len(inverse.Body) > 0 {
		body = inverse.Body
	}
	resp, err := a.Call(ctx, adapter.Request{Method: inverse.Method, Path: inverse.Path, Body: body})
	if err != nil {
		r.releaseClaim(taskID)
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		r.releaseClaim(taskID)
		return types.Faultf(types.KindTaskExecution,
			"inverse call returned status %d", resp.StatusCode)
	}

	err = r.auditDB.AppendDetail(taskID, audit.EntryTypeRollback, actorID, map[string]any{
		"originalTaskId": taskID.String(),
		"method":         inverse.Method,
		"path":           inverse.Path,
	})
	if err != nil {
		return err
	}

	r.logger.Info("task rolled back",
		zap.String("task_id", taskID.String()),
		zap.String("actor", actorID))
	return nil
}

// releaseClaim puts a claimed task back to completed after a failed inverse
// call so a later rollback attempt can retry it.
func (r *RollbackManager) releaseClaim(taskID uuid.UUID) {
	if _, err := r.db.TransitionStatus(taskID, TaskStatusRolledBack, TaskStatusCompleted); err != nil {
		r.logger.Error("failed to release rollback claim",
			zap.String("task_id", taskID.String()),
			zap.Error(err))
	}
}

// recordedInverse scans the task's execution entries for the most recently
// recorded inverse action.
func (r *RollbackManager) recordedInverse(taskID uuid.UUID) (*inverseAction, error) {
	entries, err := r.auditDB.Query(audit.Filter{
		TaskID: &taskID,
		Types:  []audit.EntryType{audit.EntryTypeExecution},
	})
	if err != nil {
		return nil, err
	}

	for i := len(entries) - 1; i >= 0; i-- {
		var detail struct {
			Inverse *inverseAction `json:"inverse"`
		}
		if err := json.Unmarshal(entries[i].Detail, &detail); err != nil {
			continue
		}
		if detail.Inverse != nil {
			return detail.Inverse, nil
		}
	}
	return nil, nil
}
