package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/adapter"
	"github.com/agentgate-io/agentgate-engine/pkg/audit"
	"github.com/agentgate-io/agentgate-engine/pkg/events"
	"github.com/agentgate-io/agentgate-engine/pkg/reasoning"
	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

// AdapterProvider is the slice of adapter.Registry the executor needs.
type AdapterProvider interface {
	AdapterFor(service string, integrationID uuid.UUID) (*adapter.Adapter, error)
}

// plan is the validated shape of reasoning output: the call to perform and,
// when the action is reversible, its inverse.
type plan struct {
	Method  string          `json:"method"`
	Path    string          `json:"path"`
	Body    json.RawMessage `json:"body,omitempty"`
	Inverse *inverseAction  `json:"inverse,omitempty"`
	Summary string          `json:"summary,omitempty"`
}

type inverseAction struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Executor drives approved tasks through executing to completed or failed.
// Reasoning output is untrusted: it is schema-validated before any call is
// made against the upstream API.
type Executor struct {
	logger    *zap.Logger
	db        Database
	auditDB   audit.Database
	adapters  AdapterProvider
	reasoner  reasoning.Service
	validator *reasoning.OutputValidator
}

func NewExecutor(logger *zap.Logger, db Database, auditDB audit.Database,
	adapters AdapterProvider, reasoner reasoning.Service, validator *reasoning.OutputValidator) *Executor {
	return &Executor{
		logger:    logger.Named("executor"),
		db:        db,
		auditDB:   auditDB,
		adapters:  adapters,
		reasoner:  reasoner,
		validator: validator,
	}
}

// HandleApproved is the bus subscriber for approved tasks.
func (e *Executor) HandleApproved(ctx context.Context, event events.Event) error {
	taskID, err := uuid.Parse(event.ExternalID)
	if err != nil {
		e.logger.Error("approved event carries no task id", zap.String("external_id", event.ExternalID))
		return nil
	}
	return e.Execute(ctx, taskID)
}

// Execute runs one approved task. Duplicate deliveries lose the status guard
// and return without side effects.
func (e *Executor) Execute(ctx context.Context, taskID uuid.UUID) error {
	task, err := e.db.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status != TaskStatusApproved {
		return nil
	}

	allowed, err := e.verifyApproval(task)
	if err != nil {
		return err
	}
	if !allowed {
		return nil
	}

	moved, err := e.db.TransitionStatus(taskID, TaskStatusApproved, TaskStatusExecuting)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	// The execution entry lands before any side-effecting call so the trail
	// shows what was attempted even if the process dies mid-flight.
	err = e.auditDB.AppendDetail(taskID, audit.EntryTypeExecution, "engine", map[string]any{
		"phase":    "started",
		"taskType": task.Type,
		"service":  task.Service,
		"input":    task.Input,
	})
	if err != nil {
		return err
	}

	p, err := e.buildPlan(ctx, task)
	if err != nil {
		return e.fail(ctx, task, err)
	}

	a, err := e.adapters.AdapterFor(task.Service, task.IntegrationID)
	if err != nil {
		return e.fail(ctx, task, types.WrapFault(types.KindTaskExecution, "no adapter for task", err))
	}

	var body any
	if len(p.Body) > 0 {
		body = p.Body
	}
	resp, err := a.Call(ctx, adapter.Request{Method: p.Method, Path: p.Path, Body: body})
	if err != nil {
		return e.fail(ctx, task, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return e.fail(ctx, task, types.Faultf(types.KindTaskExecution,
			"%s returned status %d", task.Service, resp.StatusCode))
	}

	return e.complete(ctx, task, p, resp)
}

// verifyApproval enforces the gate invariant before anything executes:
// exactly one approval entry, and never a policy approval for high or
// critical risk.
func (e *Executor) verifyApproval(task *Task) (bool, error) {
	count, err := e.auditDB.CountByTaskAndType(task.ID, audit.EntryTypeApproval)
	if err != nil {
		return false, err
	}

	var violation string
	switch {
	case count != 1:
		violation = fmt.Sprintf("expected exactly one approval entry, found %d", count)
	case (task.RiskLevel == RiskLevelHigh || task.RiskLevel == RiskLevelCritical) && task.ApprovedBy == "policy":
		violation = "policy approval is not valid for " + string(task.RiskLevel) + " risk"
	default:
		return true, nil
	}

	e.logger.Error("refusing to execute task",
		zap.String("task_id", task.ID.String()),
		zap.String("violation", violation))

	err = e.auditDB.AppendDetail(task.ID, audit.EntryTypeSafetyCheck, "engine", map[string]any{
		"violation": violation,
	})
	return false, err
}

func (e *Executor) buildPlan(ctx context.Context, task *Task) (*plan, error) {
	prompt := fmt.Sprintf(
		"Plan a %q action against the %s API for the event below. Include an inverse call when the action is reversible.",
		task.Type, task.Service)

	raw, err := e.reasoner.Generate(ctx, prompt, task.Input)
	if err != nil {
		return nil, err
	}
	if err := e.validator.Validate(task.Type, raw); err != nil {
		return nil, err
	}

	var p plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, types.WrapFault(types.KindTaskExecution, "decode reasoning plan", err)
	}
	return &p, nil
}

func (e *Executor) complete(ctx context.Context, task *Task, p *plan, resp *adapter.Response) error {
	output := resp.Body
	if !json.Valid(output) {
		encoded, _ := json.Marshal(string(output))
		output = encoded
	}
	if err := e.db.SetOutput(task.ID, output); err != nil {
		return err
	}

	if _, err := e.db.TransitionStatus(task.ID, TaskStatusExecuting, TaskStatusCompleted); err != nil {
		return err
	}

	detail := map[string]any{
		"phase":   "completed",
		"method":  p.Method,
		"path":    p.Path,
		"status":  resp.StatusCode,
		"summary": p.Summary,
	}
	if p.Inverse != nil {
		detail["inverse"] = p.Inverse
	}
	if err := e.auditDB.AppendDetail(task.ID, audit.EntryTypeExecution, "engine", detail); err != nil {
		return err
	}

	e.logger.Info("task completed",
		zap.String("task_id", task.ID.String()),
		zap.String("task_type", task.Type))
	return nil
}

// fail handles an execution error. Retryable tasks hit by transient faults
// are handed back to approved so bus redelivery retries them; everything else
// lands in failed with an error entry.
func (e *Executor) fail(ctx context.Context, task *Task, cause error) error {
	kind := types.KindOf(cause)
	if task.Retryable && (kind == types.KindTransient || kind == types.KindRateLimit) {
		if _, err := e.db.TransitionStatus(task.ID, TaskStatusExecuting, TaskStatusApproved); err != nil {
			return err
		}
		e.logger.Warn("retryable task execution failed, requeued",
			zap.String("task_id", task.ID.String()),
			zap.Error(cause))
		return cause
	}

	if _, err := e.db.TransitionStatus(task.ID, TaskStatusExecuting, TaskStatusFailed); err != nil {
		return err
	}

	err := e.auditDB.AppendDetail(task.ID, audit.EntryTypeError, "engine", map[string]any{
		"error": cause.Error(),
		"kind":  kind,
	})
	if err != nil {
		return err
	}

	e.logger.Error("task failed",
		zap.String("task_id", task.ID.String()),
		zap.Error(cause))
	return nil
}
