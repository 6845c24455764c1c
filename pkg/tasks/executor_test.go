package tasks

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentgate-io/agentgate-engine/pkg/audit"
	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

func TestExecuteApprovedTaskCompletes(t *testing.T) {
	h := setupHarness(t)
	e := h.executor(t, staticReasoner{output: validPlan})
	ctx := context.Background()

	task := h.seedTask(t, TaskStatusApproved, RiskLevelLow, "policy", false)

	require.NoError(t, e.Execute(ctx, task.ID))

	stored, err := h.db.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusCompleted, stored.Status)
	require.JSONEq(t, `{"id": 42}`, string(stored.Output))

	require.Equal(t, 1, h.upstream.callCount())
	require.Equal(t, recordedCall{Method: "POST", Path: "/repos/acme/site/issues/1/comments"}, h.upstream.lastCall())

	executions := h.entriesFor(t, task.ID, audit.EntryTypeExecution)
	require.Len(t, executions, 2)
	require.Contains(t, string(executions[0].Detail), `"phase":"started"`)
	require.Contains(t, string(executions[1].Detail), `"inverse"`)
}

func TestExecuteIsIdempotentAgainstRedelivery(t *testing.T) {
	h := setupHarness(t)
	e := h.executor(t, staticReasoner{output: validPlan})
	ctx := context.Background()

	task := h.seedTask(t, TaskStatusApproved, RiskLevelLow, "policy", false)

	require.NoError(t, e.Execute(ctx, task.ID))
	require.NoError(t, e.Execute(ctx, task.ID))

	require.Equal(t, 1, h.upstream.callCount())
	require.Len(t, h.entriesFor(t, task.ID, audit.EntryTypeExecution), 2)
}

func TestHighRiskWithPolicyApprovalRefused(t *testing.T) {
	h := setupHarness(t)
	e := h.executor(t, staticReasoner{output: validPlan})
	ctx := context.Background()

	// a high risk task must never run on a policy approval, even if one
	// somehow got recorded
	task := h.seedTask(t, TaskStatusApproved, RiskLevelHigh, "policy", false)

	require.NoError(t, e.Execute(ctx, task.ID))

	stored, err := h.db.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusApproved, stored.Status)
	require.Zero(t, h.upstream.callCount())

	require.Len(t, h.entriesFor(t, task.ID, audit.EntryTypeSafetyCheck), 1)
	require.Empty(t, h.entriesFor(t, task.ID, audit.EntryTypeExecution))
}

func TestTaskWithoutApprovalEntryRefused(t *testing.T) {
	h := setupHarness(t)
	e := h.executor(t, staticReasoner{output: validPlan})
	ctx := context.Background()

	task := h.seedTask(t, TaskStatusApproved, RiskLevelLow, "", false)

	require.NoError(t, e.Execute(ctx, task.ID))

	stored, err := h.db.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusApproved, stored.Status)
	require.Zero(t, h.upstream.callCount())
	require.Len(t, h.entriesFor(t, task.ID, audit.EntryTypeSafetyCheck), 1)
}

func TestRejectedTaskNeverExecutes(t *testing.T) {
	h := setupHarness(t)
	e := h.executor(t, staticReasoner{output: validPlan})
	g := h.gate()
	ctx := context.Background()

	task := h.seedTask(t, TaskStatusPending, RiskLevelHigh, "", false)

	require.NoError(t, g.Reject(ctx, task.ID, "alice", "too risky"))
	require.NoError(t, e.Execute(ctx, task.ID))

	stored, err := h.db.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusRejected, stored.Status)
	require.Zero(t, h.upstream.callCount())
	require.Empty(t, h.entriesFor(t, task.ID, audit.EntryTypeExecution))
}

func TestApproveThenExecute(t *testing.T) {
	h := setupHarness(t)
	e := h.executor(t, staticReasoner{output: validPlan})
	g := h.gate()
	ctx := context.Background()

	task := h.seedTask(t, TaskStatusPending, RiskLevelHigh, "", false)

	require.NoError(t, g.Approve(ctx, task.ID, "alice"))

	stored, err := h.db.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusApproved, stored.Status)
	require.Equal(t, "alice", stored.ApprovedBy)

	require.NoError(t, e.Execute(ctx, task.ID))

	stored, err = h.db.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusCompleted, stored.Status)
}

func TestUpstreamFailureMarksTaskFailed(t *testing.T) {
	h := setupHarness(t)
	h.upstream.status = http.StatusBadGateway
	e := h.executor(t, staticReasoner{output: validPlan})
	ctx := context.Background()

	task := h.seedTask(t, TaskStatusApproved, RiskLevelLow, "policy", false)

	require.NoError(t, e.Execute(ctx, task.ID))

	stored, err := h.db.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusFailed, stored.Status)

	errorEntries := h.entriesFor(t, task.ID, audit.EntryTypeError)
	require.Len(t, errorEntries, 1)
}

func TestRetryableTransientFailureRequeues(t *testing.T) {
	h := setupHarness(t)
	h.upstream.status = http.StatusBadGateway
	e := h.executor(t, staticReasoner{output: validPlan})
	ctx := context.Background()

	task := h.seedTask(t, TaskStatusApproved, RiskLevelLow, "policy", true)

	err := e.Execute(ctx, task.ID)
	require.Error(t, err)
	require.Equal(t, types.KindTransient, types.KindOf(err))

	stored, getErr := h.db.GetTask(task.ID)
	require.NoError(t, getErr)
	require.Equal(t, TaskStatusApproved, stored.Status)
	require.Empty(t, h.entriesFor(t, task.ID, audit.EntryTypeError))
}

func TestInvalidReasoningOutputFailsTask(t *testing.T) {
	h := setupHarness(t)
	e := h.executor(t, staticReasoner{output: []byte(`{"path": "/no-method"}`)})
	ctx := context.Background()

	task := h.seedTask(t, TaskStatusApproved, RiskLevelLow, "policy", false)

	require.NoError(t, e.Execute(ctx, task.ID))

	stored, err := h.db.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusFailed, stored.Status)
	require.Zero(t, h.upstream.callCount())
	require.Len(t, h.entriesFor(t, task.ID, audit.EntryTypeError), 1)
}

func TestReasoningErrorFailsTask(t *testing.T) {
	h := setupHarness(t)
	e := h.executor(t, staticReasoner{err: types.NewFault(types.KindTaskExecution, "model unavailable")})
	ctx := context.Background()

	task := h.seedTask(t, TaskStatusApproved, RiskLevelLow, "policy", false)

	require.NoError(t, e.Execute(ctx, task.ID))

	stored, err := h.db.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusFailed, stored.Status)
	require.Zero(t, h.upstream.callCount())
}
