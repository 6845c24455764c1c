package tasks

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentgate-io/agentgate-engine/pkg/audit"
	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

func TestRollbackCompletedTask(t *testing.T) {
	h := setupHarness(t)
	e := h.executor(t, staticReasoner{output: validPlan})
	r := h.rollbackManager()
	ctx := context.Background()

	task := h.seedTask(t, TaskStatusApproved, RiskLevelLow, "policy", false)
	require.NoError(t, e.Execute(ctx, task.ID))

	require.NoError(t, r.Rollback(ctx, task.ID, "alice"))

	stored, err := h.db.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusRolledBack, stored.Status)

	// the inverse recorded at completion is what got replayed
	require.Equal(t, recordedCall{Method: "DELETE", Path: "/repos/acme/site/issues/comments/42"}, h.upstream.lastCall())

	rollbacks := h.entriesFor(t, task.ID, audit.EntryTypeRollback)
	require.Len(t, rollbacks, 1)
	require.Equal(t, "alice", rollbacks[0].Actor)
	require.Contains(t, string(rollbacks[0].Detail), task.ID.String())
}

func TestRollbackTwiceReturnsAlreadyRolledBack(t *testing.T) {
	h := setupHarness(t)
	e := h.executor(t, staticReasoner{output: validPlan})
	r := h.rollbackManager()
	ctx := context.Background()

	task := h.seedTask(t, TaskStatusApproved, RiskLevelLow, "policy", false)
	require.NoError(t, e.Execute(ctx, task.ID))
	require.NoError(t, r.Rollback(ctx, task.ID, "alice"))

	err := r.Rollback(ctx, task.ID, "alice")
	require.Error(t, err)
	require.Equal(t, types.KindAlreadyRolledBack, types.KindOf(err))
	require.Len(t, h.entriesFor(t, task.ID, audit.EntryTypeRollback), 1)
}

func TestConcurrentRollbacksReplayInverseOnce(t *testing.T) {
	h := setupHarness(t)
	e := h.executor(t, staticReasoner{output: validPlan})
	r := h.rollbackManager()
	ctx := context.Background()

	task := h.seedTask(t, TaskStatusApproved, RiskLevelLow, "policy", false)
	require.NoError(t, e.Execute(ctx, task.ID))
	callsBefore := h.upstream.callCount()

	hold := make(chan struct{})
	h.upstream.hold = hold

	firstErr := make(chan error, 1)
	go func() { firstErr <- r.Rollback(ctx, task.ID, "alice") }()

	// wait until the first rollback is parked inside the inverse call
	require.Eventually(t, func() bool {
		return h.upstream.callCount() == callsBefore+1
	}, 2*time.Second, 5*time.Millisecond)

	// the task is already claimed, a second rollback never reaches the upstream
	err := r.Rollback(ctx, task.ID, "bob")
	require.Error(t, err)
	require.Equal(t, types.KindAlreadyRolledBack, types.KindOf(err))
	require.Equal(t, callsBefore+1, h.upstream.callCount())

	close(hold)
	require.NoError(t, <-firstErr)

	stored, err := h.db.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusRolledBack, stored.Status)
	require.Len(t, h.entriesFor(t, task.ID, audit.EntryTypeRollback), 1)
}

func TestFailedInverseCallLeavesTaskRetryable(t *testing.T) {
	h := setupHarness(t)
	e := h.executor(t, staticReasoner{output: validPlan})
	r := h.rollbackManager()
	ctx := context.Background()

	task := h.seedTask(t, TaskStatusApproved, RiskLevelLow, "policy", false)
	require.NoError(t, e.Execute(ctx, task.ID))

	h.upstream.status = http.StatusBadGateway
	err := r.Rollback(ctx, task.ID, "alice")
	require.Error(t, err)

	stored, getErr := h.db.GetTask(task.ID)
	require.NoError(t, getErr)
	require.Equal(t, TaskStatusCompleted, stored.Status)
	require.Empty(t, h.entriesFor(t, task.ID, audit.EntryTypeRollback))

	// upstream recovers and the retried rollback goes through
	h.upstream.status = http.StatusOK
	require.NoError(t, r.Rollback(ctx, task.ID, "alice"))

	stored, getErr = h.db.GetTask(task.ID)
	require.NoError(t, getErr)
	require.Equal(t, TaskStatusRolledBack, stored.Status)
	require.Len(t, h.entriesFor(t, task.ID, audit.EntryTypeRollback), 1)
}

func TestRollbackWithoutInverseNotRollbackable(t *testing.T) {
	h := setupHarness(t)
	r := h.rollbackManager()
	ctx := context.Background()

	// plan without an inverse: completion records no way back
	planNoInverse := []byte(`{"method": "POST", "path": "/messages", "body": {"text": "hi"}}`)
	e := h.executor(t, staticReasoner{output: planNoInverse})

	task := h.seedTask(t, TaskStatusApproved, RiskLevelLow, "policy", false)
	require.NoError(t, e.Execute(ctx, task.ID))

	err := r.Rollback(ctx, task.ID, "alice")
	require.Error(t, err)
	require.Equal(t, types.KindNotRollbackable, types.KindOf(err))

	stored, getErr := h.db.GetTask(task.ID)
	require.NoError(t, getErr)
	require.Equal(t, TaskStatusCompleted, stored.Status)
	require.Empty(t, h.entriesFor(t, task.ID, audit.EntryTypeRollback))
}

func TestRollbackNonCompletedTaskNotRollbackable(t *testing.T) {
	h := setupHarness(t)
	r := h.rollbackManager()
	ctx := context.Background()

	task := h.seedTask(t, TaskStatusPending, RiskLevelHigh, "", false)

	err := r.Rollback(ctx, task.ID, "alice")
	require.Error(t, err)
	require.Equal(t, types.KindNotRollbackable, types.KindOf(err))
	require.Empty(t, h.entriesFor(t, task.ID, audit.EntryTypeRollback))
}
