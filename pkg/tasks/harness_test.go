package tasks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/agentgate-io/agentgate-engine/pkg/adapter"
	"github.com/agentgate-io/agentgate-engine/pkg/audit"
	"github.com/agentgate-io/agentgate-engine/pkg/config"
	"github.com/agentgate-io/agentgate-engine/pkg/events"
	"github.com/agentgate-io/agentgate-engine/pkg/onboard"
	"github.com/agentgate-io/agentgate-engine/pkg/reasoning"
)

type staticCreds struct{}

func (staticCreds) Credentials(ctx context.Context, integrationID uuid.UUID) (map[string]any, error) {
	return map[string]any{"token": "test-token"}, nil
}

type nopReporter struct{}

func (nopReporter) ReportDegraded(ctx context.Context, integrationID uuid.UUID, reason string)  {}
func (nopReporter) ReportUnhealthy(ctx context.Context, integrationID uuid.UUID, reason string) {}

type staticReasoner struct {
	output json.RawMessage
	err    error
}

func (r staticReasoner) Generate(ctx context.Context, prompt string, taskContext json.RawMessage) (json.RawMessage, error) {
	return r.output, r.err
}

// upstream records calls so tests can assert what hit the fake API.
type upstream struct {
	mu     sync.Mutex
	calls  []recordedCall
	status int
	body   string

	// hold, when set, parks every request until the channel closes
	hold chan struct{}
}

type recordedCall struct {
	Method string
	Path   string
}

func (u *upstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.calls = append(u.calls, recordedCall{Method: r.Method, Path: r.URL.Path})
		status, body, hold := u.status, u.body, u.hold
		u.mu.Unlock()

		if hold != nil {
			<-hold
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func (u *upstream) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

func (u *upstream) lastCall() recordedCall {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[len(u.calls)-1]
}

type harness struct {
	db        Database
	auditDB   audit.Database
	onboardDB onboard.Database
	bus       *events.Bus
	registry  *adapter.Registry
	upstream  *upstream

	integration onboard.Integration
}

func setupHarness(t *testing.T) *harness {
	t.Helper()

	orm, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)

	db := NewDatabase(orm)
	require.NoError(t, db.Initialize())
	auditDB := audit.NewDatabase(orm)
	require.NoError(t, auditDB.Initialize())
	onboardDB := onboard.NewDatabase(orm)
	require.NoError(t, onboardDB.Initialize())

	up := &upstream{status: http.StatusCreated, body: `{"id": 42}`}
	server := httptest.NewServer(up.handler())
	t.Cleanup(server.Close)

	registry := adapter.NewRegistry(
		adapter.RetryPolicy{MaxRetries: 1, BaseBackoff: time.Millisecond},
		staticCreds{}, nopReporter{}, zap.NewNop(),
	).WithBaseURLs(map[string]string{
		"github": server.URL,
		"vercel": server.URL,
		"slack":  server.URL,
	})

	integration := onboard.Integration{
		ID:      uuid.New(),
		Service: "github",
		Status:  onboard.IntegrationStatusConnected,
	}
	require.NoError(t, onboardDB.CreateIntegration(&integration))

	return &harness{
		db:          db,
		auditDB:     auditDB,
		onboardDB:   onboardDB,
		bus:         events.NewBus(zap.NewNop()),
		registry:    registry,
		upstream:    up,
		integration: integration,
	}
}

func (h *harness) classifier() *Classifier {
	return NewClassifier(zap.NewNop(), h.db, h.auditDB, h.onboardDB, h.bus,
		config.Risk{MediumAt: 3, HighAt: 5, CriticalAt: 7})
}

func (h *harness) executor(t *testing.T, reasoner reasoning.Service) *Executor {
	t.Helper()
	validator, err := reasoning.NewOutputValidator(reasoning.DefaultSchemas())
	require.NoError(t, err)
	return NewExecutor(zap.NewNop(), h.db, h.auditDB, h.registry, reasoner, validator)
}

func (h *harness) gate() *Gate {
	return NewGate(zap.NewNop(), h.db, h.auditDB, h.bus)
}

func (h *harness) rollbackManager() *RollbackManager {
	return NewRollbackManager(zap.NewNop(), h.db, h.auditDB, h.registry)
}

// seedTask inserts a task with one approval audit entry, mirroring the state
// the classifier and gate leave behind.
func (h *harness) seedTask(t *testing.T, status TaskStatus, risk RiskLevel, approvedBy string, retryable bool) *Task {
	t.Helper()

	task := Task{
		ID:            uuid.New(),
		IntegrationID: h.integration.ID,
		Service:       "github",
		Type:          "post_message",
		RiskLevel:     risk,
		Status:        status,
		SourceEventID: uuid.NewString(),
		Input:         json.RawMessage(`{"action": "opened"}`),
		Cost:          decimal.RequireFromString("0.01"),
		Environment:   "development",
		Retryable:     retryable,
	}
	if approvedBy != "" {
		task.ApprovedBy = approvedBy
	}
	created, err := h.db.CreateTask(&task)
	require.NoError(t, err)
	require.True(t, created)

	if approvedBy != "" {
		require.NoError(t, h.auditDB.AppendDetail(task.ID, audit.EntryTypeApproval, approvedBy, map[string]any{
			"approvedBy": approvedBy,
		}))
	}
	return &task
}

func (h *harness) entriesFor(t *testing.T, taskID uuid.UUID, entryType audit.EntryType) []audit.Entry {
	t.Helper()
	entries, err := h.auditDB.Query(audit.Filter{
		TaskID: &taskID,
		Types:  []audit.EntryType{entryType},
	})
	require.NoError(t, err)
	return entries
}

var validPlan = json.RawMessage(`{
	"method": "POST",
	"path": "/repos/acme/site/issues/1/comments",
	"body": {"body": "reviewed"},
	"inverse": {"method": "DELETE", "path": "/repos/acme/site/issues/comments/42"},
	"summary": "post review comment"
}`)
