package healthcheck

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/adapter"
	"github.com/agentgate-io/agentgate-engine/pkg/ingest"
	"github.com/agentgate-io/agentgate-engine/pkg/onboard"
	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

const (
	outcomeWindow     = 15 * time.Minute
	webhookWindow     = 24 * time.Hour
	slowCallThreshold = 2 * time.Second
	realertInterval   = time.Hour
)

// SourceProvider is the slice of adapter.Registry the monitor needs.
type SourceProvider interface {
	SourceFor(service string, integrationID uuid.UUID) (adapter.Source, error)
	OutcomesFor(integrationID uuid.UUID, window time.Duration) []adapter.Outcome
}

type alertRecord struct {
	state       HealthState
	lastAlertAt time.Time
}

// Monitor probes every integration on a fixed interval and maintains the
// healthy/degraded/unhealthy state machine. Authentication and webhook
// verification are load-bearing: either failing makes the integration
// unhealthy regardless of the other checks.
type Monitor struct {
	logger    *zap.Logger
	db        Database
	onboardDB onboard.Database
	ingestDB  ingest.Database
	sources   SourceProvider
	alerter   Alerter

	mu         sync.Mutex
	lastAlerts map[uuid.UUID]alertRecord
}

func NewMonitor(logger *zap.Logger, db Database, onboardDB onboard.Database, ingestDB ingest.Database,
	sources SourceProvider, alerter Alerter) *Monitor {
	return &Monitor{
		logger:     logger.Named("healthcheck"),
		db:         db,
		onboardDB:  onboardDB,
		ingestDB:   ingestDB,
		sources:    sources,
		alerter:    alerter,
		lastAlerts: make(map[uuid.UUID]alertRecord),
	}
}

// RunProbeCycle executes the four checks for one integration and applies the
// transition rules.
func (m *Monitor) RunProbeCycle(ctx context.Context, integration onboard.Integration) (HealthStatus, error) {
	checks := m.runChecks(ctx, integration)
	return m.applyChecks(ctx, integration, checks)
}

func (m *Monitor) runChecks(ctx context.Context, integration onboard.Integration) Checks {
	checks := Checks{RateLimit: true, Webhooks: true}

	source, err := m.sources.SourceFor(integration.Service, integration.ID)
	if err != nil {
		m.logger.Warn("no source for integration", zap.String("service", integration.Service), zap.Error(err))
		return checks
	}

	start := time.Now()
	authErr := source.CheckAuth(ctx)
	latency := time.Since(start)

	checks.Authentication = authErr == nil || types.KindOf(authErr) != types.KindAuthentication
	checks.APIAccess = authErr == nil && latency < slowCallThreshold

	for _, outcome := range m.sources.OutcomesFor(integration.ID, outcomeWindow) {
		if outcome.Kind == types.KindRateLimit {
			checks.RateLimit = false
			break
		}
	}

	_, rejected, err := m.ingestDB.CountDeliveriesSince(integration.Service, time.Now().Add(-webhookWindow))
	if err != nil {
		m.logger.Warn("webhook delivery check failed", zap.Error(err))
	} else if rejected > 0 {
		checks.Webhooks = false
	}

	return checks
}

func nextState(checks Checks) HealthState {
	switch {
	case !checks.Authentication || !checks.Webhooks:
		return HealthStateUnhealthy
	case !checks.allPassing():
		return HealthStateDegraded
	default:
		return HealthStateHealthy
	}
}

func (m *Monitor) applyChecks(ctx context.Context, integration onboard.Integration, checks Checks) (HealthStatus, error) {
	previous, err := m.db.GetStatus(integration.ID)
	if err != nil {
		return HealthStatus{}, err
	}

	state := nextState(checks)
	status := HealthStatus{
		IntegrationID:  integration.ID,
		Status:         state,
		LastCheckedAt:  time.Now(),
		Authentication: checks.Authentication,
		RateLimit:      checks.RateLimit,
		APIAccess:      checks.APIAccess,
		Webhooks:       checks.Webhooks,
	}
	if err := m.db.UpsertStatus(&status); err != nil {
		return HealthStatus{}, err
	}

	m.syncIntegrationStatus(integration, state)
	m.emitAlerts(ctx, integration, previous.Status, state, checks)

	return status, nil
}

// syncIntegrationStatus mirrors the health state onto the integration row:
// unhealthy forces error, recovery restores connected. Degraded keeps the
// integration usable.
func (m *Monitor) syncIntegrationStatus(integration onboard.Integration, state HealthState) {
	var target onboard.IntegrationStatus
	switch state {
	case HealthStateUnhealthy:
		target = onboard.IntegrationStatusError
	case HealthStateHealthy:
		target = onboard.IntegrationStatusConnected
	default:
		return
	}
	if integration.Status == target || integration.Status == onboard.IntegrationStatusDisconnected {
		return
	}
	if err := m.onboardDB.UpdateIntegrationStatus(integration.ID, target); err != nil {
		m.logger.Error("failed to update integration status", zap.Error(err))
	}
}

// emitAlerts applies the alerting policy: alert immediately on the first
// transition into degraded/unhealthy, re-alert at most once per hour while
// the state persists, alert exactly once on recovery.
func (m *Monitor) emitAlerts(ctx context.Context, integration onboard.Integration, previous, current HealthState, checks Checks) {
	m.mu.Lock()
	record := m.lastAlerts[integration.ID]
	m.mu.Unlock()

	now := time.Now()

	switch {
	case current == HealthStateHealthy:
		if previous != HealthStateHealthy {
			m.alerter.Alert(ctx, Alert{
				IntegrationID: integration.ID,
				Service:       integration.Service,
				State:         current,
				Message:       "integration recovered",
				Recovered:     true,
				At:            now,
			})
		}
		m.setAlertRecord(integration.ID, alertRecord{state: current})

	case current != record.state || now.Sub(record.lastAlertAt) >= realertInterval:
		m.alerter.Alert(ctx, Alert{
			IntegrationID: integration.ID,
			Service:       integration.Service,
			State:         current,
			Message:       describeFailure(checks),
			At:            now,
		})
		m.setAlertRecord(integration.ID, alertRecord{state: current, lastAlertAt: now})
	}
}

func (m *Monitor) setAlertRecord(id uuid.UUID, record alertRecord) {
	m.mu.Lock()
	m.lastAlerts[id] = record
	m.mu.Unlock()
}

func describeFailure(checks Checks) string {
	switch {
	case !checks.Authentication:
		return "authentication check failed"
	case !checks.Webhooks:
		return "webhook delivery verification failed"
	case !checks.RateLimit:
		return "rate limit near exhaustion"
	case !checks.APIAccess:
		return "API responding slowly or unavailable"
	default:
		return "all checks passing"
	}
}

// IsSyncable gates the sync poller: unhealthy integrations are skipped until
// they recover.
func (m *Monitor) IsSyncable(ctx context.Context, integrationID uuid.UUID) bool {
	status, err := m.db.GetStatus(integrationID)
	if err != nil {
		return true
	}
	return status.Status != HealthStateUnhealthy
}

// ReportDegraded implements adapter.StatusReporter for throttling observed
// outside a probe cycle.
func (m *Monitor) ReportDegraded(ctx context.Context, integrationID uuid.UUID, reason string) {
	m.reportOutOfCycle(ctx, integrationID, HealthStateDegraded, reason, Checks{
		Authentication: true, RateLimit: false, APIAccess: true, Webhooks: true,
	})
}

// ReportUnhealthy implements adapter.StatusReporter for authentication
// failures observed on live calls.
func (m *Monitor) ReportUnhealthy(ctx context.Context, integrationID uuid.UUID, reason string) {
	m.reportOutOfCycle(ctx, integrationID, HealthStateUnhealthy, reason, Checks{
		Authentication: false, RateLimit: true, APIAccess: true, Webhooks: true,
	})
}

func (m *Monitor) reportOutOfCycle(ctx context.Context, integrationID uuid.UUID, state HealthState, reason string, checks Checks) {
	integration, err := m.onboardDB.GetIntegration(integrationID)
	if err != nil {
		m.logger.Warn("report for unknown integration", zap.String("integration_id", integrationID.String()), zap.Error(err))
		return
	}

	status := HealthStatus{
		IntegrationID:  integrationID,
		Status:         state,
		LastCheckedAt:  time.Now(),
		Authentication: checks.Authentication,
		RateLimit:      checks.RateLimit,
		APIAccess:      checks.APIAccess,
		Webhooks:       checks.Webhooks,
	}
	if err := m.db.UpsertStatus(&status); err != nil {
		m.logger.Error("upsert status", zap.Error(err))
		return
	}

	m.syncIntegrationStatus(*integration, state)

	m.mu.Lock()
	record := m.lastAlerts[integrationID]
	m.mu.Unlock()
	now := time.Now()
	if state != record.state || now.Sub(record.lastAlertAt) >= realertInterval {
		m.alerter.Alert(ctx, Alert{
			IntegrationID: integrationID,
			Service:       integration.Service,
			State:         state,
			Message:       reason,
			At:            now,
		})
		m.setAlertRecord(integrationID, alertRecord{state: state, lastAlertAt: now})
	}
}
