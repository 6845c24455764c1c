package sync

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/onboard"
)

// HealthGate lets the poller skip integrations the health monitor marked
// unhealthy. Implemented by healthcheck.Monitor.
type HealthGate interface {
	IsSyncable(ctx context.Context, integrationID uuid.UUID) bool
}

// StartPolling registers the timed incremental-sync fallback on the shared
// scheduler. Webhook-driven updates remain the primary path; this poll just
// catches anything a missed delivery left behind.
func (r *Reconciler) StartPolling(scheduler *gocron.Scheduler, interval time.Duration, gate HealthGate) error {
	_, err := scheduler.Every(interval).Do(func() {
		ctx := context.Background()

		integrations, err := r.onboardDB.ListIntegrations()
		if err != nil {
			r.logger.Error("poll: list integrations", zap.Error(err))
			return
		}

		for _, integration := range integrations {
			if integration.Status == onboard.IntegrationStatusDisconnected {
				continue
			}
			if gate != nil && !gate.IsSyncable(ctx, integration.ID) {
				r.logger.Debug("poll: skipping unhealthy integration",
					zap.String("integration_id", integration.ID.String()))
				continue
			}

			source, err := r.sources.SourceFor(integration.Service, integration.ID)
			if err != nil {
				r.logger.Warn("poll: no source for integration",
					zap.String("service", integration.Service), zap.Error(err))
				continue
			}

			for _, entityType := range source.EntityTypes() {
				result, err := r.IncrementalSync(ctx, integration, entityType)
				if err != nil {
					r.logger.Error("poll: incremental sync failed",
						zap.String("integration_id", integration.ID.String()),
						zap.String("entity_type", entityType),
						zap.Error(err))
					continue
				}
				if result.Upserted > 0 || result.Failed > 0 {
					r.logger.Info("poll: incremental sync finished",
						zap.String("integration_id", integration.ID.String()),
						zap.String("entity_type", entityType),
						zap.Int("upserted", result.Upserted),
						zap.Int("failed", result.Failed))
				}
			}
		}
	})
	return err
}
