package healthcheck

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/onboard"
)

// StartProbing registers the probe cycle on the shared scheduler. The probe
// timer is independent of sync polling; the two may interleave freely.
func (m *Monitor) StartProbing(scheduler *gocron.Scheduler, interval time.Duration) error {
	_, err := scheduler.Every(interval).Do(func() {
		ctx := context.Background()

		integrations, err := m.onboardDB.ListIntegrations()
		if err != nil {
			m.logger.Error("probe: list integrations", zap.Error(err))
			return
		}

		for _, integration := range integrations {
			if integration.Status == onboard.IntegrationStatusDisconnected {
				continue
			}
			if _, err := m.RunProbeCycle(ctx, integration); err != nil {
				m.logger.Error("probe cycle failed",
					zap.String("integration_id", integration.ID.String()),
					zap.Error(err))
			}
		}
	})
	return err
}
