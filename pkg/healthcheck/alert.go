package healthcheck

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/events"
)

type Alert struct {
	IntegrationID uuid.UUID   `json:"integrationId"`
	Service       string      `json:"service"`
	State         HealthState `json:"state"`
	Message       string      `json:"message"`
	Recovered     bool        `json:"recovered"`
	At            time.Time   `json:"at"`
}

type Alerter interface {
	Alert(ctx context.Context, alert Alert)
}

// BusAlerter logs alerts and publishes them on the alerts topic so any
// notification consumer has a single surface to subscribe to.
type BusAlerter struct {
	logger *zap.Logger
	bus    *events.Bus
}

func NewBusAlerter(logger *zap.Logger, bus *events.Bus) *BusAlerter {
	return &BusAlerter{logger: logger.Named("alerts"), bus: bus}
}

func (a *BusAlerter) Alert(ctx context.Context, alert Alert) {
	if alert.Recovered {
		a.logger.Info("integration recovered",
			zap.String("integration_id", alert.IntegrationID.String()),
			zap.String("service", alert.Service))
	} else {
		a.logger.Warn("integration health alert",
			zap.String("integration_id", alert.IntegrationID.String()),
			zap.String("service", alert.Service),
			zap.String("state", string(alert.State)),
			zap.String("message", alert.Message))
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		a.logger.Error("marshal alert", zap.Error(err))
		return
	}
	a.bus.Publish(ctx, events.TopicAlerts, events.Event{
		ID:         uuid.New(),
		Service:    alert.Service,
		Type:       "health_alert",
		ExternalID: alert.IntegrationID.String(),
		Payload:    payload,
		ReceivedAt: alert.At,
	})
}
