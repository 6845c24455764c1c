package healthcheck

import (
	"time"

	"github.com/google/uuid"
)

type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateDegraded  HealthState = "degraded"
	HealthStateUnhealthy HealthState = "unhealthy"
)

// Checks holds the outcome of the four probe checks of one cycle.
type Checks struct {
	Authentication bool
	RateLimit      bool
	APIAccess      bool
	Webhooks       bool
}

func (c Checks) allPassing() bool {
	return c.Authentication && c.RateLimit && c.APIAccess && c.Webhooks
}

// HealthStatus is overwritten each probe cycle; transitions surface as alert
// events, not as history rows.
type HealthStatus struct {
	IntegrationID uuid.UUID `gorm:"primaryKey;type:uuid"`
	Status        HealthState
	LastCheckedAt time.Time

	Authentication bool
	RateLimit      bool
	APIAccess      bool
	Webhooks       bool

	UpdatedAt time.Time
}
