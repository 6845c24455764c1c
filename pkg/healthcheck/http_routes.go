package healthcheck

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type statusResponse struct {
	IntegrationID uuid.UUID       `json:"integrationId"`
	Status        HealthState     `json:"status"`
	LastCheckedAt time.Time       `json:"lastCheckedAt"`
	Checks        map[string]bool `json:"checks"`
}

// Register exposes the read-only status endpoint consumed by the CRUD layer.
func (m *Monitor) Register(e *echo.Echo) {
	e.GET("/api/v1/integrations/:integrationId/status", m.GetStatus)
}

func (m *Monitor) GetStatus(ctx echo.Context) error {
	id, err := uuid.Parse(ctx.Param("integrationId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid integration id")
	}

	status, err := m.db.GetStatus(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "get status")
	}

	return ctx.JSON(http.StatusOK, statusResponse{
		IntegrationID: status.IntegrationID,
		Status:        status.Status,
		LastCheckedAt: status.LastCheckedAt,
		Checks: map[string]bool{
			"authentication": status.Authentication,
			"rateLimit":      status.RateLimit,
			"apiAccess":      status.APIAccess,
			"webhooks":       status.Webhooks,
		},
	})
}
