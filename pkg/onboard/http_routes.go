package onboard

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/onboard/api"
)

func (h *HttpHandler) Register(e *echo.Echo) {
	v1 := e.Group("/api/v1")

	i := v1.Group("/integrations")
	i.POST("", h.Connect)
	i.GET("", h.ListIntegrations)
	i.GET("/:integrationId", h.GetIntegration)
	i.DELETE("/:integrationId", h.Disconnect)
	i.POST("/:integrationId/sync", h.TriggerSync)
}

func bindValidate(ctx echo.Context, i interface{}) error {
	if err := ctx.Bind(i); err != nil {
		return err
	}
	if err := ctx.Validate(i); err != nil {
		return err
	}
	return nil
}

func toAPI(integration Integration) api.Integration {
	return api.Integration{
		ID:         integration.ID,
		Service:    integration.Service,
		Status:     string(integration.Status),
		Metadata:   integration.Metadata,
		LastSyncAt: integration.LastSyncAt,
		CreatedAt:  integration.CreatedAt,
	}
}

// Connect creates an integration from freshly obtained OAuth/token
// credentials and kicks off the first full sync.
func (h *HttpHandler) Connect(ctx echo.Context) error {
	var req api.ConnectRequest
	if err := bindValidate(ctx, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cipherText, err := h.vault.Encrypt(req.Credentials)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "encrypt credentials")
	}

	integration := Integration{
		ID:                   uuid.New(),
		Service:              req.Service,
		Status:               IntegrationStatusConnected,
		EncryptedCredentials: cipherText,
		Metadata:             req.Metadata,
	}
	if err := h.db.CreateIntegration(&integration); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "create integration")
	}

	// Detached from the request context: echo cancels it as soon as the 201
	// goes out, and the first full sync must outlive the request.
	go func() {
		if _, err := h.syncer.TriggerFullSync(context.Background(), integration.ID); err != nil {
			h.logger.Error("initial full sync failed",
				zap.String("integration_id", integration.ID.String()),
				zap.Error(err))
		}
	}()

	return ctx.JSON(http.StatusCreated, toAPI(integration))
}

func (h *HttpHandler) ListIntegrations(ctx echo.Context) error {
	integrations, err := h.db.ListIntegrations()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list integrations")
	}

	out := make([]api.Integration, 0, len(integrations))
	for _, integration := range integrations {
		out = append(out, toAPI(integration))
	}
	return ctx.JSON(http.StatusOK, out)
}

func (h *HttpHandler) GetIntegration(ctx echo.Context) error {
	id, err := uuid.Parse(ctx.Param("integrationId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid integration id")
	}

	integration, err := h.db.GetIntegration(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "integration not found")
	}
	return ctx.JSON(http.StatusOK, toAPI(*integration))
}

// Disconnect wipes credentials, drops synced state and removes the row.
func (h *HttpHandler) Disconnect(ctx echo.Context) error {
	id, err := uuid.Parse(ctx.Param("integrationId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid integration id")
	}

	if err := h.syncer.Forget(ctx.Request().Context(), id); err != nil {
		h.logger.Error("failed to drop synced state", zap.String("integration_id", id.String()), zap.Error(err))
	}

	if err := h.db.DeleteIntegration(id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "delete integration")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// TriggerSync starts a manual full sync. Started is false when a sync was
// already in flight for every tracked entity type.
func (h *HttpHandler) TriggerSync(ctx echo.Context) error {
	id, err := uuid.Parse(ctx.Param("integrationId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid integration id")
	}

	started, err := h.syncer.TriggerFullSync(ctx.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return ctx.JSON(http.StatusAccepted, api.SyncResponse{Started: started})
}
