package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/events"
)

func (h *HttpHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/:service/receive", h.Receive)
}

// Receive verifies, normalizes and acknowledges one inbound delivery. The
// response never waits on downstream processing; publication is
// fire-and-forget so slow subscribers cannot cause provider redelivery
// storms.
func (h *HttpHandler) Receive(ctx echo.Context) error {
	service := ctx.Param("service")
	scheme := schemeFor(service)

	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body")
	}

	secret, err := h.secrets.WebhookSecret(ctx.Request().Context(), service)
	if err != nil {
		h.logger.Warn("no webhook secret available",
			zap.String("service", service), zap.Error(err))
		return echo.NewHTTPError(http.StatusUnauthorized, "signature verification failed")
	}

	provided := ctx.Request().Header.Get(scheme.signatureHeader)
	verified := verifySignature(secret, body, provided, scheme)

	eventType := ctx.Request().Header.Get(scheme.eventTypeHeader)
	externalID := ctx.Request().Header.Get(scheme.deliveryHeader)
	if eventType == "" || externalID == "" {
		var envelope struct {
			ID   json.Number `json:"id"`
			Type string      `json:"type"`
		}
		_ = json.Unmarshal(body, &envelope)
		if eventType == "" {
			eventType = envelope.Type
		}
		if externalID == "" {
			externalID = envelope.ID.String()
		}
	}
	if externalID == "" {
		externalID = payloadDigest(body)
	}

	receivedAt := time.Now()
	receipt := WebhookEvent{
		ID:                 uuid.New(),
		Service:            service,
		EventType:          eventType,
		ExternalDeliveryID: externalID,
		Payload:            body,
		ReceivedAt:         receivedAt,
		Verified:           verified,
	}
	if err := h.db.CreateWebhookEvent(&receipt); err != nil {
		h.logger.Error("failed to persist webhook receipt", zap.Error(err))
	}

	if !verified {
		h.logger.Warn("rejected webhook with invalid signature",
			zap.String("service", service),
			zap.String("event_type", eventType),
			zap.String("delivery_id", externalID))
		return echo.NewHTTPError(http.StatusUnauthorized, "signature verification failed")
	}

	event := events.Event{
		ID:         uuid.New(),
		Service:    service,
		Type:       eventType,
		ExternalID: externalID,
		Payload:    body,
		ReceivedAt: receivedAt,
	}

	if h.dedupe.Seen(event.DedupeKey()) {
		h.logger.Info("acknowledged duplicate delivery without republishing",
			zap.String("event", event.DedupeKey()))
		return ctx.JSON(http.StatusOK, map[string]string{"status": "duplicate"})
	}

	// Detached from the request context: delivery must outlive the response.
	h.bus.Publish(context.Background(), events.TopicEvents(service), event)

	return ctx.JSON(http.StatusOK, map[string]string{"status": "accepted"})
}
