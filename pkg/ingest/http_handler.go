package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/events"
)

// SecretSource resolves the webhook HMAC secret per service. Implemented by
// onboard.Service on top of the credential vault.
type SecretSource interface {
	WebhookSecret(ctx context.Context, service string) (string, error)
}

type HttpHandler struct {
	logger  *zap.Logger
	db      Database
	bus     *events.Bus
	secrets SecretSource
	dedupe  *Deduper
}

func NewHttpHandler(logger *zap.Logger, db Database, bus *events.Bus, secrets SecretSource, dedupeWindow time.Duration) *HttpHandler {
	return &HttpHandler{
		logger:  logger.Named("ingest"),
		db:      db,
		bus:     bus,
		secrets: secrets,
		dedupe:  NewDeduper(dedupeWindow),
	}
}
