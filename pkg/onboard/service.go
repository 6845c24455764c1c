package onboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/types"
	"github.com/agentgate-io/agentgate-engine/pkg/vault"
)

// SyncTrigger is how the onboard layer kicks the reconciler without owning
// it. Implemented by sync.Reconciler.
type SyncTrigger interface {
	// TriggerFullSync starts a full sync for every tracked entity type of the
	// integration. Returns false when every type already had a sync in flight.
	TriggerFullSync(ctx context.Context, integrationID uuid.UUID) (bool, error)
	// Forget drops cursors and synced entities of a disconnected integration.
	Forget(ctx context.Context, integrationID uuid.UUID) error
}

// Service resolves credentials and webhook secrets for the rest of the
// system. It is the only reader of the encrypted credential blob.
type Service struct {
	logger *zap.Logger
	db     Database
	vault  vault.SourceConfig

	// fallbackWebhookSecret is used when an integration has no
	// webhook_secret credential of its own.
	fallbackWebhookSecret string
}

func NewService(logger *zap.Logger, db Database, v vault.SourceConfig, fallbackWebhookSecret string) *Service {
	return &Service{
		logger:                logger.Named("onboard"),
		db:                    db,
		vault:                 v,
		fallbackWebhookSecret: fallbackWebhookSecret,
	}
}

// Credentials decrypts the credential blob of an integration. A failed
// integrity check forces the integration into the error status; corrupted
// bytes are never returned to the caller.
func (s *Service) Credentials(ctx context.Context, integrationID uuid.UUID) (map[string]any, error) {
	integration, err := s.db.GetIntegration(integrationID)
	if err != nil {
		return nil, fmt.Errorf("get integration: %w", err)
	}
	if integration.Status == IntegrationStatusDisconnected {
		return nil, fmt.Errorf("integration %s is disconnected", integrationID)
	}

	cred, err := s.vault.Decrypt(integration.EncryptedCredentials)
	if err != nil {
		if types.IsKind(err, types.KindIntegrity) {
			s.logger.Error("credential integrity check failed, forcing integration into error status",
				zap.String("integration_id", integrationID.String()),
				zap.Error(err))
			if dbErr := s.db.UpdateIntegrationStatus(integrationID, IntegrationStatusError); dbErr != nil {
				s.logger.Error("failed to update integration status", zap.Error(dbErr))
			}
		}
		return nil, err
	}
	return cred, nil
}

// WebhookSecret returns the HMAC secret used to verify inbound deliveries
// for a service.
func (s *Service) WebhookSecret(ctx context.Context, service string) (string, error) {
	integrations, err := s.db.ListIntegrationsByService(service)
	if err != nil {
		return "", fmt.Errorf("list integrations: %w", err)
	}

	for _, integration := range integrations {
		if integration.Status == IntegrationStatusDisconnected {
			continue
		}
		cred, err := s.vault.Decrypt(integration.EncryptedCredentials)
		if err != nil {
			continue
		}
		if secret, ok := cred["webhook_secret"].(string); ok && secret != "" {
			return secret, nil
		}
	}

	if s.fallbackWebhookSecret != "" {
		return s.fallbackWebhookSecret, nil
	}
	return "", errors.New("no webhook secret configured for service " + service)
}
