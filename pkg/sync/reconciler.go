package sync

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/adapter"
	"github.com/agentgate-io/agentgate-engine/pkg/events"
	"github.com/agentgate-io/agentgate-engine/pkg/onboard"
	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

// SourceProvider hands the reconciler a Source per integration. Implemented
// by adapter.Registry.
type SourceProvider interface {
	SourceFor(service string, integrationID uuid.UUID) (adapter.Source, error)
}

// Result summarizes one sync run. Skipped means another run held the
// per-(integration, entityType) slot and this trigger was dropped.
type Result struct {
	Skipped  bool
	Upserted int
	Failed   int
	Cursor   time.Time
}

// Reconciler keeps local entities converged with remote state. Full syncs
// paginate everything and advance the cursor only at the end; incremental
// syncs fetch entities updated after the cursor. Both paths upsert by stable
// external id, so replays are harmless.
type Reconciler struct {
	logger    *zap.Logger
	db        Database
	onboardDB onboard.Database
	sources   SourceProvider

	inflight gosync.Map
}

func NewReconciler(logger *zap.Logger, db Database, onboardDB onboard.Database, sources SourceProvider) *Reconciler {
	return &Reconciler{
		logger:    logger.Named("sync"),
		db:        db,
		onboardDB: onboardDB,
		sources:   sources,
	}
}

func slotKey(integrationID uuid.UUID, entityType string) string {
	return integrationID.String() + "/" + entityType
}

func (r *Reconciler) tryAcquire(integrationID uuid.UUID, entityType string) bool {
	_, loaded := r.inflight.LoadOrStore(slotKey(integrationID, entityType), struct{}{})
	return !loaded
}

func (r *Reconciler) release(integrationID uuid.UUID, entityType string) {
	r.inflight.Delete(slotKey(integrationID, entityType))
}

// FullSync reprocesses every remote entity of entityType. The cursor is
// advanced only after the whole pagination succeeds, so an interrupted run
// leaves it untouched and a retry reprocesses safely.
func (r *Reconciler) FullSync(ctx context.Context, integration onboard.Integration, entityType string) (Result, error) {
	if !r.tryAcquire(integration.ID, entityType) {
		return Result{Skipped: true}, nil
	}
	defer r.release(integration.ID, entityType)

	source, err := r.sources.SourceFor(integration.Service, integration.ID)
	if err != nil {
		return Result{}, err
	}

	var result Result
	var maxUpdated time.Time
	for page := 1; ; page++ {
		entities, hasMore, err := source.ListEntities(ctx, entityType, nil, page)
		if err != nil {
			// cursor untouched, retry starts over
			return result, fmt.Errorf("list %s page %d: %w", entityType, page, err)
		}

		r.upsertBatch(integration.ID, entityType, entities, &result, &maxUpdated)
		if !hasMore {
			break
		}
	}

	if !maxUpdated.IsZero() {
		if err := r.db.AdvanceCursor(integration.ID, entityType, maxUpdated); err != nil {
			return result, fmt.Errorf("advance cursor: %w", err)
		}
		result.Cursor = maxUpdated
	}
	if err := r.onboardDB.UpdateIntegrationLastSyncAt(integration.ID, time.Now()); err != nil {
		r.logger.Warn("failed to update last sync time", zap.Error(err))
	}

	r.logger.Info("full sync finished",
		zap.String("integration_id", integration.ID.String()),
		zap.String("entity_type", entityType),
		zap.Int("upserted", result.Upserted),
		zap.Int("failed", result.Failed))
	return result, nil
}

// IncrementalSync fetches entities updated after the stored cursor and
// advances the cursor to the maximum remote updatedAt observed in the batch,
// never beyond it.
func (r *Reconciler) IncrementalSync(ctx context.Context, integration onboard.Integration, entityType string) (Result, error) {
	if !r.tryAcquire(integration.ID, entityType) {
		return Result{Skipped: true}, nil
	}
	defer r.release(integration.ID, entityType)

	cursor, err := r.db.GetCursor(integration.ID, entityType)
	if err != nil {
		return Result{}, err
	}

	source, err := r.sources.SourceFor(integration.Service, integration.ID)
	if err != nil {
		return Result{}, err
	}

	var since *time.Time
	if !cursor.LastSyncedAt.IsZero() {
		since = &cursor.LastSyncedAt
	}

	var result Result
	var maxUpdated time.Time
	for page := 1; ; page++ {
		entities, hasMore, err := source.ListEntities(ctx, entityType, since, page)
		if err != nil {
			return result, fmt.Errorf("list %s page %d: %w", entityType, page, err)
		}

		r.upsertBatch(integration.ID, entityType, entities, &result, &maxUpdated)
		if !hasMore {
			break
		}
	}

	if !maxUpdated.IsZero() {
		if err := r.db.AdvanceCursor(integration.ID, entityType, maxUpdated); err != nil {
			return result, fmt.Errorf("advance cursor: %w", err)
		}
		result.Cursor = maxUpdated
	}
	if err := r.onboardDB.UpdateIntegrationLastSyncAt(integration.ID, time.Now()); err != nil {
		r.logger.Warn("failed to update last sync time", zap.Error(err))
	}

	return result, nil
}

// upsertBatch applies one page with per-entity failure isolation: a bad
// entity is logged and counted, the rest of the batch continues.
func (r *Reconciler) upsertBatch(integrationID uuid.UUID, entityType string, entities []adapter.RemoteEntity, result *Result, maxUpdated *time.Time) {
	for _, remote := range entities {
		if remote.DecodeErr != nil {
			result.Failed++
			r.logger.Warn("skipping undecodable entity",
				zap.String("entity_type", entityType),
				zap.Error(remote.DecodeErr))
			continue
		}
		err := r.db.UpsertEntity(&Entity{
			IntegrationID:   integrationID,
			EntityType:      entityType,
			ExternalID:      remote.ExternalID,
			Payload:         remote.Payload,
			RemoteUpdatedAt: remote.UpdatedAt,
		})
		if err != nil {
			result.Failed++
			r.logger.Warn("skipping entity after upsert failure",
				zap.String("entity_type", entityType),
				zap.String("external_id", remote.ExternalID),
				zap.Error(err))
			continue
		}
		result.Upserted++
		if remote.UpdatedAt.After(*maxUpdated) {
			*maxUpdated = remote.UpdatedAt
		}
	}
}

// eventEntityTypes maps webhook event types to the entity type they mutate.
var eventEntityTypes = map[string]string{
	"pull_request": "pull_request",
	"issues":       "issue",
	"repository":   "repository",
	"push":         "repository",
	"deployment":   "deployment",
	"file_update":  "file",
	"channel":      "channel",
	"status":       "status",
}

// HandleEvent is the webhook-driven incremental path: one event updates the
// single affected entity. Duplicate deliveries re-upsert the same row, which
// keeps the subscriber idempotent under at-least-once delivery.
func (r *Reconciler) HandleEvent(ctx context.Context, event events.Event) error {
	entityType, ok := eventEntityTypes[event.Type]
	if !ok {
		return nil
	}

	integrations, err := r.onboardDB.ListIntegrationsByService(event.Service)
	if err != nil {
		return types.WrapFault(types.KindSync, "list integrations", err)
	}

	remoteUpdatedAt := event.ReceivedAt
	var envelope struct {
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(event.Payload, &envelope); err == nil && !envelope.UpdatedAt.IsZero() {
		remoteUpdatedAt = envelope.UpdatedAt
	}

	for _, integration := range integrations {
		if integration.Status == onboard.IntegrationStatusDisconnected {
			continue
		}
		err := r.db.UpsertEntity(&Entity{
			IntegrationID:   integration.ID,
			EntityType:      entityType,
			ExternalID:      event.ExternalID,
			Payload:         event.Payload,
			RemoteUpdatedAt: remoteUpdatedAt,
		})
		if err != nil {
			return types.WrapFault(types.KindSync, "upsert entity from event", err)
		}
	}
	return nil
}

// TriggerFullSync runs a full sync for every tracked entity type of the
// integration, in the background of the calling goroutine. Started is false
// when every entity type already had a run in flight.
func (r *Reconciler) TriggerFullSync(ctx context.Context, integrationID uuid.UUID) (bool, error) {
	integration, err := r.onboardDB.GetIntegration(integrationID)
	if err != nil {
		return false, fmt.Errorf("get integration: %w", err)
	}

	source, err := r.sources.SourceFor(integration.Service, integration.ID)
	if err != nil {
		return false, err
	}

	started := false
	for _, entityType := range source.EntityTypes() {
		result, err := r.FullSync(ctx, *integration, entityType)
		if err != nil {
			r.logger.Error("full sync failed",
				zap.String("integration_id", integrationID.String()),
				zap.String("entity_type", entityType),
				zap.Error(err))
			continue
		}
		if !result.Skipped {
			started = true
		}
	}
	return started, nil
}

// Forget implements onboard.SyncTrigger for disconnects.
func (r *Reconciler) Forget(ctx context.Context, integrationID uuid.UUID) error {
	return r.db.DeleteByIntegration(integrationID)
}
