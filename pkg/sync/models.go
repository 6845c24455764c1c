package sync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SyncCursor is the incremental watermark for one (integration, entity type)
// pair. It only ever moves forward.
type SyncCursor struct {
	IntegrationID uuid.UUID `gorm:"primaryKey;type:uuid"`
	EntityType    string    `gorm:"primaryKey"`
	LastSyncedAt  time.Time
	ETag          string

	UpdatedAt time.Time
}

// Entity is the local copy of one remote object. AgentChecked is local-only
// and survives upserts from remote state.
type Entity struct {
	ID            uuid.UUID `gorm:"primaryKey;type:uuid"`
	IntegrationID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_entity_external,priority:1"`
	EntityType    string    `gorm:"uniqueIndex:idx_entity_external,priority:2"`
	ExternalID    string    `gorm:"uniqueIndex:idx_entity_external,priority:3"`

	Payload         json.RawMessage
	RemoteUpdatedAt time.Time

	AgentChecked bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
