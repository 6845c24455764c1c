package ingest

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is the immutable receipt of one inbound delivery, verified or
// not. Rows are never updated.
type WebhookEvent struct {
	ID                 uuid.UUID `gorm:"primaryKey;type:uuid"`
	Service            string    `gorm:"index"`
	EventType          string
	ExternalDeliveryID string `gorm:"index"`
	Payload            json.RawMessage
	ReceivedAt         time.Time `gorm:"index"`
	Verified           bool
}
