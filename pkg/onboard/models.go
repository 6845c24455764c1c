package onboard

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type IntegrationStatus string

const (
	IntegrationStatusConnected    IntegrationStatus = "connected"
	IntegrationStatusError        IntegrationStatus = "error"
	IntegrationStatusDisconnected IntegrationStatus = "disconnected"
)

// Integration is one configured connection to an external service. The
// credential blob is vault-encrypted; nothing else in the row is secret.
type Integration struct {
	ID                   uuid.UUID `gorm:"primaryKey;type:uuid"`
	Service              string    `gorm:"index"`
	Status               IntegrationStatus
	EncryptedCredentials string
	Metadata             json.RawMessage
	LastSyncAt           *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
