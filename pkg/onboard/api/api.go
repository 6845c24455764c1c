package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ConnectRequest struct {
	Service     string          `json:"service" validate:"required"`
	Credentials map[string]any  `json:"credentials" validate:"required"`
	Metadata    json.RawMessage `json:"metadata"`
}

type Integration struct {
	ID         uuid.UUID       `json:"id"`
	Service    string          `json:"service"`
	Status     string          `json:"status"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	LastSyncAt *time.Time      `json:"lastSyncAt,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type SyncResponse struct {
	Started bool `json:"started"`
}
