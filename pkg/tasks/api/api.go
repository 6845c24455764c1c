package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ApproveRequest struct {
	ActorID string `json:"actorId" validate:"required"`
}

type RejectRequest struct {
	ActorID string `json:"actorId" validate:"required"`
	Reason  string `json:"reason"`
}

type RollbackRequest struct {
	ActorID string `json:"actorId" validate:"required"`
}

type Task struct {
	ID            uuid.UUID       `json:"id"`
	IntegrationID uuid.UUID       `json:"integrationId"`
	Service       string          `json:"service"`
	Type          string          `json:"type"`
	RiskLevel     string          `json:"riskLevel"`
	Status        string          `json:"status"`
	Input         json.RawMessage `json:"input,omitempty"`
	Output        json.RawMessage `json:"output,omitempty"`
	ApprovedBy    string          `json:"approvedBy,omitempty"`
	Cost          decimal.Decimal `json:"cost"`
	Environment   string          `json:"environment"`
	EscalatedAt   *time.Time      `json:"escalatedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}
