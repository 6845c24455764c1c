package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusApproved   TaskStatus = "approved"
	TaskStatusRejected   TaskStatus = "rejected"
	TaskStatusExecuting  TaskStatus = "executing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusRolledBack TaskStatus = "rolledBack"
)

// Terminal reports whether no further transition is allowed from s.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusRejected, TaskStatusCompleted, TaskStatusFailed, TaskStatusRolledBack:
		return true
	}
	return false
}

type Task struct {
	ID            uuid.UUID  `gorm:"type:uuid;primarykey" json:"id"`
	IntegrationID uuid.UUID  `gorm:"type:uuid;index" json:"integrationId"`
	Service       string     `json:"service"`
	Type          string     `gorm:"index" json:"type"`
	RiskLevel     RiskLevel  `gorm:"index" json:"riskLevel"`
	Status        TaskStatus `gorm:"index" json:"status"`

	// SourceEventID dedupes proposals from redelivered bus events.
	SourceEventID string `gorm:"uniqueIndex" json:"sourceEventId"`

	Input  json.RawMessage `gorm:"type:jsonb" json:"input"`
	Output json.RawMessage `gorm:"type:jsonb" json:"output,omitempty"`

	ApprovedBy string          `json:"approvedBy,omitempty"`
	Cost       decimal.Decimal `gorm:"type:numeric(12,4)" json:"cost"`

	Environment string `json:"environment"`
	Destructive bool   `json:"destructive"`
	Magnitude   int    `json:"magnitude"`
	Retryable   bool   `json:"retryable"`

	EscalatedAt *time.Time `json:"escalatedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
