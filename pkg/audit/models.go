package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EntryType string

const (
	EntryTypeClassification EntryType = "classification"
	EntryTypeApproval       EntryType = "approval"
	EntryTypeExecution      EntryType = "execution"
	EntryTypeError          EntryType = "error"
	EntryTypeRollback       EntryType = "rollback"
	EntryTypeSafetyCheck    EntryType = "safety_check"
)

// Entry is one immutable audit record. Seq gives the total order in which
// entries were appended; rows are never updated or deleted.
type Entry struct {
	Seq       uint64          `gorm:"primarykey;autoIncrement" json:"seq"`
	ID        uuid.UUID       `gorm:"type:uuid;uniqueIndex" json:"id"`
	TaskID    *uuid.UUID      `gorm:"type:uuid;index" json:"taskId,omitempty"`
	Type      EntryType       `gorm:"index" json:"type"`
	Timestamp time.Time       `gorm:"index" json:"timestamp"`
	Actor     string          `json:"actor"`
	Detail    json.RawMessage `gorm:"type:jsonb" json:"detail"`
}
