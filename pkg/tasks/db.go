package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	Orm *gorm.DB
}

func NewDatabase(orm *gorm.DB) Database {
	return Database{Orm: orm}
}

func (db Database) Initialize() error {
	return db.Orm.AutoMigrate(&Task{})
}

// CreateTask inserts the task unless one for the same source event already
// exists; duplicate bus deliveries land here. Returns whether a row was
// created.
func (db Database) CreateTask(task *Task) (bool, error) {
	tx := db.Orm.Model(&Task{}).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_event_id"}},
			DoNothing: true,
		}).
		Create(task)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (db Database) GetTask(id uuid.UUID) (*Task, error) {
	var task Task
	tx := db.Orm.Model(&Task{}).Where("id = ?", id).First(&task)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &task, nil
}

func (db Database) ListTasks(status TaskStatus) ([]Task, error) {
	tx := db.Orm.Model(&Task{}).Order("created_at desc")
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	var tasks []Task
	if err := tx.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// TransitionStatus moves a task from one status to another. The guard on the
// current status makes concurrent transitions race-safe: only one caller wins.
func (db Database) TransitionStatus(id uuid.UUID, from, to TaskStatus) (bool, error) {
	tx := db.Orm.Model(&Task{}).
		Where("id = ?", id).
		Where("status = ?", from).
		Update("status", to)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// Approve transitions pending -> approved and records the approver.
func (db Database) Approve(id uuid.UUID, actor string) (bool, error) {
	tx := db.Orm.Model(&Task{}).
		Where("id = ?", id).
		Where("status = ?", TaskStatusPending).
		Updates(map[string]any{
			"status":      TaskStatusApproved,
			"approved_by": actor,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (db Database) SetOutput(id uuid.UUID, output json.RawMessage) error {
	return db.Orm.Model(&Task{}).Where("id = ?", id).
		Update("output", output).Error
}

// ListPendingForEscalation returns pending tasks created before cutoff that
// have not been escalated yet.
func (db Database) ListPendingForEscalation(cutoff time.Time) ([]Task, error) {
	var tasks []Task
	err := db.Orm.Model(&Task{}).
		Where("status = ?", TaskStatusPending).
		Where("created_at < ?", cutoff).
		Where("escalated_at IS NULL").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// MarkEscalated records the escalation time. The IS NULL guard makes the
// sweep fire at most once per task.
func (db Database) MarkEscalated(id uuid.UUID, at time.Time) (bool, error) {
	tx := db.Orm.Model(&Task{}).
		Where("id = ?", id).
		Where("escalated_at IS NULL").
		Update("escalated_at", at)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
