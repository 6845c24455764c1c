package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Database is an append-only store. There are deliberately no update or
// delete methods; the trail is the record of what happened.
type Database struct {
	Orm *gorm.DB
}

func NewDatabase(orm *gorm.DB) Database {
	return Database{Orm: orm}
}

func (db Database) Initialize() error {
	return db.Orm.AutoMigrate(&Entry{})
}

func (db Database) Append(entry *Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return db.Orm.Model(&Entry{}).Create(entry).Error
}

// AppendDetail marshals detail and appends a new entry for task.
func (db Database) AppendDetail(taskID uuid.UUID, entryType EntryType, actor string, detail any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	return db.Append(&Entry{
		TaskID: &taskID,
		Type:   entryType,
		Actor:  actor,
		Detail: raw,
	})
}

type Filter struct {
	Types  []EntryType
	TaskID *uuid.UUID
	From   *time.Time
	To     *time.Time
	Limit  int
}

// Query returns entries matching filter in append order.
func (db Database) Query(filter Filter) ([]Entry, error) {
	tx := db.Orm.Model(&Entry{}).Order("seq asc")
	if len(filter.Types) > 0 {
		tx = tx.Where("type IN ?", filter.Types)
	}
	if filter.TaskID != nil {
		tx = tx.Where("task_id = ?", *filter.TaskID)
	}
	if filter.From != nil {
		tx = tx.Where("timestamp >= ?", *filter.From)
	}
	if filter.To != nil {
		tx = tx.Where("timestamp <= ?", *filter.To)
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}

	var entries []Entry
	if err := tx.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// CountByTaskAndType supports invariant checks such as "exactly one approval
// entry before execution".
func (db Database) CountByTaskAndType(taskID uuid.UUID, entryType EntryType) (int64, error) {
	var count int64
	err := db.Orm.Model(&Entry{}).
		Where("task_id = ?", taskID).
		Where("type = ?", entryType).
		Count(&count).Error
	return count, err
}
