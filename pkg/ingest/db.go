package ingest

import (
	"time"

	"gorm.io/gorm"
)

type Database struct {
	Orm *gorm.DB
}

func NewDatabase(orm *gorm.DB) Database {
	return Database{Orm: orm}
}

func (db Database) Initialize() error {
	return db.Orm.AutoMigrate(&WebhookEvent{})
}

func (db Database) CreateWebhookEvent(event *WebhookEvent) error {
	return db.Orm.Model(&WebhookEvent{}).Create(event).Error
}

// CountDeliveriesSince reports verified and rejected delivery counts for a
// service, consumed by the health monitor's webhook check.
func (db Database) CountDeliveriesSince(service string, since time.Time) (verified int64, rejected int64, err error) {
	err = db.Orm.Model(&WebhookEvent{}).
		Where("service = ? AND received_at >= ? AND verified = ?", service, since, true).
		Count(&verified).Error
	if err != nil {
		return 0, 0, err
	}
	err = db.Orm.Model(&WebhookEvent{}).
		Where("service = ? AND received_at >= ? AND verified = ?", service, since, false).
		Count(&rejected).Error
	if err != nil {
		return 0, 0, err
	}
	return verified, rejected, nil
}
