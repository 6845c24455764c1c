package onboard

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Database struct {
	Orm *gorm.DB
}

func NewDatabase(orm *gorm.DB) Database {
	return Database{Orm: orm}
}

func (db Database) Initialize() error {
	return db.Orm.AutoMigrate(&Integration{})
}

func (db Database) CreateIntegration(integration *Integration) error {
	return db.Orm.Model(&Integration{}).Create(integration).Error
}

func (db Database) GetIntegration(id uuid.UUID) (*Integration, error) {
	var integration Integration
	tx := db.Orm.Model(&Integration{}).Where("id = ?", id).First(&integration)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &integration, nil
}

func (db Database) ListIntegrations() ([]Integration, error) {
	var integrations []Integration
	err := db.Orm.Model(&Integration{}).Find(&integrations).Error
	if err != nil {
		return nil, err
	}
	return integrations, nil
}

func (db Database) ListIntegrationsByService(service string) ([]Integration, error) {
	var integrations []Integration
	err := db.Orm.Model(&Integration{}).Where("service = ?", service).Find(&integrations).Error
	if err != nil {
		return nil, err
	}
	return integrations, nil
}

func (db Database) UpdateIntegrationStatus(id uuid.UUID, status IntegrationStatus) error {
	return db.Orm.Model(&Integration{}).Where("id = ?", id).
		Update("status", status).Error
}

func (db Database) UpdateIntegrationLastSyncAt(id uuid.UUID, t time.Time) error {
	return db.Orm.Model(&Integration{}).Where("id = ?", id).
		Update("last_sync_at", t).Error
}

// DeleteIntegration wipes the credential blob before removing the row so a
// soft-deleted or replicated row never retains usable ciphertext.
func (db Database) DeleteIntegration(id uuid.UUID) error {
	err := db.Orm.Model(&Integration{}).Where("id = ?", id).Updates(map[string]any{
		"encrypted_credentials": "",
		"status":                IntegrationStatusDisconnected,
	}).Error
	if err != nil {
		return err
	}
	return db.Orm.Where("id = ?", id).Delete(&Integration{}).Error
}
