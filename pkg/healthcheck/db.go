package healthcheck

import (
	"errors"

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
	return db.Orm.AutoMigrate(&HealthStatus{})
}

// GetStatus returns the stored status, or a healthy default for an
// integration that was never probed.
func (db Database) GetStatus(integrationID uuid.UUID) (HealthStatus, error) {
	var status HealthStatus
	tx := db.Orm.Model(&HealthStatus{}).
		Where("integration_id = ?", integrationID).
		First(&status)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return HealthStatus{
				IntegrationID:  integrationID,
				Status:         HealthStateHealthy,
				Authentication: true,
				RateLimit:      true,
				APIAccess:      true,
				Webhooks:       true,
			}, nil
		}
		return HealthStatus{}, tx.Error
	}
	return status, nil
}

func (db Database) UpsertStatus(status *HealthStatus) error {
	return db.Orm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "integration_id"}},
		UpdateAll: true,
	}).Create(status).Error
}

func (db Database) DeleteStatus(integrationID uuid.UUID) error {
	return db.Orm.Where("integration_id = ?", integrationID).Delete(&HealthStatus{}).Error
}
