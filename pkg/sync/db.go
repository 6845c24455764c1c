package sync

import (
	"errors"
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
	return db.Orm.AutoMigrate(
		&SyncCursor{},
		&Entity{},
	)
}

// GetCursor returns the cursor for the pair, or a zero-valued cursor when
// none exists yet.
func (db Database) GetCursor(integrationID uuid.UUID, entityType string) (SyncCursor, error) {
	var cursor SyncCursor
	tx := db.Orm.Model(&SyncCursor{}).
		Where("integration_id = ? AND entity_type = ?", integrationID, entityType).
		First(&cursor)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return SyncCursor{IntegrationID: integrationID, EntityType: entityType}, nil
		}
		return SyncCursor{}, tx.Error
	}
	return cursor, nil
}

// AdvanceCursor moves the watermark forward. A target at or before the stored
// watermark is a no-op; the cursor never moves backward.
func (db Database) AdvanceCursor(integrationID uuid.UUID, entityType string, to time.Time) error {
	current, err := db.GetCursor(integrationID, entityType)
	if err != nil {
		return err
	}
	if !to.After(current.LastSyncedAt) {
		return nil
	}

	cursor := SyncCursor{
		IntegrationID: integrationID,
		EntityType:    entityType,
		LastSyncedAt:  to,
	}
	return db.Orm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "integration_id"}, {Name: "entity_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_synced_at", "updated_at"}),
	}).Create(&cursor).Error
}

// UpsertEntity writes remote state by stable external id. Local-only columns
// (agent_checked) are deliberately absent from the update list so they
// survive reconciliation. Conflicts resolve last-writer-wins on the remote
// updatedAt: a late redelivery carrying older remote state never clobbers a
// fresher row.
func (db Database) UpsertEntity(entity *Entity) error {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	return db.Orm.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "integration_id"}, {Name: "entity_type"}, {Name: "external_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "remote_updated_at", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "excluded.remote_updated_at >= entities.remote_updated_at"},
		}},
	}).Create(entity).Error
}

func (db Database) GetEntity(integrationID uuid.UUID, entityType, externalID string) (*Entity, error) {
	var entity Entity
	tx := db.Orm.Model(&Entity{}).
		Where("integration_id = ? AND entity_type = ? AND external_id = ?", integrationID, entityType, externalID).
		First(&entity)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &entity, nil
}

func (db Database) CountEntities(integrationID uuid.UUID, entityType string) (int64, error) {
	var count int64
	err := db.Orm.Model(&Entity{}).
		Where("integration_id = ? AND entity_type = ?", integrationID, entityType).
		Count(&count).Error
	return count, err
}

func (db Database) MarkAgentChecked(integrationID uuid.UUID, entityType, externalID string) error {
	return db.Orm.Model(&Entity{}).
		Where("integration_id = ? AND entity_type = ? AND external_id = ?", integrationID, entityType, externalID).
		Update("agent_checked", true).Error
}

// DeleteByIntegration drops all synced state of a disconnected integration.
func (db Database) DeleteByIntegration(integrationID uuid.UUID) error {
	if err := db.Orm.Where("integration_id = ?", integrationID).Delete(&Entity{}).Error; err != nil {
		return err
	}
	return db.Orm.Where("integration_id = ?", integrationID).Delete(&SyncCursor{}).Error
}
