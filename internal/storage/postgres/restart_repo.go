package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jkaninda/mlinzi/internal/restart"
)

// RestartRepository implements restart.DocumentStore with GORM.
// An owner's document is the ordered set of its rows in restart_records.
type RestartRepository struct {
	db *gorm.DB
}

// NewRestartRepository creates a RestartRepository.
func NewRestartRepository(db *gorm.DB) *RestartRepository {
	return &RestartRepository{db: db}
}

// FindOne returns the owner's records in insertion order, or nil when the
// owner has none.
func (r *RestartRepository) FindOne(ctx context.Context, ownerID int64) (*restart.Document, error) {
	var models []RestartRecordModel
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("finding restart records: %w", err)
	}
	if len(models) == 0 {
		return nil, nil
	}

	doc := &restart.Document{OwnerID: ownerID, Records: make([]restart.Record, 0, len(models))}
	for i := range models {
		rec, err := toRestartRecordDomain(&models[i])
		if err != nil {
			return nil, fmt.Errorf("decoding restart record %d: %w", models[i].ID, err)
		}
		doc.Records = append(doc.Records, rec)
	}
	return doc, nil
}

// AppendToSet inserts rec for the owner. A row equal to an existing member
// is ignored through the composite unique index.
func (r *RestartRepository) AppendToSet(ctx context.Context, ownerID int64, rec restart.Record) error {
	model := toRestartRecordModel(ownerID, rec)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error; err != nil {
			return fmt.Errorf("appending restart record: %w", err)
		}
		return nil
	})
}

// DeleteOne removes every record the owner holds.
func (r *RestartRepository) DeleteOne(ctx context.Context, ownerID int64) error {
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Delete(&RestartRecordModel{}).Error; err != nil {
		return fmt.Errorf("deleting restart records: %w", err)
	}
	return nil
}

var _ restart.DocumentStore = (*RestartRepository)(nil)
