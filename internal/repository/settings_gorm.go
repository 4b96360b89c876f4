package repository

import (
	"context"
	"errors"

	"github.com/GoPolymarket/apiaudit/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const settingsRowID = 1

// GormSettingsRepo keeps the singleton settings row. Load falls back to the
// seed until an administrator saves for the first time.
type GormSettingsRepo struct {
	db   *gorm.DB
	seed *model.AuditSettings
}

func NewGormSettingsRepo(db *gorm.DB, seed *model.AuditSettings) *GormSettingsRepo {
	if seed == nil {
		seed = &model.AuditSettings{}
	}
	seed = seed.Clone()
	seed.ID = settingsRowID
	return &GormSettingsRepo{db: db, seed: seed}
}

func (r *GormSettingsRepo) Load(ctx context.Context) (*model.AuditSettings, error) {
	var s model.AuditSettings
	err := r.db.WithContext(ctx).First(&s, settingsRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.seed.Clone(), nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormSettingsRepo) Save(ctx context.Context, s *model.AuditSettings) error {
	row := s.Clone()
	row.ID = settingsRowID
	return r.db.WithContext(ctx).Save(row).Error
}

// EnsureSeed writes the seed row if none exists yet.
func (r *GormSettingsRepo) EnsureSeed(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(r.seed.Clone()).Error
}
