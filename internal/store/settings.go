package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

const settingsRowID = 1

// settingsRow stores AppSettings as a single JSON document.
type settingsRow struct {
	ID        int                                   `gorm:"primaryKey;autoIncrement:false"`
	Data      datatypes.JSONType[model.AppSettings] `gorm:"not null"`
	UpdatedAt time.Time
}

func (settingsRow) TableName() string { return "app_settings" }

// SettingsRepo reads and writes the singleton AppSettings.
type SettingsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewSettingsRepo creates a settings repository.
func NewSettingsRepo(db *gorm.DB, log *logger.Logger) *SettingsRepo {
	return &SettingsRepo{db: db, log: log.With(zap.String("repo", "SettingsRepo"))}
}

// Get returns the saved settings, or the defaults when none were saved.
func (r *SettingsRepo) Get(ctx context.Context) (*model.AppSettings, error) {
	var row settingsRow
	err := r.db.WithContext(ctx).Where("id = ?", settingsRowID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return nil, apperr.Storage("store.GetSettings", err)
	}
	s := row.Data.Data()
	return &s, nil
}

// Save replaces the settings.
func (r *SettingsRepo) Save(ctx context.Context, s *model.AppSettings) error {
	row := settingsRow{
		ID:   settingsRowID,
		Data: datatypes.NewJSONType(*s),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return apperr.Storage("store.SaveSettings", err)
	}
	return nil
}
