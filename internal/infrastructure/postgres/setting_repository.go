package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
)

type settingRow struct {
	Key       string    `gorm:"primaryKey;size:64"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
	UpdatedBy string    `gorm:"size:128"`
}

func (settingRow) TableName() string {
	return "settings"
}

// SettingRepository keeps configuration flags in the settings table
type SettingRepository struct {
	db *gorm.DB
}

// NewSettingRepository migrates the settings table
func NewSettingRepository(db *gorm.DB) (*SettingRepository, error) {
	if err := db.AutoMigrate(&settingRow{}); err != nil {
		return nil, err
	}
	return &SettingRepository{db: db}, nil
}

func (r *SettingRepository) Get(ctx context.Context, key string) (*entities.Setting, error) {
	var row settingRow
	err := r.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrSettingNotFound
	}
	if err != nil {
		return nil, err
	}
	return toSetting(row), nil
}

func (r *SettingRepository) Set(ctx context.Context, setting *entities.Setting) (*entities.Setting, error) {
	row := settingRow{
		Key:       setting.Key,
		Value:     setting.Value,
		UpdatedAt: setting.UpdatedAt,
		UpdatedBy: setting.UpdatedBy,
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at", "updated_by"}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, setting.Key)
}

func (r *SettingRepository) List(ctx context.Context) ([]*entities.Setting, error) {
	var rows []settingRow
	if err := r.db.WithContext(ctx).Order("key").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.Setting, 0, len(rows))
	for _, row := range rows {
		out = append(out, toSetting(row))
	}
	return out, nil
}

func toSetting(row settingRow) *entities.Setting {
	return &entities.Setting{
		Key:       row.Key,
		Value:     row.Value,
		UpdatedAt: row.UpdatedAt,
		UpdatedBy: row.UpdatedBy,
	}
}
