package repository

import (
	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
)

type gormSettingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a setting repository backed by GORM.
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &gormSettingRepository{db: db}
}

func (r *gormSettingRepository) Get() (*models.AppSettings, error) {
	if settings := models.GetAppSettings(); settings != nil {
		return settings, nil
	}
	if err := models.LoadSettings(r.db); err != nil {
		return nil, err
	}
	return models.GetAppSettings(), nil
}

func (r *gormSettingRepository) Save(settings *models.AppSettings) error {
	return models.SaveSettings(r.db, settings)
}

func (r *gormSettingRepository) GetValue(key string) (string, error) {
	var setting models.Setting
	if err := r.db.Where("setting_key = ?", key).First(&setting).Error; err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (r *gormSettingRepository) SetValue(key, value string) error {
	var setting models.Setting
	err := r.db.Where("setting_key = ?", key).First(&setting).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return err
		}
		setting = models.Setting{Key: key, Value: value, Type: "string"}
		return r.db.Create(&setting).Error
	}
	setting.Value = value
	return r.db.Save(&setting).Error
}
