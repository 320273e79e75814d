package repository

import (
	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
)

type gormLeadRepository struct {
	db *gorm.DB
}

// NewLeadRepository creates a lead repository backed by GORM.
func NewLeadRepository(db *gorm.DB) LeadRepository {
	return &gormLeadRepository{db: db}
}

func (r *gormLeadRepository) Create(lead *models.Lead) error {
	return r.db.Create(lead).Error
}

func (r *gormLeadRepository) GetByID(orgID, id uint) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.Where("organization_id = ? AND id = ?", orgID, id).First(&lead).Error
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *gormLeadRepository) Update(lead *models.Lead) error {
	return r.db.Save(lead).Error
}

func (r *gormLeadRepository) List(orgID uint, offset, limit int) ([]models.Lead, error) {
	var leads []models.Lead
	err := r.db.
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&leads).Error
	return leads, err
}

func (r *gormLeadRepository) Count(orgID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Lead{}).Where("organization_id = ?", orgID).Count(&count).Error
	return count, err
}
