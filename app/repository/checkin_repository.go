package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
)

type gormCheckInRepository struct {
	db *gorm.DB
}

// NewCheckInRepository creates a check-in repository backed by GORM.
func NewCheckInRepository(db *gorm.DB) CheckInRepository {
	return &gormCheckInRepository{db: db}
}

func (r *gormCheckInRepository) Create(checkIn *models.CheckIn) error {
	return r.db.Create(checkIn).Error
}

func (r *gormCheckInRepository) ListByStudent(orgID, studentID uint, limit int) ([]models.CheckIn, error) {
	var checkIns []models.CheckIn
	err := r.db.
		Where("organization_id = ? AND student_id = ?", orgID, studentID).
		Order("checked_in_at DESC").
		Limit(limit).
		Find(&checkIns).Error
	return checkIns, err
}

func (r *gormCheckInRepository) CountSince(orgID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.CheckIn{}).
		Where("organization_id = ? AND checked_in_at >= ?", orgID, since).
		Count(&count).Error
	return count, err
}
