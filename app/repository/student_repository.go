package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
)

type gormStudentRepository struct {
	db *gorm.DB
}

// NewStudentRepository creates a student repository backed by GORM.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &gormStudentRepository{db: db}
}

func (r *gormStudentRepository) Create(student *models.Student) error {
	return r.db.Create(student).Error
}

func (r *gormStudentRepository) GetByID(orgID, id uint) (*models.Student, error) {
	var student models.Student
	err := r.db.Where("organization_id = ? AND id = ?", orgID, id).First(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *gormStudentRepository) Update(student *models.Student) error {
	return r.db.Save(student).Error
}

func (r *gormStudentRepository) List(orgID uint, offset, limit int) ([]models.Student, error) {
	var students []models.Student
	err := r.db.
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&students).Error
	return students, err
}

func (r *gormStudentRepository) Count(orgID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Student{}).Where("organization_id = ?", orgID).Count(&count).Error
	return count, err
}

func (r *gormStudentRepository) UpdateLastCheckIn(id uint, at time.Time) error {
	return r.db.Model(&models.Student{}).
		Where("id = ?", id).
		Update("last_check_in_at", at).Error
}

func (r *gormStudentRepository) ListAbsentSince(cutoff time.Time, limit int) ([]models.Student, error) {
	var students []models.Student
	err := r.db.
		Where("status = ? AND opted_out = ?", models.STUDENT_STATUS_ACTIVE, false).
		Where("last_check_in_at IS NULL OR last_check_in_at < ?", cutoff).
		Limit(limit).
		Find(&students).Error
	return students, err
}
