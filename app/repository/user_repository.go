package repository

import (
	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
)

type gormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a staff user repository backed by GORM.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

func (r *gormUserRepository) GetByID(orgID, id uint) (*models.User, error) {
	var user models.User
	err := r.db.Where("organization_id = ? AND id = ?", orgID, id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

func (r *gormUserRepository) List(orgID uint, offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&users).Error
	return users, err
}

func (r *gormUserRepository) Count(orgID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Where("organization_id = ?", orgID).Count(&count).Error
	return count, err
}
