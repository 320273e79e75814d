package repository

import (
	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
)

type gormOrganizationRepository struct {
	db *gorm.DB
}

// NewOrganizationRepository creates an organization repository backed by GORM.
func NewOrganizationRepository(db *gorm.DB) OrganizationRepository {
	return &gormOrganizationRepository{db: db}
}

func (r *gormOrganizationRepository) Create(org *models.Organization) error {
	return r.db.Create(org).Error
}

func (r *gormOrganizationRepository) GetByID(id uint) (*models.Organization, error) {
	var org models.Organization
	err := r.db.First(&org, id).Error
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *gormOrganizationRepository) GetBySlug(slug string) (*models.Organization, error) {
	var org models.Organization
	err := r.db.Where("slug = ?", slug).First(&org).Error
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *gormOrganizationRepository) GetByAPIKeyHash(hash string) (*models.Organization, error) {
	var org models.Organization
	err := r.db.Where("api_key_hash = ?", hash).First(&org).Error
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *gormOrganizationRepository) Update(org *models.Organization) error {
	return r.db.Save(org).Error
}

func (r *gormOrganizationRepository) List(offset, limit int) ([]models.Organization, error) {
	var orgs []models.Organization
	err := r.db.Order("id ASC").Offset(offset).Limit(limit).Find(&orgs).Error
	return orgs, err
}

func (r *gormOrganizationRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Organization{}).Count(&count).Error
	return count, err
}
