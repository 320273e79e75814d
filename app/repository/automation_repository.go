package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
)

type gormAutomationRepository struct {
	db *gorm.DB
}

// NewAutomationRepository creates an automation repository backed by GORM.
func NewAutomationRepository(db *gorm.DB) AutomationRepository {
	return &gormAutomationRepository{db: db}
}

func (r *gormAutomationRepository) CreateSequence(seq *models.AutomationSequence) error {
	return r.db.Create(seq).Error
}

func (r *gormAutomationRepository) GetSequence(orgID, id uint) (*models.AutomationSequence, error) {
	var seq models.AutomationSequence
	err := r.db.
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&seq).Error
	if err != nil {
		return nil, err
	}
	return &seq, nil
}

func (r *gormAutomationRepository) ListSequences(orgID uint) ([]models.AutomationSequence, error) {
	var seqs []models.AutomationSequence
	err := r.db.
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("organization_id = ?", orgID).
		Order("id ASC").
		Find(&seqs).Error
	return seqs, err
}

func (r *gormAutomationRepository) UpdateSequence(seq *models.AutomationSequence) error {
	return r.db.Save(seq).Error
}

func (r *gormAutomationRepository) SetSequenceActive(orgID, id uint, active bool) error {
	res := r.db.Model(&models.AutomationSequence{}).
		Where("organization_id = ? AND id = ?", orgID, id).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormAutomationRepository) FindActiveSequencesForTrigger(orgID uint, triggerKey string) ([]models.AutomationSequence, error) {
	var seqs []models.AutomationSequence
	err := r.db.
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("organization_id = ? AND trigger_key = ? AND active = ?", orgID, triggerKey, true).
		Order("id ASC").
		Find(&seqs).Error
	return seqs, err
}

func (r *gormAutomationRepository) CreateEnrollmentIfAbsent(e *models.AutomationEnrollment) (bool, error) {
	now := time.Now()
	res := r.db.Exec(`
		INSERT INTO automation_enrollments
			(uuid, organization_id, sequence_id, entity_type, entity_id,
			 status, current_step_position, next_execution_at, attempt_count,
			 created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?
		FROM DUAL
		WHERE NOT EXISTS (
			SELECT 1 FROM automation_enrollments
			WHERE entity_type = ? AND entity_id = ? AND sequence_id = ? AND status = ?
		)`,
		e.UUID, e.OrganizationID, e.SequenceID, e.EntityType, e.EntityID,
		e.Status, e.CurrentStepPosition, e.NextExecutionAt, now, now,
		e.EntityType, e.EntityID, e.SequenceID, models.EnrollmentStatusActive)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	var created models.AutomationEnrollment
	if err := r.db.Where("uuid = ?", e.UUID).First(&created).Error; err != nil {
		return false, err
	}
	*e = created
	return true, nil
}

func (r *gormAutomationRepository) GetEnrollment(id uint) (*models.AutomationEnrollment, error) {
	var e models.AutomationEnrollment
	err := r.db.
		Preload("Sequence").
		Preload("Sequence.Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&e, id).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormAutomationRepository) FindActiveEnrollment(entityType string, entityID, sequenceID uint) (*models.AutomationEnrollment, error) {
	var e models.AutomationEnrollment
	err := r.db.
		Where("entity_type = ? AND entity_id = ? AND sequence_id = ? AND status = ?",
			entityType, entityID, sequenceID, models.EnrollmentStatusActive).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormAutomationRepository) ListEnrollmentsForEntity(orgID uint, entityType string, entityID uint) ([]models.AutomationEnrollment, error) {
	var enrollments []models.AutomationEnrollment
	err := r.db.
		Preload("Sequence").
		Where("organization_id = ? AND entity_type = ? AND entity_id = ?", orgID, entityType, entityID).
		Order("created_at DESC").
		Find(&enrollments).Error
	return enrollments, err
}

func (r *gormAutomationRepository) ListDueEnrollments(now time.Time, limit int) ([]models.AutomationEnrollment, error) {
	var due []models.AutomationEnrollment
	err := r.db.
		Where("status = ? AND next_execution_at IS NOT NULL AND next_execution_at <= ?",
			models.EnrollmentStatusActive, now).
		Order("next_execution_at ASC").
		Limit(limit).
		Find(&due).Error
	return due, err
}

func (r *gormAutomationRepository) ClaimEnrollment(id uint, now time.Time) (bool, error) {
	res := r.db.Model(&models.AutomationEnrollment{}).
		Where("id = ? AND status = ? AND next_execution_at IS NOT NULL AND next_execution_at <= ?",
			id, models.EnrollmentStatusActive, now).
		UpdateColumns(map[string]interface{}{
			"next_execution_at": models.ClaimSentinel,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormAutomationRepository) AdvanceEnrollment(id uint, nextPosition int, nextExecutionAt time.Time) (bool, error) {
	res := r.db.Model(&models.AutomationEnrollment{}).
		Where("id = ? AND status = ?", id, models.EnrollmentStatusActive).
		UpdateColumns(map[string]interface{}{
			"current_step_position": nextPosition,
			"next_execution_at":     nextExecutionAt,
			"attempt_count":         0,
			"last_error":            "",
			"updated_at":            time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormAutomationRepository) CompleteEnrollment(id uint) (bool, error) {
	now := time.Now()
	res := r.db.Model(&models.AutomationEnrollment{}).
		Where("id = ? AND status = ?", id, models.EnrollmentStatusActive).
		UpdateColumns(map[string]interface{}{
			"status":            models.EnrollmentStatusCompleted,
			"next_execution_at": nil,
			"completed_at":      now,
			"updated_at":        now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormAutomationRepository) RescheduleEnrollment(id uint, at time.Time, attemptCount int, lastError string) error {
	return r.db.Model(&models.AutomationEnrollment{}).
		Where("id = ? AND status = ?", id, models.EnrollmentStatusActive).
		UpdateColumns(map[string]interface{}{
			"next_execution_at": at,
			"attempt_count":     attemptCount,
			"last_error":        lastError,
			"updated_at":        time.Now(),
		}).Error
}

func (r *gormAutomationRepository) MarkEnrollmentFailed(id uint, reason string) error {
	return r.db.Model(&models.AutomationEnrollment{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"status":            models.EnrollmentStatusFailed,
			"next_execution_at": nil,
			"last_error":        reason,
			"updated_at":        time.Now(),
		}).Error
}

func (r *gormAutomationRepository) CancelEnrollment(id uint, reason string) (bool, error) {
	res := r.db.Model(&models.AutomationEnrollment{}).
		Where("id = ? AND status = ?", id, models.EnrollmentStatusActive).
		UpdateColumns(map[string]interface{}{
			"status":            models.EnrollmentStatusCancelled,
			"next_execution_at": nil,
			"last_error":        reason,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormAutomationRepository) RequeueStuckClaims(olderThan time.Time) (int64, error) {
	now := time.Now()
	res := r.db.Model(&models.AutomationEnrollment{}).
		Where("status = ? AND next_execution_at = ? AND updated_at < ?",
			models.EnrollmentStatusActive, models.ClaimSentinel, olderThan).
		UpdateColumns(map[string]interface{}{
			"next_execution_at": now,
			"updated_at":        now,
		})
	return res.RowsAffected, res.Error
}

func (r *gormAutomationRepository) CancelActiveEnrollmentsForEntity(orgID uint, entityType string, entityID uint, reason string) (int64, error) {
	res := r.db.Model(&models.AutomationEnrollment{}).
		Where("organization_id = ? AND entity_type = ? AND entity_id = ? AND status = ?",
			orgID, entityType, entityID, models.EnrollmentStatusActive).
		UpdateColumns(map[string]interface{}{
			"status":            models.EnrollmentStatusCancelled,
			"next_execution_at": nil,
			"last_error":        reason,
			"updated_at":        time.Now(),
		})
	return res.RowsAffected, res.Error
}
