package models

import "time"

const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusCompleted = "completed"
	EnrollmentStatusCancelled = "cancelled"
	EnrollmentStatusFailed    = "failed"
)

// Enrollable entity types.
const (
	EntityTypeLead    = "lead"
	EntityTypeStudent = "student"
)

// ClaimSentinel is the far-future NextExecutionAt value a scheduler tick
// writes to claim an enrollment before dispatching its current step. A
// conditional update to this value is what prevents double execution when
// tick intervals overlap a slow dispatch.
var ClaimSentinel = time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)

// AutomationEnrollment binds one entity (lead or student) to one sequence
// instance and tracks its progress. At most one active enrollment may exist
// per (entity, sequence) pair.
type AutomationEnrollment struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	UUID           string `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	OrganizationID uint   `gorm:"not null;index" json:"organization_id"`
	SequenceID     uint   `gorm:"not null;index:idx_enrollment_entity_sequence,priority:3" json:"sequence_id"`
	EntityType     string `gorm:"type:varchar(20);not null;index:idx_enrollment_entity_sequence,priority:1" json:"entity_type"`
	EntityID       uint   `gorm:"not null;index:idx_enrollment_entity_sequence,priority:2" json:"entity_id"`

	Status              string     `gorm:"type:varchar(20);not null;default:'active';index:idx_enrollment_due,priority:1" json:"status"`
	CurrentStepPosition int        `gorm:"not null;default:1" json:"current_step_position"`
	NextExecutionAt     *time.Time `gorm:"type:timestamp;index:idx_enrollment_due,priority:2" json:"next_execution_at"`

	// Per-step retry bookkeeping. AttemptCount resets to 0 on advance.
	AttemptCount int    `gorm:"not null;default:0" json:"attempt_count"`
	LastError    string `gorm:"type:varchar(255)" json:"last_error,omitempty"`

	CompletedAt *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Sequence AutomationSequence `gorm:"foreignKey:SequenceID" json:"sequence,omitempty"`
}

// IsActive reports whether the scheduler should still pick up this enrollment.
func (e *AutomationEnrollment) IsActive() bool {
	return e.Status == EnrollmentStatusActive
}
