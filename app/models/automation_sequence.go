package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Trigger events that cause enrollment evaluation. Supplied by the
// surrounding CRM logic (lead capture, kiosk check-in, billing).
const (
	TriggerNewLead       = "new_lead"
	TriggerMissedClass   = "missed_class"
	TriggerClassAttended = "class_attended"
	TriggerTrialStarted  = "trial_started"
	TriggerLeadConverted = "lead_converted"
	TriggerManual        = "manual"
)

// Step action types.
const (
	ActionSendSMS     = "send_sms"
	ActionSendEmail   = "send_email"
	ActionAIPhoneCall = "ai_phone_call"
	ActionWait        = "wait"
)

// AutomationSequence is a trigger-bound workflow owned by an organization:
// when the trigger event fires for an entity, the entity is enrolled and the
// ordered steps execute over time.
type AutomationSequence struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	OrganizationID uint   `gorm:"not null;index:idx_sequence_org_trigger,priority:1" json:"organization_id"`
	Name           string `gorm:"type:varchar(200);not null" json:"name" validate:"required,min=1,max=200"`
	Description    string `gorm:"type:text" json:"description"`
	TriggerKey     string `gorm:"type:varchar(50);not null;index:idx_sequence_org_trigger,priority:2" json:"trigger_key" validate:"required"`
	Active         bool   `gorm:"default:false;index" json:"active"`

	Steps []AutomationStep `gorm:"foreignKey:SequenceID;constraint:OnDelete:CASCADE" json:"steps"`

	CreatedByUserID uint           `gorm:"index" json:"created_by_user_id"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (s *AutomationSequence) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

// CanActivate reports whether the sequence has at least one step with
// strictly increasing positions. Only such sequences may be set active.
func (s *AutomationSequence) CanActivate() bool {
	if len(s.Steps) == 0 {
		return false
	}
	last := 0
	for _, step := range s.Steps {
		if step.Position <= last {
			return false
		}
		last = step.Position
	}
	return true
}

// StepAt returns the step with the given position, or nil.
func (s *AutomationSequence) StepAt(position int) *AutomationStep {
	for i := range s.Steps {
		if s.Steps[i].Position == position {
			return &s.Steps[i]
		}
	}
	return nil
}

// NextStepAfter returns the step with the lowest position greater than the
// given one, or nil when the given position is the last.
func (s *AutomationSequence) NextStepAfter(position int) *AutomationStep {
	var next *AutomationStep
	for i := range s.Steps {
		if s.Steps[i].Position <= position {
			continue
		}
		if next == nil || s.Steps[i].Position < next.Position {
			next = &s.Steps[i]
		}
	}
	return next
}

// AutomationStep is one action within a sequence, executed DelayMinutes
// after the previous step (or after enrollment for the first step).
type AutomationStep struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	SequenceID uint   `gorm:"not null;index:idx_step_sequence_position,unique,priority:1" json:"sequence_id"`
	Position   int    `gorm:"not null;index:idx_step_sequence_position,unique,priority:2" json:"position" validate:"min=1"`
	ActionType string `gorm:"type:varchar(50);not null" json:"action_type" validate:"oneof=send_sms send_email ai_phone_call wait"`

	DelayMinutes int `gorm:"not null;default:0" json:"delay_minutes" validate:"min=0"`

	// Template content. Subject is only used for emails; Body doubles as the
	// call script for ai_phone_call steps.
	Subject string `gorm:"type:varchar(255)" json:"subject"`
	Body    string `gorm:"type:text" json:"body"`

	// Expected call length used for credit cost estimation of phone steps.
	EstimatedCallSeconds int `gorm:"default:0" json:"estimated_call_seconds" validate:"min=0"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *AutomationStep) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

// Delay returns the step delay as a duration.
func (s *AutomationStep) Delay() time.Duration {
	return time.Duration(s.DelayMinutes) * time.Minute
}
