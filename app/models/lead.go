package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	LEAD_STATUS_NEW       = "new"
	LEAD_STATUS_CONTACTED = "contacted"
	LEAD_STATUS_TRIAL     = "trial"
	LEAD_STATUS_CONVERTED = "converted"
	LEAD_STATUS_LOST      = "lost"
)

// Lead is a prospective student captured by the CRM. Leads are the primary
// targets of automation sequences (follow-up SMS/email, AI calls).
type Lead struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	OrganizationID uint           `gorm:"not null;index" json:"organization_id"`
	FirstName      string         `gorm:"type:varchar(100)" json:"first_name" validate:"required,max=100"`
	LastName       string         `gorm:"type:varchar(100)" json:"last_name" validate:"max=100"`
	Email          string         `gorm:"type:varchar(200);index" json:"email" validate:"omitempty,email,max=200"`
	Phone          string         `gorm:"type:varchar(32);index" json:"phone" validate:"max=32"`
	Source         string         `gorm:"type:varchar(100)" json:"source" validate:"max=100"`
	Status         string         `gorm:"type:varchar(50);default:'new';index" json:"status" validate:"oneof=new contacted trial converted lost"`
	Notes          string         `gorm:"type:text" json:"notes"`
	OptedOut       bool           `gorm:"default:false" json:"opted_out"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (l *Lead) Validate() error {
	v := validator.New()

	return v.Struct(l)
}

// FullName returns the display name for messages and call scripts.
func (l *Lead) FullName() string {
	if l.LastName == "" {
		return l.FirstName
	}
	return l.FirstName + " " + l.LastName
}

// IsReachable reports whether the lead may still be contacted by automations.
func (l *Lead) IsReachable() bool {
	return !l.OptedOut && l.Status != LEAD_STATUS_CONVERTED && l.Status != LEAD_STATUS_LOST
}
