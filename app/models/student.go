package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	STUDENT_STATUS_ACTIVE    = "active"
	STUDENT_STATUS_FROZEN    = "frozen"
	STUDENT_STATUS_WITHDRAWN = "withdrawn"
)

// Student is an enrolled member of a dojo. Students can be targets of
// automation sequences (missed-class follow-ups, renewal reminders).
type Student struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	OrganizationID uint           `gorm:"not null;index" json:"organization_id"`
	FirstName      string         `gorm:"type:varchar(100)" json:"first_name" validate:"required,max=100"`
	LastName       string         `gorm:"type:varchar(100)" json:"last_name" validate:"max=100"`
	Email          string         `gorm:"type:varchar(200);index" json:"email" validate:"omitempty,email,max=200"`
	Phone          string         `gorm:"type:varchar(32);index" json:"phone" validate:"max=32"`
	BeltRank       string         `gorm:"type:varchar(50)" json:"belt_rank" validate:"max=50"`
	Status         string         `gorm:"type:varchar(50);default:'active';index" json:"status" validate:"oneof=active frozen withdrawn"`
	OptedOut       bool           `gorm:"default:false" json:"opted_out"`
	LastCheckInAt  *time.Time     `gorm:"type:timestamp;default:null" json:"last_check_in_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (s *Student) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

// FullName returns the display name for messages and call scripts.
func (s *Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// IsReachable reports whether the student may still be contacted by automations.
func (s *Student) IsReachable() bool {
	return !s.OptedOut && s.Status == STUDENT_STATUS_ACTIVE
}
