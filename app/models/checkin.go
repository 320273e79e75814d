package models

import "time"

const (
	CheckInSourceKiosk  = "kiosk"
	CheckInSourceManual = "manual"
)

// CheckIn is one kiosk attendance record. Check-ins feed the class_attended
// trigger and the missed-class sweep that fires missed_class automations.
type CheckIn struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index:idx_checkin_org_time,priority:1" json:"organization_id"`
	StudentID      uint      `gorm:"not null;index" json:"student_id"`
	ClassName      string    `gorm:"type:varchar(150)" json:"class_name"`
	Source         string    `gorm:"type:varchar(20);default:'kiosk'" json:"source"`
	CheckedInAt    time.Time `gorm:"not null;index:idx_checkin_org_time,priority:2" json:"checked_in_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
