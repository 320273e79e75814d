package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	ORG_STATUS_ACTIVE    = "active"
	ORG_STATUS_SUSPENDED = "suspended"
)

// Organization is a tenant (one dojo/school). All credit balances, automation
// sequences and enrollments hang off an organization.
type Organization struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Slug      string `gorm:"type:varchar(100);uniqueIndex;not null" json:"slug" validate:"required,min=2,max=100"`
	Email     string `gorm:"type:varchar(200)" json:"email" validate:"omitempty,email,max=200"`
	Phone     string `gorm:"type:varchar(32)" json:"phone" validate:"max=32"`
	Plan      string `gorm:"type:varchar(50);default:'starter'" json:"plan"`
	Status    string `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active suspended"`
	APIKeyHash string `gorm:"type:varchar(64);index" json:"-"`

	// Low-credit banner thresholds as percent of the period allowance.
	// Product policy defaults, adjustable per tenant.
	LowCreditWarnPercent     int `gorm:"default:20" json:"low_credit_warn_percent" validate:"min=0,max=100"`
	LowCreditCriticalPercent int `gorm:"default:10" json:"low_credit_critical_percent" validate:"min=0,max=100"`

	// Denormalized dashboard counters, flushed periodically from Redis.
	StatCreditsUsed  int64 `gorm:"default:0" json:"stat_credits_used"`
	StatMessagesSent int64 `gorm:"default:0" json:"stat_messages_sent"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (o *Organization) Validate() error {
	v := validator.New()

	return v.Struct(o)
}

// IsActive reports whether the organization may use AI-labor features.
func (o *Organization) IsActive() bool {
	return o.Status == ORG_STATUS_ACTIVE
}

// GenerateAPIKey creates a new random API key, stores its hash on the
// organization and returns the plaintext key exactly once.
func (o *Organization) GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	key := "dp_" + hex.EncodeToString(b)
	o.APIKeyHash = HashAPIKey(key)
	return key, nil
}

// HashAPIKey returns the hex SHA-256 digest used for API key lookups.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
