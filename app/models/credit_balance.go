package models

import "time"

// CreditBalance holds the materialized credit state for one organization.
// Exactly one row per organization. The transaction log is the source of
// truth; Balance must always equal TotalPurchased + TotalAllocated - TotalUsed.
//
// Balance is mutated exclusively through the credit ledger's conditional
// update so concurrent deductions can never drive it negative.
type CreditBalance struct {
	ID             uint `gorm:"primaryKey" json:"id"`
	OrganizationID uint `gorm:"not null;uniqueIndex" json:"organization_id"`

	Balance         int64 `gorm:"not null;default:0" json:"balance"`
	PeriodAllowance int64 `gorm:"not null;default:0" json:"period_allowance"`
	PeriodUsed      int64 `gorm:"not null;default:0" json:"period_used"`

	// Monotonic lifetime counters.
	TotalPurchased int64 `gorm:"not null;default:0" json:"total_purchased"`
	TotalAllocated int64 `gorm:"not null;default:0" json:"total_allocated"`
	TotalUsed      int64 `gorm:"not null;default:0" json:"total_used"`

	LowCreditAlertSent bool       `gorm:"default:false" json:"low_credit_alert_sent"`
	LastResetAt        *time.Time `gorm:"type:timestamp;default:null" json:"last_reset_at"`
	NextResetAt        *time.Time `gorm:"type:timestamp;default:null;index" json:"next_reset_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RemainingPercent returns the balance as a percentage of the period
// allowance, used by the low-credit banner. Returns 100 when no allowance
// is configured so purchased-only accounts never trip the banner.
func (b *CreditBalance) RemainingPercent() int {
	if b.PeriodAllowance <= 0 {
		return 100
	}
	pct := b.Balance * 100 / b.PeriodAllowance
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return int(pct)
}
