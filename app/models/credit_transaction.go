package models

import "time"

const (
	CreditTxDeduction  = "deduction"
	CreditTxRefund     = "refund"
	CreditTxAllocation = "allocation"
	CreditTxPurchase   = "purchase"
	CreditTxBonus      = "bonus"
)

// Credit-consuming task types. Closed enum; TaskType is empty for
// allocation/purchase/bonus transactions.
const (
	TaskTypeChat         = "chat"
	TaskTypeSMS          = "sms"
	TaskTypeEmail        = "email"
	TaskTypePhoneCall    = "ai_phone_call"
	TaskTypeAutomation   = "automation"
	TaskTypeDataAnalysis = "data_analysis"
)

// CreditTransaction is one immutable entry of the per-organization credit
// ledger. Rows are append-only and never deleted; together they form the
// full audit trail from which a balance can be reconstructed.
type CreditTransaction struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	UUID           string `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	OrganizationID uint   `gorm:"not null;index:idx_credit_tx_org_created,priority:1" json:"organization_id"`
	Type           string `gorm:"type:varchar(20);not null;index" json:"type"`

	// Amount is signed: negative for deductions, positive for refunds,
	// allocations, purchases and bonuses.
	Amount       int64 `gorm:"not null" json:"amount"`
	BalanceAfter int64 `gorm:"not null" json:"balance_after"`

	TaskType    string `gorm:"type:varchar(50);index" json:"task_type,omitempty"`
	Description string `gorm:"type:varchar(255)" json:"description"`
	Metadata    string `gorm:"type:text" json:"metadata,omitempty"`

	RelatedEntityType string `gorm:"type:varchar(50)" json:"related_entity_type,omitempty"`
	RelatedEntityID   uint   `gorm:"index" json:"related_entity_id,omitempty"`
	ActorUserID       *uint  `gorm:"index" json:"actor_user_id,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_credit_tx_org_created,priority:2" json:"created_at"`
}

// IsDebit reports whether the transaction reduced the balance.
func (t *CreditTransaction) IsDebit() bool {
	return t.Type == CreditTxDeduction
}
