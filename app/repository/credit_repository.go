package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dojopulse/dojopulse/app/models"
)

type gormCreditRepository struct {
	db *gorm.DB
}

// NewCreditRepository creates a credit repository backed by GORM.
func NewCreditRepository(db *gorm.DB) CreditRepository {
	return &gormCreditRepository{db: db}
}

func (r *gormCreditRepository) GetBalance(orgID uint) (*models.CreditBalance, error) {
	var balance models.CreditBalance
	err := r.db.Where("organization_id = ?", orgID).First(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *gormCreditRepository) GetOrCreateBalance(orgID uint, periodAllowance int64) (*models.CreditBalance, error) {
	balance, err := r.GetBalance(orgID)
	if err == nil {
		return balance, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	now := time.Now()
	nextReset := now.AddDate(0, 1, 0)
	fresh := &models.CreditBalance{
		OrganizationID:  orgID,
		Balance:         periodAllowance,
		PeriodAllowance: periodAllowance,
		TotalAllocated:  periodAllowance,
		LastResetAt:     &now,
		NextResetAt:     &nextReset,
	}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}},
		DoNothing: true,
	}).Create(fresh).Error; err != nil {
		return nil, err
	}

	// Re-read so a concurrent creator's row wins.
	return r.GetBalance(orgID)
}

func (r *gormCreditRepository) Deduct(orgID uint, amount int64, tx *models.CreditTransaction) (*models.CreditBalance, bool, error) {
	var balance models.CreditBalance
	applied := false

	err := r.db.Transaction(func(dtx *gorm.DB) error {
		// Single conditional update: check and decrement in one statement so
		// concurrent deductions serialize on the row and can never push the
		// balance negative.
		res := dtx.Model(&models.CreditBalance{}).
			Where("organization_id = ? AND balance >= ?", orgID, amount).
			UpdateColumns(map[string]interface{}{
				"balance":     gorm.Expr("balance - ?", amount),
				"period_used": gorm.Expr("period_used + ?", amount),
				"total_used":  gorm.Expr("total_used + ?", amount),
				"updated_at":  time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Insufficient funds; leave no trace.
			return nil
		}

		if err := dtx.Where("organization_id = ?", orgID).First(&balance).Error; err != nil {
			return err
		}

		tx.UUID = uuid.New().String()
		tx.OrganizationID = orgID
		tx.Type = models.CreditTxDeduction
		tx.Amount = -amount
		tx.BalanceAfter = balance.Balance
		if err := dtx.Create(tx).Error; err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !applied {
		return nil, false, nil
	}
	return &balance, true, nil
}

func (r *gormCreditRepository) Credit(orgID uint, amount int64, tx *models.CreditTransaction) (*models.CreditBalance, error) {
	var balance models.CreditBalance

	err := r.db.Transaction(func(dtx *gorm.DB) error {
		updates := map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": time.Now(),
		}
		switch tx.Type {
		case models.CreditTxPurchase:
			updates["total_purchased"] = gorm.Expr("total_purchased + ?", amount)
		case models.CreditTxRefund:
			// A refund reverses usage so the ledger identity
			// balance == purchased + allocated - used keeps holding.
			updates["total_used"] = gorm.Expr("total_used - ?", amount)
			updates["period_used"] = gorm.Expr("GREATEST(period_used - ?, 0)", amount)
		default:
			updates["total_allocated"] = gorm.Expr("total_allocated + ?", amount)
		}

		res := dtx.Model(&models.CreditBalance{}).
			Where("organization_id = ?", orgID).
			UpdateColumns(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := dtx.Where("organization_id = ?", orgID).First(&balance).Error; err != nil {
			return err
		}

		tx.UUID = uuid.New().String()
		tx.OrganizationID = orgID
		tx.Amount = amount
		tx.BalanceAfter = balance.Balance
		return dtx.Create(tx).Error
	})
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *gormCreditRepository) ResetPeriod(orgID uint, allowance, maxBalance int64, nextResetAt time.Time, tx *models.CreditTransaction) (*models.CreditBalance, error) {
	var balance models.CreditBalance

	err := r.db.Transaction(func(dtx *gorm.DB) error {
		if err := dtx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("organization_id = ?", orgID).
			First(&balance).Error; err != nil {
			return err
		}

		newBalance := balance.Balance + allowance
		if newBalance > maxBalance {
			newBalance = maxBalance
		}
		delta := newBalance - balance.Balance
		if delta < 0 {
			delta = 0
			newBalance = balance.Balance
		}

		now := time.Now()
		if err := dtx.Model(&models.CreditBalance{}).
			Where("organization_id = ?", orgID).
			UpdateColumns(map[string]interface{}{
				"balance":               newBalance,
				"period_used":           0,
				"total_allocated":       gorm.Expr("total_allocated + ?", delta),
				"low_credit_alert_sent": false,
				"last_reset_at":         now,
				"next_reset_at":         nextResetAt,
				"updated_at":            now,
			}).Error; err != nil {
			return err
		}

		if err := dtx.Where("organization_id = ?", orgID).First(&balance).Error; err != nil {
			return err
		}

		if delta > 0 {
			tx.UUID = uuid.New().String()
			tx.OrganizationID = orgID
			tx.Type = models.CreditTxAllocation
			tx.Amount = delta
			tx.BalanceAfter = balance.Balance
			if err := dtx.Create(tx).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *gormCreditRepository) SetLowCreditAlertSent(orgID uint, sent bool) error {
	return r.db.Model(&models.CreditBalance{}).
		Where("organization_id = ?", orgID).
		Update("low_credit_alert_sent", sent).Error
}

func (r *gormCreditRepository) BalancesDueForReset(now time.Time, limit int) ([]models.CreditBalance, error) {
	var balances []models.CreditBalance
	err := r.db.
		Where("next_reset_at IS NOT NULL AND next_reset_at <= ?", now).
		Limit(limit).
		Find(&balances).Error
	return balances, err
}

func (r *gormCreditRepository) ListTransactions(orgID uint, offset, limit int) ([]models.CreditTransaction, error) {
	var txs []models.CreditTransaction
	err := r.db.
		Where("organization_id = ?", orgID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&txs).Error
	return txs, err
}

func (r *gormCreditRepository) GetTransactionByUUID(txUUID string) (*models.CreditTransaction, error) {
	var tx models.CreditTransaction
	err := r.db.Where("uuid = ?", txUUID).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *gormCreditRepository) CountTransactions(orgID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.CreditTransaction{}).
		Where("organization_id = ?", orgID).
		Count(&count).Error
	return count, err
}
