package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
	"github.com/dojopulse/dojopulse/app/repository"
	"github.com/dojopulse/dojopulse/internal/pkg/entitlements"
)

// rolloverCapFactor bounds how far unused credits may accumulate: the
// balance is topped up by the period allowance on reset but never beyond
// rolloverCapFactor x allowance. Unused credits roll over up to that cap.
const rolloverCapFactor = 2

// LowCreditNotifier is told when an organization first drops below its
// warning threshold within a period. Implemented by the messaging layer.
type LowCreditNotifier interface {
	NotifyLowCredit(ctx context.Context, org *models.Organization, balance *models.CreditBalance) error
}

// Ledger owns all credit balance mutations. No other component writes
// balances directly; everything funnels through the repository's atomic
// conditional update.
type Ledger struct {
	repo     repository.CreditRepository
	orgs     repository.OrganizationRepository
	notifier LowCreditNotifier
}

// NewLedger creates a credit ledger service. notifier may be nil.
func NewLedger(repo repository.CreditRepository, orgs repository.OrganizationRepository, notifier LowCreditNotifier) *Ledger {
	return &Ledger{repo: repo, orgs: orgs, notifier: notifier}
}

// BalanceInfo is the read model exposed to the UI layer.
type BalanceInfo struct {
	Balance          int64      `json:"balance"`
	PeriodAllowance  int64      `json:"period_allowance"`
	PeriodUsed       int64      `json:"period_used"`
	RemainingPercent int        `json:"remaining_percent"`
	NextResetAt      *time.Time `json:"next_reset_at"`
}

// DeductInput describes one metered action.
type DeductInput struct {
	OrganizationID uint
	Amount         int64
	TaskType       TaskType
	Description    string
	RelatedType    string
	RelatedID      uint
	ActorUserID    *uint
}

// DeductResult reports a successful deduction.
type DeductResult struct {
	NewBalance      int64
	TransactionUUID string
}

// GetBalance returns the current balance snapshot for an organization,
// lazily provisioning the balance row on first use.
func (l *Ledger) GetBalance(ctx context.Context, orgID uint) (*BalanceInfo, error) {
	_ = ctx
	balance, err := l.ensureBalance(orgID)
	if err != nil {
		return nil, err
	}
	return &BalanceInfo{
		Balance:          balance.Balance,
		PeriodAllowance:  balance.PeriodAllowance,
		PeriodUsed:       balance.PeriodUsed,
		RemainingPercent: balance.RemainingPercent(),
		NextResetAt:      balance.NextResetAt,
	}, nil
}

// Deduct atomically charges an organization for a metered action. Exactly
// one deduction transaction is appended on success; on insufficient funds
// nothing is written and ErrInsufficientCredits is returned.
func (l *Ledger) Deduct(ctx context.Context, in DeductInput) (*DeductResult, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := l.ensureBalance(in.OrganizationID); err != nil {
		return nil, err
	}

	tx := &models.CreditTransaction{
		TaskType:          string(in.TaskType),
		Description:       in.Description,
		RelatedEntityType: in.RelatedType,
		RelatedEntityID:   in.RelatedID,
		ActorUserID:       in.ActorUserID,
	}
	balance, ok, err := l.repo.Deduct(in.OrganizationID, in.Amount, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if !ok {
		// A blocked deduction is the loudest low-credit signal there is.
		if current, berr := l.repo.GetBalance(in.OrganizationID); berr == nil {
			l.maybeNotifyLowCredit(ctx, in.OrganizationID, current)
		}
		return nil, ErrInsufficientCredits
	}

	l.maybeNotifyLowCredit(ctx, in.OrganizationID, balance)

	return &DeductResult{NewBalance: balance.Balance, TransactionUUID: tx.UUID}, nil
}

// Refund returns credits for work that did not happen. Refunds never fail
// on balance checks.
func (l *Ledger) Refund(ctx context.Context, orgID uint, amount int64, relatedTransactionUUID, reason string) (int64, error) {
	_ = ctx
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	tx := &models.CreditTransaction{
		Type:        models.CreditTxRefund,
		Description: reason,
		Metadata:    fmt.Sprintf(`{"refunds":%q}`, relatedTransactionUUID),
	}
	balance, err := l.repo.Credit(orgID, amount, tx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return balance.Balance, nil
}

// Allocate grants plan credits outside the regular reset (manual grants,
// goodwill bonuses).
func (l *Ledger) Allocate(ctx context.Context, orgID uint, amount int64, reason string) (int64, error) {
	_ = ctx
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := l.ensureBalance(orgID); err != nil {
		return 0, err
	}

	tx := &models.CreditTransaction{
		Type:        models.CreditTxAllocation,
		Description: reason,
	}
	balance, err := l.repo.Credit(orgID, amount, tx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	l.clearAlertIfRecovered(orgID, balance)
	return balance.Balance, nil
}

// PurchaseTopUp credits a paid top-up.
func (l *Ledger) PurchaseTopUp(ctx context.Context, orgID uint, amount int64, actorUserID *uint) (int64, error) {
	_ = ctx
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := l.ensureBalance(orgID); err != nil {
		return 0, err
	}

	tx := &models.CreditTransaction{
		Type:        models.CreditTxPurchase,
		Description: "credit top-up purchase",
		ActorUserID: actorUserID,
	}
	balance, err := l.repo.Credit(orgID, amount, tx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	l.clearAlertIfRecovered(orgID, balance)
	return balance.Balance, nil
}

// ResetPeriod runs the monthly billing-cycle reset for one organization:
// period usage is zeroed and the balance is topped up by the period
// allowance. Unused credits roll over, capped at twice the allowance.
func (l *Ledger) ResetPeriod(ctx context.Context, orgID uint) (*models.CreditBalance, error) {
	_ = ctx
	balance, err := l.ensureBalance(orgID)
	if err != nil {
		return nil, err
	}

	allowance := balance.PeriodAllowance
	maxBalance := allowance * rolloverCapFactor
	if maxBalance < balance.Balance {
		// Purchased credits above the cap are never clawed back.
		maxBalance = balance.Balance
	}

	tx := &models.CreditTransaction{
		Description: "monthly allowance",
	}
	updated, err := l.repo.ResetPeriod(orgID, allowance, maxBalance, nextMonthlyReset(time.Now()), tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return updated, nil
}

// ResetDuePeriods resets every balance whose next_reset_at has passed.
// Invoked by the scheduler's reminder tick; returns how many were reset.
func (l *Ledger) ResetDuePeriods(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := l.repo.BalancesDueForReset(now, limit)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	count := 0
	for _, balance := range due {
		if _, err := l.ResetPeriod(ctx, balance.OrganizationID); err != nil {
			log.Errorf("[CreditLedger] Period reset failed for org %d: %v", balance.OrganizationID, err)
			continue
		}
		count++
	}
	return count, nil
}

// ListTransactions returns the most recent ledger entries for an organization.
func (l *Ledger) ListTransactions(ctx context.Context, orgID uint, offset, limit int) ([]models.CreditTransaction, error) {
	_ = ctx
	txs, err := l.repo.ListTransactions(orgID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return txs, nil
}

// ensureBalance loads the balance row, provisioning it from the plan
// allowance when the organization has never used a metered action.
func (l *Ledger) ensureBalance(orgID uint) (*models.CreditBalance, error) {
	balance, err := l.repo.GetBalance(orgID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	allowance := int64(0)
	if org, oerr := l.orgs.GetByID(orgID); oerr == nil {
		allowance = entitlements.MonthlyCreditAllowance(entitlements.Plan(org.Plan))
	}

	balance, err = l.repo.GetOrCreateBalance(orgID, allowance)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return balance, nil
}

func (l *Ledger) maybeNotifyLowCredit(ctx context.Context, orgID uint, balance *models.CreditBalance) {
	if l.notifier == nil || balance.LowCreditAlertSent {
		return
	}

	org, err := l.orgs.GetByID(orgID)
	if err != nil {
		log.Errorf("[CreditLedger] Low-credit check: org %d lookup failed: %v", orgID, err)
		return
	}
	if balance.RemainingPercent() >= org.LowCreditWarnPercent {
		return
	}

	if err := l.notifier.NotifyLowCredit(ctx, org, balance); err != nil {
		log.Errorf("[CreditLedger] Low-credit notification for org %d failed: %v", orgID, err)
		return
	}
	if err := l.repo.SetLowCreditAlertSent(orgID, true); err != nil {
		log.Errorf("[CreditLedger] Failed to mark low-credit alert for org %d: %v", orgID, err)
	}
}

// clearAlertIfRecovered re-arms the low-credit alert once a top-up lifts the
// balance back over the warning threshold.
func (l *Ledger) clearAlertIfRecovered(orgID uint, balance *models.CreditBalance) {
	if !balance.LowCreditAlertSent {
		return
	}
	org, err := l.orgs.GetByID(orgID)
	if err != nil {
		return
	}
	if balance.RemainingPercent() >= org.LowCreditWarnPercent {
		if err := l.repo.SetLowCreditAlertSent(orgID, false); err != nil {
			log.Errorf("[CreditLedger] Failed to clear low-credit alert for org %d: %v", orgID, err)
		}
	}
}

// nextMonthlyReset returns the first moment of the next calendar month.
func nextMonthlyReset(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
}
