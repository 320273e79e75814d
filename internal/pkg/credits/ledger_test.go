package credits

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
)

// fakeCreditRepository mirrors the conditional-update semantics of the GORM
// implementation on an in-memory balance. The mutex stands in for the
// serialization a single conditional UPDATE statement gives the real one.
type fakeCreditRepository struct {
	mu           sync.Mutex
	balances     map[uint]*models.CreditBalance
	transactions []models.CreditTransaction
	failAll      bool
}

func newFakeCreditRepository() *fakeCreditRepository {
	return &fakeCreditRepository{balances: make(map[uint]*models.CreditBalance)}
}

func (f *fakeCreditRepository) GetBalance(orgID uint) (*models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, assertErr
	}
	b, ok := f.balances[orgID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *b
	return &copied, nil
}

func (f *fakeCreditRepository) GetOrCreateBalance(orgID uint, periodAllowance int64) (*models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, assertErr
	}
	if b, ok := f.balances[orgID]; ok {
		copied := *b
		return &copied, nil
	}
	next := time.Now().AddDate(0, 1, 0)
	b := &models.CreditBalance{
		OrganizationID:  orgID,
		Balance:         periodAllowance,
		PeriodAllowance: periodAllowance,
		TotalAllocated:  periodAllowance,
		NextResetAt:     &next,
	}
	f.balances[orgID] = b
	copied := *b
	return &copied, nil
}

func (f *fakeCreditRepository) Deduct(orgID uint, amount int64, tx *models.CreditTransaction) (*models.CreditBalance, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, false, assertErr
	}
	b, ok := f.balances[orgID]
	if !ok {
		return nil, false, gorm.ErrRecordNotFound
	}
	if b.Balance < amount {
		return nil, false, nil
	}
	b.Balance -= amount
	b.PeriodUsed += amount
	b.TotalUsed += amount

	tx.UUID = uuid.New().String()
	tx.OrganizationID = orgID
	tx.Type = models.CreditTxDeduction
	tx.Amount = -amount
	tx.BalanceAfter = b.Balance
	f.transactions = append(f.transactions, *tx)

	copied := *b
	return &copied, true, nil
}

func (f *fakeCreditRepository) Credit(orgID uint, amount int64, tx *models.CreditTransaction) (*models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, assertErr
	}
	b, ok := f.balances[orgID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	b.Balance += amount
	switch tx.Type {
	case models.CreditTxPurchase:
		b.TotalPurchased += amount
	case models.CreditTxRefund:
		b.TotalUsed -= amount
		if b.PeriodUsed < amount {
			b.PeriodUsed = 0
		} else {
			b.PeriodUsed -= amount
		}
	default:
		b.TotalAllocated += amount
	}

	tx.UUID = uuid.New().String()
	tx.OrganizationID = orgID
	tx.Amount = amount
	tx.BalanceAfter = b.Balance
	f.transactions = append(f.transactions, *tx)

	copied := *b
	return &copied, nil
}

func (f *fakeCreditRepository) ResetPeriod(orgID uint, allowance, maxBalance int64, nextResetAt time.Time, tx *models.CreditTransaction) (*models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[orgID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	target := b.Balance + allowance
	if target > maxBalance {
		target = maxBalance
	}
	delta := target - b.Balance
	b.Balance = target
	b.PeriodUsed = 0
	b.PeriodAllowance = allowance
	b.LowCreditAlertSent = false
	now := time.Now()
	b.LastResetAt = &now
	b.NextResetAt = &nextResetAt

	if delta > 0 {
		tx.UUID = uuid.New().String()
		tx.OrganizationID = orgID
		tx.Type = models.CreditTxAllocation
		tx.Amount = delta
		tx.BalanceAfter = b.Balance
		b.TotalAllocated += delta
		f.transactions = append(f.transactions, *tx)
	}

	copied := *b
	return &copied, nil
}

func (f *fakeCreditRepository) SetLowCreditAlertSent(orgID uint, sent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[orgID]; ok {
		b.LowCreditAlertSent = sent
	}
	return nil
}

func (f *fakeCreditRepository) BalancesDueForReset(now time.Time, limit int) ([]models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []models.CreditBalance
	for _, b := range f.balances {
		if b.NextResetAt != nil && !b.NextResetAt.After(now) {
			due = append(due, *b)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (f *fakeCreditRepository) ListTransactions(orgID uint, offset, limit int) ([]models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CreditTransaction
	for i := len(f.transactions) - 1; i >= 0; i-- {
		if f.transactions[i].OrganizationID == orgID {
			out = append(out, f.transactions[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCreditRepository) GetTransactionByUUID(id string) (*models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.transactions {
		if f.transactions[i].UUID == id {
			return &f.transactions[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCreditRepository) CountTransactions(orgID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.transactions {
		if f.transactions[i].OrganizationID == orgID {
			n++
		}
	}
	return n, nil
}

type fakeOrgRepository struct {
	orgs map[uint]*models.Organization
}

func (f *fakeOrgRepository) Create(org *models.Organization) error { f.orgs[org.ID] = org; return nil }
func (f *fakeOrgRepository) GetByID(id uint) (*models.Organization, error) {
	if o, ok := f.orgs[id]; ok {
		return o, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeOrgRepository) GetBySlug(string) (*models.Organization, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeOrgRepository) GetByAPIKeyHash(string) (*models.Organization, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeOrgRepository) Update(*models.Organization) error { return nil }

func (f *fakeOrgRepository) List(int, int) ([]models.Organization, error) { return nil, nil }

func (f *fakeOrgRepository) Count() (int64, error) { return 0, nil }

type recordingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingNotifier) NotifyLowCredit(ctx context.Context, org *models.Organization, balance *models.CreditBalance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

var assertErr = gorm.ErrInvalidDB

func newTestLedger(t *testing.T, plan string) (*Ledger, *fakeCreditRepository, *recordingNotifier) {
	t.Helper()
	repo := newFakeCreditRepository()
	orgs := &fakeOrgRepository{orgs: map[uint]*models.Organization{
		1: {ID: 1, Name: "Test Dojo", Plan: plan, LowCreditWarnPercent: 20},
	}}
	notifier := &recordingNotifier{}
	return NewLedger(repo, orgs, notifier), repo, notifier
}

func TestLedgerProvisionsBalanceFromPlan(t *testing.T) {
	ledger, _, _ := newTestLedger(t, "growth")

	info, err := ledger.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(600), info.Balance)
	assert.Equal(t, int64(600), info.PeriodAllowance)
	assert.Equal(t, 100, info.RemainingPercent)
}

func TestLedgerDeduct(t *testing.T) {
	ledger, repo, _ := newTestLedger(t, "starter")
	ctx := context.Background()

	result, err := ledger.Deduct(ctx, DeductInput{OrganizationID: 1, Amount: 8, TaskType: TaskPhoneCall, Description: "ai call"})
	require.NoError(t, err)
	assert.Equal(t, int64(142), result.NewBalance)
	assert.NotEmpty(t, result.TransactionUUID)

	tx, err := repo.GetTransactionByUUID(result.TransactionUUID)
	require.NoError(t, err)
	assert.Equal(t, models.CreditTxDeduction, tx.Type)
	assert.Equal(t, int64(-8), tx.Amount)
	assert.Equal(t, int64(142), tx.BalanceAfter)
}

func TestLedgerDeductInsufficientWritesNothing(t *testing.T) {
	ledger, repo, _ := newTestLedger(t, "starter")
	ctx := context.Background()

	_, err := ledger.Deduct(ctx, DeductInput{OrganizationID: 1, Amount: 9999, TaskType: TaskPhoneCall})
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	count, _ := repo.CountTransactions(1)
	assert.Equal(t, int64(0), count)

	info, err := ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(150), info.Balance)
}

func TestLedgerConcurrentDeductsNeverOverspend(t *testing.T) {
	ledger, repo, _ := newTestLedger(t, "starter")
	ctx := context.Background()

	// 150 credits fund exactly 18 phone calls at 8 credits each; the other
	// callers must observe insufficient funds.
	const callers = 40
	var wg sync.WaitGroup
	var succeeded atomic.Int64
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Deduct(ctx, DeductInput{OrganizationID: 1, Amount: 8, TaskType: TaskPhoneCall})
			if err == nil {
				succeeded.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientCredits)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(18), succeeded.Load())
	assert.Equal(t, int64(150-18*8), repo.balances[1].Balance)

	// One transaction per successful deduction, none for the refused ones.
	count, err := repo.CountTransactions(1)
	require.NoError(t, err)
	assert.Equal(t, succeeded.Load(), count)
}

func TestLedgerDeductRejectsInvalidAmounts(t *testing.T) {
	ledger, _, _ := newTestLedger(t, "starter")
	ctx := context.Background()

	_, err := ledger.Deduct(ctx, DeductInput{OrganizationID: 1, Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ledger.Deduct(ctx, DeductInput{OrganizationID: 1, Amount: -5})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedgerRefundRoundTrip(t *testing.T) {
	ledger, _, _ := newTestLedger(t, "starter")
	ctx := context.Background()

	result, err := ledger.Deduct(ctx, DeductInput{OrganizationID: 1, Amount: 8, TaskType: TaskPhoneCall})
	require.NoError(t, err)

	newBalance, err := ledger.Refund(ctx, 1, 8, result.TransactionUUID, "call failed")
	require.NoError(t, err)
	assert.Equal(t, int64(150), newBalance)

	// Usage counters are reversed so the balance invariant holds.
	balance, err := ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.PeriodUsed)
}

func TestLedgerUnavailableWrapsError(t *testing.T) {
	repo := newFakeCreditRepository()
	repo.failAll = true
	orgs := &fakeOrgRepository{orgs: map[uint]*models.Organization{1: {ID: 1, Plan: "starter"}}}
	ledger := NewLedger(repo, orgs, nil)

	_, err := ledger.Deduct(context.Background(), DeductInput{OrganizationID: 1, Amount: 1})
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}

func TestLedgerLowCreditNotification(t *testing.T) {
	ledger, repo, notifier := newTestLedger(t, "starter")
	ctx := context.Background()

	// Drain to below 20% of the 150 allowance (30 credits).
	_, err := ledger.Deduct(ctx, DeductInput{OrganizationID: 1, Amount: 125, TaskType: TaskAutomation})
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.calls)

	// Further deductions do not re-notify within the period.
	_, err = ledger.Deduct(ctx, DeductInput{OrganizationID: 1, Amount: 5, TaskType: TaskSMS})
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.calls)
	assert.True(t, repo.balances[1].LowCreditAlertSent)
}

func TestLedgerBlockedDeductNotifiesLowCredit(t *testing.T) {
	ledger, repo, notifier := newTestLedger(t, "starter")
	ctx := context.Background()

	_, err := ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	repo.balances[1].Balance = 10

	_, err = ledger.Deduct(ctx, DeductInput{OrganizationID: 1, Amount: 12, TaskType: TaskPhoneCall})
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, 1, notifier.calls)
	assert.True(t, repo.balances[1].LowCreditAlertSent)
}

func TestLedgerResetPeriodRollsOverWithCap(t *testing.T) {
	ledger, repo, _ := newTestLedger(t, "starter")
	ctx := context.Background()

	// Untouched allowance of 150 rolls over but the reset tops up only to
	// twice the allowance.
	balance, err := ledger.ResetPeriod(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance.Balance)

	balance, err = ledger.ResetPeriod(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance.Balance)
	assert.Equal(t, int64(0), balance.PeriodUsed)

	// Purchased credits above the cap survive the reset.
	repo.balances[1].Balance = 900
	balance, err = ledger.ResetPeriod(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(900), balance.Balance)
}

func TestLedgerResetDuePeriods(t *testing.T) {
	ledger, repo, _ := newTestLedger(t, "starter")
	ctx := context.Background()

	_, err := ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	repo.balances[1].NextResetAt = &past
	repo.balances[1].PeriodUsed = 50
	repo.balances[1].Balance = 100

	count, err := ledger.ResetDuePeriods(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(0), repo.balances[1].PeriodUsed)
	assert.Equal(t, int64(250), repo.balances[1].Balance)
	assert.True(t, repo.balances[1].NextResetAt.After(time.Now()))
}

func TestNextMonthlyReset(t *testing.T) {
	at := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	next := nextMonthlyReset(at)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), next)

	// December wraps into the next year.
	at = time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), nextMonthlyReset(at))
}
