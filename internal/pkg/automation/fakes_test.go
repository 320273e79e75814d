package automation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
	"github.com/dojopulse/dojopulse/internal/pkg/credits"
)

// fakeAutomationRepository is an in-memory AutomationRepository with the
// same conditional-update semantics as the GORM implementation.
type fakeAutomationRepository struct {
	mu          sync.Mutex
	sequences   map[uint]*models.AutomationSequence
	enrollments map[uint]*models.AutomationEnrollment
	nextSeqID   uint
	nextEnrID   uint
}

func newFakeAutomationRepository() *fakeAutomationRepository {
	return &fakeAutomationRepository{
		sequences:   make(map[uint]*models.AutomationSequence),
		enrollments: make(map[uint]*models.AutomationEnrollment),
	}
}

func (f *fakeAutomationRepository) CreateSequence(seq *models.AutomationSequence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSeqID++
	seq.ID = f.nextSeqID
	for i := range seq.Steps {
		seq.Steps[i].SequenceID = seq.ID
	}
	copied := *seq
	f.sequences[seq.ID] = &copied
	return nil
}

func (f *fakeAutomationRepository) GetSequence(orgID, id uint) (*models.AutomationSequence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seq, ok := f.sequences[id]
	if !ok || seq.OrganizationID != orgID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *seq
	return &copied, nil
}

func (f *fakeAutomationRepository) ListSequences(orgID uint) ([]models.AutomationSequence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AutomationSequence
	for _, seq := range f.sequences {
		if seq.OrganizationID == orgID {
			out = append(out, *seq)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAutomationRepository) UpdateSequence(seq *models.AutomationSequence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *seq
	f.sequences[seq.ID] = &copied
	return nil
}

func (f *fakeAutomationRepository) SetSequenceActive(orgID, id uint, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	seq, ok := f.sequences[id]
	if !ok || seq.OrganizationID != orgID {
		return gorm.ErrRecordNotFound
	}
	seq.Active = active
	return nil
}

func (f *fakeAutomationRepository) FindActiveSequencesForTrigger(orgID uint, triggerKey string) ([]models.AutomationSequence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AutomationSequence
	for _, seq := range f.sequences {
		if seq.OrganizationID == orgID && seq.TriggerKey == triggerKey && seq.Active {
			out = append(out, *seq)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAutomationRepository) CreateEnrollmentIfAbsent(e *models.AutomationEnrollment) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.enrollments {
		if existing.EntityType == e.EntityType && existing.EntityID == e.EntityID &&
			existing.SequenceID == e.SequenceID && existing.Status == models.EnrollmentStatusActive {
			return false, nil
		}
	}
	f.nextEnrID++
	e.ID = f.nextEnrID
	e.CreatedAt = time.Now()
	copied := *e
	f.enrollments[e.ID] = &copied
	return true, nil
}

func (f *fakeAutomationRepository) GetEnrollment(id uint) (*models.AutomationEnrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *e
	if seq, ok := f.sequences[e.SequenceID]; ok {
		copied.Sequence = *seq
	}
	return &copied, nil
}

func (f *fakeAutomationRepository) FindActiveEnrollment(entityType string, entityID, sequenceID uint) (*models.AutomationEnrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.enrollments {
		if e.EntityType == entityType && e.EntityID == entityID && e.SequenceID == sequenceID && e.Status == models.EnrollmentStatusActive {
			copied := *e
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAutomationRepository) ListEnrollmentsForEntity(orgID uint, entityType string, entityID uint) ([]models.AutomationEnrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AutomationEnrollment
	for _, e := range f.enrollments {
		if e.OrganizationID == orgID && e.EntityType == entityType && e.EntityID == entityID {
			copied := *e
			if seq, ok := f.sequences[e.SequenceID]; ok {
				copied.Sequence = *seq
			}
			out = append(out, copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAutomationRepository) ListDueEnrollments(now time.Time, limit int) ([]models.AutomationEnrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AutomationEnrollment
	for _, e := range f.enrollments {
		if e.Status == models.EnrollmentStatusActive && e.NextExecutionAt != nil && !e.NextExecutionAt.After(now) {
			out = append(out, *e)
		}
		if len(out) == limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAutomationRepository) ClaimEnrollment(id uint, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusActive || e.NextExecutionAt == nil || e.NextExecutionAt.After(now) {
		return false, nil
	}
	sentinel := models.ClaimSentinel
	e.NextExecutionAt = &sentinel
	e.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeAutomationRepository) AdvanceEnrollment(id uint, nextPosition int, nextExecutionAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusActive {
		return false, nil
	}
	e.CurrentStepPosition = nextPosition
	e.NextExecutionAt = &nextExecutionAt
	e.AttemptCount = 0
	e.LastError = ""
	return true, nil
}

func (f *fakeAutomationRepository) CompleteEnrollment(id uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusActive {
		return false, nil
	}
	now := time.Now()
	e.Status = models.EnrollmentStatusCompleted
	e.NextExecutionAt = nil
	e.CompletedAt = &now
	return true, nil
}

func (f *fakeAutomationRepository) RescheduleEnrollment(id uint, at time.Time, attemptCount int, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusActive {
		return nil
	}
	e.NextExecutionAt = &at
	e.AttemptCount = attemptCount
	e.LastError = lastError
	return nil
}

func (f *fakeAutomationRepository) MarkEnrollmentFailed(id uint, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.Status = models.EnrollmentStatusFailed
	e.NextExecutionAt = nil
	e.LastError = reason
	return nil
}

func (f *fakeAutomationRepository) CancelEnrollment(id uint, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusActive {
		return false, nil
	}
	e.Status = models.EnrollmentStatusCancelled
	e.NextExecutionAt = nil
	e.LastError = reason
	return true, nil
}

func (f *fakeAutomationRepository) CancelActiveEnrollmentsForEntity(orgID uint, entityType string, entityID uint, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, e := range f.enrollments {
		if e.OrganizationID == orgID && e.EntityType == entityType && e.EntityID == entityID && e.Status == models.EnrollmentStatusActive {
			e.Status = models.EnrollmentStatusCancelled
			e.NextExecutionAt = nil
			e.LastError = reason
			count++
		}
	}
	return count, nil
}

func (f *fakeAutomationRepository) RequeueStuckClaims(olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	now := time.Now()
	for _, e := range f.enrollments {
		if e.Status == models.EnrollmentStatusActive && e.NextExecutionAt != nil &&
			e.NextExecutionAt.Equal(models.ClaimSentinel) && e.UpdatedAt.Before(olderThan) {
			at := now
			e.NextExecutionAt = &at
			e.UpdatedAt = now
			count++
		}
	}
	return count, nil
}

// fakeLeadRepository holds leads by id.
type fakeLeadRepository struct {
	leads map[uint]*models.Lead
}

func (f *fakeLeadRepository) Create(lead *models.Lead) error {
	f.leads[lead.ID] = lead
	return nil
}

func (f *fakeLeadRepository) GetByID(orgID, id uint) (*models.Lead, error) {
	lead, ok := f.leads[id]
	if !ok || lead.OrganizationID != orgID {
		return nil, gorm.ErrRecordNotFound
	}
	return lead, nil
}

func (f *fakeLeadRepository) Update(lead *models.Lead) error { f.leads[lead.ID] = lead; return nil }

func (f *fakeLeadRepository) List(uint, int, int) ([]models.Lead, error) { return nil, nil }

func (f *fakeLeadRepository) Count(uint) (int64, error) { return 0, nil }

// fakeStudentRepository holds students by id.
type fakeStudentRepository struct {
	students map[uint]*models.Student
}

func (f *fakeStudentRepository) Create(s *models.Student) error { f.students[s.ID] = s; return nil }

func (f *fakeStudentRepository) GetByID(orgID, id uint) (*models.Student, error) {
	s, ok := f.students[id]
	if !ok || s.OrganizationID != orgID {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (f *fakeStudentRepository) Update(s *models.Student) error { f.students[s.ID] = s; return nil }

func (f *fakeStudentRepository) List(uint, int, int) ([]models.Student, error) { return nil, nil }

func (f *fakeStudentRepository) Count(uint) (int64, error) { return 0, nil }

func (f *fakeStudentRepository) UpdateLastCheckIn(id uint, at time.Time) error {
	if s, ok := f.students[id]; ok {
		s.LastCheckInAt = &at
	}
	return nil
}

func (f *fakeStudentRepository) ListAbsentSince(cutoff time.Time, limit int) ([]models.Student, error) {
	var out []models.Student
	for _, s := range f.students {
		if !s.IsReachable() {
			continue
		}
		if s.LastCheckInAt == nil || s.LastCheckInAt.Before(cutoff) {
			out = append(out, *s)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// fakeCreditRepo backs a real Ledger with in-memory balances for dispatcher
// and scheduler tests.
type fakeCreditRepo struct {
	mu           sync.Mutex
	balance      *models.CreditBalance
	transactions []models.CreditTransaction
}

func newFakeCreditRepo(orgID uint, balance int64) *fakeCreditRepo {
	return &fakeCreditRepo{balance: &models.CreditBalance{
		OrganizationID:  orgID,
		Balance:         balance,
		PeriodAllowance: balance,
	}}
}

func (f *fakeCreditRepo) GetBalance(orgID uint) (*models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance.OrganizationID != orgID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f.balance
	return &copied, nil
}

func (f *fakeCreditRepo) GetOrCreateBalance(orgID uint, periodAllowance int64) (*models.CreditBalance, error) {
	return f.GetBalance(orgID)
}

func (f *fakeCreditRepo) Deduct(orgID uint, amount int64, tx *models.CreditTransaction) (*models.CreditBalance, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance.Balance < amount {
		return nil, false, nil
	}
	f.balance.Balance -= amount
	f.balance.PeriodUsed += amount
	f.balance.TotalUsed += amount
	tx.UUID = uuid.New().String()
	tx.OrganizationID = orgID
	tx.Type = models.CreditTxDeduction
	tx.Amount = -amount
	tx.BalanceAfter = f.balance.Balance
	f.transactions = append(f.transactions, *tx)
	copied := *f.balance
	return &copied, true, nil
}

func (f *fakeCreditRepo) Credit(orgID uint, amount int64, tx *models.CreditTransaction) (*models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance.Balance += amount
	if tx.Type == models.CreditTxRefund {
		f.balance.TotalUsed -= amount
		f.balance.PeriodUsed -= amount
	}
	tx.UUID = uuid.New().String()
	tx.OrganizationID = orgID
	tx.Amount = amount
	tx.BalanceAfter = f.balance.Balance
	f.transactions = append(f.transactions, *tx)
	copied := *f.balance
	return &copied, nil
}

func (f *fakeCreditRepo) ResetPeriod(orgID uint, allowance, maxBalance int64, nextResetAt time.Time, tx *models.CreditTransaction) (*models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *f.balance
	return &copied, nil
}

func (f *fakeCreditRepo) SetLowCreditAlertSent(uint, bool) error { return nil }

func (f *fakeCreditRepo) BalancesDueForReset(time.Time, int) ([]models.CreditBalance, error) {
	return nil, nil
}

func (f *fakeCreditRepo) ListTransactions(uint, int, int) ([]models.CreditTransaction, error) {
	return nil, nil
}

func (f *fakeCreditRepo) GetTransactionByUUID(string) (*models.CreditTransaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCreditRepo) CountTransactions(uint) (int64, error) { return 0, nil }

type stubOrgRepo struct {
	org *models.Organization
}

func (s *stubOrgRepo) Create(*models.Organization) error { return nil }

func (s *stubOrgRepo) GetByID(id uint) (*models.Organization, error) {
	if s.org != nil && s.org.ID == id {
		return s.org, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrgRepo) GetBySlug(string) (*models.Organization, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrgRepo) GetByAPIKeyHash(string) (*models.Organization, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrgRepo) Update(*models.Organization) error { return nil }

func (s *stubOrgRepo) List(int, int) ([]models.Organization, error) { return nil, nil }

func (s *stubOrgRepo) Count() (int64, error) { return 0, nil }

// Fake message providers recording sends.
type fakeSMS struct {
	sent []string
	err  error
}

func (f *fakeSMS) SendSMS(ctx context.Context, toPhone, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, body)
	return "msg-1", nil
}

type fakeEmail struct {
	sent []string
	err  error
}

func (f *fakeEmail) SendEmail(ctx context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, subject)
	return nil
}

type fakePhone struct {
	calls   []string
	seconds int
	err     error
}

func (f *fakePhone) PlaceCall(ctx context.Context, toPhone, script string) (string, int, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	f.calls = append(f.calls, script)
	seconds := f.seconds
	if seconds == 0 {
		seconds = 90
	}
	return "call-1", seconds, nil
}

func newTestLedger(orgID uint, balance int64) (*credits.Ledger, *fakeCreditRepo) {
	repo := newFakeCreditRepo(orgID, balance)
	orgs := &stubOrgRepo{org: &models.Organization{ID: orgID, Plan: "starter", LowCreditWarnPercent: 20}}
	return credits.NewLedger(repo, orgs, nil), repo
}
