package repository

import (
	"time"

	"github.com/dojopulse/dojopulse/app/models"
)

// OrganizationRepository defines the interface for tenant database operations
type OrganizationRepository interface {
	Create(org *models.Organization) error
	GetByID(id uint) (*models.Organization, error)
	GetBySlug(slug string) (*models.Organization, error)
	GetByAPIKeyHash(hash string) (*models.Organization, error)
	Update(org *models.Organization) error
	List(offset, limit int) ([]models.Organization, error)
	Count() (int64, error)
}

// CreditRepository defines the interface for credit balance and transaction
// operations. Deduct and Credit are atomic: the balance mutation and the
// appended transaction either both happen or neither does.
type CreditRepository interface {
	GetBalance(orgID uint) (*models.CreditBalance, error)
	GetOrCreateBalance(orgID uint, periodAllowance int64) (*models.CreditBalance, error)

	// Deduct decrements the balance by amount only if the current balance is
	// at least amount, bumps PeriodUsed/TotalUsed and appends the given
	// transaction with Amount/BalanceAfter filled in. The boolean result is
	// false when the conditional update matched no row (insufficient funds);
	// in that case nothing is written.
	Deduct(orgID uint, amount int64, tx *models.CreditTransaction) (*models.CreditBalance, bool, error)

	// Credit increases the balance by amount and appends the given
	// transaction. txType selects which monotonic counter is bumped.
	Credit(orgID uint, amount int64, tx *models.CreditTransaction) (*models.CreditBalance, error)

	// ResetPeriod zeroes PeriodUsed, tops the balance up by the period
	// allowance capped at maxBalance, advances the reset timestamps and
	// appends an allocation transaction for the credited delta.
	ResetPeriod(orgID uint, allowance, maxBalance int64, nextResetAt time.Time, tx *models.CreditTransaction) (*models.CreditBalance, error)

	SetLowCreditAlertSent(orgID uint, sent bool) error
	BalancesDueForReset(now time.Time, limit int) ([]models.CreditBalance, error)

	ListTransactions(orgID uint, offset, limit int) ([]models.CreditTransaction, error)
	GetTransactionByUUID(uuid string) (*models.CreditTransaction, error)
	CountTransactions(orgID uint) (int64, error)
}

// AutomationRepository defines the interface for sequence and enrollment
// operations used by the rule store, enrollment manager and scheduler.
type AutomationRepository interface {
	CreateSequence(seq *models.AutomationSequence) error
	GetSequence(orgID, id uint) (*models.AutomationSequence, error)
	ListSequences(orgID uint) ([]models.AutomationSequence, error)
	UpdateSequence(seq *models.AutomationSequence) error
	SetSequenceActive(orgID, id uint, active bool) error
	FindActiveSequencesForTrigger(orgID uint, triggerKey string) ([]models.AutomationSequence, error)

	// CreateEnrollmentIfAbsent inserts the enrollment unless the entity
	// already has an active enrollment for the same sequence. Check and
	// insert happen in one statement so concurrent triggers cannot create
	// duplicates; the boolean reports whether the row was inserted.
	CreateEnrollmentIfAbsent(e *models.AutomationEnrollment) (bool, error)
	GetEnrollment(id uint) (*models.AutomationEnrollment, error)
	FindActiveEnrollment(entityType string, entityID, sequenceID uint) (*models.AutomationEnrollment, error)
	ListEnrollmentsForEntity(orgID uint, entityType string, entityID uint) ([]models.AutomationEnrollment, error)
	ListDueEnrollments(now time.Time, limit int) ([]models.AutomationEnrollment, error)

	// ClaimEnrollment conditionally moves NextExecutionAt to the claim
	// sentinel for an active, due enrollment. Returns false when another
	// tick already claimed it or the enrollment is no longer active.
	ClaimEnrollment(id uint, now time.Time) (bool, error)

	// AdvanceEnrollment moves a claimed enrollment to the next step. It only
	// applies while the enrollment is still active, so a cancellation that
	// raced an in-flight dispatch wins; the boolean reports whether the
	// update applied.
	AdvanceEnrollment(id uint, nextPosition int, nextExecutionAt time.Time) (bool, error)
	CompleteEnrollment(id uint) (bool, error)
	RescheduleEnrollment(id uint, at time.Time, attemptCount int, lastError string) error
	MarkEnrollmentFailed(id uint, reason string) error

	// CancelEnrollment cancels a single enrollment if it is still active;
	// the boolean reports whether the update applied.
	CancelEnrollment(id uint, reason string) (bool, error)
	CancelActiveEnrollmentsForEntity(orgID uint, entityType string, entityID uint, reason string) (int64, error)

	// RequeueStuckClaims makes claimed enrollments whose dispatch never
	// finished (process crash mid-dispatch) due again. Returns the number of
	// enrollments requeued.
	RequeueStuckClaims(olderThan time.Time) (int64, error)
}

// LeadRepository defines the interface for lead-related database operations
type LeadRepository interface {
	Create(lead *models.Lead) error
	GetByID(orgID, id uint) (*models.Lead, error)
	Update(lead *models.Lead) error
	List(orgID uint, offset, limit int) ([]models.Lead, error)
	Count(orgID uint) (int64, error)
}

// StudentRepository defines the interface for student-related database operations
type StudentRepository interface {
	Create(student *models.Student) error
	GetByID(orgID, id uint) (*models.Student, error)
	Update(student *models.Student) error
	List(orgID uint, offset, limit int) ([]models.Student, error)
	Count(orgID uint) (int64, error)
	UpdateLastCheckIn(id uint, at time.Time) error

	// ListAbsentSince returns active, reachable students whose last check-in
	// is older than the cutoff (or who never checked in), for the
	// missed-class sweep.
	ListAbsentSince(cutoff time.Time, limit int) ([]models.Student, error)
}

// CheckInRepository defines the interface for kiosk check-in records
type CheckInRepository interface {
	Create(checkIn *models.CheckIn) error
	ListByStudent(orgID, studentID uint, limit int) ([]models.CheckIn, error)
	CountSince(orgID uint, since time.Time) (int64, error)
}

// UserRepository defines the interface for staff user database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(orgID, id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	List(orgID uint, offset, limit int) ([]models.User, error)
	Count(orgID uint) (int64, error)
}

// SettingRepository defines the interface for application settings
type SettingRepository interface {
	Get() (*models.AppSettings, error)
	Save(settings *models.AppSettings) error
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}
