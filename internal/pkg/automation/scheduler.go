package automation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/dojopulse/dojopulse/app/models"
	"github.com/dojopulse/dojopulse/app/repository"
	"github.com/dojopulse/dojopulse/internal/pkg/credits"
	"github.com/dojopulse/dojopulse/internal/pkg/messaging"
	counter "github.com/dojopulse/dojopulse/internal/pkg/metrics/counter"
)

const (
	// claimBatchSize bounds how many due enrollments one tick picks up.
	claimBatchSize = 100
	// resetBatchSize bounds how many period resets one reminder tick runs.
	resetBatchSize = 200
	// sweepBatchSize bounds the missed-class sweep per reminder tick.
	sweepBatchSize = 200
	// stuckClaimAge is how long a claimed enrollment may sit without an
	// outcome before it is assumed orphaned by a crash and requeued.
	stuckClaimAge = 15 * time.Minute
)

// Scheduler drives the automation engine: it claims due enrollments, hands
// them to a bounded dispatch pool and runs the periodic housekeeping
// (monthly credit resets, missed-class sweep, counter flush).
type Scheduler struct {
	repo       repository.AutomationRepository
	students   repository.StudentRepository
	enroller   *Enroller
	dispatcher *Dispatcher
	ledger     *credits.Ledger

	automationTicker   *time.Ticker
	reminderTicker     *time.Ticker
	counterFlushTicker *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool

	// tickInFlight keeps a slow tick from overlapping with the next one.
	tickInFlight atomic.Bool
	workers      int
}

var (
	globalScheduler *Scheduler
	schedulerOnce   sync.Once
)

// GetScheduler returns the global automation scheduler (singleton).
func GetScheduler() *Scheduler {
	schedulerOnce.Do(func() {
		repos := repository.GetGlobalRepositories()

		mailer := messaging.NewSMTPMailer()
		ledger := credits.NewLedger(repos.Credit, repos.Organization, messaging.NewLowCreditAlerter(mailer))
		store := NewStore(repos.Automation)
		enroller := NewEnroller(repos.Automation, store)
		dispatcher := NewDispatcher(
			ledger,
			messaging.NewHTTPSMSGateway(),
			mailer,
			messaging.NewHTTPPhoneGateway(),
			repos.Lead,
			repos.Student,
		)

		globalScheduler = NewScheduler(repos.Automation, repos.Student, enroller, dispatcher, ledger)
	})
	return globalScheduler
}

// NewScheduler creates a scheduler over explicit dependencies.
func NewScheduler(
	repo repository.AutomationRepository,
	students repository.StudentRepository,
	enroller *Enroller,
	dispatcher *Dispatcher,
	ledger *credits.Ledger,
) *Scheduler {
	workers := 5
	if settings := models.GetAppSettings(); settings != nil {
		workers = settings.GetDispatchWorkerCount()
	}
	return &Scheduler{
		repo:       repo,
		students:   students,
		enroller:   enroller,
		dispatcher: dispatcher,
		ledger:     ledger,
		stopCh:     make(chan struct{}),
		workers:    workers,
	}
}

// Enroller exposes the enrollment manager for controllers.
func (s *Scheduler) Enroller() *Enroller {
	return s.enroller
}

// Ledger exposes the credit ledger for controllers.
func (s *Scheduler) Ledger() *credits.Ledger {
	return s.ledger
}

// Start starts the scheduler tickers. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	// Recreate stop channel for each start cycle so the scheduler can be restarted safely.
	s.stopCh = make(chan struct{})
	s.running = true
	log.Info("[Scheduler] Starting automation scheduler and background tasks")

	automationTick := 60 * time.Second
	reminderTick := time.Hour
	counterFlush := 5 * time.Second
	if settings := models.GetAppSettings(); settings != nil {
		automationTick = settings.GetAutomationTick()
		reminderTick = settings.GetReminderTick()
		counterFlush = settings.GetCounterFlushInterval()
	}

	s.automationTicker = time.NewTicker(automationTick)
	s.wg.Add(1)
	go s.automationWorker()

	s.reminderTicker = time.NewTicker(reminderTick)
	s.wg.Add(1)
	go s.reminderWorker()

	s.counterFlushTicker = time.NewTicker(counterFlush)
	s.wg.Add(1)
	go s.counterFlushWorker()

	log.Info("[Scheduler] Started successfully")
}

// Stop stops the scheduler and waits for in-flight dispatches to finish.
// Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	log.Info("[Scheduler] Stopping automation scheduler...")

	if s.automationTicker != nil {
		s.automationTicker.Stop()
	}
	if s.reminderTicker != nil {
		s.reminderTicker.Stop()
	}
	if s.counterFlushTicker != nil {
		s.counterFlushTicker.Stop()
	}

	close(s.stopCh)
	s.running = false

	s.wg.Wait()

	log.Info("[Scheduler] Stopped successfully")
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// automationWorker drives the claim/dispatch loop.
func (s *Scheduler) automationWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			log.Info("[Scheduler] Automation worker stopping")
			return
		case <-s.automationTicker.C:
			s.runAutomationTickOnce()
		}
	}
}

// reminderWorker drives the slower periodic housekeeping.
func (s *Scheduler) reminderWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			log.Info("[Scheduler] Reminder worker stopping")
			return
		case <-s.reminderTicker.C:
			s.runReminderTickOnce()
		}
	}
}

// counterFlushWorker periodically flushes buffered usage counters from Redis to DB
func (s *Scheduler) counterFlushWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			log.Info("[Scheduler] Counter flush worker stopping")
			return
		case <-s.counterFlushTicker.C:
			if err := counter.FlushAll(); err != nil {
				log.Errorf("[Scheduler] Counter flush error: %v", err)
			}
		}
	}
}

// runAutomationTickOnce claims all due enrollments and dispatches them on a
// bounded worker pool. Overlapping ticks are skipped rather than queued.
func (s *Scheduler) runAutomationTickOnce() {
	if !s.tickInFlight.CompareAndSwap(false, true) {
		log.Debug("[Scheduler] Previous tick still in flight, skipping")
		return
	}
	defer s.tickInFlight.Store(false)

	now := time.Now()
	due, err := s.repo.ListDueEnrollments(now, claimBatchSize)
	if err != nil {
		log.Errorf("[Scheduler] Listing due enrollments failed: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for i := range due {
		enrollmentID := due[i].ID

		claimed, err := s.repo.ClaimEnrollment(enrollmentID, now)
		if err != nil {
			log.Errorf("[Scheduler] Claim of enrollment %d failed: %v", enrollmentID, err)
			continue
		}
		if !claimed {
			// Another instance or a racing cancellation got there first.
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.processEnrollment(enrollmentID)
		}()
	}
	wg.Wait()
}

// processEnrollment executes the current step of a claimed enrollment and
// settles the outcome: advance on success, reschedule with backoff on
// retryable failure, mark failed on fatal failure or retry exhaustion.
func (s *Scheduler) processEnrollment(enrollmentID uint) {
	ctx := context.Background()

	enrollment, err := s.repo.GetEnrollment(enrollmentID)
	if err != nil {
		log.Errorf("[Scheduler] Reloading claimed enrollment %d failed: %v", enrollmentID, err)
		return
	}
	if !enrollment.IsActive() {
		return
	}

	step := enrollment.Sequence.StepAt(enrollment.CurrentStepPosition)
	if step == nil {
		// Step was deleted underneath the enrollment.
		if err := s.enroller.MarkFailed(ctx, enrollmentID, fmt.Sprintf("step %d no longer exists", enrollment.CurrentStepPosition)); err != nil {
			log.Errorf("[Scheduler] %v", err)
		}
		return
	}

	dispatchErr := s.dispatcher.Dispatch(ctx, enrollment, step)
	if dispatchErr == nil {
		if err := s.enroller.Advance(ctx, enrollmentID); err != nil {
			log.Errorf("[Scheduler] Advancing enrollment %d failed: %v", enrollmentID, err)
		}
		return
	}

	if IsFatal(dispatchErr) {
		if err := s.enroller.MarkFailed(ctx, enrollmentID, dispatchErr.Error()); err != nil {
			log.Errorf("[Scheduler] %v", err)
		}
		return
	}

	maxAttempts := 3
	backoffBase := 5 * time.Minute
	if settings := models.GetAppSettings(); settings != nil {
		maxAttempts = settings.GetStepMaxAttempts()
		backoffBase = settings.GetRetryBackoffBase()
	}

	attempts := enrollment.AttemptCount + 1
	if attempts >= maxAttempts {
		reason := fmt.Sprintf("gave up after %d attempts: %v", attempts, dispatchErr)
		if err := s.enroller.MarkFailed(ctx, enrollmentID, reason); err != nil {
			log.Errorf("[Scheduler] %v", err)
		}
		return
	}

	// Exponential backoff: base, 2x base, 4x base, ...
	delay := backoffBase << (attempts - 1)
	retryAt := time.Now().Add(delay)
	if err := s.repo.RescheduleEnrollment(enrollmentID, retryAt, attempts, dispatchErr.Error()); err != nil {
		log.Errorf("[Scheduler] Rescheduling enrollment %d failed: %v", enrollmentID, err)
		return
	}
	log.Warnf("[Scheduler] Enrollment %d attempt %d/%d failed, retrying in %s: %v",
		enrollmentID, attempts, maxAttempts, delay, dispatchErr)
}

// runReminderTickOnce runs the slow housekeeping pass: monthly credit
// resets, the missed-class sweep and requeueing of orphaned claims.
func (s *Scheduler) runReminderTickOnce() {
	ctx := context.Background()
	now := time.Now()

	if count, err := s.ledger.ResetDuePeriods(ctx, now, resetBatchSize); err != nil {
		log.Errorf("[Scheduler] Period reset pass failed: %v", err)
	} else if count > 0 {
		log.Infof("[Scheduler] Reset %d billing period(s)", count)
	}

	s.runMissedClassSweep(ctx, now)

	if requeued, err := s.repo.RequeueStuckClaims(now.Add(-stuckClaimAge)); err != nil {
		log.Errorf("[Scheduler] Requeue of stuck claims failed: %v", err)
	} else if requeued > 0 {
		log.Warnf("[Scheduler] Requeued %d stuck enrollment claim(s)", requeued)
	}
}

// runMissedClassSweep enrolls students who have not checked in for the
// configured number of days into missed_class sequences. Students already
// swept since their last check-in are skipped.
func (s *Scheduler) runMissedClassSweep(ctx context.Context, now time.Time) {
	days := 7
	if settings := models.GetAppSettings(); settings != nil {
		days = settings.GetMissedClassAfterDays()
	}
	cutoff := now.AddDate(0, 0, -days)

	absent, err := s.students.ListAbsentSince(cutoff, sweepBatchSize)
	if err != nil {
		log.Errorf("[Scheduler] Missed-class sweep query failed: %v", err)
		return
	}

	for i := range absent {
		student := &absent[i]
		if s.sweptSinceLastCheckIn(ctx, student, cutoff) {
			continue
		}
		if _, err := s.enroller.Enroll(ctx, student.OrganizationID, models.EntityTypeStudent, student.ID, models.TriggerMissedClass); err != nil {
			log.Errorf("[Scheduler] Missed-class enroll of student %d failed: %v", student.ID, err)
		}
	}
}

// sweptSinceLastCheckIn reports whether the student already got a
// missed_class enrollment for the current absence, so hourly sweeps do not
// re-enroll after the sequence completed.
func (s *Scheduler) sweptSinceLastCheckIn(ctx context.Context, student *models.Student, cutoff time.Time) bool {
	enrollments, err := s.enroller.ListForEntity(ctx, student.OrganizationID, models.EntityTypeStudent, student.ID)
	if err != nil {
		log.Errorf("[Scheduler] Enrollment lookup for student %d failed: %v", student.ID, err)
		// Fail closed: skip rather than risk duplicate outreach.
		return true
	}

	since := cutoff
	if student.LastCheckInAt != nil && student.LastCheckInAt.After(since) {
		since = *student.LastCheckInAt
	}
	for i := range enrollments {
		e := &enrollments[i]
		if e.Sequence.TriggerKey == models.TriggerMissedClass && e.CreatedAt.After(since) {
			return true
		}
	}
	return false
}

// RunAutomationTickOnce exposes a manual trigger for a single automation tick (admin use).
func (s *Scheduler) RunAutomationTickOnce() {
	s.runAutomationTickOnce()
}

// RunReminderTickOnce exposes a manual trigger for a single housekeeping pass (admin use).
func (s *Scheduler) RunReminderTickOnce() {
	s.runReminderTickOnce()
}
