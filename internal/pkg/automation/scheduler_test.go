package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojopulse/dojopulse/app/models"
	"github.com/dojopulse/dojopulse/internal/pkg/messaging"
)

type schedulerFixture struct {
	scheduler *Scheduler
	repo      *fakeAutomationRepository
	students  *fakeStudentRepository
	credits   *fakeCreditRepo
	sms       *fakeSMS
}

func newSchedulerFixture(t *testing.T, balance int64) *schedulerFixture {
	t.Helper()
	repo := newFakeAutomationRepository()
	ledger, creditRepo := newTestLedger(1, balance)
	sms := &fakeSMS{}
	leads := &fakeLeadRepository{leads: map[uint]*models.Lead{
		42: {ID: 42, OrganizationID: 1, FirstName: "Ayla", Phone: "+15550001", Email: "ayla@example.com", Status: models.LEAD_STATUS_NEW},
	}}
	students := &fakeStudentRepository{students: map[uint]*models.Student{}}
	dispatcher := NewDispatcher(ledger, sms, &fakeEmail{}, &fakePhone{}, leads, students)
	enroller := NewEnroller(repo, NewStore(repo))
	return &schedulerFixture{
		scheduler: NewScheduler(repo, students, enroller, dispatcher, ledger),
		repo:      repo,
		students:  students,
		credits:   creditRepo,
		sms:       sms,
	}
}

func (f *schedulerFixture) enrollLead(t *testing.T) uint {
	t.Helper()
	newLeadFollowUpSequence(t, f.repo, 1)
	created, err := f.scheduler.enroller.Enroll(context.Background(), 1, models.EntityTypeLead, 42, models.TriggerNewLead)
	require.NoError(t, err)
	require.Len(t, created, 1)
	return created[0]
}

func TestSchedulerStartStopIdempotent(t *testing.T) {
	f := newSchedulerFixture(t, 150)

	assert.False(t, f.scheduler.IsRunning())

	f.scheduler.Start()
	assert.True(t, f.scheduler.IsRunning())
	// Second start is a no-op, not a second set of workers.
	f.scheduler.Start()
	assert.True(t, f.scheduler.IsRunning())

	f.scheduler.Stop()
	assert.False(t, f.scheduler.IsRunning())
	f.scheduler.Stop()
	assert.False(t, f.scheduler.IsRunning())

	// The scheduler can be restarted after a stop.
	f.scheduler.Start()
	assert.True(t, f.scheduler.IsRunning())
	f.scheduler.Stop()
}

func TestTickDispatchesDueEnrollmentAndAdvances(t *testing.T) {
	f := newSchedulerFixture(t, 150)
	id := f.enrollLead(t)

	f.scheduler.RunAutomationTickOnce()

	e, err := f.repo.GetEnrollment(id)
	require.NoError(t, err)
	assert.Equal(t, 2, e.CurrentStepPosition)
	assert.Equal(t, models.EnrollmentStatusActive, e.Status)
	require.Len(t, f.sms.sent, 1)
	assert.Equal(t, int64(149), f.credits.balance.Balance)
}

func TestTickSkipsEnrollmentsNotYetDue(t *testing.T) {
	f := newSchedulerFixture(t, 150)
	id := f.enrollLead(t)

	future := time.Now().Add(time.Hour)
	f.repo.enrollments[id].NextExecutionAt = &future

	f.scheduler.RunAutomationTickOnce()

	e, _ := f.repo.GetEnrollment(id)
	assert.Equal(t, 1, e.CurrentStepPosition)
	assert.Empty(t, f.sms.sent)
}

func TestRetryableFailureReschedulesWithBackoff(t *testing.T) {
	f := newSchedulerFixture(t, 150)
	id := f.enrollLead(t)
	f.sms.err = &messaging.SendError{Provider: "sms", Retryable: true, Err: errors.New("gateway timeout")}

	before := time.Now()
	f.scheduler.RunAutomationTickOnce()

	e, _ := f.repo.GetEnrollment(id)
	assert.Equal(t, models.EnrollmentStatusActive, e.Status)
	assert.Equal(t, 1, e.AttemptCount)
	assert.NotEmpty(t, e.LastError)
	require.NotNil(t, e.NextExecutionAt)
	// First retry waits the base backoff of five minutes.
	assert.WithinDuration(t, before.Add(5*time.Minute), *e.NextExecutionAt, 10*time.Second)

	// Credits were refunded, no net charge for the failed attempt.
	assert.Equal(t, int64(150), f.credits.balance.Balance)
}

func TestRetryExhaustionMarksEnrollmentFailed(t *testing.T) {
	f := newSchedulerFixture(t, 150)
	id := f.enrollLead(t)
	f.sms.err = &messaging.SendError{Provider: "sms", Retryable: true, Err: errors.New("gateway timeout")}

	// Two attempts already burned; the next failure is the last.
	f.repo.enrollments[id].AttemptCount = 2

	f.scheduler.RunAutomationTickOnce()

	e, _ := f.repo.GetEnrollment(id)
	assert.Equal(t, models.EnrollmentStatusFailed, e.Status)
	assert.Nil(t, e.NextExecutionAt)
	assert.Contains(t, e.LastError, "gave up after 3 attempts")
}

func TestFatalFailureMarksEnrollmentFailedImmediately(t *testing.T) {
	f := newSchedulerFixture(t, 150)
	id := f.enrollLead(t)
	f.sms.err = &messaging.SendError{Provider: "sms", Retryable: false, Err: errors.New("number rejected")}

	f.scheduler.RunAutomationTickOnce()

	e, _ := f.repo.GetEnrollment(id)
	assert.Equal(t, models.EnrollmentStatusFailed, e.Status)
	assert.Equal(t, 0, e.AttemptCount)
}

func TestInsufficientCreditsKeepsEnrollmentRetryable(t *testing.T) {
	f := newSchedulerFixture(t, 0)
	id := f.enrollLead(t)

	f.scheduler.RunAutomationTickOnce()

	// Out of credits never cancels the automation; it waits for a top-up.
	e, _ := f.repo.GetEnrollment(id)
	assert.Equal(t, models.EnrollmentStatusActive, e.Status)
	assert.Equal(t, 1, e.AttemptCount)
}

func TestDeletedStepMarksEnrollmentFailed(t *testing.T) {
	f := newSchedulerFixture(t, 150)
	id := f.enrollLead(t)
	f.repo.enrollments[id].CurrentStepPosition = 99

	f.scheduler.RunAutomationTickOnce()

	e, _ := f.repo.GetEnrollment(id)
	assert.Equal(t, models.EnrollmentStatusFailed, e.Status)
	assert.Contains(t, e.LastError, "no longer exists")
}

func TestRequeueStuckClaims(t *testing.T) {
	f := newSchedulerFixture(t, 150)
	id := f.enrollLead(t)

	claimed, err := f.repo.ClaimEnrollment(id, time.Now())
	require.NoError(t, err)
	require.True(t, claimed)

	// Simulate a crash: the claim is old and no outcome was written.
	f.repo.enrollments[id].UpdatedAt = time.Now().Add(-time.Hour)

	requeued, err := f.repo.RequeueStuckClaims(time.Now().Add(-stuckClaimAge))
	require.NoError(t, err)
	assert.Equal(t, int64(1), requeued)

	e, _ := f.repo.GetEnrollment(id)
	require.NotNil(t, e.NextExecutionAt)
	assert.True(t, e.NextExecutionAt.Before(time.Now().Add(time.Minute)))

	// The requeued enrollment is picked up by the next tick.
	f.scheduler.RunAutomationTickOnce()
	e, _ = f.repo.GetEnrollment(id)
	assert.Equal(t, 2, e.CurrentStepPosition)
}

func TestMissedClassSweepEnrollsAbsentStudentsOnce(t *testing.T) {
	f := newSchedulerFixture(t, 150)

	missed := &models.AutomationSequence{
		OrganizationID: 1,
		Name:           "We Miss You",
		TriggerKey:     models.TriggerMissedClass,
		Active:         true,
		Steps: []models.AutomationStep{
			{Position: 1, ActionType: models.ActionSendSMS, Body: "Come back, {{first_name}}!"},
		},
	}
	require.NoError(t, f.repo.CreateSequence(missed))

	lastSeen := time.Now().AddDate(0, 0, -10)
	f.students.students[7] = &models.Student{
		ID: 7, OrganizationID: 1, FirstName: "Ben", Phone: "+15550002",
		Status: models.STUDENT_STATUS_ACTIVE, LastCheckInAt: &lastSeen,
	}

	f.scheduler.runMissedClassSweep(context.Background(), time.Now())

	enrollments, err := f.repo.ListEnrollmentsForEntity(1, models.EntityTypeStudent, 7)
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, models.EnrollmentStatusActive, enrollments[0].Status)

	// A second sweep within the same absence does not re-enroll, even after
	// the first enrollment completed.
	_, err = f.repo.CompleteEnrollment(enrollments[0].ID)
	require.NoError(t, err)
	f.scheduler.runMissedClassSweep(context.Background(), time.Now())

	enrollments, err = f.repo.ListEnrollmentsForEntity(1, models.EntityTypeStudent, 7)
	require.NoError(t, err)
	assert.Len(t, enrollments, 1)
}
