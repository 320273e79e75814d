package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
	"github.com/dojopulse/dojopulse/app/repository"
)

// Enroller creates and maintains enrollment state: which entity is at which
// step of which sequence.
type Enroller struct {
	repo  repository.AutomationRepository
	store *Store
}

// NewEnroller creates an enrollment manager.
func NewEnroller(repo repository.AutomationRepository, store *Store) *Enroller {
	return &Enroller{repo: repo, store: store}
}

// Enroll evaluates a trigger event for an entity. For every active sequence
// bound to the trigger, a new enrollment is created unless the entity
// already has an active one for that sequence (idempotent re-trigger).
// Returns the ids of newly created enrollments.
func (e *Enroller) Enroll(ctx context.Context, orgID uint, entityType string, entityID uint, triggerKey string) ([]uint, error) {
	seqs, err := e.store.FindSequencesForTrigger(ctx, orgID, triggerKey)
	if err != nil {
		return nil, err
	}

	var created []uint
	for i := range seqs {
		seq := &seqs[i]

		_, err := e.repo.FindActiveEnrollment(entityType, entityID, seq.ID)
		if err == nil {
			// Already enrolled; re-triggering must not duplicate.
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return created, err
		}

		first := seq.StepAt(firstPosition(seq))
		if first == nil {
			continue
		}

		next := time.Now().Add(first.Delay())
		enrollment := &models.AutomationEnrollment{
			UUID:                uuid.New().String(),
			OrganizationID:      orgID,
			SequenceID:          seq.ID,
			EntityType:          entityType,
			EntityID:            entityID,
			Status:              models.EnrollmentStatusActive,
			CurrentStepPosition: first.Position,
			NextExecutionAt:     &next,
		}
		inserted, err := e.repo.CreateEnrollmentIfAbsent(enrollment)
		if err != nil {
			return created, err
		}
		if !inserted {
			// Another trigger enrolled this entity between the check and the
			// insert; treat it like the pre-check hit.
			continue
		}

		log.Infof("[Automation] Enrolled %s %d into sequence %d (%s) on %s",
			entityType, entityID, seq.ID, seq.Name, triggerKey)
		created = append(created, enrollment.ID)
	}
	return created, nil
}

// Cancel marks every active enrollment of an entity cancelled. Called when
// the entity leaves eligibility: lead converts, student withdraws, opt-out,
// or the entity record is deleted. In-flight dispatches are allowed to
// finish; their advance becomes a no-op against the cancelled status.
func (e *Enroller) Cancel(ctx context.Context, orgID uint, entityType string, entityID uint, reason string) (int64, error) {
	_ = ctx
	count, err := e.repo.CancelActiveEnrollmentsForEntity(orgID, entityType, entityID, reason)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Infof("[Automation] Cancelled %d enrollment(s) for %s %d: %s", count, entityType, entityID, reason)
	}
	return count, nil
}

// CancelForTrigger cancels active enrollments of an entity that belong to
// sequences of one specific trigger. Used when a student checks in again:
// only the missed-class outreach stops, other sequences keep running.
func (e *Enroller) CancelForTrigger(ctx context.Context, orgID uint, entityType string, entityID uint, triggerKey, reason string) (int, error) {
	enrollments, err := e.repo.ListEnrollmentsForEntity(orgID, entityType, entityID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for i := range enrollments {
		enrollment := &enrollments[i]
		if !enrollment.IsActive() || enrollment.Sequence.TriggerKey != triggerKey {
			continue
		}
		applied, err := e.repo.CancelEnrollment(enrollment.ID, reason)
		if err != nil {
			return cancelled, err
		}
		if applied {
			cancelled++
		}
	}
	if cancelled > 0 {
		log.Infof("[Automation] Cancelled %d %s enrollment(s) for %s %d: %s", cancelled, triggerKey, entityType, entityID, reason)
	}
	return cancelled, nil
}

// Advance moves an enrollment past its current step after a successful
// dispatch. The final step completes the enrollment. If the enrollment was
// cancelled while the dispatch was in flight, the advance is a no-op.
func (e *Enroller) Advance(ctx context.Context, enrollmentID uint) error {
	_ = ctx
	enrollment, err := e.repo.GetEnrollment(enrollmentID)
	if err != nil {
		return err
	}
	if !enrollment.IsActive() {
		return nil
	}

	next := enrollment.Sequence.NextStepAfter(enrollment.CurrentStepPosition)
	if next == nil {
		applied, err := e.repo.CompleteEnrollment(enrollmentID)
		if err != nil {
			return err
		}
		if applied {
			log.Infof("[Automation] Enrollment %d completed", enrollmentID)
		}
		return nil
	}

	applied, err := e.repo.AdvanceEnrollment(enrollmentID, next.Position, time.Now().Add(next.Delay()))
	if err != nil {
		return err
	}
	if !applied {
		// Lost a race with a cancellation; nothing to do.
		return nil
	}
	log.Debugf("[Automation] Enrollment %d advanced to step %d", enrollmentID, next.Position)
	return nil
}

// MarkFailed terminates an enrollment after retry exhaustion or a fatal
// dispatch error.
func (e *Enroller) MarkFailed(ctx context.Context, enrollmentID uint, reason string) error {
	_ = ctx
	if err := e.repo.MarkEnrollmentFailed(enrollmentID, reason); err != nil {
		return fmt.Errorf("failed to mark enrollment %d failed: %w", enrollmentID, err)
	}
	log.Warnf("[Automation] Enrollment %d failed: %s", enrollmentID, reason)
	return nil
}

// ListForEntity returns the enrollment history of one entity.
func (e *Enroller) ListForEntity(ctx context.Context, orgID uint, entityType string, entityID uint) ([]models.AutomationEnrollment, error) {
	_ = ctx
	return e.repo.ListEnrollmentsForEntity(orgID, entityType, entityID)
}

func firstPosition(seq *models.AutomationSequence) int {
	first := 0
	for _, step := range seq.Steps {
		if first == 0 || step.Position < first {
			first = step.Position
		}
	}
	return first
}
