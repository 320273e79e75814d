package automation

import (
	"context"
	"errors"
	"fmt"

	"github.com/dojopulse/dojopulse/app/models"
	"github.com/dojopulse/dojopulse/app/repository"
)

var (
	// ErrSequenceNotActivatable is returned when a sequence without steps
	// (or with non-increasing step positions) is switched active.
	ErrSequenceNotActivatable = errors.New("sequence needs at least one step with increasing positions")
)

// Store is the read-mostly lookup over automation sequence definitions.
type Store struct {
	repo repository.AutomationRepository
}

// NewStore creates a sequence store.
func NewStore(repo repository.AutomationRepository) *Store {
	return &Store{repo: repo}
}

// FindSequencesForTrigger returns the active sequences of an organization
// bound to the given trigger, steps preloaded in position order. Sequences
// that lost their steps since activation are filtered out defensively.
func (s *Store) FindSequencesForTrigger(ctx context.Context, orgID uint, triggerKey string) ([]models.AutomationSequence, error) {
	_ = ctx
	seqs, err := s.repo.FindActiveSequencesForTrigger(orgID, triggerKey)
	if err != nil {
		return nil, err
	}

	result := seqs[:0]
	for _, seq := range seqs {
		if len(seq.Steps) > 0 {
			result = append(result, seq)
		}
	}
	return result, nil
}

// CreateSequence validates and persists a new sequence definition.
// Sequences are created inactive; activation is a separate step.
func (s *Store) CreateSequence(ctx context.Context, seq *models.AutomationSequence) error {
	_ = ctx
	if err := seq.Validate(); err != nil {
		return err
	}
	for i := range seq.Steps {
		if err := seq.Steps[i].Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	seq.Active = false
	return s.repo.CreateSequence(seq)
}

// GetSequence returns one sequence with its steps.
func (s *Store) GetSequence(ctx context.Context, orgID, id uint) (*models.AutomationSequence, error) {
	_ = ctx
	return s.repo.GetSequence(orgID, id)
}

// ListSequences returns all sequences of an organization.
func (s *Store) ListSequences(ctx context.Context, orgID uint) ([]models.AutomationSequence, error) {
	_ = ctx
	return s.repo.ListSequences(orgID)
}

// SetActive enables or disables a sequence. Only well-formed sequences
// (>= 1 step, strictly increasing positions) may be activated.
func (s *Store) SetActive(ctx context.Context, orgID, id uint, active bool) error {
	_ = ctx
	if active {
		seq, err := s.repo.GetSequence(orgID, id)
		if err != nil {
			return err
		}
		if !seq.CanActivate() {
			return ErrSequenceNotActivatable
		}
	}
	return s.repo.SetSequenceActive(orgID, id, active)
}
