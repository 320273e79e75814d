package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
	"github.com/dojopulse/dojopulse/app/repository"
	"github.com/dojopulse/dojopulse/internal/pkg/automation"
	"github.com/dojopulse/dojopulse/internal/pkg/entitlements"
)

func sequenceStore() *automation.Store {
	return automation.NewStore(repository.GetGlobalFactory().GetAutomationRepository())
}

// HandleListSequences returns all automation sequences of the organization.
func HandleListSequences(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	seqs, err := sequenceStore().ListSequences(c.Context(), org.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load sequences"})
	}
	return c.JSON(fiber.Map{"sequences": seqs})
}

// HandleGetSequence returns one sequence with its steps.
func HandleGetSequence(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid sequence id"})
	}

	seq, err := sequenceStore().GetSequence(c.Context(), org.ID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Sequence not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load sequence"})
	}
	return c.JSON(seq)
}

type createSequenceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	TriggerKey  string `json:"trigger_key"`
	Steps       []struct {
		Position             int    `json:"position"`
		ActionType           string `json:"action_type"`
		DelayMinutes         int    `json:"delay_minutes"`
		Subject              string `json:"subject"`
		Body                 string `json:"body"`
		EstimatedCallSeconds int    `json:"estimated_call_seconds"`
	} `json:"steps"`
}

// HandleCreateSequence creates a new (inactive) automation sequence.
func HandleCreateSequence(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	var req createSequenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	seq := &models.AutomationSequence{
		OrganizationID: org.ID,
		Name:           req.Name,
		Description:    req.Description,
		TriggerKey:     req.TriggerKey,
	}
	for _, s := range req.Steps {
		seq.Steps = append(seq.Steps, models.AutomationStep{
			Position:             s.Position,
			ActionType:           s.ActionType,
			DelayMinutes:         s.DelayMinutes,
			Subject:              s.Subject,
			Body:                 s.Body,
			EstimatedCallSeconds: s.EstimatedCallSeconds,
		})
	}

	if err := sequenceStore().CreateSequence(c.Context(), seq); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(seq)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// HandleSetSequenceActive activates or deactivates a sequence, enforcing the
// plan limit on active sequences.
func HandleSetSequenceActive(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid sequence id"})
	}

	var req setActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	store := sequenceStore()
	if req.Active {
		limit := entitlements.MaxActiveSequences(entitlements.Plan(org.Plan))
		if limit > 0 {
			seqs, err := store.ListSequences(c.Context(), org.ID)
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load sequences"})
			}
			active := 0
			for i := range seqs {
				if seqs[i].Active && seqs[i].ID != id {
					active++
				}
			}
			if active >= limit {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "plan_limit", "message": "Active sequence limit reached for plan"})
			}
		}
	}

	if err := store.SetActive(c.Context(), org.ID, id, req.Active); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Sequence not found"})
		case errors.Is(err, automation.ErrSequenceNotActivatable):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update sequence"})
		}
	}
	return c.JSON(fiber.Map{"id": id, "active": req.Active})
}

type enrollRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   uint   `json:"entity_id"`
	TriggerKey string `json:"trigger_key"`
}

// HandleEnrollEntity fires a trigger for an entity, typically the manual
// trigger from the dashboard.
func HandleEnrollEntity(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	var req enrollRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if req.EntityType != models.EntityTypeLead && req.EntityType != models.EntityTypeStudent {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "entity_type must be lead or student"})
	}
	if req.TriggerKey == "" {
		req.TriggerKey = models.TriggerManual
	}

	created, err := automation.GetScheduler().Enroller().Enroll(c.Context(), org.ID, req.EntityType, req.EntityID, req.TriggerKey)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Enrollment failed"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"enrollment_ids": created})
}

// HandleListEnrollments returns the enrollment history of one entity.
func HandleListEnrollments(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	entityType := c.Query("entity_type")
	entityID, parseErr := pathIDFromQuery(c, "entity_id")
	if parseErr != nil || (entityType != models.EntityTypeLead && entityType != models.EntityTypeStudent) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "entity_type and entity_id are required"})
	}

	enrollments, err := automation.GetScheduler().Enroller().ListForEntity(c.Context(), org.ID, entityType, entityID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load enrollments"})
	}
	return c.JSON(fiber.Map{"enrollments": enrollments})
}

type cancelEnrollmentsRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   uint   `json:"entity_id"`
	Reason     string `json:"reason"`
}

// HandleCancelEnrollments cancels all active enrollments of one entity.
func HandleCancelEnrollments(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	var req cancelEnrollmentsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if req.Reason == "" {
		req.Reason = "cancelled via API"
	}

	count, err := automation.GetScheduler().Enroller().Cancel(c.Context(), org.ID, req.EntityType, req.EntityID, req.Reason)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Cancellation failed"})
	}
	return c.JSON(fiber.Map{"cancelled": count})
}
