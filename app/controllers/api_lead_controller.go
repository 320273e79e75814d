package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
	"github.com/dojopulse/dojopulse/app/repository"
	"github.com/dojopulse/dojopulse/internal/pkg/automation"
)

type createLeadRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Source    string `json:"source"`
	Notes     string `json:"notes"`
}

// HandleCreateLead captures a new lead and fires the new_lead trigger.
func HandleCreateLead(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	var req createLeadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	lead := &models.Lead{
		OrganizationID: org.ID,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Phone:          req.Phone,
		Source:         req.Source,
		Notes:          req.Notes,
		Status:         models.LEAD_STATUS_NEW,
	}
	if err := lead.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	if err := repository.GetGlobalFactory().GetLeadRepository().Create(lead); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create lead"})
	}

	// Enrollment failure must not fail lead capture.
	if _, err := automation.GetScheduler().Enroller().Enroll(c.Context(), org.ID, models.EntityTypeLead, lead.ID, models.TriggerNewLead); err != nil {
		log.Errorf("[API] new_lead enrollment for lead %d failed: %v", lead.ID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(lead)
}

// HandleListLeads returns the organization's leads.
func HandleListLeads(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	offset, limit := pagination(c)
	repo := repository.GetGlobalFactory().GetLeadRepository()
	leads, err := repo.List(org.ID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load leads"})
	}
	total, err := repo.Count(org.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count leads"})
	}
	return c.JSON(fiber.Map{"offset": offset, "limit": limit, "total": total, "leads": leads})
}

// HandleConvertLead marks a lead converted, stops its nurture sequences and
// fires the lead_converted trigger.
func HandleConvertLead(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid lead id"})
	}

	repo := repository.GetGlobalFactory().GetLeadRepository()
	lead, err := repo.GetByID(org.ID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Lead not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load lead"})
	}

	lead.Status = models.LEAD_STATUS_CONVERTED
	if err := repo.Update(lead); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update lead"})
	}

	enroller := automation.GetScheduler().Enroller()
	if _, err := enroller.Cancel(c.Context(), org.ID, models.EntityTypeLead, lead.ID, "lead converted"); err != nil {
		log.Errorf("[API] Cancelling enrollments for converted lead %d failed: %v", lead.ID, err)
	}
	if _, err := enroller.Enroll(c.Context(), org.ID, models.EntityTypeLead, lead.ID, models.TriggerLeadConverted); err != nil {
		log.Errorf("[API] lead_converted enrollment for lead %d failed: %v", lead.ID, err)
	}

	return c.JSON(lead)
}

// HandleStartTrial moves a lead into trial status and fires trial_started.
func HandleStartTrial(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid lead id"})
	}

	repo := repository.GetGlobalFactory().GetLeadRepository()
	lead, err := repo.GetByID(org.ID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Lead not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load lead"})
	}

	lead.Status = models.LEAD_STATUS_TRIAL
	if err := repo.Update(lead); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update lead"})
	}

	if _, err := automation.GetScheduler().Enroller().Enroll(c.Context(), org.ID, models.EntityTypeLead, lead.ID, models.TriggerTrialStarted); err != nil {
		log.Errorf("[API] trial_started enrollment for lead %d failed: %v", lead.ID, err)
	}
	return c.JSON(lead)
}

// HandleLeadOptOut records an opt-out and stops all automations for the lead.
func HandleLeadOptOut(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid lead id"})
	}

	repo := repository.GetGlobalFactory().GetLeadRepository()
	lead, err := repo.GetByID(org.ID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Lead not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load lead"})
	}

	lead.OptedOut = true
	if err := repo.Update(lead); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update lead"})
	}

	if _, err := automation.GetScheduler().Enroller().Cancel(c.Context(), org.ID, models.EntityTypeLead, lead.ID, "opted out"); err != nil {
		log.Errorf("[API] Cancelling enrollments for opted-out lead %d failed: %v", lead.ID, err)
	}
	return c.JSON(lead)
}
