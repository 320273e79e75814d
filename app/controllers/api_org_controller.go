package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/dojopulse/dojopulse/app/models"
	"github.com/dojopulse/dojopulse/app/repository"
	"github.com/dojopulse/dojopulse/internal/pkg/automation"
	"github.com/dojopulse/dojopulse/internal/pkg/entitlements"
)

type registerOrgRequest struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Plan  string `json:"plan"`
}

// HandleRegisterOrganization creates a new tenant and returns its API key.
// The plaintext key is shown exactly once.
func HandleRegisterOrganization(c *fiber.Ctx) error {
	var req registerOrgRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	org := &models.Organization{
		Name:   req.Name,
		Slug:   req.Slug,
		Email:  req.Email,
		Phone:  req.Phone,
		Plan:   string(entitlements.NormalizePlan(req.Plan)),
		Status: models.ORG_STATUS_ACTIVE,
	}
	if err := org.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	apiKey, err := org.GenerateAPIKey()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Key generation failed"})
	}
	if err := repository.GetGlobalFactory().GetOrganizationRepository().Create(org); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Organization could not be created (slug taken?)"})
	}

	// Provision the credit balance up front so the first metered action does
	// not race the lazy creation.
	if _, err := automation.GetScheduler().Ledger().GetBalance(c.Context(), org.ID); err != nil {
		log.Errorf("[API] Balance provisioning for new org %d failed: %v", org.ID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"organization": org,
		"api_key":      apiKey,
	})
}

// HandleGetOrganization returns the authenticated organization's profile,
// plan limits and usage counters.
func HandleGetOrganization(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	plan := entitlements.Plan(org.Plan)
	balance, err := automation.GetScheduler().Ledger().GetBalance(c.Context(), org.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load balance"})
	}

	return c.JSON(fiber.Map{
		"organization": org,
		"credits":      balance,
		"limits": fiber.Map{
			"monthly_credit_allowance": entitlements.MonthlyCreditAllowance(plan),
			"max_active_sequences":     entitlements.MaxActiveSequences(plan),
		},
		"stats": fiber.Map{
			"credits_used":  org.StatCreditsUsed,
			"messages_sent": org.StatMessagesSent,
		},
	})
}

// HandleRotateAPIKey replaces the organization's API key, invalidating the
// old one immediately.
func HandleRotateAPIKey(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	apiKey, err := org.GenerateAPIKey()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Key generation failed"})
	}
	if err := repository.GetGlobalFactory().GetOrganizationRepository().Update(org); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to store new key"})
	}
	return c.JSON(fiber.Map{"api_key": apiKey})
}

// HandleSchedulerStatus reports whether the background scheduler is running.
func HandleSchedulerStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"running": automation.GetScheduler().IsRunning()})
}
