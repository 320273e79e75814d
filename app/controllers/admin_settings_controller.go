package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dojopulse/dojopulse/app/models"
	"github.com/dojopulse/dojopulse/app/repository"
)

// HandleGetSettings returns the current scheduler and engine settings.
func HandleGetSettings(c *fiber.Ctx) error {
	settings, err := repository.GetGlobalFactory().GetSettingRepository().Get()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load settings"})
	}
	return c.JSON(settings)
}

// HandleUpdateSettings replaces the engine settings. Ticker intervals take
// effect on the next scheduler restart.
func HandleUpdateSettings(c *fiber.Ctx) error {
	var settings models.AppSettings
	if err := c.BodyParser(&settings); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	if err := repository.GetGlobalFactory().GetSettingRepository().Save(&settings); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	return c.JSON(&settings)
}
