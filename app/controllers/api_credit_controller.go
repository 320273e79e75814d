package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/dojopulse/dojopulse/internal/pkg/automation"
	"github.com/dojopulse/dojopulse/internal/pkg/credits"
)

// HandleGetCreditBalance returns the current credit balance snapshot for the
// authenticated organization.
func HandleGetCreditBalance(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	info, err := automation.GetScheduler().Ledger().GetBalance(c.Context(), org.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load balance"})
	}
	return c.JSON(info)
}

// HandleListCreditTransactions returns the organization's ledger entries,
// newest first.
func HandleListCreditTransactions(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	offset, limit := pagination(c)
	txs, err := automation.GetScheduler().Ledger().ListTransactions(c.Context(), org.ID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load transactions"})
	}
	return c.JSON(fiber.Map{
		"offset":       offset,
		"limit":        limit,
		"transactions": txs,
	})
}

type topUpRequest struct {
	Amount int64 `json:"amount"`
}

// HandleCreditTopUp credits a purchased top-up to the organization.
func HandleCreditTopUp(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	var req topUpRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	newBalance, err := automation.GetScheduler().Ledger().PurchaseTopUp(c.Context(), org.ID, req.Amount, nil)
	if err != nil {
		if errors.Is(err, credits.ErrInvalidAmount) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Amount must be positive"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to credit top-up"})
	}
	return c.JSON(fiber.Map{"balance": newBalance})
}
