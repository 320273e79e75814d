package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/dojopulse/dojopulse/app/models"
	"github.com/dojopulse/dojopulse/internal/pkg/middleware"
)

var errInvalidID = errors.New("invalid id")

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// currentOrg returns the authenticated organization or writes a 401.
func currentOrg(c *fiber.Ctx) (*models.Organization, error) {
	org := middleware.OrgFromContext(c)
	if org == nil {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}
	return org, nil
}

// pagination reads offset/limit query parameters with sane bounds.
func pagination(c *fiber.Ctx) (offset, limit int) {
	offset, _ = strconv.Atoi(c.Query("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	limit, _ = strconv.Atoi(c.Query("limit", strconv.Itoa(defaultPageSize)))
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit
}

// pathIDFromQuery reads a positive numeric query parameter.
func pathIDFromQuery(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Query(name), 10, 32)
	if err != nil || id == 0 {
		return 0, errInvalidID
	}
	return uint(id), nil
}

// pathID reads a positive numeric path parameter.
func pathID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
