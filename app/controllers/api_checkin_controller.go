package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
	"github.com/dojopulse/dojopulse/app/repository"
	"github.com/dojopulse/dojopulse/internal/pkg/automation"
)

type checkInRequest struct {
	StudentID uint   `json:"student_id"`
	ClassName string `json:"class_name"`
	Source    string `json:"source"`
}

// HandleKioskCheckIn records an attendance check-in: it stamps the student's
// last check-in, stops any running missed-class outreach and fires the
// class_attended trigger.
func HandleKioskCheckIn(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	var req checkInRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if req.Source == "" {
		req.Source = models.CheckInSourceKiosk
	}

	repos := repository.GetGlobalRepositories()
	student, err := repos.Student.GetByID(org.ID, req.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Student not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load student"})
	}

	now := time.Now()
	checkIn := &models.CheckIn{
		OrganizationID: org.ID,
		StudentID:      student.ID,
		ClassName:      req.ClassName,
		Source:         req.Source,
		CheckedInAt:    now,
	}
	if err := repos.CheckIn.Create(checkIn); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to record check-in"})
	}
	if err := repos.Student.UpdateLastCheckIn(student.ID, now); err != nil {
		log.Errorf("[API] Updating last check-in for student %d failed: %v", student.ID, err)
	}

	enroller := automation.GetScheduler().Enroller()
	if _, err := enroller.CancelForTrigger(c.Context(), org.ID, models.EntityTypeStudent, student.ID,
		models.TriggerMissedClass, "student checked in"); err != nil {
		log.Errorf("[API] Cancelling missed-class enrollments for student %d failed: %v", student.ID, err)
	}
	if _, err := enroller.Enroll(c.Context(), org.ID, models.EntityTypeStudent, student.ID, models.TriggerClassAttended); err != nil {
		log.Errorf("[API] class_attended enrollment for student %d failed: %v", student.ID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(checkIn)
}

// HandleListCheckIns returns the recent check-ins of one student.
func HandleListCheckIns(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}
	studentID, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid student id"})
	}

	_, limit := pagination(c)
	checkIns, err := repository.GetGlobalFactory().GetCheckInRepository().ListByStudent(org.ID, studentID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load check-ins"})
	}
	return c.JSON(fiber.Map{"check_ins": checkIns})
}
