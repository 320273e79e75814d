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

type createStudentRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	BeltRank  string `json:"belt_rank"`
}

// HandleCreateStudent enrolls a new student record.
func HandleCreateStudent(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	var req createStudentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	student := &models.Student{
		OrganizationID: org.ID,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Phone:          req.Phone,
		BeltRank:       req.BeltRank,
		Status:         models.STUDENT_STATUS_ACTIVE,
	}
	if err := student.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := repository.GetGlobalFactory().GetStudentRepository().Create(student); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create student"})
	}
	return c.Status(fiber.StatusCreated).JSON(student)
}

// HandleListStudents returns the organization's students.
func HandleListStudents(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}

	offset, limit := pagination(c)
	repo := repository.GetGlobalFactory().GetStudentRepository()
	students, err := repo.List(org.ID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load students"})
	}
	total, err := repo.Count(org.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count students"})
	}
	return c.JSON(fiber.Map{"offset": offset, "limit": limit, "total": total, "students": students})
}

// HandleStudentWithdraw marks a student withdrawn and stops all automations
// targeting them.
func HandleStudentWithdraw(c *fiber.Ctx) error {
	org, err := currentOrg(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid student id"})
	}

	repo := repository.GetGlobalFactory().GetStudentRepository()
	student, err := repo.GetByID(org.ID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Student not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load student"})
	}

	student.Status = models.STUDENT_STATUS_WITHDRAWN
	if err := repo.Update(student); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update student"})
	}

	if _, err := automation.GetScheduler().Enroller().Cancel(c.Context(), org.ID, models.EntityTypeStudent, student.ID, "student withdrawn"); err != nil {
		log.Errorf("[API] Cancelling enrollments for withdrawn student %d failed: %v", student.ID, err)
	}
	return c.JSON(student)
}
