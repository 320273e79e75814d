package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/dojopulse/dojopulse/app/controllers"
	"github.com/dojopulse/dojopulse/internal/pkg/env"
	"github.com/dojopulse/dojopulse/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "DojoPulse API",
		})
	})

	v1 := api.Group("/v1")

	// Public endpoints.
	v1.Post("/organizations", controllers.HandleRegisterOrganization)

	// Tenant endpoints, authenticated by organization API key.
	authed := v1.Group("/", middleware.APIKeyAuthMiddleware())

	authed.Get("/organization", controllers.HandleGetOrganization)
	authed.Post("/organization/api-key/rotate", controllers.HandleRotateAPIKey)

	authed.Get("/credits/balance", controllers.HandleGetCreditBalance)
	authed.Get("/credits/transactions", controllers.HandleListCreditTransactions)
	authed.Post("/credits/topup", controllers.HandleCreditTopUp)

	authed.Get("/sequences", controllers.HandleListSequences)
	authed.Post("/sequences", controllers.HandleCreateSequence)
	authed.Get("/sequences/:id", controllers.HandleGetSequence)
	authed.Patch("/sequences/:id/active", controllers.HandleSetSequenceActive)

	authed.Post("/enrollments", controllers.HandleEnrollEntity)
	authed.Get("/enrollments", controllers.HandleListEnrollments)
	authed.Post("/enrollments/cancel", controllers.HandleCancelEnrollments)

	authed.Post("/leads", controllers.HandleCreateLead)
	authed.Get("/leads", controllers.HandleListLeads)
	authed.Post("/leads/:id/trial", controllers.HandleStartTrial)
	authed.Post("/leads/:id/convert", controllers.HandleConvertLead)
	authed.Post("/leads/:id/opt-out", controllers.HandleLeadOptOut)

	authed.Post("/users", controllers.HandleCreateStaffUser)
	authed.Get("/users", controllers.HandleListStaffUsers)
	authed.Post("/users/:id/password", controllers.HandleChangeStaffPassword)

	authed.Post("/students", controllers.HandleCreateStudent)
	authed.Get("/students", controllers.HandleListStudents)
	authed.Post("/students/:id/withdraw", controllers.HandleStudentWithdraw)
	authed.Get("/students/:id/check-ins", controllers.HandleListCheckIns)
	authed.Post("/check-ins", controllers.HandleKioskCheckIn)

	// Operational endpoints behind basic auth.
	admin := v1.Group("/admin", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "admin"),
		},
	}))
	admin.Get("/scheduler", controllers.HandleSchedulerStatus)
	admin.Get("/settings", controllers.HandleGetSettings)
	admin.Put("/settings", controllers.HandleUpdateSettings)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
