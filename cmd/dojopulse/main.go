package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/dojopulse/dojopulse/app/models"
	"github.com/dojopulse/dojopulse/app/repository"
	"github.com/dojopulse/dojopulse/internal/pkg/automation"
	"github.com/dojopulse/dojopulse/internal/pkg/cache"
	"github.com/dojopulse/dojopulse/internal/pkg/database"
	"github.com/dojopulse/dojopulse/internal/pkg/env"
	"github.com/dojopulse/dojopulse/internal/pkg/router"
)

func main() {
	app := NewApplication()

	// Stop the scheduler cleanly on SIGINT/SIGTERM so in-flight dispatches
	// settle before the process exits.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		automation.GetScheduler().Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	if err := models.LoadSettings(database.GetDB()); err != nil {
		log.Printf("Failed to load settings, using defaults: %v", err)
	}

	repository.InitializeFactory(database.GetDB())

	// Background engine: claim/dispatch loop, period resets, sweeps.
	automation.GetScheduler().Start()

	app := fiber.New(fiber.Config{
		AppName: "DojoPulse",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "admin"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
