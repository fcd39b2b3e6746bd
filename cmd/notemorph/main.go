package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/TobiasKell/NoteMorph/app/repository"
	"github.com/TobiasKell/NoteMorph/internal/pkg/cache"
	"github.com/TobiasKell/NoteMorph/internal/pkg/database"
	"github.com/TobiasKell/NoteMorph/internal/pkg/env"
	"github.com/TobiasKell/NoteMorph/internal/pkg/jobqueue"
	"github.com/TobiasKell/NoteMorph/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	// Background jobs: counter flush, statistics refresh, webhook event purge
	jobqueue.GetManager().Start()

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 4194304, // 4 MiB, notes are text
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
