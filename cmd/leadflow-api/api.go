// Package main provides the Leadflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/registry"
	"github.com/dukex/leadflow/pkg/services"
	"github.com/dukex/leadflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		registry:    registry,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	automationService := services.NewAutomation(a.persistence, a.registry, a.validate)
	leadService := services.NewLead(a.persistence, a.eventBus)

	handlers := web.NewAPIHandlers(automationService, leadService, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Leadflow API")
	})

	handlers.Routes(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	a.logger.Info("Leadflow API listening", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
