// Package main provides the Stepflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"

	"github.com/stepflow/stepflow/pkg/engine"
	"github.com/stepflow/stepflow/pkg/eventbus"
	"github.com/stepflow/stepflow/pkg/invoker"
	"github.com/stepflow/stepflow/pkg/persistence"
	"github.com/stepflow/stepflow/pkg/services"
	"github.com/stepflow/stepflow/pkg/web"
)

type API struct {
	logger          *slog.Logger
	persistence     persistence.Persistence
	eventBus        eventbus.EventBus
	invoker         invoker.Invoker
	tracer          trace.Tracer
	validate        *validator.Validate
	queueExecutions bool
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	inv invoker.Invoker,
	tracer trace.Tracer,
	queueExecutions bool,
) *API {
	return &API{
		logger:          logger,
		persistence:     persistence,
		eventBus:        eventBus,
		invoker:         inv,
		tracer:          tracer,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		queueExecutions: queueExecutions,
	}
}

func (a *API) App() *fiber.App {
	compositionService := services.NewComposition(a.persistence)
	executionService := services.NewExecution(a.persistence)
	scheduleService := services.NewSchedules(a.persistence)
	schemaService := services.NewSchema(a.persistence)

	eng := engine.NewEngine(a.persistence, a.invoker, a.eventBus, a.tracer, "api", a.logger)

	handlers := web.NewAPIHandlers(
		compositionService,
		executionService,
		scheduleService,
		schemaService,
		eng,
		a.validate,
		a.queueExecutions,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Stepflow API")
	})

	compositions := app.Group("/compositions")
	compositions.Get("/", handlers.GetCompositions)
	compositions.Post("/", handlers.CreateComposition)
	compositions.Get("/:id", handlers.GetComposition)
	compositions.Patch("/:id", handlers.UpdateComposition)
	compositions.Delete("/:id", handlers.DeleteComposition)

	// Step endpoints:
	compositions.Post("/:id/steps", handlers.CreateStep)
	compositions.Patch("/:id/steps/:stepId", handlers.UpdateStep)
	compositions.Delete("/:id/steps/:stepId", handlers.DeleteStep)
	compositions.Put("/:id/steps/order", handlers.ReorderSteps)

	// Schema inference:
	compositions.Get("/:id/schema/input", handlers.GetInputSchema)
	compositions.Get("/:id/schema/output", handlers.GetOutputSchema)

	// Executions and schedules:
	compositions.Post("/:id/executions", handlers.ExecuteComposition)
	compositions.Post("/:id/schedules", handlers.CreateSchedule)
	compositions.Get("/:id/schedules", handlers.GetSchedules)

	executions := app.Group("/executions")
	executions.Get("/", handlers.GetExecutions)
	executions.Get("/:id", handlers.GetExecution)
	executions.Post("/:id/cancel", handlers.CancelExecution)
	executions.Get("/:id/logs", handlers.GetExecutionLogs)
	executions.Get("/:id/steps/:stepId/logs", handlers.GetStepLogs)

	schedules := app.Group("/schedules")
	schedules.Patch("/:id", handlers.UpdateSchedule)
	schedules.Delete("/:id", handlers.DeleteSchedule)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
