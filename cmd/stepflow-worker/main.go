package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/stepflow/stepflow/pkg/cmd"
	"github.com/stepflow/stepflow/pkg/invoker/js"
	"github.com/stepflow/stepflow/pkg/log"
	"github.com/stepflow/stepflow/pkg/otelhelper"
)

func main() {
	command := &cli.Command{
		Name:                  "stepflow-worker",
		Usage:                 "Start workers to execute compositions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "functions-path",
				Usage:   "Path to the directory containing function sources",
				Value:   "./functions",
				Sources: cli.EnvVars("FUNCTIONS_PATH"),
			},
			&cli.BoolFlag{
				Name:    "schedules",
				Usage:   "Run the schedule runner in this worker",
				Value:   true,
				Sources: cli.EnvVars("RUN_SCHEDULES"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("stepflow-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing Stepflow Worker")

			tracer, err := otelhelper.NewTracer(ctx, "stepflow-worker")
			if err != nil {
				return err
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(
				command.String("event-bus"),
				command.String("kafka-brokers"),
				"stepflow-worker",
				logger,
			)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			inv := js.NewInvoker(js.DefaultTimeout, logger)
			if err := inv.LoadDir(command.String("functions-path")); err != nil {
				logger.WarnContext(ctx, "Failed to load functions directory",
					"path", command.String("functions-path"), "error", err)
			}

			worker := NewWorker(
				workerID,
				persistence,
				eventBus,
				inv,
				tracer,
				logger,
				command.Bool("schedules"),
			)

			return worker.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
