package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/stepflow/stepflow/pkg/cmd"
	"github.com/stepflow/stepflow/pkg/invoker/js"
	"github.com/stepflow/stepflow/pkg/log"
	"github.com/stepflow/stepflow/pkg/otelhelper"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "stepflow-api",
		Usage:                 "Create and manage function compositions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
				Value:   "gochannel",
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
				Name:    "queue-executions",
				Usage:   "Publish execution requests for workers instead of running in-process",
				Sources: cli.EnvVars("QUEUE_EXECUTIONS"),
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

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing Stepflow API")

			tracer, err := otelhelper.NewTracer(ctx, "stepflow-api")
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
				"stepflow-api",
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
			if path := command.String("functions-path"); path != "" {
				if err := inv.LoadDir(path); err != nil {
					logger.WarnContext(ctx, "Failed to load functions directory",
						"path", path, "error", err)
				}
			}

			api := NewAPI(
				logger,
				persistence,
				eventBus,
				inv,
				tracer,
				command.Bool("queue-executions"),
			)

			return api.Start(int(command.Int("port")))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
