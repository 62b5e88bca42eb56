package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/stratumflow/stratum/pkg/canary"
	"github.com/stratumflow/stratum/pkg/checkpoint"
	"github.com/stratumflow/stratum/pkg/cmd"
	"github.com/stratumflow/stratum/pkg/collaborators"
	"github.com/stratumflow/stratum/pkg/compensation"
	"github.com/stratumflow/stratum/pkg/decision"
	"github.com/stratumflow/stratum/pkg/log"
	"github.com/stratumflow/stratum/pkg/metrics"
	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/orchestrator"
	"github.com/stratumflow/stratum/pkg/trust"
)

const defaultPort = 9191

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "stratum-api",
		Usage:                 "Manage workflow definitions, instances, approvals and canary deployments",
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
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the fast checkpoint tier and assignment cache",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "collaborator-url",
				Usage:   "Base URL of the external collaborator service",
				Sources: cli.EnvVars("COLLABORATOR_URL"),
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

			logger.InfoContext(ctx, "Initializing Stratum API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			var redisClient redis.UniversalClient
			if redisURL := command.String("redis-url"); redisURL != "" {
				opts, err := redis.ParseURL(redisURL)
				if err != nil {
					return err
				}

				redisClient = redis.NewClient(opts)
			}

			checkpointConfig := checkpoint.DefaultConfig()
			tiers := []checkpoint.Tier{checkpoint.NewMemoryTier()}

			if redisClient != nil {
				tiers = append(tiers, checkpoint.NewRedisTierWithClient(redisClient, checkpointConfig.FastTTL))
			}

			tiers = append(tiers, checkpoint.NewDurableTier(persistence.Checkpoints()))

			checkpoints, err := checkpoint.NewStore(logger, checkpointConfig, tiers...)
			if err != nil {
				return err
			}

			promRegistry := prometheus.NewRegistry()
			coreMetrics := metrics.New(promRegistry)

			trustManager := trust.NewManager(persistence.Trust(), eventBus, logger)

			matrix := decision.NewMatrixService(persistence.Decisions(), logger)
			if err := matrix.Seed(ctx); err != nil {
				return err
			}

			router := decision.NewRouter(
				persistence.Decisions(),
				decision.NewRiskEvaluator(persistence.Decisions(), models.RiskHigh),
				matrix,
				trustManager,
				eventBus,
				coreMetrics,
				logger,
			)

			canaryManager := canary.NewManager(
				persistence.Deployments(), persistence.Assignments(), persistence.Metrics(),
				eventBus, coreMetrics, logger)
			resolver := canary.NewResolver(persistence.Assignments(), redisClient, logger)

			collab := collaborators.NewHTTP(command.String("collaborator-url"), 0)
			registry := cmd.NewRegistry(logger, cmd.Collaborators{
				DataSource:     collab,
				JudgmentPolicy: collab,
				ScriptRunner:   collab,
				Performer:      collab,
				Analytics:      collab,
				ToolCaller:     collab,
				Registrar:      collab,
				Router:         router,
				Canary:         canaryManager,
			})

			engine := orchestrator.NewEngine(
				persistence.Definitions(),
				persistence.Instances(),
				checkpoints,
				registry,
				compensation.NewCoordinator(eventBus, logger),
				eventBus,
				coreMetrics,
				logger,
				orchestrator.DefaultConfig(),
			)

			api := NewAPI(
				logger, persistence, registry, engine, router,
				trustManager, canaryManager, resolver, promRegistry)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
