package main

import (
	"context"
	"errors"
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

func main() {
	logger := log.WithModule("orchestrator")

	command := &cli.Command{
		Name:                  "stratum-orchestrator",
		Usage:                 "Run background orchestration: recovery, canary evaluation and checkpoint retention",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Usage:   "Redis URL for the fast checkpoint tier and the evaluation lease",
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

			logger.InfoContext(ctx, "Initializing Stratum orchestrator")

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

			coreMetrics := metrics.New(prometheus.NewRegistry())

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
			evaluator := canary.NewRollbackEvaluator(canaryManager, persistence.Metrics(), redisClient, logger)

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

			resolver := canary.NewResolver(persistence.Assignments(), redisClient, logger)

			worker := NewWorker(
				logger, engine, evaluator, resolver,
				persistence.Checkpoints(), persistence.Assignments(), eventBus)

			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
