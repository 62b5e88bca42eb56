// Package main provides the Stratum control API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stratumflow/stratum/pkg/canary"
	"github.com/stratumflow/stratum/pkg/decision"
	"github.com/stratumflow/stratum/pkg/orchestrator"
	"github.com/stratumflow/stratum/pkg/persistence"
	"github.com/stratumflow/stratum/pkg/registry"
	"github.com/stratumflow/stratum/pkg/trust"
	"github.com/stratumflow/stratum/pkg/web"
)

type API struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	registry     *registry.Registry
	engine       *orchestrator.Engine
	router       *decision.Router
	trust        *trust.Manager
	canary       *canary.Manager
	resolver     *canary.Resolver
	promRegistry *prometheus.Registry
	validate     *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	reg *registry.Registry,
	engine *orchestrator.Engine,
	router *decision.Router,
	trustManager *trust.Manager,
	canaryManager *canary.Manager,
	resolver *canary.Resolver,
	promRegistry *prometheus.Registry,
) *API {
	return &API{
		logger:       logger,
		persistence:  p,
		registry:     reg,
		engine:       engine,
		router:       router,
		trust:        trustManager,
		canary:       canaryManager,
		resolver:     resolver,
		promRegistry: promRegistry,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.engine, a.persistence, a.registry, a.router,
		a.trust, a.canary, a.resolver, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Stratum API")
	})

	d := app.Group("/definitions")
	d.Get("/", handlers.ListDefinitions)
	d.Post("/", handlers.CreateDefinition)
	d.Get("/:id", handlers.GetDefinition)
	d.Delete("/:id", handlers.DeleteDefinition)
	d.Post("/:id/publish", handlers.PublishDefinition)
	d.Post("/:id/instances", handlers.StartInstance)

	i := app.Group("/instances")
	i.Get("/", handlers.ListInstances)
	i.Get("/:id", handlers.GetInstance)
	i.Post("/:id/signal", handlers.SignalInstance)
	i.Post("/:id/resume", handlers.ResumeInstance)
	i.Post("/:id/cancel", handlers.CancelInstance)

	ap := app.Group("/approvals")
	ap.Get("/", handlers.ListPendingApprovals)
	ap.Get("/:id", handlers.GetApproval)
	ap.Post("/:id/decide", handlers.DecideApproval)

	dec := app.Group("/decision")
	dec.Get("/matrix", handlers.GetDecisionMatrix)
	dec.Put("/matrix", handlers.UpsertMatrixEntry)
	dec.Get("/risks", handlers.ListRiskDefinitions)
	dec.Put("/risks", handlers.UpsertRiskDefinition)
	dec.Get("/audit", handlers.ListAuditEntries)

	tr := app.Group("/trust")
	tr.Get("/:entityId", handlers.GetTrustScore)
	tr.Post("/:entityId/evaluate", handlers.EvaluateTrust)
	tr.Get("/:entityId/history", handlers.GetTrustHistory)

	dep := app.Group("/deployments")
	dep.Get("/", handlers.ListDeployments)
	dep.Post("/", handlers.CreateDeployment)
	dep.Get("/:id", handlers.GetDeployment)
	dep.Post("/:id/start", handlers.StartCanary)
	dep.Post("/:id/traffic", handlers.SetTraffic)
	dep.Post("/:id/promote", handlers.PromoteDeployment)
	dep.Post("/:id/rollback", handlers.RollbackDeployment)
	dep.Get("/:id/resolve", handlers.ResolveVersion)
	dep.Post("/:id/samples", handlers.RecordSample)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(
		a.promRegistry, promhttp.HandlerOpts{})))

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
