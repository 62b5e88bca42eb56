package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumflow/stratum/pkg/canary"
	"github.com/stratumflow/stratum/pkg/compensation"
	"github.com/stratumflow/stratum/pkg/decision"
	"github.com/stratumflow/stratum/pkg/models"
	"github.com/stratumflow/stratum/pkg/nodes/action"
	"github.com/stratumflow/stratum/pkg/nodes/data"
	"github.com/stratumflow/stratum/pkg/nodes/wait"
	"github.com/stratumflow/stratum/pkg/orchestrator"
	"github.com/stratumflow/stratum/pkg/persistence/file"
	"github.com/stratumflow/stratum/pkg/protocol"
	"github.com/stratumflow/stratum/pkg/registry"
	"github.com/stratumflow/stratum/pkg/trust"
	"github.com/stratumflow/stratum/pkg/web"
)

type fakeDataSource struct{}

func (fakeDataSource) Query(ctx context.Context, source string, query map[string]any) (map[string]any, error) {
	return map[string]any{"rows": []any{}}, nil
}

type fakePerformer struct{}

func (fakePerformer) Perform(ctx context.Context, actionType string, params map[string]any) (*protocol.ActionResult, error) {
	return &protocol.ActionResult{Status: "ok"}, nil
}

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.Default()
	p := file.NewPersistence(t.TempDir())
	validate := validator.New(validator.WithRequiredStructEnabled())

	reg := registry.NewRegistry(logger)
	reg.Register(data.NewDataNodeFactory(fakeDataSource{}))
	reg.Register(action.NewActionNodeFactory(fakePerformer{}))
	reg.Register(wait.NewWaitNodeFactory())

	trustManager := trust.NewManager(p.Trust(), nil, logger)
	matrix := decision.NewMatrixService(p.Decisions(), logger)
	require.NoError(t, matrix.Seed(context.Background()))

	router := decision.NewRouter(
		p.Decisions(),
		decision.NewRiskEvaluator(p.Decisions(), models.RiskHigh),
		matrix,
		trustManager,
		nil,
		nil,
		logger,
	)

	canaryManager := canary.NewManager(p.Deployments(), p.Assignments(), p.Metrics(), nil, nil, logger)
	resolver := canary.NewResolver(p.Assignments(), nil, logger)

	engine := orchestrator.NewEngine(
		p.Definitions(), p.Instances(), nil, reg,
		compensation.NewCoordinator(nil, logger),
		nil, nil, logger, orchestrator.DefaultConfig(),
	)

	handlers := web.NewAPIHandlers(engine, p, reg, router, trustManager, canaryManager, resolver, validate, logger)

	app := fiber.New()

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

	a := app.Group("/approvals")
	a.Get("/", handlers.ListPendingApprovals)
	a.Get("/:id", handlers.GetApproval)
	a.Post("/:id/decide", handlers.DecideApproval)

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

	app.Get("/health", handlers.HealthCheck)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func definitionRequest() web.CreateDefinitionRequest {
	return web.CreateDefinitionRequest{
		ID:   "report-flow",
		Name: "report flow",
		Nodes: []*models.DefinitionNode{
			{ID: "fetch", Type: models.NodeTypeData, Name: "fetch", Config: map[string]any{"source": "orders"}, Enabled: true},
			{ID: "send", Type: models.NodeTypeAction, Name: "send", Config: map[string]any{"action_type": "send_report"}, Enabled: true},
		},
		Edges: []*models.Edge{
			{ID: "e1", From: "fetch", To: "send"},
		},
	}
}

func TestDefinitionLifecycle(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/definitions/", definitionRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var def models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(body, &def))
	assert.Equal(t, models.DefinitionStatusDraft, def.Status)
	assert.Equal(t, 1, def.Version)

	resp, body = doJSON(t, app, http.MethodPost, "/definitions/report-flow/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &def))
	assert.Equal(t, models.DefinitionStatusPublished, def.Status)
	assert.NotNil(t, def.PublishedAt)

	// Publishing twice conflicts.
	resp, _ = doJSON(t, app, http.MethodPost, "/definitions/report-flow/publish", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/definitions/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateDefinitionValidation(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	req := definitionRequest()
	req.Nodes = nil

	resp, _ := doJSON(t, app, http.MethodPost, "/definitions/", req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartInstanceRunsToCompletion(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/definitions/", definitionRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = doJSON(t, app, http.MethodPost, "/definitions/report-flow/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/definitions/report-flow/instances", web.StartInstanceRequest{
		TriggerData: map[string]any{"kind": "manual"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var instance models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &instance))
	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)
	assert.Equal(t, []string{"fetch", "send"}, instance.CompletedNodes)

	resp, body = doJSON(t, app, http.MethodGet, "/instances/"+instance.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &instance))
	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)
}

func TestSignalUnsuspendedInstanceConflicts(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/definitions/", definitionRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/definitions/report-flow/instances", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var instance models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &instance))

	resp, _ = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/signal", web.SignalRequest{
		NodeID: "fetch",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDeploymentLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/deployments/", web.CreateDeploymentRequest{
		TargetType:      "workflow",
		TargetID:        "report-flow",
		OldVersion:      "v1",
		NewVersion:      "v2",
		TrafficFraction: 0.2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var deployment models.CanaryDeployment
	require.NoError(t, json.Unmarshal(body, &deployment))
	assert.Equal(t, models.DeploymentStatusDraft, deployment.Status)
	assert.True(t, deployment.AutoRollback)

	// Promote before the canary starts conflicts.
	resp, _ = doJSON(t, app, http.MethodPost, "/deployments/"+deployment.ID+"/promote", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/deployments/"+deployment.ID+"/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	fraction := 0.5
	resp, _ = doJSON(t, app, http.MethodPost, "/deployments/"+deployment.ID+"/traffic", web.SetTrafficRequest{
		Fraction: &fraction,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodGet,
		"/deployments/"+deployment.ID+"/resolve?user_id=user-9", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var assignment models.CanaryAssignment
	require.NoError(t, json.Unmarshal(body, &assignment))
	assert.Equal(t, models.UnitUser, assignment.UnitKind)
	assert.Contains(t, []string{"v1", "v2"}, assignment.AssignedVersion)

	resp, _ = doJSON(t, app, http.MethodPost, "/deployments/"+deployment.ID+"/rollback",
		web.RollbackDeploymentRequest{Reason: "manual abort"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodGet, "/deployments/"+deployment.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &deployment))
	assert.Equal(t, models.DeploymentStatusRolledBack, deployment.Status)
}

func TestResolveVersionRequiresUnit(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/deployments/", web.CreateDeploymentRequest{
		TargetType: "workflow",
		TargetID:   "report-flow",
		OldVersion: "v1",
		NewVersion: "v2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var deployment models.CanaryDeployment
	require.NoError(t, json.Unmarshal(body, &deployment))

	resp, _ = doJSON(t, app, http.MethodPost, "/deployments/"+deployment.ID+"/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/deployments/"+deployment.ID+"/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDecisionMatrixEndpoints(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/decision/matrix", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Entries []*models.DecisionMatrixEntry `json:"entries"`
		Count   int                           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	assert.Equal(t, 16, listing.Count)

	level := 2
	resp, _ = doJSON(t, app, http.MethodPut, "/decision/matrix", web.UpsertMatrixEntryRequest{
		TrustLevel: &level,
		RiskLevel:  "medium",
		Decision:   "auto",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPut, "/decision/matrix", web.UpsertMatrixEntryRequest{
		TrustLevel: &level,
		RiskLevel:  "medium",
		Decision:   "maybe",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTrustEndpoints(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/trust/report-flow", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/trust/report-flow/evaluate", web.EvaluateTrustRequest{
		SuccessRate:      0.99,
		Feedback:         0.9,
		AgeDays:          120,
		ExecutionsPerDay: 20,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var score models.TrustScore
	require.NoError(t, json.Unmarshal(body, &score))
	assert.Equal(t, "report-flow", score.EntityID)

	resp, _ = doJSON(t, app, http.MethodGet, "/trust/report-flow", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}
