package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartexpense/gatewayctl/internal/gateway"
	"github.com/smartexpense/gatewayctl/internal/model"
)

func testDesired() *model.Desired {
	return &model.Desired{
		APIVersion: "gatewayctl/v1",
		Kind:       "ProxyRoute",
		Metadata:   model.Metadata{Name: "expense-tracker-proxy"},
		API: model.APISpec{
			Name:             "expense-tracker",
			Region:           "us-east-1",
			Stage:            "prod",
			StageDescription: "managed by gatewayctl",
		},
		Route: model.Route{Path: "/api/{proxy+}", Verb: model.VerbAny},
		Upstream: model.Upstream{
			Scheme:   "http",
			Host:     "10.0.1.20",
			Port:     8000,
			BasePath: "/api",
		},
		Integration: model.IntegrationSpec{
			Kind:        model.IntegrationHTTP,
			Passthrough: model.PassthroughWhenNoMatch,
			RequestTemplates: map[string]string{
				model.ContentTypeJSON: "$input.json('$')",
				model.ContentTypeForm: "$input.body",
			},
		},
		Responses: []model.ResponseRule{
			{Status: "200", Headers: map[string]string{"Access-Control-Allow-Origin": "'*'"}},
		},
	}
}

func fastOptions() Options {
	return Options{Attempts: 3, Backoff: time.Millisecond, CallTimeout: time.Second}
}

func TestRunFromScratch(t *testing.T) {
	mem := gateway.NewMemory()
	api := mem.CreateAPI("expense-tracker")
	r := New(mem, fastOptions())

	report, err := r.Run(context.Background(), testDesired())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"lookup-api",
		"inspect-route",
		"resolve-route",
		"configure-route",
		"create-deployment",
	}, report.Completed)
	assert.True(t, report.Published)
	assert.NotEmpty(t, report.Deployment.ID)
	assert.Equal(t,
		fmt.Sprintf("https://%s.execute-api.us-east-1.amazonaws.com/prod", api.ID),
		report.InvokeURL)

	// The configured route must answer live traffic end to end.
	var seenURL string
	mem.Upstream = func(req gateway.UpstreamRequest) gateway.UpstreamResponse {
		seenURL = req.URL
		return gateway.UpstreamResponse{Status: 200, Body: "[]"}
	}
	resp, err := mem.Invoke(api.ID, "prod", "GET", "/api/expenses/42", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "http://10.0.1.20:8000/api/expenses/42", seenURL)
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
}

func TestRunTwiceConverges(t *testing.T) {
	mem := gateway.NewMemory()
	api := mem.CreateAPI("expense-tracker")
	r := New(mem, fastOptions())
	ctx := context.Background()

	first, err := r.Run(ctx, testDesired())
	require.NoError(t, err)
	require.True(t, first.Published)

	second, err := r.Run(ctx, testDesired())
	require.NoError(t, err)
	assert.True(t, second.Published)
	assert.Equal(t, first.Completed, second.Completed)

	// No duplicate resources, and the second run switched to updates.
	resources, err := mem.ListResources(ctx, api.ID)
	require.NoError(t, err)
	assert.Len(t, resources, 3)
	assert.Contains(t, mem.Calls, "update-method "+leafID(t, mem, api.ID)+" ANY")

	// Publication is not idempotent: each run appends a deployment.
	deployments := mem.Deployments(api.ID)
	assert.Len(t, deployments, 2)
	assert.NotEqual(t, first.Deployment.ID, second.Deployment.ID)
}

func TestRunRebuildsOnKindChange(t *testing.T) {
	mem := gateway.NewMemory()
	api := mem.CreateAPI("expense-tracker")
	r := New(mem, fastOptions())
	ctx := context.Background()

	_, err := r.Run(ctx, testDesired())
	require.NoError(t, err)
	oldLeaf := leafID(t, mem, api.ID)

	proxied := testDesired()
	proxied.Integration.Kind = model.IntegrationHTTPProxy
	proxied.Integration.RequestTemplates = nil

	report, err := r.Run(ctx, proxied)
	require.NoError(t, err)
	assert.Contains(t, report.Completed, "teardown-route")

	// The leaf was replaced wholesale, nothing from the old stack survives.
	newLeaf := leafID(t, mem, api.ID)
	assert.NotEqual(t, oldLeaf, newLeaf)
	in, err := mem.GetIntegration(ctx, api.ID, newLeaf, model.VerbAny)
	require.NoError(t, err)
	assert.Equal(t, model.IntegrationHTTPProxy, in.Kind)

	resources, err := mem.ListResources(ctx, api.ID)
	require.NoError(t, err)
	assert.Len(t, resources, 3, "rebuild must not leave orphan resources")
}

func TestRunRetriesTransientFailures(t *testing.T) {
	mem := gateway.NewMemory()
	mem.CreateAPI("expense-tracker")
	mem.FailNext("create-resource",
		fmt.Errorf("throttled: %w", gateway.ErrTransient),
		fmt.Errorf("throttled: %w", gateway.ErrTransient))
	r := New(mem, fastOptions())

	report, err := r.Run(context.Background(), testDesired())
	require.NoError(t, err, "bounded retry should absorb two transient failures")
	assert.True(t, report.Published)
}

func TestRunGivesUpAfterBoundedRetries(t *testing.T) {
	mem := gateway.NewMemory()
	mem.CreateAPI("expense-tracker")
	mem.FailNext("create-resource",
		fmt.Errorf("throttled: %w", gateway.ErrTransient),
		fmt.Errorf("throttled: %w", gateway.ErrTransient),
		fmt.Errorf("throttled: %w", gateway.ErrTransient))
	r := New(mem, fastOptions())

	report, err := r.Run(context.Background(), testDesired())
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrTransient)
	assert.Equal(t, "resolve-route", report.FailedStep)
	assert.False(t, report.Published)
}

func TestRunHaltsAtFirstFatalStep(t *testing.T) {
	mem := gateway.NewMemory()
	mem.CreateAPI("expense-tracker")
	mem.FailNext("put-method", fmt.Errorf("no apigateway:PutMethod: %w", gateway.ErrPermissionDenied))
	r := New(mem, fastOptions())

	report, err := r.Run(context.Background(), testDesired())
	require.Error(t, err)

	var stepErr *gateway.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "ensure-method", stepErr.Step)
	assert.Equal(t, "ensure-method", report.FailedStep)
	assert.False(t, report.Published, "a halted run must not publish a partial configuration")
	assert.NotContains(t, report.Completed, "create-deployment")

	// The stage stays cold until a later run succeeds.
	api, err := mem.LookupAPI(context.Background(), "expense-tracker")
	require.NoError(t, err)
	assert.Empty(t, mem.Deployments(api.ID))
}

func TestRunRejectsInvalidDocumentBeforeAnyCall(t *testing.T) {
	mem := gateway.NewMemory()
	mem.CreateAPI("expense-tracker")
	mem.Calls = nil
	r := New(mem, fastOptions())

	bad := testDesired()
	bad.Route.Path = "/api/{proxy}" // not greedy

	_, err := r.Run(context.Background(), bad)
	require.Error(t, err)
	assert.Empty(t, mem.Calls, "validation failures must not touch the control plane")
}

func TestRunFailsWhenAPIMissing(t *testing.T) {
	mem := gateway.NewMemory()
	r := New(mem, fastOptions())

	report, err := r.Run(context.Background(), testDesired())
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrNotFound)
	assert.Equal(t, "lookup-api", report.FailedStep)
}

func TestPlanFromScratch(t *testing.T) {
	mem := gateway.NewMemory()
	mem.CreateAPI("expense-tracker")
	r := New(mem, fastOptions())

	plan, err := r.Plan(context.Background(), testDesired())
	require.NoError(t, err)

	names := make([]string, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"lookup-api",
		"create-resource-api",
		"create-resource-proxy",
		"ensure-method",
		"ensure-integration",
		"ensure-method-response-200",
		"ensure-integration-response-200",
		"create-deployment",
	}, names)
	assert.Equal(t, "prod", plan.Stage)
	assert.Equal(t, "expense-tracker", plan.API)
}

func TestPlanIsReadOnly(t *testing.T) {
	mem := gateway.NewMemory()
	api := mem.CreateAPI("expense-tracker")
	r := New(mem, fastOptions())
	ctx := context.Background()

	_, err := r.Plan(ctx, testDesired())
	require.NoError(t, err)

	resources, err := mem.ListResources(ctx, api.ID)
	require.NoError(t, err)
	assert.Len(t, resources, 1, "planning must not create resources")
	assert.Empty(t, mem.Deployments(api.ID))
}

func TestPlanDetectsKindMigration(t *testing.T) {
	mem := gateway.NewMemory()
	mem.CreateAPI("expense-tracker")
	r := New(mem, fastOptions())
	ctx := context.Background()

	_, err := r.Run(ctx, testDesired())
	require.NoError(t, err)

	proxied := testDesired()
	proxied.Integration.Kind = model.IntegrationHTTPProxy
	proxied.Integration.RequestTemplates = nil

	plan, err := r.Plan(ctx, proxied)
	require.NoError(t, err)

	require.Greater(t, len(plan.Steps), 2)
	assert.Equal(t, "teardown-route", plan.Steps[1].Name)
	assert.Equal(t, "/api/{proxy+}", plan.Steps[1].Target)
	assert.Contains(t, plan.Steps[1].Detail, "HTTP -> HTTP_PROXY")
	assert.Equal(t, "create-resource-proxy", plan.Steps[2].Name)
}

// leafID finds the {proxy+} resource of the configured route
func leafID(t *testing.T, mem *gateway.Memory, apiID string) string {
	t.Helper()
	resources, err := mem.ListResources(context.Background(), apiID)
	require.NoError(t, err)
	for _, r := range resources {
		if r.PathPart == "{proxy+}" {
			return r.ID
		}
	}
	t.Fatal("route leaf not found")
	return ""
}
