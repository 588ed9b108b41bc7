package gateway

import (
	"context"

	"github.com/smartexpense/gatewayctl/internal/model"
)

// Client is the narrow boundary to the gateway control plane. The reconciler
// only ever talks to the control plane through this interface, so its logic
// runs unchanged against the AWS implementation and the in-memory fake.
//
// Put* calls fail with ErrAlreadyExists when the object is present; Update*
// calls fail with ErrNotFound when it is not. Mutations never take effect for
// live traffic until CreateDeployment is called.
type Client interface {
	// LookupAPI resolves an API name to its record. First match wins;
	// two APIs sharing the name is ErrConflict.
	LookupAPI(ctx context.Context, name string) (model.RestAPI, error)

	// ListResources returns every resource node of the API, root included.
	ListResources(ctx context.Context, apiID string) ([]model.Resource, error)
	CreateResource(ctx context.Context, apiID, parentID, pathPart string) (model.Resource, error)
	// DeleteResource removes a resource and cascades to its subtree,
	// methods, integrations and responses.
	DeleteResource(ctx context.Context, apiID, resourceID string) error

	PutMethod(ctx context.Context, apiID, resourceID string, m model.Method) error
	UpdateMethod(ctx context.Context, apiID, resourceID string, m model.Method) error

	GetIntegration(ctx context.Context, apiID, resourceID, verb string) (model.Integration, error)
	PutIntegration(ctx context.Context, apiID, resourceID, verb string, in model.Integration) error
	UpdateIntegration(ctx context.Context, apiID, resourceID, verb string, in model.Integration) error

	PutMethodResponse(ctx context.Context, apiID, resourceID, verb string, r model.MethodResponse) error
	UpdateMethodResponse(ctx context.Context, apiID, resourceID, verb string, r model.MethodResponse) error

	PutIntegrationResponse(ctx context.Context, apiID, resourceID, verb string, r model.IntegrationResponse) error
	UpdateIntegrationResponse(ctx context.Context, apiID, resourceID, verb string, r model.IntegrationResponse) error

	// CreateDeployment snapshots the current configuration and repoints
	// the stage at it. Deliberately not idempotent: every call produces a
	// new deployment.
	CreateDeployment(ctx context.Context, apiID, stage, description string) (model.Deployment, error)
}
