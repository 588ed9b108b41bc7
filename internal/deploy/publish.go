package deploy

import (
	"context"
	"fmt"

	"github.com/smartexpense/gatewayctl/internal/gateway"
	"github.com/smartexpense/gatewayctl/internal/model"
)

// Publisher cuts deployment snapshots. Publishing must be the final step of
// a reconciliation run: nothing configured before it is live until it
// succeeds. It is deliberately not idempotent; every call produces a new,
// timestamped deployment and repoints the stage, duplicates are harmless.
type Publisher struct {
	client gateway.Client
}

func New(client gateway.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, apiID, stage, description string) (model.Deployment, error) {
	dep, err := p.client.CreateDeployment(ctx, apiID, stage, description)
	if err != nil {
		return model.Deployment{}, &gateway.StepError{Step: "create-deployment", Err: err}
	}
	return dep, nil
}

// InvokeURL is the public base URL of a deployed stage
func InvokeURL(apiID, region, stage string) string {
	return fmt.Sprintf("https://%s.execute-api.%s.amazonaws.com/%s", apiID, region, stage)
}
