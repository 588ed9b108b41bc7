package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/smartexpense/gatewayctl/internal/configure"
	"github.com/smartexpense/gatewayctl/internal/deploy"
	"github.com/smartexpense/gatewayctl/internal/gateway"
	"github.com/smartexpense/gatewayctl/internal/model"
	"github.com/smartexpense/gatewayctl/internal/resolve"
)

// Options tune the run. Zero values get conservative defaults.
type Options struct {
	Attempts    int           // bounded retries for transient failures
	Backoff     time.Duration // base backoff, grows linearly per attempt
	CallTimeout time.Duration // per control-plane step
	Out         io.Writer     // progress output, defaults to io.Discard
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.Out == nil {
		o.Out = io.Discard
	}
	return o
}

// Reconciler drives one desired-state document to the control plane:
// resolve the resource subtree, configure the method stack, publish a
// deployment. Steps run strictly sequentially because each depends on
// identifiers the previous one produced; the run halts at the first
// unrecovered failure and a re-run converges.
type Reconciler struct {
	client gateway.Client
	opts   Options
}

func New(client gateway.Client, opts Options) *Reconciler {
	return &Reconciler{client: client, opts: opts.withDefaults()}
}

// Run reconciles the desired document. The returned report is populated even
// on failure, so callers can state which step failed and whether the
// deployment was reached.
func (r *Reconciler) Run(ctx context.Context, d *model.Desired) (*model.Report, error) {
	report := &model.Report{}

	segments, cfg, err := compile(d)
	if err != nil {
		return report, err
	}

	var api model.RestAPI
	if err := r.step(ctx, report, "lookup-api", func(ctx context.Context) error {
		var err error
		api, err = r.client.LookupAPI(ctx, d.API.Name)
		return err
	}); err != nil {
		return report, err
	}

	resolver := resolve.New(r.client)

	// An existing leaf configured with the wrong integration kind is torn
	// down and rebuilt from scratch. Patching the kind in place leaves
	// stale integration responses behind; the delete cascades instead.
	var rebuild bool
	if err := r.step(ctx, report, "inspect-route", func(ctx context.Context) error {
		leaf, found, err := resolver.Lookup(ctx, api.ID, segments)
		if err != nil || !found {
			return err
		}
		current, err := r.client.GetIntegration(ctx, api.ID, leaf.ID, cfg.Verb)
		if errors.Is(err, gateway.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		rebuild = current.Kind != cfg.Kind
		return nil
	}); err != nil {
		return report, err
	}

	if rebuild {
		if err := r.step(ctx, report, "teardown-route", func(ctx context.Context) error {
			leaf, found, err := resolver.Lookup(ctx, api.ID, segments)
			if err != nil || !found {
				return err
			}
			return r.client.DeleteResource(ctx, api.ID, leaf.ID)
		}); err != nil {
			return report, err
		}
	}

	var leaf model.Resource
	if err := r.step(ctx, report, "resolve-route", func(ctx context.Context) error {
		var err error
		leaf, err = resolver.Resolve(ctx, api.ID, segments)
		return err
	}); err != nil {
		return report, err
	}

	configurator := configure.New(r.client)
	if err := r.step(ctx, report, "configure-route", func(ctx context.Context) error {
		return configurator.Apply(ctx, api.ID, leaf.ID, cfg)
	}); err != nil {
		return report, err
	}

	publisher := deploy.New(r.client)
	if err := r.step(ctx, report, "create-deployment", func(ctx context.Context) error {
		dep, err := publisher.Publish(ctx, api.ID, d.API.Stage, d.API.StageDescription)
		if err != nil {
			return err
		}
		report.Published = true
		report.Deployment = dep
		return nil
	}); err != nil {
		return report, err
	}

	report.InvokeURL = deploy.InvokeURL(api.ID, d.API.Region, d.API.Stage)
	return report, nil
}

// Plan computes the step sequence Run would issue, using reads only.
func (r *Reconciler) Plan(ctx context.Context, d *model.Desired) (*model.Plan, error) {
	segments, cfg, err := compile(d)
	if err != nil {
		return nil, err
	}

	plan := &model.Plan{
		APIVersion: "gatewayctl/v1",
		Kind:       "ReconcilePlan",
		Metadata:   d.Metadata,
		API:        d.API.Name,
		Stage:      d.API.Stage,
	}
	plan.Steps = append(plan.Steps, model.PlanStep{
		Name: "lookup-api", Action: "lookup-api", Target: d.API.Name,
	})

	api, err := r.client.LookupAPI(ctx, d.API.Name)
	if err != nil {
		return nil, &gateway.StepError{Step: "lookup-api", Err: err}
	}

	resolver := resolve.New(r.client)
	deepest, missing, err := resolver.Walk(ctx, api.ID, segments)
	if err != nil {
		return nil, &gateway.StepError{Step: "resolve-route", Err: err}
	}

	if len(missing) == 0 {
		current, err := r.client.GetIntegration(ctx, api.ID, deepest.ID, cfg.Verb)
		switch {
		case errors.Is(err, gateway.ErrNotFound):
			// no integration yet, nothing to tear down
		case err != nil:
			return nil, &gateway.StepError{Step: "inspect-route", Err: err}
		case current.Kind != cfg.Kind:
			plan.Steps = append(plan.Steps, model.PlanStep{
				Name:   "teardown-route",
				Action: "delete-resource",
				Target: deepest.Path,
				Detail: fmt.Sprintf("integration kind %s -> %s", current.Kind, cfg.Kind),
			})
			missing = segments[len(segments)-1:]
		}
	}

	for _, seg := range missing {
		plan.Steps = append(plan.Steps, model.PlanStep{
			Name:   "create-resource-" + seg.Name,
			Action: "create-resource",
			Target: seg.PathPart(),
		})
	}
	plan.Steps = append(plan.Steps, cfg.Steps()...)
	plan.Steps = append(plan.Steps, model.PlanStep{
		Name:   "create-deployment",
		Action: "create-deployment",
		Target: d.API.Stage,
		Detail: d.API.StageDescription,
	})
	return plan, nil
}

// compile validates the desired document into executable pieces
func compile(d *model.Desired) ([]resolve.Segment, configure.Config, error) {
	segments, err := resolve.ParseTemplate(d.Route.Path)
	if err != nil {
		return nil, configure.Config{}, err
	}
	captureVar, _ := resolve.CaptureVar(segments)
	cfg := configure.FromDesired(d, captureVar)
	if err := cfg.Validate(); err != nil {
		return nil, configure.Config{}, err
	}
	return segments, cfg, nil
}

// step runs one named phase with retry on transient failures, records the
// outcome on the report and wraps failures with the offending step's name.
func (r *Reconciler) step(ctx context.Context, report *model.Report, name string, fn func(context.Context) error) error {
	fmt.Fprintf(r.opts.Out, "□ %s\n", name)

	err := withRetry(ctx, r.opts.Attempts, r.opts.Backoff, r.opts.CallTimeout, fn)
	if err != nil {
		var stepErr *gateway.StepError
		if !errors.As(err, &stepErr) {
			stepErr = &gateway.StepError{Step: name, Err: err}
			err = stepErr
		}
		report.FailedStep = stepErr.Step
		return err
	}
	report.Completed = append(report.Completed, name)
	return nil
}
