package configure

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/smartexpense/gatewayctl/internal/gateway"
	"github.com/smartexpense/gatewayctl/internal/model"
)

// Config is the desired method stack for one resource. Construct it with
// FromDesired or fill it directly, then Validate rejects anything the
// control plane would accept silently but route wrong.
type Config struct {
	Verb          string
	Authorization string

	// CaptureVar is the path variable captured by the route, empty when
	// the path is all literals. When set, the integration URI must embed
	// it and the request-parameter binding is generated, never optional.
	CaptureVar string

	Kind             string
	UpstreamVerb     string
	URI              string
	RequestTemplates map[string]string
	Passthrough      string
	ContentHandling  string

	Responses []model.ResponseRule
}

var supportedContentTypes = map[string]bool{
	model.ContentTypeJSON: true,
	model.ContentTypeForm: true,
}

var supportedPassthrough = map[string]bool{
	model.PassthroughWhenNoMatch:     true,
	model.PassthroughWhenNoTemplates: true,
	model.PassthroughNever:           true,
}

// FromDesired builds the resource configuration out of a desired-state
// document and the capture variable its route template binds.
func FromDesired(d *model.Desired, captureVar string) Config {
	return Config{
		Verb:             d.Route.Verb,
		Authorization:    "NONE",
		CaptureVar:       captureVar,
		Kind:             d.Integration.Kind,
		UpstreamVerb:     d.Route.Verb,
		URI:              upstreamURI(d, captureVar),
		RequestTemplates: d.Integration.RequestTemplates,
		Passthrough:      d.Integration.Passthrough,
		ContentHandling:  d.Integration.ContentHandling,
		Responses:        d.Responses,
	}
}

func upstreamURI(d *model.Desired, captureVar string) string {
	base := fmt.Sprintf("%s://%s:%d%s", d.Upstream.Scheme, d.Upstream.Host, d.Upstream.Port, d.Upstream.BasePath)
	if captureVar == "" {
		return base
	}
	return base + "/{" + captureVar + "}"
}

func (c Config) Validate() error {
	if c.Verb == "" {
		return fmt.Errorf("config: verb is required")
	}
	if c.URI == "" {
		return fmt.Errorf("config: upstream uri is required")
	}
	if c.Kind != model.IntegrationHTTP && c.Kind != model.IntegrationHTTPProxy {
		return fmt.Errorf("config: unknown integration kind %q", c.Kind)
	}
	if c.Passthrough != "" && !supportedPassthrough[c.Passthrough] {
		return fmt.Errorf("config: unknown passthrough policy %q", c.Passthrough)
	}

	// An unbound capture reaches the upstream as a literal "{x}" path, so
	// the variable and the URI placeholder must agree before any call is
	// made.
	if c.CaptureVar != "" && !strings.Contains(c.URI, "{"+c.CaptureVar+"}") {
		return fmt.Errorf("config: uri %q does not embed capture variable {%s}", c.URI, c.CaptureVar)
	}
	if c.CaptureVar == "" && strings.Contains(c.URI, "{") {
		return fmt.Errorf("config: uri %q embeds a variable but the route captures none", c.URI)
	}

	for contentType := range c.RequestTemplates {
		if !supportedContentTypes[contentType] {
			return fmt.Errorf("config: unsupported request template content type %q", contentType)
		}
	}
	seen := make(map[string]bool)
	for _, rule := range c.Responses {
		if rule.Status == "" {
			return fmt.Errorf("config: response rule without status code")
		}
		if seen[rule.Status] {
			return fmt.Errorf("config: duplicate response rule for status %s", rule.Status)
		}
		seen[rule.Status] = true
		for contentType := range rule.Templates {
			if !supportedContentTypes[contentType] {
				return fmt.Errorf("config: unsupported response template content type %q for status %s", contentType, rule.Status)
			}
		}
		for header, value := range rule.Headers {
			if header == "" {
				return fmt.Errorf("config: empty response header name for status %s", rule.Status)
			}
			if !literalOrMapping(value) {
				return fmt.Errorf("config: response header %s for status %s must be a quoted literal or an integration.response mapping, got %q", header, rule.Status, value)
			}
		}
	}
	return nil
}

func literalOrMapping(value string) bool {
	if strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'") && len(value) >= 2 {
		return true
	}
	return strings.HasPrefix(value, "integration.response.")
}

// method materializes the method half, with the capture declared required
func (c Config) method() model.Method {
	m := model.Method{
		Verb:          c.Verb,
		Authorization: c.Authorization,
	}
	if c.CaptureVar != "" {
		m.RequestParameters = map[string]bool{
			"method.request.path." + c.CaptureVar: true,
		}
	}
	return m
}

// integration materializes the integration half, binding the method's
// capture variable into the upstream URI template
func (c Config) integration() model.Integration {
	in := model.Integration{
		Kind:             c.Kind,
		UpstreamVerb:     c.UpstreamVerb,
		URI:              c.URI,
		RequestTemplates: c.RequestTemplates,
		Passthrough:      c.Passthrough,
		ContentHandling:  c.ContentHandling,
	}
	if c.CaptureVar != "" {
		in.RequestParameters = map[string]string{
			"integration.request.path." + c.CaptureVar: "method.request.path." + c.CaptureVar,
		}
	}
	return in
}

// sortedResponses returns the response rules in stable status order
func (c Config) sortedResponses() []model.ResponseRule {
	rules := make([]model.ResponseRule, len(c.Responses))
	copy(rules, c.Responses)
	sort.Slice(rules, func(i, j int) bool { return rules[i].Status < rules[j].Status })
	return rules
}

// Steps lists the configuration sub-steps in the order Apply issues them.
// The order is a control-plane requirement, not a preference: method before
// integration, and the method response for a status code before its
// integration response.
func (c Config) Steps() []model.PlanStep {
	steps := []model.PlanStep{
		{Name: "ensure-method", Action: "put-method", Target: c.Verb},
		{Name: "ensure-integration", Action: "put-integration", Target: c.Verb, Detail: c.Kind + " " + c.URI},
	}
	for _, rule := range c.sortedResponses() {
		steps = append(steps,
			model.PlanStep{Name: "ensure-method-response-" + rule.Status, Action: "put-method-response", Target: rule.Status},
			model.PlanStep{Name: "ensure-integration-response-" + rule.Status, Action: "put-integration-response", Target: rule.Status},
		)
	}
	return steps
}

// Configurator brings a resource's method stack to a desired configuration
// with create-or-update semantics on every sub-step.
type Configurator struct {
	client gateway.Client
}

func New(client gateway.Client) *Configurator {
	return &Configurator{client: client}
}

// Apply converges the resource onto cfg. AlreadyExists is recovered locally
// by falling back to the partial-update call, so re-running Apply against an
// already configured resource succeeds and converges; every other failure
// propagates wrapped in a StepError naming the sub-step.
func (c *Configurator) Apply(ctx context.Context, apiID, resourceID string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	method := cfg.method()
	err := c.ensure("ensure-method",
		func() error { return c.client.PutMethod(ctx, apiID, resourceID, method) },
		func() error { return c.client.UpdateMethod(ctx, apiID, resourceID, method) },
	)
	if err != nil {
		return err
	}

	integration := cfg.integration()
	err = c.ensure("ensure-integration",
		func() error { return c.client.PutIntegration(ctx, apiID, resourceID, cfg.Verb, integration) },
		func() error { return c.client.UpdateIntegration(ctx, apiID, resourceID, cfg.Verb, integration) },
	)
	if err != nil {
		return err
	}

	for _, rule := range cfg.sortedResponses() {
		methodResp := model.MethodResponse{
			Status:  rule.Status,
			Headers: make(map[string]bool, len(rule.Headers)),
		}
		integrationResp := model.IntegrationResponse{
			Status:    rule.Status,
			Headers:   make(map[string]string, len(rule.Headers)),
			Templates: rule.Templates,
		}
		for header, value := range rule.Headers {
			methodResp.Headers["method.response.header."+header] = true
			integrationResp.Headers["method.response.header."+header] = value
		}

		err = c.ensure("ensure-method-response-"+rule.Status,
			func() error { return c.client.PutMethodResponse(ctx, apiID, resourceID, cfg.Verb, methodResp) },
			func() error { return c.client.UpdateMethodResponse(ctx, apiID, resourceID, cfg.Verb, methodResp) },
		)
		if err != nil {
			return err
		}

		err = c.ensure("ensure-integration-response-"+rule.Status,
			func() error {
				return c.client.PutIntegrationResponse(ctx, apiID, resourceID, cfg.Verb, integrationResp)
			},
			func() error {
				return c.client.UpdateIntegrationResponse(ctx, apiID, resourceID, cfg.Verb, integrationResp)
			},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ensure attempts creation and falls back to the partial update when the
// object already exists. The fallback is mandatory: without it a re-run
// would abort on the first sub-step.
func (c *Configurator) ensure(step string, put, update func() error) error {
	err := put()
	if errors.Is(err, gateway.ErrAlreadyExists) {
		err = update()
	}
	if err != nil {
		return &gateway.StepError{Step: step, Err: err}
	}
	return nil
}
