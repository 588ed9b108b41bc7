package loader

import (
	"fmt"
	"strings"

	"github.com/smartexpense/gatewayctl/internal/model"
)

// Normalize fills defaults into a desired-state document and checks the
// fields the schema cannot express. The defaults reproduce what an operator
// would otherwise spell out for a plain JSON backend behind a wildcard route.
func Normalize(d *model.Desired) error {
	if d.API.Name == "" {
		return fmt.Errorf("api.name is required")
	}
	if d.API.Region == "" {
		return fmt.Errorf("api.region is required")
	}
	if d.API.Stage == "" {
		return fmt.Errorf("api.stage is required")
	}
	if d.Upstream.Host == "" {
		return fmt.Errorf("upstream.host is required")
	}
	if d.Route.Path == "" {
		return fmt.Errorf("route.path is required")
	}

	if d.API.StageDescription == "" {
		d.API.StageDescription = "managed by gatewayctl"
	}

	d.Route.Verb = strings.ToUpper(d.Route.Verb)
	if d.Route.Verb == "" {
		d.Route.Verb = model.VerbAny
	}

	if d.Upstream.Scheme == "" {
		d.Upstream.Scheme = "http"
	}
	if d.Upstream.Port == 0 {
		switch d.Upstream.Scheme {
		case "https":
			d.Upstream.Port = 443
		default:
			d.Upstream.Port = 80
		}
	}
	if d.Upstream.BasePath != "" {
		d.Upstream.BasePath = "/" + strings.Trim(d.Upstream.BasePath, "/")
	}

	if d.Integration.Kind == "" {
		d.Integration.Kind = model.IntegrationHTTP
	}
	if d.Integration.Passthrough == "" {
		d.Integration.Passthrough = model.PassthroughWhenNoMatch
	}
	if d.Integration.Kind == model.IntegrationHTTP && len(d.Integration.RequestTemplates) == 0 {
		// JSON is forwarded structurally; form bodies go through as raw
		// text because the template language has nothing to offer them.
		d.Integration.RequestTemplates = map[string]string{
			model.ContentTypeJSON: "$input.json('$')",
			model.ContentTypeForm: "$input.body",
		}
	}

	if len(d.Responses) == 0 {
		d.Responses = []model.ResponseRule{{
			Status:  "200",
			Headers: map[string]string{"Access-Control-Allow-Origin": "'*'"},
		}}
	}
	return nil
}
