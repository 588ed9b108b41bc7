package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartexpense/gatewayctl/internal/model"
)

const minimalDoc = `
apiVersion: gatewayctl/v1
kind: ProxyRoute
metadata:
  name: expense-tracker-proxy
api:
  name: expense-tracker
  region: us-east-1
  stage: prod
route:
  path: /api/{proxy+}
upstream:
  host: 10.0.1.20
  port: 8000
  basePath: api
`

func TestParseDesiredAppliesDefaults(t *testing.T) {
	d, err := ParseDesired([]byte(minimalDoc))
	require.NoError(t, err)

	assert.Equal(t, model.VerbAny, d.Route.Verb)
	assert.Equal(t, "http", d.Upstream.Scheme)
	assert.Equal(t, "/api", d.Upstream.BasePath, "base path gains a leading slash")
	assert.Equal(t, model.IntegrationHTTP, d.Integration.Kind)
	assert.Equal(t, model.PassthroughWhenNoMatch, d.Integration.Passthrough)
	assert.Equal(t, "managed by gatewayctl", d.API.StageDescription)

	assert.Equal(t, "$input.json('$')", d.Integration.RequestTemplates[model.ContentTypeJSON])
	assert.Equal(t, "$input.body", d.Integration.RequestTemplates[model.ContentTypeForm])

	require.Len(t, d.Responses, 1)
	assert.Equal(t, "200", d.Responses[0].Status)
	assert.Equal(t, "'*'", d.Responses[0].Headers["Access-Control-Allow-Origin"])
}

func TestParseDesiredFullDocument(t *testing.T) {
	doc := `
apiVersion: gatewayctl/v1
kind: ProxyRoute
metadata:
  name: expense-tracker-proxy
  description: proxy for the expense backend
api:
  name: expense-tracker
  region: eu-west-1
  stage: staging
  stageDescription: staging rollout
route:
  path: /api/{proxy+}
  verb: ANY
upstream:
  scheme: https
  host: backend.internal
  basePath: /v1/
integration:
  kind: HTTP_PROXY
  passthrough: NEVER
responses:
  - status: "200"
    headers:
      Access-Control-Allow-Origin: "'*'"
  - status: "500"
    headers:
      Access-Control-Allow-Origin: "'*'"
`
	d, err := ParseDesired([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, model.VerbAny, d.Route.Verb)
	assert.Equal(t, 443, d.Upstream.Port, "https defaults the port")
	assert.Equal(t, "/v1", d.Upstream.BasePath)
	assert.Equal(t, model.IntegrationHTTPProxy, d.Integration.Kind)
	assert.Empty(t, d.Integration.RequestTemplates, "opaque passthrough gets no default templates")
	assert.Len(t, d.Responses, 2)
}

func TestParseDesiredRejectsUnknownKeys(t *testing.T) {
	doc := minimalDoc + "\nextraKey: surprise\n"
	_, err := ParseDesired([]byte(doc))
	assert.Error(t, err)
}

func TestParseDesiredRejectsNestedUnknownKeys(t *testing.T) {
	doc := `
apiVersion: gatewayctl/v1
kind: ProxyRoute
api:
  name: expense-tracker
  region: us-east-1
  stage: prod
  accountId: "123456789012"
route:
  path: /api/{proxy+}
upstream:
  host: 10.0.1.20
`
	_, err := ParseDesired([]byte(doc))
	assert.Error(t, err)
}

func TestParseDesiredSchemaRejections(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{
			name: "wrong apiVersion",
			doc: `
apiVersion: gatewayctl/v2
kind: ProxyRoute
api: {name: a, region: r, stage: s}
route: {path: "/api/{proxy+}"}
upstream: {host: h}
`,
		},
		{
			name: "wrong kind",
			doc: `
apiVersion: gatewayctl/v1
kind: Route
api: {name: a, region: r, stage: s}
route: {path: "/api/{proxy+}"}
upstream: {host: h}
`,
		},
		{
			name: "missing upstream",
			doc: `
apiVersion: gatewayctl/v1
kind: ProxyRoute
api: {name: a, region: r, stage: s}
route: {path: "/api/{proxy+}"}
`,
		},
		{
			name: "port out of range",
			doc: `
apiVersion: gatewayctl/v1
kind: ProxyRoute
api: {name: a, region: r, stage: s}
route: {path: "/api/{proxy+}"}
upstream: {host: h, port: 70000}
`,
		},
		{
			name: "bad integration kind",
			doc: `
apiVersion: gatewayctl/v1
kind: ProxyRoute
api: {name: a, region: r, stage: s}
route: {path: "/api/{proxy+}"}
upstream: {host: h}
integration: {kind: LAMBDA}
`,
		},
		{
			name: "bad response status",
			doc: `
apiVersion: gatewayctl/v1
kind: ProxyRoute
api: {name: a, region: r, stage: s}
route: {path: "/api/{proxy+}"}
upstream: {host: h}
responses:
  - status: "6xx"
`,
		},
		{
			name: "unsupported template content type",
			doc: `
apiVersion: gatewayctl/v1
kind: ProxyRoute
api: {name: a, region: r, stage: s}
route: {path: "/api/{proxy+}"}
upstream: {host: h}
integration:
  requestTemplates:
    text/xml: "$input.body"
`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDesired([]byte(tc.doc))
			assert.Error(t, err)
		})
	}
}

func TestParseDesiredRejectsMalformedYAML(t *testing.T) {
	_, err := ParseDesired([]byte("api: [unclosed"))
	assert.Error(t, err)
}

func TestLoadDesired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalDoc), 0o644))

	d, err := LoadDesired(path)
	require.NoError(t, err)
	assert.Equal(t, "expense-tracker", d.API.Name)

	_, err = LoadDesired(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNormalizeRequiredFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.Desired)
	}{
		{"missing api name", func(d *model.Desired) { d.API.Name = "" }},
		{"missing region", func(d *model.Desired) { d.API.Region = "" }},
		{"missing stage", func(d *model.Desired) { d.API.Stage = "" }},
		{"missing host", func(d *model.Desired) { d.Upstream.Host = "" }},
		{"missing path", func(d *model.Desired) { d.Route.Path = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &model.Desired{
				API:      model.APISpec{Name: "a", Region: "r", Stage: "s"},
				Route:    model.Route{Path: "/api/{proxy+}"},
				Upstream: model.Upstream{Host: "h"},
			}
			tc.mutate(d)
			assert.Error(t, Normalize(d))
		})
	}
}
