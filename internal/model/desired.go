package model

// Desired is the top-level desired-state document for one proxy route
type Desired struct {
	APIVersion  string          `yaml:"apiVersion" json:"apiVersion"`
	Kind        string          `yaml:"kind" json:"kind"`
	Metadata    Metadata        `yaml:"metadata" json:"metadata"`
	API         APISpec         `yaml:"api" json:"api"`
	Route       Route           `yaml:"route" json:"route"`
	Upstream    Upstream        `yaml:"upstream" json:"upstream"`
	Integration IntegrationSpec `yaml:"integration" json:"integration"`
	Responses   []ResponseRule  `yaml:"responses" json:"responses"`
}

// Metadata holds standard object metadata
type Metadata struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// APISpec identifies the gateway API and the stage to publish to
type APISpec struct {
	Name             string `yaml:"name" json:"name"`
	Region           string `yaml:"region" json:"region"`
	Stage            string `yaml:"stage" json:"stage"`
	StageDescription string `yaml:"stageDescription" json:"stageDescription"`
}

// Route declares the path template and the client-facing verb
type Route struct {
	Path string `yaml:"path" json:"path"` // e.g. /api/{proxy+}
	Verb string `yaml:"verb" json:"verb"` // HTTP verb or ANY
}

// Upstream is the fixed backend address requests are forwarded to
type Upstream struct {
	Scheme   string `yaml:"scheme" json:"scheme"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	BasePath string `yaml:"basePath" json:"basePath"` // prefix prepended before the captured path
}

// IntegrationSpec selects the forwarding mode and its transformation rules
type IntegrationSpec struct {
	Kind             string            `yaml:"kind" json:"kind"`                         // HTTP (transformed) or HTTP_PROXY (opaque passthrough)
	Passthrough      string            `yaml:"passthrough" json:"passthrough"`           // WHEN_NO_MATCH, WHEN_NO_TEMPLATES, NEVER
	ContentHandling  string            `yaml:"contentHandling" json:"contentHandling"`   // CONVERT_TO_TEXT or empty
	RequestTemplates map[string]string `yaml:"requestTemplates" json:"requestTemplates"` // content type -> body template
}

// ResponseRule declares pass-through headers and templates for one status code
type ResponseRule struct {
	Status    string            `yaml:"status" json:"status"`
	Headers   map[string]string `yaml:"headers" json:"headers"`     // header -> literal value, e.g. Access-Control-Allow-Origin: "'*'"
	Templates map[string]string `yaml:"templates" json:"templates"` // content type -> response body template
}

// Integration kinds understood by the control plane.
const (
	IntegrationHTTP      = "HTTP"       // transformed forwarding: gateway terminates and re-issues the request
	IntegrationHTTPProxy = "HTTP_PROXY" // opaque passthrough: raw relay, surfaces upstream redirects
)

// Passthrough policies for untemplated content types.
const (
	PassthroughWhenNoMatch     = "WHEN_NO_MATCH"
	PassthroughWhenNoTemplates = "WHEN_NO_TEMPLATES"
	PassthroughNever           = "NEVER"
)

// Content types with a known request-template treatment.
const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// VerbAny matches every HTTP verb on a method.
const VerbAny = "ANY"
