package model

import "time"

// RestAPI is a gateway API as reported by the control plane
type RestAPI struct {
	ID   string
	Name string
}

// Resource is one node in an API's path tree
type Resource struct {
	ID       string
	ParentID string // empty for the root resource
	PathPart string // single segment: literal or capture, e.g. "api" or "{proxy+}"
	Path     string // full path derived from ancestors, e.g. "/api/{proxy+}"
}

// Method is the client-facing half of a route: one verb on one resource
type Method struct {
	Verb              string
	Authorization     string
	RequestParameters map[string]bool // e.g. method.request.path.proxy -> true (required)
}

// Integration binds a method to its upstream target
type Integration struct {
	Kind              string // IntegrationHTTP or IntegrationHTTPProxy
	UpstreamVerb      string
	URI               string            // upstream URI template, may embed {capture}
	RequestParameters map[string]string // integration.request.path.X -> method.request.path.X
	RequestTemplates  map[string]string // content type -> body template
	Passthrough       string
	ContentHandling   string
}

// MethodResponse declares which headers a status code may pass back to the client
type MethodResponse struct {
	Status  string
	Headers map[string]bool // method.response.header.X -> true
}

// IntegrationResponse supplies header values and body templates for a status code
type IntegrationResponse struct {
	Status    string
	Headers   map[string]string // method.response.header.X -> literal or mapping expression
	Templates map[string]string // content type -> response body template
}

// Deployment is an immutable snapshot of an API's configuration
type Deployment struct {
	ID          string
	Description string
	CreatedAt   time.Time
}
