package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smartexpense/gatewayctl/internal/model"
)

// UpstreamRequest is one simulated hop toward the backend
type UpstreamRequest struct {
	Verb    string
	URL     string
	Headers map[string]string
	Body    string
}

// UpstreamResponse is what the simulated backend answers with
type UpstreamResponse struct {
	Status  int
	Headers map[string]string
	Body    string
}

// UpstreamFunc stands in for the backend HTTP service during Invoke
type UpstreamFunc func(UpstreamRequest) UpstreamResponse

// Memory is an in-memory control plane implementing Client. It enforces the
// same dependency ordering the remote side does (integration requires method,
// integration response requires the matching method response) and keeps
// per-stage configuration snapshots so deployment gating is observable.
type Memory struct {
	mu   sync.Mutex
	apis map[string]*apiState
	seq  int

	// Calls records every mutating and reading operation in issue order,
	// as "op target...". Tests assert ordering invariants against it.
	Calls []string

	// Upstream handles simulated live requests issued through Invoke.
	Upstream UpstreamFunc

	failures map[string][]error
}

type apiState struct {
	api         model.RestAPI
	rootID      string
	resources   map[string]*model.Resource
	methods     map[string]map[string]*methodState // resource id -> verb
	deployments []model.Deployment
	stages      map[string]*snapshot
}

type methodState struct {
	method               model.Method
	integration          *model.Integration
	methodResponses      map[string]model.MethodResponse
	integrationResponses map[string]model.IntegrationResponse
}

// snapshot is a deep copy of an API's configuration at deployment time
type snapshot struct {
	deploymentID string
	rootID       string
	resources    map[string]model.Resource
	methods      map[string]map[string]methodState
}

// NewMemory returns an empty in-memory control plane
func NewMemory() *Memory {
	return &Memory{
		apis:     make(map[string]*apiState),
		failures: make(map[string][]error),
	}
}

// CreateAPI registers an API with a fresh root resource and returns its record
func (m *Memory) CreateAPI(name string) model.RestAPI {
	m.mu.Lock()
	defer m.mu.Unlock()

	apiID := m.nextID("a")
	rootID := m.nextID("r")
	st := &apiState{
		api:       model.RestAPI{ID: apiID, Name: name},
		rootID:    rootID,
		resources: map[string]*model.Resource{rootID: {ID: rootID, Path: "/"}},
		methods:   make(map[string]map[string]*methodState),
		stages:    make(map[string]*snapshot),
	}
	m.apis[apiID] = st
	return st.api
}

// SeedResource inserts a resource node without duplicate checking. Test hook
// for constructing ambiguous trees the normal API would refuse to build.
func (m *Memory) SeedResource(apiID, parentID, pathPart string) model.Resource {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.apis[apiID]
	parent := st.resources[parentID]
	res := &model.Resource{
		ID:       m.nextID("r"),
		ParentID: parentID,
		PathPart: pathPart,
		Path:     joinPath(parent.Path, pathPart),
	}
	st.resources[res.ID] = res
	return *res
}

// FailNext queues errors to be returned by the next calls of the named
// operation, oldest first. Used to exercise retry and abort behavior.
func (m *Memory) FailNext(op string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], errs...)
}

// Deployments returns the append-only deployment history of an API
func (m *Memory) Deployments(apiID string) []model.Deployment {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.apis[apiID]
	if st == nil {
		return nil
	}
	out := make([]model.Deployment, len(st.deployments))
	copy(out, st.deployments)
	return out
}

// StageDeployment returns the deployment id a stage currently points at
func (m *Memory) StageDeployment(apiID, stage string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.apis[apiID]
	if st == nil {
		return "", false
	}
	snap, ok := st.stages[stage]
	if !ok {
		return "", false
	}
	return snap.deploymentID, true
}

func (m *Memory) LookupAPI(ctx context.Context, name string) (model.RestAPI, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("lookup-api"); err != nil {
		return model.RestAPI{}, err
	}
	m.record("lookup-api", name)

	var found []model.RestAPI
	for _, st := range m.apis {
		if st.api.Name == name {
			found = append(found, st.api)
		}
	}
	switch len(found) {
	case 0:
		return model.RestAPI{}, fmt.Errorf("api %q: %w", name, ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return model.RestAPI{}, fmt.Errorf("api name %q matches %d apis: %w", name, len(found), ErrConflict)
	}
}

func (m *Memory) ListResources(ctx context.Context, apiID string) ([]model.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("list-resources"); err != nil {
		return nil, err
	}
	m.record("list-resources", apiID)

	st, err := m.api(apiID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Resource, 0, len(st.resources))
	for _, r := range st.resources {
		out = append(out, *r)
	}
	return out, nil
}

func (m *Memory) CreateResource(ctx context.Context, apiID, parentID, pathPart string) (model.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("create-resource"); err != nil {
		return model.Resource{}, err
	}
	m.record("create-resource", parentID, pathPart)

	st, err := m.api(apiID)
	if err != nil {
		return model.Resource{}, err
	}
	parent, ok := st.resources[parentID]
	if !ok {
		return model.Resource{}, fmt.Errorf("parent resource %q: %w", parentID, ErrNotFound)
	}
	for _, r := range st.resources {
		if r.ParentID == parentID && r.PathPart == pathPart {
			return model.Resource{}, fmt.Errorf("resource %q under %q: %w", pathPart, parent.Path, ErrConflict)
		}
	}
	res := &model.Resource{
		ID:       m.nextID("r"),
		ParentID: parentID,
		PathPart: pathPart,
		Path:     joinPath(parent.Path, pathPart),
	}
	st.resources[res.ID] = res
	return *res, nil
}

func (m *Memory) DeleteResource(ctx context.Context, apiID, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("delete-resource"); err != nil {
		return err
	}
	m.record("delete-resource", resourceID)

	st, err := m.api(apiID)
	if err != nil {
		return err
	}
	if _, ok := st.resources[resourceID]; !ok {
		return fmt.Errorf("resource %q: %w", resourceID, ErrNotFound)
	}

	// Cascade: the subtree and every method attached to it go too.
	doomed := []string{resourceID}
	for i := 0; i < len(doomed); i++ {
		for id, r := range st.resources {
			if r.ParentID == doomed[i] {
				doomed = append(doomed, id)
			}
		}
	}
	for _, id := range doomed {
		delete(st.resources, id)
		delete(st.methods, id)
	}
	return nil
}

func (m *Memory) PutMethod(ctx context.Context, apiID, resourceID string, mt model.Method) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("put-method"); err != nil {
		return err
	}
	m.record("put-method", resourceID, mt.Verb)

	ms, err := m.methodSlot(apiID, resourceID, mt.Verb)
	if err != nil {
		return err
	}
	if ms != nil {
		return fmt.Errorf("method %s on %s: %w", mt.Verb, resourceID, ErrAlreadyExists)
	}
	st := m.apis[apiID]
	if st.methods[resourceID] == nil {
		st.methods[resourceID] = make(map[string]*methodState)
	}
	st.methods[resourceID][mt.Verb] = &methodState{
		method:               copyMethod(mt),
		methodResponses:      make(map[string]model.MethodResponse),
		integrationResponses: make(map[string]model.IntegrationResponse),
	}
	return nil
}

func (m *Memory) UpdateMethod(ctx context.Context, apiID, resourceID string, mt model.Method) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("update-method"); err != nil {
		return err
	}
	m.record("update-method", resourceID, mt.Verb)

	ms, err := m.methodSlot(apiID, resourceID, mt.Verb)
	if err != nil {
		return err
	}
	if ms == nil {
		return fmt.Errorf("method %s on %s: %w", mt.Verb, resourceID, ErrNotFound)
	}
	if mt.Authorization != "" {
		ms.method.Authorization = mt.Authorization
	}
	for k, v := range mt.RequestParameters {
		if ms.method.RequestParameters == nil {
			ms.method.RequestParameters = make(map[string]bool)
		}
		ms.method.RequestParameters[k] = v
	}
	return nil
}

func (m *Memory) GetIntegration(ctx context.Context, apiID, resourceID, verb string) (model.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("get-integration"); err != nil {
		return model.Integration{}, err
	}
	m.record("get-integration", resourceID, verb)

	ms, err := m.methodSlot(apiID, resourceID, verb)
	if err != nil {
		return model.Integration{}, err
	}
	if ms == nil || ms.integration == nil {
		return model.Integration{}, fmt.Errorf("integration %s on %s: %w", verb, resourceID, ErrNotFound)
	}
	return copyIntegration(*ms.integration), nil
}

func (m *Memory) PutIntegration(ctx context.Context, apiID, resourceID, verb string, in model.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("put-integration"); err != nil {
		return err
	}
	m.record("put-integration", resourceID, verb)

	ms, err := m.methodSlot(apiID, resourceID, verb)
	if err != nil {
		return err
	}
	if ms == nil {
		return fmt.Errorf("integration %s on %s requires a method: %w", verb, resourceID, ErrConflict)
	}
	if ms.integration != nil {
		return fmt.Errorf("integration %s on %s: %w", verb, resourceID, ErrAlreadyExists)
	}
	cp := copyIntegration(in)
	ms.integration = &cp
	return nil
}

func (m *Memory) UpdateIntegration(ctx context.Context, apiID, resourceID, verb string, in model.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("update-integration"); err != nil {
		return err
	}
	m.record("update-integration", resourceID, verb)

	ms, err := m.methodSlot(apiID, resourceID, verb)
	if err != nil {
		return err
	}
	if ms == nil || ms.integration == nil {
		return fmt.Errorf("integration %s on %s: %w", verb, resourceID, ErrNotFound)
	}
	cur := ms.integration
	if in.Kind != "" {
		cur.Kind = in.Kind
	}
	if in.UpstreamVerb != "" {
		cur.UpstreamVerb = in.UpstreamVerb
	}
	if in.URI != "" {
		cur.URI = in.URI
	}
	if in.Passthrough != "" {
		cur.Passthrough = in.Passthrough
	}
	if in.ContentHandling != "" {
		cur.ContentHandling = in.ContentHandling
	}
	cur.RequestParameters = mergeStringMap(cur.RequestParameters, in.RequestParameters)
	cur.RequestTemplates = mergeStringMap(cur.RequestTemplates, in.RequestTemplates)
	return nil
}

func (m *Memory) PutMethodResponse(ctx context.Context, apiID, resourceID, verb string, r model.MethodResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("put-method-response"); err != nil {
		return err
	}
	m.record("put-method-response", resourceID, verb, r.Status)

	ms, err := m.methodSlot(apiID, resourceID, verb)
	if err != nil {
		return err
	}
	if ms == nil {
		return fmt.Errorf("method response %s/%s requires a method: %w", verb, r.Status, ErrConflict)
	}
	if _, ok := ms.methodResponses[r.Status]; ok {
		return fmt.Errorf("method response %s/%s: %w", verb, r.Status, ErrAlreadyExists)
	}
	ms.methodResponses[r.Status] = copyMethodResponse(r)
	return nil
}

func (m *Memory) UpdateMethodResponse(ctx context.Context, apiID, resourceID, verb string, r model.MethodResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("update-method-response"); err != nil {
		return err
	}
	m.record("update-method-response", resourceID, verb, r.Status)

	ms, err := m.methodSlot(apiID, resourceID, verb)
	if err != nil {
		return err
	}
	if ms == nil {
		return fmt.Errorf("method response %s/%s: %w", verb, r.Status, ErrNotFound)
	}
	cur, ok := ms.methodResponses[r.Status]
	if !ok {
		return fmt.Errorf("method response %s/%s: %w", verb, r.Status, ErrNotFound)
	}
	for k, v := range r.Headers {
		if cur.Headers == nil {
			cur.Headers = make(map[string]bool)
		}
		cur.Headers[k] = v
	}
	ms.methodResponses[r.Status] = cur
	return nil
}

func (m *Memory) PutIntegrationResponse(ctx context.Context, apiID, resourceID, verb string, r model.IntegrationResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("put-integration-response"); err != nil {
		return err
	}
	m.record("put-integration-response", resourceID, verb, r.Status)

	ms, err := m.methodSlot(apiID, resourceID, verb)
	if err != nil {
		return err
	}
	if ms == nil || ms.integration == nil {
		return fmt.Errorf("integration response %s/%s requires an integration: %w", verb, r.Status, ErrConflict)
	}
	if _, ok := ms.methodResponses[r.Status]; !ok {
		return fmt.Errorf("integration response %s/%s requires method response %s: %w", verb, r.Status, r.Status, ErrConflict)
	}
	if _, ok := ms.integrationResponses[r.Status]; ok {
		return fmt.Errorf("integration response %s/%s: %w", verb, r.Status, ErrAlreadyExists)
	}
	ms.integrationResponses[r.Status] = copyIntegrationResponse(r)
	return nil
}

func (m *Memory) UpdateIntegrationResponse(ctx context.Context, apiID, resourceID, verb string, r model.IntegrationResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("update-integration-response"); err != nil {
		return err
	}
	m.record("update-integration-response", resourceID, verb, r.Status)

	ms, err := m.methodSlot(apiID, resourceID, verb)
	if err != nil {
		return err
	}
	if ms == nil {
		return fmt.Errorf("integration response %s/%s: %w", verb, r.Status, ErrNotFound)
	}
	cur, ok := ms.integrationResponses[r.Status]
	if !ok {
		return fmt.Errorf("integration response %s/%s: %w", verb, r.Status, ErrNotFound)
	}
	cur.Headers = mergeStringMap(cur.Headers, r.Headers)
	cur.Templates = mergeStringMap(cur.Templates, r.Templates)
	ms.integrationResponses[r.Status] = cur
	return nil
}

func (m *Memory) CreateDeployment(ctx context.Context, apiID, stage, description string) (model.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("create-deployment"); err != nil {
		return model.Deployment{}, err
	}
	m.record("create-deployment", apiID, stage)

	st, err := m.api(apiID)
	if err != nil {
		return model.Deployment{}, err
	}
	dep := model.Deployment{
		ID:          m.nextID("d"),
		Description: description,
		CreatedAt:   time.Now(),
	}
	st.deployments = append(st.deployments, dep)
	st.stages[stage] = st.snapshot(dep.ID)
	return dep, nil
}

// Invoke simulates a live client request against a deployed stage. Only the
// stage's snapshot is consulted: configuration changes made after the last
// deployment are invisible here, which is exactly the gating the control
// plane provides.
func (m *Memory) Invoke(apiID, stage, verb, path string, headers map[string]string, body string) (UpstreamResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.api(apiID)
	if err != nil {
		return UpstreamResponse{}, err
	}
	snap, ok := st.stages[stage]
	if !ok {
		return UpstreamResponse{}, fmt.Errorf("stage %q has no deployment: %w", stage, ErrNotFound)
	}

	leafID, captures, err := snap.match(path)
	if err != nil {
		return UpstreamResponse{}, err
	}
	ms, ok := snap.methods[leafID][verb]
	if !ok {
		ms, ok = snap.methods[leafID][model.VerbAny]
	}
	if !ok {
		return UpstreamResponse{}, fmt.Errorf("no method for %s %s: %w", verb, path, ErrNotFound)
	}
	if ms.integration == nil {
		return UpstreamResponse{}, fmt.Errorf("no integration for %s %s: %w", verb, path, ErrConflict)
	}

	// Substitute the capture variable only when the request-parameter
	// mapping binds it; an unbound capture stays a literal placeholder,
	// which is the silent misconfiguration the configurator validates away.
	uri := ms.integration.URI
	for name, value := range captures {
		if _, bound := ms.integration.RequestParameters["integration.request.path."+name]; bound {
			uri = strings.ReplaceAll(uri, "{"+name+"}", value)
		}
	}

	firstHop := UpstreamRequest{
		Verb:    verb,
		URL:     uri,
		Headers: mergeStringMap(nil, headers),
		Body:    body,
	}
	resp := m.Upstream(firstHop)

	if ms.integration.Kind == model.IntegrationHTTPProxy && isRedirect(resp.Status) {
		// Opaque passthrough surfaces the redirect to the client, whose
		// follow-up request does not carry the original Authorization
		// header. Transformed forwarding never reaches this branch.
		followHeaders := mergeStringMap(nil, headers)
		delete(followHeaders, "Authorization")
		resp = m.Upstream(UpstreamRequest{
			Verb:    verb,
			URL:     resp.Headers["Location"],
			Headers: followHeaders,
			Body:    body,
		})
	}

	if ir, ok := ms.integrationResponses[fmt.Sprintf("%d", resp.Status)]; ok {
		for header, value := range ir.Headers {
			name := strings.TrimPrefix(header, "method.response.header.")
			resp.Headers = mergeStringMap(resp.Headers, map[string]string{name: unquoteLiteral(value)})
		}
	}
	return resp, nil
}

func (st *apiState) snapshot(deploymentID string) *snapshot {
	snap := &snapshot{
		deploymentID: deploymentID,
		rootID:       st.rootID,
		resources:    make(map[string]model.Resource, len(st.resources)),
		methods:      make(map[string]map[string]methodState),
	}
	for id, r := range st.resources {
		snap.resources[id] = *r
	}
	for resID, verbs := range st.methods {
		snap.methods[resID] = make(map[string]methodState, len(verbs))
		for verb, ms := range verbs {
			cp := methodState{
				method:               copyMethod(ms.method),
				methodResponses:      make(map[string]model.MethodResponse, len(ms.methodResponses)),
				integrationResponses: make(map[string]model.IntegrationResponse, len(ms.integrationResponses)),
			}
			if ms.integration != nil {
				in := copyIntegration(*ms.integration)
				cp.integration = &in
			}
			for s, r := range ms.methodResponses {
				cp.methodResponses[s] = copyMethodResponse(r)
			}
			for s, r := range ms.integrationResponses {
				cp.integrationResponses[s] = copyIntegrationResponse(r)
			}
			snap.methods[resID][verb] = cp
		}
	}
	return snap
}

// match walks a concrete request path down the snapshot tree. Literal
// children win over captures; a capture consumes every remaining segment.
func (s *snapshot) match(path string) (string, map[string]string, error) {
	segments := splitPath(path)
	current := s.rootID
	captures := make(map[string]string)

	for i := 0; i < len(segments); i++ {
		var literal, capture *model.Resource
		for id := range s.resources {
			r := s.resources[id]
			if r.ParentID != current {
				continue
			}
			if r.PathPart == segments[i] {
				literal = &r
			} else if name, ok := captureName(r.PathPart); ok && name != "" {
				capture = &r
			}
		}
		switch {
		case literal != nil:
			current = literal.ID
		case capture != nil:
			name, _ := captureName(capture.PathPart)
			captures[name] = strings.Join(segments[i:], "/")
			return capture.ID, captures, nil
		default:
			return "", nil, fmt.Errorf("no route for %q: %w", path, ErrNotFound)
		}
	}
	return current, captures, nil
}

func (m *Memory) api(apiID string) (*apiState, error) {
	st, ok := m.apis[apiID]
	if !ok {
		return nil, fmt.Errorf("api %q: %w", apiID, ErrNotFound)
	}
	return st, nil
}

// methodSlot returns the method state for (resource, verb), nil when the
// method does not exist, or an error when the resource itself is missing.
func (m *Memory) methodSlot(apiID, resourceID, verb string) (*methodState, error) {
	st, err := m.api(apiID)
	if err != nil {
		return nil, err
	}
	if _, ok := st.resources[resourceID]; !ok {
		return nil, fmt.Errorf("resource %q: %w", resourceID, ErrNotFound)
	}
	return st.methods[resourceID][verb], nil
}

func (m *Memory) record(op string, target ...string) {
	m.Calls = append(m.Calls, strings.TrimSpace(op+" "+strings.Join(target, " ")))
}

func (m *Memory) takeFailure(op string) error {
	queue := m.failures[op]
	if len(queue) == 0 {
		return nil
	}
	m.failures[op] = queue[1:]
	return queue[0]
}

func (m *Memory) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func joinPath(parentPath, pathPart string) string {
	if parentPath == "/" {
		return "/" + pathPart
	}
	return parentPath + "/" + pathPart
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// captureName extracts the variable name from a greedy capture segment
// like "{proxy+}". Returns false for literals.
func captureName(pathPart string) (string, bool) {
	if strings.HasPrefix(pathPart, "{") && strings.HasSuffix(pathPart, "+}") {
		return pathPart[1 : len(pathPart)-2], true
	}
	return "", false
}

func isRedirect(status int) bool {
	switch status {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

func unquoteLiteral(v string) string {
	if len(v) >= 2 && strings.HasPrefix(v, "'") && strings.HasSuffix(v, "'") {
		return v[1 : len(v)-1]
	}
	return v
}

func mergeStringMap(dst map[string]string, src map[string]string) map[string]string {
	if dst == nil && src == nil {
		return nil
	}
	out := make(map[string]string, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

func copyMethod(mt model.Method) model.Method {
	cp := mt
	if mt.RequestParameters != nil {
		cp.RequestParameters = make(map[string]bool, len(mt.RequestParameters))
		for k, v := range mt.RequestParameters {
			cp.RequestParameters[k] = v
		}
	}
	return cp
}

func copyIntegration(in model.Integration) model.Integration {
	cp := in
	cp.RequestParameters = mergeStringMap(nil, in.RequestParameters)
	cp.RequestTemplates = mergeStringMap(nil, in.RequestTemplates)
	return cp
}

func copyMethodResponse(r model.MethodResponse) model.MethodResponse {
	cp := r
	if r.Headers != nil {
		cp.Headers = make(map[string]bool, len(r.Headers))
		for k, v := range r.Headers {
			cp.Headers[k] = v
		}
	}
	return cp
}

func copyIntegrationResponse(r model.IntegrationResponse) model.IntegrationResponse {
	cp := r
	cp.Headers = mergeStringMap(nil, r.Headers)
	cp.Templates = mergeStringMap(nil, r.Templates)
	return cp
}
