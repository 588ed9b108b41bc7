package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/apigateway/types"
	"github.com/aws/smithy-go"

	"github.com/smartexpense/gatewayctl/internal/model"
)

// AWS implements Client against the API Gateway control plane
type AWS struct {
	api *apigateway.Client
}

// NewAWS builds a client from the default credential chain for the region
func NewAWS(ctx context.Context, region string) (*AWS, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &AWS{api: apigateway.NewFromConfig(cfg)}, nil
}

func (a *AWS) LookupAPI(ctx context.Context, name string) (model.RestAPI, error) {
	var matches []model.RestAPI
	var position *string
	for {
		out, err := a.api.GetRestApis(ctx, &apigateway.GetRestApisInput{
			Limit:    aws.Int32(500),
			Position: position,
		})
		if err != nil {
			return model.RestAPI{}, fmt.Errorf("failed to list apis: %w", classify(err))
		}
		for _, item := range out.Items {
			if aws.ToString(item.Name) == name {
				matches = append(matches, model.RestAPI{
					ID:   aws.ToString(item.Id),
					Name: aws.ToString(item.Name),
				})
			}
		}
		if out.Position == nil {
			break
		}
		position = out.Position
	}
	switch len(matches) {
	case 0:
		return model.RestAPI{}, fmt.Errorf("api %q: %w", name, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return model.RestAPI{}, fmt.Errorf("api name %q matches %d apis: %w", name, len(matches), ErrConflict)
	}
}

func (a *AWS) ListResources(ctx context.Context, apiID string) ([]model.Resource, error) {
	var resources []model.Resource
	var position *string
	for {
		out, err := a.api.GetResources(ctx, &apigateway.GetResourcesInput{
			RestApiId: aws.String(apiID),
			Limit:     aws.Int32(500),
			Position:  position,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list resources: %w", classify(err))
		}
		for _, item := range out.Items {
			resources = append(resources, model.Resource{
				ID:       aws.ToString(item.Id),
				ParentID: aws.ToString(item.ParentId),
				PathPart: aws.ToString(item.PathPart),
				Path:     aws.ToString(item.Path),
			})
		}
		if out.Position == nil {
			break
		}
		position = out.Position
	}
	return resources, nil
}

func (a *AWS) CreateResource(ctx context.Context, apiID, parentID, pathPart string) (model.Resource, error) {
	out, err := a.api.CreateResource(ctx, &apigateway.CreateResourceInput{
		RestApiId: aws.String(apiID),
		ParentId:  aws.String(parentID),
		PathPart:  aws.String(pathPart),
	})
	if err != nil {
		return model.Resource{}, fmt.Errorf("failed to create resource %q: %w", pathPart, classify(err))
	}
	return model.Resource{
		ID:       aws.ToString(out.Id),
		ParentID: aws.ToString(out.ParentId),
		PathPart: aws.ToString(out.PathPart),
		Path:     aws.ToString(out.Path),
	}, nil
}

func (a *AWS) DeleteResource(ctx context.Context, apiID, resourceID string) error {
	_, err := a.api.DeleteResource(ctx, &apigateway.DeleteResourceInput{
		RestApiId:  aws.String(apiID),
		ResourceId: aws.String(resourceID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete resource %s: %w", resourceID, classify(err))
	}
	return nil
}

func (a *AWS) PutMethod(ctx context.Context, apiID, resourceID string, m model.Method) error {
	_, err := a.api.PutMethod(ctx, &apigateway.PutMethodInput{
		RestApiId:         aws.String(apiID),
		ResourceId:        aws.String(resourceID),
		HttpMethod:        aws.String(m.Verb),
		AuthorizationType: aws.String(m.Authorization),
		RequestParameters: m.RequestParameters,
	})
	if err != nil {
		return fmt.Errorf("failed to put method %s: %w", m.Verb, classify(err))
	}
	return nil
}

func (a *AWS) UpdateMethod(ctx context.Context, apiID, resourceID string, m model.Method) error {
	var ops []types.PatchOperation
	if m.Authorization != "" {
		ops = append(ops, patchReplace("/authorizationType", m.Authorization))
	}
	for _, key := range sortedKeysBool(m.RequestParameters) {
		ops = append(ops, patchReplace(
			"/requestParameters/"+escapePointer(key),
			fmt.Sprintf("%t", m.RequestParameters[key]),
		))
	}
	_, err := a.api.UpdateMethod(ctx, &apigateway.UpdateMethodInput{
		RestApiId:       aws.String(apiID),
		ResourceId:      aws.String(resourceID),
		HttpMethod:      aws.String(m.Verb),
		PatchOperations: ops,
	})
	if err != nil {
		return fmt.Errorf("failed to update method %s: %w", m.Verb, classify(err))
	}
	return nil
}

func (a *AWS) GetIntegration(ctx context.Context, apiID, resourceID, verb string) (model.Integration, error) {
	out, err := a.api.GetIntegration(ctx, &apigateway.GetIntegrationInput{
		RestApiId:  aws.String(apiID),
		ResourceId: aws.String(resourceID),
		HttpMethod: aws.String(verb),
	})
	if err != nil {
		return model.Integration{}, fmt.Errorf("failed to get integration %s: %w", verb, classify(err))
	}
	return model.Integration{
		Kind:              string(out.Type),
		UpstreamVerb:      aws.ToString(out.HttpMethod),
		URI:               aws.ToString(out.Uri),
		RequestParameters: out.RequestParameters,
		RequestTemplates:  out.RequestTemplates,
		Passthrough:       aws.ToString(out.PassthroughBehavior),
		ContentHandling:   string(out.ContentHandling),
	}, nil
}

func (a *AWS) PutIntegration(ctx context.Context, apiID, resourceID, verb string, in model.Integration) error {
	input := &apigateway.PutIntegrationInput{
		RestApiId:             aws.String(apiID),
		ResourceId:            aws.String(resourceID),
		HttpMethod:            aws.String(verb),
		Type:                  types.IntegrationType(in.Kind),
		IntegrationHttpMethod: aws.String(in.UpstreamVerb),
		Uri:                   aws.String(in.URI),
		RequestParameters:     in.RequestParameters,
		RequestTemplates:      in.RequestTemplates,
	}
	if in.Passthrough != "" {
		input.PassthroughBehavior = aws.String(in.Passthrough)
	}
	if in.ContentHandling != "" {
		input.ContentHandling = types.ContentHandlingStrategy(in.ContentHandling)
	}
	_, err := a.api.PutIntegration(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to put integration %s: %w", verb, classify(err))
	}
	return nil
}

func (a *AWS) UpdateIntegration(ctx context.Context, apiID, resourceID, verb string, in model.Integration) error {
	var ops []types.PatchOperation
	if in.URI != "" {
		ops = append(ops, patchReplace("/uri", in.URI))
	}
	if in.UpstreamVerb != "" {
		ops = append(ops, patchReplace("/httpMethod", in.UpstreamVerb))
	}
	if in.Passthrough != "" {
		ops = append(ops, patchReplace("/passthroughBehavior", in.Passthrough))
	}
	if in.ContentHandling != "" {
		ops = append(ops, patchReplace("/contentHandling", in.ContentHandling))
	}
	for _, key := range sortedKeys(in.RequestParameters) {
		ops = append(ops, patchReplace("/requestParameters/"+escapePointer(key), in.RequestParameters[key]))
	}
	for _, key := range sortedKeys(in.RequestTemplates) {
		ops = append(ops, patchReplace("/requestTemplates/"+escapePointer(key), in.RequestTemplates[key]))
	}
	_, err := a.api.UpdateIntegration(ctx, &apigateway.UpdateIntegrationInput{
		RestApiId:       aws.String(apiID),
		ResourceId:      aws.String(resourceID),
		HttpMethod:      aws.String(verb),
		PatchOperations: ops,
	})
	if err != nil {
		return fmt.Errorf("failed to update integration %s: %w", verb, classify(err))
	}
	return nil
}

func (a *AWS) PutMethodResponse(ctx context.Context, apiID, resourceID, verb string, r model.MethodResponse) error {
	_, err := a.api.PutMethodResponse(ctx, &apigateway.PutMethodResponseInput{
		RestApiId:          aws.String(apiID),
		ResourceId:         aws.String(resourceID),
		HttpMethod:         aws.String(verb),
		StatusCode:         aws.String(r.Status),
		ResponseParameters: r.Headers,
	})
	if err != nil {
		return fmt.Errorf("failed to put method response %s/%s: %w", verb, r.Status, classify(err))
	}
	return nil
}

func (a *AWS) UpdateMethodResponse(ctx context.Context, apiID, resourceID, verb string, r model.MethodResponse) error {
	var ops []types.PatchOperation
	for _, key := range sortedKeysBool(r.Headers) {
		ops = append(ops, patchReplace(
			"/responseParameters/"+escapePointer(key),
			fmt.Sprintf("%t", r.Headers[key]),
		))
	}
	_, err := a.api.UpdateMethodResponse(ctx, &apigateway.UpdateMethodResponseInput{
		RestApiId:       aws.String(apiID),
		ResourceId:      aws.String(resourceID),
		HttpMethod:      aws.String(verb),
		StatusCode:      aws.String(r.Status),
		PatchOperations: ops,
	})
	if err != nil {
		return fmt.Errorf("failed to update method response %s/%s: %w", verb, r.Status, classify(err))
	}
	return nil
}

func (a *AWS) PutIntegrationResponse(ctx context.Context, apiID, resourceID, verb string, r model.IntegrationResponse) error {
	_, err := a.api.PutIntegrationResponse(ctx, &apigateway.PutIntegrationResponseInput{
		RestApiId:          aws.String(apiID),
		ResourceId:         aws.String(resourceID),
		HttpMethod:         aws.String(verb),
		StatusCode:         aws.String(r.Status),
		ResponseParameters: r.Headers,
		ResponseTemplates:  r.Templates,
	})
	if err != nil {
		return fmt.Errorf("failed to put integration response %s/%s: %w", verb, r.Status, classify(err))
	}
	return nil
}

func (a *AWS) UpdateIntegrationResponse(ctx context.Context, apiID, resourceID, verb string, r model.IntegrationResponse) error {
	var ops []types.PatchOperation
	for _, key := range sortedKeys(r.Headers) {
		ops = append(ops, patchReplace("/responseParameters/"+escapePointer(key), r.Headers[key]))
	}
	for _, key := range sortedKeys(r.Templates) {
		ops = append(ops, patchReplace("/responseTemplates/"+escapePointer(key), r.Templates[key]))
	}
	_, err := a.api.UpdateIntegrationResponse(ctx, &apigateway.UpdateIntegrationResponseInput{
		RestApiId:       aws.String(apiID),
		ResourceId:      aws.String(resourceID),
		HttpMethod:      aws.String(verb),
		StatusCode:      aws.String(r.Status),
		PatchOperations: ops,
	})
	if err != nil {
		return fmt.Errorf("failed to update integration response %s/%s: %w", verb, r.Status, classify(err))
	}
	return nil
}

func (a *AWS) CreateDeployment(ctx context.Context, apiID, stage, description string) (model.Deployment, error) {
	out, err := a.api.CreateDeployment(ctx, &apigateway.CreateDeploymentInput{
		RestApiId:   aws.String(apiID),
		StageName:   aws.String(stage),
		Description: aws.String(description),
	})
	if err != nil {
		return model.Deployment{}, fmt.Errorf("failed to create deployment for stage %s: %w", stage, classify(err))
	}
	dep := model.Deployment{
		ID:          aws.ToString(out.Id),
		Description: aws.ToString(out.Description),
	}
	if out.CreatedDate != nil {
		dep.CreatedAt = *out.CreatedDate
	}
	return dep, nil
}

// classify maps control-plane errors onto the local failure taxonomy
func classify(err error) error {
	var notFound *types.NotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w", aws.ToString(notFound.Message), ErrNotFound)
	}
	var conflict *types.ConflictException
	if errors.As(err, &conflict) {
		msg := aws.ToString(conflict.Message)
		if strings.Contains(strings.ToLower(msg), "already exist") {
			return fmt.Errorf("%s: %w", msg, ErrAlreadyExists)
		}
		return fmt.Errorf("%s: %w", msg, ErrConflict)
	}
	var unauthorized *types.UnauthorizedException
	if errors.As(err, &unauthorized) {
		return fmt.Errorf("%s: %w", aws.ToString(unauthorized.Message), ErrPermissionDenied)
	}
	var throttled *types.TooManyRequestsException
	if errors.As(err, &throttled) {
		return fmt.Errorf("%s: %w", aws.ToString(throttled.Message), ErrTransient)
	}
	var limited *types.LimitExceededException
	if errors.As(err, &limited) {
		return fmt.Errorf("%s: %w", aws.ToString(limited.Message), ErrTransient)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "AccessDenied":
			return fmt.Errorf("%s: %w", apiErr.ErrorMessage(), ErrPermissionDenied)
		case "ServiceUnavailable", "ServiceUnavailableException", "RequestTimeout":
			return fmt.Errorf("%s: %w", apiErr.ErrorMessage(), ErrTransient)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, ErrTransient)
	}
	// Everything without an API error shape is a transport problem.
	return fmt.Errorf("%v: %w", err, ErrTransient)
}

func patchReplace(path, value string) types.PatchOperation {
	return types.PatchOperation{
		Op:    types.OpReplace,
		Path:  aws.String(path),
		Value: aws.String(value),
	}
}

// escapePointer escapes a map key for use in a JSON-pointer patch path,
// which matters for content-type keys like application/json.
func escapePointer(key string) string {
	key = strings.ReplaceAll(key, "~", "~0")
	return strings.ReplaceAll(key, "/", "~1")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysBool(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
