package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/smartexpense/gatewayctl/internal/gateway"
	"github.com/smartexpense/gatewayctl/internal/model"
)

// Segment is one element of a path template. A segment is either a literal
// or a greedy capture; the two kinds never match each other.
type Segment struct {
	Name    string
	Capture bool
}

// PathPart renders the segment in the control plane's path-part form
func (s Segment) PathPart() string {
	if s.Capture {
		return "{" + s.Name + "+}"
	}
	return s.Name
}

// ParseTemplate splits a slash-separated path template into segments.
// Captures are written {name+} and may only appear as the final segment,
// since they greedily consume everything that follows.
func ParseTemplate(path string) ([]Segment, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("path template %q must start with /", path)
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		return nil, fmt.Errorf("path template %q has no segments", path)
	}

	segments := make([]Segment, 0, len(parts))
	for i, part := range parts {
		switch {
		case part == "":
			return nil, fmt.Errorf("path template %q has an empty segment", path)
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "+}"):
			name := part[1 : len(part)-2]
			if name == "" {
				return nil, fmt.Errorf("capture segment %q has no variable name", part)
			}
			if i != len(parts)-1 {
				return nil, fmt.Errorf("capture segment %q must be the last segment of %q", part, path)
			}
			segments = append(segments, Segment{Name: name, Capture: true})
		case strings.ContainsAny(part, "{}"):
			return nil, fmt.Errorf("unsupported segment %q in %q: only literals and greedy captures {name+} are allowed", part, path)
		default:
			segments = append(segments, Segment{Name: part})
		}
	}
	return segments, nil
}

// CaptureVar returns the capture variable name of a template, if any
func CaptureVar(segments []Segment) (string, bool) {
	for _, s := range segments {
		if s.Capture {
			return s.Name, true
		}
	}
	return "", false
}

// Resolver maps path templates onto resource nodes, creating missing ones.
// It never deletes: tearing a subtree down is an explicit caller decision.
type Resolver struct {
	client gateway.Client
}

func New(client gateway.Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve walks the template from the root, descending into the child that
// matches each segment and creating children that do not exist yet. It
// returns the leaf resource. Re-resolving the same template is idempotent.
func (r *Resolver) Resolve(ctx context.Context, apiID string, segments []Segment) (model.Resource, error) {
	current, missing, err := r.Walk(ctx, apiID, segments)
	if err != nil {
		return model.Resource{}, err
	}
	for _, seg := range missing {
		created, err := r.client.CreateResource(ctx, apiID, current.ID, seg.PathPart())
		if err != nil {
			return model.Resource{}, fmt.Errorf("failed to create segment %q under %q: %w", seg.PathPart(), current.Path, err)
		}
		current = created
	}
	return current, nil
}

// Lookup walks the template without creating anything. The boolean reports
// whether every segment, leaf included, already exists.
func (r *Resolver) Lookup(ctx context.Context, apiID string, segments []Segment) (model.Resource, bool, error) {
	deepest, missing, err := r.Walk(ctx, apiID, segments)
	if err != nil {
		return model.Resource{}, false, err
	}
	if len(missing) > 0 {
		return model.Resource{}, false, nil
	}
	return deepest, true, nil
}

// Walk descends the template as far as existing resources allow. It returns
// the deepest matched node (the root when nothing matches) and the suffix of
// segments that do not exist yet.
func (r *Resolver) Walk(ctx context.Context, apiID string, segments []Segment) (model.Resource, []Segment, error) {
	tree, err := r.load(ctx, apiID)
	if err != nil {
		return model.Resource{}, nil, err
	}

	current := tree.root
	for i, seg := range segments {
		child, found, err := tree.matchChild(current.ID, seg)
		if err != nil {
			return model.Resource{}, nil, err
		}
		if !found {
			return current, segments[i:], nil
		}
		current = child
	}
	return current, nil, nil
}

// tree is a one-shot index of an API's resources
type tree struct {
	root     model.Resource
	children map[string][]model.Resource
}

func (r *Resolver) load(ctx context.Context, apiID string) (*tree, error) {
	resources, err := r.client.ListResources(ctx, apiID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	t := &tree{children: make(map[string][]model.Resource)}
	var rootFound bool
	for _, res := range resources {
		if res.ParentID == "" {
			t.root = res
			rootFound = true
			continue
		}
		t.children[res.ParentID] = append(t.children[res.ParentID], res)
	}
	if !rootFound {
		return nil, fmt.Errorf("api %q has no root resource: %w", apiID, gateway.ErrNotFound)
	}
	return t, nil
}

// matchChild finds the child of parentID matching the segment. Matching is
// kind-aware: a literal only matches a literal path part, a capture only a
// capture with the same variable name. More than one match is ambiguity.
func (t *tree) matchChild(parentID string, seg Segment) (model.Resource, bool, error) {
	var matches []model.Resource
	for _, child := range t.children[parentID] {
		name, isCapture := captureName(child.PathPart)
		if seg.Capture {
			if isCapture && name == seg.Name {
				matches = append(matches, child)
			}
		} else if !isCapture && child.PathPart == seg.Name {
			matches = append(matches, child)
		}
	}
	switch len(matches) {
	case 0:
		return model.Resource{}, false, nil
	case 1:
		return matches[0], true, nil
	default:
		return model.Resource{}, false, fmt.Errorf("segment %q matches %d children: %w", seg.PathPart(), len(matches), gateway.ErrConflict)
	}
}

func captureName(pathPart string) (string, bool) {
	if strings.HasPrefix(pathPart, "{") && strings.HasSuffix(pathPart, "+}") {
		return pathPart[1 : len(pathPart)-2], true
	}
	return "", false
}
