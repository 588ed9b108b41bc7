package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/smartexpense/gatewayctl/internal/model"
)

// Renderer materializes plans and run reports for the CLI
type Renderer struct{}

// NewRenderer creates a new renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderJSON renders a plan as JSON
func (r *Renderer) RenderJSON(plan *model.Plan) ([]byte, error) {
	return json.MarshalIndent(plan, "", "  ")
}

// RenderYAML renders a plan as YAML
func (r *Renderer) RenderYAML(plan *model.Plan) ([]byte, error) {
	return yaml.Marshal(plan)
}

// WritePlan writes a plan to file (JSON or YAML based on extension)
func (r *Renderer) WritePlan(plan *model.Plan, path string) error {
	var data []byte
	var err error

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = r.RenderYAML(plan)
	default:
		data, err = r.RenderJSON(plan)
	}
	if err != nil {
		return fmt.Errorf("failed to render plan: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write plan to %s: %w", path, err)
	}
	return nil
}

// PlanText returns a human-readable view of the step sequence
func (r *Renderer) PlanText(plan *model.Plan) string {
	output := fmt.Sprintf("Plan: api=%s stage=%s (%d steps)\n", plan.API, plan.Stage, len(plan.Steps))
	for i, step := range plan.Steps {
		prefix := "├─"
		if i == len(plan.Steps)-1 {
			prefix = "└─"
		}
		output += fmt.Sprintf("%s %d. %s", prefix, i+1, step.Name)
		if step.Target != "" {
			output += fmt.Sprintf(" [%s]", step.Target)
		}
		if step.Detail != "" {
			output += fmt.Sprintf(": %s", step.Detail)
		}
		output += "\n"
	}
	return output
}

// ReportText summarizes a run: what completed, what failed, and whether the
// deployment step was reached, since only a published deployment activates
// configuration changes.
func (r *Renderer) ReportText(report *model.Report) string {
	var output string
	for _, name := range report.Completed {
		output += fmt.Sprintf("✓ %s\n", name)
	}
	if report.FailedStep != "" {
		output += fmt.Sprintf("✗ failed at step %q\n", report.FailedStep)
	}
	if report.Published {
		output += fmt.Sprintf("✓ deployment %s published\n", report.Deployment.ID)
		if report.InvokeURL != "" {
			output += fmt.Sprintf("✓ public URL: %s\n", report.InvokeURL)
		}
	} else {
		output += "✗ deployment not published; configuration changes are not live\n"
	}
	return output
}
