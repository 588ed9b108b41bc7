package model

// Plan is the ordered sequence of control-plane steps for one reconciliation run
type Plan struct {
	APIVersion string     `json:"apiVersion" yaml:"apiVersion"`
	Kind       string     `json:"kind" yaml:"kind"`
	Metadata   Metadata   `json:"metadata" yaml:"metadata"`
	API        string     `json:"api" yaml:"api"`
	Stage      string     `json:"stage" yaml:"stage"`
	Steps      []PlanStep `json:"steps" yaml:"steps"`
}

// PlanStep is one control-plane mutation in the plan.
// Steps are strictly ordered: each one depends on identifiers produced
// by the previous ones.
type PlanStep struct {
	Name   string `json:"name" yaml:"name"`
	Action string `json:"action" yaml:"action"` // resolve, teardown, put-method, ...
	Target string `json:"target" yaml:"target"` // path, verb or status code the step touches
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Report records the outcome of executing a plan
type Report struct {
	Completed  []string // names of steps that succeeded, in order
	FailedStep string   // empty on full success
	Published  bool     // whether the deployment step was reached and succeeded
	Deployment Deployment
	InvokeURL  string
}
