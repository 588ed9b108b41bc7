package loader

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/smartexpense/gatewayctl/internal/model"
	"github.com/smartexpense/gatewayctl/internal/schema"
)

// LoadDesired loads, schema-validates and normalizes a desired-state YAML
// file. Unknown keys are rejected at this stage rather than silently
// ignored, both by the schema and by the strict decoder.
func LoadDesired(path string) (*model.Desired, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read desired-state file: %w", err)
	}
	return ParseDesired(data)
}

// ParseDesired parses and normalizes a desired-state document from bytes
func ParseDesired(data []byte) (*model.Desired, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse desired-state YAML: %w", err)
	}

	validator, err := schema.NewValidator()
	if err != nil {
		return nil, err
	}
	doc, err := schema.Roundtrip(raw)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateDesired(doc); err != nil {
		return nil, err
	}

	var desired model.Desired
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&desired); err != nil {
		return nil, fmt.Errorf("failed to decode desired state: %w", err)
	}

	if err := Normalize(&desired); err != nil {
		return nil, err
	}
	return &desired, nil
}
