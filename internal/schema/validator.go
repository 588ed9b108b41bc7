package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed desired.schema.yaml
var desiredSchemaYAML []byte

// Validator handles JSON schema validation of desired-state documents
type Validator struct {
	desired *jsonschema.Schema
}

// NewValidator compiles the embedded desired-state schema
func NewValidator() (*Validator, error) {
	desired, err := compileSchema(desiredSchemaYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to compile desired-state schema: %w", err)
	}
	return &Validator{desired: desired}, nil
}

// ValidateDesired validates a raw desired-state document against the schema.
// The document must be JSON-decoded (maps, float64/int, strings); use
// Roundtrip on YAML-decoded values first.
func (v *Validator) ValidateDesired(doc interface{}) error {
	if err := v.desired.Validate(doc); err != nil {
		return fmt.Errorf("desired state failed schema validation: %w", err)
	}
	return nil
}

// Roundtrip converts a YAML-decoded value into its JSON-decoded equivalent,
// which is what the schema compiler expects to validate.
func Roundtrip(doc interface{}) (interface{}, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return out, nil
}

// compileSchema compiles a schema written in YAML (or JSON)
func compileSchema(raw []byte) (*jsonschema.Schema, error) {
	var schemaData interface{}
	if err := yaml.Unmarshal(raw, &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	jsonData, err := json.Marshal(schemaData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	schema, err := jsonschema.CompileString("desired.schema.json", string(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}
