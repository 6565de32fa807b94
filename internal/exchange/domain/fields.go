package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldSpec describes one field of a method's JSON schema: the payment
// details a requisite publishes, or the proof the paying side must supply.
type FieldSpec struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Required bool   `json:"required"`
}

// ParseFieldSchema decodes a JSON schema string into its field specs. An
// empty schema yields no specs.
func ParseFieldSchema(schema string) ([]FieldSpec, error) {
	if strings.TrimSpace(schema) == "" {
		return nil, nil
	}
	var specs []FieldSpec
	if err := json.Unmarshal([]byte(schema), &specs); err != nil {
		return nil, fmt.Errorf("parse field schema: %w", err)
	}
	return specs, nil
}

// ValidateFields checks a JSON payload against a schema: every required
// field must be present and non-empty, and no unknown fields are accepted.
// Without a schema only a non-empty payload is required.
func ValidateFields(schema, payload string) error {
	if strings.TrimSpace(payload) == "" {
		return ErrConfirmationFields
	}
	specs, err := ParseFieldSchema(schema)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfirmationFields, err)
	}
	if len(specs) == 0 {
		return nil
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return fmt.Errorf("%w: %v", ErrConfirmationFields, err)
	}
	known := make(map[string]bool, len(specs))
	for _, spec := range specs {
		known[spec.Name] = true
		if spec.Required && values[spec.Name] == "" {
			return fmt.Errorf("%w: missing %s", ErrConfirmationFields, spec.Name)
		}
	}
	for name := range values {
		if !known[name] {
			return fmt.Errorf("%w: unknown field %s", ErrConfirmationFields, name)
		}
	}
	return nil
}
