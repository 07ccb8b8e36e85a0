// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrValidation marks a tool input that does not satisfy the tool's
// declared schema. The wrapping error names the offending field.
var ErrValidation = errors.New("tool: input validation failed")

// inputSchema is the flat JSON-Schema subset tools declare: an object
// with typed properties, required field names, and optional string
// enums. Fields not listed in properties are permitted (open schema) —
// the model is allowed to send more than the tool documents.
type inputSchema struct {
	Type       string                    `json:"type"`
	Required   []string                  `json:"required"`
	Properties map[string]propertySchema `json:"properties"`
}

type propertySchema struct {
	Type string   `json:"type"`
	Enum []string `json:"enum"`
}

// validateInput checks a decoded tool input against the tool's
// schema. An empty schema accepts anything; a non-empty schema must
// declare type "object" at the top level.
func validateInput(schemaJSON json.RawMessage, input map[string]any) error {
	if len(schemaJSON) == 0 {
		return nil
	}

	var schema inputSchema
	if err := json.Unmarshal(schemaJSON, &schema); err != nil {
		return fmt.Errorf("%w: unreadable schema: %v", ErrValidation, err)
	}

	if schema.Type != "object" {
		return fmt.Errorf("%w: schema type must be object, got %q", ErrValidation, schema.Type)
	}

	for _, required := range schema.Required {
		if _, present := input[required]; !present {
			return fmt.Errorf("%w: missing required field %q", ErrValidation, required)
		}
	}

	for field, value := range input {
		property, declared := schema.Properties[field]
		if !declared {
			continue
		}
		if property.Type != "" && !matchesType(value, property.Type) {
			return fmt.Errorf("%w: field %q: expected %s, got %T", ErrValidation, field, property.Type, value)
		}
		if len(property.Enum) > 0 {
			if err := matchesEnum(value, property.Enum); err != nil {
				return fmt.Errorf("%w: field %q: %v", ErrValidation, field, err)
			}
		}
	}

	return nil
}

// matchesType checks a decoded JSON value against a schema type name.
// JSON numbers decode to float64; "integer" additionally requires a
// zero fractional part.
func matchesType(value any, schemaType string) bool {
	switch schemaType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		number, ok := value.(float64)
		return ok && number == math.Trunc(number)
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		// Unknown schema types don't constrain the value.
		return true
	}
}

func matchesEnum(value any, enum []string) error {
	text, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected one of %v, got non-string %T", enum, value)
	}
	for _, member := range enum {
		if text == member {
			return nil
		}
	}
	return fmt.Errorf("value %q not in enum %v", text, enum)
}
