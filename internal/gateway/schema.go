package gateway

import "google.golang.org/genai"

// Kind enumerates the primitive shapes a SchemaDescriptor can describe.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
)

// SchemaDescriptor is an abstract, recursive description of an expected
// structured output: primitives, nested objects with required/optional
// fields, arrays and enumerations. The pipeline does not care how the
// constraint is enforced downstream, only that a conforming object comes
// back.
type SchemaDescriptor struct {
	Type        Kind                         `json:"type"`
	Description string                       `json:"description,omitempty"`
	Properties  map[string]*SchemaDescriptor `json:"properties,omitempty"`
	Required    []string                     `json:"required,omitempty"`
	Items       *SchemaDescriptor            `json:"items,omitempty"`
	Enum        []string                     `json:"enum,omitempty"`
}

// Object is a convenience constructor for an object schema where every
// listed field is required.
func Object(fields map[string]*SchemaDescriptor) *SchemaDescriptor {
	required := make([]string, 0, len(fields))
	for name := range fields {
		required = append(required, name)
	}
	return &SchemaDescriptor{Type: KindObject, Properties: fields, Required: required}
}

// Array wraps an item schema.
func Array(items *SchemaDescriptor) *SchemaDescriptor {
	return &SchemaDescriptor{Type: KindArray, Items: items}
}

// String returns a string schema with an optional description.
func String(description string) *SchemaDescriptor {
	return &SchemaDescriptor{Type: KindString, Description: description}
}

// Number returns a number schema with an optional description.
func Number(description string) *SchemaDescriptor {
	return &SchemaDescriptor{Type: KindNumber, Description: description}
}

// Enum returns a string schema constrained to the given values.
func Enum(values ...string) *SchemaDescriptor {
	return &SchemaDescriptor{Type: KindString, Enum: values}
}

// toGenAISchema converts the descriptor into the provider schema type.
func toGenAISchema(d *SchemaDescriptor) *genai.Schema {
	if d == nil {
		return nil
	}

	s := &genai.Schema{Description: d.Description}
	switch d.Type {
	case KindString:
		s.Type = genai.TypeString
	case KindNumber:
		s.Type = genai.TypeNumber
	case KindInteger:
		s.Type = genai.TypeInteger
	case KindBoolean:
		s.Type = genai.TypeBoolean
	case KindArray:
		s.Type = genai.TypeArray
		s.Items = toGenAISchema(d.Items)
	case KindObject:
		s.Type = genai.TypeObject
		if len(d.Properties) > 0 {
			s.Properties = make(map[string]*genai.Schema, len(d.Properties))
			for name, prop := range d.Properties {
				s.Properties[name] = toGenAISchema(prop)
			}
		}
		s.Required = d.Required
	default:
		s.Type = genai.TypeString
	}
	if len(d.Enum) > 0 {
		s.Enum = d.Enum
	}
	return s
}
