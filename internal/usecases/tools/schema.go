package tools

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// FieldOption adds a property to an object schema.
type FieldOption func(*jsonschema.Schema)

// PropertyOption configures a single property.
type PropertyOption func(prop *jsonschema.Schema, required *bool)

// Description sets the description of a property.
func Description(description string) PropertyOption {
	return func(p *jsonschema.Schema, _ *bool) {
		p.Description = description
	}
}

// Required marks a property as required.
func Required() PropertyOption {
	return func(_ *jsonschema.Schema, required *bool) {
		*required = true
	}
}

// Fields declares the nested properties of an object property.
func Fields(fields ...FieldOption) PropertyOption {
	return func(p *jsonschema.Schema, _ *bool) {
		for _, field := range fields {
			field(p)
		}
	}
}

// WithString adds a string property.
func WithString(name string, options ...PropertyOption) FieldOption {
	return property(name, "string", options)
}

// WithNumber adds a number property.
func WithNumber(name string, options ...PropertyOption) FieldOption {
	return property(name, "number", options)
}

// WithBoolean adds a boolean property.
func WithBoolean(name string, options ...PropertyOption) FieldOption {
	return property(name, "boolean", options)
}

// WithObject adds an object property. Without Fields it accepts any object.
func WithObject(name string, options ...PropertyOption) FieldOption {
	return property(name, "object", options)
}

func property(name, typ string, options []PropertyOption) FieldOption {
	return func(s *jsonschema.Schema) {
		prop := &jsonschema.Schema{Type: typ}
		required := false
		for _, option := range options {
			option(prop, &required)
		}

		if s.Properties == nil {
			s.Properties = make(map[string]*jsonschema.Schema)
		}
		s.Properties[name] = prop
		if required {
			s.Required = append(s.Required, name)
		}
	}
}

// ObjectSchema builds an object schema from fields.
func ObjectSchema(fields ...FieldOption) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{},
	}
	for _, field := range fields {
		field(s)
	}
	return s
}
