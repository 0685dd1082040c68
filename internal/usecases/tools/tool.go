// Package tools holds the tool registry: named, schema-validated handlers
// that always answer with a content envelope.
package tools

import (
	"context"
	"math"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/spf13/cast"

	"github.com/FreePeak/perfex-mcp-server/internal/domain"
	"github.com/FreePeak/perfex-mcp-server/internal/json"
)

// Handler runs a tool with validated arguments. It must translate every
// failure into the returned result.
type Handler func(ctx context.Context, args Arguments) domain.ToolResult

// Descriptor describes a registered tool.
type Descriptor struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Handler     Handler

	resolved *jsonschema.Resolved
}

// ToolOption configures a Descriptor.
type ToolOption func(*Descriptor)

// NewTool creates a tool descriptor. Without WithInput it takes no arguments.
func NewTool(name string, handler Handler, options ...ToolOption) *Descriptor {
	d := &Descriptor{
		Name:        name,
		Handler:     handler,
		InputSchema: ObjectSchema(),
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// WithDescription sets the description of a tool.
func WithDescription(description string) ToolOption {
	return func(d *Descriptor) {
		d.Description = description
	}
}

// WithInput sets the tool's input fields.
func WithInput(fields ...FieldOption) ToolOption {
	return func(d *Descriptor) {
		d.InputSchema = ObjectSchema(fields...)
	}
}

// Arguments are the decoded tool-call arguments.
type Arguments map[string]interface{}

// String returns a string argument or "" when absent.
func (a Arguments) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// ID returns a required positive integral argument.
func (a Arguments) ID(name string) (int64, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return 0, domain.NewValidationError(name, "is required")
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be a number")
	}
	if f != math.Trunc(f) || f < 1 || f > math.MaxInt64 {
		return 0, domain.NewValidationError(name, "must be a positive integer")
	}
	return int64(f), nil
}

// Decode converts the named argument into target. Absent arguments leave
// target untouched.
func (a Arguments) Decode(name string, target interface{}) error {
	v, ok := a[name]
	if !ok || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return domain.NewValidationError(name, err.Error())
	}
	if err := json.Unmarshal(data, target); err != nil {
		return domain.NewValidationError(name, err.Error())
	}
	return nil
}

func parseArguments(raw json.RawMessage) (Arguments, error) {
	args := Arguments{}
	if len(raw) == 0 || string(raw) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, domain.NewValidationError("", "arguments must be a JSON object")
	}
	if args == nil {
		args = Arguments{}
	}
	return args, nil
}
