package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/FreePeak/perfex-mcp-server/internal/domain"
	"github.com/FreePeak/perfex-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/perfex-mcp-server/internal/json"
)

// Registry maps tool names to descriptors. Tools are registered at startup
// and never change afterwards.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Descriptor
	logger *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		tools:  make(map[string]*Descriptor),
		logger: logger.Named("tools"),
	}
}

// Register adds tools to the registry. It panics on an empty or duplicate
// name, a missing handler or an unusable schema.
func (r *Registry) Register(descriptors ...*Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range descriptors {
		if d == nil || d.Name == "" {
			panic("tools: tool name must not be empty")
		}
		if d.Handler == nil {
			panic(fmt.Sprintf("tools: tool %q has no handler", d.Name))
		}
		if _, exists := r.tools[d.Name]; exists {
			panic(fmt.Sprintf("tools: tool %q registered twice", d.Name))
		}
		if d.InputSchema == nil {
			d.InputSchema = ObjectSchema()
		}
		resolved, err := d.InputSchema.Resolve(nil)
		if err != nil {
			panic(fmt.Sprintf("tools: invalid schema for %q: %v", d.Name, err))
		}
		d.resolved = resolved
		r.tools[d.Name] = d
	}
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// List returns every descriptor sorted by name.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Invoke validates raw against the tool's schema and runs the handler. It
// never returns an error: unknown tools, bad input and handler panics all
// come back as error content.
func (r *Registry) Invoke(ctx context.Context, name string, raw json.RawMessage) (result domain.ToolResult) {
	d, ok := r.Get(name)
	if !ok {
		err := domain.NewToolNotFoundError(name)
		r.logger.Warn("Unknown tool", logging.Fields{"tool": name})
		return domain.ErrorResult("Error: %v", err)
	}

	args, err := parseArguments(raw)
	if err == nil {
		err = d.resolved.Validate(map[string]interface{}(args))
	}
	if err != nil {
		r.logger.Warn("Invalid tool arguments", logging.Fields{"tool": name, "error": err})
		return domain.ErrorResult("Invalid arguments for %s: %v", name, err)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Tool panicked", logging.Fields{"tool": name, "panic": fmt.Sprint(p)})
			result = domain.ErrorResult("Error running %s", name)
		}
	}()

	result = d.Handler(ctx, args)
	if len(result.Content) == 0 {
		result = domain.TextResult("")
	}
	return result
}
