package agent

import (
	"context"

	"github.com/zen-systems/chatmeter/pkg/fault"
)

// ToolInvoker dispatches tool and api steps to external handlers. The
// result text is folded into the running execution context.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, input string) (string, error)
}

// ToolFunc adapts a function to a tool handler.
type ToolFunc func(ctx context.Context, input string) (string, error)

// Registry is a name-keyed set of tool handlers.
type Registry struct {
	tools map[string]ToolFunc
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolFunc)}
}

// Register installs a handler under the given name, replacing any
// existing one.
func (r *Registry) Register(name string, fn ToolFunc) {
	r.tools[name] = fn
}

// Invoke dispatches to the named handler.
func (r *Registry) Invoke(ctx context.Context, name string, input string) (string, error) {
	fn, ok := r.tools[name]
	if !ok {
		return "", fault.Newf(fault.CodeValidation, "no tool registered under %q", name)
	}
	return fn(ctx, input)
}
