package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RequiredToolNames is the fixed set of built-in tools every catalog must
// include regardless of the custom agent's own tool list (§4.F "Tool
// catalog assembly").
var RequiredToolNames = []string{"reportProgress", "todoInit", "todoUpdate", "sendImage"}

// Registry is a thread-safe lookup of built-in tools by name, with
// compiled JSON-schema validators cached per tool.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	validators map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), validators: make(map[string]*jsonschema.Schema)}
}

// Register adds a tool, compiling its input schema eagerly so a bad
// schema fails at wiring time rather than on first use.
func (r *Registry) Register(t Tool) error {
	compiler := jsonschema.NewCompiler()
	resourceName := t.Name() + ".schema.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(t.Schema())); err != nil {
		return fmt.Errorf("tools: add schema resource for %s: %w", t.Name(), err)
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("tools: compile schema for %s: %w", t.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.validators[t.Name()] = schema
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool, in no particular order.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Validate checks input against the tool's compiled schema.
func (r *Registry) Validate(name string, input json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.validators[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tools: no schema registered for %s", name)
	}
	var doc any
	if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("tools: invalid input JSON for %s: %w", name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("tools: %s input failed validation: %w", name, err)
	}
	return nil
}

// NewBuiltinRegistry builds a registry pre-populated with the required
// tool set (§4.F "Tool catalog assembly"). todos backs todoInit/todoUpdate;
// reportProgress and sendImage are stateless stubs.
func NewBuiltinRegistry(todos *TodoStore) (*Registry, error) {
	r := NewRegistry()
	builtins := []Tool{
		NewReportProgressTool(),
		NewTodoInitTool(todos),
		NewTodoUpdateTool(todos),
		NewSendImageTool(),
	}
	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}
