// Package tool holds the gateway's tool capability records and the engine
// that runs model-emitted tool calls against them.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sweetpotato0/modelgate/provider"
)

// Per-call error kinds. They are recorded on individual results and never
// abort sibling calls.
var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidArguments = errors.New("invalid tool arguments")
	ErrExecution        = errors.New("tool execution failed")
)

// Handler executes a tool with validated arguments.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Definition is an explicit capability record: name, argument schema,
// injection rules and the executor. No dynamic method binding.
type Definition struct {
	Name        string
	Description string
	// Schema is the JSON Schema for the argument object. Arguments failing
	// validation are rejected before the handler runs.
	Schema json.RawMessage
	// Inject maps argument names to ambient context keys. An injection only
	// happens when the caller omitted the argument and the ambient value is
	// present.
	Inject  map[string]string
	Handler Handler
}

// ValidateArgs checks an argument object against the definition's schema.
func (d *Definition) ValidateArgs(args map[string]any) error {
	if len(d.Schema) == 0 {
		return nil
	}
	schema, err := compileSchema(d.Schema)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", d.Name, err)
	}
	// Round-trip through JSON so the validator sees plain decoded values.
	payload, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	return schema.Validate(decoded)
}

var schemaCache sync.Map

func compileSchema(schema []byte) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// Registry manages tool definitions.
// All operations are thread-safe using RWMutex protection.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Definition
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Definition),
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

// Upsert adds or replaces a tool definition in the registry.
func (r *Registry) Upsert(def *Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = def
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %s: %w", name, ErrToolNotFound)
	}
	return def, nil
}

// List returns all registered tools
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Definition, 0, len(r.tools))
	for _, def := range r.tools {
		tools = append(tools, def)
	}
	return tools
}

// Specs returns the registered tools as provider-agnostic declarations for
// the request translator.
func (r *Registry) Specs() []provider.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]provider.ToolSpec, 0, len(r.tools))
	for _, def := range r.tools {
		specs = append(specs, provider.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			Schema:      def.Schema,
		})
	}
	return specs
}
