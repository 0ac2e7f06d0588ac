package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sweetpotato0/modelgate/message"
	"github.com/sweetpotato0/modelgate/pkg/logging"
	"github.com/sweetpotato0/modelgate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Engine matches model-emitted tool calls to registered definitions and runs
// them. Every call is handled independently: one failure never aborts or
// skips a sibling, and the result slice always has the same length and order
// as the input.
type Engine struct {
	registry *Registry
	parallel int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithParallelism allows up to n tool calls to run concurrently. Result
// ordering is unaffected.
func WithParallelism(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.parallel = n
		}
	}
}

// NewEngine creates an engine over the given registry. Execution is
// sequential unless WithParallelism is set.
func NewEngine(registry *Registry, opts ...EngineOption) *Engine {
	e := &Engine{registry: registry, parallel: 1}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithRegistry returns a copy of the engine resolving calls against r
// instead of the engine's own registry. Used for request-scoped tool sets.
func (e *Engine) WithRegistry(r *Registry) *Engine {
	return &Engine{registry: r, parallel: e.parallel}
}

// Execute runs every call and returns one result per call, input order
// preserved.
func (e *Engine) Execute(ctx context.Context, calls []message.ToolCall, ambient map[string]string) []message.ToolResult {
	results := make([]message.ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	if e.parallel <= 1 {
		for i, call := range calls {
			results[i] = e.executeOne(ctx, call, ambient)
		}
		return results
	}

	sem := make(chan struct{}, e.parallel)
	var wg sync.WaitGroup
	for i := range calls {
		i := i
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.executeOne(ctx, calls[i], ambient)
		}()
	}
	wg.Wait()
	return results
}

func (e *Engine) executeOne(ctx context.Context, call message.ToolCall, ambient map[string]string) message.ToolResult {
	ctx, span := telemetry.Tracer().Start(ctx, "tool.execute",
		trace.WithAttributes(attribute.String("tool.name", call.Name)))

	result := e.run(ctx, call, ambient)

	var spanErr error
	if result.Status == message.ToolStatusError {
		spanErr = fmt.Errorf("%s", result.Error)
		logging.WithComponent("tool").Warn("tool call failed", "tool", call.Name, "error", result.Error)
	}
	telemetry.End(span, spanErr)
	return result
}

func (e *Engine) run(ctx context.Context, call message.ToolCall, ambient map[string]string) message.ToolResult {
	def, err := e.registry.Get(call.Name)
	if err != nil {
		return errorResult(call.Name, nil, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name))
	}

	args, err := decodeArgs(call.Args)
	if err != nil {
		return errorResult(call.Name, nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err))
	}

	// Injection happens before validation so a schema-required ambient
	// argument can be satisfied from context.
	for argName, ctxKey := range def.Inject {
		if _, present := args[argName]; present {
			continue
		}
		if v, ok := ambient[ctxKey]; ok && v != "" {
			args[argName] = v
		}
	}

	if err := def.ValidateArgs(args); err != nil {
		return errorResult(call.Name, args, fmt.Errorf("%w: %v", ErrInvalidArguments, err))
	}

	out, err := def.Handler(ctx, args)
	if err != nil {
		return errorResult(call.Name, args, fmt.Errorf("%w: %v", ErrExecution, err))
	}

	return message.ToolResult{
		Name:   call.Name,
		Status: message.ToolStatusSuccess,
		Result: out,
		Args:   args,
	}
}

func decodeArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func errorResult(name string, args map[string]any, err error) message.ToolResult {
	return message.ToolResult{
		Name:   name,
		Status: message.ToolStatusError,
		Error:  err.Error(),
		Args:   args,
	}
}
