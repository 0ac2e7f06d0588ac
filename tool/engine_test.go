package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sweetpotato0/modelgate/message"
)

func searchDefinition(t *testing.T) *Definition {
	t.Helper()
	return &Definition{
		Name:        "webSearch",
		Description: "search the web",
		Schema:      json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf("results for %v", args["query"]), nil
		},
	}
}

func newTestEngine(t *testing.T, defs ...*Definition) *Engine {
	t.Helper()
	reg := NewRegistry()
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			t.Fatalf("register %s: %v", def.Name, err)
		}
	}
	return NewEngine(reg)
}

func TestExecutePreservesOrderAcrossFailures(t *testing.T) {
	e := newTestEngine(t, searchDefinition(t))
	calls := []message.ToolCall{
		{ID: "1", Name: "foo", Args: "{}"},
		{ID: "2", Name: "webSearch", Args: `{"query":"x"}`},
	}

	results := e.Execute(context.Background(), calls, nil)

	if len(results) != len(calls) {
		t.Fatalf("results = %d, want %d", len(results), len(calls))
	}
	if results[0].Name != "foo" || results[0].Status != message.ToolStatusError {
		t.Errorf("entry 0 = %+v, want foo error", results[0])
	}
	if !strings.Contains(results[0].Error, ErrToolNotFound.Error()) {
		t.Errorf("entry 0 error = %q, want tool-not-found", results[0].Error)
	}
	if results[1].Name != "webSearch" || results[1].Status != message.ToolStatusSuccess {
		t.Errorf("entry 1 = %+v, want webSearch success", results[1])
	}
	if results[1].Result != "results for x" {
		t.Errorf("entry 1 result = %q", results[1].Result)
	}
}

func TestExecutePerCallErrorKinds(t *testing.T) {
	failing := &Definition{
		Name:   "alwaysFails",
		Schema: json.RawMessage(`{"type":"object"}`),
		Handler: func(context.Context, map[string]any) (string, error) {
			return "", errors.New("backend down")
		},
	}
	e := newTestEngine(t, searchDefinition(t), failing)

	calls := []message.ToolCall{
		{Name: "missing", Args: "{}"},
		{Name: "webSearch", Args: "{not json"},
		{Name: "webSearch", Args: `{"query":7}`},
		{Name: "alwaysFails", Args: "{}"},
		{Name: "webSearch", Args: `{"query":"ok"}`},
	}
	results := e.Execute(context.Background(), calls, nil)

	wantErrs := []string{
		ErrToolNotFound.Error(),
		ErrInvalidArguments.Error(),
		ErrInvalidArguments.Error(),
		ErrExecution.Error(),
		"",
	}
	for i, want := range wantErrs {
		if want == "" {
			if results[i].Status != message.ToolStatusSuccess {
				t.Errorf("entry %d: %+v, want success", i, results[i])
			}
			continue
		}
		if results[i].Status != message.ToolStatusError || !strings.Contains(results[i].Error, want) {
			t.Errorf("entry %d error = %q, want %q", i, results[i].Error, want)
		}
	}
}

func TestExecuteInjectsAmbientContext(t *testing.T) {
	var seen atomic.Value
	def := &Definition{
		Name:   "listTasks",
		Schema: json.RawMessage(`{"type":"object","properties":{"projectId":{"type":"string"}},"required":["projectId"]}`),
		Inject: map[string]string{"projectId": "project_id"},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			seen.Store(args["projectId"])
			return "ok", nil
		},
	}
	e := newTestEngine(t, def)

	results := e.Execute(context.Background(),
		[]message.ToolCall{{Name: "listTasks", Args: "{}"}},
		map[string]string{"project_id": "p-42"})

	if results[0].Status != message.ToolStatusSuccess {
		t.Fatalf("call failed: %s", results[0].Error)
	}
	if got := seen.Load(); got != "p-42" {
		t.Errorf("injected projectId = %v, want p-42", got)
	}
}

func TestExecuteInjectionDoesNotOverrideExplicitArgs(t *testing.T) {
	var seen atomic.Value
	def := &Definition{
		Name:   "listTasks",
		Schema: json.RawMessage(`{"type":"object"}`),
		Inject: map[string]string{"projectId": "project_id"},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			seen.Store(args["projectId"])
			return "ok", nil
		},
	}
	e := newTestEngine(t, def)

	e.Execute(context.Background(),
		[]message.ToolCall{{Name: "listTasks", Args: `{"projectId":"explicit"}`}},
		map[string]string{"project_id": "ambient"})

	if got := seen.Load(); got != "explicit" {
		t.Errorf("projectId = %v, explicit argument must win", got)
	}
}

func TestExecuteEmptyArgsPayload(t *testing.T) {
	def := &Definition{
		Name:   "noArgs",
		Schema: json.RawMessage(`{"type":"object"}`),
		Handler: func(context.Context, map[string]any) (string, error) {
			return "ran", nil
		},
	}
	e := newTestEngine(t, def)

	results := e.Execute(context.Background(), []message.ToolCall{{Name: "noArgs"}}, nil)

	if results[0].Status != message.ToolStatusSuccess || results[0].Result != "ran" {
		t.Errorf("empty payload should decode to empty args: %+v", results[0])
	}
}

func TestExecuteParallelKeepsOrder(t *testing.T) {
	e := NewEngine(func() *Registry {
		reg := NewRegistry()
		def := &Definition{
			Name:   "echo",
			Schema: json.RawMessage(`{"type":"object"}`),
			Handler: func(_ context.Context, args map[string]any) (string, error) {
				return fmt.Sprintf("%v", args["n"]), nil
			},
		}
		if err := reg.Register(def); err != nil {
			t.Fatal(err)
		}
		return reg
	}(), WithParallelism(4))

	calls := make([]message.ToolCall, 16)
	for i := range calls {
		calls[i] = message.ToolCall{Name: "echo", Args: fmt.Sprintf(`{"n":%d}`, i)}
	}
	results := e.Execute(context.Background(), calls, nil)

	for i, res := range results {
		if res.Result != fmt.Sprintf("%d", i) {
			t.Errorf("slot %d holds %q", i, res.Result)
		}
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(searchDefinition(t)); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(searchDefinition(t)); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestSpecsExposeSchemas(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(searchDefinition(t)); err != nil {
		t.Fatal(err)
	}
	specs := reg.Specs()
	if len(specs) != 1 || specs[0].Name != "webSearch" || len(specs[0].Schema) == 0 {
		t.Errorf("specs = %+v", specs)
	}
}
