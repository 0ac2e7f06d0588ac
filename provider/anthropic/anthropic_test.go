package anthropic

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/sweetpotato0/modelgate/message"
	"github.com/sweetpotato0/modelgate/provider"
	"github.com/sweetpotato0/modelgate/stream"
)

func TestHeaders(t *testing.T) {
	h := New().Headers("sk-ant")
	if h.Get("x-api-key") != "sk-ant" {
		t.Errorf("x-api-key = %q", h.Get("x-api-key"))
	}
	if h.Get("anthropic-version") == "" {
		t.Error("anthropic-version header missing")
	}
	if h.Get("Authorization") != "" {
		t.Error("bearer auth must not be set")
	}
}

func TestTranslateSystemLifted(t *testing.T) {
	req := &provider.Request{
		Model: "claude-sonnet",
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, "be brief"),
			message.NewMessage(message.RoleUser, "hi"),
		},
	}
	payload, warnings, err := New().Translate(req)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}

	var wire struct {
		System    string `json:"system"`
		Messages  []any  `json:"messages"`
		MaxTokens int    `json:"max_tokens"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		t.Fatal(err)
	}
	if wire.System != "be brief" {
		t.Errorf("system = %q", wire.System)
	}
	if len(wire.Messages) != 1 {
		t.Errorf("system message leaked into messages: %v", wire.Messages)
	}
	if wire.MaxTokens != defaultMaxTokens {
		t.Errorf("max_tokens default = %d", wire.MaxTokens)
	}
}

func TestTranslateUnsupportedParamsWarn(t *testing.T) {
	fp, pp := 0.5, 0.5
	req := &provider.Request{
		Model:            "claude-sonnet",
		Messages:         []*message.Message{message.NewMessage(message.RoleUser, "hi")},
		FrequencyPenalty: &fp,
		PresencePenalty:  &pp,
		ResponseFormat:   "json",
	}
	payload, warnings, err := New().Translate(req)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 3 {
		t.Errorf("warnings = %v, want 3", warnings)
	}
	if strings.Contains(string(payload), "frequency_penalty") {
		t.Error("dropped parameter still present in payload")
	}
}

func TestTranslateToolRoundTrip(t *testing.T) {
	assistant := message.NewMessage(message.RoleAssistant, "")
	assistant.ToolCalls = []message.ToolCall{{ID: "tu_1", Name: "webSearch", Args: `{"query":"x"}`}}
	req := &provider.Request{
		Model: "claude-sonnet",
		Messages: []*message.Message{
			message.NewMessage(message.RoleUser, "search x"),
			assistant,
			message.NewToolResponseMessage("tu_1", "result text"),
		},
		Tools:      []provider.ToolSpec{{Name: "webSearch", Schema: json.RawMessage(`{"type":"object"}`)}},
		ToolChoice: "required",
	}
	payload, _, err := New().Translate(req)
	if err != nil {
		t.Fatal(err)
	}

	var wire struct {
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type      string `json:"type"`
				ToolUseID string `json:"tool_use_id"`
			} `json:"content"`
		} `json:"messages"`
		ToolChoice struct {
			Type string `json:"type"`
		} `json:"tool_choice"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		t.Fatal(err)
	}
	if len(wire.Messages) != 3 {
		t.Fatalf("messages = %d", len(wire.Messages))
	}
	if wire.Messages[1].Content[0].Type != "tool_use" {
		t.Errorf("assistant block = %+v", wire.Messages[1])
	}
	// Tool results travel as user-role tool_result blocks.
	if wire.Messages[2].Role != "user" || wire.Messages[2].Content[0].Type != "tool_result" {
		t.Errorf("tool result block = %+v", wire.Messages[2])
	}
	if wire.Messages[2].Content[0].ToolUseID != "tu_1" {
		t.Errorf("tool_use_id = %q", wire.Messages[2].Content[0].ToolUseID)
	}
	if wire.ToolChoice.Type != "any" {
		t.Errorf("required must map to any, got %q", wire.ToolChoice.Type)
	}
}

func TestParseUnitTextDelta(t *testing.T) {
	events, err := New().ParseUnit([]byte(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Content != "Hel" {
		t.Errorf("events = %+v", events)
	}
}

func TestParseUnitToolUseLifecycle(t *testing.T) {
	a := New()

	start, err := a.ParseUnit([]byte(`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"tu_1","name":"webSearch"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(start) != 1 || start[0].Fragment.Name != "webSearch" || start[0].Fragment.Index != 1 {
		t.Fatalf("start fragment = %+v", start)
	}

	delta, err := a.ParseUnit([]byte(`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"query\":"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(delta) != 1 || delta[0].Fragment.ArgsDelta != `{"query":` {
		t.Fatalf("args delta = %+v", delta)
	}
}

func TestParseUnitMessageStopCompletes(t *testing.T) {
	events, err := New().ParseUnit([]byte(`{"type":"message_stop"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != stream.EventComplete {
		t.Errorf("events = %+v", events)
	}
}

func TestParseUnitHousekeepingIgnored(t *testing.T) {
	for _, unit := range []string{
		`{"type":"ping"}`,
		`{"type":"message_start","message":{}}`,
		`{"type":"content_block_stop","index":0}`,
	} {
		events, err := New().ParseUnit([]byte(unit))
		if err != nil {
			t.Errorf("unit %s: %v", unit, err)
		}
		if events != nil {
			t.Errorf("unit %s produced events: %+v", unit, events)
		}
	}
}

func TestParseResponseBlocks(t *testing.T) {
	body := `{"content":[{"type":"text","text":"let me check. "},{"type":"tool_use","id":"tu_1","name":"webSearch","input":{"query":"x"}},{"type":"text","text":"done"}]}`
	resp, err := New().ParseResponse([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "let me check. done" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Args != `{"query":"x"}` {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
}
