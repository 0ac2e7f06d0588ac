package openai

import (
	"encoding/json"
	"testing"

	"github.com/sweetpotato0/modelgate/message"
	"github.com/sweetpotato0/modelgate/provider"
	"github.com/sweetpotato0/modelgate/stream"
)

func TestEndpoint(t *testing.T) {
	a := New()
	got := a.Endpoint("https://api.openai.com/v1/", "k", nil, true)
	if got != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("endpoint = %q", got)
	}
}

func TestHeaders(t *testing.T) {
	h := New().Headers("sk-test")
	if h.Get("Authorization") != "Bearer sk-test" {
		t.Errorf("authorization = %q", h.Get("Authorization"))
	}
	if h.Get("Content-Type") != "application/json" {
		t.Errorf("content-type = %q", h.Get("Content-Type"))
	}
}

func TestTranslateFullRequest(t *testing.T) {
	temp := 0.7
	req := &provider.Request{
		Model: "gpt-4o",
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, "be brief"),
			message.NewMessage(message.RoleUser, "hi"),
		},
		Temperature:    &temp,
		MaxTokens:      256,
		Tools:          []provider.ToolSpec{{Name: "webSearch", Schema: json.RawMessage(`{"type":"object"}`)}},
		ToolChoice:     "auto",
		ResponseFormat: "json",
		Stream:         true,
	}

	payload, warnings, err := New().Translate(req)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	var wire map[string]any
	if err := json.Unmarshal(payload, &wire); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if wire["model"] != "gpt-4o" || wire["temperature"] != 0.7 || wire["max_tokens"] != float64(256) {
		t.Errorf("sampling fields wrong: %v", wire)
	}
	if wire["stream"] != true {
		t.Error("stream flag missing")
	}
	if rf, _ := wire["response_format"].(map[string]any); rf["type"] != "json_object" {
		t.Errorf("response_format = %v", wire["response_format"])
	}
	tools, _ := wire["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("tools = %v", wire["tools"])
	}
	if wire["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v", wire["tool_choice"])
	}
}

func TestTranslateNamedToolChoice(t *testing.T) {
	req := &provider.Request{
		Model:      "gpt-4o",
		Messages:   []*message.Message{message.NewMessage(message.RoleUser, "hi")},
		ToolChoice: "webSearch",
	}
	payload, _, err := New().Translate(req)
	if err != nil {
		t.Fatal(err)
	}
	var wire struct {
		ToolChoice struct {
			Type     string            `json:"type"`
			Function map[string]string `json:"function"`
		} `json:"tool_choice"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		t.Fatal(err)
	}
	if wire.ToolChoice.Type != "function" || wire.ToolChoice.Function["name"] != "webSearch" {
		t.Errorf("named tool_choice = %+v", wire.ToolChoice)
	}
}

func TestParseUnitContentDelta(t *testing.T) {
	events, err := New().ParseUnit([]byte(`{"choices":[{"delta":{"content":"Hel"}}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != stream.EventContentDelta || events[0].Content != "Hel" {
		t.Errorf("events = %+v", events)
	}
}

func TestParseUnitToolCallFragment(t *testing.T) {
	data := `{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"webSearch","arguments":"{\"q"}}]}}]}`
	events, err := New().ParseUnit([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != stream.EventToolCallFragment {
		t.Fatalf("events = %+v", events)
	}
	f := events[0].Fragment
	if f.Index != 0 || f.ID != "call_1" || f.Name != "webSearch" || f.ArgsDelta != `{"q` {
		t.Errorf("fragment = %+v", f)
	}
}

func TestParseUnitError(t *testing.T) {
	events, err := New().ParseUnit([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != stream.EventError {
		t.Errorf("events = %+v", events)
	}
}

func TestParseResponse(t *testing.T) {
	body := `{"choices":[{"message":{"role":"assistant","content":"hi","tool_calls":[{"id":"c1","function":{"name":"webSearch","arguments":"{}"}}]}}]}`
	resp, err := New().ParseResponse([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hi" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "webSearch" {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
}

func TestParseResponseAPIError(t *testing.T) {
	if _, err := New().ParseResponse([]byte(`{"error":{"message":"bad key"}}`)); err == nil {
		t.Error("expected api error")
	}
}
