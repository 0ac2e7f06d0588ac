// Package anthropic implements the provider adapter for the Anthropic
// messages wire protocol.
package anthropic

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sweetpotato0/modelgate/message"
	"github.com/sweetpotato0/modelgate/provider"
	"github.com/sweetpotato0/modelgate/stream"
)

// ProviderID is the registry key for this adapter.
const ProviderID = "anthropic"

const apiVersion = "2023-06-01"

// defaultMaxTokens is sent when the request does not set one; the messages
// API rejects requests without max_tokens.
const defaultMaxTokens = 4096

// Adapter translates to and from the Anthropic messages format.
type Adapter struct{}

// New creates the adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) ID() string { return ProviderID }

func (a *Adapter) Endpoint(baseURL, _ string, _ *provider.Request, _ bool) string {
	return strings.TrimSuffix(baseURL, "/") + "/v1/messages"
}

func (a *Adapter) Headers(credential string) http.Header {
	h := http.Header{}
	h.Set("x-api-key", credential)
	h.Set("anthropic-version", apiVersion)
	h.Set("Content-Type", "application/json")
	return h
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type wireMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type wireToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type wireRequest struct {
	Model         string          `json:"model"`
	System        string          `json:"system,omitempty"`
	Messages      []wireMessage   `json:"messages"`
	MaxTokens     int             `json:"max_tokens"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Tools         []wireTool      `json:"tools,omitempty"`
	ToolChoice    *wireToolChoice `json:"tool_choice,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
}

func (a *Adapter) Translate(req *provider.Request) ([]byte, []string, error) {
	var warnings []string
	var systemParts []string
	messages := make([]wireMessage, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case message.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case message.RoleUser:
			messages = append(messages, wireMessage{
				Role:    "user",
				Content: []contentBlock{{Type: "text", Text: msg.Content}},
			})
		case message.RoleAssistant:
			blocks := make([]contentBlock, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input := json.RawMessage(tc.Args)
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, contentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: input,
				})
			}
			messages = append(messages, wireMessage{Role: "assistant", Content: blocks})
		case message.RoleTool:
			messages = append(messages, wireMessage{
				Role: "user",
				Content: []contentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolID,
					Content:   msg.Content,
				}},
			})
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	wr := wireRequest{
		Model:       req.Model,
		System:      strings.Join(systemParts, "\n"),
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}
	if req.Stop != "" {
		wr.StopSequences = []string{req.Stop}
	}
	if req.FrequencyPenalty != nil {
		warnings = append(warnings, "anthropic does not support frequencyPenalty; parameter dropped")
	}
	if req.PresencePenalty != nil {
		warnings = append(warnings, "anthropic does not support presencePenalty; parameter dropped")
	}
	if req.ResponseFormat != "" {
		warnings = append(warnings, "anthropic does not support responseFormat; hint dropped")
	}

	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Schema,
		})
	}
	switch req.ToolChoice {
	case "":
	case "auto":
		wr.ToolChoice = &wireToolChoice{Type: "auto"}
	case "required":
		wr.ToolChoice = &wireToolChoice{Type: "any"}
	case "none":
		warnings = append(warnings, "anthropic does not support toolChoice=none; tools omitted instead")
		wr.Tools = nil
	default:
		wr.ToolChoice = &wireToolChoice{Type: "tool", Name: req.ToolChoice}
	}

	payload, err := json.Marshal(wr)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal anthropic request: %w", err)
	}
	return payload, warnings, nil
}

type wireEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`

	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) ParseUnit(data []byte) ([]stream.Event, error) {
	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}

	switch ev.Type {
	case "content_block_start":
		if cb := ev.ContentBlock; cb != nil && cb.Type == "tool_use" {
			return []stream.Event{stream.Fragment(stream.ToolCallFragment{
				Index: ev.Index,
				ID:    cb.ID,
				Name:  cb.Name,
			})}, nil
		}
		return nil, nil
	case "content_block_delta":
		if d := ev.Delta; d != nil {
			switch d.Type {
			case "text_delta":
				if d.Text != "" {
					return []stream.Event{stream.ContentDelta(d.Text)}, nil
				}
			case "input_json_delta":
				return []stream.Event{stream.Fragment(stream.ToolCallFragment{
					Index:     ev.Index,
					ArgsDelta: d.PartialJSON,
				})}, nil
			}
		}
		return nil, nil
	case "message_stop":
		// The messages API has its own stop marker instead of the sentinel.
		return []stream.Event{{Type: stream.EventComplete}}, nil
	case "error":
		msg := "anthropic stream error"
		if ev.Error != nil {
			msg = ev.Error.Message
		}
		return []stream.Event{stream.Error(msg)}, nil
	case "message_start", "message_delta", "content_block_stop", "ping":
		return nil, nil
	default:
		// Unknown event types are ignored, not errors: the unit parsed.
		return nil, nil
	}
}

type wireResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) ParseResponse(body []byte) (*provider.Response, error) {
	var resp wireResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal anthropic response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("anthropic api error: %s", resp.Error.Message)
	}

	out := &provider.Response{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, message.ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: string(block.Input),
			})
		}
	}
	return out, nil
}
