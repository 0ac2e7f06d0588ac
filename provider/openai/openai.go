// Package openai implements the provider adapter for the OpenAI
// chat-completions wire protocol. OpenAI-compatible vendors (Groq, OpenRouter,
// local servers) work through it with a different base URL.
package openai

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
const ProviderID = "openai"

// Adapter translates to and from the chat-completions format.
type Adapter struct{}

// New creates the adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) ID() string { return ProviderID }

func (a *Adapter) Endpoint(baseURL, _ string, _ *provider.Request, _ bool) string {
	return strings.TrimSuffix(baseURL, "/") + "/chat/completions"
}

func (a *Adapter) Headers(credential string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+credential)
	h.Set("Content-Type", "application/json")
	return h
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireToolSpec `json:"function"`
}

type wireToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireRequest struct {
	Model            string        `json:"model"`
	Messages         []wireMessage `json:"messages"`
	Temperature      *float64      `json:"temperature,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
	Stop             string        `json:"stop,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Tools            []wireTool    `json:"tools,omitempty"`
	ToolChoice       any           `json:"tool_choice,omitempty"`
	ResponseFormat   *wireRespFmt  `json:"response_format,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
}

type wireRespFmt struct {
	Type string `json:"type"`
}

func (a *Adapter) Translate(req *provider.Request) ([]byte, []string, error) {
	messages := make([]wireMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		wm := wireMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolID,
		}
		for _, tc := range msg.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: wireFunction{Name: tc.Name, Arguments: tc.Args},
			})
		}
		messages = append(messages, wm)
	}

	wr := wireRequest{
		Model:            req.Model,
		Messages:         messages,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stop:             req.Stop,
		MaxTokens:        req.MaxTokens,
		Stream:           req.Stream,
	}
	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{
			Type: "function",
			Function: wireToolSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	switch req.ToolChoice {
	case "", "auto", "none", "required":
		if req.ToolChoice != "" {
			wr.ToolChoice = req.ToolChoice
		}
	default:
		wr.ToolChoice = map[string]any{
			"type":     "function",
			"function": map[string]string{"name": req.ToolChoice},
		}
	}
	if req.ResponseFormat == "json" {
		wr.ResponseFormat = &wireRespFmt{Type: "json_object"}
	}

	payload, err := json.Marshal(wr)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal openai request: %w", err)
	}
	return payload, nil, nil
}

type wireChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int          `json:"index"`
				ID       string       `json:"id"`
				Function wireFunction `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *wireError `json:"error"`
}

type wireError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (a *Adapter) ParseUnit(data []byte) ([]stream.Event, error) {
	var chunk wireChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, err
	}
	if chunk.Error != nil {
		return []stream.Event{stream.Error(chunk.Error.Message)}, nil
	}
	if len(chunk.Choices) == 0 {
		return nil, nil
	}

	var events []stream.Event
	delta := chunk.Choices[0].Delta
	if delta.Content != "" {
		events = append(events, stream.ContentDelta(delta.Content))
	}
	for _, tc := range delta.ToolCalls {
		events = append(events, stream.Fragment(stream.ToolCallFragment{
			Index:     tc.Index,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			ArgsDelta: tc.Function.Arguments,
		}))
	}
	return events, nil
}

type wireResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Error *wireError `json:"error"`
}

func (a *Adapter) ParseResponse(body []byte) (*provider.Response, error) {
	var resp wireResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal openai response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("openai api error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}

	msg := resp.Choices[0].Message
	out := &provider.Response{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, message.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}
	return out, nil
}
