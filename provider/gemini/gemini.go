// Package gemini implements the provider adapter for the Google Gemini
// generateContent wire protocol.
package gemini

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sweetpotato0/modelgate/message"
	"github.com/sweetpotato0/modelgate/provider"
	"github.com/sweetpotato0/modelgate/stream"
)

// ProviderID is the registry key for this adapter.
const ProviderID = "gemini"

// Adapter translates to and from the generateContent format.
type Adapter struct{}

// New creates the adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) ID() string { return ProviderID }

// Endpoint carries the credential as a query parameter; Gemini does not use
// an auth header. Streaming selects the SSE variant of the endpoint.
func (a *Adapter) Endpoint(baseURL, credential string, req *provider.Request, streaming bool) string {
	base := strings.TrimSuffix(baseURL, "/")
	method := "generateContent"
	query := "key=" + url.QueryEscape(credential)
	if streaming {
		method = "streamGenerateContent"
		query = "alt=sse&" + query
	}
	return fmt.Sprintf("%s/v1beta/models/%s:%s?%s", base, url.PathEscape(req.Model), method, query)
}

func (a *Adapter) Headers(_ string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return h
}

type wirePart struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *wireFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *wireFunctionResp `json:"functionResponse,omitempty"`
}

type wireFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type wireFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireGenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type wireFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireTool struct {
	FunctionDeclarations []wireFunctionDecl `json:"functionDeclarations"`
}

type wireToolConfig struct {
	FunctionCallingConfig struct {
		Mode                 string   `json:"mode"`
		AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
	} `json:"functionCallingConfig"`
}

type wireRequest struct {
	SystemInstruction *wireContent          `json:"system_instruction,omitempty"`
	Contents          []wireContent         `json:"contents"`
	GenerationConfig  *wireGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []wireTool            `json:"tools,omitempty"`
	ToolConfig        *wireToolConfig       `json:"toolConfig,omitempty"`
}

func (a *Adapter) Translate(req *provider.Request) ([]byte, []string, error) {
	var warnings []string
	var systemParts []wirePart
	contents := make([]wireContent, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case message.RoleSystem:
			systemParts = append(systemParts, wirePart{Text: msg.Content})
		case message.RoleUser:
			contents = append(contents, wireContent{
				Role:  "user",
				Parts: []wirePart{{Text: msg.Content}},
			})
		case message.RoleAssistant:
			parts := make([]wirePart, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, wirePart{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := json.RawMessage(tc.Args)
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				parts = append(parts, wirePart{
					FunctionCall: &wireFunctionCall{Name: tc.Name, Args: args},
				})
			}
			contents = append(contents, wireContent{Role: "model", Parts: parts})
		case message.RoleTool:
			contents = append(contents, wireContent{
				Role: "user",
				Parts: []wirePart{{
					FunctionResponse: &wireFunctionResp{
						Name:     msg.ToolID,
						Response: map[string]any{"content": msg.Content},
					},
				}},
			})
		}
	}

	wr := wireRequest{Contents: contents}
	if len(systemParts) > 0 {
		wr.SystemInstruction = &wireContent{Parts: systemParts}
	}

	gc := &wireGenerationConfig{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: req.MaxTokens,
	}
	if req.Stop != "" {
		gc.StopSequences = []string{req.Stop}
	}
	if req.ResponseFormat == "json" {
		gc.ResponseMimeType = "application/json"
	}
	wr.GenerationConfig = gc

	if req.FrequencyPenalty != nil {
		warnings = append(warnings, "gemini does not support frequencyPenalty; parameter dropped")
	}
	if req.PresencePenalty != nil {
		warnings = append(warnings, "gemini does not support presencePenalty; parameter dropped")
	}

	if len(req.Tools) > 0 {
		tool := wireTool{}
		for _, t := range req.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, wireFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			})
		}
		wr.Tools = []wireTool{tool}
	}
	switch req.ToolChoice {
	case "":
	case "auto":
		tc := &wireToolConfig{}
		tc.FunctionCallingConfig.Mode = "AUTO"
		wr.ToolConfig = tc
	case "none":
		tc := &wireToolConfig{}
		tc.FunctionCallingConfig.Mode = "NONE"
		wr.ToolConfig = tc
	case "required":
		tc := &wireToolConfig{}
		tc.FunctionCallingConfig.Mode = "ANY"
		wr.ToolConfig = tc
	default:
		tc := &wireToolConfig{}
		tc.FunctionCallingConfig.Mode = "ANY"
		tc.FunctionCallingConfig.AllowedFunctionNames = []string{req.ToolChoice}
		wr.ToolConfig = tc
	}

	payload, err := json.Marshal(wr)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal gemini request: %w", err)
	}
	return payload, warnings, nil
}

type wireChunk struct {
	Candidates []struct {
		Content      wireContent `json:"content"`
		FinishReason string      `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ParseUnit handles one SSE unit. Gemini emits complete function calls in a
// single part, so fragments use the auto-index convention (Index -1).
func (a *Adapter) ParseUnit(data []byte) ([]stream.Event, error) {
	var chunk wireChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, err
	}
	if chunk.Error != nil {
		return []stream.Event{stream.Error(chunk.Error.Message)}, nil
	}
	if len(chunk.Candidates) == 0 {
		return nil, nil
	}

	var events []stream.Event
	for _, part := range chunk.Candidates[0].Content.Parts {
		if part.Text != "" {
			events = append(events, stream.ContentDelta(part.Text))
		}
		if fc := part.FunctionCall; fc != nil {
			events = append(events, stream.Fragment(stream.ToolCallFragment{
				Index:     -1,
				Name:      fc.Name,
				ArgsDelta: string(fc.Args),
			}))
		}
	}
	return events, nil
}

func (a *Adapter) ParseResponse(body []byte) (*provider.Response, error) {
	var resp wireChunk
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal gemini response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("gemini api error: %s", resp.Error.Message)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini response has no candidates")
	}

	out := &provider.Response{}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.Content += part.Text
		}
		if fc := part.FunctionCall; fc != nil {
			out.ToolCalls = append(out.ToolCalls, message.ToolCall{
				Name: fc.Name,
				Args: string(fc.Args),
			})
		}
	}
	return out, nil
}
