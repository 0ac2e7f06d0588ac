// Package provider adapts normalized gateway requests to vendor wire
// protocols. Each vendor implements Adapter; the registry selects one by
// provider id so no vendor branching leaks into the rest of the gateway.
package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sweetpotato0/modelgate/message"
	"github.com/sweetpotato0/modelgate/stream"
)

// ErrUnknownProvider is returned when no adapter is registered for an id.
var ErrUnknownProvider = errors.New("unknown provider")

// ToolSpec is a provider-agnostic tool declaration.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Request is the normalized form of an inbound completion request after
// model resolution and token budgeting. Messages is the fully ordered input
// (system first, then history, then the prompt).
type Request struct {
	Model            string
	Messages         []*message.Message
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stop             string
	MaxTokens        int
	Tools            []ToolSpec
	ToolChoice       string // "", "auto", "none", "required", or a tool name
	ResponseFormat   string // "", "json"
	Stream           bool
}

// Response is a materialized (non-streaming) completion.
type Response struct {
	Content   string
	ToolCalls []message.ToolCall
}

// Adapter translates requests into one vendor's wire protocol and parses the
// vendor's responses back into the uniform model.
type Adapter interface {
	// ID returns the provider id the adapter is registered under.
	ID() string

	// Endpoint builds the request URL from the configured base URL. Vendors
	// that carry the credential in the URL receive it here.
	Endpoint(baseURL, credential string, req *Request, streaming bool) string

	// Headers returns the vendor's auth and content headers.
	Headers(credential string) http.Header

	// Translate maps the normalized request into the vendor payload.
	// Parameters the vendor does not support are dropped and reported as
	// warnings, never as errors.
	Translate(req *Request) (payload []byte, warnings []string, err error)

	// ParseUnit parses one complete structured unit of the vendor's event
	// stream. It is handed to a stream.Normalizer.
	ParseUnit(data []byte) ([]stream.Event, error)

	// ParseResponse parses a materialized (non-streaming) response body.
	ParseResponse(body []byte) (*Response, error)
}

// Registry maps provider ids to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.ID()] = a
	}
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.ID()] = a
}

// Get returns the adapter for a provider id.
func (r *Registry) Get(id string) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("adapter %q: %w", id, ErrUnknownProvider)
	}
	return a, nil
}
