package gateway

import (
	"github.com/sweetpotato0/modelgate/convctx"
	"github.com/sweetpotato0/modelgate/message"
	"github.com/sweetpotato0/modelgate/tool"
)

// Request is the provider-agnostic inbound completion request.
type Request struct {
	// ConversationID selects the stored history and context. When empty,
	// History and Context on the request are used as-is.
	ConversationID string

	// Model names the target model; empty selects the configured default.
	Model string

	System string
	Prompt string

	// History is the ordered prior conversation. When nil and a
	// conversation store is configured, history is loaded from it.
	History []*message.Message

	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stop             string
	MaxTokens        int

	// Tools are request-scoped definitions, merged over the gateway's
	// registered tools for this turn only. A same-name entry replaces the
	// registered one.
	Tools []*tool.Definition

	// ToolChoice is "", "auto", "none", "required", or a tool name.
	ToolChoice string

	// ResponseFormat is "" or "json".
	ResponseFormat string

	Stream bool

	// Context is the conversation's durable fact map. When nil and a
	// conversation store is configured, it is loaded alongside history.
	Context convctx.Context
}

// Result is a materialized completed turn.
type Result struct {
	// Message is the assistant reply, tool calls included.
	Message *message.Message

	// ToolResults has exactly one entry per model-emitted tool call, in
	// call order.
	ToolResults []message.ToolResult

	// Context is the durable context after extraction; on extraction
	// failure it equals the input context.
	Context convctx.Context

	// Warnings lists non-fatal degradations: dropped parameters, budget
	// trimming, skipped stream units.
	Warnings []string
}
