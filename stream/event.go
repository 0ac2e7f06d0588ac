// Package stream defines the uniform event model every provider's streaming
// format is normalized into, and the incremental parser that performs the
// normalization.
package stream

import (
	"github.com/sweetpotato0/modelgate/message"
)

// EventType tags the variant of a stream event.
type EventType string

const (
	EventContentDelta     EventType = "contentDelta"
	EventToolCallFragment EventType = "toolCallFragment"
	EventTool             EventType = "tool"
	EventComplete         EventType = "complete"
	EventError            EventType = "error"
	EventWarning          EventType = "warning"
)

// ToolCallFragment is a partial tool call emitted incrementally by a
// provider. Fragments with the same Index belong to one call; ArgsDelta
// segments are concatenated in arrival order.
type ToolCallFragment struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	ArgsDelta string `json:"args_delta,omitempty"`
}

// Event is one normalized streaming unit. Exactly the fields for its Type
// are populated.
type Event struct {
	Type EventType `json:"type"`

	// ContentDelta
	Content string `json:"content,omitempty"`

	// ToolCallFragment
	Fragment *ToolCallFragment `json:"fragment,omitempty"`

	// Tool
	ToolResult *message.ToolResult `json:"tool_result,omitempty"`

	// Complete
	FullMessage string               `json:"full_message,omitempty"`
	ToolCalls   []message.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []message.ToolResult `json:"tool_results,omitempty"`

	// Error / Warning
	Message string `json:"message,omitempty"`
}

// ContentDelta builds a content delta event.
func ContentDelta(text string) Event {
	return Event{Type: EventContentDelta, Content: text}
}

// Fragment builds a tool call fragment event.
func Fragment(f ToolCallFragment) Event {
	return Event{Type: EventToolCallFragment, Fragment: &f}
}

// Tool builds an event carrying one finished tool result.
func Tool(res message.ToolResult) Event {
	return Event{Type: EventTool, ToolResult: &res}
}

// Complete builds a turn completion event.
func Complete(full string, calls []message.ToolCall) Event {
	return Event{Type: EventComplete, FullMessage: full, ToolCalls: calls}
}

// Error builds a terminal error event.
func Error(msg string) Event {
	return Event{Type: EventError, Message: msg}
}

// Warning builds a non-fatal warning event.
func Warning(msg string) Event {
	return Event{Type: EventWarning, Message: msg}
}
