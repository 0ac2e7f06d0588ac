package stream

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sweetpotato0/modelgate/message"
	"github.com/sweetpotato0/modelgate/pkg/logging"
)

// Sentinel terminates an event stream.
const Sentinel = "[DONE]"

// dataPrefix is the optional SSE frame prefix.
const dataPrefix = "data:"

// maxUnitBytes bounds the partial-unit buffer. A unit that grows past this
// without parsing is surfaced as a parse warning and dropped.
const maxUnitBytes = 1 << 20

// UnitParser parses one complete structured unit of a provider's stream into
// normalized events. It returns (nil, nil) for units that carry nothing of
// interest and an error when the bytes do not form a complete unit. A parser
// may return an EventComplete to terminate streams whose wire format has its
// own stop marker instead of the sentinel line.
type UnitParser func(data []byte) ([]Event, error)

// Normalizer incrementally converts raw provider stream bytes into the
// uniform event sequence. State is scoped to one open call: create one
// Normalizer per stream and discard it when the stream ends.
//
// Network chunk boundaries do not align with logical event boundaries, so
// the normalizer buffers a partial trailing line between Feed calls and a
// partial multi-line unit between lines. Feeding identical input split at
// any byte boundary produces an identical event sequence.
type Normalizer struct {
	parse UnitParser

	line []byte // partial line carried across Feed calls
	unit []byte // partial unit carried across lines

	full      strings.Builder // concatenation of all content deltas
	calls     map[int]*partialCall
	callOrder []int // first-seen order of call indexes
	autoSeq   int   // allocator for fragments without a provider index

	done bool
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

// NewNormalizer creates a normalizer for one open streaming call.
func NewNormalizer(parse UnitParser) *Normalizer {
	return &Normalizer{
		parse: parse,
		calls: make(map[int]*partialCall),
	}
}

// Feed consumes the next raw chunk and returns the events it completes.
// After the stream has completed, further input is ignored.
func (n *Normalizer) Feed(chunk []byte) []Event {
	if n.done {
		return nil
	}

	var events []Event
	n.line = append(n.line, chunk...)
	for {
		idx := bytes.IndexByte(n.line, '\n')
		if idx < 0 {
			break
		}
		line := n.line[:idx]
		n.line = n.line[idx+1:]
		events = append(events, n.consumeLine(line)...)
		if n.done {
			n.line = nil
			break
		}
	}
	return events
}

// Finish flushes state at stream end. Streams that close without a sentinel
// still get exactly one complete event; leftover unparseable bytes are
// surfaced as a parse warning.
func (n *Normalizer) Finish() []Event {
	if n.done {
		return nil
	}
	var events []Event
	if len(bytes.TrimSpace(n.line)) > 0 {
		events = append(events, n.consumeLine(n.line)...)
		n.line = nil
	}
	if n.done {
		return events
	}
	if len(n.unit) > 0 {
		events = append(events, n.parseWarning(n.unit))
		n.unit = nil
	}
	events = append(events, n.complete())
	return events
}

func (n *Normalizer) consumeLine(raw []byte) []Event {
	line := bytes.TrimRight(raw, "\r")
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		// Blank lines separate SSE frames.
		return nil
	}
	if isSSEField(trimmed) {
		// event:/id:/retry: fields and comment lines carry no payload.
		return nil
	}
	if bytes.HasPrefix(trimmed, []byte(dataPrefix)) {
		trimmed = bytes.TrimSpace(trimmed[len(dataPrefix):])
		if len(trimmed) == 0 {
			return nil
		}
	}
	if string(trimmed) == Sentinel {
		var events []Event
		if len(n.unit) > 0 {
			events = append(events, n.parseWarning(n.unit))
			n.unit = nil
		}
		events = append(events, n.complete())
		return events
	}

	if len(n.unit) == 0 {
		if evs, err := n.parse(trimmed); err == nil {
			return n.record(evs)
		}
		n.unit = append(n.unit, trimmed...)
		return nil
	}

	// A unit may be split across lines: retry with the buffer as a whole.
	n.unit = append(n.unit, trimmed...)
	if evs, err := n.parse(n.unit); err == nil {
		n.unit = nil
		return n.record(evs)
	}

	// The buffered prefix may be garbage that will never complete. If the
	// new line parses on its own, drop the buffer as a recoverable parse
	// error and keep going.
	if evs, err := n.parse(trimmed); err == nil {
		dead := n.unit[:len(n.unit)-len(trimmed)]
		warn := n.parseWarning(dead)
		n.unit = nil
		return append([]Event{warn}, n.record(evs)...)
	}

	if len(n.unit) > maxUnitBytes {
		warn := n.parseWarning(n.unit)
		n.unit = nil
		return []Event{warn}
	}
	return nil
}

func isSSEField(line []byte) bool {
	for _, prefix := range []string{":", "event:", "id:", "retry:"} {
		if bytes.HasPrefix(line, []byte(prefix)) {
			return true
		}
	}
	return false
}

// record folds parsed events into the per-call accumulators and returns the
// ones to deliver immediately.
func (n *Normalizer) record(evs []Event) []Event {
	var out []Event
	for _, ev := range evs {
		switch ev.Type {
		case EventContentDelta:
			n.full.WriteString(ev.Content)
			out = append(out, ev)
		case EventToolCallFragment:
			if f := ev.Fragment; f != nil {
				key := f.Index
				if key < 0 {
					// Providers that emit whole calls in one unit have no
					// stable index; each such fragment opens a new call.
					n.autoSeq--
					key = n.autoSeq
				}
				pc := n.calls[key]
				if pc == nil {
					pc = &partialCall{}
					n.calls[key] = pc
					n.callOrder = append(n.callOrder, key)
				}
				if f.ID != "" {
					pc.id = f.ID
				}
				if f.Name != "" {
					pc.name = f.Name
				}
				pc.args.WriteString(f.ArgsDelta)
			}
			out = append(out, ev)
		case EventComplete:
			// The provider's own stop marker ends the stream; the emitted
			// complete event always carries the accumulated state.
			out = append(out, n.complete())
			return out
		default:
			out = append(out, ev)
		}
	}
	return out
}

func (n *Normalizer) complete() Event {
	n.done = true
	return Complete(n.full.String(), n.assembledCalls())
}

func (n *Normalizer) assembledCalls() []message.ToolCall {
	if len(n.calls) == 0 {
		return nil
	}
	out := make([]message.ToolCall, 0, len(n.callOrder))
	for _, i := range n.callOrder {
		pc := n.calls[i]
		out = append(out, message.ToolCall{
			ID:   pc.id,
			Name: pc.name,
			Args: pc.args.String(),
		})
	}
	return out
}

func (n *Normalizer) parseWarning(dead []byte) Event {
	snippet := string(dead)
	if len(snippet) > 120 {
		snippet = snippet[:120] + "..."
	}
	logging.WithComponent("stream").Warn("skipping malformed stream unit", "unit", snippet)
	return Warning(fmt.Sprintf("skipped malformed stream unit: %s", snippet))
}
