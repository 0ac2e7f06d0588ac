package convctx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sweetpotato0/modelgate/pkg/logging"
)

// Completer issues a lightweight secondary model call. The gateway provides
// an implementation backed by the provider client; tests inject fakes.
type Completer interface {
	Complete(ctx context.Context, model, system, prompt string) (string, error)
}

const extractionSystem = `You extract durable facts from a conversation exchange.
Return ONLY a flat JSON object mapping short snake_case keys to string values.
Record only facts worth remembering across turns (names, preferences, ids,
decisions). Return {} when there is nothing durable.`

// Updater folds new durable facts into the conversation context using a
// low-cost model call. Every failure is soft: the input context is returned
// unchanged and the failure is logged, never propagated.
type Updater struct {
	completer Completer
	model     string
}

// NewUpdater creates an updater that extracts facts with the given model.
func NewUpdater(completer Completer, model string) *Updater {
	return &Updater{completer: completer, model: model}
}

// Extract returns current merged with whatever durable facts the model finds
// in the exchange. On any failure the input context is returned as-is.
func (u *Updater) Extract(ctx context.Context, prompt, assistantResponse string, current Context) Context {
	if u == nil || u.completer == nil {
		return current
	}

	userText := fmt.Sprintf("User said:\n%s\n\nAssistant replied:\n%s", prompt, assistantResponse)
	raw, err := u.completer.Complete(ctx, u.model, extractionSystem, userText)
	if err != nil {
		u.fail("context extraction call failed", err)
		return current
	}

	updates, err := decodeFacts(raw)
	if err != nil {
		u.fail("context extraction returned malformed output", err)
		return current
	}
	if len(updates) == 0 {
		return current
	}
	return current.Merge(updates)
}

func (u *Updater) fail(msg string, err error) {
	logging.WithComponent("convctx").Warn(msg, "error", err)
}

// decodeFacts parses the model output into a flat string map. Fenced code
// blocks are unwrapped first; non-string values are skipped.
func decodeFacts(raw string) (Context, error) {
	text := unwrapFence(raw)
	if text == "" {
		return nil, fmt.Errorf("empty extraction output")
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, err
	}

	facts := make(Context, len(decoded))
	for k, v := range decoded {
		switch val := v.(type) {
		case string:
			facts[k] = val
		case float64, bool:
			facts[k] = fmt.Sprintf("%v", val)
		}
	}
	return facts, nil
}

func unwrapFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```") && strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
		if strings.HasPrefix(strings.ToLower(trimmed), "json") {
			trimmed = strings.TrimSpace(trimmed[4:])
		}
	}
	return strings.TrimSpace(trimmed)
}
