package gateway

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/sweetpotato0/modelgate/config"
	"github.com/sweetpotato0/modelgate/convctx"
	"github.com/sweetpotato0/modelgate/message"
	"github.com/sweetpotato0/modelgate/model"
	"github.com/sweetpotato0/modelgate/provider"
	"github.com/sweetpotato0/modelgate/store"
	"github.com/sweetpotato0/modelgate/stream"
	"github.com/sweetpotato0/modelgate/tool"
)

// streamReadSize is the chunk size for draining a provider byte stream.
const streamReadSize = 4096

// turn carries one request through the ordered pipeline stages. It is
// created per call and never shared.
type turn struct {
	req      *Request
	desc     model.Descriptor
	adapter  provider.Adapter
	pcfg     config.ProviderConfig
	engine   *tool.Engine
	convCtx  convctx.Context
	prompt   string
	preq     *provider.Request
	payload  []byte
	warnings []string
}

// Run executes a turn and materializes the result. Resolution, translation
// and transport failures are returned as errors; tool and context failures
// degrade the result instead.
func (g *Gateway) Run(ctx context.Context, req *Request) (*Result, error) {
	t, err := g.prepare(ctx, req, false)
	if err != nil {
		return nil, err
	}

	body, err := g.client.Do(ctx, t.call())
	if err != nil {
		return nil, err
	}
	resp, err := t.adapter.ParseResponse(body)
	if err != nil {
		return nil, err
	}

	return g.finish(ctx, t, resp.Content, resp.ToolCalls, nil), nil
}

// RunStream executes a turn as a live event sequence. Content events are
// flushed to the consumer as soon as they are produced; the full response is
// never buffered ahead of delivery. Breaking out of the iteration cancels
// the outbound call.
func (g *Gateway) RunStream(ctx context.Context, req *Request) iter.Seq2[stream.Event, error] {
	return func(yield func(stream.Event, error) bool) {
		t, err := g.prepare(ctx, req, true)
		if err != nil {
			yield(stream.Error(err.Error()), err)
			return
		}
		for _, w := range t.warnings {
			if !yield(stream.Warning(w), nil) {
				return
			}
		}
		t.warnings = nil

		if !t.preq.Stream {
			// Model cannot stream; materialize and emit the single result.
			body, err := g.client.Do(ctx, t.call())
			if err != nil {
				yield(stream.Error(err.Error()), err)
				return
			}
			resp, err := t.adapter.ParseResponse(body)
			if err != nil {
				yield(stream.Error(err.Error()), err)
				return
			}
			if resp.Content != "" && !yield(stream.ContentDelta(resp.Content), nil) {
				return
			}
			g.emitCompletion(ctx, t, resp.Content, resp.ToolCalls, yield)
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		body, err := g.client.Stream(ctx, t.call())
		if err != nil {
			yield(stream.Error(err.Error()), err)
			return
		}
		defer body.Close()

		norm := stream.NewNormalizer(t.adapter.ParseUnit)
		full, calls, done, delivered := g.drainStream(body, norm, yield)
		if !delivered {
			return
		}
		if !done {
			// Body ended cleanly without a completion marker; whatever
			// content arrived still forms the turn.
			for _, ev := range norm.Finish() {
				if ev.Type == stream.EventComplete {
					full, calls = ev.FullMessage, ev.ToolCalls
					continue
				}
				if !yield(ev, nil) {
					return
				}
			}
		}

		g.emitCompletion(ctx, t, full, calls, yield)
	}
}

// drainStream reads the provider body, feeds the normalizer and forwards
// events. It returns the accumulated completion when the stream finished,
// done=false when the body ended cleanly without one, and delivered=false
// when the consumer stopped iterating or the transport failed mid-stream.
// A read error other than io.EOF is terminal: the consumer gets an error
// event and the turn is abandoned.
func (g *Gateway) drainStream(body io.Reader, norm *stream.Normalizer, yield func(stream.Event, error) bool) (full string, calls []message.ToolCall, done, delivered bool) {
	buf := make([]byte, streamReadSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, ev := range norm.Feed(buf[:n]) {
				switch ev.Type {
				case stream.EventComplete:
					return ev.FullMessage, ev.ToolCalls, true, true
				case stream.EventError:
					err := fmt.Errorf("provider stream error: %s", ev.Message)
					yield(ev, err)
					return "", nil, false, false
				default:
					if !yield(ev, nil) {
						return "", nil, false, false
					}
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return "", nil, false, true
			}
			g.logger.Warn("provider stream read failed", "error", readErr)
			err := fmt.Errorf("provider stream read failed: %w", readErr)
			yield(stream.Error(err.Error()), err)
			return "", nil, false, false
		}
	}
}

// emitCompletion runs the post-stream stages and emits tool and complete
// events.
func (g *Gateway) emitCompletion(ctx context.Context, t *turn, full string, calls []message.ToolCall, yield func(stream.Event, error) bool) {
	result := g.finish(ctx, t, full, calls, func(res message.ToolResult) bool {
		return yield(stream.Tool(res), nil)
	})
	if result == nil {
		return
	}
	for _, w := range result.Warnings {
		if !yield(stream.Warning(w), nil) {
			return
		}
	}

	complete := stream.Complete(full, calls)
	complete.ToolResults = result.ToolResults
	yield(complete, nil)
}

// prepare runs the fatal stages: resolution, history loading, budgeting and
// translation.
func (g *Gateway) prepare(ctx context.Context, req *Request, streaming bool) (*turn, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	modelName := req.Model
	if modelName == "" {
		modelName = g.cfg.DefaultModel
	}
	desc, err := g.models.Resolve(modelName)
	if err != nil {
		return nil, err
	}
	adapter, err := g.adapters.Get(desc.Provider)
	if err != nil {
		return nil, err
	}
	pcfg, ok := g.cfg.Providers[desc.Provider]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", desc.Provider)
	}

	t := &turn{req: req, desc: desc, adapter: adapter, pcfg: pcfg}

	history := req.History
	t.convCtx = req.Context
	if history == nil && g.conv != nil && req.ConversationID != "" {
		stored, err := g.conv.GetHistory(ctx, req.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("load conversation history: %w", err)
		}
		history = stored.Messages
		if t.convCtx == nil {
			t.convCtx = stored.Context
		}
	}
	if t.convCtx == nil {
		t.convCtx = convctx.Context{}
	}
	if depth := g.cfg.MaxHistoryDepth; depth > 0 && len(history) > depth {
		history = history[len(history)-depth:]
	}

	adjusted := g.budgeter.Adjust(req.System, history, req.Prompt, desc.ContextWindow)
	if adjusted.Degraded() {
		t.warnings = append(t.warnings, fmt.Sprintf(
			"input trimmed to fit context window: dropped %d history messages", adjusted.DroppedHistory))
	}
	if adjusted.Exhausted {
		t.warnings = append(t.warnings, "token budget exhausted after trimming; sending best-effort input")
	}
	t.prompt = adjusted.Prompt

	messages := make([]*message.Message, 0, len(adjusted.History)+2)
	if adjusted.System != "" {
		messages = append(messages, message.NewMessage(message.RoleSystem, adjusted.System))
	}
	messages = append(messages, adjusted.History...)
	messages = append(messages, message.NewMessage(message.RoleUser, adjusted.Prompt))

	preq := &provider.Request{
		Model:            desc.Name,
		Messages:         messages,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stop:             req.Stop,
		MaxTokens:        req.MaxTokens,
		ToolChoice:       req.ToolChoice,
		ResponseFormat:   req.ResponseFormat,
		Stream:           streaming,
	}

	t.engine = g.engine
	specs := g.tools.Specs()
	if len(req.Tools) > 0 {
		// Request-scoped tools shadow the registered set for this turn.
		scoped := tool.NewRegistry()
		for _, def := range g.tools.List() {
			if err := scoped.Upsert(def); err != nil {
				return nil, err
			}
		}
		for _, def := range req.Tools {
			if err := scoped.Upsert(def); err != nil {
				return nil, err
			}
		}
		t.engine = g.engine.WithRegistry(scoped)
		specs = scoped.Specs()
	}
	if len(specs) > 0 {
		if desc.Supports(model.CapToolCalling) {
			preq.Tools = specs
		} else {
			t.warnings = append(t.warnings, fmt.Sprintf("model %s does not support tool calling; tools dropped", desc.Name))
			preq.ToolChoice = ""
		}
	}
	if preq.ResponseFormat == "json" && !desc.Supports(model.CapJSONResponse) {
		t.warnings = append(t.warnings, fmt.Sprintf("model %s does not support json responses; hint dropped", desc.Name))
		preq.ResponseFormat = ""
	}
	if streaming && !desc.Supports(model.CapStreaming) {
		t.warnings = append(t.warnings, fmt.Sprintf("model %s does not support streaming; falling back to a single response", desc.Name))
		preq.Stream = false
	}

	payload, warnings, err := adapter.Translate(preq)
	if err != nil {
		return nil, err
	}
	t.warnings = append(t.warnings, warnings...)
	t.preq = preq
	t.payload = payload
	return t, nil
}

func (t *turn) call() provider.Call {
	return provider.Call{
		Provider: t.desc.Provider,
		Endpoint: t.adapter.Endpoint(t.pcfg.BaseURL, t.pcfg.Credential, t.preq, t.preq.Stream),
		Headers:  t.adapter.Headers(t.pcfg.Credential),
		Payload:  t.payload,
	}
}

// finish runs the non-fatal stages of a turn: tool execution, context
// extraction and persistence. onTool, when set, is invoked per tool result
// as it becomes available; returning false stops the turn early.
func (g *Gateway) finish(ctx context.Context, t *turn, full string, calls []message.ToolCall, onTool func(message.ToolResult) bool) *Result {
	assistant := message.NewMessage(message.RoleAssistant, full)
	assistant.ToolCalls = calls

	var toolResults []message.ToolResult
	if len(calls) > 0 {
		toolResults = t.engine.Execute(store.WithObjects(ctx, g.objects), calls, map[string]string(t.convCtx))
		for _, res := range toolResults {
			if onTool != nil && !onTool(res) {
				return nil
			}
		}
	}

	updated := g.updater.Extract(ctx, t.prompt, full, t.convCtx)

	g.persist(ctx, t, assistant, toolResults, updated)

	return &Result{
		Message:     assistant,
		ToolResults: toolResults,
		Context:     updated,
		Warnings:    t.warnings,
	}
}

// persist hands the turn to the conversation store. Store failures degrade
// the turn, they never fail it.
func (g *Gateway) persist(ctx context.Context, t *turn, assistant *message.Message, toolResults []message.ToolResult, updated convctx.Context) {
	if g.conv == nil || t.req.ConversationID == "" {
		return
	}
	id := t.req.ConversationID

	// The budget-trimmed prompt is request-scoped; the stored history keeps
	// the caller's original so later turns do not compound truncation.
	userMsg := message.NewMessage(message.RoleUser, t.req.Prompt)
	if err := g.conv.Append(ctx, id, userMsg); err != nil {
		g.logger.Warn("failed to persist user message", "conversation", id, "error", err)
	}
	if err := g.conv.Append(ctx, id, assistant); err != nil {
		g.logger.Warn("failed to persist assistant message", "conversation", id, "error", err)
	}
	for i, res := range toolResults {
		callID := ""
		if i < len(assistant.ToolCalls) {
			callID = assistant.ToolCalls[i].ID
		}
		content := res.Result
		if res.Status == message.ToolStatusError {
			content = res.Error
		}
		if err := g.conv.Append(ctx, id, message.NewToolResponseMessage(callID, content)); err != nil {
			g.logger.Warn("failed to persist tool result", "conversation", id, "error", err)
		}
	}
	if err := g.conv.SetContext(ctx, id, updated); err != nil {
		g.logger.Warn("failed to persist conversation context", "conversation", id, "error", err)
	}
}
