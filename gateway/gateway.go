// Package gateway orchestrates a completion turn: model resolution, token
// budgeting, request translation, the provider call, stream normalization,
// tool execution and context extraction. Resolution and transport failures
// are terminal for the turn; tool and context failures degrade it.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/modelgate/budget"
	"github.com/sweetpotato0/modelgate/config"
	"github.com/sweetpotato0/modelgate/convctx"
	"github.com/sweetpotato0/modelgate/message"
	"github.com/sweetpotato0/modelgate/model"
	"github.com/sweetpotato0/modelgate/pkg/logging"
	"github.com/sweetpotato0/modelgate/provider"
	"github.com/sweetpotato0/modelgate/store"
	"github.com/sweetpotato0/modelgate/tool"
)

// Gateway routes provider-agnostic completion requests to vendor adapters.
// It holds no per-conversation state: everything mutable is scoped to one
// turn.
type Gateway struct {
	cfg      *config.Config
	models   *model.Registry
	adapters *provider.Registry
	budgeter *budget.Budgeter
	tools    *tool.Registry
	engine   *tool.Engine

	client    *provider.Client // primary calls
	ctxClient *provider.Client // context extraction, independent timeout

	updater *convctx.Updater
	conv    store.ConversationStore
	objects store.ObjectStore
	logger  *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithEstimator swaps the token estimator used for budgeting.
func WithEstimator(est budget.Estimator) Option {
	return func(g *Gateway) {
		g.budgeter = budget.New(
			budget.WithEstimator(est),
			budget.WithResponseReserve(g.cfg.ResponseReserve),
		)
	}
}

// WithConversationStore attaches the persistence collaborator.
func WithConversationStore(s store.ConversationStore) Option {
	return func(g *Gateway) { g.conv = s }
}

// WithObjectStore makes an artifact store reachable from tool handlers
// through store.ObjectsFrom on the execution context.
func WithObjectStore(s store.ObjectStore) Option {
	return func(g *Gateway) { g.objects = s }
}

// WithToolParallelism allows up to n tool calls per turn to run
// concurrently.
func WithToolParallelism(n int) Option {
	return func(g *Gateway) {
		g.engine = tool.NewEngine(g.tools, tool.WithParallelism(n))
	}
}

// New creates a gateway from the configuration, model catalog and adapter
// registry.
func New(cfg *config.Config, models *model.Registry, adapters *provider.Registry, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gateway config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tools := tool.NewRegistry()
	g := &Gateway{
		cfg:       cfg,
		models:    models,
		adapters:  adapters,
		budgeter:  budget.New(budget.WithResponseReserve(cfg.ResponseReserve)),
		tools:     tools,
		engine:    tool.NewEngine(tools),
		client:    provider.NewClient(cfg.CallTimeout),
		ctxClient: provider.NewClient(cfg.ContextTimeout),
		logger:    logging.WithComponent("gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}

	contextModel := cfg.ContextModel
	if contextModel == "" {
		contextModel = cfg.DefaultModel
	}
	g.updater = convctx.NewUpdater(&secondaryCompleter{g: g}, contextModel)

	return g, nil
}

// RegisterTool adds a tool definition to the gateway's registry.
func (g *Gateway) RegisterTool(def *tool.Definition) error {
	return g.tools.Register(def)
}

// secondaryCompleter backs the context updater with a plain non-streaming
// call through the gateway's adapters, using the independent timeout.
type secondaryCompleter struct {
	g *Gateway
}

func (c *secondaryCompleter) Complete(ctx context.Context, modelName, system, prompt string) (string, error) {
	g := c.g
	desc, err := g.models.Resolve(modelName)
	if err != nil {
		return "", err
	}
	adapter, err := g.adapters.Get(desc.Provider)
	if err != nil {
		return "", err
	}
	pcfg, ok := g.cfg.Providers[desc.Provider]
	if !ok {
		return "", fmt.Errorf("provider %q not configured", desc.Provider)
	}

	req := &provider.Request{
		Model: desc.Name,
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, system),
			message.NewMessage(message.RoleUser, prompt),
		},
	}
	payload, _, err := adapter.Translate(req)
	if err != nil {
		return "", err
	}

	body, err := g.ctxClient.Do(ctx, provider.Call{
		Provider: desc.Provider,
		Endpoint: adapter.Endpoint(pcfg.BaseURL, pcfg.Credential, req, false),
		Headers:  adapter.Headers(pcfg.Credential),
		Payload:  payload,
	})
	if err != nil {
		return "", err
	}
	resp, err := adapter.ParseResponse(body)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
