// Package agent implements the Agent Contract: a typed binding
// of one SystemConfig name, one Tool schema, and one Input shape to a single
// LLM invocation with enforced tool arity, strict parsing, and usage
// accounting. Concrete agents (roleplay, fact extraction, graph extraction)
// are values of Agent[I, T] rather than subclasses; the compiler pins each
// agent's Input and Tool, so dispatch never goes through reflection.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/llm"
	"github.com/metastable-lab/roleplay/internal/persistence/store"
	"github.com/metastable-lab/roleplay/internal/rlog"
	"github.com/metastable-lab/roleplay/internal/rpcerr"
	"github.com/metastable-lab/roleplay/internal/systemconfig"
	"github.com/metastable-lab/roleplay/internal/toolschema"
)

// Caller identifies who the invocation is billed and scoped to. The user id
// is opaque and already authenticated.
type Caller struct {
	UserID string
}

// Runtime bundles the process-wide collaborators every agent call shares:
// the vendor client, the retry budgets, and the per-call deadline.
type Runtime struct {
	Provider    llm.Provider
	ToolRetries int
	LLMRetries  int
	CallTimeout time.Duration
}

// NewRuntime uses the given tool-retry budget and call timeout, falling back
// to 1 tool retry when toolRetries is negative and to 3600 s when
// callTimeout is not positive; the transient-retry budget is always 2.
func NewRuntime(provider llm.Provider, toolRetries int, callTimeout time.Duration) *Runtime {
	if toolRetries < 0 {
		toolRetries = 1
	}
	if callTimeout <= 0 {
		callTimeout = 3600 * time.Second
	}
	return &Runtime{
		Provider:    provider,
		ToolRetries: toolRetries,
		LLMRetries:  2,
		CallTimeout: callTimeout,
	}
}

// RunResponse is the outcome of one successful invocation.
type RunResponse[T toolschema.Tool] struct {
	Caller       Caller
	Content      string
	Tool         T
	Usage        llm.Usage
	FinishReason string
	SystemConfig domain.SystemConfig
	MiscValue    any
}

// Agent binds (SYSTEM_CONFIG_NAME, Tool, Input). Definition is the in-code
// authoritative SystemConfig the store reconciles to at boot; NewTool must
// return a fresh zero value per call so parses never share state.
type Agent[I any, T toolschema.Tool] struct {
	Definition domain.SystemConfig
	NewTool    func() T
	// BuildInput is the pure prompt composition step.
	BuildInput func(in *I) ([]domain.Prompt, error)
	// HandleOutput runs the agent's domain side effects after a successful
	// call; nil when the caller owns persistence (the roleplay engine does).
	HandleOutput func(ctx context.Context, in *I, resp *RunResponse[T]) (any, error)
	// Image carries the Image-Agent extension's modality hints; nil for
	// text-only agents.
	Image *llm.ImageOptions

	resolved domain.SystemConfig
	loaded   bool
}

// Name is the agent's SYSTEM_CONFIG_NAME.
func (a *Agent[I, T]) Name() string { return a.Definition.Name }

// Preload reads-or-inserts the SystemConfig by name, bumping the stored
// version on drift. Must be called once at boot before
// Call; drift failures are fatal at boot per the taxonomy.
func (a *Agent[I, T]) Preload(ctx context.Context, st store.Store) error {
	def := a.Definition
	def.Functions = []string{a.NewTool().ToolName()}
	err := st.WithTx(ctx, func(tx store.Tx) error {
		resolved, err := systemconfig.UpsertByName(ctx, tx, def)
		if err != nil {
			return err
		}
		a.resolved = resolved
		return nil
	})
	if err != nil {
		return rpcerr.New(rpcerr.SchemaDrift, "agent.Preload", err)
	}
	a.loaded = true
	return nil
}

// SystemConfig returns the store-resolved config, falling back to the
// in-code definition before Preload has run (tests exercise agents without
// a store).
func (a *Agent[I, T]) SystemConfig() domain.SystemConfig {
	if a.loaded {
		return a.resolved
	}
	return a.Definition
}

// Call performs the single LLM invocation: assemble the
// request with the agent's one tool, require exactly one returned tool call,
// parse it strictly, and account usage. ToolArity/ToolParse failures retry
// up to rt.ToolRetries; Timeout/Transient failures retry up to rt.LLMRetries
// with jitter; everything else surfaces immediately.
func (a *Agent[I, T]) Call(ctx context.Context, rt *Runtime, caller Caller, in *I) (*RunResponse[T], error) {
	prompts, err := a.BuildInput(in)
	if err != nil {
		return nil, err
	}
	cfg := a.SystemConfig()
	req := llm.Request{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Messages:    AdaptPrompts(prompts),
		Tools:       []llm.ToolSchema{toolschema.ToToolSchema(a.NewTool())},
		Image:       a.Image,
	}

	toolBudget := rt.ToolRetries
	llmBudget := rt.LLMRetries
	for {
		resp, err := a.callOnce(ctx, rt, caller, req)
		if err == nil {
			return resp, nil
		}
		switch {
		case rpcerr.Is(err, rpcerr.ToolArity) || rpcerr.Is(err, rpcerr.ToolParse):
			if toolBudget == 0 {
				return nil, err
			}
			toolBudget--
		case rpcerr.Retryable(err):
			if llmBudget == 0 {
				return nil, err
			}
			llmBudget--
			select {
			case <-time.After(jitter()):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		default:
			return nil, err
		}
		rlog.LoggerWithTrace(ctx).Warn().
			Str("component", "agent").
			Str("agent", a.Name()).
			Err(err).
			Msg("retrying llm call")
	}
}

func (a *Agent[I, T]) callOnce(ctx context.Context, rt *Runtime, caller Caller, req llm.Request) (*RunResponse[T], error) {
	cctx, cancel := context.WithTimeout(ctx, rt.CallTimeout)
	defer cancel()
	resp, err := rt.Provider.Chat(cctx, req)
	if err != nil {
		return nil, classify("agent.Call", err)
	}
	if n := len(resp.Message.ToolCalls); n != 1 {
		return nil, rpcerr.New(rpcerr.ToolArity, "agent.Call",
			fmt.Errorf("agent %s: expected exactly one tool call, got %d", a.Name(), n))
	}
	tool := a.NewTool()
	if err := toolschema.FromToolCall(tool, resp.Message.ToolCalls[0]); err != nil {
		return nil, rpcerr.New(rpcerr.ToolParse, "agent.Call", err)
	}
	if resp.Usage == (llm.Usage{}) {
		return nil, rpcerr.New(rpcerr.NoUsage, "agent.Call",
			fmt.Errorf("agent %s: vendor omitted usage", a.Name()))
	}
	return &RunResponse[T]{
		Caller:       caller,
		Content:      resp.Message.Content,
		Tool:         tool,
		Usage:        resp.Usage,
		FinishReason: resp.FinishReason,
		SystemConfig: a.SystemConfig(),
	}, nil
}

// Run is Call followed by HandleOutput, mirroring the original agent loop
// for agents that own their side effects (fact extraction does; the
// roleplay engine persists inside its own transaction instead).
func (a *Agent[I, T]) Run(ctx context.Context, rt *Runtime, caller Caller, in *I) (*RunResponse[T], error) {
	resp, err := a.Call(ctx, rt, caller, in)
	if err != nil {
		return nil, err
	}
	if a.HandleOutput != nil {
		misc, err := a.HandleOutput(ctx, in, resp)
		if err != nil {
			return nil, err
		}
		resp.MiscValue = misc
	}
	return resp, nil
}

// AdaptPrompts lowers composed domain Prompts onto the vendor-facing
// message shapes. An assistant prompt carrying a tool call is sent as plain
// assistant content holding the serialized call, the same way history turns
// were persisted; role ToolCall maps onto the vendor's tool role.
func AdaptPrompts(prompts []domain.Prompt) []llm.Message {
	out := make([]llm.Message, 0, len(prompts))
	for _, p := range prompts {
		m := llm.Message{Content: p.Content}
		switch p.Role {
		case domain.RoleSystem:
			m.Role = "system"
		case domain.RoleAssistant:
			m.Role = "assistant"
		case domain.RoleToolCall:
			m.Role = "tool"
		default:
			m.Role = "user"
		}
		if p.ContentType == domain.ContentImage {
			m.ImageURL = p.Content
			m.Content = ""
		}
		if p.ToolCall != nil && m.Content == "" {
			if raw, err := json.Marshal(p.ToolCall); err == nil {
				m.Content = string(raw)
			}
		}
		out = append(out, m)
	}
	return out
}

// classify folds transport errors into the taxonomy: deadline hits are
// Timeout, socket-level failures are Transient, the rest pass through.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return rpcerr.New(rpcerr.Timeout, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return rpcerr.New(rpcerr.Timeout, op, err)
		}
		return rpcerr.New(rpcerr.Transient, op, err)
	}
	return err
}

func jitter() time.Duration {
	return time.Duration(200+rand.Intn(600)) * time.Millisecond
}
