// Package anthropic adapts the portable llm.Provider contract to the
// secondary LLM vendor, used when LLM_PROVIDER=anthropic.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/metastable-lab/roleplay/internal/config"
	"github.com/metastable-lab/roleplay/internal/llm"
	"github.com/metastable-lab/roleplay/internal/observability"
)

// Client implements llm.Provider against the Anthropic Messages API.
type Client struct {
	sdk      sdk.Client
	model    string
	cacheCfg config.AnthropicPromptCacheConfig
}

// New builds a Client from config.
func New(cfg config.AnthropicConfig, httpClient *http.Client) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(observability.NewHTTPClient(httpClient)))
	}
	return &Client{
		sdk:      sdk.NewClient(opts...),
		model:    cfg.Model,
		cacheCfg: cfg.PromptCache,
	}
}

// Chat performs the single non-streaming invocation.
func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	system, messages := adaptMessages(req.Messages, c.cacheCfg)
	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: maxTokens,
		System:    system,
		Messages:  messages,
	}
	if len(req.Tools) > 0 {
		tools, err := adaptTools(req.Tools)
		if err != nil {
			return llm.Response{}, fmt.Errorf("anthropic: adapt tools: %w", err)
		}
		params.Tools = tools
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return llm.Response{}, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return messageFromResponse(resp), nil
}

func adaptTools(tools []llm.ToolSchema) ([]sdk.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("anthropic: tool name required")
		}
		schema := sdk.ToolInputSchemaParam{Type: constant.ValueOf[constant.Object]()}
		extras := map[string]any{}
		for k, v := range t.Parameters {
			extras[k] = v
		}
		if props, ok := extras["properties"]; ok {
			schema.Properties = props
			delete(extras, "properties")
		}
		if req, ok := extras["required"]; ok {
			delete(extras, "required")
			switch v := req.(type) {
			case []string:
				schema.Required = v
			case []any:
				for _, item := range v {
					if s, ok := item.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}
		delete(extras, "type")
		if len(extras) > 0 {
			schema.ExtraFields = extras
		}
		param := sdk.ToolParam{Name: t.Name, InputSchema: schema}
		if t.Description != "" {
			param.Description = sdk.String(t.Description)
		}
		out = append(out, sdk.ToolUnionParam{OfTool: &param})
	}
	return out, nil
}

// adaptMessages converts the portable message sequence into Anthropic's
// split system/messages shape. The secondary vendor does not carry the
// Image-Agent extension; ImageURL fields are dropped here
// and only honored by the primary OpenAI-compatible provider.
func adaptMessages(msgs []llm.Message, cache config.AnthropicPromptCacheConfig) ([]sdk.TextBlockParam, []sdk.MessageParam) {
	var system []sdk.TextBlockParam
	var out []sdk.MessageParam
	cacheControl := sdk.CacheControlEphemeralParam{TTL: sdk.CacheControlEphemeralTTLTTL5m}
	if cache.TTL == "1h" {
		cacheControl.TTL = sdk.CacheControlEphemeralTTLTTL1h
	}
	for _, m := range msgs {
		switch m.Role {
		case "system":
			if cache.Enabled {
				system = append(system, sdk.TextBlockParam{Text: m.Content, CacheControl: cacheControl})
			} else {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case "user":
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case "assistant":
			blocks := []sdk.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for i, tc := range m.ToolCalls {
				id := tc.ID
				if id == "" {
					id = fmt.Sprintf("call-%d", i+1)
				}
				blocks = append(blocks, sdk.NewToolUseBlock(id, decodeArgs(tc.Args), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, sdk.NewAssistantMessage(blocks...))
			}
		case "tool":
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolID, m.Content, false)))
		}
	}
	return system, out
}

func decodeArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func messageFromResponse(resp *sdk.Message) llm.Response {
	out := llm.Response{
		Message:      llm.Message{Role: "assistant"},
		FinishReason: string(resp.StopReason),
	}
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case sdk.TextBlock:
			out.Message.Content += variant.Text
		case sdk.ToolUseBlock:
			args, _ := json.Marshal(variant.Input)
			out.Message.ToolCalls = append(out.Message.ToolCalls, llm.ToolCall{
				ID:   variant.ID,
				Name: variant.Name,
				Args: args,
			})
		}
	}
	out.Usage = llm.Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}
	return out
}
