// Package openai adapts the portable llm.Provider contract to the OpenAI
// (and OpenAI-compatible) chat/completions API via the vendor SDK.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/metastable-lab/roleplay/internal/config"
	"github.com/metastable-lab/roleplay/internal/llm"
	"github.com/metastable-lab/roleplay/internal/observability"
	"github.com/metastable-lab/roleplay/internal/rlog"
)

// Client implements llm.Provider against an OpenAI-compatible endpoint.
type Client struct {
	sdk         sdk.Client
	model       string
	logPayloads bool
}

// New builds a Client from config. The caller's httpClient, if non-nil, is
// wrapped with tracing by observability.NewHTTPClient before use.
func New(cfg config.OpenAIConfig, httpClient *http.Client) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(observability.NewHTTPClient(httpClient)))
	}
	return &Client{
		sdk:         sdk.NewClient(opts...),
		model:       cfg.Model,
		logPayloads: cfg.LogPayloads,
	}
}

// Chat performs the single non-streaming invocation: assemble the
// request, POST it, and hand back the raw response
// shape. Tool-arity/parse enforcement happens one layer up in internal/agent,
// which is the only caller that knows which Tool type to decode into.
func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	params := sdk.ChatCompletionNewParams{
		Model:       model,
		Messages:    adaptMessages(req.Messages),
		Temperature: sdk.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = adaptTools(req.Tools)
		params.ToolChoice = sdk.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: sdk.String("auto"),
		}
	}
	extra := map[string]any{}
	if req.Image != nil {
		if len(req.Image.Modalities) > 0 {
			extra["modalities"] = req.Image.Modalities
		}
		if req.Image.ReasoningEffort != "" {
			extra["reasoning"] = map[string]any{"effort": req.Image.ReasoningEffort}
		}
	}
	if len(extra) > 0 {
		params.SetExtraFields(extra)
	}

	if c.logPayloads {
		ev := rlog.LoggerWithTrace(ctx).Debug().
			Str("component", "llm.openai").
			Str("model", model).
			Int("message_count", len(req.Messages))
		if raw, err := json.Marshal(req.Messages); err == nil {
			ev = ev.RawJSON("messages", rlog.RedactJSON(raw))
		}
		ev.Msg("chat request")
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Response{}, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("openai: no choices returned")
	}
	choice := resp.Choices[0]

	out := llm.Response{
		Message: llm.Message{
			Role:    "assistant",
			Content: choice.Message.Content,
		},
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.Message.ToolCalls = append(out.Message.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: []byte(tc.Function.Arguments),
		})
	}
	out.Usage = llm.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return out, nil
}

func adaptTools(schemas []llm.ToolSchema) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, sdk.ChatCompletionFunctionTool(sdk.FunctionDefinitionParam{
			Name:        s.Name,
			Description: sdk.String(s.Description),
			Parameters:  s.Parameters,
			Strict:      sdk.Bool(true),
		}))
	}
	return out
}

func adaptMessages(msgs []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "user":
			if m.ImageURL != "" {
				out = append(out, sdk.UserMessage([]sdk.ChatCompletionContentPartUnionParam{{
					OfImageURL: &sdk.ChatCompletionContentPartImageParam{
						ImageURL: sdk.ChatCompletionContentPartImageImageURLParam{URL: m.ImageURL},
					},
				}}))
				continue
			}
			out = append(out, sdk.UserMessage(m.Content))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, sdk.AssistantMessage(m.Content))
				continue
			}
			asst := sdk.ChatCompletionAssistantMessageParam{}
			asst.Content.OfString = sdk.String(m.Content)
			for _, tc := range m.ToolCalls {
				fn := sdk.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				}
				asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{OfFunction: &fn})
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case "tool":
			out = append(out, sdk.ToolMessage(m.Content, m.ToolID))
		}
	}
	return out
}
