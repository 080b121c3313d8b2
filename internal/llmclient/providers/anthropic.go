package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sweagent/core/internal/llmclient"
	"github.com/sweagent/core/internal/llmclient/toolconv"
	"github.com/sweagent/core/pkg/models"
)

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

// AnthropicProvider implements llmclient.Provider against Anthropic's
// native Messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider builds a provider bound to a single API key. The
// spec's secret-rotation concerns apply to Bedrock's multi-account
// rotation only; Anthropic has a single configured key (see
// secrets.Reader/CachingReader for how the key itself is sourced).
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}, nil
}

// Call implements llmclient.Provider.
func (p *AnthropicProvider) Call(ctx context.Context, modelID string, req llmclient.Request) (*llmclient.Response, error) {
	messages, err := toolconv.MessagesToAnthropic(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		Messages:  messages,
		MaxTokens: int64(req.Inference.MaxTokens),
	}

	if len(req.System) > 0 {
		params.System = toolconv.SystemToAnthropic(req.System)
	}

	if len(req.Tools) > 0 {
		tools, choice, err := toolconv.ToolsToAnthropic(req.Tools, req.ToolChoice)
		if err != nil {
			return nil, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
		if req.ToolChoice != nil {
			params.ToolChoice = choice
		}
	}

	if req.ReasoningEnabled {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.ReasoningBudget))
	}

	var callOpts []option.RequestOption
	if req.InterleavedThinking {
		callOpts = append(callOpts, option.WithHeader("anthropic-beta", "interleaved-thinking-2025-05-14"))
	}

	msg, err := p.client.Messages.New(ctx, params, callOpts...)
	if err != nil {
		if isThrottlingError(err) {
			return nil, &llmclient.ThrottlingError{Err: err}
		}
		return nil, fmt.Errorf("anthropic: messages.new: %w", err)
	}

	return anthropicResponseToNeutral(modelID, msg)
}

func anthropicResponseToNeutral(modelID string, msg *anthropic.Message) (*llmclient.Response, error) {
	content, err := toolconv.AnthropicContentToNeutral(msg.Content)
	if err != nil {
		return nil, err
	}

	resp := &llmclient.Response{
		ModelID: modelID,
		Content: content,
		Usage: models.Usage{
			InputTokens:           msg.Usage.InputTokens,
			OutputTokens:          msg.Usage.OutputTokens,
			CacheReadInputTokens:  msg.Usage.CacheReadInputTokens,
			CacheWriteInputTokens: msg.Usage.CacheCreationInputTokens,
		},
	}

	switch msg.StopReason {
	case anthropic.StopReasonToolUse:
		resp.StopReason = llmclient.StopToolUse
	case anthropic.StopReasonMaxTokens:
		resp.StopReason = llmclient.StopMaxTokens
	case anthropic.StopReasonStopSequence:
		resp.StopReason = llmclient.StopStopSequence
	default:
		resp.StopReason = llmclient.StopEndTurn
	}

	return resp, nil
}
