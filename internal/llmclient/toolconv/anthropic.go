package toolconv

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/sweagent/core/internal/llmclient"
	"github.com/sweagent/core/pkg/models"
)

// MessagesToAnthropic converts the neutral message log to Anthropic
// MessageParams, honoring message-level cache points (§4.D: cache
// markers become `ephemeral` cache_control).
func MessagesToAnthropic(messages []*models.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		content, err := blocksToAnthropic(m.Content)
		if err != nil {
			return nil, err
		}
		if len(content) == 0 {
			continue
		}
		if m.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func blocksToAnthropic(blocks []models.ContentBlock) ([]anthropic.ContentBlockParamUnion, error) {
	var out []anthropic.ContentBlockParamUnion

	for _, b := range blocks {
		if b.Kind == models.BlockCachePoint {
			// A cache point closes the prefix that ends at the block before it.
			if len(out) > 0 {
				applyCacheControl(&out[len(out)-1])
			}
			continue
		}

		var block anthropic.ContentBlockParamUnion
		switch b.Kind {
		case models.BlockText:
			block = anthropic.NewTextBlock(b.Text)

		case models.BlockImage:
			block = anthropic.NewImageBlockBase64("image/"+b.Image.Format, base64.StdEncoding.EncodeToString(b.Image.Bytes))

		case models.BlockToolUse:
			var input map[string]any
			if err := json.Unmarshal(b.ToolUse.Input, &input); err != nil {
				return nil, fmt.Errorf("toolconv: invalid tool-use input for %s: %w", b.ToolUse.Name, err)
			}
			block = anthropic.NewToolUseBlock(b.ToolUse.ID, input, b.ToolUse.Name)

		case models.BlockToolResult:
			text := ""
			for _, c := range b.ToolResult.Content {
				if c.Kind == models.BlockText {
					text += c.Text
				}
			}
			block = anthropic.NewToolResultBlock(b.ToolResult.ToolUseID, text, b.ToolResult.Status == models.ToolResultStatusError)

		case models.BlockReasoning:
			block = anthropic.NewThinkingBlock(b.Reasoning.Signature, b.Reasoning.Text)

		default:
			continue
		}

		out = append(out, block)
	}
	return out, nil
}

// applyCacheControl marks a content block as an ephemeral cache boundary.
// Only a subset of block kinds accept cache_control on Anthropic's API
// (text, tool_use, tool_result); others silently keep no cache marker.
func applyCacheControl(block *anthropic.ContentBlockParamUnion) {
	switch {
	case block.OfText != nil:
		block.OfText.CacheControl = anthropic.NewCacheControlEphemeralParam()
	case block.OfToolUse != nil:
		block.OfToolUse.CacheControl = anthropic.NewCacheControlEphemeralParam()
	case block.OfToolResult != nil:
		block.OfToolResult.CacheControl = anthropic.NewCacheControlEphemeralParam()
	}
}

// SystemToAnthropic converts the neutral system prompt blocks, applying
// cache_control to any block flagged with a cache point.
func SystemToAnthropic(blocks []llmclient.SystemBlock) []anthropic.TextBlockParam {
	out := make([]anthropic.TextBlockParam, 0, len(blocks))
	for _, b := range blocks {
		tb := anthropic.TextBlockParam{Type: "text", Text: b.Text}
		if b.CachePoint {
			tb.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		out = append(out, tb)
	}
	return out
}

// ToolsToAnthropic converts the neutral tool catalog and resolves
// tool-choice, applying cache_control to every cache-flagged tool
// (Anthropic caches the tool list as a prefix, so one marker covers every
// tool before it).
func ToolsToAnthropic(tools []llmclient.Tool, choice *llmclient.ToolChoice) ([]anthropic.ToolUnionParam, anthropic.ToolChoiceUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			return nil, anthropic.ToolChoiceUnionParam{}, fmt.Errorf("toolconv: invalid schema for tool %q: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(t.Description)
			if t.CachePoint {
				param.OfTool.CacheControl = anthropic.NewCacheControlEphemeralParam()
			}
		}
		result = append(result, param)
	}

	var toolChoice anthropic.ToolChoiceUnionParam
	if choice != nil {
		switch choice.Kind {
		case llmclient.ToolChoiceAny:
			toolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		case llmclient.ToolChoiceTool:
			toolChoice = anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name}}
		default:
			toolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}
	return result, toolChoice, nil
}

// AnthropicContentToNeutral inverts an Anthropic response message's
// content blocks back into the neutral shape.
func AnthropicContentToNeutral(blocks []anthropic.ContentBlockUnion) ([]models.ContentBlock, error) {
	out := make([]models.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			out = append(out, models.Text(b.Text))

		case "tool_use":
			input, err := json.Marshal(b.Input)
			if err != nil {
				return nil, fmt.Errorf("toolconv: marshal tool-use input: %w", err)
			}
			out = append(out, models.ContentBlock{
				Kind:    models.BlockToolUse,
				ToolUse: &models.ToolUseBlock{ID: b.ID, Name: b.Name, Input: input},
			})

		case "thinking":
			out = append(out, models.ContentBlock{
				Kind:      models.BlockReasoning,
				Reasoning: &models.ReasoningBlock{Text: b.Thinking, Signature: b.Signature},
			})
		}
	}
	return out, nil
}
