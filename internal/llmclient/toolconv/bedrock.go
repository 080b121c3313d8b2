// Package toolconv converts the provider-neutral request/response shape
// (internal/llmclient) to and from each backend's native wire format.
package toolconv

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/sweagent/core/internal/llmclient"
	"github.com/sweagent/core/pkg/models"
)

// MessagesToBedrock converts the neutral message log to Bedrock Converse
// message params, one block at a time.
func MessagesToBedrock(messages []*models.Message) ([]types.Message, error) {
	result := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		content, err := blocksToBedrock(m.Content)
		if err != nil {
			return nil, err
		}
		if len(content) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}
	return result, nil
}

func blocksToBedrock(blocks []models.ContentBlock) ([]types.ContentBlock, error) {
	out := make([]types.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case models.BlockText:
			out = append(out, &types.ContentBlockMemberText{Value: b.Text})

		case models.BlockImage:
			format, ok := bedrockImageFormat(b.Image.Format)
			if !ok {
				return nil, fmt.Errorf("toolconv: unsupported image format %q", b.Image.Format)
			}
			out = append(out, &types.ContentBlockMemberImage{
				Value: types.ImageBlock{Format: format, Source: &types.ImageSourceMemberBytes{Value: b.Image.Bytes}},
			})

		case models.BlockToolUse:
			var input any
			if err := json.Unmarshal(b.ToolUse.Input, &input); err != nil {
				input = map[string]any{}
			}
			out = append(out, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(b.ToolUse.ID),
					Name:      aws.String(b.ToolUse.Name),
					Input:     document.NewLazyDocument(input),
				},
			})

		case models.BlockToolResult:
			nested, err := blocksToBedrockToolResultContent(b.ToolResult.Content)
			if err != nil {
				return nil, err
			}
			out = append(out, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(b.ToolResult.ToolUseID),
					Content:   nested,
					Status:    bedrockToolResultStatus(b.ToolResult.Status),
				},
			})

		case models.BlockReasoning:
			out = append(out, &types.ContentBlockMemberReasoningContent{
				Value: &types.ReasoningContentBlockMemberReasoningText{
					Value: types.ReasoningTextBlock{
						Text:      aws.String(b.Reasoning.Text),
						Signature: aws.String(b.Reasoning.Signature),
					},
				},
			})

		case models.BlockCachePoint:
			out = append(out, &types.ContentBlockMemberCachePoint{
				Value: types.CachePointBlock{Type: types.CachePointTypeDefault},
			})
		}
	}
	return out, nil
}

func blocksToBedrockToolResultContent(blocks []models.ContentBlock) ([]types.ToolResultContentBlock, error) {
	out := make([]types.ToolResultContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case models.BlockText:
			out = append(out, &types.ToolResultContentBlockMemberText{Value: b.Text})
		case models.BlockImage:
			format, ok := bedrockImageFormat(b.Image.Format)
			if !ok {
				return nil, fmt.Errorf("toolconv: unsupported tool-result image format %q", b.Image.Format)
			}
			out = append(out, &types.ToolResultContentBlockMemberImage{
				Value: types.ImageBlock{Format: format, Source: &types.ImageSourceMemberBytes{Value: b.Image.Bytes}},
			})
		}
	}
	return out, nil
}

func bedrockToolResultStatus(status models.ToolResultStatus) types.ToolResultStatus {
	if status == models.ToolResultStatusError {
		return types.ToolResultStatusError
	}
	return types.ToolResultStatusSuccess
}

func bedrockImageFormat(format string) (types.ImageFormat, bool) {
	switch format {
	case "png":
		return types.ImageFormatPng, true
	case "jpeg", "jpg":
		return types.ImageFormatJpeg, true
	case "gif":
		return types.ImageFormatGif, true
	case "webp":
		return types.ImageFormatWebp, true
	}
	return "", false
}

// SystemToBedrock converts the neutral system prompt blocks. A cache
// point following a system block becomes its own SystemContentBlock, per
// the Bedrock Converse cache-point contract.
func SystemToBedrock(blocks []llmclient.SystemBlock) []types.SystemContentBlock {
	out := make([]types.SystemContentBlock, 0, len(blocks)+1)
	for _, b := range blocks {
		out = append(out, &types.SystemContentBlockMemberText{Value: b.Text})
		if b.CachePoint {
			out = append(out, &types.SystemContentBlockMemberCachePoint{
				Value: types.CachePointBlock{Type: types.CachePointTypeDefault},
			})
		}
	}
	return out
}

// ToolsToBedrock converts the neutral tool catalog and tool-choice to a
// Bedrock ToolConfiguration.
func ToolsToBedrock(tools []llmclient.Tool, choice *llmclient.ToolChoice) (*types.ToolConfiguration, error) {
	cfg := &types.ToolConfiguration{Tools: make([]types.Tool, 0, len(tools))}
	for _, t := range tools {
		var schema any
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("toolconv: invalid schema for tool %q: %w", t.Name, err)
		}
		cfg.Tools = append(cfg.Tools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
		if t.CachePoint {
			cfg.Tools = append(cfg.Tools, &types.ToolMemberCachePoint{
				Value: types.CachePointBlock{Type: types.CachePointTypeDefault},
			})
		}
	}
	if choice != nil {
		switch choice.Kind {
		case llmclient.ToolChoiceAny:
			cfg.ToolChoice = &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}
		case llmclient.ToolChoiceTool:
			cfg.ToolChoice = &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(choice.Name)}}
		default:
			cfg.ToolChoice = &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}}
		}
	}
	return cfg, nil
}

// BedrockContentToNeutral inverts a Bedrock assistant message's content
// back into the neutral block shape.
func BedrockContentToNeutral(blocks []types.ContentBlock) ([]models.ContentBlock, error) {
	out := make([]models.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case *types.ContentBlockMemberText:
			out = append(out, models.Text(v.Value))

		case *types.ContentBlockMemberToolUse:
			var raw any
			if err := v.Value.Input.UnmarshalSmithyDocument(&raw); err != nil {
				return nil, fmt.Errorf("toolconv: decode tool-use input: %w", err)
			}
			input, err := json.Marshal(raw)
			if err != nil {
				return nil, fmt.Errorf("toolconv: marshal tool-use input: %w", err)
			}
			out = append(out, models.ContentBlock{
				Kind: models.BlockToolUse,
				ToolUse: &models.ToolUseBlock{
					ID:    aws.ToString(v.Value.ToolUseId),
					Name:  aws.ToString(v.Value.Name),
					Input: input,
				},
			})

		case *types.ContentBlockMemberReasoningContent:
			if rt, ok := v.Value.(*types.ReasoningContentBlockMemberReasoningText); ok {
				out = append(out, models.ContentBlock{
					Kind: models.BlockReasoning,
					Reasoning: &models.ReasoningBlock{
						Text:      aws.ToString(rt.Value.Text),
						Signature: aws.ToString(rt.Value.Signature),
					},
				})
			}
		}
	}
	return out, nil
}
