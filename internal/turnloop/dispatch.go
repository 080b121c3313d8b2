package turnloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sweagent/core/internal/llmclient"
	"github.com/sweagent/core/internal/tools"
	"github.com/sweagent/core/pkg/models"
)

// dispatchTools implements the DISPATCH TOOLS state: each toolUse block
// the model requested is resolved sequentially, its toolUse/toolResult
// pair persisted atomically, and a pair of events emitted. Cancellation
// is checked before each tool so a cancel observed mid-dispatch never
// leaves a toolUse persisted without its toolResult.
func (l *Loop) dispatchTools(ctx context.Context, workerID string, meta sessionMeta, result *llmclient.Result, toolUses []models.ContentBlock, transcript []string, cancel *CancelToken) ([]string, error) {
	for _, block := range toolUses {
		if cancel != nil && cancel.IsCancelled() {
			return transcript, errCancelled
		}
		if block.ToolUse == nil {
			continue
		}
		use := block.ToolUse

		execMeta := tools.ExecMeta{
			ToolUseID:   use.ID,
			WorkerID:    workerID,
			Preferences: &meta.prefs,
		}

		spanCtx, span := l.startSpan(ctx, "turnloop.dispatch_tool")
		dispatchResult := l.Dispatcher.Dispatch(spanCtx, use.Name, use.Input, execMeta)
		span.End()

		resultBlock := tools.ToolResultBlock(use.ID, dispatchResult)

		toolUseMsg := &models.Message{
			Role:           models.RoleAssistant,
			Type:           models.MessageTypeToolUse,
			Content:        []models.ContentBlock{block},
			ThinkingBudget: result.ThinkingBudget,
		}
		toolResultMsg := &models.Message{
			Role:    models.RoleUser,
			Type:    models.MessageTypeToolResult,
			Content: []models.ContentBlock{resultBlock},
		}

		if _, _, err := l.Messages.AppendPair(ctx, workerID, toolUseMsg, toolResultMsg); err != nil {
			return transcript, fmt.Errorf("turnloop: persist tool pair: %w", err)
		}

		l.Events.Publish(ctx, workerID, models.NewToolUseEvent(use.Name, use.ID, string(use.Input), result.ThinkingBudget, ""))
		l.Events.Publish(ctx, workerID, models.NewToolResultEvent(use.Name, use.ID, outputText(dispatchResult)))

		if use.Name == "reportProgress" {
			if text, ok := reportProgressText(use.Input); ok {
				transcript = append(transcript, text)
			}
		}
	}
	return transcript, nil
}

func outputText(result tools.DispatchResult) string {
	var out string
	for _, b := range result.Content {
		if b.Kind == models.BlockText {
			out += b.Text
		}
	}
	return out
}

func reportProgressText(input json.RawMessage) (string, bool) {
	var params struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(input, &params); err != nil || params.Message == "" {
		return "", false
	}
	return params.Message, true
}
