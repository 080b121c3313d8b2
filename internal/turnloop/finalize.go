package turnloop

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sweagent/core/pkg/models"
)

// thinkingTagRe strips any inline <thinking>...</thinking> wrapper a
// provider may have left in a text block, as distinct from the
// structured reasoning blocks the Context Manager already excludes from
// VisibleText.
var thinkingTagRe = regexp.MustCompile(`(?s)<thinking>.*?</thinking>`)

// finalize implements the FINALIZE state: persist the assistant message,
// emit the visible reply, maybe generate a title, and return the session
// to pending.
func (l *Loop) finalize(ctx context.Context, workerID string, meta sessionMeta, content []models.ContentBlock, transcript []string) error {
	if content == nil {
		content = []models.ContentBlock{models.Text("")}
	}

	msg := &models.Message{
		Role:    models.RoleAssistant,
		Type:    models.MessageTypeAssistantResponse,
		Content: content,
	}
	if _, err := l.Messages.Append(ctx, workerID, msg); err != nil {
		return fmt.Errorf("turnloop: finalize: persist assistant message: %w", err)
	}

	text := stripThinking(visibleText(content))
	l.Events.Publish(ctx, workerID, models.NewMessageEvent(models.RoleAssistant, text))

	if text != "" {
		transcript = append(transcript, text)
	}
	if title, ok := l.Sessions.MaybeGenerateTitle(ctx, workerID, strings.Join(transcript, "\n")); ok {
		l.Events.Publish(ctx, workerID, models.NewSessionTitleUpdateEvent(title))
	}

	if err := l.Sessions.UpdateStatus(ctx, workerID, models.AgentStatusPending); err != nil {
		return fmt.Errorf("turnloop: finalize: set status pending: %w", err)
	}
	return nil
}

func stripThinking(text string) string {
	return thinkingTagRe.ReplaceAllString(text, "")
}
