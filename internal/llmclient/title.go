package llmclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/sweagent/core/pkg/models"
)

// haikuModelID is the cheap, fast model used for session titling (§4.B
// "invoke the LLM Client with a cheap model (haiku-class)").
const haikuModelID = "claude-3-5-haiku-20241022"

// titlePrompt is the fixed instruction given alongside the transcript.
const titlePrompt = "Summarize this conversation in 15 characters or fewer, in the conversation's own language. Reply with the title only, no punctuation or quotes."

// TitleGenerator adapts Client to sessionstore.TitleGenerator, issuing a
// single untooled Converse call against the haiku-class model.
type TitleGenerator struct {
	Client *Client
}

// GenerateTitle implements sessionstore.TitleGenerator. workerID is
// threaded through to Converse so the call is billed and ledgered
// against the session that actually triggered it, not a shared constant
// (§4.C per-(workerId, modelId) accounting).
func (g *TitleGenerator) GenerateTitle(ctx context.Context, workerID, transcript string) (string, error) {
	req := Request{
		System:    []SystemBlock{{Text: titlePrompt}},
		Messages:  []*models.Message{{Role: models.RoleUser, Content: []models.ContentBlock{models.Text(transcript)}}},
		Inference: InferenceConfig{MaxTokens: 32},
	}
	result, err := g.Client.Converse(ctx, workerID, []string{haikuModelID}, req, 0)
	if err != nil {
		return "", fmt.Errorf("llmclient: generate title: %w", err)
	}
	return strings.TrimSpace(contentText(result.Response.Content)), nil
}

func contentText(content []models.ContentBlock) string {
	var sb strings.Builder
	for _, b := range content {
		if b.Kind == models.BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
