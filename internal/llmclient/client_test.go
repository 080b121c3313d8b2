package llmclient

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweagent/core/pkg/models"
)

type fakeProvider struct {
	lastModelID string
	lastReq     Request
	calls       int
	resp        *Response
	err         error
}

func (f *fakeProvider) Call(ctx context.Context, modelID string, req Request) (*Response, error) {
	f.calls++
	f.lastModelID = modelID
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func userMsg(text string) *models.Message {
	return &models.Message{Type: models.MessageTypeUserMessage, Role: models.RoleUser, Content: []models.ContentBlock{models.Text(text)}}
}

func TestConverse_SelectsOneOfCandidateModelsAndTracksLedger(t *testing.T) {
	fp := &fakeProvider{resp: &Response{ModelID: "claude-sonnet-4-20250514", StopReason: StopEndTurn}}
	c := New(fp, nil, nil)

	result, err := c.Converse(context.Background(), "w1", []string{"claude-sonnet-4-20250514"}, Request{
		Messages:  []*models.Message{userMsg("hi")},
		Inference: InferenceConfig{MaxTokens: 1024},
	}, 0)

	require.NoError(t, err)
	assert.Equal(t, 1, fp.calls)
	assert.Equal(t, "claude-sonnet-4-20250514", fp.lastModelID)
	assert.Equal(t, 0, result.ThinkingBudget)
}

func TestConverse_EnablesReasoningWhenSupportedAndToolChoiceUnset(t *testing.T) {
	fp := &fakeProvider{resp: &Response{}}
	c := New(fp, nil, nil)

	_, err := c.Converse(context.Background(), "w1", []string{"claude-sonnet-4-20250514"}, Request{
		Messages: []*models.Message{userMsg("hi")},
	}, 0)
	require.NoError(t, err)

	assert.True(t, fp.lastReq.ReasoningEnabled)
	assert.Equal(t, defaultReasoningBudget, fp.lastReq.ReasoningBudget)
}

func TestConverse_UltrathinkKeywordEscalatesBudgetAndIsReported(t *testing.T) {
	fp := &fakeProvider{resp: &Response{}}
	c := New(fp, nil, nil)

	result, err := c.Converse(context.Background(), "w1", []string{"claude-sonnet-4-20250514"}, Request{
		Messages: []*models.Message{userMsg("please ultrathink about this")},
	}, 0)
	require.NoError(t, err)

	assert.True(t, fp.lastReq.ReasoningEnabled)
	assert.Greater(t, fp.lastReq.ReasoningBudget, defaultReasoningBudget)
	assert.Equal(t, fp.lastReq.ReasoningBudget, result.ThinkingBudget)
}

func TestConverse_DropsUnsupportedToolChoice(t *testing.T) {
	fp := &fakeProvider{resp: &Response{}}
	c := New(fp, nil, nil)

	// Unlisted model ids fall back to an auto-only descriptor (CapabilitiesFor),
	// so a "tool" choice must be dropped during normalization.
	_, err := c.Converse(context.Background(), "w1", []string{"some-unlisted-model"}, Request{
		Messages:   []*models.Message{userMsg("hi")},
		ToolChoice: &ToolChoice{Kind: ToolChoiceTool, Name: "x"},
	}, 0)
	require.NoError(t, err)
	assert.Nil(t, fp.lastReq.ToolChoice)
}

func TestConverse_DoesNotInjectReasoningIntoInProgressToolChain(t *testing.T) {
	fp := &fakeProvider{resp: &Response{}}
	c := New(fp, nil, nil)

	messages := []*models.Message{
		{Type: models.MessageTypeToolUse, Content: []models.ContentBlock{
			{Kind: models.BlockToolUse, ToolUse: &models.ToolUseBlock{ID: "t1", Name: "x", Input: json.RawMessage(`{}`)}},
		}},
		{Type: models.MessageTypeToolResult, Content: []models.ContentBlock{
			{Kind: models.BlockToolResult, ToolResult: &models.ToolResultBlock{ToolUseID: "t1", Status: models.ToolResultStatusSuccess}},
		}},
	}

	_, err := c.Converse(context.Background(), "w1", []string{"claude-sonnet-4-20250514"}, Request{Messages: messages}, 0)
	require.NoError(t, err)
	assert.False(t, fp.lastReq.ReasoningEnabled)
}

func TestConverse_PrunesCachePointsForUnsupportedLocation(t *testing.T) {
	fp := &fakeProvider{resp: &Response{}}
	c := New(fp, nil, nil)

	messages := []*models.Message{
		{Type: models.MessageTypeUserMessage, Content: []models.ContentBlock{models.Text("hi"), models.CachePoint()}},
	}

	_, err := c.Converse(context.Background(), "w1", []string{"unknown-model-id"}, Request{Messages: messages}, 0)
	require.NoError(t, err)

	for _, b := range fp.lastReq.Messages[0].Content {
		assert.NotEqual(t, models.BlockCachePoint, b.Kind)
	}
}

func TestConverse_MaxTokensStopReasonReturnsSentinelError(t *testing.T) {
	fp := &fakeProvider{resp: &Response{StopReason: StopMaxTokens}}
	c := New(fp, nil, nil)

	result, err := c.Converse(context.Background(), "w1", []string{"claude-sonnet-4-20250514"}, Request{
		Messages: []*models.Message{userMsg("hi")},
	}, 1)

	require.Error(t, err)
	var maxTokensErr *MaxTokensExceededError
	assert.ErrorAs(t, err, &maxTokensErr)
	assert.NotNil(t, result)
}

func TestConverse_ThrottlingErrorIsReturnedForCallerToRetry(t *testing.T) {
	fp := &fakeProvider{err: &ThrottlingError{Err: assertErr("rate limited")}}
	c := New(fp, nil, nil)

	_, err := c.Converse(context.Background(), "w1", []string{"claude-sonnet-4-20250514"}, Request{
		Messages: []*models.Message{userMsg("hi")},
	}, 0)

	var throttled *ThrottlingError
	require.ErrorAs(t, err, &throttled)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }

func TestConverse_EmptyCandidateModelsErrors(t *testing.T) {
	fp := &fakeProvider{}
	c := New(fp, nil, nil)
	_, err := c.Converse(context.Background(), "w1", nil, Request{}, 0)
	assert.Error(t, err)
}
