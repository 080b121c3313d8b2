package turnloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweagent/core/internal/llmclient"
	"github.com/sweagent/core/pkg/models"
)

func toolUse(id, name, input string) models.ContentBlock {
	return models.ContentBlock{Kind: models.BlockToolUse, ToolUse: &models.ToolUseBlock{ID: id, Name: name, Input: []byte(input)}}
}

func TestDispatchTools_CancelledBetweenToolsLeavesNoOrphanToolUse(t *testing.T) {
	provider := &queueProvider{}
	loop, _, workerID := newTestLoop(t, provider)

	cancel := NewCancelToken()
	first := toolUse("tu1", "reportProgress", `{"message":"step one"}`)
	second := toolUse("tu2", "reportProgress", `{"message":"step two"}`)

	callCount := 0
	result := &llmclient.Result{}
	transcript := []string{}

	// Drive the loop one block at a time so cancellation can be injected
	// between them, mirroring what RunTurn's cancel check would observe.
	t1, err := loop.dispatchTools(context.Background(), workerID, sessionMeta{session: &models.Session{}, prefs: models.Preferences{}}, result, []models.ContentBlock{first}, transcript, cancel)
	require.NoError(t, err)
	callCount++
	cancel.Cancel()

	_, err = loop.dispatchTools(context.Background(), workerID, sessionMeta{session: &models.Session{}}, result, []models.ContentBlock{second}, t1, cancel)
	assert.ErrorIs(t, err, errCancelled)

	history, err := loop.Messages.List(context.Background(), workerID)
	require.NoError(t, err)
	// only the first tool's use/result pair was ever persisted
	require.Len(t, history, 2)
	assert.Equal(t, models.MessageTypeToolUse, history[0].Type)
	assert.Equal(t, models.MessageTypeToolResult, history[1].Type)
	assert.Equal(t, 1, callCount)
}

func TestDispatchTools_ReportProgressAppendsTranscriptEntry(t *testing.T) {
	provider := &queueProvider{}
	loop, _, workerID := newTestLoop(t, provider)

	result := &llmclient.Result{}
	block := toolUse("tu1", "reportProgress", `{"message":"halfway done"}`)

	transcript, err := loop.dispatchTools(context.Background(), workerID, sessionMeta{session: &models.Session{}}, result, []models.ContentBlock{block}, nil, NewCancelToken())
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.Equal(t, "halfway done", transcript[0])
}
