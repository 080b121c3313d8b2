package turnloop

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweagent/core/internal/kv"
	"github.com/sweagent/core/internal/llmclient"
	"github.com/sweagent/core/internal/messagestore"
	"github.com/sweagent/core/internal/sessionstore"
	"github.com/sweagent/core/internal/tools"
	"github.com/sweagent/core/pkg/models"
)

// queueProvider returns one queued response (or error) per call, in
// order, so a test can script a multi-iteration turn (tool use, then a
// final text-only response).
type queueProvider struct {
	mu    sync.Mutex
	resps []*llmclient.Response
	errs  []error
	calls int
}

func (q *queueProvider) Call(ctx context.Context, modelID string, req llmclient.Request) (*llmclient.Response, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.calls
	q.calls++
	var resp *llmclient.Response
	var err error
	if i < len(q.resps) {
		resp = q.resps[i]
	}
	if i < len(q.errs) {
		err = q.errs[i]
	}
	return resp, err
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (c *capturingPublisher) Publish(ctx context.Context, workerID string, event models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *capturingPublisher) find(t models.EventType) []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type stubPreferences struct{ prefs models.Preferences }

func (s stubPreferences) Preferences(ctx context.Context) (models.Preferences, error) {
	return s.prefs, nil
}

func newTestLoop(t *testing.T, provider llmclient.Provider) (*Loop, *capturingPublisher, string) {
	t.Helper()
	store := kv.NewMemoryStore()
	messages := messagestore.New(store)
	sessions := sessionstore.New(store, nil, nil)

	registry, err := tools.NewBuiltinRegistry(tools.NewTodoStore())
	require.NoError(t, err)
	dispatcher := tools.NewDispatcher(nil, registry, tools.NewProgressRecorder())

	events := &capturingPublisher{}
	client := llmclient.New(provider, nil, nil)

	workerID := "w1"
	require.NoError(t, sessions.Create(context.Background(), &models.Session{WorkerID: workerID}))

	loop := &Loop{
		Messages:        messages,
		Sessions:        sessions,
		LLM:             client,
		Dispatcher:      dispatcher,
		Events:          events,
		Preferences:     stubPreferences{prefs: models.Preferences{}},
		CandidateModels: []string{"claude-sonnet-4-20250514"},
	}
	return loop, events, workerID
}

func userMessage(text string) *models.Message {
	return &models.Message{Role: models.RoleUser, Type: models.MessageTypeUserMessage, Content: []models.ContentBlock{models.Text(text)}}
}

func TestRunTurn_NoToolUse_PersistsReplyAndReturnsToPending(t *testing.T) {
	provider := &queueProvider{resps: []*llmclient.Response{
		{StopReason: llmclient.StopEndTurn, Content: []models.ContentBlock{models.Text("hello there")}},
	}}
	loop, events, workerID := newTestLoop(t, provider)

	_, err := loop.Messages.Append(context.Background(), workerID, userMessage("hi"))
	require.NoError(t, err)

	require.NoError(t, loop.RunTurn(context.Background(), workerID, NewCancelToken()))

	history, err := loop.Messages.List(context.Background(), workerID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.MessageTypeAssistantResponse, history[1].Type)
	assert.Equal(t, "hello there", history[1].VisibleText())

	sess, err := loop.Sessions.Get(context.Background(), workerID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusPending, sess.AgentStatus)

	replies := events.find(models.EventMessage)
	require.Len(t, replies, 1)
	assert.Equal(t, "hello there", replies[0].Text)
}

func TestRunTurn_ToolUse_DispatchesThenFinalizes(t *testing.T) {
	toolUseBlock := models.ContentBlock{Kind: models.BlockToolUse, ToolUse: &models.ToolUseBlock{
		ID: "tu1", Name: "reportProgress", Input: []byte(`{"message":"working on it"}`),
	}}
	provider := &queueProvider{resps: []*llmclient.Response{
		{StopReason: llmclient.StopToolUse, Content: []models.ContentBlock{toolUseBlock}},
		{StopReason: llmclient.StopEndTurn, Content: []models.ContentBlock{models.Text("done")}},
	}}
	loop, events, workerID := newTestLoop(t, provider)

	_, err := loop.Messages.Append(context.Background(), workerID, userMessage("go"))
	require.NoError(t, err)

	require.NoError(t, loop.RunTurn(context.Background(), workerID, NewCancelToken()))

	history, err := loop.Messages.List(context.Background(), workerID)
	require.NoError(t, err)
	// user, toolUse, toolResult, assistant final
	require.Len(t, history, 4)
	assert.Equal(t, models.MessageTypeToolUse, history[1].Type)
	assert.Equal(t, models.MessageTypeToolResult, history[2].Type)
	assert.Equal(t, models.MessageTypeAssistantResponse, history[3].Type)

	toolResultBlock := history[2].Content[0].ToolResult
	require.NotNil(t, toolResultBlock)
	assert.Equal(t, models.ToolResultStatusSuccess, toolResultBlock.Status)

	toolUseEvents := events.find(models.EventToolUse)
	toolResultEvents := events.find(models.EventToolResult)
	assert.Len(t, toolUseEvents, 1)
	assert.Len(t, toolResultEvents, 1)
}

func TestRunTurn_UnknownToolProducesErrorResultButContinuesTurn(t *testing.T) {
	toolUseBlock := models.ContentBlock{Kind: models.BlockToolUse, ToolUse: &models.ToolUseBlock{
		ID: "tu1", Name: "noSuchTool", Input: []byte(`{}`),
	}}
	provider := &queueProvider{resps: []*llmclient.Response{
		{StopReason: llmclient.StopToolUse, Content: []models.ContentBlock{toolUseBlock}},
		{StopReason: llmclient.StopEndTurn, Content: []models.ContentBlock{models.Text("done")}},
	}}
	loop, _, workerID := newTestLoop(t, provider)
	_, err := loop.Messages.Append(context.Background(), workerID, userMessage("go"))
	require.NoError(t, err)

	require.NoError(t, loop.RunTurn(context.Background(), workerID, NewCancelToken()))

	history, err := loop.Messages.List(context.Background(), workerID)
	require.NoError(t, err)
	toolResultBlock := history[2].Content[0].ToolResult
	require.NotNil(t, toolResultBlock)
	assert.Equal(t, models.ToolResultStatusError, toolResultBlock.Status)
	assert.Contains(t, toolResultBlock.Content[0].Text, "Error occurred when using tool noSuchTool")
}

func TestRunTurn_CancelledBeforeInvoke_FiresCallbackAndExitsWithoutPersistingReply(t *testing.T) {
	provider := &queueProvider{}
	loop, _, workerID := newTestLoop(t, provider)
	_, err := loop.Messages.Append(context.Background(), workerID, userMessage("hi"))
	require.NoError(t, err)

	cancel := NewCancelToken()
	fired := false
	cancel.OnCancel(func() { fired = true })
	cancel.Cancel()

	require.NoError(t, loop.RunTurn(context.Background(), workerID, cancel))
	assert.True(t, fired)
	assert.Equal(t, 0, provider.calls)

	history, err := loop.Messages.List(context.Background(), workerID)
	require.NoError(t, err)
	require.Len(t, history, 1) // only the pre-existing user message
}

func TestRunTurn_EmptyContentFinalizesWithPlaceholder(t *testing.T) {
	provider := &queueProvider{resps: []*llmclient.Response{
		{StopReason: llmclient.StopEndTurn, Content: nil},
	}}
	loop, _, workerID := newTestLoop(t, provider)
	_, err := loop.Messages.Append(context.Background(), workerID, userMessage("hi"))
	require.NoError(t, err)

	require.NoError(t, loop.RunTurn(context.Background(), workerID, NewCancelToken()))

	sess, err := loop.Sessions.Get(context.Background(), workerID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusPending, sess.AgentStatus)
}

func TestResume_NoOpWhenLastItemIsAssistantResponse(t *testing.T) {
	provider := &queueProvider{}
	loop, _, workerID := newTestLoop(t, provider)
	_, err := loop.Messages.Append(context.Background(), workerID, &models.Message{
		Role: models.RoleAssistant, Type: models.MessageTypeAssistantResponse,
		Content: []models.ContentBlock{models.Text("already answered")},
	})
	require.NoError(t, err)

	require.NoError(t, loop.Resume(context.Background(), workerID, NewCancelToken()))
	assert.Equal(t, 0, provider.calls)
}

func TestRunTurn_AttributesBilledTokenDeltaToTriggeringUserItem(t *testing.T) {
	provider := &queueProvider{resps: []*llmclient.Response{
		{StopReason: llmclient.StopEndTurn, Content: []models.ContentBlock{models.Text("hello there")}, Usage: models.Usage{InputTokens: 120}},
	}}
	loop, _, workerID := newTestLoop(t, provider)

	_, err := loop.Messages.Append(context.Background(), workerID, userMessage("hi"))
	require.NoError(t, err)

	require.NoError(t, loop.RunTurn(context.Background(), workerID, NewCancelToken()))

	history, err := loop.Messages.List(context.Background(), workerID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 120, history[0].TokenCount)
}

func TestRunTurn_AttributesDeltaToTriggeringToolResultOnSubsequentCall(t *testing.T) {
	toolUseBlock := models.ContentBlock{Kind: models.BlockToolUse, ToolUse: &models.ToolUseBlock{
		ID: "tu1", Name: "reportProgress", Input: []byte(`{"message":"working on it"}`),
	}}
	provider := &queueProvider{resps: []*llmclient.Response{
		{StopReason: llmclient.StopToolUse, Content: []models.ContentBlock{toolUseBlock}, Usage: models.Usage{InputTokens: 50}},
		{StopReason: llmclient.StopEndTurn, Content: []models.ContentBlock{models.Text("done")}, Usage: models.Usage{InputTokens: 90}},
	}}
	loop, _, workerID := newTestLoop(t, provider)

	_, err := loop.Messages.Append(context.Background(), workerID, userMessage("go"))
	require.NoError(t, err)

	require.NoError(t, loop.RunTurn(context.Background(), workerID, NewCancelToken()))

	history, err := loop.Messages.List(context.Background(), workerID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, 50, history[0].TokenCount)         // user item, first call
	assert.Equal(t, 40, history[2].TokenCount)          // toolResult item: 90 billed - 50 already counted
}

func TestResume_RunsTurnWhenLastItemIsUserMessage(t *testing.T) {
	provider := &queueProvider{resps: []*llmclient.Response{
		{StopReason: llmclient.StopEndTurn, Content: []models.ContentBlock{models.Text("ok")}},
	}}
	loop, _, workerID := newTestLoop(t, provider)
	_, err := loop.Messages.Append(context.Background(), workerID, userMessage("hi"))
	require.NoError(t, err)

	require.NoError(t, loop.Resume(context.Background(), workerID, NewCancelToken()))
	assert.Equal(t, 1, provider.calls)
}
