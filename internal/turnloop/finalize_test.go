package turnloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweagent/core/internal/kv"
	"github.com/sweagent/core/internal/sessionstore"
	"github.com/sweagent/core/pkg/models"
)

type fixedTitleGenerator struct{ title string }

func (f fixedTitleGenerator) GenerateTitle(ctx context.Context, workerID, transcript string) (string, error) {
	return f.title, nil
}

func newSessionStoreWithTitles(t *testing.T, title string) *sessionstore.Store {
	t.Helper()
	return sessionstore.New(kv.NewMemoryStore(), fixedTitleGenerator{title: title}, nil)
}

func TestFinalize_StripsThinkingTagsFromVisibleReply(t *testing.T) {
	provider := &queueProvider{}
	loop, events, workerID := newTestLoop(t, provider)

	content := []models.ContentBlock{models.Text("<thinking>internal musing</thinking>the real answer")}
	require.NoError(t, loop.finalize(context.Background(), workerID, sessionMeta{session: &models.Session{WorkerID: workerID}}, content, nil))

	replies := events.find(models.EventMessage)
	require.Len(t, replies, 1)
	assert.Equal(t, "the real answer", replies[0].Text)
}

func TestFinalize_GeneratesTitleWhenUnsetAndTranscriptNonEmpty(t *testing.T) {
	provider := &queueProvider{}
	loop, events, workerID := newTestLoop(t, provider)
	loop.Sessions = newSessionStoreWithTitles(t, "Fixed Title")

	require.NoError(t, loop.Sessions.Create(context.Background(), &models.Session{WorkerID: workerID}))
	content := []models.ContentBlock{models.Text("final answer")}

	require.NoError(t, loop.finalize(context.Background(), workerID, sessionMeta{session: &models.Session{WorkerID: workerID}}, content, []string{"earlier progress note"}))

	sess, err := loop.Sessions.Get(context.Background(), workerID)
	require.NoError(t, err)
	assert.Equal(t, "Fixed Title", sess.Title)

	titleEvents := events.find(models.EventSessionTitleUpdate)
	require.Len(t, titleEvents, 1)
	assert.Equal(t, "Fixed Title", titleEvents[0].NewTitle)
}

func TestFinalize_EmptyContentPersistsPlaceholderAndReturnsToPending(t *testing.T) {
	provider := &queueProvider{}
	loop, _, workerID := newTestLoop(t, provider)

	require.NoError(t, loop.finalize(context.Background(), workerID, sessionMeta{session: &models.Session{WorkerID: workerID}}, nil, nil))

	sess, err := loop.Sessions.Get(context.Background(), workerID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusPending, sess.AgentStatus)

	history, err := loop.Messages.List(context.Background(), workerID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.MessageTypeAssistantResponse, history[0].Type)
}
