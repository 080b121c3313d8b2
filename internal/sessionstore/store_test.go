package sessionstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweagent/core/internal/kv"
	"github.com/sweagent/core/pkg/models"
)

type fakeTitleGenerator struct {
	title string
	err   error
	calls int
}

func (f *fakeTitleGenerator) GenerateTitle(ctx context.Context, workerID, transcript string) (string, error) {
	f.calls++
	return f.title, f.err
}

func newTestStore(titles TitleGenerator) *Store {
	return New(kv.NewMemoryStore(), titles, nil)
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()

	sess := &models.Session{WorkerID: "w1", Initiator: "slack"}
	require.NoError(t, s.Create(ctx, sess))

	got, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "slack", got.Initiator)
	assert.Equal(t, models.AgentStatusPending, got.AgentStatus)
}

func TestUpdateStatus(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &models.Session{WorkerID: "w1"}))

	require.NoError(t, s.UpdateStatus(ctx, "w1", models.AgentStatusWorking))

	got, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusWorking, got.AgentStatus)
}

func TestList_FiltersHiddenAndOrdersNewestFirst(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &models.Session{WorkerID: "w1"}))
	require.NoError(t, s.Create(ctx, &models.Session{WorkerID: "w2"}))
	require.NoError(t, s.UpdateVisibility(ctx, "w1", true))

	list, err := s.List(ctx, 0, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "w2", list[0].WorkerID)
}

func TestUpdateCost_Accumulates(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &models.Session{WorkerID: "w1"}))

	require.NoError(t, s.UpdateCost(ctx, "w1", 0.05))
	require.NoError(t, s.UpdateCost(ctx, "w1", 0.02))

	got, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.InDelta(t, 0.07, got.Cost, 1e-9)
}

func TestMaybeGenerateTitle_TruncatesToFifteenRunes(t *testing.T) {
	gen := &fakeTitleGenerator{title: "This title is definitely longer than fifteen characters"}
	s := newTestStore(gen)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &models.Session{WorkerID: "w1"}))

	title, ok := s.MaybeGenerateTitle(ctx, "w1", "user: please fix the bug")
	require.True(t, ok)
	assert.LessOrEqual(t, len([]rune(title)), MaxTitleRunes)

	got, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
}

func TestMaybeGenerateTitle_SkipsWhenTitleAlreadySet(t *testing.T) {
	gen := &fakeTitleGenerator{title: "New Title"}
	s := newTestStore(gen)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &models.Session{WorkerID: "w1"}))
	require.NoError(t, s.UpdateTitle(ctx, "w1", "Existing"))

	_, ok := s.MaybeGenerateTitle(ctx, "w1", "some transcript")
	assert.False(t, ok)
	assert.Equal(t, 0, gen.calls)
}

func TestMaybeGenerateTitle_BestEffortOnFailure(t *testing.T) {
	gen := &fakeTitleGenerator{err: errors.New("provider down")}
	s := newTestStore(gen)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &models.Session{WorkerID: "w1"}))

	_, ok := s.MaybeGenerateTitle(ctx, "w1", "transcript text")
	assert.False(t, ok)

	got, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, got.Title)
}

func TestTruncateTitle(t *testing.T) {
	assert.Equal(t, "short", truncateTitle("  short  "))
	assert.Equal(t, strings.Repeat("a", MaxTitleRunes), truncateTitle(strings.Repeat("a", 30)))
}
