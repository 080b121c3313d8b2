package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweagent/core/pkg/models"
)

func TestChanPublisher_DeliversEvent(t *testing.T) {
	ch := make(chan WorkerEvent, 1)
	p := NewChanPublisher(ch)

	p.Publish(context.Background(), "w1", models.NewMessageEvent(models.RoleAssistant, "hi"))

	select {
	case got := <-ch:
		assert.Equal(t, "w1", got.WorkerID)
		assert.Equal(t, models.EventMessage, got.Event.Type)
	default:
		t.Fatal("expected event on channel")
	}
}

func TestChanPublisher_DropsWhenFull(t *testing.T) {
	ch := make(chan WorkerEvent, 1)
	p := NewChanPublisher(ch)
	ctx := context.Background()

	p.Publish(ctx, "w1", models.NewMessageEvent(models.RoleAssistant, "first"))
	p.Publish(ctx, "w1", models.NewMessageEvent(models.RoleAssistant, "second")) // must not block

	require.Len(t, ch, 1)
}

func TestMultiPublisher_FansOutAndFiltersNil(t *testing.T) {
	var calls []string
	a := NewCallbackPublisher(func(ctx context.Context, workerID string, event models.Event) {
		calls = append(calls, "a:"+workerID)
	})
	b := NewCallbackPublisher(func(ctx context.Context, workerID string, event models.Event) {
		calls = append(calls, "b:"+workerID)
	})

	m := NewMultiPublisher(a, nil, b)
	m.Publish(context.Background(), "w1", models.NewToolUseEvent("commandExecution", "t1", "{}", 0, ""))

	assert.Equal(t, []string{"a:w1", "b:w1"}, calls)
}

func TestNopPublisher_DoesNothing(t *testing.T) {
	var p NopPublisher
	p.Publish(context.Background(), "w1", models.NewMessageEvent(models.RoleUser, "x"))
}
