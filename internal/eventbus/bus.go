// Package eventbus implements the fan-out publish(workerId, event) contract
// the Agent Turn Loop uses to surface progress to external subscribers,
// following the shape of the teacher's agent.EventSink family
// (internal/agent/event_sink.go): a narrow interface plus a handful of
// composable implementations (multi, channel, callback, no-op).
package eventbus

import (
	"context"

	"github.com/sweagent/core/pkg/models"
)

// Publisher fans out one event for a given workerId.
type Publisher interface {
	Publish(ctx context.Context, workerID string, event models.Event)
}

// MultiPublisher dispatches to every non-nil publisher in order, mirroring
// agent.MultiSink.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher builds a fan-out publisher, filtering nil entries.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	filtered := make([]Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			filtered = append(filtered, p)
		}
	}
	return &MultiPublisher{publishers: filtered}
}

func (m *MultiPublisher) Publish(ctx context.Context, workerID string, event models.Event) {
	for _, p := range m.publishers {
		p.Publish(ctx, workerID, event)
	}
}

// ChanPublisher sends events to a buffered channel, dropping the event if
// the buffer is full rather than blocking the turn loop.
type ChanPublisher struct {
	ch chan<- WorkerEvent
}

// WorkerEvent pairs an event with the workerId it was published for, the
// shape a channel consumer actually needs.
type WorkerEvent struct {
	WorkerID string
	Event    models.Event
}

// NewChanPublisher wraps a channel. The channel should be buffered.
func NewChanPublisher(ch chan<- WorkerEvent) *ChanPublisher {
	return &ChanPublisher{ch: ch}
}

func (c *ChanPublisher) Publish(ctx context.Context, workerID string, event models.Event) {
	select {
	case c.ch <- WorkerEvent{WorkerID: workerID, Event: event}:
	case <-ctx.Done():
	default:
	}
}

// CallbackPublisher wraps a function as a Publisher.
type CallbackPublisher struct {
	fn func(ctx context.Context, workerID string, event models.Event)
}

// NewCallbackPublisher wraps fn.
func NewCallbackPublisher(fn func(ctx context.Context, workerID string, event models.Event)) *CallbackPublisher {
	return &CallbackPublisher{fn: fn}
}

func (c *CallbackPublisher) Publish(ctx context.Context, workerID string, event models.Event) {
	if c.fn != nil {
		c.fn(ctx, workerID, event)
	}
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, workerID string, event models.Event) {}
