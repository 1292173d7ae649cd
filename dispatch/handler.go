package dispatch

import (
	"context"

	"github.com/bravellian/platform-sub002/queue"
)

// Handler processes one claimed row for a single topic. Handlers must be
// idempotent: the at-least-once delivery model means a row may be
// delivered more than once if a worker crashes or its lease expires
// before it finishes. The dispatcher imposes no timeout on Handle; the
// lease expiry is the only deadline a handler needs to respect.
type Handler[I comparable] interface {
	Topic() string
	Handle(ctx context.Context, row *queue.Row[I]) error
}

// HandlerFunc adapts a plain function to Handler for a fixed topic.
type HandlerFunc[I comparable] struct {
	TopicName string
	Fn        func(ctx context.Context, row *queue.Row[I]) error
}

func (h HandlerFunc[I]) Topic() string { return h.TopicName }

func (h HandlerFunc[I]) Handle(ctx context.Context, row *queue.Row[I]) error {
	return h.Fn(ctx, row)
}

// HandlerResolver maps a row's topic to the Handler registered to process
// it. Built once at construction; resolution is read-only thereafter.
type HandlerResolver[I comparable] struct {
	byTopic map[string]Handler[I]
}

// NewHandlerResolver builds a resolver from a fixed handler set.
func NewHandlerResolver[I comparable](handlers ...Handler[I]) *HandlerResolver[I] {
	r := &HandlerResolver[I]{byTopic: make(map[string]Handler[I], len(handlers))}
	for _, h := range handlers {
		r.byTopic[h.Topic()] = h
	}
	return r
}

// Resolve returns the handler for topic, or (nil, false) if none is
// registered. Per spec.md §4.3, a missing handler is treated as a
// non-retryable failure by the dispatcher.
func (r *HandlerResolver[I]) Resolve(topic string) (Handler[I], bool) {
	h, ok := r.byTopic[topic]
	return h, ok
}
