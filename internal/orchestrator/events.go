package orchestrator

import "gend/pkg/types"

// EventSink receives orchestrator events. Implementations should be
// lightweight and non-blocking; Publish must not panic. Events for a given
// command are published in production order and must be delivered unreordered.
type EventSink interface {
	Publish(types.Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(types.Event)

func (f SinkFunc) Publish(e types.Event) { f(e) }

// noopSink drops events.
type noopSink struct{}

func (noopSink) Publish(types.Event) {}
