package orchestrator

import (
	"time"

	"gend/pkg/types"
)

// StreamAggregator turns the engine's incremental fragments into update
// events annotated with running throughput. Counters and timestamps are
// session-scoped: construct a new aggregator per generation.
//
// NumTokens counts emitted fragments, not raw tokens; if the engine batches
// several tokens into one fragment the count tracks fragments. Throughput is
// undefined on the first fragment, where the start timestamp is recorded.
type StreamAggregator struct {
	sink  EventSink
	count int
	start time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewStreamAggregator returns an aggregator publishing to sink.
func NewStreamAggregator(sink EventSink) *StreamAggregator {
	return &StreamAggregator{sink: sink, now: time.Now}
}

// OnFragment forwards one fragment as an update event, synchronously and in
// arrival order. Fragments are never buffered.
func (a *StreamAggregator) OnFragment(text string) error {
	a.count++
	ev := types.Event{Status: types.EventUpdate, Output: text, NumTokens: a.count}
	if a.count == 1 {
		a.start = a.now()
	} else {
		// elapsed can be zero at coarse clock resolution; leave tps absent
		// rather than publishing an infinity.
		if elapsed := a.now().Sub(a.start).Seconds(); elapsed > 0 {
			tps := float64(a.count) / elapsed
			ev.TPS = &tps
		}
	}
	a.sink.Publish(ev)
	fragmentsTotal.Inc()
	return nil
}

// Count reports the number of fragments forwarded so far.
func (a *StreamAggregator) Count() int { return a.count }

// Elapsed reports the time since the first fragment, or zero before it.
func (a *StreamAggregator) Elapsed() time.Duration {
	if a.count == 0 {
		return 0
	}
	return a.now().Sub(a.start)
}
