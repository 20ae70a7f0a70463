package orchestrator

import (
	"context"

	"gend/internal/engine"
	"gend/pkg/types"
)

// DefaultMaxNewTokens caps newly generated units when no explicit bound is
// configured.
const DefaultMaxNewTokens = 512

// Session drives one end-to-end generation. A Session value holds only
// configuration; all per-run state lives on the stack of Run, so nothing
// outlives the call.
type Session struct {
	MaxNewTokens int
}

// Run encodes history, streams fragments through a fresh aggregator, and
// emits start/update/complete on sink. Interruption is not distinguishable
// from natural completion here: the decode loop stops early and the normal
// completion path runs, so the consumer always sees complete.
//
// Encoding producing no structured request is treated as a no-op rather than
// an error, matching the behavior hosts already depend on; an encode failure
// proper is surfaced as an encoding error.
func (s Session) Run(ctx context.Context, history []types.ChatMessage, res *engine.Resource, flag *InterruptFlag, sink EventSink) error {
	req, err := res.Tokenizer.Encode(history, true)
	if err != nil {
		return ErrEncoding(err)
	}
	if req == nil {
		return nil
	}

	sink.Publish(types.Event{Status: types.EventStart})

	maxNew := s.MaxNewTokens
	if maxNew <= 0 {
		maxNew = DefaultMaxNewTokens
	}
	agg := NewStreamAggregator(sink)
	out, err := res.Generator.Generate(ctx, req, maxNew, agg.OnFragment, flag.IsSet)
	if err != nil {
		generationsTotal.WithLabelValues("error").Inc()
		return ErrEngine(err)
	}

	// The final decode keeps special tokens, unlike the intermediate stream.
	final := res.Tokenizer.Decode(out, true)
	sink.Publish(types.Event{Status: types.EventComplete, Output: final})

	generationsTotal.WithLabelValues("ok").Inc()
	if elapsed := agg.Elapsed().Seconds(); elapsed > 0 {
		sessionTPS.Observe(float64(agg.Count()) / elapsed)
	}
	return nil
}
