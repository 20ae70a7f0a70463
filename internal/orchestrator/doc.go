// Package orchestrator drives interactive text-generation sessions: lazy
// acquisition of model resources, one generation at a time, streaming of
// throughput-annotated fragments, and cooperative interruption. It is
// structured into small files by concern:
//
//   - router.go: Router, the single command entry point; dispatch and the
//     error boundary (every failure becomes one error event).
//   - pool.go: ResourcePool, lazy + memoized (tokenizer, model) acquisition
//     keyed by ModelConfig with in-flight deduplication.
//   - session.go: one end-to-end generation (encode, stream, decode).
//   - stream.go: StreamAggregator, turning fragments into update events with
//     running tokens-per-second.
//   - interrupt.go: the shared interrupt flag polled by decode loops.
//   - events.go: EventSink and the in-memory sink used by tests.
//   - errors.go: error taxonomy (load, encoding, engine, protocol).
//   - status.go: status snapshot for the HTTP surface.
//   - metrics.go: prometheus instrumentation.
//
// External packages should treat this package as the control plane and use
// Router plus EventSink only; the decode loop itself lives behind the
// engine.Provider contract.
package orchestrator
