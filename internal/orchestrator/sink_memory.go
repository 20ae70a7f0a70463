package orchestrator

import (
	"sync"

	"gend/pkg/types"
)

// MemorySink stores events in-memory for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []types.Event
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Publish(e types.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *MemorySink) Events() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Event, len(s.events))
	copy(out, s.events)
	return out
}
