package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"gend/internal/engine"
	"gend/pkg/types"
)

// stubTokenizer renders history by concatenation. encodeNil forces the
// "no structured request" path; encodeErr forces an encode failure.
type stubTokenizer struct {
	encodeNil bool
	encodeErr error
}

func (t stubTokenizer) Encode(history []types.ChatMessage, addGenerationPrompt bool) (*engine.Request, error) {
	if t.encodeErr != nil {
		return nil, t.encodeErr
	}
	if t.encodeNil || len(history) == 0 {
		return nil, nil
	}
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return &engine.Request{Prompt: b.String(), Messages: history}, nil
}

func (t stubTokenizer) Decode(out engine.Output, keepSpecial bool) string {
	if keepSpecial && out.RawText != "" {
		return out.RawText
	}
	return out.Text
}

// stubGenerator emits its fragments in order, polling interrupted before each
// step. A small sleep between steps keeps elapsed time measurable.
type stubGenerator struct {
	fragments []string
	rawText   string
	err       error
	// release, when set, blocks the run until closed.
	release chan struct{}
}

func (g *stubGenerator) Generate(ctx context.Context, req *engine.Request, maxNew int, onFragment func(string) error, interrupted func() bool) (engine.Output, error) {
	if g.err != nil {
		return engine.Output{}, g.err
	}
	if g.release != nil {
		<-g.release
	}
	var b strings.Builder
	for i, f := range g.fragments {
		if i >= maxNew {
			break
		}
		if interrupted() {
			break
		}
		if i > 0 {
			time.Sleep(time.Millisecond)
		}
		b.WriteString(f)
		if err := onFragment(f); err != nil {
			break
		}
	}
	raw := g.rawText
	if raw == "" {
		raw = b.String()
	}
	return engine.Output{Text: b.String(), RawText: raw}, nil
}

// stubProvider hands out a fixed resource, reporting one initiate/progress/
// done triple per artifact. failures is the number of leading Load calls that
// fail.
type stubProvider struct {
	mu        sync.Mutex
	loads     int
	delay     time.Duration
	artifacts []types.Artifact
	failures  int
	failErr   error
	resource  func() *engine.Resource
}

func (p *stubProvider) Load(ctx context.Context, mdl types.Model, cfg types.ModelConfig, onProgress engine.ProgressFunc) (*engine.Resource, error) {
	p.mu.Lock()
	p.loads++
	n := p.loads
	p.mu.Unlock()
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if n <= p.failures {
		return nil, p.failErr
	}
	if onProgress != nil {
		for _, a := range p.artifacts {
			onProgress(engine.ProgressEvent{Kind: engine.ProgressInitiate, File: a.File, Total: a.SizeBytes})
			onProgress(engine.ProgressEvent{Kind: engine.ProgressUpdate, File: a.File, Progress: a.SizeBytes, Total: a.SizeBytes})
			onProgress(engine.ProgressEvent{Kind: engine.ProgressDone, File: a.File})
		}
	}
	if p.resource != nil {
		return p.resource(), nil
	}
	return engine.NewResource(stubTokenizer{}, &stubGenerator{fragments: []string{"ok"}}, nil), nil
}

func (p *stubProvider) loadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads
}

func statuses(events []types.Event) []types.EventStatus {
	out := make([]types.EventStatus, len(events))
	for i, e := range events {
		out[i] = e.Status
	}
	return out
}

func eventsByStatus(events []types.Event, st types.EventStatus) []types.Event {
	var out []types.Event
	for _, e := range events {
		if e.Status == st {
			out = append(out, e)
		}
	}
	return out
}
