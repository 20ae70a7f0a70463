// Package engine defines the contracts the orchestrator consumes from a model
// runtime: a Tokenizer that encodes conversation history into a model-ready
// request and decodes raw output back to text, and a Generator that runs the
// autoregressive decode loop while streaming fragments and polling for
// interruption. Concrete providers (go-llama.cpp, Ollama) satisfy Provider.
package engine

import (
	"context"
	"errors"

	"gend/pkg/types"
)

// ErrLlamaNotBuilt is returned by the stub llama provider so callers can
// surface a clear dependency error instead of mocking inference.
var ErrLlamaNotBuilt = errors.New("llama support not built (missing 'llama' build tag)")

// LlamaBuilt reports whether this binary carries the in-process llama
// runtime or only its stub, so operators can tell the two builds apart.
func LlamaBuilt() bool { return llamaBuilt }

// Request is a prompt-encoded generation request. In-process runtimes consume
// the rendered Prompt; server-backed runtimes consume the structured Messages.
type Request struct {
	Prompt   string
	Messages []types.ChatMessage
}

// Output is the raw result of a decode loop.
type Output struct {
	// Text is the generated text with special tokens suppressed.
	Text string
	// RawText includes special tokens when the runtime exposes them; empty
	// otherwise.
	RawText string
}

// Tokenizer encodes history into a Request and decodes Output back to text.
//
// Encode may return (nil, nil) when the runtime cannot produce a structured
// request for the given history; callers treat that as "nothing to do".
type Tokenizer interface {
	Encode(history []types.ChatMessage, addGenerationPrompt bool) (*Request, error)
	Decode(out Output, keepSpecial bool) string
}

// Generator runs one decode loop. Implementations must invoke onFragment once
// per emitted unit of text in generation order, and must poll interrupted at
// least once per generation step, stopping early when it reports true. An
// interrupted run is not an error: the partial Output is returned with a nil
// error.
type Generator interface {
	Generate(ctx context.Context, req *Request, maxNew int, onFragment func(string) error, interrupted func() bool) (Output, error)
}

// Resource is a loaded (tokenizer, model) pair. Resources are owned by the
// pool that loaded them; sessions borrow references and must not Close them.
type Resource struct {
	Tokenizer Tokenizer
	Generator Generator

	closer func() error
}

// NewResource builds a Resource; closer may be nil.
func NewResource(tok Tokenizer, gen Generator, closer func() error) *Resource {
	return &Resource{Tokenizer: tok, Generator: gen, closer: closer}
}

// Close releases the underlying runtime resources, if any.
func (r *Resource) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	return r.closer()
}

// Provider loads model resources, reporting per-artifact progress along the
// way. Load must not invoke onProgress after it returns.
type Provider interface {
	Load(ctx context.Context, mdl types.Model, cfg types.ModelConfig, onProgress ProgressFunc) (*Resource, error)
}
