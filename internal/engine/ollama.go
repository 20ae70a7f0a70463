package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"gend/pkg/types"
)

// OllamaConfig configures the Ollama-server-backed provider.
type OllamaConfig struct {
	// BaseURL of the Ollama server; defaults to http://localhost:11434.
	BaseURL string
	// Pull the model on load. When false, load only verifies the model is
	// already present on the server.
	Pull bool
}

// ollamaProvider delegates templating and decoding to an Ollama server.
type ollamaProvider struct {
	client *api.Client
	pull   bool
}

// NewOllamaProvider returns a provider backed by an Ollama server.
func NewOllamaProvider(cfg OllamaConfig) (Provider, error) {
	base := cfg.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL: %w", err)
	}
	return &ollamaProvider{client: api.NewClient(u, http.DefaultClient), pull: cfg.Pull}, nil
}

func (p *ollamaProvider) Load(ctx context.Context, mdl types.Model, cfg types.ModelConfig, onProgress ProgressFunc) (*Resource, error) {
	name := strings.TrimSpace(mdl.ID)
	if name == "" {
		name = cfg.Model
	}
	if p.pull {
		if err := p.pullModel(ctx, name, onProgress); err != nil {
			return nil, err
		}
	} else {
		if _, err := p.client.Show(ctx, &api.ShowRequest{Model: name}); err != nil {
			return nil, fmt.Errorf("model %s not available on ollama server: %w", name, err)
		}
	}
	gen := &ollamaGenerator{client: p.client, model: name}
	return NewResource(ollamaTokenizer{}, gen, nil), nil
}

// pullModel maps Ollama pull progress onto artifact progress events: each
// layer digest is reported as one artifact.
func (p *ollamaProvider) pullModel(ctx context.Context, name string, onProgress ProgressFunc) error {
	var current string
	return p.client.Pull(ctx, &api.PullRequest{Model: name}, func(pr api.ProgressResponse) error {
		if onProgress == nil || pr.Digest == "" {
			return nil
		}
		if pr.Digest != current {
			if current != "" {
				onProgress(ProgressEvent{Kind: ProgressDone, File: current})
			}
			current = pr.Digest
			onProgress(ProgressEvent{Kind: ProgressInitiate, File: current, Total: pr.Total})
		}
		onProgress(ProgressEvent{Kind: ProgressUpdate, File: current, Progress: pr.Completed, Total: pr.Total})
		if pr.Total > 0 && pr.Completed >= pr.Total {
			onProgress(ProgressEvent{Kind: ProgressDone, File: current})
			current = ""
		}
		return nil
	})
}

// ollamaTokenizer passes structured history through; the server applies the
// model's own chat template.
type ollamaTokenizer struct{}

func (ollamaTokenizer) Encode(history []types.ChatMessage, addGenerationPrompt bool) (*Request, error) {
	if len(history) == 0 {
		return nil, nil
	}
	return &Request{Messages: history}, nil
}

func (ollamaTokenizer) Decode(out Output, keepSpecial bool) string {
	if keepSpecial && out.RawText != "" {
		return out.RawText
	}
	return out.Text
}

// errInterruptStream aborts the streaming chat without reporting a failure.
var errInterruptStream = errors.New("generation interrupted")

type ollamaGenerator struct {
	client *api.Client
	model  string
}

func (g *ollamaGenerator) Generate(ctx context.Context, req *Request, maxNew int, onFragment func(string) error, interrupted func() bool) (Output, error) {
	msgs := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, api.Message{Role: m.Role, Content: m.Content})
	}
	stream := true
	chatReq := &api.ChatRequest{
		Model:    g.model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"num_predict": maxNew},
	}
	var b strings.Builder
	err := g.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		// One response chunk per generation step; this is the per-step
		// interrupt poll point.
		if interrupted != nil && interrupted() {
			return errInterruptStream
		}
		if resp.Message.Content != "" {
			b.WriteString(resp.Message.Content)
			if err := onFragment(resp.Message.Content); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errInterruptStream) {
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		return Output{}, err
	}
	text := b.String()
	return Output{Text: text, RawText: text}, nil
}
