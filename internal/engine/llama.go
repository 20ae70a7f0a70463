//go:build llama

package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"gend/pkg/types"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// LlamaConfig holds runtime-wide settings for the in-process llama provider.
type LlamaConfig struct {
	CtxSize int
	Threads int
}

// llamaProvider loads gguf weights in process via go-llama.cpp.
type llamaProvider struct {
	cfg LlamaConfig
}

// NewLlamaProvider returns the in-process llama.cpp provider.
func NewLlamaProvider(cfg LlamaConfig) Provider {
	return &llamaProvider{cfg: cfg}
}

func (p *llamaProvider) Load(ctx context.Context, mdl types.Model, cfg types.ModelConfig, onProgress ProgressFunc) (*Resource, error) {
	weights := weightsArtifact(mdl)
	if strings.TrimSpace(weights.Path) == "" {
		return nil, errors.New("model has no weights artifact")
	}
	// Prefetch artifacts so the runtime's mmap hits a warm page cache; this
	// is also where byte-level progress comes from.
	if err := ReadArtifacts(mdl, onProgress); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mo := []llama.ModelOption{
		llama.SetContext(p.cfg.CtxSize),
	}
	if wantsGPU(cfg.Device) {
		mo = append(mo, llama.SetGPULayers(maxGPULayers))
	}
	m, err := llama.New(weights.Path, mo...)
	if err != nil {
		return nil, err
	}
	gen := &llamaGenerator{model: m, threads: p.cfg.Threads}
	return NewResource(PromptTokenizer{}, gen, func() error {
		m.Free()
		return nil
	}), nil
}

// maxGPULayers offloads the full stack when a GPU target is requested.
const maxGPULayers = 1 << 10

func wantsGPU(device string) bool {
	switch strings.ToLower(strings.TrimSpace(device)) {
	case "gpu", "cuda", "metal", "vulkan":
		return true
	}
	return false
}

// weightsArtifact picks the gguf artifact, falling back to the first artifact
// or the model path itself for single-file models.
func weightsArtifact(mdl types.Model) types.Artifact {
	for _, a := range mdl.Artifacts {
		if strings.HasSuffix(strings.ToLower(a.File), ".gguf") {
			return a
		}
	}
	if len(mdl.Artifacts) > 0 {
		return mdl.Artifacts[0]
	}
	var size int64
	if fi, err := os.Stat(mdl.Path); err == nil {
		size = fi.Size()
	}
	return types.Artifact{File: filepath.Base(mdl.Path), Path: mdl.Path, SizeBytes: size}
}

// llamaGenerator owns one loaded model.
type llamaGenerator struct {
	model   *llama.LLama
	threads int
}

func (g *llamaGenerator) Generate(ctx context.Context, req *Request, maxNew int, onFragment func(string) error, interrupted func() bool) (Output, error) {
	if g.model == nil {
		return Output{}, errors.New("llama model not initialized")
	}
	stopped := false
	// The callback fires once per generated token; returning false makes
	// Predict stop after the current step, which is exactly the cooperative
	// contract the orchestrator expects.
	g.model.SetTokenCallback(func(tok string) bool {
		if interrupted != nil && interrupted() {
			stopped = true
			return false
		}
		select {
		case <-ctx.Done():
			stopped = true
			return false
		default:
		}
		if err := onFragment(tok); err != nil {
			return false
		}
		return true
	})
	po := []llama.PredictOption{
		llama.SetTokens(maxInt(1, maxNew)),
		llama.SetThreads(maxInt(1, g.threads)),
	}
	text, err := g.model.Predict(req.Prompt, po...)
	if err != nil {
		if stopped {
			// Early stop surfaces as an error from Predict; the partial text
			// accumulated so far is the legitimate result.
			return Output{Text: text, RawText: text}, nil
		}
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		return Output{}, err
	}
	return Output{Text: text, RawText: text}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
