//go:build !llama

package engine

// This file provides a no-CGO stub for the llama provider. It is compiled
// when the 'llama' build tag is NOT set, keeping default builds and CI
// CGO-free. The real provider lives in llama.go (tagged 'llama').

import (
	"context"

	"gend/pkg/types"
)

var llamaBuilt = false

// LlamaConfig holds runtime-wide settings for the in-process llama provider.
type LlamaConfig struct {
	CtxSize int
	Threads int
}

type llamaProvider struct {
	cfg LlamaConfig
}

// NewLlamaProvider returns a stub that fails fast without the 'llama' tag.
func NewLlamaProvider(cfg LlamaConfig) Provider {
	return &llamaProvider{cfg: cfg}
}

func (p *llamaProvider) Load(ctx context.Context, mdl types.Model, cfg types.ModelConfig, onProgress ProgressFunc) (*Resource, error) {
	return nil, ErrLlamaNotBuilt
}
