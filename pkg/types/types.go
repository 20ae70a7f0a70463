package types

// Model represents a discoverable model in the local registry.
type Model struct {
	// Stable identifier for the model.
	// example: tinyllama-q4
	ID string `json:"id" example:"tinyllama-q4"`
	// Human-friendly name.
	// example: TinyLlama (Q4)
	Name string `json:"name" example:"TinyLlama (Q4)"`
	// Absolute path to the model file or directory on disk.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Files required to construct the tokenizer and model. Load progress is
	// reported per artifact.
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Artifact is one file required to construct a model resource.
type Artifact struct {
	// File name relative to the model path.
	// example: model.q4_k_m.gguf
	File string `json:"file" example:"model.q4_k_m.gguf"`
	// Absolute path on disk.
	Path string `json:"path"`
	// Size in bytes, used as the progress total.
	// example: 668788096
	SizeBytes int64 `json:"size_bytes" example:"668788096"`
}

// ModelConfig identifies which model resource a command targets. It is a
// value type compared field by field and serves as the sole cache key of the
// resource pool.
type ModelConfig struct {
	// Model id from the registry.
	// example: tinyllama-q4
	Model string `json:"model" example:"tinyllama-q4"`
	// Numeric precision mode requested for the weights.
	// example: q4f16
	Precision string `json:"precision,omitempty" example:"q4f16"`
	// Execution target the backend should run on.
	// example: cpu
	Device string `json:"device,omitempty" example:"cpu"`
}

// ChatMessage is one turn of a conversation. Role is one of "user",
// "assistant" or "system". History is owned by the host; the daemon only
// reads it.
type ChatMessage struct {
	Role    string `json:"role" example:"user"`
	Content string `json:"content" example:"Write a haiku about the ocean."`
}
