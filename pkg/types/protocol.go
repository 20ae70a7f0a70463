package types

// CommandType enumerates the commands a host may send.
type CommandType string

const (
	CmdLoad      CommandType = "load"
	CmdGenerate  CommandType = "generate"
	CmdInterrupt CommandType = "interrupt"
	CmdReset     CommandType = "reset"
)

// Command is one tagged record on the host -> daemon half of the duplex
// protocol.
type Command struct {
	Type CommandType `json:"type"`
	// Config selects the model resource; required for load and generate.
	Config *ModelConfig `json:"config,omitempty"`
	// Data carries the conversation history for generate.
	Data []ChatMessage `json:"data,omitempty"`
}

// EventStatus enumerates the events the daemon emits.
type EventStatus string

const (
	EventLoading  EventStatus = "loading"
	EventInitiate EventStatus = "initiate"
	EventProgress EventStatus = "progress"
	EventDone     EventStatus = "done"
	EventReady    EventStatus = "ready"
	EventStart    EventStatus = "start"
	EventUpdate   EventStatus = "update"
	EventComplete EventStatus = "complete"
	EventError    EventStatus = "error"
)

// Event is one tagged record on the daemon -> host half of the duplex
// protocol. Fields are populated per status; unused fields are omitted.
// Events for a command are delivered in production order, never coalesced:
// hosts reconstruct streamed text by concatenating update outputs.
type Event struct {
	Status EventStatus `json:"status"`
	// Data holds a human-readable load-phase description (loading).
	Data string `json:"data,omitempty"`
	// File names the artifact being loaded (initiate, progress, done).
	File string `json:"file,omitempty"`
	// Progress/Total are byte counts for the named artifact.
	Progress int64 `json:"progress,omitempty"`
	Total    int64 `json:"total,omitempty"`
	// Output is an incremental fragment (update) or the final decoded text
	// (complete).
	Output string `json:"output,omitempty"`
	// TPS is the running throughput in tokens per second. Absent on the first
	// update of a session, where it is not yet measurable.
	TPS *float64 `json:"tps,omitempty"`
	// NumTokens counts emitted fragments so far, starting at 1.
	NumTokens int `json:"numTokens,omitempty"`
	// Error carries a string description when status is error.
	Error string `json:"error,omitempty"`
}

// GenerateRequest is the body of POST /generate, the NDJSON alternative to
// the WebSocket protocol.
type GenerateRequest struct {
	Config   ModelConfig   `json:"config"`
	Messages []ChatMessage `json:"messages"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// MemoryStatus reports host memory so operators can judge headroom before
// loading another model.
type MemoryStatus struct {
	// Total physical memory in MB.
	// example: 32768
	TotalMB int `json:"total_mb" example:"32768"`
	// Available memory in MB.
	// example: 20480
	AvailableMB int `json:"available_mb" example:"20480"`
	// Used memory as a percentage.
	// example: 37.5
	UsedPercent float64 `json:"used_percent" example:"37.5"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Orchestrator state: idle, loading, generating.
	// example: idle
	State string `json:"state" example:"idle"`
	// Model id of the resource used by the most recent command, if any.
	ActiveModel string `json:"active_model,omitempty"`
	// Number of resources currently cached.
	// example: 1
	CachedResources int `json:"cached_resources" example:"1"`
	// True when an interrupt has been requested and not yet consumed.
	InterruptPending bool `json:"interrupt_pending"`
	// Totals since process start.
	LoadsTotal       uint64 `json:"loads_total"`
	GenerationsTotal uint64 `json:"generations_total"`
	InterruptsTotal  uint64 `json:"interrupts_total"`
	// Last error observed, if any.
	LastError string `json:"last_error,omitempty"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
	// Host memory snapshot; zero-valued when unavailable.
	Memory MemoryStatus `json:"memory"`
}
