package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"gend/internal/engine"
	"gend/pkg/types"
)

// State represents the observable lifecycle state of the orchestrator.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateGenerating State = "generating"
)

// RouterConfig encapsulates the tunables for Router construction.
type RouterConfig struct {
	Pool *ResourcePool
	// MaxNewTokens bounds newly generated units per session; defaults to
	// DefaultMaxNewTokens.
	MaxNewTokens int
	// WarmUp runs a throwaway one-unit generation after each load to force
	// lazy backend initialization. On by default; DisableWarmUp turns it off.
	DisableWarmUp bool
}

// Router is the single entry point for host commands. It dispatches to the
// pool, the session and the interrupt flag, and converts every failure into
// one error event so the orchestrator always survives to accept the next
// command. At most one load or generate is admitted at a time; interrupt and
// reset are always admitted because they only touch the flag.
type Router struct {
	pool    *ResourcePool
	flag    *InterruptFlag
	session Session
	warmUp  bool

	// busy is a one-slot gate serializing load/generate.
	busy chan struct{}

	stats routerStats
}

// NewRouter constructs a Router from RouterConfig.
func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		pool:    cfg.Pool,
		flag:    NewInterruptFlag(),
		session: Session{MaxNewTokens: cfg.MaxNewTokens},
		warmUp:  !cfg.DisableWarmUp,
		busy:    make(chan struct{}, 1),
	}
	r.stats.startTime = time.Now()
	r.stats.state = StateIdle
	return r
}

// Flag exposes the interrupt flag shared with decode loops.
func (r *Router) Flag() *InterruptFlag { return r.flag }

// ListModels returns the registry backing the pool.
func (r *Router) ListModels() []types.Model { return r.pool.ListModels() }

// Ready reports whether at least one model resource is loaded.
func (r *Router) Ready() bool { return r.pool.Resolved() > 0 }

// Handle processes one command, publishing all resulting events on sink.
// Errors never escape: they are reported as a single error event.
func (r *Router) Handle(ctx context.Context, cmd types.Command, sink EventSink) {
	if sink == nil {
		sink = noopSink{}
	}
	switch cmd.Type {
	case types.CmdInterrupt:
		// The in-flight session's eventual complete event is the only
		// observable effect.
		r.flag.Set()
		r.stats.noteInterrupt()
		interruptsTotal.Inc()
		log.Printf("router event=interrupt_requested")
		return
	case types.CmdReset:
		r.flag.Reset()
		return
	case types.CmdLoad, types.CmdGenerate:
	default:
		r.fail(sink, ErrProtocol(fmt.Sprintf("unknown command type: %q", cmd.Type)))
		return
	}

	if cmd.Config == nil || cmd.Config.Model == "" {
		r.fail(sink, ErrProtocol("command requires a model config"))
		return
	}
	select {
	case r.busy <- struct{}{}:
	default:
		// Overlapping load/generate is rejected rather than queued; the host
		// protocol runs one generation at a time.
		r.fail(sink, ErrProtocol("another command is already in progress"))
		return
	}
	defer func() { <-r.busy }()
	defer func() {
		if rec := recover(); rec != nil {
			r.fail(sink, fmt.Errorf("panic in command handler: %v", rec))
		}
		r.stats.setState(StateIdle)
	}()

	var err error
	switch cmd.Type {
	case types.CmdLoad:
		err = r.handleLoad(ctx, *cmd.Config, sink)
	case types.CmdGenerate:
		err = r.handleGenerate(ctx, cmd, sink)
	}
	if err != nil {
		r.fail(sink, err)
	}
}

func (r *Router) handleLoad(ctx context.Context, cfg types.ModelConfig, sink EventSink) error {
	r.stats.setState(StateLoading)
	r.stats.setActiveModel(cfg.Model)
	log.Printf("router event=load_start model=%q", cfg.Model)

	sink.Publish(types.Event{Status: types.EventLoading, Data: fmt.Sprintf("Loading model %s...", cfg.Model)})
	res, err := r.pool.Acquire(ctx, cfg, func(pe engine.ProgressEvent) {
		// Republish every progress event verbatim, in arrival order.
		sink.Publish(progressToEvent(pe))
	})
	if err != nil {
		return err
	}
	if r.warmUp {
		sink.Publish(types.Event{Status: types.EventLoading, Data: "Compiling model and warming up..."})
		if err := r.warmUpRun(ctx, res); err != nil {
			return ErrLoad(err)
		}
	}
	sink.Publish(types.Event{Status: types.EventReady})
	r.stats.noteLoad()
	log.Printf("router event=load_ready model=%q", cfg.Model)
	return nil
}

// warmUpRun performs one throwaway minimal generation so backend-specific
// lazy initialization happens before the first real session.
func (r *Router) warmUpRun(ctx context.Context, res *engine.Resource) error {
	req, err := res.Tokenizer.Encode([]types.ChatMessage{{Role: "user", Content: "hi"}}, true)
	if err != nil || req == nil {
		return err
	}
	discard := func(string) error { return nil }
	never := func() bool { return false }
	_, err = res.Generator.Generate(ctx, req, 1, discard, never)
	return err
}

func (r *Router) handleGenerate(ctx context.Context, cmd types.Command, sink EventSink) error {
	// Exactly one reset per generate: a stale interrupt from a prior session
	// must not stop this one.
	r.flag.Reset()
	r.stats.setState(StateGenerating)
	r.stats.setActiveModel(cmd.Config.Model)
	log.Printf("router event=generate_start model=%q turns=%d", cmd.Config.Model, len(cmd.Data))

	// Cache hit expected; a cold generate loads silently (no progress sink).
	res, err := r.pool.Acquire(ctx, *cmd.Config, nil)
	if err != nil {
		return err
	}
	if err := r.session.Run(ctx, cmd.Data, res, r.flag, sink); err != nil {
		return err
	}
	r.stats.noteGeneration()
	return nil
}

// fail converts an error into the single error event the protocol promises,
// leaving the router usable.
func (r *Router) fail(sink EventSink, err error) {
	r.stats.noteError(err)
	errorsTotal.Inc()
	log.Printf("router event=command_error err=%v", err)
	sink.Publish(types.Event{Status: types.EventError, Error: err.Error()})
}

func progressToEvent(pe engine.ProgressEvent) types.Event {
	ev := types.Event{File: pe.File, Progress: pe.Progress, Total: pe.Total}
	switch pe.Kind {
	case engine.ProgressInitiate:
		ev.Status = types.EventInitiate
	case engine.ProgressDone:
		ev.Status = types.EventDone
		ev.Progress = 0
		ev.Total = 0
	default:
		ev.Status = types.EventProgress
	}
	return ev
}
