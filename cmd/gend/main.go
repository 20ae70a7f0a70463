package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gend/internal/common/fsutil"
	"gend/internal/config"
	"gend/internal/engine"
	"gend/internal/httpapi"
	"gend/internal/orchestrator"
	"gend/internal/registry"
	"gend/pkg/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newRootCmd() *cobra.Command {
	var (
		configPath   string
		addr         string
		modelsDir    string
		defaultModel string
		engineName   string
		ollamaURL    string
		maxNewTokens int
		llamaCtx     int
		llamaThreads int
		logLevel     string
		corsOrigins  string
		noWarmUp     bool
	)

	root := &cobra.Command{
		Use:           "gend",
		Short:         "Local text generation daemon speaking a duplex command/event protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{
				Addr:         addr,
				ModelsDir:    modelsDir,
				DefaultModel: defaultModel,
				Engine:       engineName,
				OllamaURL:    ollamaURL,
				MaxNewTokens: maxNewTokens,
				LlamaCtx:     llamaCtx,
				LlamaThreads: llamaThreads,
				LogLevel:     logLevel,
				CORSOrigins:  splitCSV(corsOrigins),
			}
			if configPath != "" {
				fileCfg, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("config %s: %w", configPath, err)
				}
				cfg = mergeConfig(fileCfg, cfg, cmd)
			}
			return run(cfg, noWarmUp)
		},
	}

	fl := root.Flags()
	fl.StringVar(&configPath, "config", os.Getenv("GEND_CONFIG"), "Config file (toml/yaml/json); flags override file values")
	fl.StringVar(&addr, "addr", envOr("GEND_ADDR", ":8090"), "HTTP listen address, e.g. :8090")
	fl.StringVar(&modelsDir, "models-dir", envOr("GEND_MODELS_DIR", "~/models/llm"), "Directory to scan for model weights")
	fl.StringVar(&defaultModel, "default-model", os.Getenv("GEND_DEFAULT_MODEL"), "Model id to load at startup")
	fl.StringVar(&engineName, "engine", envOr("GEND_ENGINE", "llama"), "Decoding backend: llama|ollama")
	fl.StringVar(&ollamaURL, "ollama-url", os.Getenv("GEND_OLLAMA_URL"), "Ollama server base URL (engine=ollama)")
	fl.IntVar(&maxNewTokens, "max-new-tokens", orchestrator.DefaultMaxNewTokens, "Upper bound on newly generated tokens per request")
	fl.IntVar(&llamaCtx, "llama-ctx", 4096, "Context window for the llama backend")
	fl.IntVar(&llamaThreads, "llama-threads", 0, "Decode threads for the llama backend (0=auto)")
	fl.StringVar(&logLevel, "log-level", envOr("GEND_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	fl.StringVar(&corsOrigins, "cors-origins", os.Getenv("GEND_CORS_ORIGINS"), "Comma-separated allowed CORS origins (empty disables CORS)")
	fl.BoolVar(&noWarmUp, "no-warmup", false, "Skip the throwaway warm-up generation after each load")

	return root
}

// mergeConfig overlays file values under flag values: a file value wins only
// when the corresponding flag was left at its default.
func mergeConfig(file, flags config.Config, cmd *cobra.Command) config.Config {
	out := flags
	if file.Addr != "" && !cmd.Flags().Changed("addr") {
		out.Addr = file.Addr
	}
	if file.ModelsDir != "" && !cmd.Flags().Changed("models-dir") {
		out.ModelsDir = file.ModelsDir
	}
	if file.DefaultModel != "" && !cmd.Flags().Changed("default-model") {
		out.DefaultModel = file.DefaultModel
	}
	if file.Engine != "" && !cmd.Flags().Changed("engine") {
		out.Engine = file.Engine
	}
	if file.OllamaURL != "" && !cmd.Flags().Changed("ollama-url") {
		out.OllamaURL = file.OllamaURL
	}
	if file.MaxNewTokens != 0 && !cmd.Flags().Changed("max-new-tokens") {
		out.MaxNewTokens = file.MaxNewTokens
	}
	if file.LlamaCtx != 0 && !cmd.Flags().Changed("llama-ctx") {
		out.LlamaCtx = file.LlamaCtx
	}
	if file.LlamaThreads != 0 && !cmd.Flags().Changed("llama-threads") {
		out.LlamaThreads = file.LlamaThreads
	}
	if file.LogLevel != "" && !cmd.Flags().Changed("log-level") {
		out.LogLevel = file.LogLevel
	}
	if len(file.CORSOrigins) > 0 && !cmd.Flags().Changed("cors-origins") {
		out.CORSOrigins = append([]string(nil), file.CORSOrigins...)
	}
	return out
}

func newProvider(cfg config.Config) (engine.Provider, error) {
	switch cfg.Engine {
	case "", "llama":
		return engine.NewLlamaProvider(engine.LlamaConfig{
			CtxSize: cfg.LlamaCtx,
			Threads: cfg.LlamaThreads,
		}), nil
	case "ollama":
		return engine.NewOllamaProvider(engine.OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Pull:    true,
		})
	default:
		return nil, fmt.Errorf("unknown engine %q (want llama or ollama)", cfg.Engine)
	}
}

func run(cfg config.Config, noWarmUp bool) error {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger()
	httpapi.SetLogger(logger)

	// Server-backed engines resolve models remotely; an absent local models
	// dir just yields an empty registry.
	var reg []types.Model
	dir, err := fsutil.ExpandHome(cfg.ModelsDir)
	if err != nil {
		return err
	}
	if fsutil.PathExists(dir) {
		reg, err = registry.LoadDir(dir)
		if err != nil {
			return fmt.Errorf("load models: %w", err)
		}
	} else if cfg.Engine != "ollama" {
		return fmt.Errorf("models dir %s does not exist", dir)
	}
	logger.Info().Int("models", len(reg)).Str("dir", dir).Msg("registry loaded")

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	if cfg.Engine != "ollama" && !engine.LlamaBuilt() {
		logger.Warn().Msg("llama engine selected but binary lacks the 'llama' build tag; loads will fail")
	}
	pool := orchestrator.NewResourcePool(provider, reg)
	router := orchestrator.NewRouter(orchestrator.RouterConfig{
		Pool:          pool,
		MaxNewTokens:  cfg.MaxNewTokens,
		DisableWarmUp: noWarmUp,
	})

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)
	if len(cfg.CORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins,
			[]string{http.MethodGet, http.MethodPost, http.MethodOptions},
			[]string{"Content-Type", "X-Log-Level"})
	}

	if cfg.DefaultModel != "" {
		go preload(baseCtx, router, cfg.DefaultModel, logger)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("engine", cfg.Engine).Msg("gend listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	// Cancel in-flight generations first so streaming handlers unwind, then
	// drain the listener.
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	logger.Info().Int("entries", pool.Len()).Msg("releasing model resources")
	if err := pool.Close(); err != nil {
		logger.Error().Err(err).Msg("resource release error")
	}
	return nil
}

// preload issues a load command for the configured default model so the first
// host request does not pay the load cost.
func preload(ctx context.Context, router *orchestrator.Router, model string, logger zerolog.Logger) {
	sink := orchestrator.SinkFunc(func(e types.Event) {
		switch e.Status {
		case types.EventReady:
			logger.Info().Str("model", model).Msg("default model ready")
		case types.EventError:
			logger.Error().Str("model", model).Str("error", e.Error).Msg("default model load failed")
		}
	})
	router.Handle(ctx, types.Command{Type: types.CmdLoad, Config: &types.ModelConfig{Model: model}}, sink)
}
