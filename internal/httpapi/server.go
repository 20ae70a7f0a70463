package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gend/internal/orchestrator"
	"gend/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Handle(ctx context.Context, cmd types.Command, sink orchestrator.EventSink)
	ListModels() []types.Model
	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the router exposing the command protocol over WebSocket and
// NDJSON, plus the read-only endpoints.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/ws", wsHandler(svc))

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(types.ModelsResponse{Models: svc.ListModels()}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Config.Model) == "" {
			writeJSONError(w, http.StatusBadRequest, "config.model is required")
			return
		}
		if len(req.Messages) == 0 {
			writeJSONError(w, http.StatusBadRequest, "messages are required")
			return
		}
		// Unknown model is a proper HTTP status here, before the stream
		// starts. An empty registry means models resolve server-side, so the
		// check does not apply.
		if models := svc.ListModels(); len(models) > 0 && !knownModel(models, req.Config.Model) {
			writeJSONError(w, http.StatusNotFound, "model not found: "+req.Config.Model)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		start := time.Now()
		writer := io.Writer(w)
		lvl := requestLogLevel(r)
		if lvl >= LevelDebug {
			writer = io.MultiWriter(w, &loggingLineWriter{})
		}
		if lvl >= LevelInfo {
			if zlog != nil {
				z := zlog.Info().Str("path", r.URL.Path).Str("model", req.Config.Model)
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Msg("generate start")
			} else {
				log.Printf("generate start path=%s model=%s", r.URL.Path, req.Config.Model)
			}
		}

		// Join server base context with request context so shutdown cancels work too.
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()

		// A dropped connection requests an interrupt so the decode loop stops
		// at its next step instead of running the generation to completion.
		handled := make(chan struct{})
		go func() {
			select {
			case <-joined.Done():
				svc.Handle(context.Background(), types.Command{Type: types.CmdInterrupt}, orchestrator.SinkFunc(func(types.Event) {}))
			case <-handled:
			}
		}()

		cfg := req.Config
		svc.Handle(joined, types.Command{Type: types.CmdGenerate, Config: &cfg, Data: req.Messages}, ndjsonSink(writer, flush))
		close(handled)

		if lvl >= LevelInfo {
			if zlog != nil {
				z := zlog.Info().Dur("dur", time.Since(start))
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Msg("generate end")
			} else {
				log.Printf("generate end dur=%s", time.Since(start))
			}
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func knownModel(models []types.Model, id string) bool {
	for _, m := range models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// ndjsonSink writes each event as one JSON line, flushing between lines so
// hosts observe fragments as they are produced.
func ndjsonSink(w io.Writer, flush func()) orchestrator.EventSink {
	enc := json.NewEncoder(w)
	return orchestrator.SinkFunc(func(e types.Event) {
		if err := enc.Encode(e); err != nil {
			return
		}
		if flush != nil {
			flush()
		}
	})
}
